// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"context"
)

// Drive runs the per-session event loop (§4.6): it pumps the pre-auth
// handshake to completion, then switches to draining dispatched
// post-auth messages until the session ends. Cancelling ctx closes the
// session's socket and returns ctx.Err(), the context-based
// cancellation §5 adds atop the original blocking-timeout model.
func Drive(ctx context.Context, s *Session, dispatcher *Dispatcher) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if s.conn != nil {
				s.conn.Close()
			}
		case <-done:
		}
	}()

	for s.State() != StateError && s.State() != StateAuthenticating && s.State() != StateDisconnected {
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}

	if s.State() != StateAuthenticating {
		if err := s.LastError(); err != nil {
			return err
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := dispatcher.DispatchOne(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
