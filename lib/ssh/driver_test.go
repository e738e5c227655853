// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriveStopsOnCancelDuringAuthenticating(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	cfg := &Config{}
	cfg.SetDefaults()
	s := NewSession(cfg, NewKeyLoader(), "SSH-2.0-corebound", nil)
	s.conn = serverConn
	s.br = bufio.NewReader(serverConn)
	s.packetIO = NewPacketIO(rand.Reader)
	s.connected = true
	s.alive = true
	s.state = StateAuthenticating

	d := NewDispatcher(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driveErr := make(chan error, 1)
	go func() { driveErr <- Drive(ctx, s, d) }()

	select {
	case err := <-driveErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Drive did not observe cancellation in time")
	}
}

func TestDriveReturnsLastErrorWhenHandshakeFails(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	clientConn.Close() // force an immediate read failure on the server side

	cfg := &Config{}
	cfg.SetDefaults()
	s := NewSession(cfg, NewKeyLoader(), "SSH-2.0-corebound", nil)
	require.Error(t, s.Attach(serverConn))

	d := NewDispatcher(s)
	err := Drive(context.Background(), s, d)
	assert.Error(t, err)
	assert.Equal(t, StateError, s.State())
}
