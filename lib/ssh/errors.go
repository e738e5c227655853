// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "fmt"

// Kind classifies the fatal reason a Session or Listener moved to its
// Error state, per the error taxonomy the engine surfaces to embedders.
type Kind int

const (
	// KindConfig covers a missing host key path or an otherwise invalid
	// Listener option.
	KindConfig Kind = iota
	// KindResolve covers bind-address hostname lookup failure.
	KindResolve
	// KindSocketIO covers read/write/accept failures on the underlying
	// connection.
	KindSocketIO
	// KindBannerTooLarge covers a peer banner exceeding maxBannerLength
	// bytes without a terminating newline.
	KindBannerTooLarge
	// KindBannerMalformed covers a banner line that isn't a valid
	// SSH identification string.
	KindBannerMalformed
	// KindProtocolVersion covers a peer that doesn't support SSH2.
	KindProtocolVersion
	// KindAlgorithmMismatch covers a negotiation slot with no
	// intersection between local and peer offers.
	KindAlgorithmMismatch
	// KindKexProtocol covers an out-of-sequence or malformed KEX
	// message.
	KindKexProtocol
	// KindCrypto covers signature or key-derivation failure.
	KindCrypto
	// KindPacketEncoding covers a packet that failed to parse.
	KindPacketEncoding
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindResolve:
		return "resolve"
	case KindSocketIO:
		return "socket_io"
	case KindBannerTooLarge:
		return "banner_too_large"
	case KindBannerMalformed:
		return "banner_malformed"
	case KindProtocolVersion:
		return "protocol_version"
	case KindAlgorithmMismatch:
		return "algorithm_mismatch"
	case KindKexProtocol:
		return "kex_protocol"
	case KindCrypto:
		return "crypto"
	case KindPacketEncoding:
		return "packet_encoding"
	default:
		return "unknown"
	}
}

// Error is the error type returned across the core's exported API. It
// carries a Kind so callers can branch on errors.As without string
// matching, and optionally wraps a lower-level cause.
type Error struct {
	Kind  Kind
	Msg   string
	cause error

	// Slot names the negotiation slot that failed, set only for
	// KindAlgorithmMismatch (one of "key exchange", "host key",
	// "client to server cipher", ...).
	Slot string
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ssh: %s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("ssh: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is(err, ssh.Kind(...))-free comparisons against a
// bare Kind: errors.Is(err, &ssh.Error{Kind: ssh.KindConfig}) matches
// any *Error of that Kind regardless of Msg/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}
