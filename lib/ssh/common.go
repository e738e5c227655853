// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"io"

	_ "crypto/sha1"
	_ "crypto/sha256"
)

// These are string constants in the SSH protocol.
const (
	compressionNone = "none"
	serviceUserAuth = "ssh-userauth"
	serviceSSH      = "ssh-connection"

	kexAlgoDH1SHA1    = "diffie-hellman-group1-sha1"
	kexAlgoDH14SHA1   = "diffie-hellman-group14-sha1"
	kexAlgoCurve25519 = "curve25519-sha256"
	hostAlgoRSA       = "ssh-rsa"
	hostAlgoDSA       = "ssh-dss"
)

// defaultKexAlgos specifies the default key-exchange algorithms in
// preference order. curve25519-sha256 is offered first, matching the
// reference stack's own defaultKexAlgos preference for non-group kex.
var defaultKexAlgos = []string{
	kexAlgoCurve25519,
	kexAlgoDH14SHA1,
	kexAlgoDH1SHA1,
}

// defaultCiphers specifies the default ciphers in preference order.
var defaultCiphers = []string{
	"aes128-ctr",
}

// defaultMACs specifies a default set of MAC algorithms in preference order.
var defaultMACs = []string{
	"hmac-sha2-256", "hmac-sha1",
}

var defaultCompressions = []string{compressionNone}

// hashFuncs keeps the mapping of host-key algorithms to the hash used
// for the exchange-hash signature (RFC 4253 §6.6 / RFC 4253 §8).
var hashFuncs = map[string]crypto.Hash{
	hostAlgoRSA: crypto.SHA1,
	hostAlgoDSA: crypto.SHA1,
}

// unexpectedMessageError results when the SSH message that we received didn't
// match what we wanted.
func unexpectedMessageError(expected, got uint8) error {
	return fmt.Errorf("ssh: unexpected message type %d (expected %d)", got, expected)
}

// parseErrorf results from a malformed SSH message.
func parseErrorf(tag uint8, format string, args ...interface{}) error {
	return fmt.Errorf("ssh: parse error in message type %d: %s", tag, fmt.Sprintf(format, args...))
}

// findCommon returns the first entry of server that also appears
// anywhere in client: the "first match in the server's list" rule §4.7
// specifies for every negotiation slot.
func findCommon(what string, server []string, client []string) (string, error) {
	for _, s := range server {
		for _, c := range client {
			if s == c {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("ssh: no common algorithm for %s; server offered: %v, client offered: %v", what, server, client)
}

// DirectionAlgorithms names the cipher/MAC/compression chosen for one
// direction of traffic.
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// Algorithms is the full negotiated tuple for a session: one entry per
// slot of §4.7, with W naming the client-to-server direction and R the
// server-to-client direction (the engine, being server-role, reads W
// and writes R).
type Algorithms struct {
	Kex     string
	HostKey string
	W       DirectionAlgorithms
	R       DirectionAlgorithms
}

// findAgreedAlgorithms applies §4.7's negotiation rule to every slot,
// given the server's configured preferences and the client's KEXINIT
// offer. It returns an *Error of KindAlgorithmMismatch naming the first
// slot with no intersection.
func findAgreedAlgorithms(serverInit, clientInit *KexInitMsg) (*Algorithms, error) {
	result := &Algorithms{}
	var err error
	var failedSlot string

	slot := func(name string, s, c []string, dst *string) bool {
		if err != nil {
			return false
		}
		*dst, err = findCommon(name, s, c)
		if err != nil {
			failedSlot = name
		}
		return err == nil
	}

	slot("key exchange", serverInit.KexAlgos, clientInit.KexAlgos, &result.Kex)
	slot("host key", serverInit.ServerHostKeyAlgos, clientInit.ServerHostKeyAlgos, &result.HostKey)
	slot("client to server cipher", serverInit.CiphersClientServer, clientInit.CiphersClientServer, &result.W.Cipher)
	slot("server to client cipher", serverInit.CiphersServerClient, clientInit.CiphersServerClient, &result.R.Cipher)
	slot("client to server MAC", serverInit.MACsClientServer, clientInit.MACsClientServer, &result.W.MAC)
	slot("server to client MAC", serverInit.MACsServerClient, clientInit.MACsServerClient, &result.R.MAC)
	slot("client to server compression", serverInit.CompressionClientServer, clientInit.CompressionClientServer, &result.W.Compression)
	slot("server to client compression", serverInit.CompressionServerClient, clientInit.CompressionServerClient, &result.R.Compression)

	if err != nil {
		return nil, &Error{Kind: KindAlgorithmMismatch, Msg: "algorithm negotiation failed", cause: err, Slot: failedSlot}
	}
	return result, nil
}

// minRekeyThreshold: if rekeythreshold is too small, we can't make any
// progress sending stuff.
const minRekeyThreshold uint64 = 256

// Config contains configuration data shared by every Session a
// Listener accepts: the algorithm preference lists of §4.7 plus the
// entropy source consumed throughout the Crypto capability (§6).
type Config struct {
	// Rand provides the source of entropy for cryptographic
	// primitives. If Rand is nil, crypto/rand.Reader is used.
	Rand io.Reader

	// RekeyThreshold is retained for configuration-surface parity
	// with the reference stack; this engine is terminal-for-core at
	// Authenticating and does not itself perform post-auth rekeying.
	RekeyThreshold uint64

	// KeyExchanges lists the allowed key-exchange algorithms in
	// preference order. Nil selects defaultKexAlgos.
	KeyExchanges []string

	// HostKeyAlgos lists the allowed host-key algorithms in
	// preference order. Nil selects a default computed from which
	// host keys are configured (§4.7).
	HostKeyAlgos []string

	// Ciphers lists the allowed cipher algorithms. Nil selects
	// defaultCiphers.
	Ciphers []string

	// MACs lists the allowed MAC algorithms. Nil selects defaultMACs.
	MACs []string
}

// SetDefaults sets sensible values for unset fields in config. This is
// exported for testing: Configs passed to SSH functions are copied and
// have default values set automatically.
func (c *Config) SetDefaults() {
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.KeyExchanges == nil {
		c.KeyExchanges = defaultKexAlgos
	}
	if c.Ciphers == nil {
		c.Ciphers = defaultCiphers
	}
	if c.MACs == nil {
		c.MACs = defaultMACs
	}
	if c.RekeyThreshold != 0 && c.RekeyThreshold < minRekeyThreshold {
		c.RekeyThreshold = minRekeyThreshold
	}
}

// SignedAuthData returns the data that is signed in order to prove
// possession of a private key (RFC 4252 §7). Exposed for embedders
// implementing their own publickey-auth signature verification when
// handling a dispatched AuthRequest Message; the core never calls this
// itself (authentication policy is the embedder's per §1).
func SignedAuthData(sessionID []byte, user, service, method string, algo, pubKey []byte) []byte {
	var buf []byte
	buf = appendBytes(buf, sessionID)
	buf = append(buf, msgUserAuthRequest)
	buf = appendString(buf, user)
	buf = appendString(buf, service)
	buf = appendString(buf, method)
	buf = appendBool(buf, true)
	buf = appendString(buf, string(algo))
	buf = appendBytes(buf, pubKey)
	return buf
}
