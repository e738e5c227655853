// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"math/big"
)

// dhSubState is the server-role DH engine's sub-state machine (§4.2).
type dhSubState int

const (
	dhInit dhSubState = iota
	dhInitSent
	dhNewkeysSent
	dhFinished
)

// KexContext holds everything one key-exchange round needs: the
// per-slot method-preference lists both sides offered, the negotiated
// algorithms, and the DH transcript (y, f, e, K, H). Ten preference
// slots are carried on ServerInit/ClientInit (kex, host key, cipher
// c2s/s2c, MAC c2s/s2c, compression c2s/s2c, language c2s/s2c) per §3.
type KexContext struct {
	ServerInit *KexInitMsg
	ClientInit *KexInitMsg
	Algorithms *Algorithms

	subState dhSubState
	crypto   Crypto

	y []byte // server DH secret
	f []byte // server DH public value
	e []byte // peer DH public value
	K []byte // shared secret
	H []byte // exchange hash
}

// newKexContext builds a fresh server KEXINIT offer from the session's
// configured (or default) preference lists, seeding the cookie from
// the Crypto capability's entropy source rather than a process-global
// PRNG, matching the C precedent this engine was distilled from.
func newKexContext(cfg *Config, hostKeyAlgos []string) (*KexContext, error) {
	var cookie [16]byte
	if _, err := io.ReadFull(cfg.Rand, cookie[:]); err != nil {
		return nil, wrapError(KindCrypto, "generate KEXINIT cookie", err)
	}
	init := &KexInitMsg{
		Cookie:                  cookie,
		KexAlgos:                cfg.KeyExchanges,
		ServerHostKeyAlgos:      hostKeyAlgos,
		CiphersClientServer:     cfg.Ciphers,
		CiphersServerClient:     cfg.Ciphers,
		MACsClientServer:        cfg.MACs,
		MACsServerClient:        cfg.MACs,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
		LanguagesClientServer:   nil,
		LanguagesServerClient:   nil,
	}
	return &KexContext{ServerInit: init, subState: dhInit}, nil
}

// negotiate records the peer's KEXINIT and computes the agreed
// algorithm tuple (§4.7), instantiating the Crypto implementation the
// negotiated kex algorithm requires.
func (kc *KexContext) negotiate(clientInit *KexInitMsg) error {
	kc.ClientInit = clientInit
	algos, err := findAgreedAlgorithms(kc.ServerInit, clientInit)
	if err != nil {
		return err
	}
	kc.Algorithms = algos
	crypto, err := NewCrypto(algos.Kex)
	if err != nil {
		return err
	}
	kc.crypto = crypto
	return nil
}

// kexReplyInputs bundles the transcript fields §4.2 step 7 hashes,
// everything the DH engine needs besides the session's own state.
type kexReplyInputs struct {
	clientBanner, serverBanner   []byte
	clientKexInit, serverKexInit []byte
	hostKeyPriv                  interface{}
	hostKeyType                  HostKeyType
	loader                       KeyLoader
	rand                         io.Reader
}

// handleKexDHInit runs the server-role DH reply construction of §4.2
// steps 1-11 against a classic (finite-field) DH KEXDH_INIT payload.
// It returns the KEXDH_REPLY payload followed by the one-byte NEWKEYS
// payload (the caller frames each as its own packet), and the exchange
// hash H (which becomes the session-id if this is the first KEX).
func (kc *KexContext) handleKexDHInit(payload []byte, in kexReplyInputs) (reply []byte, H []byte, err error) {
	if kc.subState != dhInit {
		// §4.2 trigger: ignored without state change outside Init.
		return nil, nil, nil
	}

	msg, err := parseKexDHInitMsg(payload)
	if err != nil {
		return nil, nil, wrapError(KindKexProtocol, "parse KEXDH_INIT", err)
	}
	e := msg.X.Bytes()

	return kc.computeReply(e, false, in)
}

// handleKexECDHInit is handleKexDHInit's counterpart for the
// curve25519-sha256 supplemental method (§4.2's "Supplemental kex
// method" addendum): the client's public value arrives as an opaque
// string rather than an mpint, but the remaining nine steps are
// identical.
func (kc *KexContext) handleKexECDHInit(payload []byte, in kexReplyInputs) (reply []byte, H []byte, err error) {
	if kc.subState != dhInit {
		return nil, nil, nil
	}

	msg, err := parseKexECDHInitMsg(payload)
	if err != nil {
		return nil, nil, wrapError(KindKexProtocol, "parse ECDH KEX_INIT", err)
	}
	return kc.computeReply(msg.ClientPub, true, in)
}

func (kc *KexContext) computeReply(e []byte, ecdh bool, in kexReplyInputs) (reply []byte, H []byte, err error) {
	// Step 2: validate e is a positive integer below the group order.
	// dhCrypto.ComputeK performs the range check for classic DH;
	// X25519 has no analogous range to validate beyond length.
	if !ecdh {
		eInt := new(big.Int).SetBytes(e)
		if eInt.Sign() <= 0 {
			return nil, nil, newError(KindKexProtocol, "peer DH public value e is non-positive")
		}
	} else if len(e) != 32 {
		return nil, nil, newError(KindKexProtocol, "peer X25519 public value has wrong length")
	}
	kc.e = e

	// Step 3: generate y, compute f.
	y, err := kc.crypto.GenerateY(in.rand)
	if err != nil {
		return nil, nil, err
	}
	kc.y = y
	f, err := kc.crypto.ComputeF(y)
	if err != nil {
		return nil, nil, err
	}
	kc.f = f

	// Step 4: select the private key slot for the negotiated host-key
	// algorithm; fail fatally if empty.
	if in.hostKeyPriv == nil {
		return nil, nil, newError(KindConfig, "negotiated host key algorithm has no matching private key loaded")
	}

	// Step 5: derive and serialize the public host key.
	pub, err := in.loader.PublicFromPrivate(in.hostKeyPriv)
	if err != nil {
		return nil, nil, err
	}
	hostKeyBlob, err := in.loader.SerializePublic(pub)
	if err != nil {
		return nil, nil, err
	}

	// Step 6: shared secret K = e^y mod p (or the X25519 analogue).
	K, err := kc.crypto.ComputeK(e, y)
	if err != nil {
		return nil, nil, err
	}
	kc.K = K

	// Step 7: exchange hash H over the canonical field order.
	var eField, fField, kField []byte
	if ecdh {
		eField = appendBytes(nil, e)
		fField = appendBytes(nil, f)
	} else {
		eField = appendMpint(nil, new(big.Int).SetBytes(e))
		fField = appendMpint(nil, new(big.Int).SetBytes(f))
	}
	kField = appendMpint(nil, new(big.Int).SetBytes(K))

	H = kc.crypto.HashExchange(
		appendString(nil, string(in.clientBanner)),
		appendString(nil, string(in.serverBanner)),
		appendBytes(nil, in.clientKexInit),
		appendBytes(nil, in.serverKexInit),
		appendBytes(nil, hostKeyBlob),
		eField, fField, kField,
	)
	kc.H = H

	// Step 8: sign H.
	sig, err := kc.crypto.Sign(in.rand, in.hostKeyPriv, H)
	if err != nil {
		return nil, nil, err
	}

	// Steps 10-11: emit KEXDH_REPLY then NEWKEYS. Step 9 (clearing
	// both host-key slots) is the caller's responsibility, since the
	// slots live on Session, not KexContext.
	var replyMsg []byte
	if ecdh {
		replyMsg = (&kexECDHReplyMsg{HostKey: hostKeyBlob, ServerPub: f, Signature: sig}).marshal()
	} else {
		replyMsg = (&kexDHReplyMsg{HostKey: hostKeyBlob, Y: new(big.Int).SetBytes(f), Signature: sig}).marshal()
	}
	reply = append(reply, replyMsg...)
	reply = append(reply, newKeysMsg()...)

	kc.subState = dhNewkeysSent
	return reply, H, nil
}

// newkeysReceived advances the DH sub-state to Finished on receipt of
// the peer's NEWKEYS, the trigger §4.3 names for deriving session
// keys and cutting over current_crypto/next_crypto.
func (kc *KexContext) newkeysReceived() {
	kc.subState = dhFinished
}
