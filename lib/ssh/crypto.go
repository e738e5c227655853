// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/dsa"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

// Crypto is the narrow capability contract §6 names for the
// cryptographic primitives the engine consumes but never implements
// itself: DH/ECDH key agreement, host-key signing, and session-key
// derivation. NewCrypto returns the engine's own default
// implementation (§11.1); embedders may substitute any other
// implementation (e.g. one backed by an HSM) that satisfies this
// interface.
type Crypto interface {
	// GenerateY returns a fresh DH secret exponent / ECDH scalar.
	GenerateY(rand io.Reader) ([]byte, error)
	// ComputeF computes the server's public DH/ECDH value from y.
	ComputeF(y []byte) ([]byte, error)
	// ComputeK computes the shared secret from the peer's public
	// value e and the server's secret y.
	ComputeK(e, y []byte) ([]byte, error)
	// HashExchange computes the exchange hash H over the canonical
	// field order §4.2 step 7 specifies.
	HashExchange(fields ...[]byte) []byte
	// Sign signs data (normally H) with priv, returning an RFC 4253
	// §6.6-shaped "algorithm-name || signature blob" wire signature.
	Sign(rand io.Reader, priv interface{}, data []byte) ([]byte, error)
	// DeriveKeys expands (K, H, sessionID) into the six session
	// secrets (RFC 4253 §7.2): IV c2s/s2c, key c2s/s2c, MAC c2s/s2c.
	DeriveKeys(k, h, sessionID []byte, cipherKeyLen, macKeyLen int) (sessionKeys, error)
}

// sessionKeys holds the six directional secrets RFC 4253 §7.2 derives.
type sessionKeys struct {
	ivCtoS, ivStoC   []byte
	keyCtoS, keyStoC []byte
	macCtoS, macStoC []byte
}

// NewCrypto returns the default Crypto implementation for the given
// negotiated kex algorithm. kexAlgoDH1SHA1 and kexAlgoDH14SHA1 run
// classic finite-field DH over math/big; kexAlgoCurve25519 runs the
// supplemental X25519 method of §4.2.
func NewCrypto(kexAlgo string) (Crypto, error) {
	switch kexAlgo {
	case kexAlgoDH1SHA1:
		return &dhCrypto{prime: group1Prime, hash: crypto.SHA1}, nil
	case kexAlgoDH14SHA1:
		return &dhCrypto{prime: group14Prime, hash: crypto.SHA1}, nil
	case kexAlgoCurve25519:
		return &curve25519Crypto{}, nil
	default:
		return nil, newError(KindKexProtocol, "unsupported kex algorithm "+kexAlgo)
	}
}

// dhCrypto implements Crypto over a finite-field MODP group using
// math/big, the way the reference stack's own common.go leans on
// math/big for DH rather than a dedicated group-arithmetic package.
type dhCrypto struct {
	prime *big.Int
	hash  crypto.Hash
}

func (d *dhCrypto) GenerateY(rnd io.Reader) ([]byte, error) {
	// A secret exponent the width of the group, reduced mod (p-1) and
	// floored at 2 so neither endpoint of the group is chosen.
	max := new(big.Int).Sub(d.prime, big.NewInt(3))
	y, err := rand.Int(rnd, max)
	if err != nil {
		return nil, wrapError(KindCrypto, "generate DH secret", err)
	}
	y.Add(y, bigTwo)
	return y.Bytes(), nil
}

func (d *dhCrypto) ComputeF(y []byte) ([]byte, error) {
	f := new(big.Int).Exp(bigTwo, new(big.Int).SetBytes(y), d.prime)
	return f.Bytes(), nil
}

func (d *dhCrypto) ComputeK(e, y []byte) ([]byte, error) {
	eInt := new(big.Int).SetBytes(e)
	if eInt.Sign() <= 0 || eInt.Cmp(d.prime) >= 0 {
		return nil, newError(KindKexProtocol, "peer DH public value e out of range")
	}
	k := new(big.Int).Exp(eInt, new(big.Int).SetBytes(y), d.prime)
	return k.Bytes(), nil
}

func (d *dhCrypto) HashExchange(fields ...[]byte) []byte {
	return hashFields(d.hash, fields...)
}

func (d *dhCrypto) Sign(rnd io.Reader, priv interface{}, data []byte) ([]byte, error) {
	return signWith(rnd, priv, data)
}

func (d *dhCrypto) DeriveKeys(k, h, sessionID []byte, cipherKeyLen, macKeyLen int) (sessionKeys, error) {
	return deriveSessionKeys(d.hash, k, h, sessionID, cipherKeyLen, macKeyLen)
}

// curve25519Crypto implements Crypto for curve25519-sha256 (§4.2's
// supplemental method), using golang.org/x/crypto/curve25519 for the
// scalar multiply and SHA-256 for both the transcript hash and the
// session-key KDF, per RFC 8731.
type curve25519Crypto struct {
	scalar [32]byte
}

func (c *curve25519Crypto) GenerateY(rnd io.Reader) ([]byte, error) {
	if _, err := io.ReadFull(rnd, c.scalar[:]); err != nil {
		return nil, wrapError(KindCrypto, "generate X25519 scalar", err)
	}
	return append([]byte(nil), c.scalar[:]...), nil
}

func (c *curve25519Crypto) ComputeF(y []byte) ([]byte, error) {
	var scalar [32]byte
	copy(scalar[:], y)
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, wrapError(KindCrypto, "X25519 basepoint multiply", err)
	}
	return pub, nil
}

func (c *curve25519Crypto) ComputeK(e, y []byte) ([]byte, error) {
	var scalar [32]byte
	copy(scalar[:], y)
	shared, err := curve25519.X25519(scalar[:], e)
	if err != nil {
		return nil, wrapError(KindCrypto, "X25519 shared secret", err)
	}
	return shared, nil
}

func (c *curve25519Crypto) HashExchange(fields ...[]byte) []byte {
	return hashFields(crypto.SHA256, fields...)
}

func (c *curve25519Crypto) Sign(rnd io.Reader, priv interface{}, data []byte) ([]byte, error) {
	return signWith(rnd, priv, data)
}

func (c *curve25519Crypto) DeriveKeys(k, h, sessionID []byte, cipherKeyLen, macKeyLen int) (sessionKeys, error) {
	return deriveSessionKeys(crypto.SHA256, k, h, sessionID, cipherKeyLen, macKeyLen)
}

// hashFields hashes the canonical concatenation of fields (RFC 4253
// §8): each []byte is written verbatim, so the caller passes every
// field already framed (the banners/KEXINIT payloads/host key blob as
// strings, e/f/K as mpints).
func hashFields(h crypto.Hash, fields ...[]byte) []byte {
	hasher := h.New()
	for _, f := range fields {
		hasher.Write(f)
	}
	return hasher.Sum(nil)
}

// deriveSessionKeys implements the RFC 4253 §7.2 key-derivation
// function: K_x = HASH(K || H || X || session_id), extended by
// HASH(K || H || K_x) as needed to reach the required length.
func deriveSessionKeys(h crypto.Hash, k, hHash, sessionID []byte, cipherKeyLen, macKeyLen int) (sessionKeys, error) {
	expand := func(x byte, n int) []byte {
		var digest []byte
		var buf []byte
		buf = appendMpint(buf, new(big.Int).SetBytes(k))
		buf = append(buf, hHash...)
		buf = append(buf, x)
		buf = append(buf, sessionID...)
		hasher := h.New()
		hasher.Write(buf)
		digest = hasher.Sum(nil)
		for len(digest) < n {
			hasher = h.New()
			var more []byte
			more = appendMpint(more, new(big.Int).SetBytes(k))
			more = append(more, hHash...)
			more = append(more, digest...)
			hasher.Write(more)
			digest = append(digest, hasher.Sum(nil)...)
		}
		return digest[:n]
	}

	return sessionKeys{
		ivCtoS:  expand('A', 16),
		ivStoC:  expand('B', 16),
		keyCtoS: expand('C', cipherKeyLen),
		keyStoC: expand('D', cipherKeyLen),
		macCtoS: expand('E', macKeyLen),
		macStoC: expand('F', macKeyLen),
	}, nil
}

// signWith signs data with an *rsa.PrivateKey or *dsa.PrivateKey,
// returning the RFC 4253 §6.6 "algorithm-name || signature-blob" wire
// form (the same shape host-key verification on the peer expects).
func signWith(rnd io.Reader, priv interface{}, data []byte) ([]byte, error) {
	switch key := priv.(type) {
	case *rsa.PrivateKey:
		digest := sha1Sum(data)
		sig, err := rsa.SignPKCS1v15(rnd, key, crypto.SHA1, digest)
		if err != nil {
			return nil, wrapError(KindCrypto, "RSA sign", err)
		}
		var buf []byte
		buf = appendString(buf, hostAlgoRSA)
		buf = appendBytes(buf, sig)
		return buf, nil
	case *dsa.PrivateKey:
		digest := sha1Sum(data)
		r, s, err := dsa.Sign(rnd, key, digest)
		if err != nil {
			return nil, wrapError(KindCrypto, "DSA sign", err)
		}
		sig := make([]byte, 40)
		rb := r.Bytes()
		sb := s.Bytes()
		copy(sig[20-len(rb):20], rb)
		copy(sig[40-len(sb):40], sb)
		var buf []byte
		buf = appendString(buf, hostAlgoDSA)
		buf = appendBytes(buf, sig)
		return buf, nil
	default:
		return nil, newError(KindCrypto, fmt.Sprintf("unsupported private key type %T", priv))
	}
}

func sha1Sum(data []byte) []byte {
	h := hashFuncs[hostAlgoRSA].New() // SHA1, shared by both host-key types
	h.Write(data)
	return h.Sum(nil)
}

// publicFromPrivate derives the corresponding public key for a loaded
// private key; used by KeyLoader.PublicFromPrivate (§6).
func publicFromPrivate(priv interface{}) (interface{}, error) {
	switch key := priv.(type) {
	case *rsa.PrivateKey:
		return &key.PublicKey, nil
	case *dsa.PrivateKey:
		return &key.PublicKey, nil
	default:
		return nil, newError(KindCrypto, fmt.Sprintf("unsupported private key type %T", priv))
	}
}
