// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/dsa"
	"crypto/rsa"
	"encoding/pem"
	"os"

	xssh "golang.org/x/crypto/ssh"
)

// HostKeyType names the host-key family a slot holds.
type HostKeyType int

const (
	HostKeyRSA HostKeyType = iota
	HostKeyDSA
)

func (t HostKeyType) algo() string {
	if t == HostKeyDSA {
		return hostAlgoDSA
	}
	return hostAlgoRSA
}

// KeyLoader is the §6 capability through which the engine loads and
// serializes host keys without ever parsing PEM/DER itself. NewKeyLoader
// returns this engine's default implementation, scoped narrowly to the
// RSA/DSA PKCS#1-or-PEM forms the reference x/crypto/ssh parser already
// handles; embedders may substitute any other source (an HSM, a secrets
// manager) that satisfies the interface.
type KeyLoader interface {
	// LoadPrivateKey reads and parses the private key at path, failing
	// if its type doesn't match expected.
	LoadPrivateKey(path string, expected HostKeyType) (interface{}, error)
	// PublicFromPrivate derives the public half of a loaded private key.
	PublicFromPrivate(priv interface{}) (interface{}, error)
	// SerializePublic returns the RFC 4253 §6.6 wire blob for pub.
	SerializePublic(pub interface{}) ([]byte, error)
}

// defaultKeyLoader implements KeyLoader by reading PEM-encoded files
// from disk and handing them to x/crypto/ssh's private-key parser,
// the same parser the reference stack's own client/server handshake
// code depends on for host-key material.
type defaultKeyLoader struct{}

// NewKeyLoader returns the engine's default file-backed KeyLoader.
func NewKeyLoader() KeyLoader { return defaultKeyLoader{} }

func (defaultKeyLoader) LoadPrivateKey(path string, expected HostKeyType) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(KindConfig, "read host key file "+path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, newError(KindConfig, "no PEM block found in "+path)
	}
	priv, err := xssh.ParseRawPrivateKey(raw)
	if err != nil {
		return nil, wrapError(KindConfig, "parse private key "+path, err)
	}
	switch expected {
	case HostKeyRSA:
		if _, ok := priv.(*rsa.PrivateKey); !ok {
			return nil, newError(KindConfig, "host key "+path+" is not an RSA key")
		}
	case HostKeyDSA:
		if _, ok := priv.(*dsa.PrivateKey); !ok {
			return nil, newError(KindConfig, "host key "+path+" is not a DSA key")
		}
	}
	return priv, nil
}

func (defaultKeyLoader) PublicFromPrivate(priv interface{}) (interface{}, error) {
	return publicFromPrivate(priv)
}

// SerializePublic marshals pub into the RFC 4253 §6.6 wire form: the
// algorithm name followed by the type-specific fields, each
// length-prefixed. x/crypto/ssh's NewPublicKey + Marshal already do
// this correctly for rsa.PublicKey/dsa.PublicKey, so the engine
// delegates rather than re-deriving the per-algorithm field layout.
func (defaultKeyLoader) SerializePublic(pub interface{}) ([]byte, error) {
	sshPub, err := xssh.NewPublicKey(pub)
	if err != nil {
		return nil, wrapError(KindCrypto, "wrap public key", err)
	}
	return sshPub.Marshal(), nil
}
