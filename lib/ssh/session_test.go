// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBannerHappyPath(t *testing.T) {
	banner, consumed, complete, err := parseBanner([]byte("SSH-2.0-OpenSSH_8.9\r\nignored"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "SSH-2.0-OpenSSH_8.9", banner)
	assert.Equal(t, len("SSH-2.0-OpenSSH_8.9\r\n"), consumed)
}

func TestParseBannerWithoutCR(t *testing.T) {
	banner, consumed, complete, err := parseBanner([]byte("SSH-2.0-x\n"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "SSH-2.0-x", banner)
	assert.Equal(t, len("SSH-2.0-x\n"), consumed)
}

func TestParseBannerIncomplete(t *testing.T) {
	_, _, complete, err := parseBanner([]byte("SSH-2.0-partial"))
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestParseBannerTooLarge(t *testing.T) {
	buf := []byte(strings.Repeat("x", maxBannerLength+1))
	_, _, _, err := parseBanner(buf)
	assert.Error(t, err)
	var sshErr *Error
	require.ErrorAs(t, err, &sshErr)
	assert.Equal(t, KindBannerTooLarge, sshErr.Kind)
}

func TestTrimBannerTerminatorRequiresNewline(t *testing.T) {
	_, ok := trimBannerTerminator([]byte("SSH-2.0-x"))
	assert.False(t, ok)
}

func TestTrimBannerTerminatorStripsCRLF(t *testing.T) {
	s, ok := trimBannerTerminator([]byte("SSH-2.0-x\r\n"))
	require.True(t, ok)
	assert.Equal(t, "SSH-2.0-x", s)
}

func stepAsync(t *testing.T, s *Session) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Step(nil) }()
	return done
}

func waitFor(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not complete in time")
		return nil
	}
}

// TestSessionHappyPathRSA drives a Session through Attach, banner
// exchange, KEXINIT, and classic DH KEXDH_INIT/NEWKEYS using a
// scripted peer over net.Pipe, mirroring the happy-path handshake the
// transport state machine is meant to carry out end to end.
func TestSessionHappyPathRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	cfg := &Config{KeyExchanges: []string{kexAlgoDH14SHA1}}
	cfg.SetDefaults()
	s := NewSession(cfg, NewKeyLoader(), "SSH-2.0-corebound", nil)
	s.SetHostKey(HostKeyRSA, priv)

	attachErr := make(chan error, 1)
	go func() { attachErr <- s.Attach(serverConn) }()

	clientReader := bufio.NewReader(clientConn)
	bannerLine, err := clientReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SSH-2.0-corebound\r\n", bannerLine)
	require.NoError(t, <-attachErr)

	writeErr := make(chan error, 1)
	go func() {
		_, werr := clientConn.Write([]byte("SSH-2.0-testclient\r\n"))
		writeErr <- werr
	}()
	require.NoError(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)
	assert.Equal(t, StateInitialKex, s.State())

	clientPacketIO := NewPacketIO(rand.Reader)
	serverKexRaw, err := clientPacketIO.ReadPacket(clientReader)
	require.NoError(t, err)
	assert.Equal(t, byte(msgKexInit), serverKexRaw[0])

	clientInit := &KexInitMsg{
		KexAlgos:                []string{kexAlgoDH14SHA1},
		ServerHostKeyAlgos:      []string{hostAlgoRSA},
		CiphersClientServer:     defaultCiphers,
		CiphersServerClient:     defaultCiphers,
		MACsClientServer:        defaultMACs,
		MACsServerClient:        defaultMACs,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	go func() {
		writeErr <- clientPacketIO.WritePacket(clientConn, clientInit.marshal())
	}()
	require.NoError(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)
	assert.Equal(t, StateDh, s.State())

	peerCrypto, err := NewCrypto(kexAlgoDH14SHA1)
	require.NoError(t, err)
	y, err := peerCrypto.GenerateY(rand.Reader)
	require.NoError(t, err)
	f, err := peerCrypto.ComputeF(y)
	require.NoError(t, err)
	dhInit := append([]byte{msgKexDHInit}, appendMpintBytes(f)...)
	go func() { writeErr <- clientPacketIO.WritePacket(clientConn, dhInit) }()
	require.NoError(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)

	replyPayload, err := clientPacketIO.ReadPacket(clientReader)
	require.NoError(t, err)
	assert.Equal(t, byte(msgKexDHReply), replyPayload[0])
	newKeysPayload, err := clientPacketIO.ReadPacket(clientReader)
	require.NoError(t, err)
	assert.Equal(t, byte(msgNewKeys), newKeysPayload[0])

	go func() { writeErr <- clientPacketIO.WritePacket(clientConn, []byte{msgNewKeys}) }()
	require.NoError(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)

	assert.Equal(t, StateAuthenticating, s.State())
	assert.NotEmpty(t, s.SessionID())
	assert.Nil(t, s.hostKeyRSA)
	assert.Nil(t, s.hostKeyDSA)
}

// appendMpintBytes wraps appendMpint for a raw big-endian positive
// value, used only to build the scripted peer's KEXDH_INIT in tests.
func appendMpintBytes(b []byte) []byte {
	return appendMpint(nil, new(big.Int).SetBytes(b))
}

// TestHandlePeerKexInitFiresMismatchHookOnNegotiationFailure drives a
// KEXINIT exchange where the client offers no host-key algorithm the
// server supports, confirming the mismatch hook fires with the
// failing slot's name rather than the counter staying unreachable.
func TestHandlePeerKexInitFiresMismatchHookOnNegotiationFailure(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	cfg := &Config{KeyExchanges: []string{kexAlgoDH14SHA1}}
	cfg.SetDefaults()
	s := NewSession(cfg, NewKeyLoader(), "SSH-2.0-corebound", nil)
	s.SetHostKey(HostKeyRSA, priv)

	var gotSlot string
	s.SetMismatchHook(func(slot string) { gotSlot = slot })

	attachErr := make(chan error, 1)
	go func() { attachErr <- s.Attach(serverConn) }()

	clientReader := bufio.NewReader(clientConn)
	_, err = clientReader.ReadString('\n')
	require.NoError(t, err)
	require.NoError(t, <-attachErr)

	writeErr := make(chan error, 1)
	go func() {
		_, werr := clientConn.Write([]byte("SSH-2.0-testclient\r\n"))
		writeErr <- werr
	}()
	require.NoError(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)

	clientPacketIO := NewPacketIO(rand.Reader)
	_, err = clientPacketIO.ReadPacket(clientReader)
	require.NoError(t, err)

	clientInit := &KexInitMsg{
		KexAlgos:                []string{kexAlgoDH14SHA1},
		ServerHostKeyAlgos:      []string{hostAlgoDSA},
		CiphersClientServer:     defaultCiphers,
		CiphersServerClient:     defaultCiphers,
		MACsClientServer:        defaultMACs,
		MACsServerClient:        defaultMACs,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	go func() {
		writeErr <- clientPacketIO.WritePacket(clientConn, clientInit.marshal())
	}()
	require.Error(t, waitFor(t, stepAsync(t, s)))
	require.NoError(t, <-writeErr)

	assert.Equal(t, StateError, s.State())
	assert.Equal(t, "host key", gotSlot)
}
