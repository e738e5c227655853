// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKexInitMsgRoundTrip(t *testing.T) {
	m := &KexInitMsg{
		KexAlgos:                []string{kexAlgoCurve25519, kexAlgoDH14SHA1},
		ServerHostKeyAlgos:      []string{hostAlgoRSA},
		CiphersClientServer:     defaultCiphers,
		CiphersServerClient:     defaultCiphers,
		MACsClientServer:        defaultMACs,
		MACsServerClient:        defaultMACs,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	for i := range m.Cookie {
		m.Cookie[i] = byte(i)
	}

	buf := m.marshal()
	got, err := parseKexInitMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, m.Cookie, got.Cookie)
	assert.Equal(t, m.KexAlgos, got.KexAlgos)
	assert.Equal(t, m.ServerHostKeyAlgos, got.ServerHostKeyAlgos)
	assert.False(t, got.FirstKexFollows)
}

func TestParseKexInitMsgBadTag(t *testing.T) {
	_, err := parseKexInitMsg([]byte{0})
	assert.Error(t, err)
}

func TestParseKexDHInitMsg(t *testing.T) {
	e := big.NewInt(12345)
	buf := append([]byte{msgKexDHInit}, appendMpint(nil, e)...)
	m, err := parseKexDHInitMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Cmp(m.X))
}

func TestKexDHReplyMsgMarshal(t *testing.T) {
	m := &kexDHReplyMsg{
		HostKey:   []byte("host-key-blob"),
		Y:         big.NewInt(999),
		Signature: []byte("sig"),
	}
	buf := m.marshal()
	require.Equal(t, byte(msgKexDHReply), buf[0])

	hostKey, rest, err := parseBytes(buf[1:])
	require.NoError(t, err)
	assert.Equal(t, []byte("host-key-blob"), hostKey)

	y, rest, err := parseMpint(rest)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(999).Cmp(y))

	sig, _, err := parseBytes(rest)
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), sig)
}

func TestServiceRequestRoundTrip(t *testing.T) {
	buf := appendString([]byte{msgServiceRequest}, serviceUserAuth)
	m, err := parseServiceRequestMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, serviceUserAuth, m.Service)
}

func TestMarshalServiceAccept(t *testing.T) {
	buf := marshalServiceAccept(serviceUserAuth)
	require.Equal(t, byte(msgServiceAccept), buf[0])
	s, _, err := parseString(buf[1:])
	require.NoError(t, err)
	assert.Equal(t, serviceUserAuth, s)
}

func TestUserAuthRequestMsgRoundTrip(t *testing.T) {
	buf := []byte{msgUserAuthRequest}
	buf = appendString(buf, "alice")
	buf = appendString(buf, serviceSSH)
	buf = appendString(buf, "password")
	trailer := appendString(appendBool(nil, false), "secret")
	buf = append(buf, trailer...)

	m, err := parseUserAuthRequestMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.User)
	assert.Equal(t, serviceSSH, m.Service)
	assert.Equal(t, "password", m.Method)
	assert.Equal(t, trailer, m.Payload)
}

func TestChannelOpenMsgRoundTrip(t *testing.T) {
	buf := []byte{msgChannelOpen}
	buf = appendString(buf, "session")
	buf = appendU32(buf, 7)
	buf = appendU32(buf, 32768)
	buf = appendU32(buf, 16384)

	m, err := parseChannelOpenMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, "session", m.ChanType)
	assert.EqualValues(t, 7, m.PeersID)
	assert.EqualValues(t, 32768, m.PeersWindow)
	assert.EqualValues(t, 16384, m.MaxPacketSize)
}

func TestChannelRequestMsgRoundTrip(t *testing.T) {
	buf := []byte{msgChannelRequest}
	buf = appendU32(buf, 3)
	buf = appendString(buf, "exec")
	buf = appendBool(buf, true)
	buf = appendString(buf, "ls -la")

	m, err := parseChannelRequestMsg(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 3, m.RecipientChannel)
	assert.Equal(t, "exec", m.RequestType)
	assert.True(t, m.WantReply)
}
