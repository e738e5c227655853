// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipedSession builds a Session wired directly to one end of a
// net.Pipe, skipping the banner/KEXINIT/DH handshake entirely:
// DispatchOne only depends on packetIO/conn/br, which this sets up
// by hand so dispatch behavior can be tested in isolation.
func newPipedSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	cfg := &Config{}
	cfg.SetDefaults()
	s := NewSession(cfg, NewKeyLoader(), "SSH-2.0-corebound", nil)
	s.conn = serverConn
	s.br = bufio.NewReader(serverConn)
	s.packetIO = NewPacketIO(rand.Reader)
	s.connected = true
	s.alive = true
	s.state = StateAuthenticating
	return s, clientConn
}

func TestDispatchOneDefaultAuthFailure(t *testing.T) {
	s, clientConn := newPipedSession(t)
	d := NewDispatcher(s)

	payload := []byte{msgUserAuthRequest}
	payload = appendString(payload, "root")
	payload = appendString(payload, serviceSSH)
	payload = appendString(payload, "password")
	payload = appendBool(payload, false)
	payload = appendString(payload, "hunter2")
	clientIO := NewPacketIO(rand.Reader)
	writeErr := make(chan error, 1)
	go func() { writeErr <- clientIO.WritePacket(clientConn, payload) }()

	dispatchErr := make(chan error, 1)
	go func() { dispatchErr <- d.DispatchOne() }()

	require.NoError(t, <-writeErr)
	require.NoError(t, <-dispatchErr)

	reply, err := clientIO.ReadPacket(clientConn)
	require.NoError(t, err)
	assert.Equal(t, byte(msgUserAuthFailure), reply[0])
}

func TestDispatchOneCallbackHandledSkipsDefaultReply(t *testing.T) {
	s, clientConn := newPipedSession(t)
	d := NewDispatcher(s)
	called := false
	d.SetCallback(func(msg *Message) CallbackResult {
		called = true
		assert.Equal(t, KindServiceRequest, msg.Kind)
		return Handled
	})

	payload := []byte{msgServiceRequest}
	payload = appendString(payload, serviceUserAuth)
	clientIO := NewPacketIO(rand.Reader)
	writeErr := make(chan error, 1)
	go func() { writeErr <- clientIO.WritePacket(clientConn, payload) }()

	dispatchErr := make(chan error, 1)
	go func() { dispatchErr <- d.DispatchOne() }()

	require.NoError(t, <-writeErr)
	require.NoError(t, <-dispatchErr)
	assert.True(t, called)
}

func TestReplyDefaultChannelRequestNoReplyIsNoop(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)
	msg := &Message{
		Kind:           KindChannelRequest,
		Session:        s,
		ChannelRequest: &ChannelRequestData{RecipientChannel: 1, RequestType: "exec", WantReply: false},
	}
	assert.NoError(t, d.replyDefault(msg))
}

func TestReplyDefaultServiceRequestSendsAccept(t *testing.T) {
	s, clientConn := newPipedSession(t)
	d := NewDispatcher(s)
	msg := &Message{Kind: KindServiceRequest, Session: s, ServiceRequest: &ServiceRequestData{Service: serviceUserAuth}}

	doneErr := make(chan error, 1)
	go func() { doneErr <- d.replyDefault(msg) }()

	clientIO := NewPacketIO(rand.Reader)
	reply, err := clientIO.ReadPacket(clientConn)
	require.NoError(t, err)
	require.NoError(t, <-doneErr)
	assert.Equal(t, byte(msgServiceAccept), reply[0])
}

func TestAuthReplySuccessSendsSuccessMessage(t *testing.T) {
	s, clientConn := newPipedSession(t)
	d := NewDispatcher(s)

	doneErr := make(chan error, 1)
	go func() { doneErr <- d.AuthReplySuccess(false) }()

	clientIO := NewPacketIO(rand.Reader)
	reply, err := clientIO.ReadPacket(clientConn)
	require.NoError(t, err)
	require.NoError(t, <-doneErr)
	assert.Equal(t, byte(msgUserAuthSuccess), reply[0])
}

func TestAuthReplyPubKeyOKSendsPKOK(t *testing.T) {
	s, clientConn := newPipedSession(t)
	d := NewDispatcher(s)

	doneErr := make(chan error, 1)
	go func() { doneErr <- d.AuthReplyPubKeyOK(hostAlgoRSA, []byte("blob")) }()

	clientIO := NewPacketIO(rand.Reader)
	reply, err := clientIO.ReadPacket(clientConn)
	require.NoError(t, err)
	require.NoError(t, <-doneErr)
	assert.Equal(t, byte(msgUserAuthPubKeyOK), reply[0])
}

func TestParseMessageDecodesPasswordAuthRequest(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)

	payload := []byte{msgUserAuthRequest}
	payload = appendString(payload, "root")
	payload = appendString(payload, serviceSSH)
	payload = appendString(payload, "password")
	payload = appendBool(payload, false)
	payload = appendString(payload, "hunter2")

	msg, err := d.parseMessage(payload)
	require.NoError(t, err)
	require.Equal(t, KindAuthRequest, msg.Kind)
	assert.Equal(t, "root", msg.AuthRequest.User)
	assert.Equal(t, "password", msg.AuthRequest.Method)
	assert.False(t, msg.AuthRequest.ChangePassword)
	assert.Equal(t, "hunter2", msg.AuthRequest.Password)
}

func TestParseMessageDecodesPublicKeyAuthRequest(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)

	payload := []byte{msgUserAuthRequest}
	payload = appendString(payload, "root")
	payload = appendString(payload, serviceSSH)
	payload = appendString(payload, "publickey")
	payload = appendBool(payload, true)
	payload = appendString(payload, hostAlgoRSA)
	payload = appendBytes(payload, []byte("pubkey-blob"))
	payload = appendBytes(payload, []byte("sig-blob"))

	msg, err := d.parseMessage(payload)
	require.NoError(t, err)
	require.Equal(t, KindAuthRequest, msg.Kind)
	assert.True(t, msg.AuthRequest.HasSignature)
	assert.Equal(t, hostAlgoRSA, msg.AuthRequest.PubKeyAlgo)
	assert.Equal(t, []byte("pubkey-blob"), msg.AuthRequest.PubKeyBlob)
	assert.Equal(t, []byte("sig-blob"), msg.AuthRequest.Signature)
}

func TestParseMessageDecodesDirectTCPIPChannelOpen(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)

	payload := []byte{msgChannelOpen}
	payload = appendString(payload, "direct-tcpip")
	payload = appendU32(payload, 1)
	payload = appendU32(payload, 2097152)
	payload = appendU32(payload, 32768)
	payload = appendString(payload, "example.com")
	payload = appendU32(payload, 443)
	payload = appendString(payload, "10.0.0.1")
	payload = appendU32(payload, 54321)

	msg, err := d.parseMessage(payload)
	require.NoError(t, err)
	require.Equal(t, KindChannelOpen, msg.Kind)
	assert.Equal(t, "example.com", msg.ChannelOpen.Destination)
	assert.Equal(t, uint32(443), msg.ChannelOpen.DestinationPort)
	assert.Equal(t, "10.0.0.1", msg.ChannelOpen.Origin)
	assert.Equal(t, uint32(54321), msg.ChannelOpen.OriginPort)
}

func TestParseMessageDecodesPTYChannelRequest(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)

	payload := []byte{msgChannelRequest}
	payload = appendU32(payload, 0)
	payload = appendString(payload, "pty-req")
	payload = appendBool(payload, false)
	payload = appendString(payload, "xterm-256color")
	payload = appendU32(payload, 80)
	payload = appendU32(payload, 24)
	payload = appendU32(payload, 640)
	payload = appendU32(payload, 480)
	payload = appendBytes(payload, []byte{})

	msg, err := d.parseMessage(payload)
	require.NoError(t, err)
	require.Equal(t, KindChannelRequest, msg.Kind)
	assert.Equal(t, "xterm-256color", msg.ChannelRequest.Term)
	assert.Equal(t, uint32(80), msg.ChannelRequest.Width)
	assert.Equal(t, uint32(24), msg.ChannelRequest.Height)
}

func TestParseMessageDecodesExecAndSubsystemChannelRequests(t *testing.T) {
	s, _ := newPipedSession(t)
	d := NewDispatcher(s)

	execPayload := []byte{msgChannelRequest}
	execPayload = appendU32(execPayload, 0)
	execPayload = appendString(execPayload, "exec")
	execPayload = appendBool(execPayload, true)
	execPayload = appendString(execPayload, "uname -a")

	msg, err := d.parseMessage(execPayload)
	require.NoError(t, err)
	assert.Equal(t, "uname -a", msg.ChannelRequest.Command)

	subPayload := []byte{msgChannelRequest}
	subPayload = appendU32(subPayload, 0)
	subPayload = appendString(subPayload, "subsystem")
	subPayload = appendBool(subPayload, true)
	subPayload = appendString(subPayload, "sftp")

	msg, err = d.parseMessage(subPayload)
	require.NoError(t, err)
	assert.Equal(t, "sftp", msg.ChannelRequest.Subsystem)
}
