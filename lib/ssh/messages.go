// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "math/big"

// Message numbers, RFC 4253 §12 and RFC 4252 §6 / RFC 4254 §9.
const (
	msgKexInit      = 20
	msgNewKeys      = 21
	msgKexDHInit    = 30
	msgKexDHReply   = 31
	msgDisconnect   = 1
	msgIgnore       = 2
	msgDebug        = 4
	msgServiceRequest = 5
	msgServiceAccept  = 6

	msgUserAuthRequest = 50
	msgUserAuthFailure = 51
	msgUserAuthSuccess = 52
	msgUserAuthPubKeyOK = 60

	msgChannelOpen        = 90
	msgChannelOpenFailure = 92
	msgChannelRequest     = 98
	msgChannelSuccess     = 99
	msgChannelFailure     = 100
)

// channelOpenFailureReason values, RFC 4254 §5.1.
const (
	administrativelyProhibited uint32 = 1
)

// KexInitMsg is the algorithm-preference packet exchanged by both
// sides at the start of every key exchange (§3 KexContext / §4.7).
type KexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

func (m *KexInitMsg) marshal() []byte {
	buf := []byte{msgKexInit}
	buf = append(buf, m.Cookie[:]...)
	buf = appendNameList(buf, m.KexAlgos)
	buf = appendNameList(buf, m.ServerHostKeyAlgos)
	buf = appendNameList(buf, m.CiphersClientServer)
	buf = appendNameList(buf, m.CiphersServerClient)
	buf = appendNameList(buf, m.MACsClientServer)
	buf = appendNameList(buf, m.MACsServerClient)
	buf = appendNameList(buf, m.CompressionClientServer)
	buf = appendNameList(buf, m.CompressionServerClient)
	buf = appendNameList(buf, m.LanguagesClientServer)
	buf = appendNameList(buf, m.LanguagesServerClient)
	buf = appendBool(buf, m.FirstKexFollows)
	buf = appendU32(buf, m.Reserved)
	return buf
}

func parseKexInitMsg(payload []byte) (*KexInitMsg, error) {
	if len(payload) < 1 || payload[0] != msgKexInit {
		return nil, parseErrorf(msgKexInit, "bad tag")
	}
	data := payload[1:]
	m := &KexInitMsg{}
	if len(data) < 16 {
		return nil, parseErrorf(msgKexInit, "short cookie")
	}
	copy(m.Cookie[:], data[:16])
	data = data[16:]

	fields := []*[]string{
		&m.KexAlgos, &m.ServerHostKeyAlgos,
		&m.CiphersClientServer, &m.CiphersServerClient,
		&m.MACsClientServer, &m.MACsServerClient,
		&m.CompressionClientServer, &m.CompressionServerClient,
		&m.LanguagesClientServer, &m.LanguagesServerClient,
	}
	var err error
	for _, f := range fields {
		*f, data, err = parseNameList(data)
		if err != nil {
			return nil, parseErrorf(msgKexInit, "%v", err)
		}
	}
	m.FirstKexFollows, data, err = parseBool(data)
	if err != nil {
		return nil, parseErrorf(msgKexInit, "%v", err)
	}
	m.Reserved, _, err = parseUint32(data)
	if err != nil {
		return nil, parseErrorf(msgKexInit, "%v", err)
	}
	return m, nil
}

// kexDHInitMsg carries the client's DH public value e (KEXDH_INIT,
// RFC 4253 §8).
type kexDHInitMsg struct {
	X *big.Int // e
}

func parseKexDHInitMsg(payload []byte) (*kexDHInitMsg, error) {
	if len(payload) < 1 || payload[0] != msgKexDHInit {
		return nil, parseErrorf(msgKexDHInit, "bad tag")
	}
	e, _, err := parseMpint(payload[1:])
	if err != nil {
		return nil, parseErrorf(msgKexDHInit, "%v", err)
	}
	return &kexDHInitMsg{X: e}, nil
}

// kexDHReplyMsg is the server's signed KEXDH_REPLY (§4.2 step 10).
type kexDHReplyMsg struct {
	HostKey   []byte
	Y         *big.Int // f
	Signature []byte
}

func (m *kexDHReplyMsg) marshal() []byte {
	buf := []byte{msgKexDHReply}
	buf = appendBytes(buf, m.HostKey)
	buf = appendMpint(buf, m.Y)
	buf = appendBytes(buf, m.Signature)
	return buf
}

// kexECDHInitMsg / kexECDHReplyMsg carry opaque (non-mpint) public
// values for curve25519-sha256, per §4.2's supplemental kex method.
type kexECDHInitMsg struct {
	ClientPub []byte
}

func parseKexECDHInitMsg(payload []byte) (*kexECDHInitMsg, error) {
	if len(payload) < 1 || payload[0] != msgKexDHInit {
		return nil, parseErrorf(msgKexDHInit, "bad tag")
	}
	pub, _, err := parseBytes(payload[1:])
	if err != nil {
		return nil, parseErrorf(msgKexDHInit, "%v", err)
	}
	return &kexECDHInitMsg{ClientPub: pub}, nil
}

type kexECDHReplyMsg struct {
	HostKey   []byte
	ServerPub []byte
	Signature []byte
}

func (m *kexECDHReplyMsg) marshal() []byte {
	buf := []byte{msgKexDHReply}
	buf = appendBytes(buf, m.HostKey)
	buf = appendBytes(buf, m.ServerPub)
	buf = appendBytes(buf, m.Signature)
	return buf
}

func newKeysMsg() []byte { return []byte{msgNewKeys} }

// serviceRequestMsg / serviceAcceptMsg, RFC 4253 §10.
type serviceRequestMsg struct {
	Service string
}

func parseServiceRequestMsg(payload []byte) (*serviceRequestMsg, error) {
	if len(payload) < 1 || payload[0] != msgServiceRequest {
		return nil, parseErrorf(msgServiceRequest, "bad tag")
	}
	s, _, err := parseString(payload[1:])
	if err != nil {
		return nil, parseErrorf(msgServiceRequest, "%v", err)
	}
	return &serviceRequestMsg{Service: s}, nil
}

func marshalServiceAccept(service string) []byte {
	buf := []byte{msgServiceAccept}
	return appendString(buf, service)
}

// userAuthRequestMsg, RFC 4252 §5. The method-specific remainder
// (§7 publickey, §8 password) is decoded into the typed fields below
// rather than left as an opaque trailer; a method this engine doesn't
// recognize leaves them at their zero value and the raw trailer is
// still available via Payload for an embedder handling it directly.
type userAuthRequestMsg struct {
	User    string
	Service string
	Method  string
	Payload []byte

	// Password method (RFC 4252 §8).
	ChangePassword bool
	Password       string
	NewPassword    string

	// Publickey method (RFC 4252 §7).
	HasSignature bool
	PubKeyAlgo   string
	PubKeyBlob   []byte
	Signature    []byte
}

func parseUserAuthRequestMsg(payload []byte) (*userAuthRequestMsg, error) {
	if len(payload) < 1 || payload[0] != msgUserAuthRequest {
		return nil, parseErrorf(msgUserAuthRequest, "bad tag")
	}
	data := payload[1:]
	m := &userAuthRequestMsg{}
	var err error
	m.User, data, err = parseString(data)
	if err != nil {
		return nil, parseErrorf(msgUserAuthRequest, "%v", err)
	}
	m.Service, data, err = parseString(data)
	if err != nil {
		return nil, parseErrorf(msgUserAuthRequest, "%v", err)
	}
	m.Method, data, err = parseString(data)
	if err != nil {
		return nil, parseErrorf(msgUserAuthRequest, "%v", err)
	}
	m.Payload = data

	switch m.Method {
	case "password":
		m.ChangePassword, data, err = parseBool(data)
		if err != nil {
			return nil, parseErrorf(msgUserAuthRequest, "password flag: %v", err)
		}
		m.Password, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgUserAuthRequest, "password: %v", err)
		}
		if m.ChangePassword {
			m.NewPassword, data, err = parseString(data)
			if err != nil {
				return nil, parseErrorf(msgUserAuthRequest, "new password: %v", err)
			}
		}
	case "publickey":
		m.HasSignature, data, err = parseBool(data)
		if err != nil {
			return nil, parseErrorf(msgUserAuthRequest, "signature flag: %v", err)
		}
		m.PubKeyAlgo, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgUserAuthRequest, "pubkey algo: %v", err)
		}
		m.PubKeyBlob, data, err = parseBytes(data)
		if err != nil {
			return nil, parseErrorf(msgUserAuthRequest, "pubkey blob: %v", err)
		}
		if m.HasSignature {
			m.Signature, data, err = parseBytes(data)
			if err != nil {
				return nil, parseErrorf(msgUserAuthRequest, "signature: %v", err)
			}
		}
	}
	return m, nil
}

func marshalUserAuthFailure(methods []string, partial bool) []byte {
	buf := []byte{msgUserAuthFailure}
	buf = appendNameList(buf, methods)
	buf = appendBool(buf, partial)
	return buf
}

func marshalUserAuthSuccess() []byte { return []byte{msgUserAuthSuccess} }

func marshalUserAuthPubKeyOK(algo string, pubKey []byte) []byte {
	buf := []byte{msgUserAuthPubKeyOK}
	buf = appendString(buf, algo)
	buf = appendBytes(buf, pubKey)
	return buf
}

// channelOpenMsg, RFC 4254 §5.1. Origin/Destination(Port) are decoded
// for the "direct-tcpip" and "forwarded-tcpip" channel types; they are
// left at their zero value for "session" and other types that carry
// no type-specific data. TypeSpecificData keeps the raw trailer for
// channel types this engine doesn't specifically decode.
type channelOpenMsg struct {
	ChanType         string
	PeersID          uint32
	PeersWindow      uint32
	MaxPacketSize    uint32
	TypeSpecificData []byte

	Destination     string
	DestinationPort uint32
	Origin          string
	OriginPort      uint32
}

func parseChannelOpenMsg(payload []byte) (*channelOpenMsg, error) {
	if len(payload) < 1 || payload[0] != msgChannelOpen {
		return nil, parseErrorf(msgChannelOpen, "bad tag")
	}
	data := payload[1:]
	m := &channelOpenMsg{}
	var err error
	m.ChanType, data, err = parseString(data)
	if err != nil {
		return nil, parseErrorf(msgChannelOpen, "%v", err)
	}
	m.PeersID, data, err = parseUint32(data)
	if err != nil {
		return nil, parseErrorf(msgChannelOpen, "%v", err)
	}
	m.PeersWindow, data, err = parseUint32(data)
	if err != nil {
		return nil, parseErrorf(msgChannelOpen, "%v", err)
	}
	m.MaxPacketSize, data, err = parseUint32(data)
	if err != nil {
		return nil, parseErrorf(msgChannelOpen, "%v", err)
	}
	m.TypeSpecificData = data

	switch m.ChanType {
	case "direct-tcpip", "forwarded-tcpip":
		m.Destination, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelOpen, "destination host: %v", err)
		}
		m.DestinationPort, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelOpen, "destination port: %v", err)
		}
		m.Origin, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelOpen, "origin host: %v", err)
		}
		m.OriginPort, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelOpen, "origin port: %v", err)
		}
	}
	return m, nil
}

func marshalChannelOpenFailure(peersID, reason uint32, message, lang string) []byte {
	buf := []byte{msgChannelOpenFailure}
	buf = appendU32(buf, peersID)
	buf = appendU32(buf, reason)
	buf = appendString(buf, message)
	buf = appendString(buf, lang)
	return buf
}

// channelRequestMsg, RFC 4254 §6.2 (pty-req), §6.4 (env), §6.5 (exec),
// §6.9 (subsystem), §6.10 (window-change). Payload keeps the raw
// trailer for request types this engine doesn't specifically decode.
type channelRequestMsg struct {
	RecipientChannel uint32
	RequestType      string
	WantReply        bool
	Payload          []byte

	Term             string
	Width            uint32
	Height           uint32
	PixelWidth       uint32
	PixelHeight      uint32
	TerminalModes    []byte
	EnvName          string
	EnvValue         string
	Command          string
	Subsystem        string
}

func parseChannelRequestMsg(payload []byte) (*channelRequestMsg, error) {
	if len(payload) < 1 || payload[0] != msgChannelRequest {
		return nil, parseErrorf(msgChannelRequest, "bad tag")
	}
	data := payload[1:]
	m := &channelRequestMsg{}
	var err error
	m.RecipientChannel, data, err = parseUint32(data)
	if err != nil {
		return nil, parseErrorf(msgChannelRequest, "%v", err)
	}
	m.RequestType, data, err = parseString(data)
	if err != nil {
		return nil, parseErrorf(msgChannelRequest, "%v", err)
	}
	m.WantReply, data, err = parseBool(data)
	if err != nil {
		return nil, parseErrorf(msgChannelRequest, "%v", err)
	}
	m.Payload = data

	switch m.RequestType {
	case "pty-req":
		m.Term, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "term: %v", err)
		}
		m.Width, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "width: %v", err)
		}
		m.Height, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "height: %v", err)
		}
		m.PixelWidth, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "pixel width: %v", err)
		}
		m.PixelHeight, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "pixel height: %v", err)
		}
		m.TerminalModes, data, err = parseBytes(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "terminal modes: %v", err)
		}
	case "window-change":
		m.Width, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "width: %v", err)
		}
		m.Height, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "height: %v", err)
		}
		m.PixelWidth, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "pixel width: %v", err)
		}
		m.PixelHeight, data, err = parseUint32(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "pixel height: %v", err)
		}
	case "env":
		m.EnvName, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "env name: %v", err)
		}
		m.EnvValue, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "env value: %v", err)
		}
	case "exec":
		m.Command, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "command: %v", err)
		}
	case "subsystem":
		m.Subsystem, data, err = parseString(data)
		if err != nil {
			return nil, parseErrorf(msgChannelRequest, "subsystem: %v", err)
		}
	}
	return m, nil
}

func marshalChannelFailure(recipientChannel uint32) []byte {
	buf := []byte{msgChannelFailure}
	return appendU32(buf, recipientChannel)
}
