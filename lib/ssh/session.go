// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// TransportState is the session-wide state machine of §4.3.
type TransportState int

const (
	StateNone TransportState = iota
	StateConnecting
	StateSocketConnected
	StateBannerReceived
	StateInitialKex
	StateKexinitReceived
	StateDh
	StateAuthenticating
	StateError
	StateDisconnected
)

func (s TransportState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateSocketConnected:
		return "socket-connected"
	case StateBannerReceived:
		return "banner-received"
	case StateInitialKex:
		return "initial-kex"
	case StateKexinitReceived:
		return "kexinit-received"
	case StateDh:
		return "dh"
	case StateAuthenticating:
		return "authenticating"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// phase selects which byte-level reader the pump dispatches to (§9):
// banner reading before packet framing begins, packet reading after.
type phase int

const (
	phaseBanner phase = iota
	phasePacket
)

// ProgressFunc observes the session's transport-state progress, §4.3's
// 0.0->1.0 hook. Embedders commonly wire this to a metrics collector.
type ProgressFunc func(fraction float64)

// MismatchFunc observes a failed algorithm negotiation, naming the
// slot (kex, host key, cipher, MAC, compression) that had no
// intersection between server and client offers.
type MismatchFunc func(slot string)

// cryptoContext holds one direction-pair of derived session secrets,
// the "current"/"next" crypto contexts of §3: pre-KEX current is nil
// and next is being built; on NEWKEYS current is dropped and next
// promoted, with a fresh nil next replacing it.
type cryptoContext struct {
	keys sessionKeys
}

const maxBannerLength = 128

// Session is the per-connection transport state machine: banner
// exchange, KEXINIT negotiation, server-role DH key exchange, and
// cutover to encrypted transport. Authentication and channel messages
// beyond this point are the Dispatcher's responsibility (dispatch.go).
type Session struct {
	log  *log.Entry
	conn net.Conn
	br   *bufio.Reader

	cfg      *Config
	loader   KeyLoader
	packetIO PacketIO
	progress ProgressFunc
	mismatch MismatchFunc

	localBanner string
	peerBanner  string

	hostKeyRSA interface{}
	hostKeyDSA interface{}

	state TransportState
	phase phase

	kex               *KexContext
	serverKexInitRaw  []byte
	clientKexInitRaw  []byte
	current           *cryptoContext
	next              *cryptoContext
	sessionID         []byte

	connected bool
	alive     bool
	lastErr   error

	callback         MessageCallback
	callbackUserData interface{}
	queue            []*Message
}

// NewSession constructs an unattached Session; Listener.Accept wires
// in the socket, host keys, and configured preferences (§4.1).
func NewSession(cfg *Config, loader KeyLoader, localBanner string, logger *log.Entry) *Session {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Session{
		cfg:         cfg,
		loader:      loader,
		localBanner: localBanner,
		log:         logger,
		state:       StateNone,
		phase:       phaseBanner,
	}
}

// SetProgressHook installs the observer called at each transition.
func (s *Session) SetProgressHook(f ProgressFunc) { s.progress = f }

// SetMismatchHook installs the observer called when KEXINIT
// negotiation fails to agree on an algorithm for some slot.
func (s *Session) SetMismatchHook(f MismatchFunc) { s.mismatch = f }

func (s *Session) emit(fraction float64) {
	if s.progress != nil {
		s.progress(fraction)
	}
}

func (s *Session) emitMismatch(slot string) {
	if s.mismatch != nil {
		s.mismatch(slot)
	}
}

// SetHostKey installs a loaded private key into the named slot.
func (s *Session) SetHostKey(t HostKeyType, priv interface{}) {
	switch t {
	case HostKeyRSA:
		s.hostKeyRSA = priv
	case HostKeyDSA:
		s.hostKeyDSA = priv
	}
}

// hostKeyAlgos computes the default host-key algorithm preference list
// from which slots are populated (§4.7): both -> ssh-dss,ssh-rsa; DSA
// only -> ssh-dss; RSA only -> ssh-rsa.
func (s *Session) hostKeyAlgos() []string {
	if s.cfg.HostKeyAlgos != nil {
		return s.cfg.HostKeyAlgos
	}
	switch {
	case s.hostKeyDSA != nil && s.hostKeyRSA != nil:
		return []string{hostAlgoDSA, hostAlgoRSA}
	case s.hostKeyDSA != nil:
		return []string{hostAlgoDSA}
	case s.hostKeyRSA != nil:
		return []string{hostAlgoRSA}
	default:
		return nil
	}
}

func (s *Session) privateKeyFor(algo string) (interface{}, HostKeyType) {
	switch algo {
	case hostAlgoRSA:
		return s.hostKeyRSA, HostKeyRSA
	case hostAlgoDSA:
		return s.hostKeyDSA, HostKeyDSA
	default:
		return nil, 0
	}
}

// Attach binds the accepted connection to the session, sends the local
// banner immediately (before any packet framing, per §4.4), and moves
// the session into SocketConnected.
func (s *Session) Attach(conn net.Conn) error {
	s.conn = conn
	s.br = bufio.NewReader(conn)
	s.packetIO = NewPacketIO(s.cfg.Rand)
	s.alive = true
	s.state = StateConnecting

	if _, err := fmt.Fprintf(conn, "%s\r\n", s.localBanner); err != nil {
		return s.fail(wrapError(KindSocketIO, "write banner", err))
	}
	s.connected = true
	s.state = StateSocketConnected
	return nil
}

// fail transitions the session to Error, closes the socket, and
// records the last-error slot (§7's propagation policy).
func (s *Session) fail(err error) error {
	s.state = StateError
	s.alive = false
	s.lastErr = err
	if s.conn != nil {
		s.conn.Close()
	}
	s.log.WithError(err).Debug("session transport error")
	return err
}

// LastError returns the fatal reason the session moved to Error, or
// nil if the session has not failed.
func (s *Session) LastError() error { return s.lastErr }

// State returns the current transport state.
func (s *Session) State() TransportState { return s.state }

// Alive reports whether the session's socket is still usable.
func (s *Session) Alive() bool { return s.alive }

// Connected reports whether Attach has been called successfully.
func (s *Session) Connected() bool { return s.connected }

// SessionID returns the exchange hash of the first KEX, fixed for the
// session's lifetime once assigned (§3's session-id invariant).
func (s *Session) SessionID() []byte { return s.sessionID }

// Step performs one unit of progress in the pre-auth handshake: it
// blocks until one callback fires (a banner, or one parsed packet),
// matching pump_packets' per-call contract (§4.6). The Connection
// Driver calls Step in a loop while State() is none of
// {Error, Authenticating, Disconnected}.
func (s *Session) Step(ctx context.Context) error {
	switch s.phase {
	case phaseBanner:
		return s.stepBanner()
	default:
		return s.stepPacket(ctx)
	}
}

// stepBanner reads the peer's identification line a byte at a time
// (§4.4): '\r' is dropped (converted to terminator), '\n' finalizes
// the banner. A banner exceeding 128 bytes without a terminating '\n'
// is a fatal BannerTooLarge.
func (s *Session) stepBanner() error {
	var raw []byte
	for {
		b, err := s.br.ReadByte()
		if err != nil {
			return s.fail(wrapError(KindSocketIO, "read banner", err))
		}
		if len(raw) >= maxBannerLength {
			return s.fail(newError(KindBannerTooLarge, "peer banner exceeds 128 bytes"))
		}
		raw = append(raw, b)
		if b == '\n' {
			break
		}
	}

	banner, ok := trimBannerTerminator(raw)
	if !ok {
		return s.fail(newError(KindBannerMalformed, "peer banner missing newline terminator"))
	}
	if len(banner) < 4 || banner[:4] != "SSH-" {
		return s.fail(newError(KindBannerMalformed, "peer banner is not an SSH identification string"))
	}
	if len(banner) < 7 || banner[4:7] != "2.0" {
		return s.fail(newError(KindProtocolVersion, "peer does not support SSH2: "+banner))
	}

	s.peerBanner = banner
	s.state = StateBannerReceived
	s.emit(0.4)
	return s.sendKexInit()
}

// trimBannerTerminator strips a trailing "\r\n" or "\n" and reports
// whether a terminator was present at all.
func trimBannerTerminator(raw []byte) (string, bool) {
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		return "", false
	}
	raw = raw[:len(raw)-1]
	if len(raw) > 0 && raw[len(raw)-1] == '\r' {
		raw = raw[:len(raw)-1]
	}
	return string(raw), true
}

// parseBanner is the pure, buffer-oriented counterpart to stepBanner,
// exercised directly by table-driven tests (§8's banner round-trip
// property): given a byte slice, it returns the parsed banner and how
// many bytes were consumed "up to and including \n", or an error.
func parseBanner(buf []byte) (banner string, consumed int, complete bool, err error) {
	var out []byte
	for i, b := range buf {
		if i >= maxBannerLength {
			return "", 0, false, newError(KindBannerTooLarge, "banner exceeds 128 bytes")
		}
		switch b {
		case '\r':
			continue
		case '\n':
			return string(out), i + 1, true, nil
		default:
			out = append(out, b)
		}
	}
	if len(buf) >= maxBannerLength {
		return "", 0, false, newError(KindBannerTooLarge, "banner exceeds 128 bytes")
	}
	return "", 0, false, nil
}

// sendKexInit emits the server's KEXINIT (§4.3: BannerReceived ->
// emit KEXINIT -> InitialKex) and installs the packet phase.
func (s *Session) sendKexInit() error {
	kc, err := newKexContext(s.cfg, s.hostKeyAlgos())
	if err != nil {
		return s.fail(err)
	}
	s.kex = kc
	s.serverKexInitRaw = kc.ServerInit.marshal()

	if err := s.packetIO.WritePacket(s.conn, s.serverKexInitRaw); err != nil {
		return s.fail(wrapError(KindSocketIO, "write KEXINIT", err))
	}
	s.phase = phasePacket
	s.state = StateInitialKex
	s.emit(0.5)
	return nil
}

// stepPacket reads one full packet and routes it according to the
// current transport state.
func (s *Session) stepPacket(ctx context.Context) error {
	payload, err := s.packetIO.ReadPacket(s.br)
	if err != nil {
		return s.fail(wrapError(KindPacketEncoding, "read packet", err))
	}
	if len(payload) == 0 {
		return s.fail(newError(KindPacketEncoding, "empty packet"))
	}

	switch s.state {
	case StateInitialKex, StateKexinitReceived:
		return s.handlePeerKexInit(payload)
	case StateDh:
		if payload[0] == msgNewKeys {
			return s.handleNewKeys(payload)
		}
		return s.handleDhPacket(payload)
	default:
		return s.fail(newError(KindKexProtocol, "unexpected packet in state "+s.state.String()))
	}
}

func (s *Session) handlePeerKexInit(payload []byte) error {
	if payload[0] != msgKexInit {
		return s.fail(newError(KindKexProtocol, "expected KEXINIT"))
	}
	clientInit, err := parseKexInitMsg(payload)
	if err != nil {
		return s.fail(wrapError(KindKexProtocol, "parse peer KEXINIT", err))
	}
	s.clientKexInitRaw = payload
	s.state = StateKexinitReceived
	s.emit(0.6)

	if err := s.kex.negotiate(clientInit); err != nil {
		var sshErr *Error
		if errors.As(err, &sshErr) && sshErr.Kind == KindAlgorithmMismatch {
			s.emitMismatch(sshErr.Slot)
		}
		return s.fail(err)
	}
	s.emit(0.8)
	s.state = StateDh
	return nil
}

func (s *Session) handleDhPacket(payload []byte) error {
	priv, hkType := s.privateKeyFor(s.kex.Algorithms.HostKey)

	in := kexReplyInputs{
		clientBanner:   []byte(s.peerBanner),
		serverBanner:   []byte(s.localBanner),
		clientKexInit:  s.clientKexInitRaw,
		serverKexInit:  s.serverKexInitRaw,
		hostKeyPriv:    priv,
		hostKeyType:    hkType,
		loader:         s.loader,
		rand:           s.cfg.Rand,
	}

	var reply []byte
	var H []byte
	var err error
	if payload[0] != msgKexDHInit {
		return s.fail(newError(KindKexProtocol, "unexpected message in Dh sub-state"))
	}
	if s.kex.Algorithms.Kex == kexAlgoCurve25519 {
		reply, H, err = s.kex.handleKexECDHInit(payload, in)
	} else {
		reply, H, err = s.kex.handleKexDHInit(payload, in)
	}
	if err != nil {
		return s.fail(err)
	}
	if reply == nil {
		// Ignored: received outside DH sub-state Init, no state change.
		return nil
	}

	if len(s.sessionID) == 0 {
		s.sessionID = H
	}

	cipherKeyLen := 16 // aes128-ctr, the engine's only supported cipher
	macKeyLen := macKeyLenFor(s.kex.Algorithms.R.MAC)
	keys, err := s.kex.crypto.DeriveKeys(s.kex.K, H, s.sessionID, cipherKeyLen, macKeyLen)
	if err != nil {
		return s.fail(err)
	}
	s.next = &cryptoContext{keys: keys}

	// Step 9: clear both host-key slots unconditionally.
	s.hostKeyRSA = nil
	s.hostKeyDSA = nil

	// KEXDH_REPLY and NEWKEYS go out as two packets; NEWKEYS is the
	// final byte of reply.
	replyMsg, newKeys := reply[:len(reply)-1], reply[len(reply)-1:]
	if err := s.packetIO.WritePacket(s.conn, replyMsg); err != nil {
		return s.fail(wrapError(KindSocketIO, "write KEXDH_REPLY", err))
	}
	if err := s.packetIO.WritePacket(s.conn, newKeys); err != nil {
		return s.fail(wrapError(KindSocketIO, "write NEWKEYS", err))
	}
	return nil
}

func macKeyLenFor(algo string) int {
	switch algo {
	case "hmac-sha2-256":
		return 32
	default:
		return 20
	}
}

// handleNewKeys processes a NEWKEYS packet received from the
// peer while in Dh/NewkeysSent, performing the key-activation cutover
// of §4.3: current_crypto is dropped, next_crypto is promoted, a fresh
// next_crypto slot is cleared, and the session becomes Authenticating.
// The Connection Driver stops calling Step once Authenticating and
// reads further packets through the Dispatcher instead.
func (s *Session) handleNewKeys(payload []byte) error {
	if payload[0] != msgNewKeys {
		return s.fail(newError(KindKexProtocol, "expected NEWKEYS"))
	}
	s.kex.newkeysReceived()

	algos := s.kex.Algorithms
	if err := s.packetIO.SetCipher(dirRead, algos.W.Cipher, algos.W.MAC,
		s.next.keys.keyCtoS, s.next.keys.ivCtoS, s.next.keys.macCtoS); err != nil {
		return s.fail(err)
	}
	if err := s.packetIO.SetCipher(dirWrite, algos.R.Cipher, algos.R.MAC,
		s.next.keys.keyStoC, s.next.keys.ivStoC, s.next.keys.macStoC); err != nil {
		return s.fail(err)
	}

	s.current = s.next
	s.next = &cryptoContext{}
	s.state = StateAuthenticating
	s.emit(1.0)
	return nil
}

// ReadTransportPacket reads exactly one post-cutover packet for the
// Connection Driver's post-Authenticating loop, which feeds the result
// to the Dispatcher.
func (s *Session) ReadTransportPacket() ([]byte, error) {
	payload, err := s.packetIO.ReadPacket(s.br)
	if err != nil {
		return nil, s.fail(wrapError(KindPacketEncoding, "read packet", err))
	}
	if len(payload) == 0 {
		return nil, s.fail(newError(KindPacketEncoding, "empty packet"))
	}
	return payload, nil
}

// WriteTransportPacket frames and sends payload through the active
// packet cipher context, for use by the Dispatcher's default and
// embedder-triggered replies.
func (s *Session) WriteTransportPacket(payload []byte) error {
	if err := s.packetIO.WritePacket(s.conn, payload); err != nil {
		return s.fail(wrapError(KindSocketIO, "write packet", err))
	}
	return nil
}
