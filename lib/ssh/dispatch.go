// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// AuthMethod bits select which authentication methods the session
// currently advertises as acceptable, defaulting to publickey+password
// per §4.5.
type AuthMethod uint32

const (
	AuthPublicKey AuthMethod = 1 << iota
	AuthPassword
	AuthKeyboardInteractive
	AuthHostBased
)

func (m AuthMethod) names() []string {
	var out []string
	if m&AuthPublicKey != 0 {
		out = append(out, "publickey")
	}
	if m&AuthKeyboardInteractive != 0 {
		out = append(out, "keyboard-interactive")
	}
	if m&AuthPassword != 0 {
		out = append(out, "password")
	}
	if m&AuthHostBased != 0 {
		out = append(out, "hostbased")
	}
	return out
}

const defaultAuthMethods = AuthPublicKey | AuthPassword

// MessageKind tags the variant a Message carries (§3's tagged-variant
// data model, avoiding the source's inheritance-via-union shape).
type MessageKind int

const (
	KindAuthRequest MessageKind = iota
	KindServiceRequest
	KindChannelOpen
	KindChannelRequest
)

// AuthRequestData is the USERAUTH_REQUEST payload (RFC 4252 §5). The
// fields below Method are populated only for the method named: the
// password fields for "password", the publickey fields (including the
// has-signature state RFC 4252 §7 calls "signature present") for
// "publickey". Payload keeps the raw method-specific trailer for any
// other method (e.g. "keyboard-interactive", "hostbased") so an
// embedder can still decode it itself.
type AuthRequestData struct {
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

// ServiceRequestData is the SERVICE_REQUEST payload (RFC 4253 §10).
type ServiceRequestData struct {
	Service string
}

// ChannelOpenData is the CHANNEL_OPEN payload (RFC 4254 §5.1). Origin/
// Destination(Port) are populated for "direct-tcpip" and
// "forwarded-tcpip"; TypeSpecificData keeps the raw trailer for any
// other channel type.
type ChannelOpenData struct {
	ChanType         string
	SenderChannel    uint32
	InitialWindow    uint32
	MaxPacketSize    uint32
	TypeSpecificData []byte

	Destination     string
	DestinationPort uint32
	Origin          string
	OriginPort      uint32
}

// ChannelRequestData is the CHANNEL_REQUEST payload (RFC 4254 §5.4),
// with the request-type-specific fields of §6.2 (pty-req), §6.4 (env),
// §6.5 (exec), §6.9 (subsystem) and §6.10 (window-change) populated
// according to RequestType; Payload keeps the raw trailer for any
// other request type.
type ChannelRequestData struct {
	RecipientChannel uint32
	RequestType      string
	WantReply        bool
	Payload          []byte

	Term          string
	Width         uint32
	Height        uint32
	PixelWidth    uint32
	PixelHeight   uint32
	TerminalModes []byte
	EnvName       string
	EnvValue      string
	Command       string
	Subsystem     string
}

// Message is the tagged variant the Dispatcher hands to the embedder's
// callback: exactly one of the Data fields is populated, per Kind. A
// Message carries a non-owning back-reference to its Session so reply
// helpers can be called without the embedder threading the session
// through separately (§9's "back-reference without cycles" note).
type Message struct {
	Kind    MessageKind
	Session *Session

	AuthRequest    *AuthRequestData
	ServiceRequest *ServiceRequestData
	ChannelOpen    *ChannelOpenData
	ChannelRequest *ChannelRequestData
}

// CallbackResult is the tri-state an embedder's MessageCallback
// returns (§4.5): Handled frees the message with no further action;
// Declined triggers the Dispatcher's default reply before freeing.
type CallbackResult int

const (
	Handled CallbackResult = iota
	Declined
)

// MessageCallback is the embedder hook invoked for every dispatched
// Message. A nil callback is equivalent to one that always declines.
type MessageCallback func(msg *Message) CallbackResult

// Dispatcher drains a Session's post-auth packet stream, converts each
// packet into a typed Message, and invokes the embedder's callback
// (§4.5), applying the protocol-compliant default reply whenever the
// callback is absent or declines.
type Dispatcher struct {
	session *Session
	methods AuthMethod
}

// NewDispatcher returns a Dispatcher bound to an Authenticating
// session, advertising the default method set (publickey+password).
func NewDispatcher(s *Session) *Dispatcher {
	return &Dispatcher{session: s, methods: defaultAuthMethods}
}

// SetCallback installs the embedder's message callback.
func (d *Dispatcher) SetCallback(cb MessageCallback) { d.session.callback = cb }

// AuthSetMethods mutates the session's advertised method mask, for use
// by embedders composing auth policy (§4.5's auth_set_methods helper).
func (d *Dispatcher) AuthSetMethods(methods AuthMethod) { d.methods = methods }

// DispatchOne reads one post-auth packet from the session, converts it
// to a Message, and runs it through the callback/default-reply
// pipeline. It returns io.EOF-wrapped errors from the underlying read
// unchanged so callers can distinguish a clean disconnect from a
// protocol failure.
func (d *Dispatcher) DispatchOne() error {
	payload, err := d.session.ReadTransportPacket()
	if err != nil {
		return err
	}

	msg, err := d.parseMessage(payload)
	if err != nil {
		return err
	}
	if msg == nil {
		// Unrecognized message type outside the dispatched set;
		// ignored, matching the "unexpected message" leniency the
		// transport layer itself already enforces strictly pre-auth.
		return nil
	}

	result := Declined
	if d.session.callback != nil {
		result = d.session.callback(msg)
	}
	if result == Declined {
		return d.replyDefault(msg)
	}
	return nil
}

func (d *Dispatcher) parseMessage(payload []byte) (*Message, error) {
	switch payload[0] {
	case msgUserAuthRequest:
		m, err := parseUserAuthRequestMsg(payload)
		if err != nil {
			return nil, wrapError(KindPacketEncoding, "parse USERAUTH_REQUEST", err)
		}
		return &Message{
			Kind:    KindAuthRequest,
			Session: d.session,
			AuthRequest: &AuthRequestData{
				User: m.User, Service: m.Service, Method: m.Method, Payload: m.Payload,
				ChangePassword: m.ChangePassword, Password: m.Password, NewPassword: m.NewPassword,
				HasSignature: m.HasSignature, PubKeyAlgo: m.PubKeyAlgo, PubKeyBlob: m.PubKeyBlob, Signature: m.Signature,
			},
		}, nil
	case msgServiceRequest:
		m, err := parseServiceRequestMsg(payload)
		if err != nil {
			return nil, wrapError(KindPacketEncoding, "parse SERVICE_REQUEST", err)
		}
		return &Message{
			Kind:           KindServiceRequest,
			Session:        d.session,
			ServiceRequest: &ServiceRequestData{Service: m.Service},
		}, nil
	case msgChannelOpen:
		m, err := parseChannelOpenMsg(payload)
		if err != nil {
			return nil, wrapError(KindPacketEncoding, "parse CHANNEL_OPEN", err)
		}
		return &Message{
			Kind:    KindChannelOpen,
			Session: d.session,
			ChannelOpen: &ChannelOpenData{
				ChanType: m.ChanType, SenderChannel: m.PeersID,
				InitialWindow: m.PeersWindow, MaxPacketSize: m.MaxPacketSize,
				TypeSpecificData: m.TypeSpecificData,
				Destination:      m.Destination, DestinationPort: m.DestinationPort,
				Origin: m.Origin, OriginPort: m.OriginPort,
			},
		}, nil
	case msgChannelRequest:
		m, err := parseChannelRequestMsg(payload)
		if err != nil {
			return nil, wrapError(KindPacketEncoding, "parse CHANNEL_REQUEST", err)
		}
		return &Message{
			Kind:    KindChannelRequest,
			Session: d.session,
			ChannelRequest: &ChannelRequestData{
				RecipientChannel: m.RecipientChannel, RequestType: m.RequestType,
				WantReply: m.WantReply, Payload: m.Payload,
				Term: m.Term, Width: m.Width, Height: m.Height,
				PixelWidth: m.PixelWidth, PixelHeight: m.PixelHeight, TerminalModes: m.TerminalModes,
				EnvName: m.EnvName, EnvValue: m.EnvValue,
				Command: m.Command, Subsystem: m.Subsystem,
			},
		}, nil
	default:
		return nil, nil
	}
}

// replyDefault applies the §4.5 default reply for a declined message.
// A failed write moves the session to Error, per §7's propagation
// policy: default replies never surface errors back to the embedder.
func (d *Dispatcher) replyDefault(msg *Message) error {
	switch msg.Kind {
	case KindAuthRequest:
		return d.session.WriteTransportPacket(marshalUserAuthFailure(d.methods.names(), false))
	case KindServiceRequest:
		return d.session.WriteTransportPacket(marshalServiceAccept(msg.ServiceRequest.Service))
	case KindChannelOpen:
		return d.session.WriteTransportPacket(
			marshalChannelOpenFailure(msg.ChannelOpen.SenderChannel, administrativelyProhibited, "", ""))
	case KindChannelRequest:
		if !msg.ChannelRequest.WantReply {
			return nil
		}
		return d.session.WriteTransportPacket(marshalChannelFailure(msg.ChannelRequest.RecipientChannel))
	default:
		return nil
	}
}

// AuthReplySuccess implements the auth_reply_success embedder helper
// (§4.5): a partial success is wire-equivalent to a failure reply with
// partial=true; otherwise USERAUTH_SUCCESS is sent.
func (d *Dispatcher) AuthReplySuccess(partial bool) error {
	if partial {
		return d.session.WriteTransportPacket(marshalUserAuthFailure(d.methods.names(), true))
	}
	return d.session.WriteTransportPacket(marshalUserAuthSuccess())
}

// AuthReplyPubKeyOK implements the auth_reply_pk_ok embedder helper.
func (d *Dispatcher) AuthReplyPubKeyOK(algo string, pubKey []byte) error {
	return d.session.WriteTransportPacket(marshalUserAuthPubKeyOK(algo, pubKey))
}
