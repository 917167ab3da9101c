package message

import (
	"math/big"

	"github.com/jpillora/foxssh/sshd/wire"
)

// DisconnectReason codes from RFC 4253 section 11.1.
type DisconnectReason uint32

const (
	HostNotAllowedToConnect     DisconnectReason = 1
	ProtocolError               DisconnectReason = 2
	KeyExchangeFailed           DisconnectReason = 3
	Reserved                    DisconnectReason = 4
	MacError                    DisconnectReason = 5
	CompressionError            DisconnectReason = 6
	ServiceNotAvailable         DisconnectReason = 7
	ProtocolVersionNotSupported DisconnectReason = 8
	HostKeyNotVerifiable        DisconnectReason = 9
	ConnectionLost              DisconnectReason = 10
	ByApplication               DisconnectReason = 11
	TooManyConnections          DisconnectReason = 12
	AuthCancelledByUser         DisconnectReason = 13
	NoMoreAuthMethodsAvailable  DisconnectReason = 14
	IllegalUserName             DisconnectReason = 15
)

// Local reasons describe socket failures. They are never sent to a peer.
const (
	Timeout DisconnectReason = 0x100 + iota
	ConnectionReset
)

var reasonNames = map[DisconnectReason]string{
	HostNotAllowedToConnect:     "host not allowed to connect",
	ProtocolError:               "protocol error",
	KeyExchangeFailed:           "key exchange failed",
	Reserved:                    "reserved",
	MacError:                    "mac error",
	CompressionError:            "compression error",
	ServiceNotAvailable:         "service not available",
	ProtocolVersionNotSupported: "protocol version not supported",
	HostKeyNotVerifiable:        "host key not verifiable",
	ConnectionLost:              "connection lost",
	ByApplication:               "by application",
	TooManyConnections:          "too many connections",
	AuthCancelledByUser:         "auth cancelled by user",
	NoMoreAuthMethodsAvailable:  "no more auth methods available",
	IllegalUserName:             "illegal user name",
	Timeout:                     "timeout",
	ConnectionReset:             "connection reset",
}

func (r DisconnectReason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return "unknown reason"
}

type Disconnect struct {
	Reason      DisconnectReason
	Description string
	Language    string
}

func (*Disconnect) Type() Type { return TypeDisconnect }
func (m *Disconnect) marshal(w *wire.Writer) {
	w.Uint32(uint32(m.Reason))
	w.Text(m.Description)
	w.Text(m.Language)
}
func (m *Disconnect) unmarshal(r *wire.Reader) {
	m.Reason = DisconnectReason(r.Uint32())
	m.Description = r.Text()
	m.Language = r.Text()
}

type Ignore struct {
	Data []byte
}

func (*Ignore) Type() Type                 { return TypeIgnore }
func (m *Ignore) marshal(w *wire.Writer)   { w.Blob(m.Data) }
func (m *Ignore) unmarshal(r *wire.Reader) { m.Data = r.Blob() }

type Unimplemented struct {
	Seq uint32
}

func (*Unimplemented) Type() Type                 { return TypeUnimplemented }
func (m *Unimplemented) marshal(w *wire.Writer)   { w.Uint32(m.Seq) }
func (m *Unimplemented) unmarshal(r *wire.Reader) { m.Seq = r.Uint32() }

type Debug struct {
	AlwaysDisplay bool
	Message       string
	Language      string
}

func (*Debug) Type() Type { return TypeDebug }
func (m *Debug) marshal(w *wire.Writer) {
	w.Bool(m.AlwaysDisplay)
	w.Text(m.Message)
	w.Text(m.Language)
}
func (m *Debug) unmarshal(r *wire.Reader) {
	m.AlwaysDisplay = r.Bool()
	m.Message = r.Text()
	m.Language = r.Text()
}

type ServiceRequest struct {
	Name string
}

func (*ServiceRequest) Type() Type                 { return TypeServiceRequest }
func (m *ServiceRequest) marshal(w *wire.Writer)   { w.Text(m.Name) }
func (m *ServiceRequest) unmarshal(r *wire.Reader) { m.Name = r.Text() }

type ServiceAccept struct {
	Name string
}

func (*ServiceAccept) Type() Type                 { return TypeServiceAccept }
func (m *ServiceAccept) marshal(w *wire.Writer)   { w.Text(m.Name) }
func (m *ServiceAccept) unmarshal(r *wire.Reader) { m.Name = r.Text() }

// KexInit is the algorithm negotiation message (RFC 4253 section 7.1).
type KexInit struct {
	Cookie                  [16]byte
	KexAlgorithms           []string
	HostKeyAlgorithms       []string
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

func (*KexInit) Type() Type { return TypeKexInit }
func (m *KexInit) marshal(w *wire.Writer) {
	w.Raw(m.Cookie[:])
	for _, l := range m.lists() {
		w.NameList(*l)
	}
	w.Bool(m.FirstKexFollows)
	w.Uint32(m.Reserved)
}
func (m *KexInit) unmarshal(r *wire.Reader) {
	copy(m.Cookie[:], r.Raw(16))
	for _, l := range m.lists() {
		*l = r.NameList()
	}
	m.FirstKexFollows = r.Bool()
	m.Reserved = r.Uint32()
}

func (m *KexInit) lists() []*[]string {
	return []*[]string{
		&m.KexAlgorithms, &m.HostKeyAlgorithms,
		&m.CiphersClientServer, &m.CiphersServerClient,
		&m.MACsClientServer, &m.MACsServerClient,
		&m.CompressionClientServer, &m.CompressionServerClient,
		&m.LanguagesClientServer, &m.LanguagesServerClient,
	}
}

type NewKeys struct{}

func (*NewKeys) Type() Type             { return TypeNewKeys }
func (*NewKeys) marshal(*wire.Writer)   {}
func (*NewKeys) unmarshal(*wire.Reader) {}

type KexDHInit struct {
	E *big.Int
}

func (*KexDHInit) Type() Type                 { return TypeKexDHInit }
func (m *KexDHInit) marshal(w *wire.Writer)   { w.MPInt(m.E) }
func (m *KexDHInit) unmarshal(r *wire.Reader) { m.E = r.MPInt() }

type KexDHReply struct {
	HostKey   []byte
	F         *big.Int
	Signature []byte
}

func (*KexDHReply) Type() Type { return TypeKexDHReply }
func (m *KexDHReply) marshal(w *wire.Writer) {
	w.Blob(m.HostKey)
	w.MPInt(m.F)
	w.Blob(m.Signature)
}
func (m *KexDHReply) unmarshal(r *wire.Reader) {
	m.HostKey = r.Blob()
	m.F = r.MPInt()
	m.Signature = r.Blob()
}
