package message

import "github.com/jpillora/foxssh/sshd/wire"

// OpenFailureReason codes from RFC 4254 section 5.1.
type OpenFailureReason uint32

const (
	AdministrativelyProhibited OpenFailureReason = 1
	ConnectFailed              OpenFailureReason = 2
	UnknownChannelType         OpenFailureReason = 3
	ResourceShortage           OpenFailureReason = 4
)

// ExtendedDataStderr is the only extended data type defined by RFC 4254.
const ExtendedDataStderr = 1

type GlobalRequest struct {
	Name      string
	WantReply bool
	Data      []byte
}

func (*GlobalRequest) Type() Type { return TypeGlobalRequest }
func (m *GlobalRequest) marshal(w *wire.Writer) {
	w.Text(m.Name)
	w.Bool(m.WantReply)
	w.Raw(m.Data)
}
func (m *GlobalRequest) unmarshal(r *wire.Reader) {
	m.Name = r.Text()
	m.WantReply = r.Bool()
	m.Data = r.Rest()
}

type RequestSuccess struct {
	Data []byte
}

func (*RequestSuccess) Type() Type                 { return TypeRequestSuccess }
func (m *RequestSuccess) marshal(w *wire.Writer)   { w.Raw(m.Data) }
func (m *RequestSuccess) unmarshal(r *wire.Reader) { m.Data = r.Rest() }

type RequestFailure struct{}

func (*RequestFailure) Type() Type             { return TypeRequestFailure }
func (*RequestFailure) marshal(*wire.Writer)   {}
func (*RequestFailure) unmarshal(*wire.Reader) {}

type ChannelOpen struct {
	ChannelType string
	Sender      uint32
	Window      uint32
	MaxPacket   uint32
	Data        []byte
}

func (*ChannelOpen) Type() Type { return TypeChannelOpen }
func (m *ChannelOpen) marshal(w *wire.Writer) {
	w.Text(m.ChannelType)
	w.Uint32(m.Sender)
	w.Uint32(m.Window)
	w.Uint32(m.MaxPacket)
	w.Raw(m.Data)
}
func (m *ChannelOpen) unmarshal(r *wire.Reader) {
	m.ChannelType = r.Text()
	m.Sender = r.Uint32()
	m.Window = r.Uint32()
	m.MaxPacket = r.Uint32()
	m.Data = r.Rest()
}

type ChannelOpenConfirm struct {
	Recipient uint32
	Sender    uint32
	Window    uint32
	MaxPacket uint32
	Data      []byte
}

func (*ChannelOpenConfirm) Type() Type { return TypeChannelOpenConfirm }
func (m *ChannelOpenConfirm) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Uint32(m.Sender)
	w.Uint32(m.Window)
	w.Uint32(m.MaxPacket)
	w.Raw(m.Data)
}
func (m *ChannelOpenConfirm) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.Sender = r.Uint32()
	m.Window = r.Uint32()
	m.MaxPacket = r.Uint32()
	m.Data = r.Rest()
}

type ChannelOpenFailure struct {
	Recipient   uint32
	Reason      OpenFailureReason
	Description string
	Language    string
}

func (*ChannelOpenFailure) Type() Type { return TypeChannelOpenFailure }
func (m *ChannelOpenFailure) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Uint32(uint32(m.Reason))
	w.Text(m.Description)
	w.Text(m.Language)
}
func (m *ChannelOpenFailure) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.Reason = OpenFailureReason(r.Uint32())
	m.Description = r.Text()
	m.Language = r.Text()
}

type ChannelWindowAdjust struct {
	Recipient uint32
	Bytes     uint32
}

func (*ChannelWindowAdjust) Type() Type { return TypeChannelWindowAdjust }
func (m *ChannelWindowAdjust) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Uint32(m.Bytes)
}
func (m *ChannelWindowAdjust) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.Bytes = r.Uint32()
}

type ChannelData struct {
	Recipient uint32
	Data      []byte
}

func (*ChannelData) Type() Type { return TypeChannelData }
func (m *ChannelData) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Blob(m.Data)
}
func (m *ChannelData) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.Data = r.Blob()
}

type ChannelExtendedData struct {
	Recipient uint32
	DataType  uint32
	Data      []byte
}

func (*ChannelExtendedData) Type() Type { return TypeChannelExtendedData }
func (m *ChannelExtendedData) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Uint32(m.DataType)
	w.Blob(m.Data)
}
func (m *ChannelExtendedData) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.DataType = r.Uint32()
	m.Data = r.Blob()
}

type ChannelEOF struct {
	Recipient uint32
}

func (*ChannelEOF) Type() Type                 { return TypeChannelEOF }
func (m *ChannelEOF) marshal(w *wire.Writer)   { w.Uint32(m.Recipient) }
func (m *ChannelEOF) unmarshal(r *wire.Reader) { m.Recipient = r.Uint32() }

type ChannelClose struct {
	Recipient uint32
}

func (*ChannelClose) Type() Type                 { return TypeChannelClose }
func (m *ChannelClose) marshal(w *wire.Writer)   { w.Uint32(m.Recipient) }
func (m *ChannelClose) unmarshal(r *wire.Reader) { m.Recipient = r.Uint32() }

// ChannelRequest keeps the request specific fields undecoded in Payload;
// see the Parse helpers in request.go.
type ChannelRequest struct {
	Recipient uint32
	Request   string
	WantReply bool
	Payload   []byte
}

func (*ChannelRequest) Type() Type { return TypeChannelRequest }
func (m *ChannelRequest) marshal(w *wire.Writer) {
	w.Uint32(m.Recipient)
	w.Text(m.Request)
	w.Bool(m.WantReply)
	w.Raw(m.Payload)
}
func (m *ChannelRequest) unmarshal(r *wire.Reader) {
	m.Recipient = r.Uint32()
	m.Request = r.Text()
	m.WantReply = r.Bool()
	m.Payload = r.Rest()
}

type ChannelSuccess struct {
	Recipient uint32
}

func (*ChannelSuccess) Type() Type                 { return TypeChannelSuccess }
func (m *ChannelSuccess) marshal(w *wire.Writer)   { w.Uint32(m.Recipient) }
func (m *ChannelSuccess) unmarshal(r *wire.Reader) { m.Recipient = r.Uint32() }

type ChannelFailure struct {
	Recipient uint32
}

func (*ChannelFailure) Type() Type                 { return TypeChannelFailure }
func (m *ChannelFailure) marshal(w *wire.Writer)   { w.Uint32(m.Recipient) }
func (m *ChannelFailure) unmarshal(r *wire.Reader) { m.Recipient = r.Uint32() }
