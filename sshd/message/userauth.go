package message

import "github.com/jpillora/foxssh/sshd/wire"

// Authentication method names (RFC 4252).
const (
	MethodNone      = "none"
	MethodPassword  = "password"
	MethodPublicKey = "publickey"
)

// UserauthRequest carries the method specific fields of RFC 4252
// sections 7 and 8. Unknown methods keep their fields in Rest.
type UserauthRequest struct {
	User    string
	Service string
	Method  string

	// password
	ChangePassword bool
	Password       string
	NewPassword    string

	// publickey
	HasSignature bool
	Algorithm    string
	PublicKey    []byte
	Signature    []byte

	Rest []byte
}

func (*UserauthRequest) Type() Type { return TypeUserauthRequest }

func (m *UserauthRequest) marshal(w *wire.Writer) {
	w.Text(m.User)
	w.Text(m.Service)
	w.Text(m.Method)
	switch m.Method {
	case MethodPassword:
		w.Bool(m.ChangePassword)
		w.Text(m.Password)
		if m.ChangePassword {
			w.Text(m.NewPassword)
		}
	case MethodPublicKey:
		w.Bool(m.HasSignature)
		w.Text(m.Algorithm)
		w.Blob(m.PublicKey)
		if m.HasSignature {
			w.Blob(m.Signature)
		}
	case MethodNone:
	default:
		w.Raw(m.Rest)
	}
}

func (m *UserauthRequest) unmarshal(r *wire.Reader) {
	m.User = r.Text()
	m.Service = r.Text()
	m.Method = r.Text()
	switch m.Method {
	case MethodPassword:
		m.ChangePassword = r.Bool()
		m.Password = r.Text()
		if m.ChangePassword {
			m.NewPassword = r.Text()
		}
	case MethodPublicKey:
		m.HasSignature = r.Bool()
		m.Algorithm = r.Text()
		m.PublicKey = r.Blob()
		if m.HasSignature {
			m.Signature = r.Blob()
		}
	case MethodNone:
	default:
		m.Rest = r.Rest()
	}
}

// SignedData returns the bytes a publickey signature covers
// (RFC 4252 section 7).
func (m *UserauthRequest) SignedData(sessionID []byte) []byte {
	w := wire.NewWriter(128 + len(m.PublicKey))
	w.Blob(sessionID)
	w.Byte(byte(TypeUserauthRequest))
	w.Text(m.User)
	w.Text(m.Service)
	w.Text(MethodPublicKey)
	w.Bool(true)
	w.Text(m.Algorithm)
	w.Blob(m.PublicKey)
	return w.Bytes()
}

type UserauthFailure struct {
	Methods        []string
	PartialSuccess bool
}

func (*UserauthFailure) Type() Type { return TypeUserauthFailure }
func (m *UserauthFailure) marshal(w *wire.Writer) {
	w.NameList(m.Methods)
	w.Bool(m.PartialSuccess)
}
func (m *UserauthFailure) unmarshal(r *wire.Reader) {
	m.Methods = r.NameList()
	m.PartialSuccess = r.Bool()
}

type UserauthSuccess struct{}

func (*UserauthSuccess) Type() Type             { return TypeUserauthSuccess }
func (*UserauthSuccess) marshal(*wire.Writer)   {}
func (*UserauthSuccess) unmarshal(*wire.Reader) {}

type UserauthBanner struct {
	Message  string
	Language string
}

func (*UserauthBanner) Type() Type { return TypeUserauthBanner }
func (m *UserauthBanner) marshal(w *wire.Writer) {
	w.Text(m.Message)
	w.Text(m.Language)
}
func (m *UserauthBanner) unmarshal(r *wire.Reader) {
	m.Message = r.Text()
	m.Language = r.Text()
}

// UserauthPKOK tells the client a public key is acceptable before it
// signs anything.
type UserauthPKOK struct {
	Algorithm string
	PublicKey []byte
}

func (*UserauthPKOK) Type() Type { return TypeUserauthPKOK }
func (m *UserauthPKOK) marshal(w *wire.Writer) {
	w.Text(m.Algorithm)
	w.Blob(m.PublicKey)
}
func (m *UserauthPKOK) unmarshal(r *wire.Reader) {
	m.Algorithm = r.Text()
	m.PublicKey = r.Blob()
}
