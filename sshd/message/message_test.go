package message_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/wire"
	"golang.org/x/crypto/ssh"
)

func TestUnmarshalErrors(t *testing.T) {
	t.Parallel()
	if _, err := message.Unmarshal(nil); !errors.Is(err, message.ErrEmpty) {
		t.Fatalf("empty: %v", err)
	}
	_, err := message.Unmarshal([]byte{200, 1, 2})
	if !errors.Is(err, message.ErrUnknownType) {
		t.Fatalf("unknown: %v", err)
	}
	var ute *message.UnknownTypeError
	if !errors.As(err, &ute) || ute.Type != 200 {
		t.Fatalf("unknown type detail: %v", err)
	}
	if message.Known(200) || !message.Known(message.TypeKexInit) {
		t.Fatal("Known disagrees with the catalog")
	}
	// channel data claiming more bytes than present
	if _, err := message.Unmarshal([]byte{94, 0, 0, 0, 1, 0, 0, 0, 9, 'x'}); !errors.Is(err, wire.ErrUnexpectedEnd) {
		t.Fatalf("truncated: %v", err)
	}
}

// x/crypto/ssh Marshal honours the sshtype tag, which gives an
// independent encoder to decode against.
type xUserAuthPassword struct {
	User     string `sshtype:"50"`
	Service  string
	Method   string
	Change   bool
	Password string
}

type xUserAuthPublicKey struct {
	User    string `sshtype:"50"`
	Service string
	Method  string
	HasSig  bool
	Algo    string
	PubKey  []byte
	Sig     []byte
}

func TestUserauthRequestDecode(t *testing.T) {
	t.Parallel()
	m, err := message.Unmarshal(ssh.Marshal(&xUserAuthPassword{
		User: "fox", Service: "ssh-connection", Method: "password", Password: "hourglass",
	}))
	if err != nil {
		t.Fatal(err)
	}
	pw, ok := m.(*message.UserauthRequest)
	if !ok || pw.User != "fox" || pw.Method != message.MethodPassword || pw.Password != "hourglass" {
		t.Fatalf("password request: %+v", m)
	}

	m, err = message.Unmarshal(ssh.Marshal(&xUserAuthPublicKey{
		User: "fox", Service: "ssh-connection", Method: "publickey",
		HasSig: true, Algo: "ssh-ed25519", PubKey: []byte{1, 2, 3}, Sig: []byte{4, 5},
	}))
	if err != nil {
		t.Fatal(err)
	}
	pk := m.(*message.UserauthRequest)
	if !pk.HasSignature || pk.Algorithm != "ssh-ed25519" || !bytes.Equal(pk.PublicKey, []byte{1, 2, 3}) || !bytes.Equal(pk.Signature, []byte{4, 5}) {
		t.Fatalf("publickey request: %+v", pk)
	}
	signed := pk.SignedData([]byte("sid"))
	r := wire.NewReader(signed)
	if string(r.Blob()) != "sid" || r.Byte() != byte(message.TypeUserauthRequest) || r.Text() != "fox" {
		t.Fatalf("signed data prefix: %x", signed)
	}
}

type xPtyReq struct {
	Term     string
	Columns  uint32
	Rows     uint32
	Width    uint32
	Height   uint32
	Modelist string
}

func TestChannelRequestPayloads(t *testing.T) {
	t.Parallel()
	raw := ssh.Marshal(&xPtyReq{Term: "xterm-256color", Columns: 120, Rows: 40, Modelist: "\x00"})
	req := &message.ChannelRequest{Recipient: 3, Request: message.RequestPty, WantReply: true, Payload: raw}
	m, err := message.Unmarshal(message.Marshal(req))
	if err != nil {
		t.Fatal(err)
	}
	got := m.(*message.ChannelRequest)
	if got.Recipient != 3 || got.Request != "pty-req" || !got.WantReply {
		t.Fatalf("channel request: %+v", got)
	}
	pty, err := message.ParsePtyRequest(got.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if pty.Term != "xterm-256color" || pty.Cols != 120 || pty.Rows != 40 {
		t.Fatalf("pty: %+v", pty)
	}
	if !bytes.Equal(pty.Payload(), raw) {
		t.Fatal("pty payload re-encoding differs")
	}
	if _, err := message.ParseWindowChange([]byte{0, 0, 0, 80}); err == nil {
		t.Fatal("short window-change accepted")
	}
	es, err := message.ParseExitStatus((&message.ExitStatus{Status: 3}).Payload())
	if err != nil || es.Status != 3 {
		t.Fatalf("exit-status: %+v %v", es, err)
	}
}

func TestKexInitLayout(t *testing.T) {
	t.Parallel()
	k := &message.KexInit{
		KexAlgorithms:           []string{"diffie-hellman-group14-sha1"},
		HostKeyAlgorithms:       []string{"ssh-rsa", "ssh-dss"},
		CiphersClientServer:     []string{"aes128-ctr"},
		CiphersServerClient:     []string{"aes128-ctr"},
		MACsClientServer:        []string{"hmac-sha1"},
		MACsServerClient:        []string{"hmac-sha1"},
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
	}
	k.Cookie[0] = 0xaa
	b := message.Marshal(k)
	r := wire.NewReader(b)
	if r.Byte() != 20 || r.Raw(16)[0] != 0xaa {
		t.Fatal("kexinit header")
	}
	if l := r.NameList(); len(l) != 1 || l[0] != "diffie-hellman-group14-sha1" {
		t.Fatalf("kex list %v", l)
	}
	if l := r.NameList(); len(l) != 2 {
		t.Fatalf("host key list %v", l)
	}
	for i := 0; i < 8; i++ {
		r.NameList()
	}
	if r.Bool() || r.Uint32() != 0 || r.Len() != 0 || r.Err() != nil {
		t.Fatal("kexinit trailer")
	}
	m, err := message.Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.(*message.KexInit); got.Cookie != k.Cookie || got.LanguagesServerClient != nil {
		t.Fatalf("decoded kexinit %+v", got)
	}
}

func TestKexDHReplyMPInt(t *testing.T) {
	t.Parallel()
	f := new(big.Int).SetBytes([]byte{0xff, 0x01})
	b := message.Marshal(&message.KexDHReply{HostKey: []byte("k"), F: f, Signature: []byte("s")})
	m, err := message.Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.(*message.KexDHReply); got.F.Cmp(f) != 0 {
		t.Fatalf("F = %v", got.F)
	}
}

func TestTypeString(t *testing.T) {
	t.Parallel()
	if s := message.TypeChannelWindowAdjust.String(); s != "channel-window-adjust" {
		t.Fatal(s)
	}
	if s := message.Type(7).String(); s != "unknown(7)" {
		t.Fatal(s)
	}
	if s := message.MacError.String(); s != "mac error" {
		t.Fatal(s)
	}
}
