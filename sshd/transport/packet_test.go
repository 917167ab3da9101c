package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
	"github.com/jpillora/foxssh/sshd/xnet"
)

func TestPaddingAlignment(t *testing.T) {
	t.Parallel()
	for _, bs := range []int{8, 16} {
		for n := 0; n < 600; n++ {
			pad := padding(n, bs)
			if pad < 4 || pad > 255 {
				t.Fatalf("bs=%d n=%d: padding %d out of range", bs, n, pad)
			}
			if (5+n+pad)%bs != 0 {
				t.Fatalf("bs=%d n=%d: record of %d not aligned", bs, n, 5+n+pad)
			}
		}
	}
}

func pair(t *testing.T, cipherName, macName string) (sender, receiver *direction) {
	t.Helper()
	ci, ok := algo.LookupCipher(cipherName)
	if !ok {
		t.Fatalf("unknown cipher %s", cipherName)
	}
	mi, ok := algo.LookupMAC(macName)
	if !ok {
		t.Fatalf("unknown mac %s", macName)
	}
	key := make([]byte, ci.KeySize)
	iv := make([]byte, ci.BlockSize)
	macKey := make([]byte, mi.KeySize)
	rand.Read(key)
	rand.Read(iv)
	rand.Read(macKey)
	enc, err := algo.NewCipher(ci, key, iv, false)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := algo.NewCipher(ci, key, iv, true)
	if err != nil {
		t.Fatal(err)
	}
	sender = &direction{cipher: enc, mac: algo.NewMAC(mi, macKey), compression: algo.NoCompression{}}
	receiver = &direction{cipher: dec, mac: algo.NewMAC(mi, macKey), compression: algo.NoCompression{}}
	return sender, receiver
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	for _, c := range algo.Ciphers {
		for _, m := range algo.MACs {
			t.Run(c+"/"+m, func(t *testing.T) {
				t.Parallel()
				sender, receiver := pair(t, c, m)
				var stream bytes.Buffer
				payloads := [][]byte{{byte(message.TypeIgnore)}, bytes.Repeat([]byte{0x5e}, 1000), make([]byte, 33)}
				for seq, p := range payloads {
					rec, err := sender.seal(uint32(seq), p, rand.Reader)
					if err != nil {
						t.Fatal(err)
					}
					stream.Write(rec)
				}
				for seq, want := range payloads {
					got, n, err := receiver.open(uint32(seq), &stream)
					if err != nil {
						t.Fatalf("packet %d: %v", seq, err)
					}
					if !bytes.Equal(got, want) {
						t.Fatalf("packet %d: payload mismatch", seq)
					}
					if n%receiver.blockSize() != receiver.macSize()%receiver.blockSize() {
						t.Fatalf("packet %d: wire length %d not aligned", seq, n)
					}
				}
			})
		}
	}
}

func TestOpenForgedMAC(t *testing.T) {
	t.Parallel()
	sender, receiver := pair(t, "aes128-ctr", "hmac-sha1")
	rec, err := sender.seal(0, []byte{byte(message.TypeIgnore), 0, 0, 0, 0}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rec[len(rec)-1] ^= 1
	_, _, err = receiver.open(0, bytes.NewReader(rec))
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != message.MacError {
		t.Fatalf("expected mac error, got %v", err)
	}
}

func TestOpenWrongSequence(t *testing.T) {
	t.Parallel()
	sender, receiver := pair(t, "aes256-ctr", "hmac-md5")
	rec, err := sender.seal(7, []byte{byte(message.TypeIgnore), 0, 0, 0, 0}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := receiver.open(8, bytes.NewReader(rec)); err == nil {
		t.Fatal("packet accepted under the wrong sequence number")
	}
}

func TestOpenRejectsOversizedLength(t *testing.T) {
	t.Parallel()
	rec := []byte{0x00, 0x10, 0x00, 0x00, 4, 0, 0, 0}
	_, _, err := plain().open(0, bytes.NewReader(rec))
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != message.ProtocolError {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()
	k := big.NewInt(0x1234567)
	h := bytes.Repeat([]byte{1}, 20)
	sid := bytes.Repeat([]byte{2}, 20)
	a := deriveKey(sha1.New, k, h, sid, 'C', 32)
	if len(a) != 32 {
		t.Fatalf("length %d", len(a))
	}
	if !bytes.Equal(a, deriveKey(sha1.New, k, h, sid, 'C', 32)) {
		t.Fatal("not deterministic")
	}
	if !bytes.Equal(a[:16], deriveKey(sha1.New, k, h, sid, 'C', 16)) {
		t.Fatal("short key is not a prefix of the long key")
	}
	variants := map[string][]byte{
		"letter": deriveKey(sha1.New, k, h, sid, 'D', 32),
		"secret": deriveKey(sha1.New, big.NewInt(0x1234568), h, sid, 'C', 32),
		"hash":   deriveKey(sha1.New, k, sid, sid, 'C', 32),
		"id":     deriveKey(sha1.New, k, h, h, 'C', 32),
	}
	for what, v := range variants {
		if bytes.Equal(a, v) {
			t.Errorf("changing the %s did not change the key", what)
		}
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()
	client := &message.KexInit{
		KexAlgorithms:           []string{"curve25519-sha256", "diffie-hellman-group14-sha1"},
		HostKeyAlgorithms:       []string{"ssh-ed25519", "ssh-rsa"},
		CiphersClientServer:     []string{"aes128-ctr"},
		CiphersServerClient:     []string{"aes128-ctr"},
		MACsClientServer:        []string{"hmac-sha1"},
		MACsServerClient:        []string{"hmac-sha1"},
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
	}
	server := &message.KexInit{
		KexAlgorithms:           algo.KeyExchanges,
		HostKeyAlgorithms:       []string{"ssh-rsa"},
		CiphersClientServer:     algo.Ciphers,
		CiphersServerClient:     algo.Ciphers,
		MACsClientServer:        algo.MACs,
		MACsServerClient:        algo.MACs,
		CompressionClientServer: algo.Compressions,
		CompressionServerClient: algo.Compressions,
	}
	a, err := negotiate(client, server)
	if err != nil {
		t.Fatal(err)
	}
	want := DirectionAlgorithms{Cipher: "aes128-ctr", MAC: "hmac-sha1", Compression: "none"}
	if a.Kex != "diffie-hellman-group14-sha1" || a.HostKey != "ssh-rsa" || a.ClientToServer != want || a.ServerToClient != want {
		t.Fatalf("negotiated %+v", a)
	}
	if guessedRight(client, a) {
		t.Fatal("a curve25519 guess counted as right")
	}
	client.MACsServerClient = []string{"hmac-sha2-256"}
	_, err = negotiate(client, server)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != message.KeyExchangeFailed {
		t.Fatalf("expected kex failure, got %v", err)
	}
}

func TestReadVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, input, want string
		reason            message.DisconnectReason
	}{
		{name: "crlf", input: "SSH-2.0-OpenSSH_9.6\r\n", want: "SSH-2.0-OpenSSH_9.6"},
		{name: "lf", input: "SSH-2.0-PuTTY\n", want: "SSH-2.0-PuTTY"},
		{name: "ssh1", input: "SSH-1.5-old\r\n", reason: message.ProtocolVersionNotSupported},
		{name: "too long", input: "SSH-2.0-" + strings.Repeat("x", 300) + "\r\n", reason: message.ProtocolVersionNotSupported},
		{name: "eof", input: "SSH-2.0-cut", reason: ReasonConnectionLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readVersion(bytes.NewReader([]byte(tt.input)))
			if tt.reason != 0 {
				if reasonOf(err) != tt.reason {
					t.Fatalf("expected %s, got %v", tt.reason, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

var (
	internalKeyOnce sync.Once
	internalKey     algo.HostKey
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	internalKeyOnce.Do(func() {
		k, err := algo.GenerateRSA(rand.Reader, 1024)
		if err != nil {
			panic(err)
		}
		internalKey = k
	})
	l := xnet.NewMem()
	t.Cleanup(func() { l.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	peer, err := l.Dial(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { peer.Close() })
	s, err := New(<-accepted, Config{HostKeys: []algo.HostKey{internalKey}})
	if err != nil {
		t.Fatal(err)
	}
	return s, peer
}

func describe(t *testing.T, payload []byte) string {
	t.Helper()
	m, err := message.Unmarshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	switch m := m.(type) {
	case *message.Ignore:
		return "ignore:" + string(m.Data)
	case *message.ChannelData:
		return "data:" + string(m.Data)
	}
	return m.Type().String()
}

func TestDeferredQueueOrder(t *testing.T) {
	t.Parallel()
	s, peer := newTestSession(t)
	s.algorithms = &Algorithms{Kex: "diffie-hellman-group14-sha1"}
	s.pending = &pendingKex{algs: s.algorithms, next: &keySet{in: plain(), out: plain()}}
	send := func(m message.Message) {
		t.Helper()
		if err := s.Send(m); err != nil {
			t.Fatal(err)
		}
	}
	send(&message.ChannelData{Recipient: 1, Data: []byte("a")})
	send(&message.Ignore{Data: []byte("allowed")})
	s.pending.newKeysSent = true
	send(&message.Ignore{Data: []byte("held")})
	send(&message.ChannelData{Recipient: 1, Data: []byte("b")})
	if len(s.queue) != 3 {
		t.Fatalf("queued %d messages, want 3", len(s.queue))
	}
	if err := s.handleNewKeys(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive || s.Stats().KeyExchanges != 1 {
		t.Fatalf("state %s after newkeys", s.State())
	}
	in := plain()
	for seq, want := range []string{"ignore:allowed", "data:a", "ignore:held", "data:b"} {
		payload, _, err := in.open(uint32(seq), peer)
		if err != nil {
			t.Fatal(err)
		}
		if got := describe(t, payload); got != want {
			t.Fatalf("packet %d: got %s, want %s", seq, got, want)
		}
	}
}

type nopServices struct{}

func (nopServices) StartService(string) bool                    { return false }
func (nopServices) HandleMessage(message.Message) (bool, error) { return false, nil }
func (nopServices) Close()                                      {}

func TestUnknownMessageIsFatal(t *testing.T) {
	t.Parallel()
	s, peer := newTestSession(t)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), nopServices{}) }()
	if _, err := io.WriteString(peer, "SSH-2.0-test\r\n"); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(peer)
	if line, err := r.ReadString('\n'); err != nil || line != DefaultVersion+"\r\n" {
		t.Fatalf("server version %q: %v", line, err)
	}
	in := plain()
	payload, _, err := in.open(0, r)
	if err != nil || message.Type(payload[0]) != message.TypeKexInit {
		t.Fatalf("expected kexinit: %v", err)
	}
	rec, err := plain().seal(0, []byte{200, 1, 2, 3}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := peer.Write(rec); err != nil {
		t.Fatal(err)
	}
	err = <-done
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != message.ProtocolError {
		t.Fatalf("expected protocol error, got %v", err)
	}
	payload, _, err = in.open(1, r)
	if err != nil {
		t.Fatal(err)
	}
	m, err := message.Unmarshal(payload)
	if d, ok := m.(*message.Disconnect); err != nil || !ok || d.Reason != message.ProtocolError {
		t.Fatalf("expected disconnect, got %v %v", m, err)
	}
	if s.State() != StateTerminated {
		t.Fatalf("state %s", s.State())
	}
}

func TestWrongKexGuessIsDropped(t *testing.T) {
	t.Parallel()
	guess := append([]byte{30, 0, 0, 0, 32, 0xff}, make([]byte, 31)...)
	for name, first := range map[string][]byte{
		"curve25519": guess,
		"gex":        {34, 0, 0, 8, 0, 0, 0, 16, 0, 0, 0, 32, 0},
	} {
		first := first
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s, peer := newTestSession(t)
			done := make(chan error, 1)
			go func() { done <- s.Run(context.Background(), nopServices{}) }()
			if _, err := io.WriteString(peer, "SSH-2.0-test\r\n"); err != nil {
				t.Fatal(err)
			}
			r := bufio.NewReader(peer)
			if line, err := r.ReadString('\n'); err != nil || line != DefaultVersion+"\r\n" {
				t.Fatalf("server version %q: %v", line, err)
			}
			in := plain()
			payload, _, err := in.open(0, r)
			if err != nil || message.Type(payload[0]) != message.TypeKexInit {
				t.Fatalf("expected kexinit: %v", err)
			}
			info, _ := algo.LookupKex("diffie-hellman-group14-sha1")
			dh, err := info.NewExchange(rand.Reader)
			if err != nil {
				t.Fatal(err)
			}
			init := &message.KexInit{
				KexAlgorithms:           []string{"curve25519-sha256", "diffie-hellman-group14-sha1"},
				HostKeyAlgorithms:       []string{"ssh-rsa"},
				CiphersClientServer:     []string{"aes128-ctr"},
				CiphersServerClient:     []string{"aes128-ctr"},
				MACsClientServer:        []string{"hmac-sha1"},
				MACsServerClient:        []string{"hmac-sha1"},
				CompressionClientServer: []string{"none"},
				CompressionServerClient: []string{"none"},
				FirstKexFollows:         true,
			}
			out := plain()
			for seq, p := range [][]byte{
				message.Marshal(init),
				first,
				message.Marshal(&message.KexDHInit{E: dh.CreateExchange()}),
			} {
				rec, err := out.seal(uint32(seq), p, rand.Reader)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := peer.Write(rec); err != nil {
					t.Fatal(err)
				}
			}
			payload, _, err = in.open(1, r)
			if err != nil {
				t.Fatal(err)
			}
			if got := message.Type(payload[0]); got != message.TypeKexDHReply {
				t.Fatalf("expected kexdh-reply, got %s", got)
			}
			peer.Close()
			<-done
		})
	}
}

func TestRekeyStartsAfterThreshold(t *testing.T) {
	t.Parallel()
	s, peer := newTestSession(t)
	go io.Copy(io.Discard, peer)
	s.config.RekeyBytes = 1024
	s.algorithms = &Algorithms{}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceKex.Store(1024)
	if err := s.rekeyIfDueLocked(); err != nil || s.pending != nil {
		t.Fatalf("rekey started at the threshold: %v", err)
	}
	s.sinceKex.Store(1025)
	if err := s.rekeyIfDueLocked(); err != nil || s.pending == nil {
		t.Fatalf("rekey not started past the threshold: %v", err)
	}
}
