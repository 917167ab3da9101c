package wire_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/jpillora/foxssh/sshd/wire"
)

func TestMPIntEncoding(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		in   *big.Int
		want []byte
	}{
		{"zero", big.NewInt(0), []byte{0, 0, 0, 0}},
		{"small", big.NewInt(0x7f), []byte{0, 0, 0, 1, 0x7f}},
		{"high-bit", big.NewInt(0x80), []byte{0, 0, 0, 2, 0, 0x80}},
		{"rfc4251", new(big.Int).SetBytes([]byte{0x09, 0xa3, 0x78, 0xf9, 0xb2, 0xe3, 0x32, 0xa7}),
			[]byte{0, 0, 0, 8, 0x09, 0xa3, 0x78, 0xf9, 0xb2, 0xe3, 0x32, 0xa7}},
		{"rfc4251-high", big.NewInt(0x8000), []byte{0, 0, 0, 3, 0, 0x80, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := wire.NewWriter(16)
			w.MPInt(tc.in)
			if !bytes.Equal(w.Bytes(), tc.want) {
				t.Fatalf("encode %s: got %x, want %x", tc.in, w.Bytes(), tc.want)
			}
			r := wire.NewReader(w.Bytes())
			got := r.MPInt()
			if err := r.Err(); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Cmp(tc.in) != 0 {
				t.Fatalf("decode: got %s, want %s", got, tc.in)
			}
			if r.Len() != 0 {
				t.Fatalf("decode left %d bytes", r.Len())
			}
		})
	}
}

func TestMPIntRoundTripLarge(t *testing.T) {
	t.Parallel()
	for i := 1; i < 300; i += 7 {
		n := new(big.Int).Lsh(big.NewInt(1), uint(i))
		n.Sub(n, big.NewInt(1))
		r := wire.NewReader(wire.AppendMPInt(nil, n))
		if got := r.MPInt(); r.Err() != nil || got.Cmp(n) != 0 {
			t.Fatalf("2^%d-1: got %v (%v)", i, got, r.Err())
		}
	}
}

func TestReaderSequence(t *testing.T) {
	t.Parallel()
	w := wire.NewWriter(64)
	w.Byte(42)
	w.Bool(true)
	w.Uint32(0xdeadbeef)
	w.Uint64(1 << 40)
	w.Blob([]byte{1, 2, 3})
	w.Text("ssh-connection")
	w.NameList([]string{"aes128-ctr", "aes256-ctr"})
	w.NameList(nil)

	r := wire.NewReader(w.Bytes())
	if b := r.Byte(); b != 42 {
		t.Fatalf("byte: %d", b)
	}
	if !r.Bool() {
		t.Fatal("bool: false")
	}
	if v := r.Uint32(); v != 0xdeadbeef {
		t.Fatalf("uint32: %x", v)
	}
	if v := r.Uint64(); v != 1<<40 {
		t.Fatalf("uint64: %d", v)
	}
	if b := r.Blob(); !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("blob: %x", b)
	}
	if s := r.Text(); s != "ssh-connection" {
		t.Fatalf("text: %q", s)
	}
	if l := r.NameList(); len(l) != 2 || l[1] != "aes256-ctr" {
		t.Fatalf("namelist: %v", l)
	}
	if l := r.NameList(); l != nil {
		t.Fatalf("empty namelist: %v", l)
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestReaderUnexpectedEnd(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		in   []byte
		read func(r *wire.Reader)
	}{
		{"uint32", []byte{0, 1}, func(r *wire.Reader) { r.Uint32() }},
		{"uint64", []byte{0, 0, 0, 0, 1}, func(r *wire.Reader) { r.Uint64() }},
		{"byte", nil, func(r *wire.Reader) { r.Byte() }},
		{"blob-short", []byte{0, 0, 0, 5, 'a', 'b'}, func(r *wire.Reader) { r.Blob() }},
		{"blob-huge", []byte{0xff, 0xff, 0xff, 0xff}, func(r *wire.Reader) { r.Blob() }},
		{"mpint", []byte{0, 0, 0, 2, 1}, func(r *wire.Reader) { r.MPInt() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := wire.NewReader(tc.in)
			tc.read(r)
			if !errors.Is(r.Err(), wire.ErrUnexpectedEnd) {
				t.Fatalf("got %v, want ErrUnexpectedEnd", r.Err())
			}
			// sticky
			if v := r.Uint32(); v != 0 {
				t.Fatalf("read after error returned %d", v)
			}
		})
	}
}

func TestRest(t *testing.T) {
	t.Parallel()
	r := wire.NewReader([]byte{0, 0, 0, 1, 'x', 9, 8, 7})
	r.Text()
	if rest := r.Rest(); !bytes.Equal(rest, []byte{9, 8, 7}) {
		t.Fatalf("rest: %x", rest)
	}
	if r.Len() != 0 {
		t.Fatalf("len after rest: %d", r.Len())
	}
}
