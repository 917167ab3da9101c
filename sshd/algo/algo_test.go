package algo_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"math/big"
	"regexp"
	"sync"
	"testing"

	"github.com/jpillora/foxssh/sshd/algo"
)

func TestCTRSelfInverse(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"aes128-ctr", "aes192-ctr", "aes256-ctr"} {
		t.Run(name, func(t *testing.T) {
			info, ok := algo.LookupCipher(name)
			if !ok {
				t.Fatalf("missing %s", name)
			}
			key := make([]byte, info.KeySize)
			iv := make([]byte, info.BlockSize)
			rand.Read(key)
			rand.Read(iv)
			for _, n := range []int{16, 64, 4096} {
				plain := make([]byte, n)
				rand.Read(plain)
				enc, _ := algo.NewCipher(info, key, iv, false)
				dec, _ := algo.NewCipher(info, key, iv, true)
				ct := enc.Transform(append([]byte(nil), plain...))
				if bytes.Equal(ct, plain) {
					t.Fatal("ciphertext equals plaintext")
				}
				if got := dec.Transform(ct); !bytes.Equal(got, plain) {
					t.Fatalf("round trip mismatch for %d bytes", n)
				}
			}
		})
	}
}

func TestCTRStreamsAcrossCalls(t *testing.T) {
	t.Parallel()
	info, _ := algo.LookupCipher("aes128-ctr")
	key, iv := make([]byte, 16), make([]byte, 16)
	iv[15] = 0xff // forces a carry into the next byte
	plain := make([]byte, 64)
	whole, _ := algo.NewCipher(info, key, iv, false)
	split, _ := algo.NewCipher(info, key, iv, false)
	a := whole.Transform(append([]byte(nil), plain...))
	b := append(split.Transform(append([]byte(nil), plain[:16]...)), split.Transform(append([]byte(nil), plain[16:]...))...)
	if !bytes.Equal(a, b) {
		t.Fatal("key stream differs when transformed in pieces")
	}
}

func TestCBCRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"aes128-cbc", "aes192-cbc", "aes256-cbc", "3des-cbc"} {
		t.Run(name, func(t *testing.T) {
			info, _ := algo.LookupCipher(name)
			key := make([]byte, info.KeySize)
			iv := make([]byte, info.BlockSize)
			rand.Read(key)
			rand.Read(iv)
			plain := make([]byte, info.BlockSize*10)
			rand.Read(plain)
			enc, err := algo.NewCipher(info, key, iv, false)
			if err != nil {
				t.Fatal(err)
			}
			dec, _ := algo.NewCipher(info, key, iv, true)
			if enc.BlockSize() != info.BlockSize {
				t.Fatalf("block size %d", enc.BlockSize())
			}
			ct := enc.Transform(append([]byte(nil), plain...))
			if got := dec.Transform(ct); !bytes.Equal(got, plain) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestCipherConfigErrors(t *testing.T) {
	t.Parallel()
	var cfgErr *algo.ConfigError
	if _, err := algo.NewCipher(algo.CipherInfo{Name: "bogus"}, nil, nil, false); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	info, _ := algo.LookupCipher("aes256-ctr")
	if _, err := algo.NewCipher(info, make([]byte, 8), make([]byte, 16), false); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for short key, got %v", err)
	}
}

func TestDiffieHellman(t *testing.T) {
	t.Parallel()
	for _, bits := range []int{1024, 2048} {
		a, err := algo.NewDiffieHellman(bits, rand.Reader)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := algo.NewDiffieHellman(bits, rand.Reader)
		if a.Bits() != bits {
			t.Fatalf("bits = %d", a.Bits())
		}
		ka, err := a.DecryptExchange(b.CreateExchange())
		if err != nil {
			t.Fatal(err)
		}
		kb, err := b.DecryptExchange(a.CreateExchange())
		if err != nil {
			t.Fatal(err)
		}
		if ka.Cmp(kb) != 0 {
			t.Fatalf("%d: shared secrets differ", bits)
		}
	}
}

func TestDiffieHellmanRejects(t *testing.T) {
	t.Parallel()
	var cfgErr *algo.ConfigError
	if _, err := algo.NewDiffieHellman(4096, rand.Reader); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	d, _ := algo.NewDiffieHellman(1024, rand.Reader)
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 1024)} {
		if _, err := d.DecryptExchange(v); !errors.Is(err, algo.ErrDHOutOfBounds) {
			t.Fatalf("%v: expected out of bounds, got %v", v, err)
		}
	}
}

func TestMAC(t *testing.T) {
	t.Parallel()
	info, ok := algo.LookupMAC("hmac-sha1")
	if !ok || info.Size != 20 || info.KeySize != 20 {
		t.Fatalf("hmac-sha1 info %+v", info)
	}
	key := bytes.Repeat([]byte{0x0b}, 20)
	m := algo.NewMAC(info, key)
	packet := []byte("Hi There")
	want := hmac.New(sha1.New, key)
	binary.Write(want, binary.BigEndian, uint32(7))
	want.Write(packet)
	got := m.Compute(7, packet)
	if !bytes.Equal(got, want.Sum(nil)) {
		t.Fatalf("mac mismatch %x", got)
	}
	if !m.Equal(7, packet, want.Sum(nil)) {
		t.Fatal("Equal rejected a valid mac")
	}
	if m.Equal(8, packet, want.Sum(nil)) {
		t.Fatal("Equal accepted a mac for the wrong sequence number")
	}
	md5Info, _ := algo.LookupMAC("hmac-md5")
	if algo.NewMAC(md5Info, make([]byte, 32)).Size() != 16 {
		t.Fatal("hmac-md5 digest size")
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name           string
		client, server []string
		want           string
		ok             bool
	}{
		{"single", []string{"aes128-ctr"}, algo.Ciphers, "aes128-ctr", true},
		{"client-order", []string{"aes256-ctr", "aes128-ctr"}, algo.Ciphers, "aes256-ctr", true},
		{"skip-unknown", []string{"chacha20-poly1305@openssh.com", "hmac-sha1"}, algo.MACs, "hmac-sha1", true},
		{"none", []string{"none"}, algo.Compressions, "none", true},
		{"no-overlap", []string{"curve25519-sha256"}, algo.KeyExchanges, "", false},
		{"empty", nil, algo.HostKeys, "", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := algo.Pick(tc.client, tc.server)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Pick = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
	if got := algo.Supported([]string{"bogus", "hmac-md5"}, algo.MACs); len(got) != 1 || got[0] != "hmac-md5" {
		t.Fatalf("Supported = %v", got)
	}
}

var (
	keysOnce sync.Once
	rsaKey   *algo.RSAKey
	dssKey   *algo.DSSKey
	keysErr  error
)

func testKeys(t *testing.T) []algo.HostKey {
	t.Helper()
	keysOnce.Do(func() {
		if rsaKey, keysErr = algo.GenerateRSA(rand.Reader, 1024); keysErr != nil {
			return
		}
		dssKey, keysErr = algo.GenerateDSS(rand.Reader)
	})
	if keysErr != nil {
		t.Fatalf("generate keys: %v", keysErr)
	}
	return []algo.HostKey{rsaKey, dssKey}
}

var fingerprintRe = regexp.MustCompile(`^([0-9a-f]{2}:){15}[0-9a-f]{2}$`)

func TestHostKeys(t *testing.T) {
	t.Parallel()
	for _, k := range testKeys(t) {
		t.Run(k.Name(), func(t *testing.T) {
			data := []byte("exchange hash")
			sig, err := k.Sign(rand.Reader, data)
			if err != nil {
				t.Fatal(err)
			}
			if err := k.Verify(data, sig); err != nil {
				t.Fatalf("verify: %v", err)
			}
			if err := k.Verify([]byte("other"), sig); err == nil {
				t.Fatal("verify accepted the wrong data")
			}
			// signing a precomputed digest must agree with signing the data
			digest := algo.SHA1(data)
			hsig, err := k.SignHash(rand.Reader, digest)
			if err != nil {
				t.Fatal(err)
			}
			if err := k.Verify(data, hsig); err != nil {
				t.Fatalf("verify of hash signature: %v", err)
			}
			if err := k.VerifyHash(digest, sig); err != nil {
				t.Fatalf("verify hash of data signature: %v", err)
			}
			if err := algo.VerifyPublicKey(k.PublicBlob(), data, sig); err != nil {
				t.Fatalf("VerifyPublicKey: %v", err)
			}
			s, err := algo.ParseSignature(sig)
			if err != nil || s.Format != k.Name() {
				t.Fatalf("signature format %v %v", s, err)
			}
			if fp := k.Fingerprint(); !fingerprintRe.MatchString(fp) {
				t.Fatalf("fingerprint %q", fp)
			}
			der, err := k.Export()
			if err != nil {
				t.Fatal(err)
			}
			k2, err := algo.ImportHostKey(k.Name(), der)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if !bytes.Equal(k2.PublicBlob(), k.PublicBlob()) {
				t.Fatal("imported key has a different public blob")
			}
			if err := k2.Verify(data, sig); err != nil {
				t.Fatalf("imported key verify: %v", err)
			}
		})
	}
}

func TestImportUnknown(t *testing.T) {
	t.Parallel()
	var cfgErr *algo.ConfigError
	if _, err := algo.ImportHostKey("ssh-ed25519", nil); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestNoneCompression(t *testing.T) {
	t.Parallel()
	c, err := algo.NewCompression("none")
	if err != nil {
		t.Fatal(err)
	}
	p := []byte("payload")
	out, _ := c.Decompress(c.Compress(p))
	if !bytes.Equal(out, p) {
		t.Fatal("none compression altered payload")
	}
	if _, err := algo.NewCompression("zlib"); err == nil {
		t.Fatal("zlib should be unsupported")
	}
}
