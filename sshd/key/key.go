package key

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/jpillora/foxssh/sshd/algo"
	"golang.org/x/crypto/ssh"
)

// Map holds authorized public keys, keyed by their wire encoding, with
// the key comment as value.
type Map map[string]string

// Comment returns the comment recorded for the encoded public key blob.
func (m Map) Comment(blob []byte) (string, bool) {
	c, ok := m[string(blob)]
	return c, ok
}

// GenerateHostKeys creates an RSA key of the given size followed by a
// 1024 bit DSS key. A non empty seed makes the output deterministic.
func GenerateHostKeys(seed string, bits int) (*algo.RSAKey, *algo.DSSKey, error) {
	var r io.Reader
	if seed == "" {
		r = rand.Reader
	} else {
		r = NewDetermRand([]byte(seed))
	}
	if bits == 0 {
		bits = DefaultBits
	}
	rsaKey, err := algo.GenerateRSA(r, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	dssKey, err := algo.GenerateDSS(r)
	if err != nil {
		return nil, nil, fmt.Errorf("generate dss key: %w", err)
	}
	return rsaKey, dssKey, nil
}

func GitHubKeys(user string) (Map, error) {
	resp, err := http.Get("https://github.com/" + user + ".keys")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch github user keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch github user keys: %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseKeys(b)
}

// ParseKeys reads authorized_keys formatted lines, skipping any that do
// not parse.
func ParseKeys(b []byte) (Map, error) {
	lines := bytes.Split(b, []byte("\n"))
	m := Map{}
	for _, l := range lines {
		if key, cmt, _, _, err := ssh.ParseAuthorizedKey(l); err == nil {
			m[string(key.Marshal())] = cmt
		}
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("no keys found")
	}
	return m, nil
}

func Fingerprint(k ssh.PublicKey) string {
	bytes := sha256.Sum256(k.Marshal())
	b64 := base64.StdEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes[:])
	return "SHA256:" + b64
}

const DetermRandIter = 2048

func NewDetermRand(seed []byte) io.Reader {
	var out []byte
	var next = seed
	for i := 0; i < DetermRandIter; i++ {
		next, out = hash(next)
	}
	return &DetermRand{
		next: next,
		out:  out,
	}
}

// DetermRand is an endless SHA512 hash chain. Single byte reads are
// answered without consuming the chain so that key generation cannot
// perturb the stream.
type DetermRand struct {
	next, out []byte
}

func (d *DetermRand) Read(b []byte) (int, error) {
	l := len(b)
	if l == 1 {
		return 1, nil
	}
	n := 0
	for n < l {
		next, out := hash(d.next)
		n += copy(b[n:], out)
		d.next = next
	}
	return n, nil
}

func hash(input []byte) (next []byte, output []byte) {
	nextout := sha512.Sum512(input)
	return nextout[:sha512.Size/2], nextout[sha512.Size/2:]
}
