package key

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jpillora/foxssh/sshd/algo"
	"gopkg.in/yaml.v3"
)

// DefaultBits is the RSA host key size used when none is given.
const DefaultBits = 4096

// Store is the on disk host key file. Keys are base64 encoded exports
// (PKCS#1 DER for RSA, OpenSSL ASN.1 DER for DSS).
type Store struct {
	RSA       string    `yaml:"rsa"`
	DSS       string    `yaml:"dss,omitempty"`
	Generated time.Time `yaml:"generated"`
}

// NewStore generates a fresh set of host keys.
func NewStore(seed string, bits int) (*Store, error) {
	rsaKey, dssKey, err := GenerateHostKeys(seed, bits)
	if err != nil {
		return nil, err
	}
	s := &Store{Generated: time.Now().UTC()}
	if s.RSA, err = export(rsaKey); err != nil {
		return nil, err
	}
	if s.DSS, err = export(dssKey); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadOrCreate reads the store at path, generating and writing it on
// first use.
func LoadOrCreate(path, seed string, bits int) (*Store, bool, error) {
	s, err := Load(path)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	s, err = NewStore(seed, bits)
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(path); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	if s.RSA == "" && s.DSS == "" {
		return nil, fmt.Errorf("key file %s contains no keys", path)
	}
	return s, nil
}

// Save writes the store readable by the owner only.
func (s *Store) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// HostKeys imports the stored keys, RSA first.
func (s *Store) HostKeys() ([]algo.HostKey, error) {
	var keys []algo.HostKey
	for _, k := range []struct{ name, b64 string }{
		{algo.HostKeyRSA, s.RSA},
		{algo.HostKeyDSS, s.DSS},
	} {
		if k.b64 == "" {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(k.b64)
		if err != nil {
			return nil, fmt.Errorf("decode %s key: %w", k.name, err)
		}
		hk, err := algo.ImportHostKey(k.name, der)
		if err != nil {
			return nil, err
		}
		keys = append(keys, hk)
	}
	return keys, nil
}

func export(k algo.HostKey) (string, error) {
	der, err := k.Export()
	if err != nil {
		return "", fmt.Errorf("export %s key: %w", k.Name(), err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
