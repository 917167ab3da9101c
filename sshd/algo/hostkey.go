package algo

import (
	"crypto"
	"crypto/dsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/jpillora/foxssh/sshd/wire"
	"golang.org/x/crypto/ssh"
)

const (
	HostKeyRSA = "ssh-rsa"
	HostKeyDSS = "ssh-dss"
)

// HostKey is a server host key able to sign exchange hashes.
type HostKey interface {
	// Name is the SSH public key algorithm name.
	Name() string
	// PublicBlob is the canonical SSH public key encoding.
	PublicBlob() []byte
	// Sign signs data and returns an SSH signature blob
	// (string name || string signature).
	Sign(rand io.Reader, data []byte) ([]byte, error)
	// SignHash signs a precomputed SHA1 digest.
	SignHash(rand io.Reader, digest []byte) ([]byte, error)
	Verify(data, sig []byte) error
	VerifyHash(digest, sig []byte) error
	// Export returns the raw private key material for storage.
	Export() ([]byte, error)
	// Fingerprint is the colon separated MD5 hex of the public blob.
	Fingerprint() string
}

// ImportHostKey rebuilds a host key of the named algorithm from Export output.
func ImportHostKey(name string, der []byte) (HostKey, error) {
	switch name {
	case HostKeyRSA:
		priv, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("import rsa key: %w", err)
		}
		return NewRSAKey(priv)
	case HostKeyDSS:
		priv, err := ssh.ParseDSAPrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("import dss key: %w", err)
		}
		return NewDSSKey(priv)
	}
	return nil, configErrorf("unsupported host key algorithm %q", name)
}

// GenerateRSA creates a new RSA host key.
func GenerateRSA(rand io.Reader, bits int) (*RSAKey, error) {
	priv, err := rsa.GenerateKey(rand, bits)
	if err != nil {
		return nil, err
	}
	if err := priv.Validate(); err != nil {
		return nil, err
	}
	return NewRSAKey(priv)
}

// GenerateDSS creates a new 1024 bit DSS host key.
func GenerateDSS(rand io.Reader) (*DSSKey, error) {
	priv := &dsa.PrivateKey{}
	if err := dsa.GenerateParameters(&priv.Parameters, rand, dsa.L1024N160); err != nil {
		return nil, err
	}
	if err := dsa.GenerateKey(priv, rand); err != nil {
		return nil, err
	}
	return NewDSSKey(priv)
}

// RSAKey is an ssh-rsa host key. Signatures use SHA1 with PKCS#1 v1.5.
type RSAKey struct {
	priv   *rsa.PrivateKey
	signer ssh.AlgorithmSigner
	pub    ssh.PublicKey
}

func NewRSAKey(priv *rsa.PrivateKey) (*RSAKey, error) {
	s, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}
	as, ok := s.(ssh.AlgorithmSigner)
	if !ok {
		return nil, errors.New("algo: rsa signer does not support algorithm selection")
	}
	return &RSAKey{priv: priv, signer: as, pub: s.PublicKey()}, nil
}

func (k *RSAKey) Name() string       { return HostKeyRSA }
func (k *RSAKey) PublicBlob() []byte { return k.pub.Marshal() }
func (k *RSAKey) Fingerprint() string {
	return ssh.FingerprintLegacyMD5(k.pub)
}

func (k *RSAKey) Export() ([]byte, error) {
	return x509.MarshalPKCS1PrivateKey(k.priv), nil
}

func (k *RSAKey) Sign(rand io.Reader, data []byte) ([]byte, error) {
	sig, err := k.signer.SignWithAlgorithm(rand, data, HostKeyRSA)
	if err != nil {
		return nil, err
	}
	return ssh.Marshal(sig), nil
}

func (k *RSAKey) SignHash(rand io.Reader, digest []byte) ([]byte, error) {
	b, err := rsa.SignPKCS1v15(rand, k.priv, crypto.SHA1, digest)
	if err != nil {
		return nil, err
	}
	return signatureBlob(HostKeyRSA, b), nil
}

func (k *RSAKey) Verify(data, sig []byte) error {
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	if s.Format != HostKeyRSA {
		return fmt.Errorf("algo: unexpected signature format %q", s.Format)
	}
	return k.pub.Verify(data, s)
}

func (k *RSAKey) VerifyHash(digest, sig []byte) error {
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	if s.Format != HostKeyRSA {
		return fmt.Errorf("algo: unexpected signature format %q", s.Format)
	}
	return rsa.VerifyPKCS1v15(&k.priv.PublicKey, crypto.SHA1, digest, s.Blob)
}

// DSSKey is an ssh-dss host key (FIPS 186-2, 1024/160).
type DSSKey struct {
	priv   *dsa.PrivateKey
	signer ssh.Signer
	pub    ssh.PublicKey
}

func NewDSSKey(priv *dsa.PrivateKey) (*DSSKey, error) {
	s, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}
	return &DSSKey{priv: priv, signer: s, pub: s.PublicKey()}, nil
}

func (k *DSSKey) Name() string       { return HostKeyDSS }
func (k *DSSKey) PublicBlob() []byte { return k.pub.Marshal() }
func (k *DSSKey) Fingerprint() string {
	return ssh.FingerprintLegacyMD5(k.pub)
}

// Export encodes the key in the OpenSSL "DSA PRIVATE KEY" ASN.1 layout.
func (k *DSSKey) Export() ([]byte, error) {
	return asn1.Marshal(struct {
		Version       int
		P, Q, G, Y, X *big.Int
	}{0, k.priv.P, k.priv.Q, k.priv.G, k.priv.Y, k.priv.X})
}

func (k *DSSKey) Sign(rand io.Reader, data []byte) ([]byte, error) {
	sig, err := k.signer.Sign(rand, data)
	if err != nil {
		return nil, err
	}
	return ssh.Marshal(sig), nil
}

func (k *DSSKey) SignHash(rand io.Reader, digest []byte) ([]byte, error) {
	r, s, err := dsa.Sign(rand, k.priv, digest)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 40)
	r.FillBytes(b[:20])
	s.FillBytes(b[20:])
	return signatureBlob(HostKeyDSS, b), nil
}

func (k *DSSKey) Verify(data, sig []byte) error {
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	return k.pub.Verify(data, s)
}

func (k *DSSKey) VerifyHash(digest, sig []byte) error {
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	if s.Format != HostKeyDSS || len(s.Blob) != 40 {
		return errors.New("algo: malformed dss signature")
	}
	r := new(big.Int).SetBytes(s.Blob[:20])
	ss := new(big.Int).SetBytes(s.Blob[20:])
	if !dsa.Verify(&k.priv.PublicKey, digest, r, ss) {
		return errors.New("algo: dss signature verification failed")
	}
	return nil
}

// ParseSignature splits an SSH signature blob into its format and body.
func ParseSignature(sig []byte) (*ssh.Signature, error) {
	r := wire.NewReader(sig)
	s := &ssh.Signature{Format: r.Text(), Blob: r.Blob()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("algo: parse signature: %w", err)
	}
	return s, nil
}

// VerifyPublicKey checks sig over data using an SSH encoded public key of
// any type understood by x/crypto/ssh. It serves user authentication,
// where client keys are not restricted to the host key suite.
func VerifyPublicKey(blob, data, sig []byte) error {
	pub, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return err
	}
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	return pub.Verify(data, s)
}

func signatureBlob(name string, sig []byte) []byte {
	w := wire.NewWriter(8 + len(name) + len(sig))
	w.Text(name)
	w.Blob(sig)
	return w.Bytes()
}

// SHA1 hashes data, the digest used by every host key algorithm here.
func SHA1(data []byte) []byte {
	h := sha1.Sum(data)
	return h[:]
}
