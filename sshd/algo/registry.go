package algo

import (
	"crypto/sha1"
	"hash"
	"io"
)

// KexInfo describes a key exchange method.
type KexInfo struct {
	Name string
	Bits int
	Hash func() hash.Hash
}

// NewExchange starts the server side of a key exchange.
func (k KexInfo) NewExchange(rand io.Reader) (*DiffieHellman, error) {
	return NewDiffieHellman(k.Bits, rand)
}

// The supported algorithm tables, in server preference order. They are
// built once at package initialisation and never modified.
var (
	KeyExchanges = []string{"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1"}
	HostKeys     = []string{HostKeyRSA, HostKeyDSS}
	Ciphers      = []string{"aes128-ctr", "aes192-ctr", "aes256-ctr", "aes128-cbc", "3des-cbc", "aes192-cbc", "aes256-cbc"}
	MACs         = []string{"hmac-sha1", "hmac-md5"}
	Compressions = []string{"none"}
)

var kexTable = map[string]KexInfo{
	"diffie-hellman-group14-sha1": {Name: "diffie-hellman-group14-sha1", Bits: 2048, Hash: sha1.New},
	"diffie-hellman-group1-sha1":  {Name: "diffie-hellman-group1-sha1", Bits: 1024, Hash: sha1.New},
}

var cipherTable = map[string]CipherInfo{
	"aes128-ctr": aesCipher("aes128-ctr", 16, ModeCTR),
	"aes192-ctr": aesCipher("aes192-ctr", 24, ModeCTR),
	"aes256-ctr": aesCipher("aes256-ctr", 32, ModeCTR),
	"aes128-cbc": aesCipher("aes128-cbc", 16, ModeCBC),
	"aes192-cbc": aesCipher("aes192-cbc", 24, ModeCBC),
	"aes256-cbc": aesCipher("aes256-cbc", 32, ModeCBC),
	"3des-cbc":   tripleDESCBC,
}

var macTable = map[string]MACInfo{
	hmacSHA1.Name: hmacSHA1,
	hmacMD5.Name:  hmacMD5,
}

var compressionTable = map[string]func() Compression{
	"none": func() Compression { return NoCompression{} },
}

func LookupKex(name string) (KexInfo, bool) {
	k, ok := kexTable[name]
	return k, ok
}

func LookupCipher(name string) (CipherInfo, bool) {
	c, ok := cipherTable[name]
	return c, ok
}

func LookupMAC(name string) (MACInfo, bool) {
	m, ok := macTable[name]
	return m, ok
}

func NewCompression(name string) (Compression, error) {
	f, ok := compressionTable[name]
	if !ok {
		return nil, configErrorf("unsupported compression %q", name)
	}
	return f(), nil
}

// Pick returns the first algorithm in the client's preference list that
// the server also supports.
func Pick(client, server []string) (string, bool) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, true
			}
		}
	}
	return "", false
}

// Supported filters names down to the entries known to this package for
// one algorithm category, keeping order. It is used to validate
// configured preference lists.
func Supported(names []string, known []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := Pick([]string{n}, known); ok {
			out = append(out, n)
		}
	}
	return out
}
