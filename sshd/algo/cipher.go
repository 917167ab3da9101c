package algo

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// Mode is a block cipher mode of operation.
type Mode int

const (
	ModeCBC Mode = iota + 1
	ModeCTR
)

// CipherInfo describes a symmetric cipher by its SSH name.
type CipherInfo struct {
	Name      string
	KeySize   int
	BlockSize int
	Mode      Mode
	newBlock  func(key []byte) (cipher.Block, error)
}

// Cipher transforms whole blocks in place. No padding is applied: the
// caller controls alignment.
type Cipher interface {
	BlockSize() int
	Transform(b []byte) []byte
}

// NewCipher builds the adapter for info. decrypt selects the CBC direction
// and is ignored in CTR mode, where both directions share one key stream.
func NewCipher(info CipherInfo, key, iv []byte, decrypt bool) (Cipher, error) {
	if info.newBlock == nil {
		return nil, configErrorf("cipher %q has no block constructor", info.Name)
	}
	if len(key) < info.KeySize || len(iv) < info.BlockSize {
		return nil, configErrorf("cipher %q: short key material", info.Name)
	}
	block, err := info.newBlock(key[:info.KeySize])
	if err != nil {
		return nil, err
	}
	iv = iv[:block.BlockSize()]
	switch info.Mode {
	case ModeCBC:
		if decrypt {
			return &blockCipher{cipher.NewCBCDecrypter(block, iv)}, nil
		}
		return &blockCipher{cipher.NewCBCEncrypter(block, iv)}, nil
	case ModeCTR:
		// the counter block is run through the encryptor and
		// incremented as a big-endian integer per block
		return &streamCipher{cipher.NewCTR(block, iv), block.BlockSize()}, nil
	}
	return nil, configErrorf("cipher %q: unsupported mode %d", info.Name, info.Mode)
}

type blockCipher struct {
	mode cipher.BlockMode
}

func (c *blockCipher) BlockSize() int { return c.mode.BlockSize() }

func (c *blockCipher) Transform(b []byte) []byte {
	c.mode.CryptBlocks(b, b)
	return b
}

type streamCipher struct {
	stream    cipher.Stream
	blockSize int
}

func (c *streamCipher) BlockSize() int { return c.blockSize }

func (c *streamCipher) Transform(b []byte) []byte {
	c.stream.XORKeyStream(b, b)
	return b
}

// NoneCipher is the implicit cipher before the first key exchange.
type NoneCipher struct{}

func (NoneCipher) BlockSize() int            { return 8 }
func (NoneCipher) Transform(b []byte) []byte { return b }

func aesCipher(name string, keySize int, mode Mode) CipherInfo {
	return CipherInfo{Name: name, KeySize: keySize, BlockSize: aes.BlockSize, Mode: mode, newBlock: aes.NewCipher}
}

var tripleDESCBC = CipherInfo{
	Name:      "3des-cbc",
	KeySize:   24,
	BlockSize: des.BlockSize,
	Mode:      ModeCBC,
	newBlock:  des.NewTripleDESCipher,
}
