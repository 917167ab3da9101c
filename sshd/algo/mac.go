package algo

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"hash"
)

// MACInfo describes a keyed hash by its SSH name.
type MACInfo struct {
	Name    string
	KeySize int
	Size    int
	hash    func() hash.Hash
}

// MAC computes packet authentication codes (RFC 4253 section 6.4).
type MAC struct {
	h   hash.Hash
	seq [4]byte
	sum []byte
}

func NewMAC(info MACInfo, key []byte) *MAC {
	if len(key) > info.KeySize {
		key = key[:info.KeySize]
	}
	return &MAC{h: hmac.New(info.hash, key)}
}

// Size is the digest length in bytes.
func (m *MAC) Size() int { return m.h.Size() }

// Compute returns HMAC(key, uint32 seq || packet). The result is only
// valid until the next call.
func (m *MAC) Compute(seq uint32, packet []byte) []byte {
	m.h.Reset()
	binary.BigEndian.PutUint32(m.seq[:], seq)
	m.h.Write(m.seq[:])
	m.h.Write(packet)
	m.sum = m.h.Sum(m.sum[:0])
	return m.sum
}

// Equal reports whether mac is the expected digest in constant time.
func (m *MAC) Equal(seq uint32, packet, mac []byte) bool {
	return hmac.Equal(m.Compute(seq, packet), mac)
}

var (
	hmacSHA1 = MACInfo{Name: "hmac-sha1", KeySize: sha1.Size, Size: sha1.Size, hash: sha1.New}
	hmacMD5  = MACInfo{Name: "hmac-md5", KeySize: md5.Size, Size: md5.Size, hash: md5.New}
)
