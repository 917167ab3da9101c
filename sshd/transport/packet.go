package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jpillora/foxssh/sshd/algo"
	"github.com/jpillora/foxssh/sshd/message"
)

// direction is the algorithm state of one side of the connection.
type direction struct {
	cipher      algo.Cipher
	mac         *algo.MAC
	compression algo.Compression
}

// plain is the state before the first key exchange completes.
func plain() *direction {
	return &direction{cipher: algo.NoneCipher{}, compression: algo.NoCompression{}}
}

func (d *direction) blockSize() int {
	return max(8, d.cipher.BlockSize())
}

func (d *direction) macSize() int {
	if d.mac == nil {
		return 0
	}
	return d.mac.Size()
}

// padding returns the random padding length for a payload of n bytes so
// that the record is a multiple of blockSize with at least 4 bytes of
// padding.
func padding(n, blockSize int) int {
	pad := blockSize - (5+n)%blockSize
	if pad < 4 {
		pad += blockSize
	}
	return pad
}

// seal frames payload into a complete wire record using seq as the
// sequence number.
func (d *direction) seal(seq uint32, payload []byte, rand io.Reader) ([]byte, error) {
	payload = d.compression.Compress(payload)
	pad := padding(len(payload), d.blockSize())
	total := 5 + len(payload) + pad
	buf := make([]byte, total, total+d.macSize())
	binary.BigEndian.PutUint32(buf, uint32(total-4))
	buf[4] = byte(pad)
	copy(buf[5:], payload)
	if _, err := io.ReadFull(rand, buf[5+len(payload):]); err != nil {
		return nil, fmt.Errorf("transport: padding: %w", err)
	}
	var mac []byte
	if d.mac != nil {
		mac = d.mac.Compute(seq, buf)
	}
	d.cipher.Transform(buf)
	return append(buf, mac...), nil
}

// open reads one record from r and returns its decompressed payload.
func (d *direction) open(seq uint32, r io.Reader) ([]byte, int, error) {
	bs := d.blockSize()
	first := make([]byte, bs)
	if _, err := io.ReadFull(r, first); err != nil {
		return nil, 0, err
	}
	d.cipher.Transform(first)
	length := binary.BigEndian.Uint32(first)
	if length > MaxPacket || int(length)+4 < bs || (int(length)+4)%bs != 0 {
		return nil, 0, protocolErrorf(message.ProtocolError, "bad packet length %d", length)
	}
	packet := make([]byte, 4+int(length))
	copy(packet, first)
	if _, err := io.ReadFull(r, packet[bs:]); err != nil {
		return nil, 0, err
	}
	d.cipher.Transform(packet[bs:])
	wireLen := len(packet)
	if d.mac != nil {
		sum := make([]byte, d.mac.Size())
		if _, err := io.ReadFull(r, sum); err != nil {
			return nil, 0, err
		}
		wireLen += len(sum)
		if !d.mac.Equal(seq, packet, sum) {
			return nil, 0, protocolErrorf(message.MacError, "mac mismatch on packet %d", seq)
		}
	}
	pad := int(packet[4])
	if pad < 4 || 5+pad > len(packet) {
		return nil, 0, protocolErrorf(message.ProtocolError, "bad padding length %d", pad)
	}
	payload, err := d.compression.Decompress(packet[5 : len(packet)-pad])
	if err != nil {
		return nil, 0, protocolErrorf(message.CompressionError, "%v", err)
	}
	return payload, wireLen, nil
}
