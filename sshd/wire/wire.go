// Package wire encodes and decodes the primitive SSH data types
// described in RFC 4251 section 5.
package wire

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
)

// ErrUnexpectedEnd is returned when a read runs past the end of the buffer.
var ErrUnexpectedEnd = errors.New("wire: unexpected end of data")

// Writer appends SSH encoded values to a growable buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Blob appends a uint32 length prefixed byte string.
func (w *Writer) Blob(b []byte) {
	w.Uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Text appends a length prefixed ASCII or UTF-8 string.
func (w *Writer) Text(s string) {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// NameList appends a comma separated name-list.
func (w *Writer) NameList(names []string) {
	w.Text(strings.Join(names, ","))
}

// MPInt appends n as an SSH mpint. Negative values are never produced
// by the protocol and cause a panic.
func (w *Writer) MPInt(n *big.Int) {
	w.buf = AppendMPInt(w.buf, n)
}

// AppendMPInt appends the mpint encoding of n to b.
func AppendMPInt(b []byte, n *big.Int) []byte {
	if n.Sign() < 0 {
		panic("wire: negative mpint")
	}
	if n.Sign() == 0 {
		return binary.BigEndian.AppendUint32(b, 0)
	}
	mag := n.Bytes()
	if mag[0]&0x80 != 0 {
		b = binary.BigEndian.AppendUint32(b, uint32(len(mag)+1))
		b = append(b, 0)
	} else {
		b = binary.BigEndian.AppendUint32(b, uint32(len(mag)))
	}
	return append(b, mag...)
}

// MPIntBytes encodes the unsigned big-endian magnitude b as an mpint.
func MPIntBytes(b []byte) []byte {
	return AppendMPInt(nil, new(big.Int).SetBytes(b))
}

// Reader consumes SSH encoded values from a byte slice. The first
// failure is sticky: subsequent reads return zero values and Err
// reports the original error.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Rest returns the unread bytes and advances to the end.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Len() < n {
		r.err = ErrUnexpectedEnd
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Raw reads exactly n bytes.
func (r *Reader) Raw(n int) []byte {
	return r.take(n)
}

// Blob reads a length prefixed byte string. The result aliases the
// underlying buffer.
func (r *Reader) Blob() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(r.Len()) {
		r.err = ErrUnexpectedEnd
		return nil
	}
	return r.take(int(n))
}

// Text reads a length prefixed string.
func (r *Reader) Text() string {
	return string(r.Blob())
}

// NameList reads a comma separated name-list.
func (r *Reader) NameList() []string {
	s := r.Text()
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// MPInt reads an SSH mpint. Negative encodings are rejected.
func (r *Reader) MPInt() *big.Int {
	b := r.Blob()
	if r.err != nil {
		return nil
	}
	if len(b) > 0 && b[0]&0x80 != 0 {
		r.err = errors.New("wire: negative mpint")
		return nil
	}
	return new(big.Int).SetBytes(b)
}
