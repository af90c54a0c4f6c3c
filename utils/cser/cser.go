// Package cser is a compact canonical binary codec. Each value splits into a
// byte stream and a bit stream carrying flags and integer widths; decoding
// rejects any input that is not the minimal encoding of its value.
//
// Layout: [bytes][bits][reversed varint(len(bits))]
package cser

import (
	"errors"
	"math/big"

	"github.com/rony4d/go-opera-bridge/utils/bits"
	"github.com/rony4d/go-opera-bridge/utils/fast"
)

var (
	ErrNonCanonicalEncoding = errors.New("non canonical encoding")
	ErrMalformedEncoding    = errors.New("malformed encoding")
	ErrTooLargeAlloc        = errors.New("too large allocation")
)

// MaxAlloc caps a decoded byte slice.
const MaxAlloc = 100 * 1024

type Writer struct {
	BitsW  *bits.Writer
	BytesW *fast.Writer
}

type Reader struct {
	BitsR  *bits.Reader
	BytesR *fast.Reader
}

func NewWriter() *Writer {
	return &Writer{
		BitsW:  bits.NewWriter(&bits.Array{Bytes: make([]byte, 0, 32)}),
		BytesW: fast.NewWriter(make([]byte, 0, 200)),
	}
}

// MarshalBinaryAdapter runs marshalCser and joins both streams.
func MarshalBinaryAdapter(marshalCser func(*Writer) error) ([]byte, error) {
	w := NewWriter()
	if err := marshalCser(w); err != nil {
		return nil, err
	}
	out := fast.NewWriter(w.BytesW.Bytes())
	out.Write(w.BitsW.Bytes)

	size := fast.NewWriter(make([]byte, 0, 4))
	writeVarint(size, uint64(len(w.BitsW.Bytes)))
	out.Write(reversed(size.Bytes()))
	return out.Bytes(), nil
}

// UnmarshalBinaryAdapter splits raw and runs unmarshalCser over it. Both
// streams must be consumed exactly, with zero padding bits.
func UnmarshalBinaryAdapter(raw []byte, unmarshalCser func(*Reader) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && (errors.Is(e, ErrNonCanonicalEncoding) || errors.Is(e, ErrTooLargeAlloc)) {
				err = e
				return
			}
			err = ErrMalformedEncoding
		}
	}()

	sizeR := fast.NewReader(reversed(tail(raw, 9)))
	bitsSize := readVarint(sizeR)
	raw = raw[:len(raw)-sizeR.Position()]
	if uint64(len(raw)) < bitsSize {
		return ErrMalformedEncoding
	}
	split := uint64(len(raw)) - bitsSize

	r := &Reader{
		BitsR:  bits.NewReader(&bits.Array{Bytes: raw[split:]}),
		BytesR: fast.NewReader(raw[:split]),
	}
	if err := unmarshalCser(r); err != nil {
		return err
	}

	if r.BitsR.NonReadBytes() > 1 {
		return ErrNonCanonicalEncoding
	}
	if r.BitsR.Read(r.BitsR.NonReadBits()) != 0 {
		return ErrNonCanonicalEncoding
	}
	if !r.BytesR.Empty() {
		return ErrNonCanonicalEncoding
	}
	return nil
}

// writeVarint is a base-128 varint whose last byte has the high bit set.
func writeVarint(w *fast.Writer, v uint64) {
	for {
		chunk := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			w.WriteByte(chunk | 0x80)
			return
		}
		w.WriteByte(chunk)
	}
}

func readVarint(r *fast.Reader) uint64 {
	var v uint64
	for i := 0; ; i++ {
		chunk := r.ReadByte()
		if i == 9 {
			panic(ErrMalformedEncoding)
		}
		v |= uint64(chunk&0x7f) << (7 * i)
		if chunk&0x80 != 0 {
			if i > 0 && chunk == 0x80 {
				panic(ErrNonCanonicalEncoding)
			}
			return v
		}
	}
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// writeLE writes v little endian in at least minSize bytes and returns the
// number written.
func writeLE(w *fast.Writer, v uint64, minSize int) (size int) {
	for size < minSize || v != 0 {
		w.WriteByte(byte(v))
		size++
		v >>= 8
	}
	return size
}

func readLE(r *fast.Reader, size int) uint64 {
	buf := r.Read(size)
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * i)
	}
	if size > 1 && buf[size-1] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

// writeSized stores the byte width of v, minus minSize, in widthBits of the bit stream.
func (w *Writer) writeSized(minSize, widthBits int, v uint64) {
	size := writeLE(w.BytesW, v, minSize)
	w.BitsW.Write(widthBits, uint(size-minSize))
}

func (r *Reader) readSized(minSize, widthBits int) uint64 {
	size := int(r.BitsR.Read(widthBits)) + minSize
	return readLE(r.BytesR, size)
}

func (w *Writer) U8(v uint8) {
	w.BytesW.WriteByte(v)
}

func (r *Reader) U8() uint8 {
	return r.BytesR.ReadByte()
}

func (w *Writer) U32(v uint32) {
	w.writeSized(1, 2, uint64(v))
}

func (r *Reader) U32() uint32 {
	return uint32(r.readSized(1, 2))
}

func (w *Writer) U64(v uint64) {
	w.writeSized(1, 3, v)
}

func (r *Reader) U64() uint64 {
	return r.readSized(1, 3)
}

// U56 encodes lengths; zero takes no bytes.
func (w *Writer) U56(v uint64) {
	if v >= 1<<56 {
		panic(ErrTooLargeAlloc)
	}
	w.writeSized(0, 3, v)
}

func (r *Reader) U56() uint64 {
	return r.readSized(0, 3)
}

func (w *Writer) Bool(v bool) {
	var u uint
	if v {
		u = 1
	}
	w.BitsW.Write(1, u)
}

func (r *Reader) Bool() bool {
	return r.BitsR.Read(1) != 0
}

func (w *Writer) FixedBytes(v []byte) {
	w.BytesW.Write(v)
}

func (r *Reader) FixedBytes(v []byte) {
	copy(v, r.BytesR.Read(len(v)))
}

func (w *Writer) SliceBytes(v []byte) {
	w.U56(uint64(len(v)))
	w.FixedBytes(v)
}

func (r *Reader) SliceBytes(maxLen int) []byte {
	size := r.U56()
	if size > uint64(maxLen) {
		panic(ErrTooLargeAlloc)
	}
	buf := make([]byte, size)
	r.FixedBytes(buf)
	return buf
}

// BigInt encodes the magnitude of a non-negative v; nil encodes as zero.
func (w *Writer) BigInt(v *big.Int) {
	if v == nil || v.Sign() == 0 {
		w.SliceBytes(nil)
		return
	}
	w.SliceBytes(v.Bytes())
}

func (r *Reader) BigInt() *big.Int {
	buf := r.SliceBytes(64)
	if len(buf) > 0 && buf[0] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return new(big.Int).SetBytes(buf)
}
