// Package fast provides unchecked byte buffers for the compact codecs.
// Readers panic on overrun; callers recover at the decoding boundary.
package fast

type Reader struct {
	buf    []byte
	offset int
}

type Writer struct {
	buf []byte
}

// NewReader reads bb from the start.
func NewReader(bb []byte) *Reader {
	return &Reader{buf: bb}
}

// NewWriter appends to bb.
func NewWriter(bb []byte) *Writer {
	return &Writer{buf: bb}
}

func (b *Writer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Writer) Write(v []byte) {
	b.buf = append(b.buf, v...)
}

func (b *Writer) Bytes() []byte {
	return b.buf
}

// Read returns the next n bytes without copying them.
func (b *Reader) Read(n int) []byte {
	res := b.buf[b.offset : b.offset+n]
	b.offset += n
	return res
}

func (b *Reader) ReadByte() byte {
	res := b.buf[b.offset]
	b.offset++
	return res
}

func (b *Reader) Position() int {
	return b.offset
}

func (b *Reader) Empty() bool {
	return len(b.buf) == b.offset
}
