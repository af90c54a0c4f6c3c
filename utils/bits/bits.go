// Package bits packs small unsigned values into a little-endian bit stream.
package bits

type (
	// Array is the backing store shared by a Writer and a Reader.
	Array struct {
		Bytes []byte
	}

	Writer struct {
		*Array
		bitOffset int // next free bit of the last byte
	}

	Reader struct {
		*Array
		byteOffset int
		bitOffset  int
	}
)

func NewWriter(arr *Array) *Writer {
	return &Writer{Array: arr}
}

func NewReader(arr *Array) *Reader {
	return &Reader{Array: arr}
}

// lowBits keeps the lowest n bits of v, n <= 8.
func lowBits(v uint, n int) uint {
	return v & (uint(0xff) >> (8 - n))
}

// Write appends the lowest n bits of v.
func (a *Writer) Write(n int, v uint) {
	for n > 0 {
		if a.bitOffset == 0 {
			a.Bytes = append(a.Bytes, 0)
		}
		chunk := 8 - a.bitOffset
		if n < chunk {
			chunk = n
		}
		a.Bytes[len(a.Bytes)-1] |= byte(lowBits(v, chunk) << a.bitOffset)
		a.bitOffset = (a.bitOffset + chunk) % 8
		v >>= chunk
		n -= chunk
	}
}

// Read consumes n bits. It panics past the end of the array.
func (a *Reader) Read(n int) (v uint) {
	shift := 0
	for n > 0 {
		chunk := 8 - a.bitOffset
		if n < chunk {
			chunk = n
		}
		b := uint(a.Bytes[a.byteOffset]) >> a.bitOffset
		v |= lowBits(b, chunk) << shift
		a.bitOffset += chunk
		if a.bitOffset == 8 {
			a.bitOffset = 0
			a.byteOffset++
		}
		shift += chunk
		n -= chunk
	}
	return v
}

// NonReadBytes counts the bytes not fully consumed, the current one included.
func (a *Reader) NonReadBytes() int {
	return len(a.Bytes) - a.byteOffset
}

func (a *Reader) NonReadBits() int {
	return a.NonReadBytes()*8 - a.bitOffset
}
