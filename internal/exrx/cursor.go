package exrx

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShort is reported by Cursor when the buffer ends before a value is complete.
var ErrShort = errors.New("exrx: buffer too short")

// Cursor reads little-endian values from a byte slice. The first failure sticks:
// later reads return zero values and Err keeps the original error.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Err returns the first error encountered.
func (c *Cursor) Err() error { return c.err }

// Pos returns the number of consumed bytes.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.pos }

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = ErrShort
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte { return c.take(n) }

// Uint8 reads one byte.
func (c *Cursor) Uint8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian uint16.
func (c *Cursor) Uint16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads a little-endian int32.
func (c *Cursor) Int32() int32 { return int32(c.Uint32()) }

// Uint64 reads a little-endian uint64.
func (c *Cursor) Uint64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Float32 reads an IEEE float32.
func (c *Cursor) Float32() float32 { return math.Float32frombits(c.Uint32()) }

// Float64 reads an IEEE float64.
func (c *Cursor) Float64() float64 { return math.Float64frombits(c.Uint64()) }

// CString reads a null-terminated string. The terminator is consumed.
func (c *Cursor) CString() string {
	if c.err != nil {
		return ""
	}
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.pos:i])
			c.pos = i + 1
			return s
		}
	}
	c.err = ErrShort
	return ""
}

// AppendUint32 appends v little-endian.
func AppendUint32(dst []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(dst, v) }

// AppendInt32 appends v little-endian.
func AppendInt32(dst []byte, v int32) []byte { return binary.LittleEndian.AppendUint32(dst, uint32(v)) }

// AppendUint64 appends v little-endian.
func AppendUint64(dst []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(dst, v) }

// AppendFloat32 appends the bits of v little-endian.
func AppendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

// AppendFloat64 appends the bits of v little-endian.
func AppendFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

// AppendCString appends s followed by a null byte.
func AppendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() uint8 {
	if c.err != nil {
		return 0
	}
	if c.pos >= len(c.buf) {
		c.err = ErrShort
		return 0
	}
	return c.buf[c.pos]
}
