package exr

import (
	"errors"
	"fmt"
	"io"
)

// MemBuffer is an in-memory file: a Writer sink that can be read back with Open.
type MemBuffer struct {
	buf []byte
	pos int
}

// Write writes p at the current position, growing the buffer as needed.
func (m *MemBuffer) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, max(end, 2*cap(m.buf)))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}

	copy(m.buf[m.pos:], p)
	m.pos = end

	return len(p), nil
}

// Seek sets the position for the next Write. Seeking past the end is allowed, the gap
// is zero filled by a later Write.
func (m *MemBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, errors.New("seek: negative position")
	}

	m.pos = int(pos)

	return pos, nil
}

// ReadAt reads len(p) bytes at off.
func (m *MemBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("read: negative offset")
	}

	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}

	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// Bytes returns the written contents. The slice aliases the buffer.
func (m *MemBuffer) Bytes() []byte { return m.buf }

// Len returns the size of the contents.
func (m *MemBuffer) Len() int { return len(m.buf) }
