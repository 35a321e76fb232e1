package exr

import (
	"bytes"
	"errors"
	"io"

	"github.com/vearutop/exr/internal/exrx"
)

// IsEXR checks the magic number and version word without reading further. A file with
// the right magic but an unsupported version or flags is not reported as EXR.
func IsEXR(r io.Reader) (bool, error) {
	var head [8]byte

	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}

		return false, ioError(err)
	}

	if !bytes.Equal(head[:4], exrx.MagicBytes[:]) {
		return false, nil
	}

	c := exrx.NewCursor(head[4:])

	return checkVersion(c.Uint32()) == nil, nil
}
