package exr

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zipLevel is fixed so identical chunks always produce identical bytes.
const zipLevel = zlib.DefaultCompression

var zipWriters = sync.Pool{
	New: func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, zipLevel)
		return w
	},
}

func zipCompress(raw []byte) ([]byte, error) {
	return deflate(applyPredictor(shuffleBytes(raw)))
}

func zipUncompress(packed []byte, expectedLen int) ([]byte, error) {
	data, err := inflate(packed, expectedLen)
	if err != nil {
		return nil, err
	}

	undoPredictor(data)

	return unshuffleBytes(data), nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := zipWriters.Get().(*zlib.Writer)
	defer zipWriters.Put(zw)

	zw.Reset(&buf)

	if _, err := zw.Write(data); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// inflate decodes a zlib stream that must hold exactly expectedLen bytes and fill packed
// to the end.
func inflate(packed []byte, expectedLen int) ([]byte, error) {
	br := bytes.NewReader(packed)

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptChunk, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, int64(expectedLen)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptChunk, err)
	}

	if len(data) != expectedLen {
		return nil, fmt.Errorf("%w: inflated %d bytes, want %d", ErrCorruptChunk, len(data), expectedLen)
	}

	// The stream ended inside the limit, so the checksum has been verified.
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after the zlib stream", ErrCorruptChunk, br.Len())
	}

	return data, nil
}

// shuffleBytes moves even-indexed bytes to the first half and odd-indexed bytes to the
// second half.
func shuffleBytes(data []byte) []byte {
	out := make([]byte, len(data))
	half := (len(data) + 1) / 2

	for i, b := range data {
		if i%2 == 0 {
			out[i/2] = b
		} else {
			out[half+i/2] = b
		}
	}

	return out
}

func unshuffleBytes(data []byte) []byte {
	out := make([]byte, len(data))
	half := (len(data) + 1) / 2

	for i := range out {
		if i%2 == 0 {
			out[i] = data[i/2]
		} else {
			out[i] = data[half+i/2]
		}
	}

	return out
}

// applyPredictor replaces every byte but the first with its difference to the previous
// one, biased by 128. It works in place and returns data.
func applyPredictor(data []byte) []byte {
	for i := len(data) - 1; i > 0; i-- {
		data[i] = byte(int(data[i]) - int(data[i-1]) + 128)
	}

	return data
}

func undoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}
