package exr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vearutop/exr/internal/exrx"
	"github.com/vearutop/exr/internal/huf"
	"github.com/vearutop/exr/internal/wavelet"
)

const (
	ushortRange = 1 << 16
	bitmapSize  = ushortRange >> 3
)

// pizPlane is where one channel's words sit in the transform buffer.
type pizPlane struct {
	start  int
	end    int
	nx, ny int
	size   int // 16-bit words per sample
}

func pizPlanes(layout ChannelLayout) ([]pizPlane, int, error) {
	if err := layout.checkTypes(); err != nil {
		return nil, 0, err
	}

	chans := layout.Channels.Sorted()
	planes := make([]pizPlane, len(chans))
	total := 0

	for i, ch := range chans {
		p := pizPlane{
			nx:   numSamples(int(ch.XSampling), int(layout.Box.Min.X), int(layout.Box.Max.X)),
			ny:   numSamples(int(ch.YSampling), int(layout.Box.Min.Y), int(layout.Box.Max.Y)),
			size: ch.Type.Size() / 2,
		}
		p.start = total
		p.end = total
		total += p.nx * p.ny * p.size
		planes[i] = p
	}

	return planes, total, nil
}

// gatherWords splits the interleaved lines of a chunk into one contiguous word plane per
// channel, or scatters them back when toRaw is set.
func gatherWords(raw []byte, words []uint16, planes []pizPlane, layout ChannelLayout, toRaw bool) error {
	chans := layout.Channels.Sorted()
	pos := 0

	for y := int(layout.Box.Min.Y); y <= int(layout.Box.Max.Y); y++ {
		for i, ch := range chans {
			if modp(y, int(ch.YSampling)) != 0 {
				continue
			}

			p := &planes[i]
			n := p.nx * p.size

			if pos+2*n > len(raw) || p.end+n > len(words) {
				return fmt.Errorf("%w: piz layout does not match %d bytes", ErrCorruptChunk, len(raw))
			}

			for j := 0; j < n; j++ {
				if toRaw {
					binary.LittleEndian.PutUint16(raw[pos:], words[p.end])
				} else {
					words[p.end] = binary.LittleEndian.Uint16(raw[pos:])
				}
				pos += 2
				p.end++
			}
		}
	}

	if pos != len(raw) {
		return fmt.Errorf("%w: piz layout covers %d of %d bytes", ErrCorruptChunk, pos, len(raw))
	}

	return nil
}

func bitmapFromData(words []uint16) (bitmap []byte, minNonZero, maxNonZero int) {
	bitmap = make([]byte, bitmapSize)

	for _, w := range words {
		bitmap[w>>3] |= 1 << (w & 7)
	}

	// Zero is always in the table and never stored.
	bitmap[0] &^= 1

	minNonZero = bitmapSize - 1
	maxNonZero = 0

	for i, b := range bitmap {
		if b != 0 {
			minNonZero = min(minNonZero, i)
			maxNonZero = max(maxNonZero, i)
		}
	}

	return bitmap, minNonZero, maxNonZero
}

func forwardLutFromBitmap(bitmap []byte) ([]uint16, uint16) {
	lut := make([]uint16, ushortRange)
	k := 0

	for i := range lut {
		if i == 0 || bitmap[i>>3]&(1<<(i&7)) != 0 {
			lut[i] = uint16(k)
			k++
		}
	}

	return lut, uint16(k - 1)
}

func reverseLutFromBitmap(bitmap []byte) ([]uint16, uint16) {
	lut := make([]uint16, ushortRange)
	k := 0

	for i := 0; i < ushortRange; i++ {
		if i == 0 || bitmap[i>>3]&(1<<(i&7)) != 0 {
			lut[k] = uint16(i)
			k++
		}
	}

	return lut, uint16(k - 1)
}

func pizCompress(raw []byte, layout ChannelLayout) ([]byte, error) {
	planes, total, err := pizPlanes(layout)
	if err != nil {
		return nil, err
	}

	if len(raw) != 2*total {
		return nil, fmt.Errorf("piz: %d bytes for a layout of %d words", len(raw), total)
	}

	if total == 0 {
		return nil, nil
	}

	words := make([]uint16, total)
	if err := gatherWords(raw, words, planes, layout, false); err != nil {
		return nil, err
	}

	bitmap, minNonZero, maxNonZero := bitmapFromData(words)
	lut, maxValue := forwardLutFromBitmap(bitmap)

	for i, w := range words {
		words[i] = lut[w]
	}

	out := make([]byte, 0, len(raw)/2)
	out = binary.LittleEndian.AppendUint16(out, uint16(minNonZero))
	out = binary.LittleEndian.AppendUint16(out, uint16(maxNonZero))

	if minNonZero <= maxNonZero {
		out = append(out, bitmap[minNonZero:maxNonZero+1]...)
	}

	for _, p := range planes {
		for j := 0; j < p.size; j++ {
			wavelet.Encode(words[p.start+j:], p.nx, p.size, p.ny, p.nx*p.size, maxValue)
		}
	}

	packed, err := huf.Compress(words)
	if err != nil {
		return nil, err
	}

	out = exrx.AppendInt32(out, int32(len(packed)))

	return append(out, packed...), nil
}

func pizUncompress(packed []byte, expectedLen int, layout ChannelLayout) ([]byte, error) {
	planes, total, err := pizPlanes(layout)
	if err != nil {
		return nil, err
	}

	if expectedLen != 2*total {
		return nil, fmt.Errorf("%w: piz layout holds %d bytes, want %d", ErrCorruptChunk, 2*total, expectedLen)
	}

	if total == 0 {
		return []byte{}, nil
	}

	c := exrx.NewCursor(packed)
	minNonZero := int(c.Uint16())
	maxNonZero := int(c.Uint16())

	if maxNonZero >= bitmapSize {
		return nil, fmt.Errorf("%w: piz bitmap range %d..%d", ErrCorruptChunk, minNonZero, maxNonZero)
	}

	bitmap := make([]byte, bitmapSize)
	if minNonZero <= maxNonZero {
		copy(bitmap[minNonZero:], c.Bytes(maxNonZero-minNonZero+1))
	}

	lut, maxValue := reverseLutFromBitmap(bitmap)

	length := int(c.Int32())
	if c.Err() != nil || length < 0 || length > c.Len() {
		return nil, fmt.Errorf("%w: piz header truncated", ErrCorruptChunk)
	}

	if c.Len() != length {
		return nil, fmt.Errorf("%w: %d bytes after the piz data", ErrCorruptChunk, c.Len()-length)
	}

	words, err := huf.Decompress(c.Bytes(length), total)
	if err != nil {
		if errors.Is(err, huf.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptChunk, err)
		}

		return nil, err
	}

	for _, p := range planes {
		for j := 0; j < p.size; j++ {
			wavelet.Decode(words[p.start+j:], p.nx, p.size, p.ny, p.nx*p.size, maxValue)
		}
	}

	for i, w := range words {
		words[i] = lut[w]
	}

	raw := make([]byte, expectedLen)
	if err := gatherWords(raw, words, planes, layout, true); err != nil {
		return nil, err
	}

	return raw, nil
}
