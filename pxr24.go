package exr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// floatToFloat24 rounds the mantissa of f to 15 bits and returns the top 24 bits of the
// result. Values that would round up to infinity are truncated instead, NaN stays NaN.
func floatToFloat24(f float32) uint32 {
	u := math.Float32bits(f)
	s := u & 0x80000000
	e := u & 0x7f800000
	m := u & 0x007fffff

	var i uint32

	switch {
	case e == 0x7f800000 && m != 0:
		m >>= 8
		i = e>>8 | m
		if m == 0 {
			i |= 1
		}
	case e == 0x7f800000:
		i = e >> 8
	default:
		i = ((e | m) + (m & 0x00000080)) >> 8
		if i >= 0x7f8000 {
			i = (e | m) >> 8
		}
	}

	return s>>8 | i
}

// pxr24Planes is the byte count of one line of one channel after the plane split.
func pxr24Planes(t PixelType) int {
	switch t {
	case PixelUint:
		return 4
	case PixelHalf:
		return 2
	case PixelFloat:
		return 3
	}

	return 0
}

func pxr24Compress(raw []byte, layout ChannelLayout) ([]byte, error) {
	if err := layout.checkTypes(); err != nil {
		return nil, err
	}

	tmp := make([]byte, 0, len(raw))
	pos := 0

	err := layout.forEachLine(func(_ int, lines []channelLine) error {
		for _, cl := range lines {
			n := cl.samples
			size := cl.ch.Type.Size()
			if pos+n*size > len(raw) {
				return fmt.Errorf("pxr24: %d bytes do not cover the layout", len(raw))
			}

			planes := pxr24Planes(cl.ch.Type)
			start := len(tmp)
			tmp = append(tmp, make([]byte, n*planes)...)
			out := tmp[start:]

			var prev uint32

			for j := 0; j < n; j++ {
				var pixel uint32

				switch cl.ch.Type {
				case PixelUint:
					pixel = binary.LittleEndian.Uint32(raw[pos:])
				case PixelHalf:
					pixel = uint32(binary.LittleEndian.Uint16(raw[pos:]))
				case PixelFloat:
					pixel = floatToFloat24(math.Float32frombits(binary.LittleEndian.Uint32(raw[pos:])))
				}
				pos += size

				diff := pixel - prev
				prev = pixel

				// Most significant plane first.
				for k := 0; k < planes; k++ {
					out[k*n+j] = byte(diff >> (8 * (planes - 1 - k)))
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if pos != len(raw) {
		return nil, fmt.Errorf("pxr24: layout covers %d of %d bytes", pos, len(raw))
	}

	return deflate(tmp)
}

func pxr24Uncompress(packed []byte, expectedLen int, layout ChannelLayout) ([]byte, error) {
	if err := layout.checkTypes(); err != nil {
		return nil, err
	}

	tmpLen := 0
	_ = layout.forEachLine(func(_ int, lines []channelLine) error {
		for _, cl := range lines {
			tmpLen += cl.samples * pxr24Planes(cl.ch.Type)
		}

		return nil
	})

	tmp, err := inflate(packed, tmpLen)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, expectedLen)
	pos := 0

	_ = layout.forEachLine(func(_ int, lines []channelLine) error {
		for _, cl := range lines {
			n := cl.samples
			planes := pxr24Planes(cl.ch.Type)
			in := tmp[pos : pos+n*planes]
			pos += n * planes

			var pixel uint32

			for j := 0; j < n; j++ {
				var diff uint32
				for k := 0; k < planes; k++ {
					diff = diff<<8 | uint32(in[k*n+j])
				}

				switch cl.ch.Type {
				case PixelUint:
					pixel += diff
					raw = binary.LittleEndian.AppendUint32(raw, pixel)
				case PixelHalf:
					pixel += diff
					raw = binary.LittleEndian.AppendUint16(raw, uint16(pixel))
				case PixelFloat:
					pixel += diff << 8
					raw = binary.LittleEndian.AppendUint32(raw, pixel)
				}
			}
		}

		return nil
	})

	if len(raw) != expectedLen {
		return nil, fmt.Errorf("%w: pxr24 produced %d bytes, want %d", ErrCorruptChunk, len(raw), expectedLen)
	}

	return raw, nil
}
