package exr

import (
	"bytes"
	"fmt"
)

// Compression is the codec applied to every chunk of a part.
type Compression uint8

// Compression methods. B44, DWA and HTJ2K are recognised so headers survive a round
// trip, but their chunks cannot be encoded or decoded.
const (
	CompressionNone     Compression = 0
	CompressionRLE      Compression = 1
	CompressionZIPS     Compression = 2
	CompressionZIP      Compression = 3
	CompressionPIZ      Compression = 4
	CompressionPXR24    Compression = 5
	CompressionB44      Compression = 6
	CompressionB44A     Compression = 7
	CompressionDWAA     Compression = 8
	CompressionDWAB     Compression = 9
	CompressionHTJ2K256 Compression = 10
	CompressionHTJ2K32  Compression = 11

	numCompressions = 12
)

var compressionNames = [numCompressions]string{
	"none", "rle", "zips", "zip", "piz", "pxr24", "b44", "b44a", "dwaa", "dwab", "htj2k256", "htj2k32",
}

func (c Compression) String() string {
	if c < numCompressions {
		return compressionNames[c]
	}

	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression returns the compression with the given name.
func ParseCompression(name string) (Compression, error) {
	for i, n := range compressionNames {
		if n == name {
			return Compression(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
}

// LinesPerChunk returns the number of scanlines stored in one chunk.
func (c Compression) LinesPerChunk() int {
	switch c {
	case CompressionZIP, CompressionPXR24:
		return 16
	case CompressionPIZ, CompressionB44, CompressionB44A, CompressionDWAA, CompressionHTJ2K32:
		return 32
	case CompressionDWAB, CompressionHTJ2K256:
		return 256
	}

	return 1
}

// Supported reports whether chunks with this compression can be encoded and decoded.
func (c Compression) Supported() bool {
	return c <= CompressionPXR24
}

// ChannelLayout tells a codec how the bytes of a chunk are arranged: every line of Box,
// top to bottom, holds the samples of each channel in name order.
type ChannelLayout struct {
	Channels ChannelList
	Box      Box2i
}

// channelLine describes the samples one channel contributes to one line.
type channelLine struct {
	ch      Channel
	samples int
}

// forEachLine calls fn for every line of the box with the channels sampled on it.
func (l ChannelLayout) forEachLine(fn func(y int, lines []channelLine) error) error {
	chans := l.Channels.Sorted()
	lines := make([]channelLine, 0, len(chans))

	for y := int(l.Box.Min.Y); y <= int(l.Box.Max.Y); y++ {
		lines = lines[:0]

		for _, ch := range chans {
			if modp(y, int(ch.YSampling)) != 0 {
				continue
			}

			lines = append(lines, channelLine{
				ch:      ch,
				samples: numSamples(int(ch.XSampling), int(l.Box.Min.X), int(l.Box.Max.X)),
			})
		}

		if err := fn(y, lines); err != nil {
			return err
		}
	}

	return nil
}

// UnpackedSize is the byte length of an uncompressed chunk with this layout.
func (l ChannelLayout) UnpackedSize() int {
	if l.Box.Empty() {
		return 0
	}

	total := 0

	for _, ch := range l.Channels {
		xs, ys := int(ch.XSampling), int(ch.YSampling)
		if xs < 1 || ys < 1 {
			continue
		}

		total += numSamples(xs, int(l.Box.Min.X), int(l.Box.Max.X)) *
			numSamples(ys, int(l.Box.Min.Y), int(l.Box.Max.Y)) * ch.Type.Size()
	}

	return total
}

// LineSize is the byte length of line y of the layout.
func (l ChannelLayout) LineSize(y int) int {
	total := 0

	for _, ch := range l.Channels {
		if ch.YSampling < 1 || ch.XSampling < 1 || modp(y, int(ch.YSampling)) != 0 {
			continue
		}

		total += numSamples(int(ch.XSampling), int(l.Box.Min.X), int(l.Box.Max.X)) * ch.Type.Size()
	}

	return total
}

func (l ChannelLayout) checkTypes() error {
	for _, ch := range l.Channels {
		if ch.Type.Size() == 0 {
			return fmt.Errorf("%w: channel %q: %s", ErrUnsupportedChannelType, ch.Name, ch.Type)
		}
	}

	return nil
}

// Compress encodes one uncompressed chunk. When the encoded form is not smaller than
// raw, a copy of raw is returned instead, which Decompress recognises by its length.
func Compress(c Compression, raw []byte, layout ChannelLayout) ([]byte, error) {
	var (
		packed []byte
		err    error
	)

	switch c {
	case CompressionNone:
		return bytes.Clone(raw), nil
	case CompressionRLE:
		packed = rleCompress(raw)
	case CompressionZIPS, CompressionZIP:
		packed, err = zipCompress(raw)
	case CompressionPIZ:
		packed, err = pizCompress(raw, layout)
	case CompressionPXR24:
		packed, err = pxr24Compress(raw, layout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}

	if len(packed) >= len(raw) {
		return bytes.Clone(raw), nil
	}

	return packed, nil
}

// Decompress decodes one chunk into exactly expectedLen bytes. Chunks whose packed size
// equals expectedLen are stored uncompressed. Any mismatch reports ErrCorruptChunk.
func Decompress(c Compression, packed []byte, expectedLen int, layout ChannelLayout) ([]byte, error) {
	if !c.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}

	if len(packed) == expectedLen {
		return bytes.Clone(packed), nil
	}

	if c == CompressionNone || len(packed) > expectedLen {
		return nil, fmt.Errorf("%w: %s: %d bytes, want %d", ErrCorruptChunk, c, len(packed), expectedLen)
	}

	var (
		raw []byte
		err error
	)

	switch c {
	case CompressionRLE:
		raw, err = rleUncompress(packed, expectedLen)
	case CompressionZIPS, CompressionZIP:
		raw, err = zipUncompress(packed, expectedLen)
	case CompressionPIZ:
		raw, err = pizUncompress(packed, expectedLen, layout)
	case CompressionPXR24:
		raw, err = pxr24Uncompress(packed, expectedLen, layout)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}

	if len(raw) != expectedLen {
		return nil, fmt.Errorf("%w: %s: decoded %d bytes, want %d", ErrCorruptChunk, c, len(raw), expectedLen)
	}

	return raw, nil
}
