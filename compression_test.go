package exr

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	subsampled := ChannelList{
		NewChannel("Y", PixelHalf),
		{Name: "RY", Type: PixelHalf, XSampling: 2, YSampling: 2},
		{Name: "BY", Type: PixelHalf, XSampling: 2, YSampling: 2},
		NewChannel("Z", PixelFloat),
	}

	layouts := []struct {
		name     string
		channels ChannelList
		box      Box2i
	}{
		{"rgbaz", testChannels(), NewBox2i(0, 0, 63, 31)},
		{"negative origin", testChannels(), NewBox2i(-17, -9, 20, 22)},
		{"single pixel", testChannels(), NewBox2i(3, 3, 3, 3)},
		{"subsampled", subsampled, NewBox2i(-4, 2, 37, 33)},
		{"float only", ChannelList{NewChannel("depth", PixelFloat)}, NewBox2i(0, 0, 127, 15)},
		{"uint only", ChannelList{NewChannel("id", PixelUint)}, NewBox2i(0, 0, 40, 7)},
	}

	for _, l := range layouts {
		img := newTestImage(l.box, l.channels, 42)
		layout := ChannelLayout{Channels: l.channels.Sorted(), Box: l.box}

		raw, err := img.extract(layout)
		if err != nil {
			t.Fatalf("%s: extract: %v", l.name, err)
		}

		for _, c := range supportedCompressions {
			packed, err := Compress(c, raw, layout)
			if err != nil {
				t.Fatalf("%s/%s: compress: %v", l.name, c, err)
			}

			if len(packed) > len(raw) {
				t.Fatalf("%s/%s: packed %d bytes, more than raw %d", l.name, c, len(packed), len(raw))
			}

			got, err := Decompress(c, packed, len(raw), layout)
			if err != nil {
				t.Fatalf("%s/%s: decompress: %v", l.name, c, err)
			}

			if !bytes.Equal(raw, got) {
				t.Fatalf("%s/%s: round trip changed the data", l.name, c)
			}
		}
	}
}

func TestCompressShrinksSmoothData(t *testing.T) {
	box := NewBox2i(0, 0, 255, 31)
	chans := ChannelList{NewChannel("R", PixelHalf), NewChannel("G", PixelHalf)}
	img := NewImage(box, chans)

	for y := 0; y < 32; y++ {
		for x := 0; x < 256; x++ {
			img.Plane("R").SetFloat32(x, y, float32(x)/256)
			img.Plane("G").SetFloat32(x, y, 0.5)
		}
	}

	layout := ChannelLayout{Channels: chans.Sorted(), Box: box}

	raw, err := img.extract(layout)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, c := range supportedCompressions[1:] {
		packed, err := Compress(c, raw, layout)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}

		if len(packed) >= len(raw) {
			t.Fatalf("%s: %d bytes did not shrink below %d", c, len(packed), len(raw))
		}
	}
}

func TestCompressFallsBackToRaw(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	raw := make([]byte, 4096)

	for i := range raw {
		raw[i] = byte(rnd.Uint32())
	}

	layout := ChannelLayout{Channels: ChannelList{NewChannel("R", PixelHalf)}, Box: NewBox2i(0, 0, 2047, 0)}

	for _, c := range []Compression{CompressionRLE, CompressionZIPS} {
		packed, err := Compress(c, raw, layout)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}

		if !bytes.Equal(packed, raw) {
			t.Fatalf("%s: incompressible data should be stored raw", c)
		}

		got, err := Decompress(c, packed, len(raw), layout)
		if err != nil {
			t.Fatalf("%s: decompress: %v", c, err)
		}

		if !bytes.Equal(got, raw) {
			t.Fatalf("%s: raw chunk changed", c)
		}
	}
}

func TestDecompressCorrupt(t *testing.T) {
	box := NewBox2i(0, 0, 63, 15)
	layout := ChannelLayout{Channels: testChannels().Sorted(), Box: box}
	img := newTestImage(box, testChannels(), 7)

	raw, err := img.extract(layout)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, c := range supportedCompressions[1:] {
		packed, err := Compress(c, raw, layout)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}

		if len(packed) == len(raw) {
			continue
		}

		if _, err := Decompress(c, packed[:len(packed)/2], len(raw), layout); !errors.Is(err, ErrCorruptChunk) {
			t.Fatalf("%s: truncated chunk: want ErrCorruptChunk, got %v", c, err)
		}

		if len(packed)+1 < len(raw) {
			padded := append(bytes.Clone(packed), 0)
			if _, err := Decompress(c, padded, len(raw), layout); !errors.Is(err, ErrCorruptChunk) {
				t.Fatalf("%s: trailing byte: want ErrCorruptChunk, got %v", c, err)
			}
		}
	}

	if _, err := Decompress(CompressionZIP, make([]byte, len(raw)+1), len(raw), layout); !errors.Is(err, ErrCorruptChunk) {
		t.Fatalf("oversized chunk: want ErrCorruptChunk, got %v", err)
	}

	if _, err := Decompress(CompressionNone, raw[1:], len(raw), layout); !errors.Is(err, ErrCorruptChunk) {
		t.Fatalf("short none chunk: want ErrCorruptChunk, got %v", err)
	}
}

func TestUnsupportedCompression(t *testing.T) {
	layout := ChannelLayout{Channels: ChannelList{NewChannel("R", PixelHalf)}, Box: NewBox2i(0, 0, 3, 3)}

	for _, c := range []Compression{CompressionB44, CompressionB44A, CompressionDWAA, CompressionDWAB, CompressionHTJ2K256, CompressionHTJ2K32} {
		if _, err := Compress(c, make([]byte, 32), layout); !errors.Is(err, ErrUnsupportedCompression) {
			t.Fatalf("compress %s: want ErrUnsupportedCompression, got %v", c, err)
		}

		if _, err := Decompress(c, make([]byte, 8), 32, layout); !errors.Is(err, ErrUnsupportedCompression) {
			t.Fatalf("decompress %s: want ErrUnsupportedCompression, got %v", c, err)
		}
	}
}

func TestLinesPerChunk(t *testing.T) {
	want := map[Compression]int{
		CompressionNone: 1, CompressionRLE: 1, CompressionZIPS: 1, CompressionZIP: 16,
		CompressionPIZ: 32, CompressionPXR24: 16, CompressionB44: 32, CompressionB44A: 32,
		CompressionDWAA: 32, CompressionDWAB: 256, CompressionHTJ2K256: 256, CompressionHTJ2K32: 32,
	}

	for c, n := range want {
		if got := c.LinesPerChunk(); got != n {
			t.Fatalf("%s: want %d lines, got %d", c, n, got)
		}

		parsed, err := ParseCompression(c.String())
		if err != nil || parsed != c {
			t.Fatalf("parse %s: got %s, %v", c, parsed, err)
		}
	}

	if _, err := ParseCompression("lzw"); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("unknown name: want ErrUnsupportedCompression, got %v", err)
	}
}

func TestPXR24Lossy(t *testing.T) {
	box := NewBox2i(0, 0, 255, 0)
	chans := ChannelList{NewChannel("Z", PixelFloat)}
	img := NewImage(box, chans)

	for x := 0; x < 256; x++ {
		img.Plane("Z").SetFloat32(x, 0, 1+float32(x)*1e-6)
	}

	layout := ChannelLayout{Channels: chans, Box: box}
	raw, _ := img.extract(layout)

	packed, err := Compress(CompressionPXR24, raw, layout)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	got, err := Decompress(CompressionPXR24, packed, len(raw), layout)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	out := NewImage(box, chans)
	if err := out.copyChunk(layout, got, true); err != nil {
		t.Fatalf("copy: %v", err)
	}

	for x := 0; x < 256; x++ {
		want := img.Plane("Z").Float32(x, 0)
		v := out.Plane("Z").Float32(x, 0)

		if d := v - want; d > 1e-4 || d < -1e-4 {
			t.Fatalf("x=%d: want about %g, got %g", x, want, v)
		}

		if out.Plane("Z").Uint32(x, 0)&0xff != 0 {
			t.Fatalf("x=%d: low byte survived", x)
		}
	}
}

func BenchmarkCompress(b *testing.B) {
	box := NewBox2i(0, 0, 511, 31)
	layout := ChannelLayout{Channels: testChannels().Sorted(), Box: box}
	raw, _ := newTestImage(box, testChannels(), 3).extract(layout)

	for _, c := range supportedCompressions {
		b.Run(c.String(), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(raw)))

			for i := 0; i < b.N; i++ {
				if _, err := Compress(c, raw, layout); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
