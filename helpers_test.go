package exr

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"
)

func testChannels() ChannelList {
	return ChannelList{
		NewChannel("R", PixelHalf),
		NewChannel("G", PixelHalf),
		NewChannel("B", PixelHalf),
		NewChannel("A", PixelHalf),
		NewChannel("Z", PixelFloat),
		NewChannel("id", PixelUint),
	}
}

// fillImage writes smooth gradients with a little noise. Float samples keep their low
// byte clear so that they survive PXR24 unchanged.
func fillImage(img *Image, seed uint64) {
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	for pi, p := range img.Planes {
		xs, ys := int(p.Channel.XSampling), int(p.Channel.YSampling)
		size := p.Channel.Type.Size()

		for sy := 0; sy < p.Height; sy++ {
			for sx := 0; sx < p.Width; sx++ {
				x := (p.originX + sx) * xs
				y := (p.originY + sy) * ys
				v := float32(math.Sin(float64(x)*0.11+float64(pi))+math.Cos(float64(y)*0.07)) + rnd.Float32()*0.01
				o := sy*p.Stride() + sx*size

				switch p.Channel.Type {
				case PixelHalf:
					binary.LittleEndian.PutUint16(p.Pix[o:], FloatToHalf(v))
				case PixelFloat:
					binary.LittleEndian.PutUint32(p.Pix[o:], math.Float32bits(v*1000)&^0xff)
				case PixelUint:
					binary.LittleEndian.PutUint32(p.Pix[o:], uint32(x*7+y*13)+rnd.Uint32N(4))
				}
			}
		}
	}
}

func newTestImage(dw Box2i, channels ChannelList, seed uint64) *Image {
	img := NewImage(dw, channels)
	fillImage(img, seed)

	return img
}

func samePixels(t *testing.T, want, got *Image) {
	t.Helper()

	if want.DataWindow != got.DataWindow {
		t.Fatalf("data window: want %s, got %s", want.DataWindow, got.DataWindow)
	}

	if len(want.Planes) != len(got.Planes) {
		t.Fatalf("planes: want %d, got %d", len(want.Planes), len(got.Planes))
	}

	for i, p := range want.Planes {
		q := got.Planes[i]
		if p.Channel != q.Channel {
			t.Fatalf("plane %d: want channel %+v, got %+v", i, p.Channel, q.Channel)
		}

		if !bytes.Equal(p.Pix, q.Pix) {
			t.Fatalf("plane %s: pixels differ", p.Channel.Name)
		}
	}
}

func writeFile(t testing.TB, headers []*Header, fill func(w *Writer) error, options ...func(o *WriteOptions)) []byte {
	t.Helper()

	var buf MemBuffer

	w, err := NewWriter(&buf, headers, options...)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	if err := fill(w); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	return buf.Bytes()
}

func writeImageFile(t testing.TB, h *Header, img *Image, options ...func(o *WriteOptions)) []byte {
	t.Helper()

	return writeFile(t, []*Header{h}, func(w *Writer) error { return w.WriteImage(img) }, options...)
}

func openBytes(t testing.TB, data []byte, options ...func(o *ReadOptions)) *Reader {
	t.Helper()

	r, err := Open(bytes.NewReader(data), options...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	return r
}

func readImageFile(t testing.TB, data []byte) *Image {
	t.Helper()

	p, err := openBytes(t, data).Part(0)
	if err != nil {
		t.Fatalf("part: %v", err)
	}

	img, err := p.ReadImage()
	if err != nil {
		t.Fatalf("read image: %v", err)
	}

	return img
}

var supportedCompressions = []Compression{
	CompressionNone, CompressionRLE, CompressionZIPS, CompressionZIP, CompressionPIZ, CompressionPXR24,
}
