package exr

import (
	"math"
	"testing"
)

func TestHalfRoundTrip(t *testing.T) {
	for i := 0; i < 1<<16; i++ {
		h := uint16(i)
		f := HalfToFloat(h)
		back := FloatToHalf(f)

		if f != f {
			if back&0x7c00 != 0x7c00 || back&0x03ff == 0 {
				t.Fatalf("%#04x: NaN came back as %#04x", h, back)
			}

			continue
		}

		if back != h {
			t.Fatalf("%#04x: %g came back as %#04x", h, f, back)
		}
	}
}

func TestFloatToHalf(t *testing.T) {
	for _, tc := range []struct {
		f    float32
		want uint16
	}{
		{0, 0x0000},
		{float32(math.Copysign(0, -1)), 0x8000},
		{1, 0x3c00},
		{-2, 0xc000},
		{65504, 0x7bff},
		{65520, 0x7c00}, // halfway to the next binade rounds up to infinity
		{1e10, 0x7c00},
		{float32(math.Inf(-1)), 0xfc00},
		{1 + 1.0/2048, 0x3c00},        // tie, even stays
		{1 + 3.0/2048, 0x3c02},        // tie, odd rounds up
		{1 + 1.0/2048 + 1e-7, 0x3c01}, // just above the tie
		{0x1p-24, 0x0001},
		{0x1p-25, 0x0000},   // tie to even zero
		{0x1.8p-25, 0x0001}, // above the tie
		{0x1p-26, 0x0000},
		{0x1.8p-24, 0x0002},       // 1.5 ulp ties to even
		{6.103515625e-05, 0x0400}, // smallest normal
	} {
		if got := FloatToHalf(tc.f); got != tc.want {
			t.Fatalf("FloatToHalf(%g): want %#04x, got %#04x", tc.f, tc.want, got)
		}
	}
}

func TestHalfNaN(t *testing.T) {
	h := NewHalf(float32(math.NaN()))
	if f := h.Float32(); f == f {
		t.Fatalf("NaN came back as %g", f)
	}
}

func BenchmarkFloatToHalf(b *testing.B) {
	b.ReportAllocs()

	var sink uint16

	for i := 0; i < b.N; i++ {
		sink += FloatToHalf(float32(i) * 0.001)
	}

	_ = sink
}
