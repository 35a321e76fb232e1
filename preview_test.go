package exr

import (
	"errors"
	"math"
	"testing"
)

func TestMakePreview(t *testing.T) {
	dw := NewBox2i(-10, 5, 189, 84)
	img := NewImage(dw, ChannelList{NewChannel("R", PixelHalf), NewChannel("G", PixelHalf), NewChannel("B", PixelHalf), NewChannel("A", PixelHalf)})

	for _, p := range img.Planes {
		for y := 5; y <= 84; y++ {
			for x := -10; x <= 189; x++ {
				p.SetFloat32(x, y, 1)
			}
		}
	}

	pv, err := MakePreview(img)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if pv.Width != 100 || pv.Height != 40 {
		t.Fatalf("want 100x40, got %dx%d", pv.Width, pv.Height)
	}

	for i, v := range pv.Pixels {
		if v < 250 {
			t.Fatalf("byte %d: white pixel stored as %d", i, v)
		}
	}

	pi := pv.Image()
	if b := pi.Bounds(); b.Dx() != 100 || b.Dy() != 40 {
		t.Fatalf("image bounds %v", b)
	}

	dark, err := MakePreview(img, func(o *PreviewOptions) {
		o.MaxSize = 20
		o.Exposure = -3
	})
	if err != nil {
		t.Fatalf("dark preview: %v", err)
	}

	if dark.Width != 20 || dark.Height != 8 {
		t.Fatalf("want 20x8, got %dx%d", dark.Width, dark.Height)
	}

	// 1/8 linear is about 99 in sRGB, alpha stays opaque.
	if r, a := dark.Pixels[0], dark.Pixels[3]; r < 90 || r > 110 || a < 250 {
		t.Fatalf("exposure -3: red %d, alpha %d", r, a)
	}
}

func TestMakePreviewLuminance(t *testing.T) {
	dw := NewBox2i(0, 0, 9, 9)
	img := NewImage(dw, ChannelList{NewChannel("Y", PixelFloat)})

	pv, err := MakePreview(img)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if pv.Width != 10 || pv.Height != 10 {
		t.Fatalf("small images keep their size, got %dx%d", pv.Width, pv.Height)
	}

	for i := 0; i < len(pv.Pixels); i += 4 {
		if pv.Pixels[i] != 0 || pv.Pixels[i+3] != 255 {
			t.Fatalf("pixel %d: %v", i/4, pv.Pixels[i:i+4])
		}
	}

	if _, err := MakePreview(NewImage(dw, ChannelList{NewChannel("Z", PixelFloat)})); !errors.Is(err, ErrNoColorChannels) {
		t.Fatalf("depth only: want ErrNoColorChannels, got %v", err)
	}
}

func TestGamutConversion(t *testing.T) {
	rec2020 := Chromaticities{
		Red:   V2f{X: 0.708, Y: 0.292},
		Green: V2f{X: 0.170, Y: 0.797},
		Blue:  V2f{X: 0.131, Y: 0.046},
		White: V2f{X: 0.3127, Y: 0.3290},
	}

	for _, tc := range []struct {
		c    Chromaticities
		name string
	}{
		{DefaultChromaticities, "Rec.709/sRGB"},
		{knownGamuts[1].c, "Display P3"},
		{knownGamuts[2].c, "Adobe RGB"},
		{rec2020, "custom"},
	} {
		if got := GamutName(tc.c); got != tc.name {
			t.Fatalf("want %s, got %s", tc.name, got)
		}

		// White stays white in every D65 gamut.
		w := toRec709(tc.c)(rgb{r: 1, g: 1, b: 1})
		for _, v := range []float32{w.r, w.g, w.b} {
			if math.Abs(float64(v-1)) > 5e-3 {
				t.Fatalf("%s: white converted to %+v", tc.name, w)
			}
		}

		// Saturated red of a wider gamut leaves Rec. 709.
		r := toRec709(tc.c)(rgb{r: 1})
		if tc.name != "Rec.709/sRGB" && tc.name != "Adobe RGB" && r.g >= 0 {
			t.Fatalf("%s: red converted to %+v", tc.name, r)
		}
	}
}
