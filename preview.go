package exr

import (
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// PreviewOptions controls MakePreview.
type PreviewOptions struct {
	// MaxSize limits the longest preview edge, default 100.
	MaxSize int
	// Exposure scales linear values by 2^Exposure before encoding.
	Exposure float32
	// Chromaticities of the source pixels, Rec. 709 by default.
	Chromaticities Chromaticities
}

// MakePreview renders a small sRGB thumbnail of img for the preview attribute.
// Color comes from the R, G, B or Y channels, alpha from A.
func MakePreview(img *Image, options ...func(o *PreviewOptions)) (Preview, error) {
	opt := PreviewOptions{
		MaxSize:        defaultPreviewSize,
		Chromaticities: DefaultChromaticities,
	}

	for _, applyOpt := range options {
		applyOpt(&opt)
	}

	planes := colorPlanes(img)
	if !hasColor(planes) {
		return Preview{}, ErrNoColorChannels
	}

	if opt.MaxSize <= 0 {
		opt.MaxSize = defaultPreviewSize
	}

	dw := img.DataWindow
	convert := toRec709(opt.Chromaticities)
	gain := exp2f(opt.Exposure)

	full := image.NewNRGBA(image.Rect(0, 0, dw.Width(), dw.Height()))

	for y := 0; y < dw.Height(); y++ {
		row := full.Pix[y*full.Stride:]

		for x := 0; x < dw.Width(); x++ {
			px, py := int(dw.Min.X)+x, int(dw.Min.Y)+y
			v := convert(sampleRGB(planes, px, py))

			a := uint8(255)
			if p := planes[roleA]; p != nil {
				a = to8(p.Float32(px, py))
			}

			o := x * 4
			row[o] = to8(srgbOetf(clamp01(v.r * gain)))
			row[o+1] = to8(srgbOetf(clamp01(v.g * gain)))
			row[o+2] = to8(srgbOetf(clamp01(v.b * gain)))
			row[o+3] = a
		}
	}

	thumb := resize.Thumbnail(uint(opt.MaxSize), uint(opt.MaxSize), full, resize.Lanczos3)

	b := thumb.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), thumb, b.Min, draw.Src)

	return Preview{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Pixels: dst.Pix}, nil
}

// Image returns the preview as an image.
func (p Preview) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pixels,
		Stride: int(p.Width) * 4,
		Rect:   image.Rect(0, 0, int(p.Width), int(p.Height)),
	}
}
