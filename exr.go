package exr

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrNoColorChannels is returned by DecodeEXR when the image has neither R, G, B nor Y.
var ErrNoColorChannels = errors.New("no R, G, B or Y channels")

const (
	roleR = iota
	roleG
	roleB
	roleY
	roleA
	numRoles
)

// colorPlanes picks the planes carrying color roles, matching names case-insensitively.
// Missing roles are nil.
func colorPlanes(img *Image) [numRoles]*Plane {
	var planes [numRoles]*Plane

	for _, p := range img.Planes {
		switch strings.ToUpper(p.Channel.Name) {
		case "R":
			planes[roleR] = p
		case "G":
			planes[roleG] = p
		case "B":
			planes[roleB] = p
		case "Y":
			planes[roleY] = p
		case "A":
			planes[roleA] = p
		}
	}

	return planes
}

func hasColor(planes [numRoles]*Plane) bool {
	return planes[roleR] != nil || planes[roleG] != nil || planes[roleB] != nil || planes[roleY] != nil
}

// sampleRGB returns the color of pixel x, y. A luminance-only image is returned as gray.
func sampleRGB(planes [numRoles]*Plane, x, y int) rgb {
	if planes[roleR] == nil && planes[roleG] == nil && planes[roleB] == nil {
		v := planes[roleY].Float32(x, y)
		return rgb{r: v, g: v, b: v}
	}

	var v rgb
	if p := planes[roleR]; p != nil {
		v.r = p.Float32(x, y)
	}
	if p := planes[roleG]; p != nil {
		v.g = p.Float32(x, y)
	}
	if p := planes[roleB]; p != nil {
		v.b = p.Float32(x, y)
	}

	return v
}

// DecodeEXR decodes the first part of an OpenEXR file into a linear RGB image covering
// its data window. Channels other than R, G, B and Y are ignored, missing color
// channels read as zero.
func DecodeEXR(data []byte) (*HDRImage, error) {
	r, err := Open(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p, err := r.Part(0)
	if err != nil {
		return nil, err
	}

	img, err := p.ReadImage()
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	return toHDR(img)
}

func toHDR(img *Image) (*HDRImage, error) {
	planes := colorPlanes(img)
	if !hasColor(planes) {
		return nil, ErrNoColorChannels
	}

	dw := img.DataWindow
	width, height := dw.Width(), dw.Height()
	hdr := &HDRImage{
		Width:  width,
		Height: height,
		Stride: width,
		Pix:    make([]float32, width*height*3),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := sampleRGB(planes, int(dw.Min.X)+x, int(dw.Min.Y)+y)
			i := (y*hdr.Stride + x) * 3
			hdr.Pix[i] = v.r
			hdr.Pix[i+1] = v.g
			hdr.Pix[i+2] = v.b
		}
	}

	return hdr, nil
}
