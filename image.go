package exr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Plane holds the samples of one channel, row by row, in the little-endian encoding of
// the channel type. Subsampled channels have one sample per XSampling by YSampling
// pixels.
type Plane struct {
	Channel Channel
	Width   int // samples per row
	Height  int // rows
	Pix     []byte

	originX, originY int // first sample index along each axis
}

func newPlane(ch Channel, dw Box2i) *Plane {
	xs, ys := int(ch.XSampling), int(ch.YSampling)
	p := &Plane{
		Channel: ch,
		Width:   numSamples(xs, int(dw.Min.X), int(dw.Max.X)),
		Height:  numSamples(ys, int(dw.Min.Y), int(dw.Max.Y)),
		originX: divp(int(dw.Min.X)+xs-1, xs),
		originY: divp(int(dw.Min.Y)+ys-1, ys),
	}
	p.Pix = make([]byte, p.Width*p.Height*ch.Type.Size())

	return p
}

// Stride is the byte length of one row.
func (p *Plane) Stride() int { return p.Width * p.Channel.Type.Size() }

// offset returns the byte offset of the sample covering pixel x, y.
func (p *Plane) offset(x, y int) int {
	sx := divp(x, int(p.Channel.XSampling)) - p.originX
	sy := divp(y, int(p.Channel.YSampling)) - p.originY
	sx = max(0, min(sx, p.Width-1))
	sy = max(0, min(sy, p.Height-1))

	return sy*p.Stride() + sx*p.Channel.Type.Size()
}

// Float32 returns the sample covering pixel x, y as a float. Coordinates are clamped.
func (p *Plane) Float32(x, y int) float32 {
	o := p.offset(x, y)

	switch p.Channel.Type {
	case PixelHalf:
		return halfBytesToFloat(p.Pix[o:])
	case PixelFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(p.Pix[o:]))
	case PixelUint:
		return float32(binary.LittleEndian.Uint32(p.Pix[o:]))
	}

	return 0
}

// SetFloat32 stores v in the sample covering pixel x, y, converting to the channel type.
func (p *Plane) SetFloat32(x, y int, v float32) {
	o := p.offset(x, y)

	switch p.Channel.Type {
	case PixelHalf:
		binary.LittleEndian.PutUint16(p.Pix[o:], FloatToHalf(v))
	case PixelFloat:
		binary.LittleEndian.PutUint32(p.Pix[o:], math.Float32bits(v))
	case PixelUint:
		u := uint32(0)
		if v > 0 {
			u = uint32(min(float64(v), math.MaxUint32))
		}
		binary.LittleEndian.PutUint32(p.Pix[o:], u)
	}
}

// Uint32 returns the raw bits of the sample covering pixel x, y.
func (p *Plane) Uint32(x, y int) uint32 {
	o := p.offset(x, y)

	if p.Channel.Type == PixelHalf {
		return uint32(binary.LittleEndian.Uint16(p.Pix[o:]))
	}

	return binary.LittleEndian.Uint32(p.Pix[o:])
}

// SetUint32 stores raw sample bits, truncated to 16 bits for half channels.
func (p *Plane) SetUint32(x, y int, v uint32) {
	o := p.offset(x, y)

	if p.Channel.Type == PixelHalf {
		binary.LittleEndian.PutUint16(p.Pix[o:], uint16(v))
		return
	}

	binary.LittleEndian.PutUint32(p.Pix[o:], v)
}

// Image is a frame buffer covering a data window, one plane per channel.
type Image struct {
	DataWindow Box2i
	Planes     []*Plane // sorted by channel name
}

// NewImage allocates zeroed planes for every channel.
func NewImage(dataWindow Box2i, channels ChannelList) *Image {
	img := &Image{DataWindow: dataWindow}
	for _, ch := range channels.Sorted() {
		img.Planes = append(img.Planes, newPlane(ch, dataWindow))
	}

	return img
}

// Plane returns the plane of the named channel or nil.
func (img *Image) Plane(name string) *Plane {
	for _, p := range img.Planes {
		if p.Channel.Name == name {
			return p
		}
	}

	return nil
}

// Channels returns the channels of the image in name order.
func (img *Image) Channels() ChannelList {
	l := make(ChannelList, len(img.Planes))
	for i, p := range img.Planes {
		l[i] = p.Channel
	}

	return l
}

// copyChunk moves the bytes of the chunk described by layout between the image planes
// and data, in wire order.
func (img *Image) copyChunk(layout ChannelLayout, data []byte, toImage bool) error {
	if !img.DataWindow.Contains(layout.Box) {
		return fmt.Errorf("%w: box %s outside image %s", ErrOutOfRange, layout.Box, img.DataWindow)
	}

	pos := 0

	err := layout.forEachLine(func(y int, lines []channelLine) error {
		for _, cl := range lines {
			p := img.Plane(cl.ch.Name)
			if p == nil || p.Channel.Type != cl.ch.Type ||
				p.Channel.XSampling != cl.ch.XSampling || p.Channel.YSampling != cl.ch.YSampling {
				return fmt.Errorf("image has no channel matching %q (%s)", cl.ch.Name, cl.ch.Type)
			}

			n := cl.samples * cl.ch.Type.Size()
			if pos+n > len(data) {
				return fmt.Errorf("%w: chunk data of %d bytes is too short", ErrCorruptChunk, len(data))
			}

			xs := int(cl.ch.XSampling)
			sx := divp(int(layout.Box.Min.X)+xs-1, xs) - p.originX
			sy := divp(y, int(cl.ch.YSampling)) - p.originY
			row := p.Pix[sy*p.Stride()+sx*cl.ch.Type.Size():]

			if toImage {
				copy(row[:n], data[pos:pos+n])
			} else {
				copy(data[pos:pos+n], row[:n])
			}

			pos += n
		}

		return nil
	})
	if err != nil {
		return err
	}

	if pos != len(data) {
		return fmt.Errorf("%w: chunk data of %d bytes, layout needs %d", ErrCorruptChunk, len(data), pos)
	}

	return nil
}

// extract returns the wire bytes of the pixels in layout.Box.
func (img *Image) extract(layout ChannelLayout) ([]byte, error) {
	data := make([]byte, layout.UnpackedSize())
	if err := img.copyChunk(layout, data, false); err != nil {
		return nil, err
	}

	return data, nil
}
