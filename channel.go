package exr

import (
	"fmt"
	"slices"
	"strings"
)

// PixelType is the storage type of a channel.
type PixelType int32

// Pixel types.
const (
	PixelUint  PixelType = 0
	PixelHalf  PixelType = 1
	PixelFloat PixelType = 2
)

// Size returns the number of bytes per sample, or 0 for unknown types.
func (p PixelType) Size() int {
	switch p {
	case PixelHalf:
		return 2
	case PixelUint, PixelFloat:
		return 4
	}

	return 0
}

func (p PixelType) String() string {
	switch p {
	case PixelUint:
		return "uint"
	case PixelHalf:
		return "half"
	case PixelFloat:
		return "float"
	}

	return fmt.Sprintf("pixelType(%d)", int32(p))
}

// Channel describes one image channel.
type Channel struct {
	Name      string
	Type      PixelType
	PLinear   bool
	XSampling int32
	YSampling int32
}

// NewChannel returns a full resolution channel.
func NewChannel(name string, t PixelType) Channel {
	return Channel{Name: name, Type: t, XSampling: 1, YSampling: 1}
}

// ChannelList is the value of the channels attribute. Channels are stored sorted by name.
type ChannelList []Channel

// Sorted returns a copy ordered by name, the order of samples on the wire.
func (l ChannelList) Sorted() ChannelList {
	s := slices.Clone(l)
	slices.SortStableFunc(s, func(a, b Channel) int { return strings.Compare(a.Name, b.Name) })

	return s
}

// Find returns the channel with the given name.
func (l ChannelList) Find(name string) (Channel, bool) {
	for _, c := range l {
		if c.Name == name {
			return c, true
		}
	}

	return Channel{}, false
}

// Names returns channel names in list order.
func (l ChannelList) Names() []string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.Name
	}

	return names
}

// Validate checks names, types and sampling rates.
func (l ChannelList) Validate() error {
	seen := make(map[string]bool, len(l))

	for _, c := range l {
		if c.Name == "" {
			return fmt.Errorf("%w: empty channel name", ErrInvalidAttributeValue)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate channel %q", ErrInvalidAttributeValue, c.Name)
		}
		seen[c.Name] = true

		if c.Type.Size() == 0 {
			return fmt.Errorf("%w: channel %q: %s", ErrUnsupportedChannelType, c.Name, c.Type)
		}
		if c.XSampling < 1 || c.YSampling < 1 {
			return fmt.Errorf("%w: channel %q: sampling %dx%d", ErrInvalidAttributeValue,
				c.Name, c.XSampling, c.YSampling)
		}
	}

	return nil
}

// divp is floor division for a positive divisor.
func divp(x, y int) int {
	if x >= 0 {
		return x / y
	}

	return -((y - 1 - x) / y)
}

// modp is the non-negative remainder matching divp.
func modp(x, y int) int {
	return x - y*divp(x, y)
}

// numSamples counts the multiples of s in [a, b].
func numSamples(s, a, b int) int {
	a1 := divp(a, s)
	b1 := divp(b, s)

	n := b1 - a1
	if a1*s >= a {
		n++
	}

	return n
}
