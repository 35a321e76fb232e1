package exr

import (
	"math"

	"github.com/ajroetker/go-highway/hwy"
)

// Half is an IEEE 754 binary16 value as stored in half channels.
type Half uint16

// NewHalf converts f to the nearest half, ties to even.
func NewHalf(f float32) Half { return Half(FloatToHalf(f)) }

// Float32 returns the exact float32 value of h.
func (h Half) Float32() float32 { return HalfToFloat(uint16(h)) }

// Bits returns the binary16 encoding.
func (h Half) Bits() uint16 { return uint16(h) }

// HalfToFloat widens a binary16 value. NaN keeps its sign and comes back quiet.
func HalfToFloat(h uint16) float32 {
	return hwy.Float16ToFloat32(hwy.Float16(h))
}

// FloatToHalf narrows f with round-to-nearest-even. Values beyond the half range become
// infinities, tiny values become half subnormals or signed zero, NaN stays NaN.
func FloatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	exp := int((bits>>23)&0xff) - 127 + 15

	// hwy drops the sticky bits when shifting into the subnormal range, so that range
	// is rounded here.
	if exp <= 0 && exp >= -10 {
		sign := uint16(bits>>16) & 0x8000
		m := bits&0x7fffff | 0x800000
		shift := uint(14 - exp)
		r := m >> shift
		rem := m & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)

		if rem > halfway || (rem == halfway && r&1 == 1) {
			r++
		}

		return sign | uint16(r)
	}

	return uint16(hwy.Float32ToFloat16(f))
}

func halfBytesToFloat(b []byte) float32 {
	return HalfToFloat(uint16(b[0]) | uint16(b[1])<<8)
}
