// Package wavelet implements the in-place 2-D Haar lifting transform of PIZ compression.
//
// Values below 1<<14 use the exact 14-bit variant, larger ones the modular 16-bit
// variant. Plane elements are addressed as base + x*ox + y*oy so interleaved word
// planes can be transformed without copying.
package wavelet

const (
	nBits   = 16
	aOffset = 1 << (nBits - 1)
	mOffset = 1 << (nBits - 1)
	modMask = 1<<nBits - 1
)

func enc14(a, b uint16) (l, h uint16) {
	as := int(int16(a))
	bs := int(int16(b))

	return uint16(int16((as + bs) >> 1)), uint16(int16(as - bs))
}

func dec14(l, h uint16) (a, b uint16) {
	ls := int(int16(l))
	hi := int(int16(h))
	ai := ls + (hi & 1) + (hi >> 1)

	return uint16(int16(ai)), uint16(int16(ai - hi))
}

func enc16(a, b uint16) (l, h uint16) {
	ao := (int(a) + aOffset) & modMask
	m := (ao + int(b)) >> 1
	d := ao - int(b)

	if d < 0 {
		m = (m + mOffset) & modMask
	}
	d &= modMask

	return uint16(m), uint16(d)
}

func dec16(l, h uint16) (a, b uint16) {
	m := int(l)
	d := int(h)
	bb := (m - (d >> 1)) & modMask
	aa := (d + bb - aOffset) & modMask

	return uint16(aa), uint16(bb)
}

// Encode transforms the nx by ny plane in place. mx is the largest value in the plane.
func Encode(in []uint16, nx, ox, ny, oy int, mx uint16) {
	enc := enc16
	if mx < 1<<14 {
		enc = enc14
	}

	n := min(nx, ny)
	p := 1
	p2 := 2

	for p2 <= n {
		py := 0
		ey := oy * (ny - p2)
		oy1 := oy * p
		oy2 := oy * p2
		ox1 := ox * p
		ox2 := ox * p2

		for ; py <= ey; py += oy2 {
			px := py
			ex := py + ox*(nx-p2)

			for ; px <= ex; px += ox2 {
				p01 := px + ox1
				p10 := px + oy1
				p11 := p10 + ox1

				i00, i01 := enc(in[px], in[p01])
				i10, i11 := enc(in[p10], in[p11])
				in[px], in[p10] = enc(i00, i10)
				in[p01], in[p11] = enc(i01, i11)
			}

			if nx&p != 0 {
				p10 := px + oy1
				in[px], in[p10] = enc(in[px], in[p10])
			}
		}

		if ny&p != 0 {
			px := py
			ex := py + ox*(nx-p2)

			for ; px <= ex; px += ox2 {
				p01 := px + ox1
				in[px], in[p01] = enc(in[px], in[p01])
			}
		}

		p = p2
		p2 <<= 1
	}
}

// Decode inverts Encode.
func Decode(in []uint16, nx, ox, ny, oy int, mx uint16) {
	dec := dec16
	if mx < 1<<14 {
		dec = dec14
	}

	n := min(nx, ny)
	p := 1

	for p <= n {
		p <<= 1
	}

	p >>= 1
	p2 := p
	p >>= 1

	for p >= 1 {
		py := 0
		ey := oy * (ny - p2)
		oy1 := oy * p
		oy2 := oy * p2
		ox1 := ox * p
		ox2 := ox * p2

		for ; py <= ey; py += oy2 {
			px := py
			ex := py + ox*(nx-p2)

			for ; px <= ex; px += ox2 {
				p01 := px + ox1
				p10 := px + oy1
				p11 := p10 + ox1

				i00, i10 := dec(in[px], in[p10])
				i01, i11 := dec(in[p01], in[p11])
				in[px], in[p01] = dec(i00, i01)
				in[p10], in[p11] = dec(i10, i11)
			}

			if nx&p != 0 {
				p10 := px + oy1
				in[px], in[p10] = dec(in[px], in[p10])
			}
		}

		if ny&p != 0 {
			px := py
			ex := py + ox*(nx-p2)

			for ; px <= ex; px += ox2 {
				p01 := px + ox1
				in[px], in[p01] = dec(in[px], in[p01])
			}
		}

		p2 = p
		p >>= 1
	}
}
