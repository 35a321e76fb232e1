package wavelet

import (
	"math/rand/v2"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	sizes := [][2]int{{1, 1}, {1, 7}, {7, 1}, {2, 2}, {3, 5}, {16, 16}, {17, 9}, {33, 32}, {64, 3}}

	for _, sz := range sizes {
		for _, mx := range []uint16{1<<14 - 1, 65535} {
			nx, ny := sz[0], sz[1]

			for _, ox := range []int{1, 2} {
				plane := make([]uint16, nx*ny*ox)
				for i := range plane {
					plane[i] = uint16(rng.IntN(int(mx) + 1))
				}

				orig := append([]uint16(nil), plane...)

				Encode(plane, nx, ox, ny, nx*ox, mx)
				Decode(plane, nx, ox, ny, nx*ox, mx)

				for i := range plane {
					if plane[i] != orig[i] {
						t.Fatalf("%dx%d ox=%d mx=%d: value %d = %d, want %d", nx, ny, ox, mx, i, plane[i], orig[i])
					}
				}
			}
		}
	}
}

func TestPairs(t *testing.T) {
	for a := 0; a < 1<<16; a += 251 {
		for b := 0; b < 1<<16; b += 257 {
			l, h := enc16(uint16(a), uint16(b))
			x, y := dec16(l, h)
			if int(x) != a || int(y) != b {
				t.Fatalf("16-bit pair (%d, %d) decoded to (%d, %d)", a, b, x, y)
			}

			if a < 1<<14 && b < 1<<14 {
				l, h = enc14(uint16(a), uint16(b))
				x, y = dec14(l, h)
				if int(x) != a || int(y) != b {
					t.Fatalf("14-bit pair (%d, %d) decoded to (%d, %d)", a, b, x, y)
				}
			}
		}
	}
}
