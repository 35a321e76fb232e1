package exr

import "math"

type rgb struct {
	r, g, b float32
}

type colorGamut int

const (
	colorGamutSRGB colorGamut = iota
	colorGamutDisplayP3
	colorGamutAdobeRGB
	colorGamutOther
)

func (g colorGamut) String() string {
	switch g {
	case colorGamutSRGB:
		return "Rec.709/sRGB"
	case colorGamutDisplayP3:
		return "Display P3"
	case colorGamutAdobeRGB:
		return "Adobe RGB"
	}

	return "custom"
}

// DefaultChromaticities are the Rec. 709 primaries with a D65 white point, assumed when
// a header has no chromaticities attribute.
var DefaultChromaticities = Chromaticities{
	Red:   V2f{X: 0.64, Y: 0.33},
	Green: V2f{X: 0.30, Y: 0.60},
	Blue:  V2f{X: 0.15, Y: 0.06},
	White: V2f{X: 0.3127, Y: 0.3290},
}

var knownGamuts = []struct {
	gamut colorGamut
	c     Chromaticities
}{
	{colorGamutSRGB, DefaultChromaticities},
	{colorGamutDisplayP3, Chromaticities{
		Red: V2f{X: 0.680, Y: 0.320}, Green: V2f{X: 0.265, Y: 0.690},
		Blue: V2f{X: 0.150, Y: 0.060}, White: V2f{X: 0.3127, Y: 0.3290},
	}},
	{colorGamutAdobeRGB, Chromaticities{
		Red: V2f{X: 0.64, Y: 0.33}, Green: V2f{X: 0.21, Y: 0.71},
		Blue: V2f{X: 0.15, Y: 0.06}, White: V2f{X: 0.3127, Y: 0.3290},
	}},
}

func near(a, b V2f) bool {
	const eps = 1e-3

	return math.Abs(float64(a.X-b.X)) < eps && math.Abs(float64(a.Y-b.Y)) < eps
}

// gamutOf matches chromaticities against the D65 gamuts with built-in matrices.
func gamutOf(c Chromaticities) colorGamut {
	for _, k := range knownGamuts {
		if near(c.Red, k.c.Red) && near(c.Green, k.c.Green) && near(c.Blue, k.c.Blue) && near(c.White, k.c.White) {
			return k.gamut
		}
	}

	return colorGamutOther
}

// GamutName names the color space described by c, "custom" when it is not a known one.
func GamutName(c Chromaticities) string { return gamutOf(c).String() }

// toRec709 returns a function converting linear RGB with chromaticities c to linear
// Rec. 709.
func toRec709(c Chromaticities) func(v rgb) rgb {
	g := gamutOf(c)
	if g == colorGamutSRGB {
		return func(v rgb) rgb { return v }
	}

	if g != colorGamutOther {
		return func(v rgb) rgb { return convertLinearGamut(v, g, colorGamutSRGB) }
	}

	m, ok := rgbToXYZMatrix(c)
	if !ok {
		return func(v rgb) rgb { return v }
	}

	return func(v rgb) rgb {
		x := m[0]*v.r + m[1]*v.g + m[2]*v.b
		y := m[3]*v.r + m[4]*v.g + m[5]*v.b
		z := m[6]*v.r + m[7]*v.g + m[8]*v.b

		return xyzToRGB(x, y, z, colorGamutSRGB)
	}
}

// rgbToXYZMatrix derives the row-major RGB to XYZ matrix of arbitrary primaries, scaled
// so that RGB (1, 1, 1) maps to the white point with Y = 1.
func rgbToXYZMatrix(c Chromaticities) ([9]float32, bool) {
	col := func(p V2f) [3]float64 {
		x, y := float64(p.X), float64(p.Y)
		return [3]float64{x / y, 1, (1 - x - y) / y}
	}

	if c.Red.Y == 0 || c.Green.Y == 0 || c.Blue.Y == 0 || c.White.Y == 0 {
		return [9]float32{}, false
	}

	r, g, b, w := col(c.Red), col(c.Green), col(c.Blue), col(c.White)
	p := [9]float64{
		r[0], g[0], b[0],
		r[1], g[1], b[1],
		r[2], g[2], b[2],
	}

	inv, ok := invert3(p)
	if !ok {
		return [9]float32{}, false
	}

	var s [3]float64
	for i := range s {
		s[i] = inv[i*3]*w[0] + inv[i*3+1]*w[1] + inv[i*3+2]*w[2]
	}

	var m [9]float32
	for i := range m {
		m[i] = float32(p[i] * s[i%3])
	}

	return m, true
}

func invert3(m [9]float64) ([9]float64, bool) {
	det := m[0]*(m[4]*m[8]-m[5]*m[7]) - m[1]*(m[3]*m[8]-m[5]*m[6]) + m[2]*(m[3]*m[7]-m[4]*m[6])
	if math.Abs(det) < 1e-12 {
		return [9]float64{}, false
	}

	d := 1 / det

	return [9]float64{
		(m[4]*m[8] - m[5]*m[7]) * d,
		(m[2]*m[7] - m[1]*m[8]) * d,
		(m[1]*m[5] - m[2]*m[4]) * d,
		(m[5]*m[6] - m[3]*m[8]) * d,
		(m[0]*m[8] - m[2]*m[6]) * d,
		(m[2]*m[3] - m[0]*m[5]) * d,
		(m[3]*m[7] - m[4]*m[6]) * d,
		(m[1]*m[6] - m[0]*m[7]) * d,
		(m[0]*m[4] - m[1]*m[3]) * d,
	}, true
}

func convertLinearGamut(v rgb, from, to colorGamut) rgb {
	if from == to {
		return v
	}
	// Matrices are D65 linear RGB <-> XYZ.
	x, y, z := rgbToXYZ(v, from)
	return xyzToRGB(x, y, z, to)
}

func rgbToXYZ(v rgb, from colorGamut) (float32, float32, float32) {
	switch from {
	case colorGamutDisplayP3:
		return 0.48657095*v.r + 0.2656677*v.g + 0.19821729*v.b,
			0.22897457*v.r + 0.69173855*v.g + 0.07928691*v.b,
			0.04511338*v.g + 1.0439444*v.b
	case colorGamutAdobeRGB:
		return 0.5767309*v.r + 0.185554*v.g + 0.1881852*v.b,
			0.2973769*v.r + 0.6273491*v.g + 0.0752741*v.b,
			0.0270343*v.r + 0.0706872*v.g + 0.9911085*v.b
	default:
		return 0.4123908*v.r + 0.35758433*v.g + 0.1804808*v.b,
			0.212639*v.r + 0.71516865*v.g + 0.07219232*v.b,
			0.019330818*v.r + 0.11919478*v.g + 0.95053214*v.b
	}
}

func xyzToRGB(x, y, z float32, to colorGamut) rgb {
	switch to {
	case colorGamutDisplayP3:
		return rgb{
			r: 2.493497*x - 0.9313836*y - 0.4027108*z,
			g: -0.829489*x + 1.7626641*y + 0.023624685*z,
			b: 0.03584583*x - 0.07617239*y + 0.9568845*z,
		}
	case colorGamutAdobeRGB:
		return rgb{
			r: 2.041369*x - 0.5649464*y - 0.3446944*z,
			g: -0.969266*x + 1.8760108*y + 0.041556*z,
			b: 0.0134474*x - 0.1183897*y + 1.0154096*z,
		}
	default:
		return rgb{
			r: 3.24097*x - 1.5373832*y - 0.49861076*z,
			g: -0.96924365*x + 1.8759675*y + 0.041555058*z,
			b: 0.05563008*x - 0.20397696*y + 1.0569715*z,
		}
	}
}
