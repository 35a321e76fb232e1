package exr

import "fmt"

// V2i is a 2-D integer vector.
type V2i struct {
	X, Y int32
}

// V2f is a 2-D float vector.
type V2f struct {
	X, Y float32
}

// V3i is a 3-D integer vector.
type V3i struct {
	X, Y, Z int32
}

// V3f is a 3-D float vector.
type V3f struct {
	X, Y, Z float32
}

// Box2i is an integer box, both corners inclusive.
type Box2i struct {
	Min, Max V2i
}

// Box2f is a float box.
type Box2f struct {
	Min, Max V2f
}

// NewBox2i returns the box with the given inclusive corners.
func NewBox2i(minX, minY, maxX, maxY int) Box2i {
	return Box2i{Min: V2i{X: int32(minX), Y: int32(minY)}, Max: V2i{X: int32(maxX), Y: int32(maxY)}}
}

// Width returns the number of columns.
func (b Box2i) Width() int { return int(b.Max.X) - int(b.Min.X) + 1 }

// Height returns the number of rows.
func (b Box2i) Height() int { return int(b.Max.Y) - int(b.Min.Y) + 1 }

// Empty reports whether the box has no pixels.
func (b Box2i) Empty() bool { return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y }

// Contains reports whether o lies entirely inside b.
func (b Box2i) Contains(o Box2i) bool {
	return o.Min.X >= b.Min.X && o.Min.Y >= b.Min.Y && o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y
}

func (b Box2i) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}

// M33f is a row-major 3x3 matrix.
type M33f [9]float32

// M44f is a row-major 4x4 matrix.
type M44f [16]float32

// Rational is a signed numerator over an unsigned denominator.
type Rational struct {
	Num   int32
	Denom uint32
}

// KeyCode identifies a motion picture film frame.
type KeyCode struct {
	FilmMfcCode   int32
	FilmType      int32
	Prefix        int32
	Count         int32
	PerfOffset    int32
	PerfsPerFrame int32
	PerfsPerCount int32
}

// TimeCode is an SMPTE time code with user data.
type TimeCode struct {
	TimeAndFlags uint32
	UserData     uint32
}

// Chromaticities are the CIE xy coordinates of the RGB primaries and the white point.
type Chromaticities struct {
	Red, Green, Blue, White V2f
}

// Preview is a small 8-bit RGBA image, non-premultiplied, stored row by row.
type Preview struct {
	Width, Height uint32
	Pixels        []byte
}

// LineOrder is the vertical order of chunks in the file.
type LineOrder uint8

// Line orders.
const (
	IncreasingY LineOrder = 0
	DecreasingY LineOrder = 1
	RandomY     LineOrder = 2
)

func (l LineOrder) String() string {
	switch l {
	case IncreasingY:
		return "increasing_y"
	case DecreasingY:
		return "decreasing_y"
	case RandomY:
		return "random_y"
	}

	return fmt.Sprintf("lineOrder(%d)", uint8(l))
}

// EnvMap describes how an environment map is laid out.
type EnvMap uint8

// Environment map layouts.
const (
	EnvMapLatLong EnvMap = 0
	EnvMapCube    EnvMap = 1
)

// LevelMode selects single-resolution, mipmapped or ripmapped tiles.
type LevelMode uint8

// Level modes.
const (
	OneLevel     LevelMode = 0
	MipmapLevels LevelMode = 1
	RipmapLevels LevelMode = 2
)

func (m LevelMode) String() string {
	switch m {
	case OneLevel:
		return "one_level"
	case MipmapLevels:
		return "mipmap"
	case RipmapLevels:
		return "ripmap"
	}

	return fmt.Sprintf("levelMode(%d)", uint8(m))
}

// LevelRounding tells whether level sizes are rounded down or up.
type LevelRounding uint8

// Rounding modes.
const (
	RoundDown LevelRounding = 0
	RoundUp   LevelRounding = 1
)

func (r LevelRounding) String() string {
	switch r {
	case RoundDown:
		return "round_down"
	case RoundUp:
		return "round_up"
	}

	return fmt.Sprintf("levelRounding(%d)", uint8(r))
}

// TileDescription is the value of the tiles attribute.
type TileDescription struct {
	XSize, YSize uint32
	Mode         LevelMode
	Rounding     LevelRounding
}

// TileCoord addresses one tile: column, row and resolution level.
type TileCoord struct {
	X, Y           int
	LevelX, LevelY int
}

func (tc TileCoord) String() string {
	return fmt.Sprintf("tile(%d,%d) level(%d,%d)", tc.X, tc.Y, tc.LevelX, tc.LevelY)
}

// HDRImage stores a linear-light image in RGB float32.
type HDRImage struct {
	Width  int
	Height int
	Stride int // pixels per row, in RGB triplets
	Pix    []float32
}

// At returns the pixel at x, y with coordinates clamped to the image.
func (h *HDRImage) At(x, y int) (r, g, b float32) {
	x = max(0, min(x, h.Width-1))
	y = max(0, min(y, h.Height-1))
	i := (y*h.Stride + x) * 3

	return h.Pix[i], h.Pix[i+1], h.Pix[i+2]
}
