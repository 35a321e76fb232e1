package exr

import (
	"bytes"
	"fmt"

	"github.com/vearutop/exr/internal/exrx"
)

// Value is an attribute value. Known types are listed below, anything else is kept
// as Opaque so it survives a read-write cycle.
type Value interface {
	// TypeName is the attribute type written to the file.
	TypeName() string
	appendValue(dst []byte) []byte
}

// Attribute is a named value.
type Attribute struct {
	Name  string
	Value Value
}

// Opaque holds an attribute of a type this package does not interpret.
type Opaque struct {
	Type string
	Data []byte
}

type (
	// Double is a float64 attribute.
	Double float64
	// Float is a float32 attribute.
	Float float32
	// Int is an int32 attribute.
	Int int32
	// String is a string attribute.
	String string
	// StringVector is a list of strings.
	StringVector []string
	// FloatVector is a list of float32 values.
	FloatVector []float32
)

func (Box2i) TypeName() string           { return exrx.TypeBox2i }
func (Box2f) TypeName() string           { return exrx.TypeBox2f }
func (ChannelList) TypeName() string     { return exrx.TypeChlist }
func (Chromaticities) TypeName() string  { return exrx.TypeChromaticities }
func (Compression) TypeName() string     { return exrx.TypeCompression }
func (Double) TypeName() string          { return exrx.TypeDouble }
func (EnvMap) TypeName() string          { return exrx.TypeEnvmap }
func (Float) TypeName() string           { return exrx.TypeFloat }
func (FloatVector) TypeName() string     { return exrx.TypeFloatVector }
func (Int) TypeName() string             { return exrx.TypeInt }
func (KeyCode) TypeName() string         { return exrx.TypeKeycode }
func (LineOrder) TypeName() string       { return exrx.TypeLineOrder }
func (M33f) TypeName() string            { return exrx.TypeM33f }
func (M44f) TypeName() string            { return exrx.TypeM44f }
func (Preview) TypeName() string         { return exrx.TypePreview }
func (Rational) TypeName() string        { return exrx.TypeRational }
func (String) TypeName() string          { return exrx.TypeString }
func (StringVector) TypeName() string    { return exrx.TypeStringVector }
func (TileDescription) TypeName() string { return exrx.TypeTiledesc }
func (TimeCode) TypeName() string        { return exrx.TypeTimecode }
func (V2i) TypeName() string             { return exrx.TypeV2i }
func (V2f) TypeName() string             { return exrx.TypeV2f }
func (V3i) TypeName() string             { return exrx.TypeV3i }
func (V3f) TypeName() string             { return exrx.TypeV3f }
func (o Opaque) TypeName() string        { return o.Type }

func (v V2i) appendValue(dst []byte) []byte {
	dst = exrx.AppendInt32(dst, v.X)
	return exrx.AppendInt32(dst, v.Y)
}

func (v V2f) appendValue(dst []byte) []byte {
	dst = exrx.AppendFloat32(dst, v.X)
	return exrx.AppendFloat32(dst, v.Y)
}

func (v V3i) appendValue(dst []byte) []byte {
	dst = exrx.AppendInt32(dst, v.X)
	dst = exrx.AppendInt32(dst, v.Y)
	return exrx.AppendInt32(dst, v.Z)
}

func (v V3f) appendValue(dst []byte) []byte {
	dst = exrx.AppendFloat32(dst, v.X)
	dst = exrx.AppendFloat32(dst, v.Y)
	return exrx.AppendFloat32(dst, v.Z)
}

func (b Box2i) appendValue(dst []byte) []byte {
	dst = b.Min.appendValue(dst)
	return b.Max.appendValue(dst)
}

func (b Box2f) appendValue(dst []byte) []byte {
	dst = b.Min.appendValue(dst)
	return b.Max.appendValue(dst)
}

func (l ChannelList) appendValue(dst []byte) []byte {
	for _, c := range l.Sorted() {
		dst = exrx.AppendCString(dst, c.Name)
		dst = exrx.AppendInt32(dst, int32(c.Type))

		var linear byte
		if c.PLinear {
			linear = 1
		}

		dst = append(dst, linear, 0, 0, 0)
		dst = exrx.AppendInt32(dst, c.XSampling)
		dst = exrx.AppendInt32(dst, c.YSampling)
	}

	return append(dst, 0)
}

func (c Chromaticities) appendValue(dst []byte) []byte {
	for _, v := range [4]V2f{c.Red, c.Green, c.Blue, c.White} {
		dst = v.appendValue(dst)
	}

	return dst
}

func (c Compression) appendValue(dst []byte) []byte { return append(dst, byte(c)) }
func (d Double) appendValue(dst []byte) []byte      { return exrx.AppendFloat64(dst, float64(d)) }
func (e EnvMap) appendValue(dst []byte) []byte      { return append(dst, byte(e)) }
func (f Float) appendValue(dst []byte) []byte       { return exrx.AppendFloat32(dst, float32(f)) }
func (i Int) appendValue(dst []byte) []byte         { return exrx.AppendInt32(dst, int32(i)) }
func (l LineOrder) appendValue(dst []byte) []byte   { return append(dst, byte(l)) }
func (s String) appendValue(dst []byte) []byte      { return append(dst, s...) }
func (o Opaque) appendValue(dst []byte) []byte      { return append(dst, o.Data...) }

func (v FloatVector) appendValue(dst []byte) []byte {
	for _, f := range v {
		dst = exrx.AppendFloat32(dst, f)
	}

	return dst
}

func (v StringVector) appendValue(dst []byte) []byte {
	for _, s := range v {
		dst = exrx.AppendInt32(dst, int32(len(s)))
		dst = append(dst, s...)
	}

	return dst
}

func (k KeyCode) appendValue(dst []byte) []byte {
	for _, v := range [7]int32{k.FilmMfcCode, k.FilmType, k.Prefix, k.Count, k.PerfOffset, k.PerfsPerFrame, k.PerfsPerCount} {
		dst = exrx.AppendInt32(dst, v)
	}

	return dst
}

func (m M33f) appendValue(dst []byte) []byte {
	for _, v := range m {
		dst = exrx.AppendFloat32(dst, v)
	}

	return dst
}

func (m M44f) appendValue(dst []byte) []byte {
	for _, v := range m {
		dst = exrx.AppendFloat32(dst, v)
	}

	return dst
}

func (p Preview) appendValue(dst []byte) []byte {
	dst = exrx.AppendUint32(dst, p.Width)
	dst = exrx.AppendUint32(dst, p.Height)

	return append(dst, p.Pixels...)
}

func (r Rational) appendValue(dst []byte) []byte {
	dst = exrx.AppendInt32(dst, r.Num)
	return exrx.AppendUint32(dst, r.Denom)
}

func (t TileDescription) appendValue(dst []byte) []byte {
	dst = exrx.AppendUint32(dst, t.XSize)
	dst = exrx.AppendUint32(dst, t.YSize)

	return append(dst, byte(t.Mode)|byte(t.Rounding)<<4)
}

func (t TimeCode) appendValue(dst []byte) []byte {
	dst = exrx.AppendUint32(dst, t.TimeAndFlags)
	return exrx.AppendUint32(dst, t.UserData)
}

// EncodeValue returns the wire bytes of v.
func EncodeValue(v Value) []byte {
	return v.appendValue(nil)
}

// DecodeValue parses the wire bytes of an attribute of type typ. Unknown types come
// back as Opaque.
func DecodeValue(typ string, data []byte) (Value, error) {
	if size, ok := exrx.FixedSize[typ]; ok && size != len(data) {
		return nil, fmt.Errorf("%w: %s of %d bytes, want %d", ErrInvalidAttributeValue, typ, len(data), size)
	}

	c := exrx.NewCursor(data)

	var v Value

	switch typ {
	case exrx.TypeBox2i:
		v = Box2i{Min: readV2i(c), Max: readV2i(c)}
	case exrx.TypeBox2f:
		v = Box2f{Min: readV2f(c), Max: readV2f(c)}
	case exrx.TypeChlist:
		return decodeChannels(data)
	case exrx.TypeChromaticities:
		v = Chromaticities{Red: readV2f(c), Green: readV2f(c), Blue: readV2f(c), White: readV2f(c)}
	case exrx.TypeCompression:
		cm := Compression(c.Uint8())
		if cm >= numCompressions {
			return nil, fmt.Errorf("%w: compression %d", ErrInvalidAttributeValue, cm)
		}
		v = cm
	case exrx.TypeDouble:
		v = Double(c.Float64())
	case exrx.TypeEnvmap:
		e := EnvMap(c.Uint8())
		if e > EnvMapCube {
			return nil, fmt.Errorf("%w: envmap %d", ErrInvalidAttributeValue, e)
		}
		v = e
	case exrx.TypeFloat:
		v = Float(c.Float32())
	case exrx.TypeFloatVector:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%w: floatvector of %d bytes", ErrInvalidAttributeValue, len(data))
		}
		fv := make(FloatVector, len(data)/4)
		for i := range fv {
			fv[i] = c.Float32()
		}
		v = fv
	case exrx.TypeInt:
		v = Int(c.Int32())
	case exrx.TypeKeycode:
		v = KeyCode{
			FilmMfcCode: c.Int32(), FilmType: c.Int32(), Prefix: c.Int32(), Count: c.Int32(),
			PerfOffset: c.Int32(), PerfsPerFrame: c.Int32(), PerfsPerCount: c.Int32(),
		}
	case exrx.TypeLineOrder:
		lo := LineOrder(c.Uint8())
		if lo > RandomY {
			return nil, fmt.Errorf("%w: lineOrder %d", ErrInvalidAttributeValue, lo)
		}
		v = lo
	case exrx.TypeM33f:
		var m M33f
		for i := range m {
			m[i] = c.Float32()
		}
		v = m
	case exrx.TypeM44f:
		var m M44f
		for i := range m {
			m[i] = c.Float32()
		}
		v = m
	case exrx.TypePreview:
		w, h := c.Uint32(), c.Uint32()
		if c.Err() != nil || uint64(len(data)-8) != uint64(w)*uint64(h)*4 {
			return nil, fmt.Errorf("%w: preview of %d bytes", ErrInvalidAttributeValue, len(data))
		}
		v = Preview{Width: w, Height: h, Pixels: bytes.Clone(c.Bytes(len(data) - 8))}
	case exrx.TypeRational:
		v = Rational{Num: c.Int32(), Denom: c.Uint32()}
	case exrx.TypeString:
		v = String(data)
	case exrx.TypeStringVector:
		var sv StringVector
		for c.Len() > 0 {
			n := c.Int32()
			if n < 0 {
				return nil, fmt.Errorf("%w: stringvector entry of %d bytes", ErrInvalidAttributeValue, n)
			}
			sv = append(sv, string(c.Bytes(int(n))))
		}
		v = sv
	case exrx.TypeTiledesc:
		td := TileDescription{XSize: c.Uint32(), YSize: c.Uint32()}
		mode := c.Uint8()
		td.Mode = LevelMode(mode & 0x0f)
		td.Rounding = LevelRounding(mode >> 4)
		if td.Mode > RipmapLevels || td.Rounding > RoundUp {
			return nil, fmt.Errorf("%w: tile mode %#x", ErrInvalidAttributeValue, mode)
		}
		v = td
	case exrx.TypeTimecode:
		v = TimeCode{TimeAndFlags: c.Uint32(), UserData: c.Uint32()}
	case exrx.TypeV2i:
		v = readV2i(c)
	case exrx.TypeV2f:
		v = readV2f(c)
	case exrx.TypeV3i:
		v = V3i{X: c.Int32(), Y: c.Int32(), Z: c.Int32()}
	case exrx.TypeV3f:
		v = V3f{X: c.Float32(), Y: c.Float32(), Z: c.Float32()}
	default:
		return Opaque{Type: typ, Data: bytes.Clone(data)}, nil
	}

	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAttributeValue, typ, err)
	}

	return v, nil
}

func readV2i(c *exrx.Cursor) V2i { return V2i{X: c.Int32(), Y: c.Int32()} }
func readV2f(c *exrx.Cursor) V2f { return V2f{X: c.Float32(), Y: c.Float32()} }

func decodeChannels(data []byte) (ChannelList, error) {
	c := exrx.NewCursor(data)

	var l ChannelList

	for {
		name := c.CString()
		if c.Err() != nil {
			return nil, fmt.Errorf("%w: unterminated channel list", ErrInvalidAttributeValue)
		}
		if name == "" {
			break
		}

		ch := Channel{Name: name, Type: PixelType(c.Int32())}
		ch.PLinear = c.Uint8() != 0
		c.Bytes(3)
		ch.XSampling = c.Int32()
		ch.YSampling = c.Int32()

		if c.Err() != nil {
			return nil, fmt.Errorf("%w: truncated channel %q", ErrInvalidAttributeValue, name)
		}

		l = append(l, ch)
	}

	if c.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after channel list", ErrInvalidAttributeValue, c.Len())
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	return l, nil
}

// equalValues compares two values by their wire encoding. NaN floats compare by bits.
func equalValues(a, b Value) bool {
	if a.TypeName() != b.TypeName() {
		return false
	}

	return bytes.Equal(a.appendValue(nil), b.appendValue(nil))
}
