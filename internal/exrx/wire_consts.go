// Package exrx holds OpenEXR wire-level constants and little-endian cursors shared by
// the container and codec code.
package exrx

// Magic is the first four bytes of every OpenEXR file (20000630 little-endian).
const Magic = 20000630

// MagicBytes is Magic as it appears on disk.
var MagicBytes = [4]byte{0x76, 0x2f, 0x31, 0x01}

// Version word layout.
const (
	Version         = 2
	VersionMask     = 0x000000ff
	FlagTiled       = 0x00000200 // Single-part tiled file.
	FlagLongNames   = 0x00000400 // Attribute and channel names up to 255 bytes.
	FlagNonImage    = 0x00000800 // Deep data.
	FlagMultiPart   = 0x00001000
	KnownFlags      = FlagTiled | FlagLongNames | FlagNonImage | FlagMultiPart
	ShortNameMaxLen = 31
	LongNameMaxLen  = 255
)

// Part types stored in the "type" attribute of multi-part files.
const (
	PartScanline     = "scanlineimage"
	PartTiled        = "tiledimage"
	PartDeepScanline = "deepscanline"
	PartDeepTiled    = "deeptile"
)

// Attribute type names.
const (
	TypeBox2i          = "box2i"
	TypeBox2f          = "box2f"
	TypeChlist         = "chlist"
	TypeChromaticities = "chromaticities"
	TypeCompression    = "compression"
	TypeDouble         = "double"
	TypeEnvmap         = "envmap"
	TypeFloat          = "float"
	TypeFloatVector    = "floatvector"
	TypeInt            = "int"
	TypeKeycode        = "keycode"
	TypeLineOrder      = "lineOrder"
	TypeM33f           = "m33f"
	TypeM44f           = "m44f"
	TypePreview        = "preview"
	TypeRational       = "rational"
	TypeString         = "string"
	TypeStringVector   = "stringvector"
	TypeTiledesc       = "tiledesc"
	TypeTimecode       = "timecode"
	TypeV2i            = "v2i"
	TypeV2f            = "v2f"
	TypeV3i            = "v3i"
	TypeV3f            = "v3f"
)

// FixedSize maps fixed-layout attribute types to their byte size.
var FixedSize = map[string]int{
	TypeBox2i:          16,
	TypeBox2f:          16,
	TypeChromaticities: 32,
	TypeCompression:    1,
	TypeDouble:         8,
	TypeEnvmap:         1,
	TypeFloat:          4,
	TypeInt:            4,
	TypeKeycode:        28,
	TypeLineOrder:      1,
	TypeM33f:           36,
	TypeM44f:           64,
	TypeRational:       8,
	TypeTiledesc:       9,
	TypeTimecode:       8,
	TypeV2i:            8,
	TypeV2f:            8,
	TypeV3i:            12,
	TypeV3f:            12,
}
