package exr

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vearutop/exr/internal/exrx"
)

// Names of attributes with a meaning to the container.
const (
	AttrChannels           = "channels"
	AttrCompression        = "compression"
	AttrDataWindow         = "dataWindow"
	AttrDisplayWindow      = "displayWindow"
	AttrLineOrder          = "lineOrder"
	AttrPixelAspectRatio   = "pixelAspectRatio"
	AttrScreenWindowCenter = "screenWindowCenter"
	AttrScreenWindowWidth  = "screenWindowWidth"
	AttrTiles              = "tiles"
	AttrName               = "name"
	AttrType               = "type"
	AttrChunkCount         = "chunkCount"
	AttrVersion            = "version"
	AttrPreview            = "preview"
	AttrChromaticities     = "chromaticities"
)

var requiredAttributes = []string{
	AttrChannels,
	AttrCompression,
	AttrDataWindow,
	AttrDisplayWindow,
	AttrLineOrder,
	AttrPixelAspectRatio,
	AttrScreenWindowCenter,
	AttrScreenWindowWidth,
}

// Header is the attribute set of one part. Attributes keep the order they were added
// or read in and are written sorted by name.
type Header struct {
	attrs []Attribute
}

// NewHeader returns a header with every required attribute: the display window equals
// the data window, lines are stored in increasing y, pixels are square.
func NewHeader(dataWindow Box2i, channels ChannelList, compression Compression) *Header {
	h := &Header{}
	h.Set(AttrChannels, channels.Sorted())
	h.Set(AttrCompression, compression)
	h.Set(AttrDataWindow, dataWindow)
	h.Set(AttrDisplayWindow, dataWindow)
	h.Set(AttrLineOrder, IncreasingY)
	h.Set(AttrPixelAspectRatio, Float(1))
	h.Set(AttrScreenWindowCenter, V2f{})
	h.Set(AttrScreenWindowWidth, Float(1))

	return h
}

// Len returns the number of attributes.
func (h *Header) Len() int { return len(h.attrs) }

// Attributes returns a copy of the attribute list in header order.
func (h *Header) Attributes() []Attribute { return slices.Clone(h.attrs) }

// Get returns the value of the named attribute.
func (h *Header) Get(name string) (Value, bool) {
	for _, a := range h.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}

	return nil, false
}

// Set adds or replaces an attribute.
func (h *Header) Set(name string, v Value) {
	if cl, ok := v.(ChannelList); ok {
		v = cl.Sorted()
	}

	for i, a := range h.attrs {
		if a.Name == name {
			h.attrs[i].Value = v
			return
		}
	}

	h.attrs = append(h.attrs, Attribute{Name: name, Value: v})
}

// Delete removes an attribute.
func (h *Header) Delete(name string) {
	h.attrs = slices.DeleteFunc(h.attrs, func(a Attribute) bool { return a.Name == name })
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	c := &Header{attrs: make([]Attribute, len(h.attrs))}
	for i, a := range h.attrs {
		c.attrs[i] = Attribute{Name: a.Name, Value: cloneValue(a.Value)}
	}

	return c
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case ChannelList:
		return slices.Clone(t)
	case FloatVector:
		return slices.Clone(t)
	case StringVector:
		return slices.Clone(t)
	case Preview:
		t.Pixels = bytes.Clone(t.Pixels)
		return t
	case Opaque:
		t.Data = bytes.Clone(t.Data)
		return t
	}

	return v
}

// Equal reports whether both headers hold the same attributes with the same values,
// regardless of order.
func (h *Header) Equal(o *Header) bool {
	if len(h.attrs) != len(o.attrs) {
		return false
	}

	for _, a := range h.attrs {
		v, ok := o.Get(a.Name)
		if !ok || !equalValues(a.Value, v) {
			return false
		}
	}

	return true
}

func attrAs[T Value](h *Header, name string) (T, error) {
	var zero T

	v, ok := h.Get(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingRequiredAttribute, name)
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %s", ErrInvalidAttributeValue, name, v.TypeName())
	}

	return t, nil
}

// Channels returns the channel list.
func (h *Header) Channels() (ChannelList, error) { return attrAs[ChannelList](h, AttrChannels) }

// Compression returns the compression method.
func (h *Header) Compression() (Compression, error) {
	c, err := attrAs[Compression](h, AttrCompression)
	if err == nil && c >= numCompressions {
		err = fmt.Errorf("%w: compression %d", ErrInvalidAttributeValue, c)
	}

	return c, err
}

// DataWindow returns the box of stored pixels.
func (h *Header) DataWindow() (Box2i, error) { return attrAs[Box2i](h, AttrDataWindow) }

// DisplayWindow returns the box of the full image.
func (h *Header) DisplayWindow() (Box2i, error) { return attrAs[Box2i](h, AttrDisplayWindow) }

// LineOrder returns the line order.
func (h *Header) LineOrder() (LineOrder, error) {
	lo, err := attrAs[LineOrder](h, AttrLineOrder)
	if err == nil && lo > RandomY {
		err = fmt.Errorf("%w: lineOrder %d", ErrInvalidAttributeValue, lo)
	}

	return lo, err
}

// Tiles returns the tile description.
func (h *Header) Tiles() (TileDescription, error) { return attrAs[TileDescription](h, AttrTiles) }

// Chromaticities returns the chromaticities attribute or the Rec. 709 defaults.
func (h *Header) Chromaticities() Chromaticities {
	if c, err := attrAs[Chromaticities](h, AttrChromaticities); err == nil {
		return c
	}

	return DefaultChromaticities
}

// Name returns the part name of a multi-part file.
func (h *Header) Name() string {
	s, _ := attrAs[String](h, AttrName)
	return string(s)
}

// Type returns the part type, empty when absent.
func (h *Header) Type() string {
	s, _ := attrAs[String](h, AttrType)
	return string(s)
}

// ChunkCount returns the chunkCount attribute.
func (h *Header) ChunkCount() (int, bool) {
	n, err := attrAs[Int](h, AttrChunkCount)
	return int(n), err == nil
}

// IsTiled reports whether the part stores tiles rather than scanlines.
func (h *Header) IsTiled() bool {
	if t := h.Type(); t != "" {
		return t == exrx.PartTiled || t == exrx.PartDeepTiled
	}

	_, ok := h.Get(AttrTiles)

	return ok
}

// Validate checks the required attributes and their consistency.
func (h *Header) Validate() error {
	for _, name := range requiredAttributes {
		if _, ok := h.Get(name); !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredAttribute, name)
		}
	}

	for _, a := range h.attrs {
		if a.Name == "" || len(a.Name) > exrx.LongNameMaxLen || a.Value == nil {
			return fmt.Errorf("%w: attribute name %q", ErrInvalidAttributeValue, a.Name)
		}

		if t := a.Value.TypeName(); t == "" || len(t) > exrx.LongNameMaxLen {
			return fmt.Errorf("%w: attribute %q type %q", ErrInvalidAttributeValue, a.Name, t)
		}
	}

	dw, err := h.DataWindow()
	if err != nil {
		return err
	}

	if dw.Empty() {
		return fmt.Errorf("%w: dataWindow %s", ErrInvalidAttributeValue, dw)
	}

	disp, err := h.DisplayWindow()
	if err != nil {
		return err
	}

	if disp.Empty() {
		return fmt.Errorf("%w: displayWindow %s", ErrInvalidAttributeValue, disp)
	}

	if _, err := h.Compression(); err != nil {
		return err
	}

	if _, err := h.LineOrder(); err != nil {
		return err
	}

	if _, err := attrAs[Float](h, AttrPixelAspectRatio); err != nil {
		return err
	}

	if _, err := attrAs[V2f](h, AttrScreenWindowCenter); err != nil {
		return err
	}

	if _, err := attrAs[Float](h, AttrScreenWindowWidth); err != nil {
		return err
	}

	if err := h.validateChannels(dw); err != nil {
		return err
	}

	return h.validatePart()
}

func (h *Header) validateChannels(dw Box2i) error {
	chans, err := h.Channels()
	if err != nil {
		return err
	}

	if err := chans.Validate(); err != nil {
		return err
	}

	tiled := h.IsTiled()

	for _, ch := range chans {
		if len(ch.Name) > exrx.LongNameMaxLen {
			return fmt.Errorf("%w: channel name of %d bytes", ErrInvalidAttributeValue, len(ch.Name))
		}

		xs, ys := int(ch.XSampling), int(ch.YSampling)

		if tiled && (xs != 1 || ys != 1) {
			return fmt.Errorf("%w: channel %q: tiled parts need full resolution channels", ErrInvalidAttributeValue, ch.Name)
		}

		if modp(int(dw.Min.X), xs) != 0 || modp(int(dw.Min.Y), ys) != 0 ||
			dw.Width()%xs != 0 || dw.Height()%ys != 0 {
			return fmt.Errorf("%w: channel %q: data window %s does not fit sampling %dx%d",
				ErrInvalidAttributeValue, ch.Name, dw, xs, ys)
		}
	}

	return nil
}

func (h *Header) validatePart() error {
	if v, ok := h.Get(AttrType); ok {
		t, ok := v.(String)
		if !ok {
			return fmt.Errorf("%w: type has type %s", ErrInvalidAttributeValue, v.TypeName())
		}

		switch string(t) {
		case exrx.PartScanline, exrx.PartTiled:
		case exrx.PartDeepScanline, exrx.PartDeepTiled:
			return fmt.Errorf("%w: deep part %q", ErrUnsupportedVersion, t)
		default:
			return fmt.Errorf("%w: part type %q", ErrInvalidAttributeValue, t)
		}
	}

	if v, ok := h.Get(AttrName); ok {
		if _, ok := v.(String); !ok {
			return fmt.Errorf("%w: name has type %s", ErrInvalidAttributeValue, v.TypeName())
		}
	}

	if v, ok := h.Get(AttrChunkCount); ok {
		if n, ok := v.(Int); !ok || n < 0 {
			return fmt.Errorf("%w: chunkCount", ErrInvalidAttributeValue)
		}
	}

	if !h.IsTiled() {
		return nil
	}

	td, err := h.Tiles()
	if err != nil {
		return err
	}

	if td.XSize == 0 || td.YSize == 0 || td.XSize > 1<<30 || td.YSize > 1<<30 {
		return fmt.Errorf("%w: tile size %dx%d", ErrInvalidAttributeValue, td.XSize, td.YSize)
	}

	if td.Mode > RipmapLevels || td.Rounding > RoundUp {
		return fmt.Errorf("%w: tile mode %s/%s", ErrInvalidAttributeValue, td.Mode, td.Rounding)
	}

	return nil
}

// needsLongNames reports whether any attribute, type or channel name exceeds 31 bytes.
func (h *Header) needsLongNames() bool {
	for _, a := range h.attrs {
		if len(a.Name) > exrx.ShortNameMaxLen || len(a.Value.TypeName()) > exrx.ShortNameMaxLen {
			return true
		}

		if cl, ok := a.Value.(ChannelList); ok {
			for _, ch := range cl {
				if len(ch.Name) > exrx.ShortNameMaxLen {
					return true
				}
			}
		}
	}

	return false
}

// appendHeader serializes the attributes sorted by name, followed by the terminator.
func appendHeader(dst []byte, h *Header) []byte {
	attrs := slices.Clone(h.attrs)
	slices.SortStableFunc(attrs, func(a, b Attribute) int { return strings.Compare(a.Name, b.Name) })

	for _, a := range attrs {
		value := a.Value.appendValue(nil)

		dst = exrx.AppendCString(dst, a.Name)
		dst = exrx.AppendCString(dst, a.Value.TypeName())
		dst = exrx.AppendUint32(dst, uint32(len(value)))
		dst = append(dst, value...)
	}

	return append(dst, 0)
}

// parseHeader reads one attribute list. It returns exrx.ErrShort when the buffer ends
// before the terminator, so the caller can retry with more data.
func parseHeader(c *exrx.Cursor, maxNameLen int) (*Header, error) {
	h := &Header{}

	for {
		name := c.CString()
		if err := c.Err(); err != nil {
			return nil, err
		}

		if name == "" {
			return h, nil
		}

		typ := c.CString()
		size := c.Uint32()

		if err := c.Err(); err != nil {
			return nil, err
		}

		if len(name) > maxNameLen || len(typ) > maxNameLen || typ == "" {
			return nil, fmt.Errorf("%w: attribute %q of type %q: name too long", ErrInvalidAttributeValue, name, typ)
		}

		if size > 1<<31 {
			return nil, fmt.Errorf("%w: attribute %q of %d bytes", ErrInvalidAttributeValue, name, size)
		}

		data := c.Bytes(int(size))
		if err := c.Err(); err != nil {
			return nil, err
		}

		if _, dup := h.Get(name); dup {
			return nil, fmt.Errorf("%w: duplicate attribute %q", ErrInvalidAttributeValue, name)
		}

		v, err := DecodeValue(typ, data)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}

		h.attrs = append(h.attrs, Attribute{Name: name, Value: v})
	}
}

// MarshalBinary returns the attribute list as stored in a file.
func (h *Header) MarshalBinary() ([]byte, error) {
	return appendHeader(nil, h), nil
}

// UnmarshalBinary parses an attribute list produced by MarshalBinary.
func (h *Header) UnmarshalBinary(data []byte) error {
	c := exrx.NewCursor(data)

	p, err := parseHeader(c, exrx.LongNameMaxLen)
	if errors.Is(err, exrx.ErrShort) {
		return fmt.Errorf("%w: truncated header", ErrInvalidAttributeValue)
	}

	if err != nil {
		return err
	}

	if c.Len() != 0 {
		return fmt.Errorf("%w: %d bytes after header", ErrInvalidAttributeValue, c.Len())
	}

	h.attrs = p.attrs

	return nil
}
