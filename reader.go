package exr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/vearutop/exr/internal/exrx"
)

// State is the lifecycle stage of a Reader.
type State int32

// Reader states.
const (
	StateUnopened State = iota
	StateHeaderParsed
	StateIndexed
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateHeaderParsed:
		return "header_parsed"
	case StateIndexed:
		return "indexed"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// ReadOptions configures Open.
type ReadOptions struct {
	// Logger receives debug and warning messages, discarded when nil.
	Logger *slog.Logger

	// ReconstructOffsets rebuilds a damaged offset table, as left by an interrupted
	// writer, by walking the chunks that follow it.
	ReconstructOffsets bool

	// Workers is the number of goroutines ReadImage decodes with, GOMAXPROCS when zero.
	Workers int

	// MaxHeaderSize bounds the bytes read to find the headers and offset tables.
	MaxHeaderSize int
}

// Reader gives random access to the chunks of an OpenEXR file. Chunk reads only use
// ReadAt on the source and may run concurrently.
type Reader struct {
	src     io.ReaderAt
	opts    ReadOptions
	log     *slog.Logger
	version uint32
	parts   []*Part
	state   atomic.Int32
}

// Part is one image of a file. Single-part files have exactly one.
type Part struct {
	r       *Reader
	index   int
	header  *Header
	layout  *Layout
	offsets []uint64
}

// RawChunk is a chunk as stored, without decompression.
type RawChunk struct {
	Index        int
	Offset       uint64
	Box          Box2i
	Tile         TileCoord // zero for scanline parts
	Packed       []byte
	UnpackedSize int
}

// Chunk is a decoded chunk in wire layout: line by line, channels in name order.
type Chunk struct {
	Index int
	Box   Box2i
	Tile  TileCoord // zero for scanline parts
	Data  []byte
}

// Open parses the headers and offset tables of src.
func Open(src io.ReaderAt, options ...func(o *ReadOptions)) (*Reader, error) {
	r := &Reader{src: src}
	r.opts.MaxHeaderSize = defaultMaxHeaderSize

	for _, option := range options {
		option(&r.opts)
	}

	if r.opts.MaxHeaderSize <= 0 {
		r.opts.MaxHeaderSize = defaultMaxHeaderSize
	}

	r.log = r.opts.Logger
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}

	if err := r.open(); err != nil {
		r.setState(StateFailed)
		r.log.Debug("open failed", "error", err)

		return nil, err
	}

	r.log.Debug("opened", "version", r.version, "parts", len(r.parts))

	return r, nil
}

// OpenFile opens the named file. Close releases it.
func OpenFile(name string, options ...func(o *ReadOptions)) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, ioError(err)
	}

	r, err := Open(f, options...)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return r, nil
}

// Close closes the source if it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return ioError(err)
		}
	}

	return nil
}

// State returns the current lifecycle stage.
func (r *Reader) State() State { return State(r.state.Load()) }

func (r *Reader) setState(s State) { r.state.Store(int32(s)) }

// Version returns the version and flags word.
func (r *Reader) Version() uint32 { return r.version }

// IsMultiPart reports whether the file uses the multi-part layout.
func (r *Reader) IsMultiPart() bool { return r.version&exrx.FlagMultiPart != 0 }

// NumParts returns the number of parts.
func (r *Reader) NumParts() int { return len(r.parts) }

// Parts returns all parts in file order.
func (r *Reader) Parts() []*Part { return append([]*Part(nil), r.parts...) }

// Part returns part i.
func (r *Reader) Part(i int) (*Part, error) {
	if i < 0 || i >= len(r.parts) {
		return nil, fmt.Errorf("%w: part %d of %d", ErrOutOfRange, i, len(r.parts))
	}

	return r.parts[i], nil
}

// PartByName returns the part with the given name attribute.
func (r *Reader) PartByName(name string) (*Part, bool) {
	for _, p := range r.parts {
		if p.header.Name() == name {
			return p, true
		}
	}

	return nil, false
}

func (r *Reader) open() error {
	size := initialHeaderRead

	for {
		buf, eof, err := r.readPrefix(size)
		if err != nil {
			return err
		}

		tablesEnd, err := r.parse(buf)
		if errors.Is(err, exrx.ErrShort) {
			if !eof && size < r.opts.MaxHeaderSize {
				size = min(size*4, r.opts.MaxHeaderSize)
				continue
			}

			return fmt.Errorf("%w: file ends inside the header: %w", ErrIO, io.ErrUnexpectedEOF)
		}

		if err != nil {
			return err
		}

		r.checkOffsets(tablesEnd)

		return nil
	}
}

func (r *Reader) readPrefix(n int) ([]byte, bool, error) {
	buf := make([]byte, n)

	k, err := r.src.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, ioError(err)
	}

	return buf[:k], k < n, nil
}

// parse reads magic, version, headers and offset tables from the start of the file.
func (r *Reader) parse(buf []byte) (int, error) {
	if len(buf) < len(exrx.MagicBytes) || !bytes.Equal(buf[:4], exrx.MagicBytes[:]) {
		return 0, ErrBadMagic
	}

	r.parts = nil
	c := exrx.NewCursor(buf[4:])

	version := c.Uint32()
	if err := c.Err(); err != nil {
		return 0, err
	}

	if err := checkVersion(version); err != nil {
		return 0, err
	}

	r.version = version
	multi := version&exrx.FlagMultiPart != 0

	maxName := exrx.ShortNameMaxLen
	if version&exrx.FlagLongNames != 0 {
		maxName = exrx.LongNameMaxLen
	}

	var headers []*Header

	for {
		if multi && c.Peek() == 0 {
			c.Uint8()
			break
		}

		h, err := parseHeader(c, maxName)
		if err != nil {
			return 0, err
		}

		headers = append(headers, h)

		if !multi {
			break
		}
	}

	if err := c.Err(); err != nil {
		return 0, err
	}

	if len(headers) == 0 {
		return 0, fmt.Errorf("%w: multi-part file without parts", ErrMissingRequiredAttribute)
	}

	names := make(map[string]bool, len(headers))

	for i, h := range headers {
		if err := r.checkHeader(h, multi, names); err != nil {
			return 0, fmt.Errorf("part %d: %w", i, err)
		}

		layout, err := NewLayout(h)
		if err != nil {
			return 0, fmt.Errorf("part %d: %w", i, err)
		}

		if n, ok := h.ChunkCount(); ok && n != layout.ChunkCount() {
			return 0, fmt.Errorf("part %d: %w: chunkCount %d, layout has %d",
				i, ErrInvalidAttributeValue, n, layout.ChunkCount())
		}

		r.parts = append(r.parts, &Part{r: r, index: i, header: h, layout: layout})
	}

	r.setState(StateHeaderParsed)

	chunks := 0
	for _, p := range r.parts {
		chunks += p.layout.ChunkCount()
	}

	// Tables are sized from the headers only, so bound them by what was read.
	if chunks > r.opts.MaxHeaderSize/8 {
		return 0, fmt.Errorf("%w: %d chunks exceed the header limit", ErrInvalidAttributeValue, chunks)
	}

	if c.Len() < 8*chunks {
		return 0, fmt.Errorf("offset tables of %d chunks: %w", chunks, exrx.ErrShort)
	}

	for _, p := range r.parts {
		p.offsets = make([]uint64, p.layout.ChunkCount())
		for j := range p.offsets {
			p.offsets[j] = c.Uint64()
		}
	}

	if err := c.Err(); err != nil {
		return 0, err
	}

	r.setState(StateIndexed)

	return 4 + c.Pos(), nil
}

func checkVersion(v uint32) error {
	if v&exrx.VersionMask != exrx.Version {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, v&exrx.VersionMask)
	}

	if v&^uint32(exrx.VersionMask|exrx.KnownFlags) != 0 {
		return fmt.Errorf("%w: unknown flags %#x", ErrUnsupportedVersion, v&^uint32(exrx.VersionMask|exrx.KnownFlags))
	}

	if v&exrx.FlagNonImage != 0 {
		return fmt.Errorf("%w: deep data", ErrUnsupportedVersion)
	}

	if v&exrx.FlagMultiPart != 0 && v&exrx.FlagTiled != 0 {
		return fmt.Errorf("%w: tiled flag on a multi-part file", ErrUnsupportedVersion)
	}

	return nil
}

func (r *Reader) checkHeader(h *Header, multi bool, names map[string]bool) error {
	if err := h.Validate(); err != nil {
		return err
	}

	if !multi {
		tiledFlag := r.version&exrx.FlagTiled != 0

		switch {
		case tiledFlag && !h.IsTiled():
			if _, ok := h.Get(AttrTiles); !ok {
				return fmt.Errorf("%w: %s", ErrMissingRequiredAttribute, AttrTiles)
			}

			return fmt.Errorf("%w: type %q in a tiled file", ErrInvalidAttributeValue, h.Type())
		case !tiledFlag && h.IsTiled():
			return fmt.Errorf("%w: tiled header in a scanline file", ErrInvalidAttributeValue)
		}

		return nil
	}

	for _, name := range []string{AttrName, AttrType, AttrChunkCount} {
		if _, ok := h.Get(name); !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredAttribute, name)
		}
	}

	if names[h.Name()] {
		return fmt.Errorf("%w: duplicate part name %q", ErrInvalidAttributeValue, h.Name())
	}

	names[h.Name()] = true

	return nil
}

// checkOffsets looks for missing or misplaced offsets and rebuilds the tables when
// ReconstructOffsets is set.
func (r *Reader) checkOffsets(tablesEnd int) {
	damaged := false

	for _, p := range r.parts {
		if !p.offsetsValid(uint64(tablesEnd)) {
			damaged = true
			break
		}
	}

	if !damaged {
		return
	}

	if !r.opts.ReconstructOffsets {
		r.log.Warn("offset table is incomplete")
		return
	}

	found := r.reconstructOffsets(uint64(tablesEnd))
	r.log.Warn("offset table rebuilt", "chunks", found)
}

func (p *Part) offsetsValid(tablesEnd uint64) bool {
	var prev uint64

	ordered := p.layout.LineOrder() != RandomY

	for _, i := range p.layout.WriteOrder() {
		off := p.offsets[i]
		if off < tablesEnd {
			return false
		}

		if ordered && off <= prev {
			return false
		}

		prev = off
	}

	return true
}

// reconstructOffsets walks chunk headers sequentially from the end of the tables and
// records where each chunk starts. It stops at the first unreadable header.
func (r *Reader) reconstructOffsets(pos uint64) int {
	for _, p := range r.parts {
		clear(p.offsets)
	}

	multi := r.IsMultiPart()
	found := 0

	for {
		p := r.parts[0]
		head := make([]byte, 4)

		if multi {
			if r.readAt(head, pos) != nil {
				return found
			}

			pn := int(int32(exrx.NewCursor(head).Uint32()))
			if pn < 0 || pn >= len(r.parts) {
				return found
			}

			p = r.parts[pn]
		}

		at := pos + uint64(p.prefixLen())

		head = make([]byte, p.chunkHeaderLen()-p.prefixLen())
		if r.readAt(head, at) != nil {
			return found
		}

		c := exrx.NewCursor(head)

		idx, err := p.indexFromHeader(c)
		if err != nil {
			return found
		}

		size := c.Int32()
		if size < 0 || p.offsets[idx] != 0 {
			return found
		}

		p.offsets[idx] = pos
		found++
		pos += uint64(p.chunkHeaderLen()) + uint64(size)
	}
}

// readAt fills buf from off. A short read is reported as ErrCorruptChunk.
func (r *Reader) readAt(buf []byte, off uint64) error {
	if off > 1<<63-1 {
		return fmt.Errorf("%w: offset %d", ErrCorruptChunk, off)
	}

	n, err := r.src.ReadAt(buf, int64(off))
	if n == len(buf) {
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrCorruptChunk, io.ErrUnexpectedEOF)
	}

	return ioError(err)
}

// Index returns the position of the part in the file.
func (p *Part) Index() int { return p.index }

// Header returns a copy of the part header.
func (p *Part) Header() *Header { return p.header.Clone() }

// Layout returns the chunk layout.
func (p *Part) Layout() *Layout { return p.layout }

// ChunkCount returns the number of chunks.
func (p *Part) ChunkCount() int { return p.layout.ChunkCount() }

// Offsets returns a copy of the offset table.
func (p *Part) Offsets() []uint64 { return append([]uint64(nil), p.offsets...) }

func (p *Part) prefixLen() int {
	if p.r.IsMultiPart() {
		return 4
	}

	return 0
}

func (p *Part) chunkHeaderLen() int {
	if p.layout.Tiled() {
		return p.prefixLen() + 20
	}

	return p.prefixLen() + 8
}

// indexFromHeader decodes the coordinates of a chunk header into a chunk index.
func (p *Part) indexFromHeader(c *exrx.Cursor) (int, error) {
	if p.layout.Tiled() {
		tc := TileCoord{X: int(c.Int32()), Y: int(c.Int32()), LevelX: int(c.Int32()), LevelY: int(c.Int32())}
		if err := c.Err(); err != nil {
			return 0, err
		}

		return p.layout.TileChunkIndex(tc)
	}

	y := int(c.Int32())
	if err := c.Err(); err != nil {
		return 0, err
	}

	i, err := p.layout.ScanlineChunkIndex(y)
	if err != nil {
		return 0, err
	}

	if p.layout.ScanlineChunkBox(i).Min.Y != int32(y) {
		return 0, fmt.Errorf("%w: line %d does not start a chunk", ErrOutOfRange, y)
	}

	return i, nil
}

// ReadRawChunk reads chunk i without decompressing it. The chunk header must name the
// chunk the offset table points to.
func (p *Part) ReadRawChunk(i int) (*RawChunk, error) {
	if i < 0 || i >= len(p.offsets) {
		return nil, fmt.Errorf("%w: chunk %d of %d", ErrOutOfRange, i, len(p.offsets))
	}

	off := p.offsets[i]
	if off == 0 {
		return nil, fmt.Errorf("%w: chunk %d has no offset", ErrCorruptChunk, i)
	}

	head := make([]byte, p.chunkHeaderLen())
	if err := p.r.readAt(head, off); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}

	c := exrx.NewCursor(head)

	if p.r.IsMultiPart() {
		if pn := int(c.Int32()); pn != p.index {
			return nil, fmt.Errorf("%w: chunk %d belongs to part %d", ErrCorruptChunk, i, pn)
		}
	}

	idx, err := p.indexFromHeader(c)
	if err != nil || idx != i {
		return nil, fmt.Errorf("%w: chunk %d header names another chunk", ErrCorruptChunk, i)
	}

	box, err := p.layout.ChunkBox(i)
	if err != nil {
		return nil, err
	}

	raw := &RawChunk{
		Index:        i,
		Offset:       off,
		Box:          box,
		UnpackedSize: p.layout.ChunkUnpackedSize(box),
	}

	if p.layout.Tiled() {
		raw.Tile, _ = p.layout.TileCoordOf(i)
	}

	size := int(c.Int32())
	if size < 0 || size > raw.UnpackedSize {
		return nil, fmt.Errorf("%w: chunk %d declares %d bytes, at most %d expected",
			ErrCorruptChunk, i, size, raw.UnpackedSize)
	}

	raw.Packed = make([]byte, size)
	if err := p.r.readAt(raw.Packed, off+uint64(len(head))); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}

	return raw, nil
}

// ReadChunk reads and decompresses chunk i.
func (p *Part) ReadChunk(i int) (*Chunk, error) {
	raw, err := p.ReadRawChunk(i)
	if err != nil {
		return nil, err
	}

	data, err := Decompress(p.layout.Compression(), raw.Packed, raw.UnpackedSize, p.layout.ChannelLayout(raw.Box))
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}

	p.r.state.CompareAndSwap(int32(StateIndexed), int32(StateReady))

	return &Chunk{Index: i, Box: raw.Box, Tile: raw.Tile, Data: data}, nil
}

// ReadScanlineChunk reads the chunk holding line y.
func (p *Part) ReadScanlineChunk(y int) (*Chunk, error) {
	i, err := p.layout.ScanlineChunkIndex(y)
	if err != nil {
		return nil, err
	}

	return p.ReadChunk(i)
}

// ReadTile reads one tile.
func (p *Part) ReadTile(tc TileCoord) (*Chunk, error) {
	i, err := p.layout.TileChunkIndex(tc)
	if err != nil {
		return nil, err
	}

	return p.ReadChunk(i)
}

// ReadImage decodes the full resolution image.
func (p *Part) ReadImage() (*Image, error) {
	return p.ReadLevel(0, 0)
}

// ReadLevel decodes every chunk of level (lx, ly) in parallel into one image.
func (p *Part) ReadLevel(lx, ly int) (*Image, error) {
	indices, err := p.layout.LevelChunks(lx, ly)
	if err != nil {
		return nil, err
	}

	img := NewImage(p.layout.LevelBox(lx, ly), p.layout.Channels())
	errs := make([]error, len(indices))

	pool := workerpool.New(p.r.opts.Workers)
	defer pool.Close()

	pool.ParallelForAtomic(len(indices), func(k int) {
		ch, err := p.ReadChunk(indices[k])
		if err != nil {
			errs[k] = err
			return
		}

		errs[k] = img.copyChunk(p.layout.ChannelLayout(ch.Box), ch.Data, true)
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return img, nil
}
