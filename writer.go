package exr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/vearutop/exr/internal/exrx"
)

// ErrFinalized is returned when data is submitted after a successful Finalize.
var ErrFinalized = errors.New("writer is finalized")

// WriteOptions configures NewWriter.
type WriteOptions struct {
	// Logger receives debug messages, discarded when nil.
	Logger *slog.Logger

	// Workers is the number of goroutines WriteImage compresses with, GOMAXPROCS when zero.
	Workers int

	// Preview adds a preview attribute to the first part, made from the image passed
	// to WriteImage.
	Preview bool

	// PreviewSize is the longest preview edge in pixels.
	PreviewSize int
}

// Writer assembles an OpenEXR file. Chunks are compressed as soon as they are complete
// and written, with their offset tables, by Finalize.
type Writer struct {
	sink      io.WriteSeeker
	opts      WriteOptions
	log       *slog.Logger
	parts     []*PartWriter
	multi     bool
	finalized bool
}

// PartWriter accepts the pixels of one part.
type PartWriter struct {
	w       *Writer
	index   int
	header  *Header
	layout  *Layout
	preview *Preview

	chunks   [][]byte // compressed payloads by chunk index, nil until submitted
	order    []int
	position []int // chunk index to position in order
	next     int   // position in order of the next chunk for ordered line orders

	// Scanline assembly.
	blocks  map[int]*lineBlock
	rowDone []bool
	nextRow int
}

type lineBlock struct {
	raw    []byte
	filled int
}

// NewWriter validates the headers and prepares a writer. One header makes a single-part
// file, several make a multi-part file with name, type and chunkCount filled in.
// Headers are copied, later changes by the caller have no effect.
func NewWriter(sink io.WriteSeeker, headers []*Header, options ...func(o *WriteOptions)) (*Writer, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no headers", ErrMissingRequiredAttribute)
	}

	w := &Writer{sink: sink, multi: len(headers) > 1}
	w.opts.PreviewSize = defaultPreviewSize

	for _, option := range options {
		option(&w.opts)
	}

	w.log = w.opts.Logger
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}

	names := make(map[string]bool, len(headers))

	for i, src := range headers {
		h := src.Clone()

		if w.multi {
			if _, ok := h.Get(AttrName); !ok {
				h.Set(AttrName, String(fmt.Sprintf("part%d", i)))
			}

			partType := exrx.PartScanline
			if h.IsTiled() {
				partType = exrx.PartTiled
			}

			h.Set(AttrType, String(partType))
		}

		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}

		if w.multi {
			if names[h.Name()] {
				return nil, fmt.Errorf("part %d: %w: duplicate part name %q", i, ErrInvalidAttributeValue, h.Name())
			}

			names[h.Name()] = true
		}

		layout, err := NewLayout(h)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}

		if !layout.Compression().Supported() {
			return nil, fmt.Errorf("part %d: %w: %s", i, ErrUnsupportedCompression, layout.Compression())
		}

		if w.multi {
			h.Set(AttrChunkCount, Int(layout.ChunkCount()))
		}

		w.parts = append(w.parts, newPartWriter(w, i, h, layout))
	}

	return w, nil
}

func newPartWriter(w *Writer, index int, h *Header, layout *Layout) *PartWriter {
	pw := &PartWriter{
		w:        w,
		index:    index,
		header:   h,
		layout:   layout,
		chunks:   make([][]byte, layout.ChunkCount()),
		order:    layout.WriteOrder(),
		position: make([]int, layout.ChunkCount()),
	}

	for pos, i := range pw.order {
		pw.position[i] = pos
	}

	if layout.Tiled() {
		return pw
	}

	dw := layout.DataWindow()
	cl := layout.ChannelLayout(dw)

	pw.blocks = make(map[int]*lineBlock)
	pw.rowDone = make([]bool, dw.Height())

	for r := range pw.rowDone {
		pw.rowDone[r] = cl.LineSize(int(dw.Min.Y)+r) == 0
	}

	// Chunks without samples are complete from the start.
	for i := range pw.chunks {
		if layout.ChunkUnpackedSize(layout.ScanlineChunkBox(i)) == 0 {
			pw.chunks[i] = []byte{}
		}
	}

	if layout.LineOrder() == DecreasingY {
		pw.nextRow = int(dw.Max.Y)
	} else {
		pw.nextRow = int(dw.Min.Y)
	}

	pw.skipEmptyRows()

	return pw
}

// NumParts returns the number of parts.
func (w *Writer) NumParts() int { return len(w.parts) }

// Part returns the writer of part i.
func (w *Writer) Part(i int) (*PartWriter, error) {
	if i < 0 || i >= len(w.parts) {
		return nil, fmt.Errorf("%w: part %d of %d", ErrOutOfRange, i, len(w.parts))
	}

	return w.parts[i], nil
}

// WriteScanlines submits lines to the first part, see PartWriter.WriteScanlines.
func (w *Writer) WriteScanlines(y int, data []byte) error { return w.parts[0].WriteScanlines(y, data) }

// WriteTile submits a tile to the first part.
func (w *Writer) WriteTile(tc TileCoord, data []byte) error { return w.parts[0].WriteTile(tc, data) }

// WriteImage submits the full resolution image of the first part.
func (w *Writer) WriteImage(img *Image) error { return w.parts[0].WriteImage(img) }

// WriteLevel submits one resolution level of the first part.
func (w *Writer) WriteLevel(lx, ly int, img *Image) error { return w.parts[0].WriteLevel(lx, ly, img) }

// Header returns a copy of the header the part is written with.
func (pw *PartWriter) Header() *Header { return pw.header.Clone() }

// Layout returns the chunk layout of the part.
func (pw *PartWriter) Layout() *Layout { return pw.layout }

func (pw *PartWriter) skipEmptyRows() {
	dw := pw.layout.DataWindow()
	step := 1

	if pw.layout.LineOrder() == DecreasingY {
		step = -1
	}

	for pw.nextRow >= int(dw.Min.Y) && pw.nextRow <= int(dw.Max.Y) && pw.rowDone[pw.nextRow-int(dw.Min.Y)] {
		pw.nextRow += step
	}
}

// WriteScanlines submits one or more whole lines starting at line y, in wire layout:
// each line holds the samples of every channel sampled on it, in name order.
// Under increasing_y lines must arrive top to bottom, under decreasing_y bottom to top
// (each call still lists its own lines top to bottom). Under random_y any order is
// accepted. Lines already written are rejected in every order.
func (pw *PartWriter) WriteScanlines(y int, data []byte) error {
	if pw.w.finalized {
		return ErrFinalized
	}

	if pw.layout.Tiled() {
		return fmt.Errorf("part %d: %w: scanlines written to a tiled part", pw.index, ErrOutOfRange)
	}

	dw := pw.layout.DataWindow()
	cl := pw.layout.ChannelLayout(dw)

	if y < int(dw.Min.Y) || y > int(dw.Max.Y) {
		return fmt.Errorf("%w: line %d outside %s", ErrOutOfRange, y, dw)
	}

	if len(data) == 0 {
		return fmt.Errorf("line %d: no data", y)
	}

	last := y
	for pos := 0; ; last++ {
		if last > int(dw.Max.Y) {
			return fmt.Errorf("%w: %d bytes run past line %d", ErrOutOfRange, len(data), dw.Max.Y)
		}

		pos += cl.LineSize(last)
		if pos == len(data) {
			break
		}

		if pos > len(data) {
			return fmt.Errorf("line %d: %d bytes do not end on a line boundary", last, len(data))
		}
	}

	// Lines without samples (subsampled channels) carry no data and do not count
	// towards the order.
	first, final := -1, -1

	for row := y; row <= last; row++ {
		if cl.LineSize(row) == 0 {
			continue
		}

		if pw.rowDone[row-int(dw.Min.Y)] {
			return fmt.Errorf("%w: line %d already written", ErrOutOfOrderWrite, row)
		}

		if first < 0 {
			first = row
		}

		final = row
	}

	switch pw.layout.LineOrder() {
	case IncreasingY:
		if first != pw.nextRow {
			return fmt.Errorf("%w: line %d, expected %d", ErrOutOfOrderWrite, first, pw.nextRow)
		}
	case DecreasingY:
		if final != pw.nextRow {
			return fmt.Errorf("%w: lines %d..%d, expected to end at %d", ErrOutOfOrderWrite, first, final, pw.nextRow)
		}
	}

	pos := 0

	for row := y; row <= last; row++ {
		n := cl.LineSize(row)
		if n == 0 {
			continue
		}

		if err := pw.addLine(row, data[pos:pos+n]); err != nil {
			return err
		}

		pos += n
	}

	switch pw.layout.LineOrder() {
	case IncreasingY:
		pw.nextRow = last + 1
	case DecreasingY:
		pw.nextRow = y - 1
	}

	pw.skipEmptyRows()

	return nil
}

func (pw *PartWriter) addLine(y int, line []byte) error {
	dw := pw.layout.DataWindow()
	i := (y - int(dw.Min.Y)) / pw.layout.LinesPerChunk()
	box := pw.layout.ScanlineChunkBox(i)
	cl := pw.layout.ChannelLayout(box)

	b := pw.blocks[i]
	if b == nil {
		b = &lineBlock{raw: make([]byte, cl.UnpackedSize())}
		pw.blocks[i] = b
	}

	off := 0
	for row := int(box.Min.Y); row < y; row++ {
		off += cl.LineSize(row)
	}

	copy(b.raw[off:], line)
	b.filled += len(line)
	pw.rowDone[y-int(dw.Min.Y)] = true

	if b.filled < len(b.raw) {
		return nil
	}

	delete(pw.blocks, i)

	payload, err := Compress(pw.layout.Compression(), b.raw, cl)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", i, err)
	}

	pw.chunks[i] = payload

	return nil
}

// checkOrder verifies that chunks may be submitted next, in the given sequence.
func (pw *PartWriter) checkOrder(indices []int) error {
	for _, i := range indices {
		if pw.chunks[i] != nil {
			return fmt.Errorf("%w: chunk %d already written", ErrOutOfOrderWrite, i)
		}
	}

	if pw.layout.LineOrder() == RandomY {
		return nil
	}

	for k, i := range indices {
		if pw.position[i] != pw.next+k {
			return fmt.Errorf("%w: chunk %d, expected %d", ErrOutOfOrderWrite, i, pw.order[min(pw.next+k, len(pw.order)-1)])
		}
	}

	return nil
}

// WriteTile submits one tile in wire layout.
func (pw *PartWriter) WriteTile(tc TileCoord, data []byte) error {
	if pw.w.finalized {
		return ErrFinalized
	}

	i, err := pw.layout.TileChunkIndex(tc)
	if err != nil {
		return err
	}

	box := pw.layout.TileBox(tc)
	cl := pw.layout.ChannelLayout(box)

	if len(data) != cl.UnpackedSize() {
		return fmt.Errorf("%s: %d bytes, want %d", tc, len(data), cl.UnpackedSize())
	}

	if err := pw.checkOrder([]int{i}); err != nil {
		return err
	}

	payload, err := Compress(pw.layout.Compression(), data, cl)
	if err != nil {
		return fmt.Errorf("%s: %w", tc, err)
	}

	pw.chunks[i] = payload
	pw.next++

	return nil
}

// WriteImage submits the full resolution image. For scanline parts nothing may have
// been written before.
func (pw *PartWriter) WriteImage(img *Image) error {
	return pw.WriteLevel(0, 0, img)
}

// WriteLevel submits every chunk of level (lx, ly), compressing them in parallel. The
// image must cover the level box.
func (pw *PartWriter) WriteLevel(lx, ly int, img *Image) error {
	if pw.w.finalized {
		return ErrFinalized
	}

	indices, err := pw.layout.LevelChunks(lx, ly)
	if err != nil {
		return err
	}

	if pw.layout.Tiled() {
		if pw.layout.LineOrder() == DecreasingY {
			// Rows of a level are stored bottom to top.
			first := pw.position[indices[0]]
			for _, i := range indices {
				first = min(first, pw.position[i])
			}

			indices = pw.order[first : first+len(indices)]
		}

		if err := pw.checkOrder(indices); err != nil {
			return err
		}
	} else {
		for r, done := range pw.rowDone {
			if done && pw.layout.ChannelLayout(pw.layout.DataWindow()).LineSize(int(pw.layout.DataWindow().Min.Y)+r) > 0 {
				return fmt.Errorf("%w: lines were already written", ErrOutOfOrderWrite)
			}
		}
	}

	payloads := make([][]byte, len(indices))
	errs := make([]error, len(indices))

	pool := workerpool.New(pw.w.opts.Workers)
	defer pool.Close()

	pool.ParallelForAtomic(len(indices), func(k int) {
		box, err := pw.layout.ChunkBox(indices[k])
		if err != nil {
			errs[k] = err
			return
		}

		cl := pw.layout.ChannelLayout(box)

		raw, err := img.extract(cl)
		if err != nil {
			errs[k] = fmt.Errorf("chunk %d: %w", indices[k], err)
			return
		}

		payloads[k], errs[k] = Compress(pw.layout.Compression(), raw, cl)
	})

	if err := errors.Join(errs...); err != nil {
		return err
	}

	if pw.w.opts.Preview && pw.index == 0 && lx == 0 && ly == 0 {
		p, err := MakePreview(img, func(o *PreviewOptions) {
			o.MaxSize = pw.w.opts.PreviewSize
			o.Chromaticities = pw.header.Chromaticities()
		})
		if err != nil {
			return err
		}

		pw.preview = &p
	}

	for k, i := range indices {
		pw.chunks[i] = payloads[k]
	}

	if pw.layout.Tiled() {
		if pw.layout.LineOrder() != RandomY {
			pw.next += len(indices)
		}
	} else {
		clear(pw.blocks)

		for r := range pw.rowDone {
			pw.rowDone[r] = true
		}

		pw.nextRow = int(pw.layout.DataWindow().Max.Y) + 1
	}

	pw.w.log.Debug("level compressed", "part", pw.index, "level", [2]int{lx, ly}, "chunks", len(indices))

	return nil
}

// missing returns the first chunk not yet submitted, or -1.
func (pw *PartWriter) missing() int {
	for _, i := range pw.order {
		if pw.chunks[i] == nil {
			return i
		}
	}

	return -1
}

func (pw *PartWriter) headerForFile() *Header {
	if pw.preview == nil {
		return pw.header
	}

	h := pw.header.Clone()
	h.Set(AttrPreview, *pw.preview)

	return h
}

// Finalize writes headers, offset tables and chunks to the sink. If a line or tile is
// missing it fails with ErrIncompleteCoverage and nothing is written, so the rest can be
// submitted and Finalize called again.
//
// Offsets in the tables count from the sink position at the time of the call, so a file
// embedded after other data reads back through an io.SectionReader starting there.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}

	for _, pw := range w.parts {
		if i := pw.missing(); i >= 0 {
			box, _ := pw.layout.ChunkBox(i)
			return fmt.Errorf("%w: part %d chunk %d %s", ErrIncompleteCoverage, pw.index, i, box)
		}
	}

	headers := make([]*Header, len(w.parts))
	for i, pw := range w.parts {
		headers[i] = pw.headerForFile()
	}

	version := uint32(exrx.Version)

	switch {
	case w.multi:
		version |= exrx.FlagMultiPart
	case w.parts[0].layout.Tiled():
		version |= exrx.FlagTiled
	}

	for _, h := range headers {
		if h.needsLongNames() {
			version |= exrx.FlagLongNames
		}
	}

	head := append([]byte(nil), exrx.MagicBytes[:]...)
	head = exrx.AppendUint32(head, version)

	for _, h := range headers {
		head = appendHeader(head, h)
	}

	if w.multi {
		head = append(head, 0)
	}

	start, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return ioError(err)
	}

	tablesLen := 0
	for _, pw := range w.parts {
		tablesLen += 8 * pw.layout.ChunkCount()
	}

	if err := w.write(append(head, make([]byte, tablesLen)...)); err != nil {
		return err
	}

	pos := uint64(len(head) + tablesLen)
	tables := make([]byte, 0, tablesLen)

	for _, pw := range w.parts {
		offsets := make([]uint64, pw.layout.ChunkCount())

		for _, i := range pw.order {
			offsets[i] = pos

			chunk, err := pw.chunkHeader(i)
			if err != nil {
				return err
			}

			chunk = exrx.AppendInt32(chunk, int32(len(pw.chunks[i])))
			chunk = append(chunk, pw.chunks[i]...)

			if err := w.write(chunk); err != nil {
				return err
			}

			pos += uint64(len(chunk))
		}

		for _, off := range offsets {
			tables = exrx.AppendUint64(tables, off)
		}
	}

	if _, err := w.sink.Seek(start+int64(len(head)), io.SeekStart); err != nil {
		return ioError(err)
	}

	if err := w.write(tables); err != nil {
		return err
	}

	if _, err := w.sink.Seek(start+int64(pos), io.SeekStart); err != nil {
		return ioError(err)
	}

	w.finalized = true
	w.log.Debug("finalized", "parts", len(w.parts), "bytes", pos)

	return nil
}

func (pw *PartWriter) chunkHeader(i int) ([]byte, error) {
	var b []byte

	if pw.w.multi {
		b = exrx.AppendInt32(b, int32(pw.index))
	}

	if !pw.layout.Tiled() {
		return exrx.AppendInt32(b, pw.layout.ScanlineChunkBox(i).Min.Y), nil
	}

	tc, err := pw.layout.TileCoordOf(i)
	if err != nil {
		return nil, err
	}

	for _, v := range [4]int{tc.X, tc.Y, tc.LevelX, tc.LevelY} {
		b = exrx.AppendInt32(b, int32(v))
	}

	return b, nil
}

func (w *Writer) write(b []byte) error {
	if _, err := w.sink.Write(b); err != nil {
		return ioError(err)
	}

	return nil
}
