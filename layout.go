package exr

import (
	"fmt"
	"math/bits"
)

// Layout maps the pixels of a part to chunks: how many there are, which pixels each one
// covers and in which order they are written.
type Layout struct {
	dataWindow  Box2i
	channels    ChannelList
	compression Compression
	lineOrder   LineOrder
	tiled       bool
	tiles       TileDescription

	linesPerChunk int
	numXLevels    int
	numYLevels    int
	numXTiles     []int
	numYTiles     []int
	levelBase     []int // first chunk index of each level, see levelIndex
	chunkCount    int
}

// NewLayout computes the chunk layout of a validated header.
func NewLayout(h *Header) (*Layout, error) {
	dw, err := h.DataWindow()
	if err != nil {
		return nil, err
	}

	chans, err := h.Channels()
	if err != nil {
		return nil, err
	}

	comp, err := h.Compression()
	if err != nil {
		return nil, err
	}

	lo, err := h.LineOrder()
	if err != nil {
		return nil, err
	}

	l := &Layout{
		dataWindow:    dw,
		channels:      chans.Sorted(),
		compression:   comp,
		lineOrder:     lo,
		linesPerChunk: comp.LinesPerChunk(),
	}

	if !h.IsTiled() {
		l.chunkCount = (dw.Height() + l.linesPerChunk - 1) / l.linesPerChunk
		return l, nil
	}

	td, err := h.Tiles()
	if err != nil {
		return nil, err
	}

	if td.XSize == 0 || td.YSize == 0 || td.XSize > 1<<30 || td.YSize > 1<<30 {
		return nil, fmt.Errorf("%w: tile size %dx%d", ErrInvalidAttributeValue, td.XSize, td.YSize)
	}

	l.tiled = true
	l.tiles = td
	l.numXLevels, l.numYLevels = numLevels(td, dw.Width(), dw.Height())

	l.numXTiles = make([]int, l.numXLevels)
	for lx := range l.numXTiles {
		l.numXTiles[lx] = ceilDiv(levelSize(dw.Width(), lx, td.Rounding), int(td.XSize))
	}

	l.numYTiles = make([]int, l.numYLevels)
	for ly := range l.numYTiles {
		l.numYTiles[ly] = ceilDiv(levelSize(dw.Height(), ly, td.Rounding), int(td.YSize))
	}

	if td.Mode == RipmapLevels {
		l.levelBase = make([]int, l.numXLevels*l.numYLevels)
		for ly := 0; ly < l.numYLevels; ly++ {
			for lx := 0; lx < l.numXLevels; lx++ {
				l.levelBase[ly*l.numXLevels+lx] = l.chunkCount
				l.chunkCount += l.numXTiles[lx] * l.numYTiles[ly]
			}
		}
	} else {
		l.levelBase = make([]int, l.numXLevels)
		for lv := 0; lv < l.numXLevels; lv++ {
			l.levelBase[lv] = l.chunkCount
			l.chunkCount += l.numXTiles[lv] * l.numYTiles[lv]
		}
	}

	return l, nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func floorLog2(x int) int { return bits.Len(uint(x)) - 1 }

func ceilLog2(x int) int {
	if x <= 1 {
		return 0
	}

	return bits.Len(uint(x - 1))
}

func roundLog2(x int, r LevelRounding) int {
	if r == RoundUp {
		return ceilLog2(x)
	}

	return floorLog2(x)
}

func numLevels(td TileDescription, w, h int) (nx, ny int) {
	switch td.Mode {
	case MipmapLevels:
		n := roundLog2(max(w, h), td.Rounding) + 1
		return n, n
	case RipmapLevels:
		return roundLog2(w, td.Rounding) + 1, roundLog2(h, td.Rounding) + 1
	}

	return 1, 1
}

// levelSize is the pixel count of level l along one axis, never less than one.
func levelSize(size, l int, r LevelRounding) int {
	b := 1 << uint(l)
	s := size / b

	if r == RoundUp && s*b < size {
		s++
	}

	return max(s, 1)
}

// DataWindow returns the data window the layout was built for.
func (l *Layout) DataWindow() Box2i { return l.dataWindow }

// Channels returns the channel list in wire order.
func (l *Layout) Channels() ChannelList { return l.channels }

// Compression returns the part compression.
func (l *Layout) Compression() Compression { return l.compression }

// LineOrder returns the part line order.
func (l *Layout) LineOrder() LineOrder { return l.lineOrder }

// Tiled reports whether the part is tiled.
func (l *Layout) Tiled() bool { return l.tiled }

// TileDescription returns the tile description of a tiled part.
func (l *Layout) TileDescription() TileDescription { return l.tiles }

// ChunkCount returns the number of chunks and offset table entries.
func (l *Layout) ChunkCount() int { return l.chunkCount }

// LinesPerChunk returns the scanlines per chunk of a scanline part.
func (l *Layout) LinesPerChunk() int { return l.linesPerChunk }

// ScanlineChunkIndex returns the chunk holding line y.
func (l *Layout) ScanlineChunkIndex(y int) (int, error) {
	if l.tiled {
		return 0, fmt.Errorf("%w: scanline access to a tiled part", ErrOutOfRange)
	}

	if y < int(l.dataWindow.Min.Y) || y > int(l.dataWindow.Max.Y) {
		return 0, fmt.Errorf("%w: line %d outside %s", ErrOutOfRange, y, l.dataWindow)
	}

	return (y - int(l.dataWindow.Min.Y)) / l.linesPerChunk, nil
}

// ScanlineChunkBox returns the pixels of scanline chunk i, clipped to the data window.
func (l *Layout) ScanlineChunkBox(i int) Box2i {
	b := l.dataWindow
	b.Min.Y = l.dataWindow.Min.Y + int32(i*l.linesPerChunk)
	b.Max.Y = min(b.Min.Y+int32(l.linesPerChunk)-1, l.dataWindow.Max.Y)

	return b
}

// NumXLevels returns the number of horizontal resolution levels.
func (l *Layout) NumXLevels() int {
	if !l.tiled {
		return 1
	}

	return l.numXLevels
}

// NumYLevels returns the number of vertical resolution levels.
func (l *Layout) NumYLevels() int {
	if !l.tiled {
		return 1
	}

	return l.numYLevels
}

// LevelWidth returns the width in pixels of horizontal level lx.
func (l *Layout) LevelWidth(lx int) int {
	if !l.tiled {
		return l.dataWindow.Width()
	}

	return levelSize(l.dataWindow.Width(), lx, l.tiles.Rounding)
}

// LevelHeight returns the height in pixels of vertical level ly.
func (l *Layout) LevelHeight(ly int) int {
	if !l.tiled {
		return l.dataWindow.Height()
	}

	return levelSize(l.dataWindow.Height(), ly, l.tiles.Rounding)
}

// NumXTiles returns the number of tile columns of level lx.
func (l *Layout) NumXTiles(lx int) int {
	if !l.tiled || lx < 0 || lx >= l.numXLevels {
		return 0
	}

	return l.numXTiles[lx]
}

// NumYTiles returns the number of tile rows of level ly.
func (l *Layout) NumYTiles(ly int) int {
	if !l.tiled || ly < 0 || ly >= l.numYLevels {
		return 0
	}

	return l.numYTiles[ly]
}

// LevelBox returns the pixels of level (lx, ly), anchored at the data window origin.
func (l *Layout) LevelBox(lx, ly int) Box2i {
	b := l.dataWindow
	b.Max.X = b.Min.X + int32(l.LevelWidth(lx)) - 1
	b.Max.Y = b.Min.Y + int32(l.LevelHeight(ly)) - 1

	return b
}

// Levels returns every valid (lx, ly) pair in chunk order.
func (l *Layout) Levels() [][2]int {
	if !l.tiled {
		return [][2]int{{0, 0}}
	}

	var levels [][2]int

	if l.tiles.Mode == RipmapLevels {
		for ly := 0; ly < l.numYLevels; ly++ {
			for lx := 0; lx < l.numXLevels; lx++ {
				levels = append(levels, [2]int{lx, ly})
			}
		}

		return levels
	}

	for lv := 0; lv < l.numXLevels; lv++ {
		levels = append(levels, [2]int{lv, lv})
	}

	return levels
}

func (l *Layout) levelIndex(lx, ly int) (int, bool) {
	if lx < 0 || ly < 0 || lx >= l.numXLevels || ly >= l.numYLevels {
		return 0, false
	}

	if l.tiles.Mode == RipmapLevels {
		return ly*l.numXLevels + lx, true
	}

	if lx != ly {
		return 0, false
	}

	return lx, true
}

// TileChunkIndex returns the chunk index of a tile.
func (l *Layout) TileChunkIndex(tc TileCoord) (int, error) {
	if !l.tiled {
		return 0, fmt.Errorf("%w: tile access to a scanline part", ErrOutOfRange)
	}

	li, ok := l.levelIndex(tc.LevelX, tc.LevelY)
	if !ok {
		return 0, fmt.Errorf("%w: level (%d,%d)", ErrOutOfRange, tc.LevelX, tc.LevelY)
	}

	nx := l.numXTiles[tc.LevelX]
	ny := l.numYTiles[tc.LevelY]

	if tc.X < 0 || tc.Y < 0 || tc.X >= nx || tc.Y >= ny {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, tc)
	}

	return l.levelBase[li] + tc.Y*nx + tc.X, nil
}

// TileCoordOf is the inverse of TileChunkIndex.
func (l *Layout) TileCoordOf(i int) (TileCoord, error) {
	if !l.tiled || i < 0 || i >= l.chunkCount {
		return TileCoord{}, fmt.Errorf("%w: chunk %d", ErrOutOfRange, i)
	}

	for _, lv := range l.Levels() {
		li, _ := l.levelIndex(lv[0], lv[1])
		nx := l.numXTiles[lv[0]]
		n := nx * l.numYTiles[lv[1]]
		base := l.levelBase[li]

		if i >= base && i < base+n {
			return TileCoord{X: (i - base) % nx, Y: (i - base) / nx, LevelX: lv[0], LevelY: lv[1]}, nil
		}
	}

	return TileCoord{}, fmt.Errorf("%w: chunk %d", ErrOutOfRange, i)
}

// TileBox returns the pixels of a tile, clipped to its level.
func (l *Layout) TileBox(tc TileCoord) Box2i {
	level := l.LevelBox(tc.LevelX, tc.LevelY)

	b := Box2i{
		Min: V2i{
			X: level.Min.X + int32(tc.X)*int32(l.tiles.XSize),
			Y: level.Min.Y + int32(tc.Y)*int32(l.tiles.YSize),
		},
	}
	b.Max.X = min(b.Min.X+int32(l.tiles.XSize)-1, level.Max.X)
	b.Max.Y = min(b.Min.Y+int32(l.tiles.YSize)-1, level.Max.Y)

	return b
}

// ChunkBox returns the pixels covered by chunk i.
func (l *Layout) ChunkBox(i int) (Box2i, error) {
	if i < 0 || i >= l.chunkCount {
		return Box2i{}, fmt.Errorf("%w: chunk %d of %d", ErrOutOfRange, i, l.chunkCount)
	}

	if !l.tiled {
		return l.ScanlineChunkBox(i), nil
	}

	tc, err := l.TileCoordOf(i)
	if err != nil {
		return Box2i{}, err
	}

	return l.TileBox(tc), nil
}

// ChannelLayout returns the codec view of the pixels in box.
func (l *Layout) ChannelLayout(box Box2i) ChannelLayout {
	return ChannelLayout{Channels: l.channels, Box: box}
}

// ChunkUnpackedSize returns the uncompressed byte size of the pixels in box, counting
// only the samples present under each channel's sampling rates.
func (l *Layout) ChunkUnpackedSize(box Box2i) int {
	return l.ChannelLayout(box).UnpackedSize()
}

// WriteOrder returns the chunk indices in the order they are stored. Increasing and
// random line orders store ascending indices, decreasing_y stores chunk rows bottom to
// top, level by level.
func (l *Layout) WriteOrder() []int {
	order := make([]int, 0, l.chunkCount)

	if l.lineOrder != DecreasingY {
		for i := 0; i < l.chunkCount; i++ {
			order = append(order, i)
		}

		return order
	}

	if !l.tiled {
		for i := l.chunkCount - 1; i >= 0; i-- {
			order = append(order, i)
		}

		return order
	}

	for _, lv := range l.Levels() {
		li, _ := l.levelIndex(lv[0], lv[1])
		nx := l.numXTiles[lv[0]]

		for ty := l.numYTiles[lv[1]] - 1; ty >= 0; ty-- {
			for tx := 0; tx < nx; tx++ {
				order = append(order, l.levelBase[li]+ty*nx+tx)
			}
		}
	}

	return order
}

// LevelChunks returns the chunk indices of level (lx, ly) in ascending order. A scanline
// part has a single level holding every chunk.
func (l *Layout) LevelChunks(lx, ly int) ([]int, error) {
	if !l.tiled {
		if lx != 0 || ly != 0 {
			return nil, fmt.Errorf("%w: level (%d,%d) of a scanline part", ErrOutOfRange, lx, ly)
		}

		idx := make([]int, l.chunkCount)
		for i := range idx {
			idx[i] = i
		}

		return idx, nil
	}

	li, ok := l.levelIndex(lx, ly)
	if !ok {
		return nil, fmt.Errorf("%w: level (%d,%d)", ErrOutOfRange, lx, ly)
	}

	n := l.numXTiles[lx] * l.numYTiles[ly]
	idx := make([]int, n)

	for i := range idx {
		idx[i] = l.levelBase[li] + i
	}

	return idx, nil
}
