package exr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dw := NewBox2i(-3, 2, 60, 40)

	for _, c := range supportedCompressions {
		for _, lo := range []LineOrder{IncreasingY, DecreasingY, RandomY} {
			h := NewHeader(dw, testChannels(), c)
			h.Set(AttrLineOrder, lo)

			img := newTestImage(dw, testChannels(), uint64(c)+1)
			data := writeImageFile(t, h, img)

			got := readImageFile(t, data)
			samePixels(t, img, got)
		}
	}
}

func TestFourByFourNone(t *testing.T) {
	dw := NewBox2i(0, 0, 3, 3)
	h := NewHeader(dw, ChannelList{NewChannel("Y", PixelHalf)}, CompressionNone)
	img := newTestImage(dw, ChannelList{NewChannel("Y", PixelHalf)}, 1)

	data := writeImageFile(t, h, img)

	head, _ := h.MarshalBinary()
	tablesEnd := 8 + len(head) + 4*8

	if want := tablesEnd + 4*(4+4+8); len(data) != want {
		t.Fatalf("file size: want %d, got %d", want, len(data))
	}

	if !bytes.Equal(data[:4], []byte{0x76, 0x2f, 0x31, 0x01}) || data[4] != 2 || data[5] != 0 {
		t.Fatalf("magic and version: % x", data[:8])
	}

	p, err := openBytes(t, data).Part(0)
	if err != nil {
		t.Fatalf("part: %v", err)
	}

	if p.ChunkCount() != 4 {
		t.Fatalf("want 4 chunks, got %d", p.ChunkCount())
	}

	for i, off := range p.Offsets() {
		if want := uint64(tablesEnd + i*16); off != want {
			t.Fatalf("chunk %d: want offset %d, got %d", i, want, off)
		}

		raw, err := p.ReadRawChunk(i)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}

		if len(raw.Packed) != 8 || raw.UnpackedSize != 8 {
			t.Fatalf("chunk %d: %d packed, %d unpacked bytes", i, len(raw.Packed), raw.UnpackedSize)
		}

		if !bytes.Equal(raw.Packed, img.Planes[0].Pix[i*8:i*8+8]) {
			t.Fatalf("chunk %d: payload is not the raw line", i)
		}
	}
}

// writeLines submits every line of img in the given order, one call per line.
func writeLines(pw *PartWriter, img *Image, rows []int) error {
	dw := img.DataWindow

	for _, y := range rows {
		line, err := img.extract(pw.Layout().ChannelLayout(NewBox2i(int(dw.Min.X), y, int(dw.Max.X), y)))
		if err != nil {
			return err
		}

		if err := pw.WriteScanlines(y, line); err != nil {
			return err
		}
	}

	return nil
}

func rowRange(from, to int) []int {
	var rows []int

	step := 1
	if to < from {
		step = -1
	}

	for y := from; y != to+step; y += step {
		rows = append(rows, y)
	}

	return rows
}

func TestWriteScanlinesMatchesWriteImage(t *testing.T) {
	dw := NewBox2i(0, 0, 47, 70)

	for _, c := range supportedCompressions {
		for _, lo := range []LineOrder{IncreasingY, DecreasingY} {
			h := NewHeader(dw, testChannels(), c)
			h.Set(AttrLineOrder, lo)
			img := newTestImage(dw, testChannels(), 11)

			whole := writeImageFile(t, h, img)

			rows := rowRange(0, 70)
			if lo == DecreasingY {
				rows = rowRange(70, 0)
			}

			lines := writeFile(t, []*Header{h}, func(w *Writer) error {
				pw, _ := w.Part(0)
				return writeLines(pw, img, rows)
			})

			if xxhash.Sum64(whole) != xxhash.Sum64(lines) {
				t.Fatalf("%s/%s: line by line output differs from WriteImage", c, lo)
			}
		}
	}
}

func TestWriteScanlinesMultipleLines(t *testing.T) {
	dw := NewBox2i(0, 0, 15, 39)
	h := NewHeader(dw, testChannels(), CompressionPIZ)
	img := newTestImage(dw, testChannels(), 5)

	data := writeFile(t, []*Header{h}, func(w *Writer) error {
		pw, _ := w.Part(0)

		for y := 0; y < 40; y += 10 {
			block, err := img.extract(pw.Layout().ChannelLayout(NewBox2i(0, y, 15, y+9)))
			if err != nil {
				return err
			}

			if err := w.WriteScanlines(y, block); err != nil {
				return err
			}
		}

		return nil
	})

	samePixels(t, img, readImageFile(t, data))
}

func TestWriteSubsampled(t *testing.T) {
	dw := NewBox2i(-2, 2, 13, 11)
	chans := ChannelList{
		NewChannel("Y", PixelHalf),
		{Name: "RY", Type: PixelHalf, XSampling: 2, YSampling: 2},
		{Name: "BY", Type: PixelHalf, XSampling: 2, YSampling: 2},
	}

	for _, c := range supportedCompressions {
		h := NewHeader(dw, chans, c)
		img := newTestImage(dw, chans, 9)

		data := writeFile(t, []*Header{h}, func(w *Writer) error {
			pw, _ := w.Part(0)
			return writeLines(pw, img, rowRange(2, 11))
		})

		samePixels(t, img, readImageFile(t, data))
	}
}

func TestWriteOrderViolations(t *testing.T) {
	dw := NewBox2i(0, 0, 7, 3)
	img := newTestImage(dw, testChannels(), 2)

	line := func(pw *PartWriter, y int) []byte {
		b, _ := img.extract(pw.Layout().ChannelLayout(NewBox2i(0, y, 7, y)))
		return b
	}

	h := NewHeader(dw, testChannels(), CompressionNone)

	var buf MemBuffer

	w, err := NewWriter(&buf, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	pw, _ := w.Part(0)

	if err := pw.WriteScanlines(1, line(pw, 1)); !errors.Is(err, ErrOutOfOrderWrite) {
		t.Fatalf("increasing_y line 1 first: want ErrOutOfOrderWrite, got %v", err)
	}

	if err := pw.WriteScanlines(0, line(pw, 0)); err != nil {
		t.Fatalf("line 0: %v", err)
	}

	if err := pw.WriteScanlines(0, line(pw, 0)); !errors.Is(err, ErrOutOfOrderWrite) {
		t.Fatalf("line 0 again: want ErrOutOfOrderWrite, got %v", err)
	}

	if err := pw.WriteScanlines(1, line(pw, 1)[1:]); err == nil {
		t.Fatal("partial line accepted")
	}

	// random_y accepts any order but still rejects duplicates.
	h.Set(AttrLineOrder, RandomY)
	buf = MemBuffer{}

	w, err = NewWriter(&buf, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	pw, _ = w.Part(0)

	for _, y := range []int{3, 1, 0} {
		if err := pw.WriteScanlines(y, line(pw, y)); err != nil {
			t.Fatalf("random_y line %d: %v", y, err)
		}
	}

	if err := pw.WriteScanlines(1, line(pw, 1)); !errors.Is(err, ErrOutOfOrderWrite) {
		t.Fatalf("random_y duplicate: want ErrOutOfOrderWrite, got %v", err)
	}

	if err := pw.WriteScanlines(2, line(pw, 2)); err != nil {
		t.Fatalf("random_y line 2: %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	samePixels(t, img, readImageFile(t, buf.Bytes()))

	// decreasing_y starts at the bottom.
	h.Set(AttrLineOrder, DecreasingY)

	w, err = NewWriter(&MemBuffer{}, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	pw, _ = w.Part(0)

	if err := pw.WriteScanlines(0, line(pw, 0)); !errors.Is(err, ErrOutOfOrderWrite) {
		t.Fatalf("decreasing_y line 0 first: want ErrOutOfOrderWrite, got %v", err)
	}

	if err := pw.WriteScanlines(3, line(pw, 3)); err != nil {
		t.Fatalf("decreasing_y line 3: %v", err)
	}
}

func TestIncompleteCoverage(t *testing.T) {
	dw := NewBox2i(0, 0, 3, 39)
	h := NewHeader(dw, testChannels(), CompressionPIZ)
	img := newTestImage(dw, testChannels(), 4)

	var buf MemBuffer

	w, err := NewWriter(&buf, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	pw, _ := w.Part(0)

	if err := writeLines(pw, img, rowRange(0, 31)); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	if err := w.Finalize(); !errors.Is(err, ErrIncompleteCoverage) {
		t.Fatalf("want ErrIncompleteCoverage, got %v", err)
	}

	if buf.Len() != 0 {
		t.Fatalf("failed finalize wrote %d bytes", buf.Len())
	}

	if err := writeLines(pw, img, rowRange(32, 39)); err != nil {
		t.Fatalf("second chunk: %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := w.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second finalize: want ErrFinalized, got %v", err)
	}

	if err := w.WriteImage(img); !errors.Is(err, ErrFinalized) {
		t.Fatalf("write after finalize: want ErrFinalized, got %v", err)
	}

	samePixels(t, img, readImageFile(t, buf.Bytes()))
}

func TestWriterErrors(t *testing.T) {
	dw := NewBox2i(0, 0, 7, 7)

	if _, err := NewWriter(&MemBuffer{}, []*Header{NewHeader(dw, testChannels(), CompressionB44)}); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("b44: want ErrUnsupportedCompression, got %v", err)
	}

	if _, err := NewWriter(&MemBuffer{}, nil); !errors.Is(err, ErrMissingRequiredAttribute) {
		t.Fatalf("no headers: want ErrMissingRequiredAttribute, got %v", err)
	}

	a := NewHeader(dw, testChannels(), CompressionZIP)
	a.Set(AttrName, String("same"))

	if _, err := NewWriter(&MemBuffer{}, []*Header{a, a}); !errors.Is(err, ErrInvalidAttributeValue) {
		t.Fatalf("duplicate names: want ErrInvalidAttributeValue, got %v", err)
	}

	w, err := NewWriter(&MemBuffer{}, []*Header{NewHeader(dw, testChannels(), CompressionZIP)})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	if err := w.WriteTile(TileCoord{}, nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("tile to a scanline part: want ErrOutOfRange, got %v", err)
	}

	if err := w.WriteScanlines(8, []byte{1}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("line 8: want ErrOutOfRange, got %v", err)
	}

	if _, err := w.Part(1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("part 1: want ErrOutOfRange, got %v", err)
	}
}

func writeLevels(w *PartWriter, levels map[[2]int]*Image) error {
	for _, lv := range w.Layout().Levels() {
		if err := w.WriteLevel(lv[0], lv[1], levels[lv]); err != nil {
			return fmt.Errorf("level %v: %w", lv, err)
		}
	}

	return nil
}

func makeLevels(l *Layout, chans ChannelList, seed uint64) map[[2]int]*Image {
	levels := make(map[[2]int]*Image)
	for _, lv := range l.Levels() {
		levels[lv] = newTestImage(l.LevelBox(lv[0], lv[1]), chans, seed+uint64(lv[0]*16+lv[1]))
	}

	return levels
}

func TestTiledRoundTrip(t *testing.T) {
	chans := ChannelList{NewChannel("R", PixelHalf), NewChannel("G", PixelHalf), NewChannel("Z", PixelFloat)}
	dw := NewBox2i(5, -3, 74, 41)

	for _, td := range []TileDescription{
		{XSize: 32, YSize: 16, Mode: OneLevel},
		{XSize: 16, YSize: 16, Mode: MipmapLevels},
		{XSize: 16, YSize: 8, Mode: MipmapLevels, Rounding: RoundUp},
		{XSize: 16, YSize: 16, Mode: RipmapLevels},
	} {
		for _, c := range []Compression{CompressionNone, CompressionZIP, CompressionPIZ, CompressionPXR24} {
			for _, lo := range []LineOrder{IncreasingY, DecreasingY, RandomY} {
				h := NewHeader(dw, chans, c)
				h.Set(AttrTiles, td)
				h.Set(AttrLineOrder, lo)

				l := mustLayout(t, h)
				levels := makeLevels(l, chans, 3)

				data := writeFile(t, []*Header{h}, func(w *Writer) error {
					pw, _ := w.Part(0)
					return writeLevels(pw, levels)
				})

				r := openBytes(t, data)
				if r.Version()&0x200 == 0 {
					t.Fatalf("tiled flag missing: %#x", r.Version())
				}

				p, _ := r.Part(0)

				for _, lv := range l.Levels() {
					got, err := p.ReadLevel(lv[0], lv[1])
					if err != nil {
						t.Fatalf("%s/%s/%s level %v: %v", td.Mode, c, lo, lv, err)
					}

					samePixels(t, levels[lv], got)
				}
			}
		}
	}
}

func TestWriteTiles(t *testing.T) {
	chans := ChannelList{NewChannel("Y", PixelHalf)}
	h := tiledHeader(40, 20, TileDescription{XSize: 16, YSize: 16, Mode: MipmapLevels})
	l := mustLayout(t, h)
	levels := makeLevels(l, chans, 8)

	tileData := func(i int) (TileCoord, []byte) {
		tc, _ := l.TileCoordOf(i)
		b, _ := levels[[2]int{tc.LevelX, tc.LevelY}].extract(l.ChannelLayout(l.TileBox(tc)))

		return tc, b
	}

	var buf MemBuffer

	w, err := NewWriter(&buf, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	tc, b := tileData(1)
	if err := w.WriteTile(tc, b); !errors.Is(err, ErrOutOfOrderWrite) {
		t.Fatalf("second tile first: want ErrOutOfOrderWrite, got %v", err)
	}

	tc, b = tileData(0)
	if err := w.WriteTile(tc, b[1:]); err == nil {
		t.Fatal("short tile accepted")
	}

	for i := 0; i < l.ChunkCount(); i++ {
		tc, b := tileData(i)
		if err := w.WriteTile(tc, b); err != nil {
			t.Fatalf("%s: %v", tc, err)
		}
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	p, _ := openBytes(t, buf.Bytes()).Part(0)

	for i := 0; i < l.ChunkCount(); i++ {
		tc, want := tileData(i)

		ch, err := p.ReadTile(tc)
		if err != nil {
			t.Fatalf("%s: %v", tc, err)
		}

		if ch.Tile != tc || !bytes.Equal(ch.Data, want) {
			t.Fatalf("%s: tile differs", tc)
		}
	}
}

func TestMultiPartRoundTrip(t *testing.T) {
	beautyDW := NewBox2i(0, 0, 63, 47)
	beauty := NewHeader(beautyDW, testChannels(), CompressionZIP)
	beauty.Set(AttrName, String("beauty"))

	depthDW := NewBox2i(-8, -8, 40, 30)
	depthChans := ChannelList{NewChannel("Z", PixelFloat)}
	depth := NewHeader(depthDW, depthChans, CompressionPIZ)
	depth.Set(AttrTiles, TileDescription{XSize: 16, YSize: 16, Mode: MipmapLevels})
	depth.Set(AttrLineOrder, DecreasingY)

	notes := NewHeader(NewBox2i(0, 0, 9, 2), ChannelList{NewChannel("id", PixelUint)}, CompressionRLE)

	beautyImg := newTestImage(beautyDW, testChannels(), 1)
	notesImg := newTestImage(NewBox2i(0, 0, 9, 2), ChannelList{NewChannel("id", PixelUint)}, 2)
	depthLevels := makeLevels(mustLayout(t, depth), depthChans, 3)

	data := writeFile(t, []*Header{beauty, depth, notes}, func(w *Writer) error {
		p2, _ := w.Part(2)
		if err := p2.WriteImage(notesImg); err != nil {
			return err
		}

		p1, _ := w.Part(1)
		if err := writeLevels(p1, depthLevels); err != nil {
			return err
		}

		return w.WriteImage(beautyImg)
	})

	r := openBytes(t, data)

	if !r.IsMultiPart() || r.NumParts() != 3 {
		t.Fatalf("want 3 parts in a multi-part file, got %d (%#x)", r.NumParts(), r.Version())
	}

	p, ok := r.PartByName("beauty")
	if !ok || p.Index() != 0 {
		t.Fatalf("part beauty not found")
	}

	img, err := p.ReadImage()
	if err != nil {
		t.Fatalf("beauty: %v", err)
	}

	samePixels(t, beautyImg, img)

	p, _ = r.Part(1)
	if p.Header().Name() != "part1" || p.Header().Type() != "tiledimage" {
		t.Fatalf("part 1: name %q type %q", p.Header().Name(), p.Header().Type())
	}

	if n, ok := p.Header().ChunkCount(); !ok || n != p.ChunkCount() {
		t.Fatalf("part 1: chunkCount %d, layout %d", n, p.ChunkCount())
	}

	for _, lv := range p.Layout().Levels() {
		got, err := p.ReadLevel(lv[0], lv[1])
		if err != nil {
			t.Fatalf("depth level %v: %v", lv, err)
		}

		samePixels(t, depthLevels[lv], got)
	}

	p, _ = r.Part(2)
	if p.Header().Type() != "scanlineimage" {
		t.Fatalf("part 2 type %q", p.Header().Type())
	}

	img, err = p.ReadImage()
	if err != nil {
		t.Fatalf("notes: %v", err)
	}

	samePixels(t, notesImg, img)
}

func TestDeterministicOutput(t *testing.T) {
	dw := NewBox2i(0, 0, 127, 95)

	for _, c := range supportedCompressions {
		h := NewHeader(dw, testChannels(), c)
		img := newTestImage(dw, testChannels(), 21)

		one := writeImageFile(t, h, img, func(o *WriteOptions) { o.Workers = 1 })
		many := writeImageFile(t, h, img, func(o *WriteOptions) { o.Workers = 8 })

		if xxhash.Sum64(one) != xxhash.Sum64(many) || !bytes.Equal(one, many) {
			t.Fatalf("%s: output depends on the worker count", c)
		}
	}
}

func TestWriteAfterPrefix(t *testing.T) {
	dw := NewBox2i(0, 0, 31, 40)
	h := NewHeader(dw, testChannels(), CompressionZIP)
	img := newTestImage(dw, testChannels(), 9)
	prefix := []byte("container header")

	var buf MemBuffer

	if _, err := buf.Write(prefix); err != nil {
		t.Fatalf("prefix: %v", err)
	}

	w, err := NewWriter(&buf, []*Header{h})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	if err := w.WriteImage(img); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if !bytes.Equal(buf.Bytes()[len(prefix):], writeImageFile(t, h, img)) {
		t.Fatal("embedded file differs from a standalone one")
	}

	r, err := Open(io.NewSectionReader(&buf, int64(len(prefix)), int64(buf.Len()-len(prefix))))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	p, _ := r.Part(0)

	got, err := p.ReadImage()
	if err != nil {
		t.Fatalf("read image: %v", err)
	}

	samePixels(t, img, got)
}

func TestWritePreview(t *testing.T) {
	dw := NewBox2i(0, 0, 63, 31)
	h := NewHeader(dw, testChannels(), CompressionZIP)
	img := newTestImage(dw, testChannels(), 6)

	data := writeImageFile(t, h, img, func(o *WriteOptions) {
		o.Preview = true
		o.PreviewSize = 16
	})

	p, _ := openBytes(t, data).Part(0)

	v, ok := p.Header().Get(AttrPreview)
	if !ok {
		t.Fatal("preview attribute missing")
	}

	pv := v.(Preview)
	if pv.Width != 16 || pv.Height != 8 || len(pv.Pixels) != 16*8*4 {
		t.Fatalf("preview %dx%d with %d bytes", pv.Width, pv.Height, len(pv.Pixels))
	}

	samePixels(t, img, readImageFile(t, data))
}

func BenchmarkWriteImage(b *testing.B) {
	dw := NewBox2i(0, 0, 511, 255)
	img := newTestImage(dw, testChannels(), 1)

	for _, c := range supportedCompressions {
		h := NewHeader(dw, testChannels(), c)

		b.Run(c.String(), func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				writeImageFile(b, h, img)
			}
		})
	}
}
