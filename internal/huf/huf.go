// Package huf implements the OpenEXR Huffman coder used by PIZ compression.
//
// The stream is a 20-byte header (min symbol, max symbol, table length, bit count,
// reserved), the code-length table packed in 6-bit fields with zero-run codes, and the
// MSB-first code stream. Runs of equal values are coded with a pseudo-symbol placed
// right after the largest real symbol, followed by an 8-bit repeat count.
package huf

import (
	"container/heap"
	"encoding/binary"
	"errors"
)

// ErrCorrupt is returned when the stream cannot be decoded into the requested count.
var ErrCorrupt = errors.New("huf: corrupt stream")

const (
	encSize          = 1<<16 + 1
	maxCodeLen       = 58
	decBits          = 14
	shortZeroCodeRun = 59
	longZeroCodeRun  = 63
	shortestLongRun  = 2 + longZeroCodeRun - shortZeroCodeRun
	longestLongRun   = 255 + shortestLongRun
	headerSize       = 20
)

// Compress encodes values. An empty input produces an empty output.
func Compress(values []uint16) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	freq := make([]uint64, encSize)
	for _, v := range values {
		freq[v]++
	}

	lengths, im, iM := buildLengths(freq)
	for _, l := range lengths {
		if l > maxCodeLen {
			return nil, errors.New("huf: code length overflow")
		}
	}
	codes, err := canonicalCodes(lengths)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(values))
	out = packTable(out, lengths, im, iM)
	tableLen := len(out) - headerSize

	var bw bitWriter
	bw.out = out
	encode(&bw, values, codes, lengths, iM)
	nBits := (len(bw.out)-len(out))*8 + bw.lc
	bw.flush()
	out = bw.out

	binary.LittleEndian.PutUint32(out[0:], uint32(im))
	binary.LittleEndian.PutUint32(out[4:], uint32(iM))
	binary.LittleEndian.PutUint32(out[8:], uint32(tableLen))
	binary.LittleEndian.PutUint32(out[12:], uint32(nBits))
	binary.LittleEndian.PutUint32(out[16:], 0)

	return out, nil
}

// Decompress decodes exactly n values from data.
func Decompress(data []byte, n int) ([]uint16, error) {
	if len(data) == 0 {
		if n != 0 {
			return nil, ErrCorrupt
		}
		return nil, nil
	}
	if len(data) < headerSize {
		return nil, ErrCorrupt
	}

	im := binary.LittleEndian.Uint32(data[0:])
	iM := binary.LittleEndian.Uint32(data[4:])
	nBits := uint64(binary.LittleEndian.Uint32(data[12:]))
	if im >= encSize || iM >= encSize || im > iM {
		return nil, ErrCorrupt
	}

	body := data[headerSize:]
	if (nBits+7)/8 > uint64(len(body)) {
		return nil, ErrCorrupt
	}

	lengths, used, err := unpackTable(body, int(im), int(iM))
	if err != nil {
		return nil, err
	}
	stream := body[used:]
	if (nBits+7)/8 > uint64(len(stream)) {
		return nil, ErrCorrupt
	}

	dec, err := newDecoder(lengths, int(im), int(iM))
	if err != nil {
		return nil, err
	}

	return dec.decode(stream, int(nBits), int(iM), n)
}

type node struct {
	freq   uint64
	symbol int
}

type nodeHeap []node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].symbol < h[j].symbol
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// buildLengths assigns Huffman code lengths, adding the run-length pseudo-symbol with
// frequency 1 right after the largest used symbol. Symbols of merged subtrees are kept
// in linked lists so every merge lengthens all of their codes by one bit.
func buildLengths(freq []uint64) (lengths []int, im, iM int) {
	lengths = make([]int, encSize)
	link := make([]int, encSize)

	for im < encSize-1 && freq[im] == 0 {
		im++
	}

	h := make(nodeHeap, 0, 64)
	for i := im; i < encSize; i++ {
		link[i] = i
		if freq[i] != 0 {
			h = append(h, node{freq: freq[i], symbol: i})
			iM = i
		}
	}

	iM++
	freq[iM] = 1
	h = append(h, node{freq: 1, symbol: iM})
	heap.Init(&h)

	for h.Len() > 1 {
		low := heap.Pop(&h).(node)
		high := heap.Pop(&h).(node)

		heap.Push(&h, node{freq: low.freq + high.freq, symbol: high.symbol})

		for j := high.symbol; ; j = link[j] {
			lengths[j]++
			if link[j] == j {
				link[j] = low.symbol
				break
			}
		}
		for j := low.symbol; ; j = link[j] {
			lengths[j]++
			if link[j] == j {
				break
			}
		}
	}

	return lengths, im, iM
}

// canonicalCodes assigns codes the way OpenEXR does: longer codes take the numerically
// smaller values, symbols of one length are numbered in ascending order.
func canonicalCodes(lengths []int) ([]uint64, error) {
	var n [maxCodeLen + 1]uint64
	for _, l := range lengths {
		n[l]++
	}

	var c uint64
	for i := maxCodeLen; i > 0; i-- {
		nc := (c + n[i]) >> 1
		n[i] = c
		c = nc
	}

	codes := make([]uint64, len(lengths))
	for i, l := range lengths {
		if l > 0 {
			codes[i] = n[l]
			n[l]++
			if codes[i]>>uint(l) != 0 {
				return nil, ErrCorrupt
			}
		}
	}

	return codes, nil
}

type bitWriter struct {
	out []byte
	acc uint64
	lc  int
}

func (w *bitWriter) write(nBits int, bits uint64) {
	if nBits > 32 {
		w.write(nBits-32, bits>>32)
		nBits = 32
		bits &= 0xffffffff
	}
	w.acc = w.acc<<uint(nBits) | bits
	w.lc += nBits
	for w.lc >= 8 {
		w.lc -= 8
		w.out = append(w.out, byte(w.acc>>uint(w.lc)))
	}
}

func (w *bitWriter) flush() {
	if w.lc > 0 {
		w.out = append(w.out, byte(w.acc<<uint(8-w.lc)))
		w.lc = 0
	}
}

func packTable(dst []byte, lengths []int, im, iM int) []byte {
	w := bitWriter{out: dst}

	for ; im <= iM; im++ {
		l := lengths[im]
		if l == 0 {
			zerun := 1
			for im < iM && zerun < longestLongRun {
				if lengths[im+1] > 0 {
					break
				}
				im++
				zerun++
			}

			if zerun >= 2 {
				if zerun >= shortestLongRun {
					w.write(6, longZeroCodeRun)
					w.write(8, uint64(zerun-shortestLongRun))
				} else {
					w.write(6, uint64(shortZeroCodeRun+zerun-2))
				}
				continue
			}
		}
		w.write(6, uint64(l))
	}
	w.flush()

	return w.out
}

func encode(w *bitWriter, values []uint16, codes []uint64, lengths []int, rlc int) {
	send := func(sym, run int) {
		if lengths[sym]+lengths[rlc]+8 < lengths[sym]*run {
			w.write(lengths[sym], codes[sym])
			w.write(lengths[rlc], codes[rlc])
			w.write(8, uint64(run))
			return
		}
		for ; run >= 0; run-- {
			w.write(lengths[sym], codes[sym])
		}
	}

	s := int(values[0])
	cs := 0
	for _, v := range values[1:] {
		if s == int(v) && cs < 255 {
			cs++
		} else {
			send(s, cs)
			cs = 0
		}
		s = int(v)
	}
	send(s, cs)
}

type bitReader struct {
	in  []byte
	acc uint64
	lc  int
}

func (r *bitReader) bits(n int) (uint64, bool) {
	for r.lc < n {
		if len(r.in) == 0 {
			return 0, false
		}
		r.acc = r.acc<<8 | uint64(r.in[0])
		r.in = r.in[1:]
		r.lc += 8
	}
	r.lc -= n
	v := (r.acc >> uint(r.lc)) & (1<<uint(n) - 1)
	r.acc &= 1<<uint(r.lc) - 1
	return v, true
}

func unpackTable(data []byte, im, iM int) ([]int, int, error) {
	lengths := make([]int, encSize)
	r := bitReader{in: data}

	for ; im <= iM; im++ {
		l, ok := r.bits(6)
		if !ok {
			return nil, 0, ErrCorrupt
		}

		switch {
		case l == longZeroCodeRun:
			v, ok := r.bits(8)
			if !ok {
				return nil, 0, ErrCorrupt
			}
			zerun := int(v) + shortestLongRun
			if im+zerun > iM+1 {
				return nil, 0, ErrCorrupt
			}
			im += zerun - 1
		case l >= shortZeroCodeRun:
			zerun := int(l) - shortZeroCodeRun + 2
			if im+zerun > iM+1 {
				return nil, 0, ErrCorrupt
			}
			im += zerun - 1
		default:
			lengths[im] = int(l)
		}
	}

	return lengths, len(data) - len(r.in), nil
}

type tableEntry struct {
	symbol uint32
	length uint8
}

type decoder struct {
	table  []tableEntry
	base   [maxCodeLen + 1]uint64
	count  [maxCodeLen + 1]uint64
	bySym  [maxCodeLen + 1][]uint32
	maxLen int
}

func newDecoder(lengths []int, im, iM int) (*decoder, error) {
	codes, err := canonicalCodes(lengths)
	if err != nil {
		return nil, err
	}

	d := &decoder{table: make([]tableEntry, 1<<decBits)}
	for i := range d.base {
		d.base[i] = ^uint64(0)
	}

	for sym := im; sym <= iM; sym++ {
		l := lengths[sym]
		if l == 0 {
			continue
		}
		if l > d.maxLen {
			d.maxLen = l
		}

		c := codes[sym]
		if c < d.base[l] {
			d.base[l] = c
		}
		d.count[l]++
		d.bySym[l] = append(d.bySym[l], uint32(sym))

		if l <= decBits {
			shift := uint(decBits - l)
			first := c << shift
			last := (c + 1) << shift
			for i := first; i < last; i++ {
				d.table[i] = tableEntry{symbol: uint32(sym), length: uint8(l)}
			}
		}
	}

	if d.maxLen == 0 {
		return nil, ErrCorrupt
	}

	return d, nil
}

// peek returns the next n bits of the stream, zero padded past its end.
func peek(acc uint64, lc, n int) uint64 {
	if n <= lc {
		return (acc >> uint(lc-n)) & (1<<uint(n) - 1)
	}
	return (acc << uint(n-lc)) & (1<<uint(n) - 1)
}

func (d *decoder) decode(stream []byte, nBits int, rlc int, n int) ([]uint16, error) {
	out := make([]uint16, 0, n)

	var (
		acc  uint64
		lc   int
		left = nBits
	)

	refill := func() {
		for lc <= 56 && len(stream) > 0 {
			acc = acc<<8 | uint64(stream[0])
			stream = stream[1:]
			lc += 8
		}
	}
	consume := func(k int) {
		lc -= k
		left -= k
		acc &= 1<<uint(lc) - 1
	}

	for left > 0 {
		refill()

		sym, length := -1, 0
		if e := d.table[peek(acc, lc, decBits)]; e.length != 0 && int(e.length) <= left {
			sym, length = int(e.symbol), int(e.length)
		} else {
			for l := decBits + 1; l <= d.maxLen && l <= left; l++ {
				if d.count[l] == 0 {
					continue
				}
				v := peek(acc, lc, l)
				if v >= d.base[l] && v-d.base[l] < d.count[l] {
					sym, length = int(d.bySym[l][v-d.base[l]]), l
					break
				}
			}
		}
		if sym < 0 || length > lc {
			return nil, ErrCorrupt
		}
		consume(length)

		if sym == rlc {
			if left < 8 {
				return nil, ErrCorrupt
			}
			refill()
			if lc < 8 {
				return nil, ErrCorrupt
			}
			cs := int(peek(acc, lc, 8))
			consume(8)
			if len(out) == 0 || len(out)+cs > n {
				return nil, ErrCorrupt
			}
			last := out[len(out)-1]
			for ; cs > 0; cs-- {
				out = append(out, last)
			}
			continue
		}

		if len(out) >= n {
			return nil, ErrCorrupt
		}
		out = append(out, uint16(sym))
	}

	if len(out) != n {
		return nil, ErrCorrupt
	}

	return out, nil
}
