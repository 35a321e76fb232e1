package exr

import "fmt"

const (
	rleMinRun = 3
	rleMaxRun = 127
)

func rleCompress(raw []byte) []byte {
	return rleEncode(applyPredictor(shuffleBytes(raw)))
}

func rleUncompress(packed []byte, expectedLen int) ([]byte, error) {
	data, err := rleDecode(packed, expectedLen)
	if err != nil {
		return nil, err
	}

	if len(data) != expectedLen {
		return nil, fmt.Errorf("%w: rle produced %d bytes, want %d", ErrCorruptChunk, len(data), expectedLen)
	}

	undoPredictor(data)

	return unshuffleBytes(data), nil
}

// rleEncode writes runs of at least three equal bytes as (count-1, byte) and everything
// else as (-count, bytes...), with at most 128 bytes per run and 127 per literal.
func rleEncode(in []byte) []byte {
	out := make([]byte, 0, len(in)+len(in)/rleMaxRun+1)

	runStart := 0
	runEnd := 1

	for runStart < len(in) {
		for runEnd < len(in) && in[runStart] == in[runEnd] && runEnd-runStart-1 < rleMaxRun {
			runEnd++
		}

		if runEnd-runStart >= rleMinRun {
			out = append(out, byte(runEnd-runStart-1), in[runStart])
			runStart = runEnd
		} else {
			for runEnd < len(in) &&
				(runEnd+1 >= len(in) || in[runEnd] != in[runEnd+1] ||
					runEnd+2 >= len(in) || in[runEnd+1] != in[runEnd+2]) &&
				runEnd-runStart < rleMaxRun {
				runEnd++
			}

			out = append(out, byte(int8(runStart-runEnd)))
			out = append(out, in[runStart:runEnd]...)
			runStart = runEnd
		}

		runEnd++
	}

	return out
}

func rleDecode(in []byte, maxLen int) ([]byte, error) {
	out := make([]byte, 0, maxLen)

	for len(in) > 0 {
		n := int(int8(in[0]))
		in = in[1:]

		if n < 0 {
			count := -n
			if count > len(in) || len(out)+count > maxLen {
				return nil, fmt.Errorf("%w: rle literal of %d bytes overflows", ErrCorruptChunk, count)
			}

			out = append(out, in[:count]...)
			in = in[count:]

			continue
		}

		count := n + 1
		if len(in) < 1 || len(out)+count > maxLen {
			return nil, fmt.Errorf("%w: rle run of %d bytes overflows", ErrCorruptChunk, count)
		}

		for i := 0; i < count; i++ {
			out = append(out, in[0])
		}

		in = in[1:]
	}

	return out, nil
}
