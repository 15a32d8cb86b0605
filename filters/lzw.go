package filters

import (
	"context"
	"errors"

	"github.com/wudi/charterkit/ir/raw"
)

type lzwDecoder struct{ limit int64 }

func (lzwDecoder) Name() string { return "LZWDecode" }

const (
	lzwClear = 256
	lzwEOD   = 257
)

// Decode implements the PDF variant of LZW: MSB-first codes of 9..12 bits
// with the code width growing one code early unless /EarlyChange is 0.
func (d lzwDecoder) Decode(_ context.Context, input []byte, params *raw.DictObj) ([]byte, error) {
	early := intParam(params, "EarlyChange", 1)
	var (
		out    []byte
		table  [][]byte
		prev   []byte
		width  = 9
		bitBuf uint32
		nbits  int
	)
	reset := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil)
		width = 9
		prev = nil
	}
	table = make([][]byte, 0, 4096)
	reset()
	for _, b := range input {
		bitBuf = bitBuf<<8 | uint32(b)
		nbits += 8
		for nbits >= width {
			code := int(bitBuf>>(uint(nbits-width))) & (1<<uint(width) - 1)
			nbits -= width
			switch {
			case code == lzwClear:
				reset()
				continue
			case code == lzwEOD:
				return applyPredictor(out, params)
			}
			var entry []byte
			switch {
			case code < len(table) && table[code] != nil:
				entry = table[code]
			case code == len(table) && prev != nil:
				entry = append(append([]byte(nil), prev...), prev[0])
			default:
				return nil, errors.New("invalid LZW code")
			}
			out = append(out, entry...)
			if d.limit > 0 && int64(len(out)) > d.limit {
				return nil, ErrSizeLimit
			}
			if prev != nil && len(table) < 4096 {
				table = append(table, append(append([]byte(nil), prev...), entry[0]))
			}
			prev = entry
			if n := len(table) + early; n >= 1<<uint(width) && width < 12 {
				width++
			}
		}
	}
	return applyPredictor(out, params)
}
