package filters

import (
	"bytes"
	"context"
	"encoding/ascii85"
	"fmt"

	"github.com/wudi/charterkit/ir/raw"
)

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(_ context.Context, input []byte, _ *raw.DictObj) ([]byte, error) {
	out := make([]byte, 0, len(input)/2)
	var hi byte
	half := false
	for _, c := range input {
		if c == '>' {
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		case c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0:
			continue
		default:
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(_ context.Context, input []byte, _ *raw.DictObj) ([]byte, error) {
	data := bytes.TrimSpace(input)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	out := make([]byte, 4*len(data)+4)
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{ limit int64 }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (d runLengthDecoder) Decode(_ context.Context, input []byte, _ *raw.DictObj) ([]byte, error) {
	var out []byte
	for i := 0; i < len(input); {
		n := int(input[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			end := i + n + 1
			if end > len(input) {
				end = len(input)
			}
			out = append(out, input[i:end]...)
			i = end
		default:
			if i >= len(input) {
				return out, nil
			}
			out = append(out, bytes.Repeat(input[i:i+1], 257-n)...)
			i++
		}
		if d.limit > 0 && int64(len(out)) > d.limit {
			return nil, ErrSizeLimit
		}
	}
	return out, nil
}
