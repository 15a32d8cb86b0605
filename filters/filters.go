// Package filters decodes PDF stream filters.
package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/charterkit/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Limits guard against decompression bombs.
type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// DefaultLimits allows 64 MiB per stream.
func DefaultLimits() Limits {
	return Limits{MaxDecompressedSize: 64 << 20, MaxDecodeTime: 30 * time.Second}
}

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrSizeLimit     = errors.New("decompressed size exceeds limit")
)

// imageFilters are left encoded: their output is an image, not PDF data.
var imageFilters = map[string]bool{
	"DCTDecode": true, "JPXDecode": true, "CCITTFaxDecode": true, "JBIG2Decode": true,
}

// abbreviations used by inline images.
var abbreviations = map[string]string{
	"AHx": "ASCIIHexDecode", "A85": "ASCII85Decode", "LZW": "LZWDecode",
	"Fl": "FlateDecode", "RL": "RunLengthDecode", "CCF": "CCITTFaxDecode", "DCT": "DCTDecode",
}

// Canonical expands inline-image abbreviations.
func Canonical(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

// IsImageFilter reports whether name produces image samples that callers
// should receive still encoded.
func IsImageFilter(name string) bool { return imageFilters[Canonical(name)] }

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Default returns a pipeline with every built-in decoder.
func Default(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		flateDecoder{limit: limits.MaxDecompressedSize},
		lzwDecoder{limit: limits.MaxDecompressedSize},
		asciiHexDecoder{},
		ascii85Decoder{},
		runLengthDecoder{limit: limits.MaxDecompressedSize},
	}, limits)
}

// Decode applies filterNames in order. Decoding stops at the first image
// filter; its name is returned with the data still encoded by it.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, string, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		name = Canonical(name)
		if imageFilters[name] {
			return data, name, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, "", ErrSizeLimit
		}
		data = out
	}
	return data, "", nil
}

func intParam(params *raw.DictObj, key string, def int) int {
	if v, ok := params.Int(key); ok {
		return int(v)
	}
	return def
}
