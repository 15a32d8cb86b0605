package filters

import (
	"bytes"
	"context"
	"encoding/ascii85"
	"errors"
	"testing"

	"github.com/wudi/charterkit/ir/raw"
)

func decode(t *testing.T, p *Pipeline, data []byte, names []string, params []*raw.DictObj) ([]byte, string) {
	t.Helper()
	out, img, err := p.Decode(context.Background(), data, names, params)
	if err != nil {
		t.Fatalf("decode %v: %v", names, err)
	}
	return out, img
}

func TestFlateRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("Clause 1. Laytime\n"), 20)
	enc, err := FlateEncode(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, _ := decode(t, Default(DefaultLimits()), enc, []string{"FlateDecode"}, nil)
	if !bytes.Equal(out, src) {
		t.Fatalf("flate round trip mismatch")
	}
}

func TestFlateSizeLimit(t *testing.T) {
	enc, _ := FlateEncode(make([]byte, 4096))
	_, _, err := Default(Limits{MaxDecompressedSize: 100}).Decode(context.Background(), enc, []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows of 3 bytes with the Up filter on the second row.
	rows := []byte{0, 1, 2, 3, 2, 1, 1, 1}
	enc, _ := FlateEncode(rows)
	params := raw.Dict().Set("Predictor", raw.Int(12)).Set("Columns", raw.Int(3))
	out, _ := decode(t, Default(DefaultLimits()), enc, []string{"FlateDecode"}, []*raw.DictObj{params})
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output = %v, want %v", out, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	enc, _ := FlateEncode([]byte{10, 1, 1, 5, 5, 5})
	params := raw.Dict().Set("Predictor", raw.Int(2)).Set("Columns", raw.Int(3))
	out, _ := decode(t, Default(DefaultLimits()), enc, []string{"FlateDecode"}, []*raw.DictObj{params})
	if !bytes.Equal(out, []byte{10, 11, 12, 5, 10, 15}) {
		t.Fatalf("tiff output = %v", out)
	}
}

func TestLZWSample(t *testing.T) {
	enc := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	out, _ := decode(t, Default(DefaultLimits()), enc, []string{"LZWDecode"}, nil)
	if string(out) != "-----A---B" {
		t.Fatalf("lzw = %q", out)
	}
}

func TestASCIIFilters(t *testing.T) {
	p := Default(DefaultLimits())
	out, _ := decode(t, p, []byte("48 65 6c 6C 6f 2>"), []string{"AHx"}, nil)
	if string(out) != "Hello " {
		t.Fatalf("hex = %q", out)
	}
	var a85 bytes.Buffer
	w := ascii85.NewEncoder(&a85)
	w.Write([]byte("charter party"))
	w.Close()
	out, _ = decode(t, p, append(a85.Bytes(), '~', '>'), []string{"ASCII85Decode"}, nil)
	if string(out) != "charter party" {
		t.Fatalf("a85 = %q", out)
	}
}

func TestRunLength(t *testing.T) {
	enc := []byte{2, 'a', 'b', 'c', 254, 'z', 128}
	out, _ := decode(t, Default(DefaultLimits()), enc, []string{"RunLengthDecode"}, nil)
	if string(out) != "abczzz" {
		t.Fatalf("rl = %q", out)
	}
}

func TestImageFilterPassthrough(t *testing.T) {
	hexJPEG := []byte("FFD8FF>")
	out, img := decode(t, Default(DefaultLimits()), hexJPEG, []string{"ASCIIHexDecode", "DCTDecode"}, nil)
	if img != "DCTDecode" || !bytes.Equal(out, []byte{0xFF, 0xD8, 0xFF}) {
		t.Fatalf("passthrough = %v %q", out, img)
	}
	if !IsImageFilter("DCT") || IsImageFilter("FlateDecode") {
		t.Fatalf("IsImageFilter misclassified")
	}
}

func TestUnknownFilter(t *testing.T) {
	_, _, err := Default(DefaultLimits()).Decode(context.Background(), nil, []string{"Bogus"}, nil)
	if !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected unknown filter, got %v", err)
	}
}
