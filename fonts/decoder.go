package fonts

import (
	"context"
	"strings"

	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/parser"
)

// Glyph is one decoded character code.
type Glyph struct {
	Code  uint32
	Text  string
	Width float64 // advance in 1/1000 text space units
	Space bool    // single-byte code 32, subject to word spacing
}

// Decoder turns show-string bytes into glyphs for one font resource.
type Decoder struct {
	Name    string
	Subtype string
	Bold    bool
	Italic  bool
	Ascent  float64
	Descent float64

	twoByte      bool
	cmap         *CMap
	enc          Encoding
	widths       map[uint32]float64
	defaultWidth float64
	std          *Metrics
	scale        float64
}

const (
	flagItalic    = 1 << 6
	flagForceBold = 1 << 18
)

// NewDecoder builds a decoder from a font dictionary. Missing or broken
// entries degrade to standard metrics rather than failing.
func NewDecoder(ctx context.Context, doc *parser.Document, dict *raw.DictObj) *Decoder {
	d := &Decoder{widths: make(map[uint32]float64), scale: 1, Ascent: 718, Descent: -207}
	if dict == nil {
		d.std = StandardMetrics("Helvetica")
		d.enc = StandardEncoding
		return d
	}
	d.Subtype, _ = doc.GetName(dict, "Subtype")
	base, _ := doc.GetName(dict, "BaseFont")
	d.Name = stripSubset(base)
	d.std = StandardMetrics(base)
	d.Bold = d.std.Bold
	d.Italic = d.std.Italic
	d.Ascent, d.Descent = d.std.Ascent, d.std.Descent

	if tu, ok := dict.Get("ToUnicode"); ok {
		if data, _, err := doc.Stream(ctx, tu); err == nil {
			if cm, err := ParseCMap(data); err == nil || cm.Len() > 0 {
				d.cmap = cm
			}
		}
	}

	fontDict := dict
	if d.Subtype == "Type0" {
		d.twoByte = true
		if arr, ok := doc.GetArray(dict, "DescendantFonts"); ok && arr.Len() > 0 {
			desc, err := doc.Resolve(arr.Items[0])
			if dd, isDict := desc.(*raw.DictObj); err == nil && isDict {
				fontDict = dd
				d.loadCIDWidths(doc, dd)
			}
		}
	} else {
		d.loadSimpleEncoding(doc, dict)
		d.loadSimpleWidths(doc, dict)
	}
	if d.Subtype == "Type3" {
		if fm, ok := doc.GetArray(dict, "FontMatrix"); ok {
			if vals, ok := doc.Floats(fm); ok && len(vals) == 6 && vals[0] != 0 {
				d.scale = vals[0] * 1000
			}
		}
	}
	d.loadDescriptor(doc, fontDict)
	return d
}

func (d *Decoder) loadDescriptor(doc *parser.Document, dict *raw.DictObj) {
	fd, ok := doc.GetDict(dict, "FontDescriptor")
	if !ok {
		return
	}
	if flags, ok := doc.GetInt(fd, "Flags"); ok {
		if flags&flagForceBold != 0 {
			d.Bold = true
		}
		if flags&flagItalic != 0 {
			d.Italic = true
		}
	}
	if w, ok := doc.GetFloat(fd, "FontWeight"); ok && w >= 600 {
		d.Bold = true
	}
	if a, ok := doc.GetFloat(fd, "Ascent"); ok && a != 0 {
		d.Ascent = a
	}
	if v, ok := doc.GetFloat(fd, "Descent"); ok && v != 0 {
		d.Descent = v
	}
	if mw, ok := doc.GetFloat(fd, "MissingWidth"); ok && d.defaultWidth == 0 {
		d.defaultWidth = mw
	}
}

func (d *Decoder) loadSimpleEncoding(doc *parser.Document, dict *raw.DictObj) {
	d.enc = StandardEncoding
	if d.Subtype == "TrueType" {
		d.enc = WinAnsiEncoding
	}
	enc, ok := doc.Get(dict, "Encoding")
	if !ok {
		return
	}
	switch e := enc.(type) {
	case raw.NameObj:
		if named, ok := NamedEncoding(e.Val); ok {
			d.enc = named
		}
	case *raw.DictObj:
		if name, ok := doc.GetName(e, "BaseEncoding"); ok {
			if named, ok := NamedEncoding(name); ok {
				d.enc = named
			}
		}
		diffs, ok := doc.GetArray(e, "Differences")
		if !ok {
			return
		}
		code := 0
		for _, it := range diffs.Items {
			switch v := it.(type) {
			case raw.NumberObj:
				code = int(v.Int())
			case raw.NameObj:
				if code >= 0 && code < 256 {
					if r, ok := GlyphRune(v.Val); ok {
						d.enc[code] = r
					}
				}
				code++
			}
		}
	}
}

func (d *Decoder) loadSimpleWidths(doc *parser.Document, dict *raw.DictObj) {
	widths, ok := doc.GetArray(dict, "Widths")
	if !ok {
		return
	}
	first, _ := doc.GetInt(dict, "FirstChar")
	vals, ok := doc.Floats(widths)
	if !ok {
		return
	}
	for i, w := range vals {
		d.widths[uint32(first)+uint32(i)] = w
	}
}

// loadCIDWidths reads /W entries of both forms: "c [w1 w2 ...]" and
// "cfirst clast w".
func (d *Decoder) loadCIDWidths(doc *parser.Document, desc *raw.DictObj) {
	d.defaultWidth = 1000
	if dw, ok := doc.GetFloat(desc, "DW"); ok {
		d.defaultWidth = dw
	}
	w, ok := doc.GetArray(desc, "W")
	if !ok {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		first, ok := raw.Float(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		next, err := doc.Resolve(items[i+1])
		if a, isArr := next.(*raw.ArrayObj); err == nil && isArr {
			vals, _ := doc.Floats(a)
			for j, v := range vals {
				d.widths[uint32(first)+uint32(j)] = v
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		last, ok1 := raw.Float(items[i+1])
		width, ok2 := raw.Float(items[i+2])
		if !ok1 || !ok2 || last < first || last-first > 0xFFFF {
			return
		}
		for c := uint32(first); c <= uint32(last); c++ {
			d.widths[c] = width
		}
		i += 3
	}
}

// Decode splits b into character codes and maps each to text and width.
func (d *Decoder) Decode(b []byte) []Glyph {
	var out []Glyph
	for len(b) > 0 {
		n := 1
		switch {
		case d.cmap != nil:
			fallback := 1
			if d.twoByte {
				fallback = 2
			}
			n = d.cmap.CodeLength(b, fallback)
		case d.twoByte:
			n = 2
		}
		if n > len(b) {
			n = len(b)
		}
		code := b[:n]
		b = b[n:]
		out = append(out, d.glyph(code))
	}
	return out
}

func (d *Decoder) glyph(code []byte) Glyph {
	g := Glyph{Code: codeValue(code)}
	if d.cmap != nil {
		if s, ok := d.cmap.Lookup(code); ok {
			g.Text = s
		}
	}
	if g.Text == "" && !d.twoByte && len(code) == 1 {
		if r := d.enc[code[0]]; r != 0 {
			g.Text = string(r)
		}
	}
	g.Space = len(code) == 1 && code[0] == ' '
	if w, ok := d.widths[g.Code]; ok {
		g.Width = w * d.scale
	} else if d.defaultWidth != 0 {
		g.Width = d.defaultWidth * d.scale
	} else {
		r := ' '
		if rs := []rune(g.Text); len(rs) > 0 {
			r = rs[0]
		}
		g.Width = d.std.Width(r)
	}
	return g
}

// IsSymbolic reports whether the font name suggests a symbol font whose
// codes carry no readable text.
func (d *Decoder) IsSymbolic() bool {
	n := strings.ToLower(d.Name)
	return strings.Contains(n, "symbol") || strings.Contains(n, "dingbat")
}
