package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/fonts"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/ir/semantic"
)

func rectArray(r semantic.Rectangle) *raw.ArrayObj {
	return raw.NewArray(number(r.LLX), number(r.LLY), number(r.URX), number(r.URY))
}

func number(v float64) raw.NumberObj {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return raw.Int(int64(v))
	}
	return raw.Real(v)
}

// formatNumber prints v without exponent and with at most four decimals.
func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	s := strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

func serializeContentStream(cs semantic.ContentStream) []byte {
	if len(cs.Operations) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, op := range cs.Operations {
		for i, operand := range op.Operands {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.Write(serializeOperand(operand))
		}
		if len(op.Operands) > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func serializeOperand(op semantic.Operand) []byte {
	switch v := op.(type) {
	case semantic.NumberOperand:
		return []byte(formatNumber(v.Value))
	case semantic.NameOperand:
		return []byte("/" + pdfNameLiteral(v.Value))
	case semantic.StringOperand:
		return escapeLiteralString(v.Value)
	case semantic.ArrayOperand:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.Write(serializeOperand(it))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		return []byte("null")
	}
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Val))
	case raw.NumberObj:
		if v.IsInt {
			return []byte(strconv.FormatInt(v.I, 10))
		}
		return []byte(formatNumber(v.F))
	case raw.BoolObj:
		if v.V {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		if v.Hex {
			return []byte("<" + strings.ToUpper(hex.EncodeToString(v.Bytes)) + ">")
		}
		return escapeLiteralString(v.Bytes)
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			b.Write(serializePrimitive(v.KV[k]))
		}
		b.WriteString(">>")
		return b.Bytes()
	case *raw.StreamObj:
		var b bytes.Buffer
		b.Write(serializePrimitive(v.Dict))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.R.Num, v.R.Gen))
	default:
		return []byte("null")
	}
}

func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '+' {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func annotationDict(a semantic.Annotation, page raw.ObjectRef) *raw.DictObj {
	base := a.Base()
	d := raw.Dict().
		Set("Type", raw.Name("Annot")).
		Set("Subtype", raw.Name(a.Type())).
		Set("Rect", rectArray(a.Rect())).
		Set("P", raw.RefObj{R: page})
	if base.Contents != "" {
		d.Set("Contents", raw.Str(raw.EncodeTextString(base.Contents)))
	}
	if base.Title != "" {
		d.Set("T", raw.Str(raw.EncodeTextString(base.Title)))
	}
	if base.Flags != 0 {
		d.Set("F", raw.Int(int64(base.Flags)))
	}
	if len(base.Color) > 0 {
		d.Set("C", raw.Floats(base.Color...))
	}
	switch v := a.(type) {
	case *semantic.StrikeOutAnnotation:
		d.Set("QuadPoints", raw.Floats(v.Quads()...))
	case *semantic.LinkAnnotation:
		d.Set("Border", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(0)))
		if v.URI != "" {
			d.Set("A", raw.Dict().Set("S", raw.Name("URI")).Set("URI", raw.Str([]byte(v.URI))))
		}
	}
	return d
}

// writeFont stores the dictionary for f under ref, plus the descendant,
// descriptor, file and ToUnicode objects an embedded font needs.
func writeFont(tbl *objectTable, f fonts.Font, ref raw.ObjectRef) error {
	switch v := f.(type) {
	case *fonts.StandardFont:
		tbl.objects[ref] = raw.Dict().
			Set("Type", raw.Name("Font")).
			Set("Subtype", raw.Name("Type1")).
			Set("BaseFont", raw.Name(v.Name())).
			Set("Encoding", raw.Name("WinAnsiEncoding"))
		return nil
	case *fonts.TrueTypeFont:
		return writeTrueType(tbl, v, ref)
	}
	return fmt.Errorf("unsupported font type %T", f)
}

func writeTrueType(tbl *objectTable, f *fonts.TrueTypeFont, ref raw.ObjectRef) error {
	data, err := filters.FlateEncode(f.Data)
	if err != nil {
		return err
	}
	fileRef := tbl.add(raw.NewStream(raw.Dict().
		Set("Filter", raw.Name("FlateDecode")).
		Set("Length", raw.Int(int64(len(data)))).
		Set("Length1", raw.Int(int64(len(f.Data)))), data))

	flags := int64(32)
	if f.ItalicAngle != 0 {
		flags |= 64
	}
	descRef := tbl.add(raw.Dict().
		Set("Type", raw.Name("FontDescriptor")).
		Set("FontName", raw.Name(f.BaseName)).
		Set("Flags", raw.Int(flags)).
		Set("FontBBox", raw.Floats(f.BBox[:]...)).
		Set("ItalicAngle", number(f.ItalicAngle)).
		Set("Ascent", number(f.Ascent)).
		Set("Descent", number(f.Descent)).
		Set("CapHeight", number(f.CapHeight)).
		Set("StemV", raw.Int(80)).
		Set("FontFile2", raw.RefObj{R: fileRef}))

	used := f.Used()
	widths := make(map[int]int, len(used))
	for _, g := range used {
		widths[int(g.ID)] = f.GlyphWidth(g.ID)
	}
	cidRef := tbl.add(raw.Dict().
		Set("Type", raw.Name("Font")).
		Set("Subtype", raw.Name("CIDFontType2")).
		Set("BaseFont", raw.Name(f.BaseName)).
		Set("CIDSystemInfo", raw.Dict().
			Set("Registry", raw.Str([]byte("Adobe"))).
			Set("Ordering", raw.Str([]byte("Identity"))).
			Set("Supplement", raw.Int(0))).
		Set("FontDescriptor", raw.RefObj{R: descRef}).
		Set("DW", raw.Int(int64(f.DefaultWidth()))).
		Set("W", encodeCIDWidths(widths)).
		Set("CIDToGIDMap", raw.Name("Identity")))

	cmap := buildToUnicodeCMap(f.BaseName, used)
	cmapData, err := filters.FlateEncode(cmap)
	if err != nil {
		return err
	}
	toUnicodeRef := tbl.add(raw.NewStream(raw.Dict().
		Set("Filter", raw.Name("FlateDecode")).
		Set("Length", raw.Int(int64(len(cmapData)))), cmapData))

	tbl.objects[ref] = raw.Dict().
		Set("Type", raw.Name("Font")).
		Set("Subtype", raw.Name("Type0")).
		Set("BaseFont", raw.Name(f.BaseName)).
		Set("Encoding", raw.Name("Identity-H")).
		Set("DescendantFonts", raw.NewArray(raw.RefObj{R: cidRef})).
		Set("ToUnicode", raw.RefObj{R: toUnicodeRef})
	return nil
}

func buildToUnicodeCMap(baseName string, used []fonts.UsedGlyph) []byte {
	name := strings.ReplaceAll(baseName, " ", "") + "-UTF16"
	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n")
	buf.WriteString("12 dict begin\n")
	buf.WriteString("begincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	fmt.Fprintf(&buf, "/CMapName /%s def\n", pdfNameLiteral(name))
	buf.WriteString("/CMapType 2 def\n")
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	mapped := make([]fonts.UsedGlyph, 0, len(used))
	for _, g := range used {
		if g.Text != "" {
			mapped = append(mapped, g)
		}
	}
	for i := 0; i < len(mapped); {
		chunk := min(len(mapped)-i, 100)
		fmt.Fprintf(&buf, "%d beginbfchar\n", chunk)
		for _, g := range mapped[i : i+chunk] {
			fmt.Fprintf(&buf, "<%04X> <%s>\n", g.ID, utf16Hex([]rune(g.Text)))
		}
		buf.WriteString("endbfchar\n")
		i += chunk
	}
	buf.WriteString("endcmap\n")
	buf.WriteString("CMapName currentdict /CMap defineresource pop\n")
	buf.WriteString("end\nend\n")
	return buf.Bytes()
}

func utf16Hex(runes []rune) string {
	var b strings.Builder
	for _, u := range utf16.Encode(runes) {
		fmt.Fprintf(&b, "%04X", u)
	}
	return b.String()
}

// encodeCIDWidths writes /W as "first last width" runs of equal widths.
func encodeCIDWidths(widths map[int]int) *raw.ArrayObj {
	arr := raw.NewArray()
	if len(widths) == 0 {
		return arr
	}
	codes := make([]int, 0, len(widths))
	for c := range widths {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	start, prev, current := codes[0], codes[0], widths[codes[0]]
	for _, code := range codes[1:] {
		w := widths[code]
		if w == current && code == prev+1 {
			prev = code
			continue
		}
		arr.Append(raw.Int(int64(start)), raw.Int(int64(prev)), raw.Int(int64(current)))
		start, prev, current = code, code, w
	}
	arr.Append(raw.Int(int64(start)), raw.Int(int64(prev)), raw.Int(int64(current)))
	return arr
}
