package contentstream

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/parser"
)

const formContent = "BT /F1 5 Tf 10 10 Td (form) Tj ET /Fm1 Do"

func testDoc(t *testing.T) *parser.Document {
	t.Helper()
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Type /XObject /Subtype /Form /BBox [0 0 100 100] /Length %d >>\nstream\n%s\nendstream", len(formContent), formContent),
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	at := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, at)
	doc, err := parser.OpenBytes(context.Background(), buf.Bytes(), parser.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func resources() *raw.DictObj {
	return raw.Dict().
		Set("Font", raw.Dict().Set("F1", raw.Ref(3, 0))).
		Set("XObject", raw.Dict().Set("Fm1", raw.Ref(4, 0)))
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestRunTextAndRules(t *testing.T) {
	content := []byte(`BT /F1 12 Tf 1 0 0 1 72 700 Tm (Clause 1.) Tj ET
0 0.5 0 rg BT /F1 10 Tf 72 680 Td [(Add) -300 (ed)] TJ ET
72 703 100 0.8 re f
1 0 0 RG 2 w 72 650 m 200 650 l S
q 2 0 0 2 0 0 cm /Fm1 Do Q`)
	rec := &Recorder{}
	if err := New(testDoc(t)).Run(context.Background(), content, resources(), coords.Identity(), rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.Text) != 4 {
		t.Fatalf("glyph events = %d: %+v", len(rec.Text), rec.Text)
	}
	first := rec.Text[0]
	if first.Text != "Clause 1." || first.Font != "Helvetica" || !near(first.Size, 12) {
		t.Fatalf("first = %+v", first)
	}
	if !near(first.Origin.X, 72) || !near(first.End.X, 122.688) || !near(first.Origin.Y, 700) {
		t.Fatalf("first geometry = %+v %+v", first.Origin, first.End)
	}
	if !near(first.Box.URY, 700+0.718*12) || !near(first.Box.LLY, 700-0.207*12) {
		t.Fatalf("first box = %+v", first.Box)
	}
	added, ed := rec.Text[1], rec.Text[2]
	if added.Text != "Add" || added.Color != (Color{0, 0.5, 0}) {
		t.Fatalf("added = %+v", added)
	}
	if ed.Text != "ed" || !near(ed.Origin.X, 72+17.79+3) {
		t.Fatalf("kerned chunk = %+v", ed)
	}
	form := rec.Text[3]
	if form.Text != "form" || !near(form.Origin.X, 20) || !near(form.Size, 10) {
		t.Fatalf("form text = %+v", form)
	}

	if len(rec.Segments) != 2 {
		t.Fatalf("segments = %+v", rec.Segments)
	}
	rule := rec.Segments[0]
	if !rule.Filled || !rule.Horizontal() || !near(rule.From.Y, 703.4) || !near(rule.To.X, 172) || !near(rule.Width, 0.8) {
		t.Fatalf("rule = %+v", rule)
	}
	stroke := rec.Segments[1]
	if stroke.Filled || stroke.Color != (Color{1, 0, 0}) || !near(stroke.Width, 2) {
		t.Fatalf("stroke = %+v", stroke)
	}
}

func TestFormDepthLimit(t *testing.T) {
	content := []byte("BT /F1 10 Tf 72 700 Td (page) Tj ET /Fm1 Do")
	rec := &Recorder{}
	if err := New(testDoc(t), WithMaxDepth(0)).Run(context.Background(), content, resources(), coords.Identity(), rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.Text) != 1 || rec.Text[0].Text != "page" {
		t.Fatalf("form should not be entered at depth 0: %+v", rec.Text)
	}
	rec = &Recorder{}
	if err := New(testDoc(t), WithMaxDepth(1)).Run(context.Background(), content, resources(), coords.Identity(), rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.Text) != 2 || rec.Text[1].Text != "form" {
		t.Fatalf("form text missing at depth 1: %+v", rec.Text)
	}
}

func TestTextPositioningOperators(t *testing.T) {
	content := []byte(`BT /F1 10 Tf 14 TL 50 500 Td (one) Tj T* (two) Tj (three) ' 2 1 (four) " 3 Tr 0 -20 TD (five) Tj ET`)
	rec := &Recorder{}
	if err := New(testDoc(t)).Run(context.Background(), content, resources(), coords.Identity(), rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantY := []float64{500, 486, 472, 458, 438}
	if len(rec.Text) != len(wantY) {
		t.Fatalf("events = %d", len(rec.Text))
	}
	for i, y := range wantY {
		if !near(rec.Text[i].Origin.Y, y) || !near(rec.Text[i].Origin.X, 50) {
			t.Fatalf("event %d origin = %+v, want y %v", i, rec.Text[i].Origin, y)
		}
	}
	if rec.Text[4].Mode != TextInvisible {
		t.Fatalf("render mode = %v", rec.Text[4].Mode)
	}
	// "four" is shown with Tw 2 and Tc 1: 4 glyphs add 4pt of char spacing.
	four := rec.Text[3]
	if !near(four.End.X-four.Origin.X, 0.001*10*(278+556+556+333)+4) {
		t.Fatalf("four width = %v", four.End.X-four.Origin.X)
	}
}

func TestInlineImage(t *testing.T) {
	content := []byte("q 10 0 0 5 50 50 cm BI /W 2 /H 1 /BPC 8 /CS /G /F /AHx ID 00FF> EI Q")
	rec := &Recorder{}
	if err := New(testDoc(t)).Run(context.Background(), content, resources(), coords.Identity(), rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.Images) != 1 {
		t.Fatalf("images = %d", len(rec.Images))
	}
	img := rec.Images[0]
	if !img.Inline || string(img.Data) != "00FF>" {
		t.Fatalf("image = %+v", img)
	}
	if w, _ := img.Dict.Int("Width"); w != 2 {
		t.Fatalf("width = %d", w)
	}
	if cs, _ := img.Dict.Name("ColorSpace"); cs != "DeviceGray" {
		t.Fatalf("colour space = %s", cs)
	}
	if f, _ := img.Dict.Name("Filter"); f != "ASCIIHexDecode" {
		t.Fatalf("filter = %s", f)
	}
	if img.Box != (coords.Rect{LLX: 50, LLY: 50, URX: 60, URY: 55}) {
		t.Fatalf("box = %+v", img.Box)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(testDoc(t)).Run(ctx, []byte("BT ET"), resources(), coords.Identity(), &Recorder{})
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDisplayMatrix(t *testing.T) {
	p := &parser.Page{CropBox: coords.Rect{URX: 612, URY: 792}, Rotate: 90}
	got := DisplayMatrix(p).Transform(coords.Point{X: 0, Y: 792})
	if !near(got.X, 792) || !near(got.Y, 612) {
		t.Fatalf("top-left maps to %+v", got)
	}
	if w, h := DisplaySize(p); w != 792 || h != 612 {
		t.Fatalf("display size = %v x %v", w, h)
	}
	p.Rotate = 0
	p.CropBox = coords.Rect{LLX: 10, LLY: 20, URX: 110, URY: 220}
	if got := DisplayMatrix(p).Transform(coords.Point{X: 10, Y: 20}); got != (coords.Point{}) {
		t.Fatalf("origin maps to %+v", got)
	}
}

func TestColorConversion(t *testing.T) {
	if CMYK(0, 0, 0, 1) != Black {
		t.Fatalf("k=1 should be black")
	}
	if CMYK(1, 0, 1, 0) != (Color{0, 1, 0}) {
		t.Fatalf("cmyk green = %+v", CMYK(1, 0, 1, 0))
	}
	prev := Color{0.2, 0.2, 0.2}
	if FromComponents([]float64{1, 2}, prev) != prev {
		t.Fatalf("two components keep the previous colour")
	}
	if spaceColor([]float64{1}, spaceTint, prev) != Black {
		t.Fatalf("full tint should be black")
	}
}
