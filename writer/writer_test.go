package writer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wudi/charterkit/builder"
	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/parser"
	"github.com/wudi/charterkit/security"
)

var green = builder.MustHex("#008000")

func recapDocument(t *testing.T, enc *security.Params) *semantic.Document {
	t.Helper()
	b := builder.NewBuilder().
		SetInfo(&semantic.DocumentInfo{
			Title:        "Recap – Été",
			Producer:     "charterkit",
			CreationDate: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		}).
		SetLanguage("en")
	if enc != nil {
		b.SetEncryption(*enc)
	}
	b.NewPage(612, 792).
		DrawText("Clause 1. Ice", 72, 700, builder.TextOptions{Font: "Helvetica-Bold", FontSize: 11}).
		DrawText("1 Vessel not to force ice", 72, 680, builder.TextOptions{FontSize: 10, Strike: true}).
		DrawText("2 Vessel may follow icebreakers", 72, 660, builder.TextOptions{FontSize: 10, Color: green}).
		DrawText("3 Owners (to be) notified", 72, 640, builder.TextOptions{FontSize: 10}).
		AddAnnotation(semantic.NewStrikeOut(semantic.Rectangle{LLX: 70, LLY: 636, URX: 200, URY: 650}, "struck by charterers")).
		AddAnnotation(semantic.NewLink(semantic.Rectangle{LLX: 72, LLY: 20, URX: 200, URY: 40}, "https://example.com/recap")).
		Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return doc
}

func write(t *testing.T, doc *semantic.Document, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := New().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func extract(t *testing.T, data []byte, password string) (*extractor.Extractor, []extractor.Line) {
	t.Helper()
	pdoc, err := parser.OpenBytes(context.Background(), data, parser.Config{Password: password})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ex, err := extractor.New(pdoc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	lines, err := ex.ExtractLines(context.Background())
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	return ex, lines
}

func TestWriteRoundTripMarks(t *testing.T) {
	data := write(t, recapDocument(t, nil), Config{Deterministic: true})
	if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) || !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Fatalf("missing header or trailer marker")
	}
	ex, lines := extract(t, data, "")
	if len(lines) != 4 {
		t.Fatalf("lines = %d: %+v", len(lines), lines)
	}
	if lines[0].Text() != "Clause 1. Ice" || !lines[0].Spans[0].Bold {
		t.Fatalf("heading = %q bold=%v", lines[0].Text(), lines[0].Spans[0].Bold)
	}
	if !lines[1].Struck() || lines[1].Added() {
		t.Fatalf("line 1 should be struck: %+v", lines[1])
	}
	if !lines[2].Added() || lines[2].Struck() {
		t.Fatalf("line 2 should be green: %+v", lines[2])
	}
	if lines[3].Text() != "3 Owners (to be) notified" {
		t.Fatalf("escaped parentheses lost: %q", lines[3].Text())
	}
	if !lines[3].Struck() {
		t.Fatalf("StrikeOut annotation should strike line 3")
	}

	meta, err := ex.ExtractMetadata(context.Background())
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Info.Title != "Recap – Été" || meta.Lang != "en" || meta.Version != "1.7" {
		t.Fatalf("metadata = %+v", meta)
	}
	if !strings.HasPrefix(meta.Info.CreationDate, "D:20260301093000") {
		t.Fatalf("creation date = %q", meta.Info.CreationDate)
	}
	annots, err := ex.ExtractAnnotations()
	if err != nil {
		t.Fatalf("annotations: %v", err)
	}
	if len(annots) != 2 || annots[0].Contents != "struck by charterers" || annots[1].URI != "https://example.com/recap" {
		t.Fatalf("annotations = %+v", annots)
	}
}

func TestWriteDeterministic(t *testing.T) {
	a := write(t, recapDocument(t, nil), Config{Deterministic: true})
	b := write(t, recapDocument(t, nil), Config{Deterministic: true})
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic output differs")
	}
	plain := write(t, recapDocument(t, nil), Config{ContentFilter: FilterNone, Deterministic: true})
	if !bytes.Contains(plain, []byte("(Clause 1. Ice) Tj")) {
		t.Fatalf("uncompressed content not found")
	}
	if bytes.Contains(a, []byte("(Clause 1. Ice) Tj")) {
		t.Fatalf("content should be Flate-compressed by default")
	}
}

func TestWriteEncrypted(t *testing.T) {
	for _, rev := range []int{4, 6} {
		data := write(t, recapDocument(t, &security.Params{UserPassword: "pw", Revision: rev}), Config{})
		if _, err := parser.OpenBytes(context.Background(), data, parser.Config{Password: "wrong"}); !errors.Is(err, parser.ErrEncrypted) {
			t.Fatalf("R%d: expected ErrEncrypted, got %v", rev, err)
		}
		ex, lines := extract(t, data, "pw")
		if len(lines) != 4 || lines[0].Text() != "Clause 1. Ice" {
			t.Fatalf("R%d: lines = %+v", rev, lines)
		}
		meta, _ := ex.ExtractMetadata(context.Background())
		if !meta.Encrypted || meta.Info.Title != "Recap – Été" {
			t.Fatalf("R%d: metadata = %+v", rev, meta)
		}
	}
}

func TestWriteRejectsEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	if err := New().Write(context.Background(), &semantic.Document{}, &buf, Config{}); err == nil {
		t.Fatalf("expected error for a document without pages")
	}
}

type countingInterceptor struct {
	objects int
	bytes   int64
}

func (c *countingInterceptor) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error {
	c.objects++
	return nil
}

func (c *countingInterceptor) AfterWrite(_ context.Context, _ raw.ObjectRef, n int64) error {
	c.bytes += n
	return nil
}

func TestInterceptorSeesEveryObject(t *testing.T) {
	ic := &countingInterceptor{}
	w := (&WriterBuilder{}).WithInterceptor(ic).Build()
	var buf bytes.Buffer
	if err := w.Write(context.Background(), recapDocument(t, nil), &buf, Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// catalog, pages, content, page, two annotations, two fonts, info
	if ic.objects != 9 {
		t.Fatalf("objects = %d", ic.objects)
	}
	if ic.bytes <= 0 || ic.bytes >= int64(buf.Len()) {
		t.Fatalf("bytes = %d of %d", ic.bytes, buf.Len())
	}
}

func TestSerializeHelpers(t *testing.T) {
	cases := map[float64]string{1: "1", 0.5: "0.5", -0.00001: "0", 1e-7: "0", 612.123456: "612.1235"}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Fatalf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
	if got := pdfNameLiteral("Helvetica Bold#1"); got != "Helvetica#20Bold#231" {
		t.Fatalf("name = %q", got)
	}
	w := encodeCIDWidths(map[int]int{3: 500, 4: 500, 5: 600, 9: 600})
	got := string(serializePrimitive(w))
	if got != "[3 4 500 5 5 600 9 9 600]" {
		t.Fatalf("widths = %s", got)
	}
	if s := string(escapeLiteralString([]byte("a(b)\\\n\x01"))); s != `(a\(b\)\\\n\001)` {
		t.Fatalf("escaped = %s", s)
	}
}
