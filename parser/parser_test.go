package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/security"
)

// fixture assembles numbered object bodies into a PDF with a classic xref.
type fixture struct {
	objs    []string
	trailer string
}

func (f fixture) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.6\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(f.objs))
	for i, body := range f.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(f.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s >>\nstartxref\n%d\n%%%%EOF\n", len(f.objs)+1, f.trailer, xrefAt)
	return buf.Bytes()
}

func open(t *testing.T, data []byte, cfg Config) *Document {
	t.Helper()
	doc, err := Open(context.Background(), bytes.NewReader(data), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func treeFixture() fixture {
	return fixture{
		objs: []string{
			"<< /Type /Catalog /Pages 2 0 R /PageLabels << /Nums [0 << /S /r >> 2 << /S /D /P (A-) /St 5 >>] >> >>",
			"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 3 /MediaBox [0 0 595 842] /Resources << /Font << /F1 7 0 R >> >> /Rotate 90 >>",
			"<< /Type /Page /Parent 2 0 R >>",
			"<< /Type /Pages /Parent 2 0 R /Kids [5 0 R 6 0 R] /Count 2 /MediaBox [0 0 612 792] >>",
			"<< /Type /Page /Parent 4 0 R /Rotate -90 >>",
			"<< /Type /Page /Parent 4 0 R /Resources << >> >>",
			"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
			"<< /Title (Recap) /Author <FEFF00C9> >>",
		},
		trailer: "/Info 8 0 R",
	}
}

func TestPagesInheritance(t *testing.T) {
	doc := open(t, treeFixture().bytes(), Config{})
	pages, err := doc.Pages()
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("page count = %d", len(pages))
	}
	if pages[0].MediaBox.URX != 595 || pages[0].Rotate != 90 {
		t.Fatalf("page 1 = %+v", pages[0])
	}
	if pages[1].MediaBox.URX != 612 || pages[1].Rotate != 270 {
		t.Fatalf("page 2 = %+v", pages[1])
	}
	if _, ok := pages[1].Resources.Dict("Font"); !ok {
		t.Fatalf("page 2 should inherit font resources")
	}
	if _, ok := pages[2].Resources.Dict("Font"); ok {
		t.Fatalf("page 3 overrides resources")
	}
	if pages[2].Number != 3 || pages[2].Ref.Num != 6 {
		t.Fatalf("page 3 identity = %d %v", pages[2].Number, pages[2].Ref)
	}
}

func TestInfoAndLabels(t *testing.T) {
	doc := open(t, treeFixture().bytes(), Config{})
	info, err := doc.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Title != "Recap" || info.Author != "É" {
		t.Fatalf("info = %+v", info)
	}
	labels, err := doc.PageLabels()
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	want := []string{"i", "ii", "A-5"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
	if doc.Version() != "1.6" {
		t.Fatalf("version = %q", doc.Version())
	}
}

func TestStreamDecoding(t *testing.T) {
	content := []byte("BT /F1 12 Tf (Clause 1.) Tj ET")
	enc, _ := filters.FlateEncode(content)
	f := fixture{objs: []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
		fmt.Sprintf("<< /Length 4 0 R /Filter [/FlateDecode] >>\nstream\n%s\nendstream", enc),
		fmt.Sprintf("%d", len(enc)),
	}}
	doc := open(t, f.bytes(), Config{})
	got, img, err := doc.Stream(context.Background(), raw.Ref(3, 0))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if img != "" || !bytes.Equal(got, content) {
		t.Fatalf("stream = %q (%s)", got, img)
	}
}

func TestObjectStream(t *testing.T) {
	inner := "<< /Type /Pages /Kids [] /Count 0 >> (charterer)"
	header := "2 0 3 37 "
	payload := header + inner
	f := fixture{objs: []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}}
	// Build with an xref stream so objects 2 and 3 are compressed in 4.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	catOff := buf.Len()
	fmt.Fprintf(&buf, "1 0 obj\n%s\nendobj\n", f.objs[0])
	stmOff := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(header), len(payload), payload)
	xrefAt := buf.Len()
	rows := []byte{
		0, 0, 0, 0,
		1, byte(catOff >> 8), byte(catOff), 0,
		2, 0, 4, 0,
		2, 0, 4, 1,
		1, byte(stmOff >> 8), byte(stmOff), 0,
		1, byte(xrefAt >> 8), byte(xrefAt), 0,
	}
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefAt)

	doc := open(t, buf.Bytes(), Config{})
	obj, err := doc.Object(raw.ObjectRef{Num: 3})
	if err != nil {
		t.Fatalf("object 3: %v", err)
	}
	if s, ok := obj.(raw.StringObj); !ok || string(s.Bytes) != "charterer" {
		t.Fatalf("object 3 = %#v", obj)
	}
	pages, err := doc.Pages()
	if err != nil || len(pages) != 0 {
		t.Fatalf("pages = %v %v", pages, err)
	}
}

func TestEncryptedDocument(t *testing.T) {
	id := []byte("charterkit-id-01")
	encDict, h, err := security.Setup(security.Params{UserPassword: "pw", Revision: 4}, id)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	title, _ := h.EncryptString(raw.ObjectRef{Num: 3}, []byte("Secret Recap"))
	o, _ := encDict.String("O")
	u, _ := encDict.String("U")
	encBody := fmt.Sprintf("<< /Filter /Standard /V 4 /R 4 /Length 128 /P %d /O <%x> /U <%x> /CF << /StdCF << /CFM /AESV2 /Length 16 >> >> /StmF /StdCF /StrF /StdCF >>",
		security.DefaultPermissions, o, u)
	f := fixture{
		objs: []string{
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [] /Count 0 >>",
			fmt.Sprintf("<< /Title <%x> >>", title),
			encBody,
		},
		trailer: fmt.Sprintf("/Info 3 0 R /Encrypt 4 0 R /ID [<%x> <%x>]", id, id),
	}
	data := f.bytes()

	if _, err := Open(context.Background(), bytes.NewReader(data), Config{Password: "nope"}); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	doc := open(t, data, Config{Password: "pw"})
	if !doc.Encrypted() {
		t.Fatalf("document should report encryption")
	}
	info, err := doc.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Title != "Secret Recap" {
		t.Fatalf("title = %q", info.Title)
	}
}

func TestRepairOnBrokenXref(t *testing.T) {
	data := treeFixture().bytes()
	broken := bytes.Replace(data, []byte("xref\n0 9"), []byte("xref\n0 X"), 1)
	doc := open(t, broken, Config{})
	if !doc.Repaired() {
		t.Fatalf("expected repaired document")
	}
	pages, err := doc.Pages()
	if err != nil || len(pages) != 3 {
		t.Fatalf("pages after repair = %d %v", len(pages), err)
	}
	if _, err := Open(context.Background(), bytes.NewReader(broken), Config{DisableRepair: true}); err == nil {
		t.Fatalf("expected failure with repair disabled")
	}
}

func TestNotPDF(t *testing.T) {
	_, err := Open(context.Background(), bytes.NewReader([]byte("hello world")), Config{})
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestFormatLabel(t *testing.T) {
	cases := map[string]string{"R:4": "IV", "r:9": "ix", "A:28": "BB", "a:1": "a", "D:12": "12"}
	for in, want := range cases {
		var n int
		fmt.Sscanf(in[2:], "%d", &n)
		if got := formatLabel(in[:1], n); got != want {
			t.Fatalf("formatLabel(%s) = %q, want %q", in, got, want)
		}
	}
}
