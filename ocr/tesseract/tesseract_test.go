package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/charterkit/ocr"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestBlocksGroupsWordsIntoLines(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 10, 60, 30), Word: "Clause", Confidence: 90, BlockNum: 1, ParNum: 1, LineNum: 1},
		{Box: image.Rect(70, 10, 90, 30), Word: "1.", Confidence: 80, BlockNum: 1, ParNum: 1, LineNum: 1},
		{Box: image.Rect(10, 40, 20, 60), Word: "1", Confidence: 70, BlockNum: 1, ParNum: 1, LineNum: 2},
		{Box: image.Rect(10, 100, 50, 120), Word: " ", BlockNum: 2, ParNum: 1, LineNum: 1},
	}
	got := blocks(boxes, image.Pt(5, 0))
	if len(got) != 1 {
		t.Fatalf("blocks = %d", len(got))
	}
	b := got[0]
	if len(b.Lines) != 2 || b.Lines[0].Text != "Clause 1." || b.Text != "Clause 1.\n1" {
		t.Fatalf("block = %+v", b)
	}
	first := b.Lines[0]
	if first.Bounds != (ocr.Region{X: 15, Y: 10, Width: 80, Height: 20}) {
		t.Fatalf("line bounds = %+v", first.Bounds)
	}
	if c := first.Confidence; c < 0.849 || c > 0.851 {
		t.Fatalf("line confidence = %v", c)
	}
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
	d.DrawString("Hello Charter")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	in := ocr.Input{ID: "page-1-Im1", Image: buf.Bytes(), Format: ocr.ImageFormatPNG, Width: 200, Height: 80, Languages: []string{"eng"}, DPI: 300}
	res, err := New().Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "charter") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Blocks) == 0 || len(res.Blocks[0].Lines) == 0 {
		t.Fatalf("expected structured blocks")
	}
	if res.InputID != "page-1-Im1" || res.Language != "eng" {
		t.Fatalf("unexpected result identity: %+v", res)
	}
}

func TestRegistersDefaultEngine(t *testing.T) {
	if ocr.DefaultEngine().Name() != "tesseract" {
		t.Fatalf("default engine = %s", ocr.DefaultEngine().Name())
	}
}
