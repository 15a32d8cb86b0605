package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"reflect"
	"testing"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/extractor"
)

func grayAsset(page, w, h int, box coords.Rect) extractor.ImageAsset {
	return extractor.ImageAsset{
		Page:             page,
		Name:             "Im1",
		Width:            w,
		Height:           h,
		BitsPerComponent: 8,
		ColorSpace:       "DeviceGray",
		Box:              box,
		Data:             bytes.Repeat([]byte{0xFF}, w*h),
	}
}

func TestInputFromImageAsset(t *testing.T) {
	asset := grayAsset(2, 72, 10, coords.Rect{URX: 72, URY: 10})
	region := Region{X: 0, Y: 0, Width: 1, Height: 1}
	meta := map[string]string{"psm": "6"}

	in, err := InputFromImageAsset(
		asset,
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithDPI(300),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("InputFromImageAsset() error = %v", err)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("unexpected format: %v", in.Format)
	}
	if in.Page != 2 || in.ID != "page-2-Im1" {
		t.Fatalf("unexpected identity: %d %s", in.Page, in.ID)
	}
	if _, err := png.Decode(bytes.NewReader(in.Image)); err != nil {
		t.Fatalf("image is not PNG: %v", err)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "spa"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.Region == nil || *in.Region != region {
		t.Fatalf("unexpected region: %#v", in.Region)
	}
	if in.DPI != 300 {
		t.Fatalf("unexpected dpi: %d", in.DPI)
	}
	meta["psm"] = "7"
	if in.Metadata["psm"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestInputPassesJPEGThrough(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	asset := extractor.ImageAsset{Page: 1, Name: "Scan", Width: 8, Height: 8, Filter: "DCTDecode", Data: buf.Bytes()}
	in, err := InputFromImageAsset(asset)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.Format != ImageFormatJPEG || !bytes.Equal(in.Image, buf.Bytes()) {
		t.Fatalf("JPEG data should pass through unchanged")
	}
	if in.DPI != 0 {
		t.Fatalf("dpi without a box should be unknown, got %d", in.DPI)
	}
}

func TestUpscaleToTargetDPI(t *testing.T) {
	// 100 pixels across 72pt is 100 dpi.
	asset := grayAsset(1, 100, 50, coords.Rect{URX: 72, URY: 36})
	if dpi := EffectiveDPI(asset); dpi != 100 {
		t.Fatalf("effective dpi = %d", dpi)
	}
	in, err := InputFromImageAsset(asset, WithTargetDPI(300), WithRegion(Region{X: 10, Y: 10, Width: 20, Height: 10}))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.Width != 300 || in.Height != 150 || in.DPI != 300 {
		t.Fatalf("upscaled to %dx%d at %d dpi", in.Width, in.Height, in.DPI)
	}
	img, err := png.Decode(bytes.NewReader(in.Image))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 150 {
		t.Fatalf("image bounds = %v", b)
	}
	if in.Region.X != 30 || in.Region.Width != 60 {
		t.Fatalf("region not rescaled: %+v", *in.Region)
	}

	capped, err := InputFromImageAsset(grayAsset(1, 10, 10, coords.Rect{URX: 72, URY: 72}), WithTargetDPI(300))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if capped.Width != 40 {
		t.Fatalf("upscale factor should be capped, width = %d", capped.Width)
	}

	same, err := InputFromImageAsset(asset, WithTargetDPI(72))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if same.Width != 100 {
		t.Fatalf("high-resolution images must not be scaled, width = %d", same.Width)
	}
}

func TestWithRegionClearsEmpty(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Fatalf("expected nil region for empty input, got %#v", in.Region)
	}
}

func TestTesseractOptions(t *testing.T) {
	in := Input{}
	WithTesseractPSM(6)(&in)
	if got := in.Metadata["tessedit_pageseg_mode"]; got != "6" {
		t.Fatalf("expected PSM to be set, got %q", got)
	}
	WithTesseractWhitelist("ABC")(&in)
	if got := in.Metadata["tessedit_char_whitelist"]; got != "ABC" {
		t.Fatalf("expected whitelist to be set, got %q", got)
	}
}

func TestLinesMapsPixelsToPage(t *testing.T) {
	in := Input{Page: 3, Width: 200, Height: 100, Box: coords.Rect{LLX: 100, LLY: 100, URX: 300, URY: 200}}
	res := Result{Blocks: []TextBlock{{Lines: []TextLine{
		{Text: "Clause 1.  Vessel", Bounds: Region{X: 10, Y: 10, Width: 100, Height: 20}},
		{Text: "   "},
	}}}}
	lines := Lines(in, res)
	if len(lines) != 1 {
		t.Fatalf("lines = %d", len(lines))
	}
	l := lines[0]
	if l.Page != 3 || l.Text() != "Clause 1. Vessel" {
		t.Fatalf("line = %+v", l)
	}
	want := coords.Rect{LLX: 110, LLY: 170, URX: 210, URY: 190}
	if l.Box != want || l.Baseline != 170 {
		t.Fatalf("box = %+v, baseline %v", l.Box, l.Baseline)
	}
	if l.Struck() || l.Added() || l.Mixed() {
		t.Fatalf("OCR lines carry no amendment marks")
	}
}

func TestLinesFromPlainText(t *testing.T) {
	in := Input{Page: 1, Width: 10, Height: 10, Box: coords.Rect{URX: 100, URY: 100}}
	lines := Lines(in, Result{PlainText: "first\n\nsecond"})
	if len(lines) != 2 || lines[0].Text() != "first" || lines[1].Text() != "second" {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].Baseline <= lines[1].Baseline {
		t.Fatalf("plain text lines should stack top to bottom")
	}
}

type fakeEngine struct {
	calls []string
	text  map[string]string
	err   error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, in Input) (Result, error) {
	f.calls = append(f.calls, in.ID)
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{InputID: in.ID, PlainText: f.text[in.ID]}, nil
}

func TestRecognizePages(t *testing.T) {
	box := coords.Rect{URX: 612, URY: 792}
	a1 := grayAsset(1, 4, 4, box)
	a2 := grayAsset(2, 4, 4, box)
	eng := &fakeEngine{text: map[string]string{
		"page-1-Im1": "Part I",
		"page-2-Im1": "Clause 1. Vessel\n1 The vessel shall",
	}}
	lines, err := RecognizePages(context.Background(), eng, []extractor.ImageAsset{a1, a2}, []int{2})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if !reflect.DeepEqual(eng.calls, []string{"page-2-Im1"}) {
		t.Fatalf("engine calls = %v", eng.calls)
	}
	if len(lines) != 2 || lines[0].Text() != "Clause 1. Vessel" || lines[1].Index != 1 {
		t.Fatalf("lines = %+v", lines)
	}

	eng.err = errors.New("engine down")
	if _, err := RecognizePages(context.Background(), eng, []extractor.ImageAsset{a1}, []int{1}); !errors.Is(err, eng.err) {
		t.Fatalf("expected wrapped engine error, got %v", err)
	}
}

func TestRecognizeAssetsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := RecognizeAssets(ctx, &fakeEngine{}, []extractor.ImageAsset{grayAsset(1, 2, 2, coords.Rect{})})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultEngine(t *testing.T) {
	prev := DefaultEngine()
	t.Cleanup(func() { SetDefaultEngine(prev) })
	SetDefaultEngine(nil)
	if DefaultEngine().Name() != "noop" {
		t.Fatalf("nil engine should restore noop")
	}
	eng := &fakeEngine{}
	SetDefaultEngine(eng)
	if DefaultEngine() != Engine(eng) {
		t.Fatalf("default engine not replaced")
	}
}

func TestRegionUnion(t *testing.T) {
	r := Region{}.Union(Region{X: 1, Y: 1, Width: 2, Height: 2})
	r = r.Union(Region{X: 5, Y: 0, Width: 1, Height: 1})
	if r != (Region{X: 1, Y: 0, Width: 5, Height: 3}) {
		t.Fatalf("union = %+v", r)
	}
}
