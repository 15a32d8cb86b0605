package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"

	"github.com/wudi/charterkit/extractor"
	"golang.org/x/image/draw"
)

// MaxUpscale bounds the factor applied when raising an image to TargetDPI.
const MaxUpscale = 4.0

// InputOption mutates an OCR input generated from a PDF image asset.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the effective DPI computed from the page.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithTargetDPI asks for low-resolution scans to be upscaled before
// recognition.
func WithTargetDPI(dpi int) InputOption {
	return func(in *Input) { in.TargetDPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// WithTesseractPSM sets the Tesseract page segmentation mode.
func WithTesseractPSM(mode int) InputOption {
	return withVariable("tessedit_pageseg_mode", strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to the provided characters.
func WithTesseractWhitelist(chars string) InputOption {
	return withVariable("tessedit_char_whitelist", chars)
}

func withVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}

// InputFromImageAsset converts a page image into an OCR input. JPEG data is
// passed through untouched; everything else is encoded as PNG. The ID is
// stable for the resource name on a page.
func InputFromImageAsset(asset extractor.ImageAsset, opts ...InputOption) (Input, error) {
	in := Input{
		ID:     fmt.Sprintf("page-%d-%s", asset.Page, asset.Name),
		Page:   asset.Page,
		Box:    asset.Box,
		Width:  asset.Width,
		Height: asset.Height,
		DPI:    EffectiveDPI(asset),
	}
	if asset.Filter == "DCTDecode" && len(asset.Data) > 0 {
		in.Image, in.Format = asset.Data, ImageFormatJPEG
	} else {
		data, err := asset.ToPNG()
		if err != nil {
			return Input{}, fmt.Errorf("encode image asset: %w", err)
		}
		in.Image, in.Format = data, ImageFormatPNG
	}
	for _, opt := range opts {
		opt(&in)
	}
	if in.TargetDPI > 0 && in.DPI > 0 && in.DPI < in.TargetDPI {
		if err := upscale(&in); err != nil {
			return Input{}, fmt.Errorf("upscale %s: %w", in.ID, err)
		}
	}
	return in, nil
}

// EffectiveDPI is the resolution at which the asset is painted, taken from
// its width against the width of its box in points. Zero when unknown.
func EffectiveDPI(asset extractor.ImageAsset) int {
	w := asset.Box.Width()
	if w <= 0 || asset.Width <= 0 {
		return 0
	}
	return int(math.Round(float64(asset.Width) * 72 / w))
}

func upscale(in *Input) error {
	src, err := decode(in.Image, in.Format)
	if err != nil {
		return err
	}
	factor := math.Min(float64(in.TargetDPI)/float64(in.DPI), MaxUpscale)
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w <= b.Dx() || h <= b.Dy() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return err
	}
	if in.Region != nil {
		r := *in.Region
		in.Region = &Region{X: r.X * factor, Y: r.Y * factor, Width: r.Width * factor, Height: r.Height * factor}
	}
	in.Image, in.Format = buf.Bytes(), ImageFormatPNG
	in.Width, in.Height = w, h
	in.DPI = int(math.Round(float64(in.DPI) * factor))
	return nil
}

func decode(data []byte, format ImageFormat) (image.Image, error) {
	switch format {
	case ImageFormatJPEG:
		return jpeg.Decode(bytes.NewReader(data))
	case ImageFormatPNG:
		return png.Decode(bytes.NewReader(data))
	}
	return nil, errors.New("unknown image format " + string(format))
}
