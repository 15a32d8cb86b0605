// Package tesseract provides the Tesseract OCR engine through gosseract.
// Importing it registers the engine as the ocr default.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/charterkit/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// Engine implements ocr.Engine and ocr.BatchEngine on libtesseract.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	return e.recognize(ctx, c, in)
}

// RecognizeBatch processes inputs sequentially with a fresh client each, so
// variables set for one page never leak into the next.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognize(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	img, offset, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		boxes = nil
	}
	return ocr.Result{
		InputID:   in.ID,
		PlainText: strings.TrimSpace(text),
		Blocks:    blocks(boxes, offset),
		Language:  firstLanguage(in.Languages),
	}, nil
}

type lineKey struct{ block, par, line int }

// blocks groups word boxes into lines and blocks in reading order.
func blocks(boxes []gosseract.BoundingBox, offset image.Point) []ocr.TextBlock {
	var out []ocr.TextBlock
	blockAt := make(map[int]int)
	lineAt := make(map[lineKey]int)
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		w := ocr.TextWord{
			Text: word,
			Bounds: ocr.Region{
				X:      float64(b.Box.Min.X + offset.X),
				Y:      float64(b.Box.Min.Y + offset.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
			Confidence: b.Confidence / 100,
		}
		bi, ok := blockAt[b.BlockNum]
		if !ok {
			bi = len(out)
			blockAt[b.BlockNum] = bi
			out = append(out, ocr.TextBlock{})
		}
		k := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		li, ok := lineAt[k]
		if !ok {
			li = len(out[bi].Lines)
			lineAt[k] = li
			out[bi].Lines = append(out[bi].Lines, ocr.TextLine{})
		}
		l := &out[bi].Lines[li]
		l.Words = append(l.Words, w)
		l.Bounds = l.Bounds.Union(w.Bounds)
	}
	for bi := range out {
		blk := &out[bi]
		texts := make([]string, 0, len(blk.Lines))
		var conf float64
		for li := range blk.Lines {
			l := &blk.Lines[li]
			words := make([]string, len(l.Words))
			var sum float64
			for i, w := range l.Words {
				words[i] = w.Text
				sum += w.Confidence
			}
			l.Text = strings.Join(words, " ")
			l.Confidence = sum / float64(len(l.Words))
			texts = append(texts, l.Text)
			blk.Bounds = blk.Bounds.Union(l.Bounds)
			conf += l.Confidence
		}
		blk.Text = strings.Join(texts, "\n")
		if len(blk.Lines) > 0 {
			blk.Confidence = conf / float64(len(blk.Lines))
		}
	}
	return out
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// cropImage cuts region out of data and returns the crop's offset in the
// original image.
func cropImage(data []byte, region *ocr.Region) ([]byte, image.Point, error) {
	if region == nil || region.IsEmpty() {
		return data, image.Point{}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, image.Point{}, errors.New("region outside image bounds")
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, image.Point{}, errors.New("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), rect.Min.Sub(img.Bounds().Min), nil
}
