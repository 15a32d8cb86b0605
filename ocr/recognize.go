package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/extractor"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine Engine = noopEngine{}
)

// DefaultEngine returns the engine registered by SetDefaultEngine, or an
// engine that recognises nothing.
func DefaultEngine() Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefaultEngine replaces the default engine. A nil engine restores the
// no-op engine.
func SetDefaultEngine(engine Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if engine == nil {
		engine = noopEngine{}
	}
	defaultEngine = engine
}

// RecognizeAssets converts image assets to OCR inputs and invokes the provided
// engine. Batch engines get every input in one call; otherwise calls run
// sequentially.
func RecognizeAssets(ctx context.Context, engine Engine, assets []extractor.ImageAsset, opts ...InputOption) ([]Input, []Result, error) {
	inputs := make([]Input, 0, len(assets))
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		in, err := InputFromImageAsset(asset, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("build input for %s: %w", asset.Name, err)
		}
		inputs = append(inputs, in)
	}
	if b, ok := engine.(BatchEngine); ok {
		results, err := b.RecognizeBatch(ctx, inputs)
		return inputs, results, err
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return inputs, results, nil
}

// RecognizePages runs OCR over the images painted on the given pages and
// returns the recognised lines ordered by page, then top to bottom.
func RecognizePages(ctx context.Context, engine Engine, assets []extractor.ImageAsset, pages []int, opts ...InputOption) ([]extractor.Line, error) {
	want := make(map[int]bool, len(pages))
	for _, p := range pages {
		want[p] = true
	}
	var selected []extractor.ImageAsset
	for _, a := range assets {
		if want[a.Page] {
			selected = append(selected, a)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}
	inputs, results, err := RecognizeAssets(ctx, engine, selected, opts...)
	if err != nil {
		return nil, err
	}
	byPage := make(map[int][]extractor.Line)
	for i, res := range results {
		if i >= len(inputs) {
			break
		}
		in := inputs[i]
		byPage[in.Page] = append(byPage[in.Page], Lines(in, res)...)
	}
	var out []extractor.Line
	for _, p := range pages {
		lines := byPage[p]
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Baseline > lines[j].Baseline })
		for i := range lines {
			lines[i].Index = i
		}
		out = append(out, lines...)
	}
	return out, nil
}

// Lines maps a result back onto the page the input came from. Lines without
// bounds are stacked evenly over the image box.
func Lines(in Input, res Result) []extractor.Line {
	var texts []TextLine
	for _, b := range res.Blocks {
		for _, l := range b.Lines {
			if strings.TrimSpace(l.Text) != "" {
				texts = append(texts, l)
			}
		}
	}
	if len(texts) == 0 {
		for _, s := range strings.Split(res.PlainText, "\n") {
			if strings.TrimSpace(s) != "" {
				texts = append(texts, TextLine{Text: s})
			}
		}
	}
	if len(texts) == 0 {
		return nil
	}
	w, h := float64(in.Width), float64(in.Height)
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	box := in.Box
	if box.Empty() {
		box = coords.Rect{URX: w, URY: h}
	}
	sx, sy := box.Width()/w, box.Height()/h
	step := h / float64(len(texts))
	out := make([]extractor.Line, 0, len(texts))
	for i, t := range texts {
		r := t.Bounds
		if r.IsEmpty() {
			r = Region{X: 0, Y: float64(i) * step, Width: w, Height: step}
		}
		rect := coords.Rect{
			LLX: box.LLX + r.X*sx,
			URX: box.LLX + (r.X+r.Width)*sx,
			URY: box.URY - r.Y*sy,
			LLY: box.URY - (r.Y+r.Height)*sy,
		}
		text := strings.Join(strings.Fields(t.Text), " ")
		out = append(out, extractor.Line{
			Page:     in.Page,
			Index:    i,
			Baseline: rect.LLY,
			Box:      rect,
			Spans:    []extractor.Span{{Text: text, Size: rect.Height(), Box: rect}},
		})
	}
	return out
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(_ context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
