// Package extractor turns parsed pages into positioned text lines carrying
// amendment marks, and exposes annotations, images and metadata.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/charterkit/contentstream"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/parser"
)

// ErrNoText reports a document that yielded no extractable text.
var ErrNoText = errors.New("extractor: no extractable text")

// Options tunes line assembly and amendment classification.
type Options struct {
	// LineTolerance is the baseline distance, as a fraction of the font
	// size, within which glyph runs share a line.
	LineTolerance float64
	// SpaceFraction is the horizontal gap, as a fraction of the font size,
	// above which a space is inserted between runs.
	SpaceFraction float64
	// StrikeOverlap is the share of a run's width a strike mark must cover.
	StrikeOverlap float64
	// GreenMin and GreenMargin classify added text: g >= GreenMin and
	// g - max(r, b) >= GreenMargin.
	GreenMin    float64
	GreenMargin float64
	// MaxFormDepth bounds nested form XObjects; zero keeps the default.
	MaxFormDepth int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		LineTolerance: 0.5,
		SpaceFraction: 0.15,
		StrikeOverlap: 0.6,
		GreenMin:      0.35,
		GreenMargin:   0.2,
		MaxFormDepth:  contentstream.DefaultMaxDepth,
	}
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithLogger(l observability.Logger) Option { return func(e *Extractor) { e.log = observability.OrNop(l) } }
func WithOptions(o Options) Option             { return func(e *Extractor) { e.opts = o } }

// Extractor reads one document. Its methods are safe for concurrent use;
// pages are interpreted once and cached.
type Extractor struct {
	doc    *parser.Document
	pages  []*parser.Page
	labels []string
	log    observability.Logger
	opts   Options

	mu     sync.Mutex
	interp *contentstream.Interpreter
	cache  map[int]*pageResult
}

// New prepares an extractor over doc.
func New(doc *parser.Document, opts ...Option) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("extractor: document is required")
	}
	e := &Extractor{doc: doc, log: observability.NopLogger{}, opts: DefaultOptions(), cache: make(map[int]*pageResult)}
	for _, opt := range opts {
		opt(e)
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, fmt.Errorf("extractor: page tree: %w", err)
	}
	e.pages = pages
	labels, err := doc.PageLabels()
	if err != nil {
		e.log.Warn("page labels unreadable", observability.Err(err))
		labels = make([]string, len(pages))
	}
	e.labels = labels
	iopts := []contentstream.Option{contentstream.WithLogger(e.log)}
	if e.opts.MaxFormDepth > 0 {
		iopts = append(iopts, contentstream.WithMaxDepth(e.opts.MaxFormDepth))
	}
	e.interp = contentstream.New(doc, iopts...)
	return e, nil
}

// PageCount returns the number of pages.
func (e *Extractor) PageCount() int { return len(e.pages) }

// Metadata holds document-level information.
type Metadata struct {
	Version   string
	Info      parser.Info
	Lang      string
	Marked    bool
	Encrypted bool
	Repaired  bool
	PageCount int
	XMP       []byte
}

// ExtractMetadata aggregates the Info dictionary, catalog flags and XMP.
func (e *Extractor) ExtractMetadata(ctx context.Context) (Metadata, error) {
	meta := Metadata{
		Version:   e.doc.Version(),
		Encrypted: e.doc.Encrypted(),
		Repaired:  e.doc.Repaired(),
		PageCount: len(e.pages),
	}
	info, err := e.doc.Info()
	if err != nil {
		return meta, fmt.Errorf("extractor: info: %w", err)
	}
	meta.Info = info
	cat, err := e.doc.Catalog()
	if err != nil {
		return meta, err
	}
	meta.Lang, _ = e.doc.GetText(cat, "Lang")
	if mark, ok := e.doc.GetDict(cat, "MarkInfo"); ok {
		if v, ok := e.doc.Get(mark, "Marked"); ok {
			if b, isBool := v.(raw.BoolObj); isBool {
				meta.Marked = b.V
			}
		}
	}
	if md, ok := cat.Get("Metadata"); ok {
		if data, _, err := e.doc.Stream(ctx, md); err == nil {
			meta.XMP = data
		}
	}
	return meta, nil
}

type pageResult struct {
	glyphs   []contentstream.Glyphs
	segments []contentstream.Segment
	images   []contentstream.Image
	lines    []Line
}

// page interprets page n (1-based) once.
func (e *Extractor) page(ctx context.Context, n int) (*pageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if res, ok := e.cache[n]; ok {
		return res, nil
	}
	p := e.pages[n-1]
	rec := &contentstream.Recorder{}
	if err := e.interp.RunPage(ctx, p, rec); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("page content partially read", observability.Int("page", n), observability.Err(err))
	}
	res := &pageResult{glyphs: rec.Text, segments: rec.Segments, images: rec.Images}
	annots, err := e.pageAnnotations(p)
	if err != nil {
		e.log.Warn("page annotations unreadable", observability.Int("page", n), observability.Err(err))
	}
	res.lines = e.assemble(n, rec, annots)
	e.cache[n] = res
	return res, nil
}

// PageText is the plain text of one page.
type PageText struct {
	Page    int
	Label   string
	Content string
}

// ExtractText returns the text of every page in order, lines joined by
// newlines. Pages without text have empty Content.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, error) {
	out := make([]PageText, 0, len(e.pages))
	for _, p := range e.pages {
		res, err := e.page(ctx, p.Number)
		if err != nil {
			return nil, err
		}
		out = append(out, PageText{Page: p.Number, Label: e.label(p.Number), Content: joinLines(res.lines)})
	}
	return out, nil
}

// ExtractLines returns every line of the document, top to bottom per page.
func (e *Extractor) ExtractLines(ctx context.Context) ([]Line, error) {
	var out []Line
	for _, p := range e.pages {
		res, err := e.page(ctx, p.Number)
		if err != nil {
			return nil, err
		}
		out = append(out, res.lines...)
	}
	return out, nil
}

// PageLines returns the lines of page n (1-based).
func (e *Extractor) PageLines(ctx context.Context, n int) ([]Line, error) {
	if n < 1 || n > len(e.pages) {
		return nil, fmt.Errorf("extractor: page %d out of range", n)
	}
	res, err := e.page(ctx, n)
	if err != nil {
		return nil, err
	}
	return res.lines, nil
}

func (e *Extractor) label(n int) string {
	if n-1 < len(e.labels) {
		return e.labels[n-1]
	}
	return fmt.Sprint(n)
}
