package charter

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/ocr"
	"github.com/wudi/charterkit/parser"
)

// Loader opens charter-party PDFs and parses them. The zero value is not
// usable; call NewLoader.
type Loader struct {
	log     observability.Logger
	metrics *observability.Metrics
	parser  parser.Config
	extract extractor.Options
	engine  ocr.Engine
	ocrOpts []ocr.InputOption
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used by the loader and the extractor.
func WithLogger(l observability.Logger) Option {
	return func(ld *Loader) { ld.log = observability.OrNop(l) }
}

// WithMetrics records OCR pages on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// WithPassword opens encrypted PDFs with password.
func WithPassword(password string) Option {
	return func(ld *Loader) { ld.parser.Password = password }
}

// WithParserConfig replaces the parser configuration. The loader's logger is
// kept when cfg carries none.
func WithParserConfig(cfg parser.Config) Option {
	return func(ld *Loader) { ld.parser = cfg }
}

// WithExtractOptions sets the line assembly and amendment thresholds.
func WithExtractOptions(o extractor.Options) Option {
	return func(ld *Loader) { ld.extract = o }
}

// WithOCR runs engine over image-only pages.
func WithOCR(engine ocr.Engine, opts ...ocr.InputOption) Option {
	return func(ld *Loader) {
		ld.engine = engine
		ld.ocrOpts = opts
	}
}

// NewLoader returns a loader with default extraction thresholds and OCR off.
func NewLoader(opts ...Option) *Loader {
	ld := &Loader{log: observability.NopLogger{}, extract: extractor.DefaultOptions()}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.parser.Logger == nil {
		ld.parser.Logger = ld.log
	}
	return ld
}

// ExtractTemplate loads the blank charter-party form at path.
func ExtractTemplate(ctx context.Context, path string, opts ...Option) (*Document, error) {
	return NewLoader(opts...).Load(ctx, Template, path)
}

// ExtractRecap loads the negotiated recap at path.
func ExtractRecap(ctx context.Context, path string, opts ...Option) (*Document, error) {
	return NewLoader(opts...).Load(ctx, Recap, path)
}

// Load opens path and parses it as kind.
func (ld *Loader) Load(ctx context.Context, kind Kind, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", kind, err)
	}
	doc, err := ld.LoadBytes(ctx, kind, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s %s: %w", kind, path, err)
	}
	return doc, nil
}

// LoadBytes parses an in-memory PDF as kind.
func (ld *Loader) LoadBytes(ctx context.Context, kind Kind, data []byte) (*Document, error) {
	start := time.Now()
	pdf, err := parser.OpenBytes(ctx, data, ld.parser)
	if err != nil {
		return nil, err
	}
	ext, err := extractor.New(pdf, extractor.WithLogger(ld.log), extractor.WithOptions(ld.extract))
	if err != nil {
		return nil, err
	}
	lines, err := ext.ExtractLines(ctx)
	if err != nil {
		return nil, err
	}
	if ld.engine != nil {
		if lines, err = ld.recognize(ctx, ext, lines); err != nil {
			return nil, err
		}
	} else if err := ld.checkScanned(ctx, ext, lines); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, extractor.ErrNoText
	}
	meta, err := ext.ExtractMetadata(ctx)
	if err != nil {
		return nil, err
	}
	doc := Parse(kind, lines)
	doc.Pages = ext.PageCount()
	doc.Metadata = metadataMap(meta)
	ld.log.Debug("charter parsed",
		observability.String("kind", string(kind)),
		observability.Int("pages", doc.Pages),
		observability.Int("fields", len(doc.PartI)),
		observability.Int("clauses", len(doc.PartII)),
		observability.Duration("elapsed", time.Since(start)),
	)
	return doc, nil
}

// textlessPages lists the 1-based pages that produced no lines.
func textlessPages(ext *extractor.Extractor, lines []extractor.Line) []int {
	seen := make(map[int]bool)
	for _, l := range lines {
		seen[l.Page] = true
	}
	var empty []int
	for p := 1; p <= ext.PageCount(); p++ {
		if !seen[p] {
			empty = append(empty, p)
		}
	}
	return empty
}

// checkScanned fails on the first textless page that carries an image, since
// its content would be lost without OCR. Blank pages are only logged.
func (ld *Loader) checkScanned(ctx context.Context, ext *extractor.Extractor, lines []extractor.Line) error {
	empty := textlessPages(ext, lines)
	if len(empty) == 0 || len(lines) == 0 {
		return nil
	}
	assets, err := ext.ExtractImages(ctx)
	if err != nil {
		return err
	}
	imaged := make(map[int]bool)
	for _, a := range assets {
		imaged[a.Page] = true
	}
	for _, p := range empty {
		if imaged[p] {
			return fmt.Errorf("%w: page %d", extractor.ErrNoText, p)
		}
		ld.log.Warn("page has no text", observability.Int("page", p))
	}
	return nil
}

// recognize fills pages that produced no text with OCR lines.
func (ld *Loader) recognize(ctx context.Context, ext *extractor.Extractor, lines []extractor.Line) ([]extractor.Line, error) {
	empty := textlessPages(ext, lines)
	if len(empty) == 0 {
		return lines, nil
	}
	assets, err := ext.ExtractImages(ctx)
	if err != nil {
		return nil, err
	}
	ocrLines, err := ocr.RecognizePages(ctx, ld.engine, assets, empty, ld.ocrOpts...)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	for range empty {
		ld.metrics.OCRPage()
	}
	ld.log.Info("ocr applied",
		observability.String("engine", ld.engine.Name()),
		observability.Int("pages", len(empty)),
		observability.Int("lines", len(ocrLines)),
	)
	merged := append(append([]extractor.Line(nil), lines...), ocrLines...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Page != merged[j].Page {
			return merged[i].Page < merged[j].Page
		}
		return merged[i].Index < merged[j].Index
	})
	return merged, nil
}

func metadataMap(m extractor.Metadata) map[string]string {
	out := map[string]string{
		"format":       "PDF " + m.Version,
		"title":        m.Info.Title,
		"author":       m.Info.Author,
		"subject":      m.Info.Subject,
		"keywords":     m.Info.Keywords,
		"creator":      m.Info.Creator,
		"producer":     m.Info.Producer,
		"creationDate": m.Info.CreationDate,
		"modDate":      m.Info.ModDate,
	}
	if m.Encrypted {
		out["encryption"] = "Standard"
	}
	if m.Lang != "" {
		out["lang"] = m.Lang
	}
	return out
}
