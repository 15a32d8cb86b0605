// Package pipeline runs the four charter-party steps shared by the command
// line, the batch runner and the web UI: extract both PDFs, map the Part I
// fields, detect the recap amendments and write the final document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wudi/charterkit/amend"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/config"
	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/layout"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/ocr"
	"github.com/wudi/charterkit/render"
	"github.com/wudi/charterkit/scripting"
	"github.com/wudi/charterkit/security"
	"github.com/wudi/charterkit/writer"
)

var (
	// ErrFileNotFound is returned when the template or recap path does not exist.
	ErrFileNotFound = errors.New("pipeline: file not found")
	// ErrValidation is returned in strict mode when Part I has errors.
	ErrValidation = errors.New("pipeline: Part I validation failed")
)

// Stage names recorded on the stage duration histogram.
const (
	StageExtract = "extract"
	StageFields  = "fields"
	StageAmend   = "amend"
	StageRender  = "render"
)

// Request names the inputs and output of one run.
type Request struct {
	Template string
	Recap    string
	Output   string
	// Overrides replace Part I values after mapping, keyed by field number.
	Overrides map[int]string
}

// Report describes a run. Template and Recap are the parsed inputs.
type Report struct {
	Template         *charter.Document `json:"-"`
	Recap            *charter.Document `json:"-"`
	TemplatePages    int               `json:"template_pages"`
	RecapPages       int               `json:"recap_pages"`
	Fields           fields.Set        `json:"-"`
	Valid            bool              `json:"valid"`
	ValidationErrors []string          `json:"validation_errors,omitempty"`
	Stats            fields.Stats      `json:"stats"`
	Amendments       amend.Result      `json:"amendments"`
	Alerts           []string          `json:"alerts,omitempty"`
	Output           string            `json:"output,omitempty"`
	Bytes            int64             `json:"bytes,omitempty"`
	Duration         time.Duration     `json:"duration"`
}

// Processor runs requests. It is safe for concurrent use once built.
type Processor struct {
	cfg      *config.Config
	log      observability.Logger
	metrics  *observability.Metrics
	tracer   observability.Tracer
	engine   ocr.Engine
	loader   *charter.Loader
	detector *amend.Detector
	rules    []scripting.Rule
	render   []render.Option
}

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(l observability.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithMetrics records stage durations, documents and amendments on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func WithTracer(t observability.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// WithOCREngine replaces the registered default engine used when OCR is
// enabled.
func WithOCREngine(e ocr.Engine) Option {
	return func(p *Processor) { p.engine = e }
}

// WithRules adds rule scripts on top of those named in the configuration.
func WithRules(rules ...scripting.Rule) Option {
	return func(p *Processor) { p.rules = append(p.rules, rules...) }
}

// WithRenderOptions appends generator options after those derived from the
// configuration.
func WithRenderOptions(opts ...render.Option) Option {
	return func(p *Processor) { p.render = append(p.render, opts...) }
}

// New builds a processor from cfg, reading rule scripts and font files it
// names. A nil cfg means config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Processor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	p := &Processor{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	extra := p.rules
	p.rules = nil
	p.log = observability.OrNop(p.log)
	if p.tracer == nil {
		p.tracer = observability.NopTracer()
	}

	for _, path := range cfg.Rules.Scripts {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("pipeline: rule script: %w", err)
		}
		p.rules = append(p.rules, scripting.Rule{Name: filepath.Base(path), Source: string(src)})
	}
	p.rules = append(p.rules, extra...)

	loaderOpts := []charter.Option{
		charter.WithLogger(p.log),
		charter.WithMetrics(p.metrics),
		charter.WithPassword(cfg.Extract.Password),
		charter.WithExtractOptions(extractOptions(cfg.Extract)),
	}
	if cfg.OCR.Enabled {
		if p.engine == nil {
			p.engine = ocr.DefaultEngine()
		}
		loaderOpts = append(loaderOpts, charter.WithOCR(p.engine,
			ocr.WithLanguages(cfg.OCR.Languages...),
			ocr.WithTargetDPI(cfg.OCR.TargetDPI),
		))
	}
	p.loader = charter.NewLoader(loaderOpts...)
	p.detector = amend.NewDetector(cfg.Amend.Threshold, amend.WithLogger(p.log))

	renderOpts, err := generatorOptions(cfg.Output, p.log)
	if err != nil {
		return nil, err
	}
	p.render = append(renderOpts, p.render...)
	return p, nil
}

func extractOptions(c config.ExtractConfig) extractor.Options {
	o := extractor.DefaultOptions()
	if c.LineTolerance > 0 {
		o.LineTolerance = c.LineTolerance
	}
	if c.SpaceFraction > 0 {
		o.SpaceFraction = c.SpaceFraction
	}
	if c.StrikeOverlap > 0 {
		o.StrikeOverlap = c.StrikeOverlap
	}
	if c.GreenMin > 0 {
		o.GreenMin = c.GreenMin
	}
	if c.GreenMargin > 0 {
		o.GreenMargin = c.GreenMargin
	}
	if c.MaxFormDepth > 0 {
		o.MaxFormDepth = c.MaxFormDepth
	}
	return o
}

func generatorOptions(c config.OutputConfig, log observability.Logger) ([]render.Option, error) {
	opts := []render.Option{
		render.WithLogger(log),
		render.WithSummary(!c.SkipSummary),
		render.WithMargin(c.MarginInches * 72),
	}
	if strings.EqualFold(c.Paper, "a4") {
		opts = append(opts, render.WithPaper(layout.A4))
	}
	if c.Language != "" {
		opts = append(opts, render.WithLanguage(c.Language))
	}
	if c.Deterministic {
		opts = append(opts, render.WithWriterConfig(writer.Config{Deterministic: true}))
	}
	if c.UserPassword != "" || c.OwnerPassword != "" {
		opts = append(opts, render.WithEncryption(security.Params{
			UserPassword:  c.UserPassword,
			OwnerPassword: c.OwnerPassword,
			Revision:      6,
		}))
	}
	if c.FontRegular != "" {
		regular, err := os.ReadFile(c.FontRegular)
		if err != nil {
			return nil, fmt.Errorf("pipeline: font: %w", err)
		}
		bold, err := os.ReadFile(c.FontBold)
		if err != nil {
			return nil, fmt.Errorf("pipeline: font: %w", err)
		}
		opts = append(opts, render.WithTrueTypeFonts(regular, bold))
	}
	return opts, nil
}

// Config returns the configuration the processor was built with.
func (p *Processor) Config() *config.Config { return p.cfg }

// Load extracts one PDF from disk.
func (p *Processor) Load(ctx context.Context, kind charter.Kind, path string) (*charter.Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrFileNotFound, kind, path)
	}
	doc, err := p.loader.Load(ctx, kind, path)
	p.countDocument(kind, err)
	return doc, err
}

// LoadBytes extracts one PDF held in memory.
func (p *Processor) LoadBytes(ctx context.Context, kind charter.Kind, data []byte) (*charter.Document, error) {
	doc, err := p.loader.LoadBytes(ctx, kind, data)
	p.countDocument(kind, err)
	return doc, err
}

func (p *Processor) countDocument(kind charter.Kind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.Document(string(kind), outcome)
}

// Process runs all four steps for req and writes the final PDF to
// req.Output. The report is returned alongside a strict validation error.
func (p *Processor) Process(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.process")
	defer span.Finish()
	span.SetTag("recap", req.Recap)

	rep, err := p.process(ctx, req)
	if err != nil {
		span.SetError(err)
		p.log.Error("processing failed", observability.String("recap", req.Recap), observability.Err(err))
		return rep, err
	}
	rep.Duration = time.Since(start)
	p.log.Info("processing complete",
		observability.String("output", rep.Output),
		observability.Duration("elapsed", rep.Duration),
	)
	return rep, nil
}

func (p *Processor) process(ctx context.Context, req Request) (*Report, error) {
	for _, f := range []struct {
		kind charter.Kind
		path string
	}{{charter.Template, req.Template}, {charter.Recap, req.Recap}} {
		if _, err := os.Stat(f.path); err != nil {
			return nil, fmt.Errorf("%w: %s %s", ErrFileNotFound, f.kind, f.path)
		}
	}
	p.log.Info("processing started",
		observability.String("template", filepath.Base(req.Template)),
		observability.String("recap", filepath.Base(req.Recap)),
	)

	p.log.Info("[1/4] Extracting PDF content")
	stage := time.Now()
	template, err := p.Load(ctx, charter.Template, req.Template)
	if err != nil {
		return nil, err
	}
	recap, err := p.Load(ctx, charter.Recap, req.Recap)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(StageExtract, stage)
	p.log.Info("PDFs extracted",
		observability.Int("template_pages", template.Pages),
		observability.Int("recap_pages", recap.Pages),
	)

	rep, err := p.Analyze(ctx, template, recap, req.Overrides)
	if err != nil {
		return rep, err
	}

	p.log.Info("[4/4] Generating final PDF")
	n, err := p.writeFile(ctx, rep, req.Output)
	if err != nil {
		return rep, err
	}
	rep.Output = req.Output
	rep.Bytes = n
	p.log.Info("PDF created", observability.String("file", filepath.Base(req.Output)), observability.Int64("bytes", n))
	return rep, nil
}

// Analyze runs the mapping and detection steps on already extracted
// documents. Overrides are applied after rule scripts and before validation.
func (p *Processor) Analyze(ctx context.Context, template, recap *charter.Document, overrides map[int]string) (*Report, error) {
	rep := &Report{
		Template:      template,
		Recap:         recap,
		TemplatePages: template.Pages,
		RecapPages:    recap.Pages,
	}

	p.log.Info("[2/4] Mapping Part I fields")
	stage := time.Now()
	set := fields.Extract(recap)
	if p.cfg.Rules.Normalize {
		set = fields.NormalizeAll(set)
	}
	if len(p.rules) > 0 {
		rctx := ctx
		if p.cfg.Rules.Timeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, p.cfg.Rules.Timeout)
			defer cancel()
		}
		var err error
		set, rep.Alerts, err = scripting.Run(rctx, set, recap, p.rules, p.log)
		if err != nil {
			return rep, err
		}
	}
	if len(overrides) > 0 {
		var err error
		if set, err = fields.ApplyOverrides(set, overrides); err != nil {
			return rep, err
		}
	}
	rep.Fields = set
	rep.Stats = fields.Statistics(set)
	valid, errs := fields.Validate(set)
	rep.Valid = valid
	rep.ValidationErrors = fields.Errors(errs)
	p.metrics.ValidationErrors(len(errs))
	p.metrics.ObserveStage(StageFields, stage)
	p.log.Info("fields extracted",
		observability.Int("fields", rep.Stats.Filled),
		observability.Float64("completion", rep.Stats.CompletionPercentage),
	)
	for _, msg := range rep.ValidationErrors {
		p.log.Warn("validation", observability.String("error", msg))
	}
	if !valid && p.cfg.Output.Strict {
		return rep, fmt.Errorf("%w: %s", ErrValidation, strings.Join(rep.ValidationErrors, "; "))
	}

	p.log.Info("[3/4] Detecting amendments")
	stage = time.Now()
	rep.Amendments = p.detector.Detect(template.PartII, recap.PartII)
	counts := rep.Amendments.Counts()
	p.metrics.Amendment("deleted", counts.Deleted)
	p.metrics.Amendment("added", counts.Added)
	p.metrics.Amendment("new", counts.New)
	p.metrics.Amendment("modified", counts.Modified)
	p.metrics.ObserveStage(StageAmend, stage)
	p.log.Info("amendments detected",
		observability.Int("deleted", counts.Deleted),
		observability.Int("added", counts.Added),
		observability.Int("new", counts.New),
		observability.Int("modified", counts.Modified),
	)
	return rep, ctx.Err()
}

// Generate writes the final document for rep to w.
func (p *Processor) Generate(ctx context.Context, rep *Report, w io.Writer, opts ...render.Option) error {
	stage := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.render")
	defer span.Finish()
	g := render.New(append(append([]render.Option(nil), p.render...), opts...)...)
	if err := g.Create(ctx, rep.Template, rep.Fields, rep.Amendments, w); err != nil {
		span.SetError(err)
		return err
	}
	p.metrics.ObserveStage(StageRender, stage)
	return nil
}

func (p *Processor) writeFile(ctx context.Context, rep *Report, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("pipeline: output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("pipeline: output: %w", err)
	}
	counter := &ObjectCounter{}
	if err := p.Generate(ctx, rep, f, render.WithInterceptor(counter)); err != nil {
		f.Close()
		os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("pipeline: output: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	p.log.Debug("objects written", observability.Int("objects", counter.Objects()))
	return info.Size(), nil
}

// ObjectCounter is a writer.Interceptor counting serialised objects.
type ObjectCounter struct {
	n int
}

var _ writer.Interceptor = (*ObjectCounter)(nil)

func (c *ObjectCounter) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error { return nil }

func (c *ObjectCounter) AfterWrite(context.Context, raw.ObjectRef, int64) error {
	c.n++
	return nil
}

// Objects returns the number of objects written so far.
func (c *ObjectCounter) Objects() int { return c.n }
