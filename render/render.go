// Package render writes the final filled charter party: the Part I terms
// table, the template clauses with the recap amendments incorporated, and an
// amendment summary.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wudi/charterkit/amend"
	"github.com/wudi/charterkit/builder"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/layout"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/security"
	"github.com/wudi/charterkit/writer"
)

const (
	Title         = "CHARTER PARTY – FILLED TEMPLATE (Final Version)"
	DocumentTitle = "Charter Party - Final Filled"
	PartIHeading  = "Part I – Commercial Terms (Filled Values)"
	PartIIHeading = "Part II – Finalized Clauses (Amendments Incorporated)"

	// Placeholder stands in for an empty Part I value.
	Placeholder = "_____"

	inch = 72.0
)

var (
	green = builder.MustHex("#008000")
	grid  = builder.MustHex("#CCCCCC")
)

// ErrNoTemplate is returned when Create is called without a template.
var ErrNoTemplate = errors.New("render: template document is required")

// Generator lays out and writes final documents. It is safe for
// sequential reuse.
type Generator struct {
	log        observability.Logger
	paper      layout.PaperSize
	margin     float64
	summary    bool
	lang       string
	encryption *security.Params
	writerCfg  writer.Config
	intercept  []writer.Interceptor
	regular    []byte
	bold       []byte
	now        func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

func WithLogger(l observability.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithPaper sets the page size. The default is US Letter.
func WithPaper(p layout.PaperSize) Option {
	return func(g *Generator) { g.paper = p }
}

// WithMargin sets all four margins in points. The default is half an inch.
func WithMargin(points float64) Option {
	return func(g *Generator) { g.margin = points }
}

// WithSummary toggles the trailing amendment summary page.
func WithSummary(on bool) Option {
	return func(g *Generator) { g.summary = on }
}

func WithLanguage(lang string) Option {
	return func(g *Generator) { g.lang = lang }
}

// WithEncryption protects the output with the standard security handler.
func WithEncryption(p security.Params) Option {
	return func(g *Generator) { g.encryption = &p }
}

func WithWriterConfig(cfg writer.Config) Option {
	return func(g *Generator) { g.writerCfg = cfg }
}

// WithInterceptor observes every object written.
func WithInterceptor(i writer.Interceptor) Option {
	return func(g *Generator) { g.intercept = append(g.intercept, i) }
}

// WithTrueTypeFonts embeds regular and bold TrueType faces in place of
// Helvetica, for text outside WinAnsi.
func WithTrueTypeFonts(regular, bold []byte) Option {
	return func(g *Generator) {
		g.regular = regular
		g.bold = bold
	}
}

// WithClock fixes the creation date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		paper:   layout.Letter,
		margin:  0.5 * inch,
		summary: true,
		lang:    "en",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = observability.OrNop(g.log)
	return g
}

// Create renders the final document to w.
func (g *Generator) Create(ctx context.Context, template *charter.Document, set fields.Set, result amend.Result, w io.Writer) error {
	if template == nil {
		return ErrNoTemplate
	}
	b := builder.NewBuilder().
		SetInfo(&semantic.DocumentInfo{
			Title:        DocumentTitle,
			Subject:      "Charter party with recap amendments incorporated",
			Creator:      "charterkit",
			Producer:     "charterkit",
			CreationDate: g.now(),
		}).
		SetLanguage(g.lang)
	if g.encryption != nil {
		b.SetEncryption(*g.encryption)
	}
	regular, bold := "Helvetica", "Helvetica-Bold"
	if g.regular != nil && g.bold != nil {
		regular, bold = "Body", "BodyBold"
		b.RegisterTrueTypeFont(regular, g.regular).RegisterTrueTypeFont(bold, g.bold)
	}
	e := layout.NewEngine(b,
		layout.WithPaperSize(g.paper),
		layout.WithMargins(layout.Margins{Top: g.margin, Bottom: g.margin, Left: g.margin, Right: g.margin}),
		layout.WithDefaultFont(regular),
		layout.WithBoldFont(bold),
		layout.WithDefaultFontSize(10),
		layout.WithLogger(g.log),
	)

	heading(e, Title, 18)
	e.Spacer(0.2 * inch)
	g.partI(e, template, set, regular, bold)
	e.PageBreak()
	g.partII(e, template, result)
	g.sections(e, result)
	if g.summary {
		e.PageBreak()
		if err := e.RenderMarkdown(amend.Markdown(result)); err != nil {
			return fmt.Errorf("render: summary: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := b.Build()
	if err != nil {
		return fmt.Errorf("render: build: %w", err)
	}
	wb := (&writer.WriterBuilder{}).WithLogger(g.log)
	for _, i := range g.intercept {
		wb.WithInterceptor(i)
	}
	cfg := g.writerCfg
	if cfg.Version == "" {
		cfg.Version = writer.PDF17
	}
	if err := wb.Build().Write(ctx, doc, w, cfg); err != nil {
		return fmt.Errorf("render: write: %w", err)
	}
	g.log.Info("final PDF rendered",
		observability.Int("pages", len(doc.Pages)),
		observability.Int("clauses", len(template.PartII)),
	)
	return nil
}

func heading(e *layout.Engine, text string, size float64) {
	e.Spacer(size * 0.4)
	e.Paragraph(layout.TextSpan{Text: text, Bold: true, FontSize: size})
	e.Spacer(size * 0.2)
}

func (g *Generator) partI(e *layout.Engine, template *charter.Document, set fields.Set, regular, bold string) {
	heading(e, PartIHeading, 14)
	e.Spacer(0.1 * inch)

	pad := &builder.CellPadding{Top: 4, Right: 6, Bottom: 4, Left: 6}
	var rows []builder.TableRow
	for n := 1; n <= charter.FieldCount; n++ {
		label := strings.TrimSpace(set[n].Label)
		if label == "" {
			label = strings.TrimSpace(template.PartI[n].Label)
		}
		value := strings.TrimSpace(set[n].Value)
		g.log.Debug("part I field", observability.Int("field", n), observability.String("label", label), observability.String("value", value))
		if label == "" {
			g.log.Warn("skipped Part I field without label", observability.Int("field", n))
			continue
		}
		if value == "" {
			value = Placeholder
		}
		rows = append(rows, builder.TableRow{Cells: []builder.TableCell{
			{Text: fmt.Sprintf("%d.", n), Font: bold, Padding: pad},
			{Text: label, Font: bold, Padding: pad},
			{Text: value, Font: regular, Padding: pad},
		}})
	}
	if len(rows) == 0 {
		g.log.Warn("no Part I data to render")
		return
	}
	e.Table(builder.Table{
		Columns: []float64{0.5 * inch, 2.5 * inch, 3.5 * inch},
		Rows:    rows,
	}, builder.TableOptions{
		BorderColor: grid,
		BorderWidth: 0.5,
		DefaultFont: regular,
		DefaultSize: 10,
	})
}

type lineKey struct {
	clause int
	text   string
}

func (g *Generator) partII(e *layout.Engine, template *charter.Document, result amend.Result) {
	heading(e, PartIIHeading, 14)
	e.Spacer(0.1 * inch)
	g.log.Debug("part II clauses", observability.Int("clauses", len(template.PartII)))

	deleted := make(map[lineKey]bool, len(result.Deleted))
	for _, it := range result.Deleted {
		deleted[lineKey{it.ClauseNumber, strings.TrimSpace(it.Text)}] = true
	}
	added := make(map[int][]amend.Item)
	for _, it := range result.Added {
		if it.Line != nil {
			added[it.ClauseNumber] = append(added[it.ClauseNumber], it)
		}
	}
	newLines := make(map[int][]amend.Item)
	for _, it := range result.New {
		newLines[it.ClauseNumber] = append(newLines[it.ClauseNumber], it)
	}

	for _, clause := range template.PartII {
		heading(e, clause.Title, 12)
		pending := added[clause.Number]
		used := make([]bool, len(pending))
		for _, line := range clause.Lines {
			text := strings.TrimSpace(line.Text)
			struck := deleted[lineKey{clause.Number, text}]
			spans := []layout.TextSpan{{Text: text, Strikethrough: struck}}
			if line.Number != nil {
				spans = append(numberSpans(*line.Number), spans...)
			}
			e.Paragraph(spans...)
			if line.Number == nil {
				continue
			}
			for i, it := range pending {
				if !used[i] && *it.Line == *line.Number {
					used[i] = true
					e.Indented(numberWidth(e), addedSpan(it.Text))
				}
			}
		}
		// Added lines whose number has no anchor in the template clause.
		for i, it := range pending {
			if !used[i] {
				e.Paragraph(append(numberSpans(*it.Line), addedSpan(it.Text))...)
			}
		}
		for _, it := range newLines[clause.Number] {
			e.Paragraph(addedSpan(it.Text))
		}
		e.Spacer(0.05 * inch)
	}
}

// sections lists every amendment bucket after the clauses.
func (g *Generator) sections(e *layout.Engine, result amend.Result) {
	if len(result.Deleted) > 0 {
		heading(e, "Deleted Content:", 12)
		for _, it := range result.Deleted {
			e.Paragraph(layout.TextSpan{Text: it.Text, Strikethrough: true})
		}
	}
	if len(result.Added) > 0 {
		e.Spacer(0.05 * inch)
		heading(e, "Added Content:", 12)
		for _, it := range result.Added {
			e.Paragraph(addedSpan(it.Text))
		}
	}
	if len(result.New) > 0 {
		e.Spacer(0.05 * inch)
		heading(e, "New Lines:", 12)
		g.log.Debug("appending new lines", observability.Int("count", len(result.New)))
		for _, it := range result.New {
			e.Paragraph(addedSpan(it.Text))
		}
	}
}

// numberSpans renders a right-aligned two-digit line number followed by a
// gap. Non-breaking spaces keep the padding from collapsing.
func numberSpans(n int) []layout.TextSpan {
	num := strings.ReplaceAll(fmt.Sprintf("%2d", n), " ", "\u00a0")
	return []layout.TextSpan{
		{Text: num, Bold: true},
		{Text: "\u00a0\u00a0"},
	}
}

func numberWidth(e *layout.Engine) float64 {
	b := e.Builder()
	return b.MeasureText("00", e.BoldFont, e.DefaultFontSize) + b.MeasureText("\u00a0\u00a0", e.DefaultFont, e.DefaultFontSize)
}

func addedSpan(text string) layout.TextSpan {
	return layout.TextSpan{Text: strings.TrimSpace(text), Bold: true, Color: green}
}
