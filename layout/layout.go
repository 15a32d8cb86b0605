package layout

import (
	"strings"

	"github.com/wudi/charterkit/builder"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/observability"
)

// Engine flows styled text onto pages top-down, breaking pages at the
// bottom margin.
type Engine struct {
	b builder.PDFBuilder

	DefaultFont     string
	BoldFont        string
	ItalicFont      string
	MonoFont        string
	DefaultFontSize float64
	LineHeight      float64 // multiplier of the font size
	Margins         Margins

	currentPage builder.PageBuilder
	cursorX     float64
	cursorY     float64
	pageWidth   float64
	pageHeight  float64
	log         observability.Logger
}

// Margins defines page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// PaperSize is a page size in points.
type PaperSize struct {
	Width, Height float64
}

var (
	Letter = PaperSize{Width: 612, Height: 792}
	A4     = PaperSize{Width: 595.28, Height: 841.89}
)

// Option defines a configuration option for the Engine.
type Option func(*Engine)

func WithDefaultFont(font string) Option {
	return func(e *Engine) { e.DefaultFont = font }
}

// WithBoldFont sets the font used for bold spans and headings.
func WithBoldFont(font string) Option {
	return func(e *Engine) { e.BoldFont = font }
}

func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) { e.DefaultFontSize = size }
}

func WithLineHeight(height float64) Option {
	return func(e *Engine) { e.LineHeight = height }
}

func WithMargins(margins Margins) Option {
	return func(e *Engine) { e.Margins = margins }
}

func WithPageSize(width, height float64) Option {
	return func(e *Engine) {
		e.pageWidth = width
		e.pageHeight = height
	}
}

func WithPaperSize(size PaperSize) Option {
	return WithPageSize(size.Width, size.Height)
}

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a layout engine on US Letter with 50pt margins.
func NewEngine(b builder.PDFBuilder, opts ...Option) *Engine {
	e := &Engine{
		b:               b,
		DefaultFont:     "Helvetica",
		BoldFont:        "Helvetica-Bold",
		ItalicFont:      "Helvetica-Oblique",
		MonoFont:        "Courier",
		DefaultFontSize: 12,
		LineHeight:      1.2,
		Margins:         Margins{Top: 50, Bottom: 50, Left: 50, Right: 50},
		pageWidth:       Letter.Width,
		pageHeight:      Letter.Height,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = observability.OrNop(e.log)
	return e
}

// Builder returns the underlying document builder.
func (e *Engine) Builder() builder.PDFBuilder { return e.b }

// Cursor returns the y coordinate of the next line's top edge.
func (e *Engine) Cursor() float64 { return e.cursorY }

// ContentWidth is the usable width between the side margins.
func (e *Engine) ContentWidth() float64 {
	return e.pageWidth - e.Margins.Left - e.Margins.Right
}

func (e *Engine) ensurePage() {
	if e.currentPage == nil {
		e.newPage()
	}
}

func (e *Engine) newPage() {
	if e.currentPage != nil {
		e.currentPage.Finish()
	}
	e.currentPage = e.b.NewPage(e.pageWidth, e.pageHeight)
	e.cursorX = e.Margins.Left
	e.cursorY = e.pageHeight - e.Margins.Top
	e.log.Debug("layout page", observability.Float64("top", e.cursorY))
}

// checkPageBreak starts a new page unless height fits above the bottom margin.
func (e *Engine) checkPageBreak(height float64) {
	if e.currentPage == nil {
		e.newPage()
		return
	}
	if e.cursorY-height < e.Margins.Bottom {
		e.newPage()
	}
}

// PageBreak forces subsequent content onto a fresh page.
func (e *Engine) PageBreak() {
	e.newPage()
}

// Spacer moves the cursor down by height points.
func (e *Engine) Spacer(height float64) {
	e.ensurePage()
	e.cursorY -= height
}

// Heading renders a bold line sized by level (1 is largest).
func (e *Engine) Heading(text string, level int) {
	size := e.headingSize(level)
	e.Spacer(size * 0.5)
	e.renderSpans([]TextSpan{{Text: text, FontSize: size, Bold: true}}, 0)
	e.cursorY -= size * 0.3
}

func (e *Engine) headingSize(level int) float64 {
	if level < 1 {
		level = 1
	}
	return max(e.DefaultFontSize, e.DefaultFontSize*2.0-float64(level-1)*0.2*e.DefaultFontSize)
}

// Paragraph wraps spans across the content width.
func (e *Engine) Paragraph(spans ...TextSpan) {
	e.renderSpans(spans, 0)
}

// Indented wraps spans with an extra left indent.
func (e *Engine) Indented(indent float64, spans ...TextSpan) {
	e.renderSpans(spans, indent)
}

// Rule draws a horizontal line across the content width.
func (e *Engine) Rule(color builder.Color, width float64) {
	e.checkPageBreak(width + 4)
	e.cursorY -= 2
	e.currentPage.DrawLine(e.Margins.Left, e.cursorY, e.pageWidth-e.Margins.Right, e.cursorY,
		builder.LineOptions{StrokeColor: color, LineWidth: width})
	e.cursorY -= 2 + width
}

// Table draws t at the cursor and continues below it, following the
// table onto new pages when rows overflow.
func (e *Engine) Table(t builder.Table, opts builder.TableOptions) {
	e.ensurePage()
	opts.X = e.Margins.Left
	opts.Y = e.cursorY
	opts.TopMargin = e.Margins.Top
	opts.BottomMargin = e.Margins.Bottom
	if opts.DefaultFont == "" {
		opts.DefaultFont = e.DefaultFont
	}
	if opts.DefaultSize == 0 {
		opts.DefaultSize = e.DefaultFontSize
	}
	e.currentPage = e.currentPage.DrawTable(t, opts)
	e.cursorY = e.currentPage.Cursor()
}

// TextSpan is a run of text sharing one style.
type TextSpan struct {
	Text          string
	Font          string
	FontSize      float64
	Link          string
	Color         builder.Color
	Bold          bool
	Italic        bool
	Mono          bool
	Underline     bool
	Strikethrough bool
}

func (e *Engine) spanFont(s TextSpan) string {
	switch {
	case s.Font != "":
		return s.Font
	case s.Mono:
		return e.MonoFont
	case s.Bold:
		return e.BoldFont
	case s.Italic:
		return e.ItalicFont
	}
	return e.DefaultFont
}

func (e *Engine) spanSize(s TextSpan) float64 {
	if s.FontSize > 0 {
		return s.FontSize
	}
	return e.DefaultFontSize
}

type token struct {
	text  string
	span  int
	space bool
	br    bool
}

// tokenize splits spans into words, single spaces and hard breaks. A
// non-breaking space stays inside its word.
func tokenize(spans []TextSpan) []token {
	var out []token
	for i, s := range spans {
		var word strings.Builder
		flush := func() {
			if word.Len() > 0 {
				out = append(out, token{text: word.String(), span: i})
				word.Reset()
			}
		}
		for _, r := range s.Text {
			switch r {
			case '\n':
				flush()
				out = append(out, token{span: i, br: true})
			case ' ', '\t', '\r':
				flush()
				if n := len(out); n == 0 || !out[n-1].space {
					out = append(out, token{text: " ", span: i, space: true})
				}
			default:
				word.WriteRune(r)
			}
		}
		flush()
	}
	return out
}

type run struct {
	text  string
	span  int
	width float64
}

// renderSpans lays tokens out line by line. Consecutive tokens of the same
// span on one line are drawn as a single text run.
func (e *Engine) renderSpans(spans []TextSpan, indent float64) {
	e.ensurePage()
	left := e.Margins.Left + indent
	maxWidth := e.pageWidth - e.Margins.Right - left

	var line []run
	lineWidth := 0.0
	lineSize := 0.0

	flush := func(force bool) {
		for len(line) > 0 {
			last := &line[len(line)-1]
			trimmed := strings.TrimRight(last.text, " ")
			if trimmed == last.text {
				break
			}
			if trimmed == "" {
				line = line[:len(line)-1]
				continue
			}
			s := spans[last.span]
			last.text = trimmed
			last.width = e.b.MeasureText(trimmed, e.spanFont(s), e.spanSize(s))
		}
		if len(line) == 0 && !force {
			return
		}
		if lineSize == 0 {
			lineSize = e.DefaultFontSize
		}
		height := lineSize * e.LineHeight
		e.checkPageBreak(height)
		baseline := e.cursorY - lineSize
		x := left
		for _, r := range line {
			e.drawRun(r, x, baseline, spans[r.span])
			x += r.width
		}
		e.cursorY -= height
		line = line[:0]
		lineWidth = 0
		lineSize = 0
	}

	appendRun := func(t token, w float64) {
		if n := len(line); n > 0 && line[n-1].span == t.span {
			line[n-1].text += t.text
			line[n-1].width += w
		} else {
			line = append(line, run{text: t.text, span: t.span, width: w})
		}
		lineWidth += w
		lineSize = max(lineSize, e.spanSize(spans[t.span]))
	}

	for _, t := range tokenize(spans) {
		if t.br {
			flush(true)
			continue
		}
		s := spans[t.span]
		font, size := e.spanFont(s), e.spanSize(s)
		if t.space && len(line) == 0 {
			continue
		}
		if t.space {
			// Spaces between words join the preceding run.
			last := spans[line[len(line)-1].span]
			t.span = line[len(line)-1].span
			appendRun(t, e.b.MeasureText(" ", e.spanFont(last), e.spanSize(last)))
			continue
		}
		w := e.b.MeasureText(t.text, font, size)
		if lineWidth+w <= maxWidth {
			appendRun(t, w)
			continue
		}
		if len(line) > 0 {
			flush(false)
		}
		if w <= maxWidth {
			appendRun(t, w)
			continue
		}
		// Break words wider than the line at character boundaries.
		var chunk strings.Builder
		chunkWidth := 0.0
		for _, r := range t.text {
			rw := e.b.MeasureText(string(r), font, size)
			if chunkWidth+rw > maxWidth && chunk.Len() > 0 {
				appendRun(token{text: chunk.String(), span: t.span}, chunkWidth)
				flush(false)
				chunk.Reset()
				chunkWidth = 0
			}
			chunk.WriteRune(r)
			chunkWidth += rw
		}
		if chunk.Len() > 0 {
			appendRun(token{text: chunk.String(), span: t.span}, chunkWidth)
		}
	}
	flush(false)
}

func (e *Engine) drawRun(r run, x, baseline float64, s TextSpan) {
	size := e.spanSize(s)
	e.currentPage.DrawText(r.text, x, baseline, builder.TextOptions{
		Font:      e.spanFont(s),
		FontSize:  size,
		Color:     s.Color,
		Strike:    s.Strikethrough,
		Underline: s.Underline,
	})
	if s.Link != "" {
		rect := semantic.Rectangle{LLX: x, LLY: baseline - size*0.2, URX: x + r.width, URY: baseline + size*0.8}
		e.currentPage.AddAnnotation(semantic.NewLink(rect, s.Link))
	}
}
