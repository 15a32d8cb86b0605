package builder

import (
	"fmt"
	"strings"

	"github.com/wudi/charterkit/fonts"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/security"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(info *semantic.DocumentInfo) PDFBuilder
	SetLanguage(lang string) PDFBuilder
	SetEncryption(params security.Params) PDFBuilder
	RegisterFont(name, baseFont string) PDFBuilder
	RegisterTrueTypeFont(name string, data []byte) PDFBuilder
	MeasureText(text, font string, size float64) float64
	Build() (*semantic.Document, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder
	DrawTable(table Table, opts TableOptions) PageBuilder
	AddAnnotation(ann semantic.Annotation) PageBuilder
	// Size reports the page's media box dimensions.
	Size() (width, height float64)
	// Cursor returns the y coordinate below the last table drawn on this
	// page, or the top of the page when there is none.
	Cursor() float64
	Finish() PDFBuilder
}

// TextOptions configures text drawing. Strike and Underline draw a rule
// in the text colour through the middle band or just under the baseline.
type TextOptions struct {
	Font        string
	FontSize    float64
	Color       Color
	CharSpacing float64
	WordSpacing float64
	Strike      bool
	Underline   bool
}

// PathOptions configures rectangle painting.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	DashPattern []float64
	Fill        bool
	Stroke      bool
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions = PathOptions

// LineOptions configures line drawing.
type LineOptions struct {
	StrokeColor Color
	LineWidth   float64
	DashPattern []float64
}

// Color is an RGB colour with components in 0..1. The zero value is black.
type Color struct {
	R, G, B float64
}

// Hex parses "#RRGGBB" or "RRGGBB".
func Hex(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	var r, g, b uint8
	if len(s) != 6 {
		return Color{}, fmt.Errorf("builder: bad colour %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("builder: bad colour %q: %w", s, err)
	}
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}, nil
}

// MustHex is Hex for colours known at compile time.
func MustHex(s string) Color {
	c, err := Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Table defines a matrix of cells to draw. Cell text wraps to the column
// width and rows grow to fit.
type Table struct {
	Columns    []float64
	Rows       []TableRow
	HeaderRows int
}

// TableRow wraps a slice of cells.
type TableRow struct {
	Cells []TableCell
}

// TableCell configures individual table cell rendering.
type TableCell struct {
	Text            string
	Font            string
	FontSize        float64
	Padding         *CellPadding
	BackgroundColor *Color
	TextColor       Color
	ColSpan         int
	HAlign          HAlign
	VAlign          VAlign
}

// CellPadding defines per-side padding.
type CellPadding struct {
	Top, Right, Bottom, Left float64
}

// TableOptions configures table rendering.
type TableOptions struct {
	X            float64
	Y            float64
	RowHeight    float64
	CellPadding  float64
	BorderColor  Color
	BorderWidth  float64
	HeaderFill   *Color
	BottomMargin float64
	TopMargin    float64
	DefaultFont  string
	DefaultSize  float64
	LineHeight   float64
}

// HAlign controls horizontal text alignment within a cell.
type HAlign string

const (
	HAlignLeft   HAlign = "left"
	HAlignCenter HAlign = "center"
	HAlignRight  HAlign = "right"
)

// VAlign controls vertical text alignment within a cell.
type VAlign string

const (
	VAlignTop    VAlign = "top"
	VAlignMiddle VAlign = "middle"
	VAlignBottom VAlign = "bottom"
)

const (
	defaultFontName = "Helvetica"
	defaultFontSize = 12
)

type builderImpl struct {
	pages      []*semantic.Page
	info       *semantic.DocumentInfo
	lang       string
	encryption *security.Params
	fonts      map[string]fonts.Font
	fontErr    error
}

type pageBuilderImpl struct {
	parent *builderImpl
	page   *semantic.Page
	cursor float64
}

// NewBuilder constructs a PDFBuilder.
func NewBuilder() PDFBuilder { return &builderImpl{fonts: make(map[string]fonts.Font)} }

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &semantic.Page{Index: len(b.pages), MediaBox: semantic.Rectangle{URX: w, URY: h}}
	b.pages = append(b.pages, p)
	return &pageBuilderImpl{parent: b, page: p, cursor: h}
}

func (b *builderImpl) SetInfo(info *semantic.DocumentInfo) PDFBuilder {
	b.info = info
	return b
}

func (b *builderImpl) SetLanguage(lang string) PDFBuilder {
	b.lang = lang
	return b
}

func (b *builderImpl) SetEncryption(params security.Params) PDFBuilder {
	b.encryption = &params
	return b
}

func (b *builderImpl) RegisterFont(name, baseFont string) PDFBuilder {
	f, err := fonts.Standard(baseFont)
	if err != nil {
		b.fontErr = err
		return b
	}
	b.fonts[name] = f
	return b
}

func (b *builderImpl) RegisterTrueTypeFont(name string, data []byte) PDFBuilder {
	f, err := fonts.LoadTrueType(name, data)
	if err != nil {
		b.fontErr = fmt.Errorf("register %s: %w", name, err)
		return b
	}
	b.fonts[name] = f
	return b
}

func (b *builderImpl) MeasureText(text, font string, size float64) float64 {
	f, _ := b.fontForName(font)
	if size <= 0 {
		size = defaultFontSize
	}
	return f.Measure(text, size)
}

func (b *builderImpl) Build() (*semantic.Document, error) {
	if b.fontErr != nil {
		return nil, b.fontErr
	}
	for i, p := range b.pages {
		p.Index = i
	}
	return &semantic.Document{
		Pages:      b.pages,
		Info:       b.info,
		Lang:       b.lang,
		Encryption: b.encryption,
	}, nil
}

// fontForName resolves a registered font. Unregistered standard font names
// register themselves; anything else falls back to Helvetica.
func (b *builderImpl) fontForName(name string) (fonts.Font, string) {
	if name == "" {
		name = defaultFontName
	}
	if f, ok := b.fonts[name]; ok {
		return f, name
	}
	f, err := fonts.Standard(name)
	if err != nil {
		f = fonts.MustStandard(defaultFontName)
	}
	b.fonts[name] = f
	return f, name
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	ops := p.ensureContentOps()
	font, fontName := p.parent.fontForName(opts.Font)
	p.ensureResources().Fonts[fontName] = font
	size := opts.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	*ops = append(*ops, semantic.Operation{Operator: "q"})
	if !isZeroColor(opts.Color) {
		p.appendColorOp(ops, opts.Color, false)
	}
	*ops = append(*ops, semantic.Operation{Operator: "BT"})
	*ops = append(*ops, semantic.Operation{
		Operator: "Tf",
		Operands: []semantic.Operand{semantic.NameOperand{Value: fontName}, semantic.NumberOperand{Value: size}},
	})
	if opts.CharSpacing != 0 {
		*ops = append(*ops, semantic.Operation{Operator: "Tc", Operands: semantic.Numbers(opts.CharSpacing)})
	}
	if opts.WordSpacing != 0 {
		*ops = append(*ops, semantic.Operation{Operator: "Tw", Operands: semantic.Numbers(opts.WordSpacing)})
	}
	*ops = append(*ops, semantic.Operation{Operator: "Tm", Operands: semantic.Numbers(1, 0, 0, 1, x, y)})
	*ops = append(*ops, semantic.Operation{
		Operator: "Tj",
		Operands: []semantic.Operand{semantic.StringOperand{Value: font.Encode(text)}},
	})
	*ops = append(*ops, semantic.Operation{Operator: "ET"})
	*ops = append(*ops, semantic.Operation{Operator: "Q"})

	if opts.Strike || opts.Underline {
		width := font.Measure(text, size)
		if opts.CharSpacing != 0 {
			width += opts.CharSpacing * float64(len([]rune(text)))
		}
		lw := size / 16
		if opts.Strike {
			p.DrawLine(x, y+0.3*size, x+width, y+0.3*size, LineOptions{StrokeColor: opts.Color, LineWidth: lw})
		}
		if opts.Underline {
			p.DrawLine(x, y-0.12*size, x+width, y-0.12*size, LineOptions{StrokeColor: opts.Color, LineWidth: lw})
		}
	}
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	po := opts
	if !po.Stroke && !po.Fill {
		po.Stroke = true
	}
	ops := p.ensureContentOps()
	*ops = append(*ops, semantic.Operation{Operator: "q"})
	p.applyPathState(ops, po)
	*ops = append(*ops, semantic.Operation{Operator: "re", Operands: semantic.Numbers(x, y, width, height)})
	*ops = append(*ops, semantic.Operation{Operator: paintOperator(po.Fill, po.Stroke)})
	*ops = append(*ops, semantic.Operation{Operator: "Q"})
	return p
}

func (p *pageBuilderImpl) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder {
	ops := p.ensureContentOps()
	*ops = append(*ops, semantic.Operation{Operator: "q"})
	p.applyPathState(ops, PathOptions{
		StrokeColor: opts.StrokeColor,
		LineWidth:   opts.LineWidth,
		DashPattern: opts.DashPattern,
		Stroke:      true,
	})
	*ops = append(*ops, semantic.Operation{Operator: "m", Operands: semantic.Numbers(x1, y1)})
	*ops = append(*ops, semantic.Operation{Operator: "l", Operands: semantic.Numbers(x2, y2)})
	*ops = append(*ops, semantic.Operation{Operator: "S"})
	*ops = append(*ops, semantic.Operation{Operator: "Q"})
	return p
}

func (p *pageBuilderImpl) AddAnnotation(ann semantic.Annotation) PageBuilder {
	if ann != nil {
		p.page.Annotations = append(p.page.Annotations, ann)
	}
	return p
}

func (p *pageBuilderImpl) Size() (float64, float64) {
	return p.page.MediaBox.Width(), p.page.MediaBox.Height()
}

func (p *pageBuilderImpl) Cursor() float64 { return p.cursor }

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

func (p *pageBuilderImpl) ensureResources() *semantic.Resources {
	if p.page.Resources == nil {
		p.page.Resources = &semantic.Resources{}
	}
	if p.page.Resources.Fonts == nil {
		p.page.Resources.Fonts = make(map[string]fonts.Font)
	}
	return p.page.Resources
}

func (p *pageBuilderImpl) ensureContentOps() *[]semantic.Operation {
	if len(p.page.Contents) == 0 {
		p.page.Contents = append(p.page.Contents, semantic.ContentStream{})
	}
	return &p.page.Contents[0].Operations
}

func (p *pageBuilderImpl) appendColorOp(ops *[]semantic.Operation, c Color, stroking bool) {
	op := "rg"
	if stroking {
		op = "RG"
	}
	*ops = append(*ops, semantic.Operation{Operator: op, Operands: semantic.Numbers(c.R, c.G, c.B)})
}

func (p *pageBuilderImpl) applyPathState(ops *[]semantic.Operation, opts PathOptions) {
	if opts.Fill {
		p.appendColorOp(ops, opts.FillColor, false)
	}
	if !opts.Stroke {
		return
	}
	p.appendColorOp(ops, opts.StrokeColor, true)
	if opts.LineWidth > 0 {
		*ops = append(*ops, semantic.Operation{Operator: "w", Operands: semantic.Numbers(opts.LineWidth)})
	}
	if len(opts.DashPattern) > 0 {
		*ops = append(*ops, semantic.Operation{
			Operator: "d",
			Operands: []semantic.Operand{
				semantic.ArrayOperand{Values: semantic.Numbers(opts.DashPattern...)},
				semantic.NumberOperand{Value: 0},
			},
		})
	}
}

func isZeroColor(c Color) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}
