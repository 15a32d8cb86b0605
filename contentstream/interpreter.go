package contentstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/fonts"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/parser"
	"github.com/wudi/charterkit/scanner"
)

// DefaultMaxDepth bounds nested form XObject execution.
const DefaultMaxDepth = 12

// MaxRuleThickness is the largest filled-rectangle height, in user space
// units, still reported as a Segment.
const MaxRuleThickness = 3.0

const maxOperands = 1024

// Interpreter executes page content streams against a parsed document.
// Font decoders are cached per font dictionary, so an Interpreter should
// not be shared across goroutines.
type Interpreter struct {
	doc      *parser.Document
	log      observability.Logger
	maxDepth int
	fonts    map[*raw.DictObj]*fonts.Decoder
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithLogger(l observability.Logger) Option { return func(in *Interpreter) { in.log = observability.OrNop(l) } }
func WithMaxDepth(n int) Option               { return func(in *Interpreter) { in.maxDepth = n } }

func New(doc *parser.Document, opts ...Option) *Interpreter {
	in := &Interpreter{
		doc:      doc,
		log:      observability.NopLogger{},
		maxDepth: DefaultMaxDepth,
		fonts:    make(map[*raw.DictObj]*fonts.Decoder),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// DisplayMatrix maps user space of page to an upright space whose origin is
// the lower-left corner of the crop box as the page is displayed.
func DisplayMatrix(p *parser.Page) coords.Matrix {
	b := p.CropBox
	switch p.Rotate {
	case 90:
		return coords.Matrix{0, -1, 1, 0, -b.LLY, b.URX}
	case 180:
		return coords.Matrix{-1, 0, 0, -1, b.URX, b.URY}
	case 270:
		return coords.Matrix{0, 1, -1, 0, b.URY, -b.LLX}
	}
	return coords.Matrix{1, 0, 0, 1, -b.LLX, -b.LLY}
}

// DisplaySize returns the width and height of the page as displayed.
func DisplaySize(p *parser.Page) (float64, float64) {
	if p.Rotate == 90 || p.Rotate == 270 {
		return p.CropBox.Height(), p.CropBox.Width()
	}
	return p.CropBox.Width(), p.CropBox.Height()
}

// PageContent concatenates the decoded /Contents streams of a page.
func PageContent(ctx context.Context, doc *parser.Document, p *parser.Page) ([]byte, error) {
	contents, ok := doc.Get(p.Dict, "Contents")
	if !ok {
		return nil, nil
	}
	var parts []raw.Object
	if arr, isArr := contents.(*raw.ArrayObj); isArr {
		parts = arr.Items
	} else {
		parts = []raw.Object{contents}
	}
	var buf bytes.Buffer
	for _, part := range parts {
		data, _, err := doc.Stream(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("page %d contents: %w", p.Number, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunPage executes a page in display space.
func (in *Interpreter) RunPage(ctx context.Context, p *parser.Page, h Handler) error {
	content, err := PageContent(ctx, in.doc, p)
	if err != nil {
		return err
	}
	return in.Run(ctx, content, p.Resources, DisplayMatrix(p), h)
}

// Run executes content with the given resources and initial CTM.
func (in *Interpreter) Run(ctx context.Context, content []byte, resources *raw.DictObj, ctm coords.Matrix, h Handler) error {
	r := &run{in: in, ctx: ctx, h: h, res: resources, active: make(map[*raw.StreamObj]bool)}
	r.st.cur = newGraphicsState(ctm)
	return r.exec(content)
}

type line struct{ a, b coords.Point }

type run struct {
	in     *Interpreter
	ctx    context.Context
	h      Handler
	res    *raw.DictObj
	st     stateStack
	tm     coords.Matrix
	tlm    coords.Matrix
	depth  int
	active map[*raw.StreamObj]bool

	lines      []line
	rects      [][4]coords.Point
	cur, start coords.Point
}

func (r *run) exec(content []byte) error {
	s := scanner.New(content)
	var operands []raw.Object
	for n := 0; ; n++ {
		if n&0xFF == 0 {
			if err := r.ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := s.Peek()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("content stream: %w", err)
		}
		if tok.Type != scanner.TokenKeyword {
			obj, err := s.ReadObject()
			if err != nil {
				return fmt.Errorf("content stream operand: %w", err)
			}
			if len(operands) < maxOperands {
				operands = append(operands, obj)
			}
			continue
		}
		s.Next()
		if tok.Str == "BI" {
			if err := r.inlineImage(s); err != nil {
				return err
			}
			operands = operands[:0]
			continue
		}
		if err := r.op(tok.Str, operands); err != nil {
			return err
		}
		operands = operands[:0]
	}
}

func (r *run) op(name string, ops []raw.Object) error {
	gs := &r.st.cur
	ts := &gs.Text
	switch name {
	case "q":
		r.st.Save()
	case "Q":
		if err := r.st.Restore(); err != nil {
			r.in.log.Debug("unbalanced Q ignored")
		}
	case "cm":
		if m, ok := matrix(ops); ok {
			gs.CTM = m.Multiply(gs.CTM)
		}
	case "w":
		gs.LineWidth = num(ops, 0)
	case "gs":
		r.extGState(ops)

	// Colour
	case "g":
		gs.Fill, gs.FillSpace = Gray(num(ops, 0)), 1
	case "G":
		gs.Stroke, gs.StrokeSpace = Gray(num(ops, 0)), 1
	case "rg":
		gs.Fill, gs.FillSpace = FromComponents(numbers(ops), gs.Fill), 3
	case "RG":
		gs.Stroke, gs.StrokeSpace = FromComponents(numbers(ops), gs.Stroke), 3
	case "k":
		gs.Fill, gs.FillSpace = FromComponents(numbers(ops), gs.Fill), 4
	case "K":
		gs.Stroke, gs.StrokeSpace = FromComponents(numbers(ops), gs.Stroke), 4
	case "cs":
		gs.FillSpace = r.colorSpace(ops)
		gs.Fill = initialColor(gs.FillSpace)
	case "CS":
		gs.StrokeSpace = r.colorSpace(ops)
		gs.Stroke = initialColor(gs.StrokeSpace)
	case "sc", "scn":
		gs.Fill = spaceColor(numbers(ops), gs.FillSpace, gs.Fill)
	case "SC", "SCN":
		gs.Stroke = spaceColor(numbers(ops), gs.StrokeSpace, gs.Stroke)

	// Path construction
	case "m":
		r.cur = gs.CTM.Transform(coords.Point{X: num(ops, 0), Y: num(ops, 1)})
		r.start = r.cur
	case "l":
		p := gs.CTM.Transform(coords.Point{X: num(ops, 0), Y: num(ops, 1)})
		r.lines = append(r.lines, line{r.cur, p})
		r.cur = p
	case "c":
		r.cur = gs.CTM.Transform(coords.Point{X: num(ops, 4), Y: num(ops, 5)})
	case "v", "y":
		r.cur = gs.CTM.Transform(coords.Point{X: num(ops, 2), Y: num(ops, 3)})
	case "h":
		r.closePath()
	case "re":
		x, y, w, hgt := num(ops, 0), num(ops, 1), num(ops, 2), num(ops, 3)
		m := gs.CTM
		r.rects = append(r.rects, [4]coords.Point{
			m.Transform(coords.Point{X: x, Y: y}),
			m.Transform(coords.Point{X: x + w, Y: y}),
			m.Transform(coords.Point{X: x + w, Y: y + hgt}),
			m.Transform(coords.Point{X: x, Y: y + hgt}),
		})
		r.cur = m.Transform(coords.Point{X: x, Y: y})
		r.start = r.cur

	// Path painting
	case "S":
		r.paint(true, false)
	case "s":
		r.closePath()
		r.paint(true, false)
	case "f", "F", "f*":
		r.paint(false, true)
	case "B", "B*":
		r.paint(true, true)
	case "b", "b*":
		r.closePath()
		r.paint(true, true)
	case "n":
		r.clearPath()

	// Text objects and state
	case "BT":
		r.tm, r.tlm = coords.Identity(), coords.Identity()
	case "ET":
	case "Tf":
		if n, ok := nameAt(ops, 0); ok {
			ts.FontName = n
			ts.Font = r.font(n)
		}
		ts.FontSize = num(ops, 1)
	case "Tc":
		ts.CharSpace = num(ops, 0)
	case "Tw":
		ts.WordSpace = num(ops, 0)
	case "Tz":
		ts.HScale = num(ops, 0) / 100
	case "TL":
		ts.Leading = num(ops, 0)
	case "Ts":
		ts.Rise = num(ops, 0)
	case "Tr":
		ts.RenderMode = TextRenderMode(num(ops, 0))
	case "Tm":
		if m, ok := matrix(ops); ok {
			r.tm, r.tlm = m, m
		}
	case "Td":
		r.moveLine(num(ops, 0), num(ops, 1))
	case "TD":
		ts.Leading = -num(ops, 1)
		r.moveLine(num(ops, 0), num(ops, 1))
	case "T*":
		r.moveLine(0, -ts.Leading)

	// Text showing
	case "Tj":
		if s, ok := stringAt(ops, 0); ok {
			r.show(s)
		}
	case "'":
		r.moveLine(0, -ts.Leading)
		if s, ok := stringAt(ops, 0); ok {
			r.show(s)
		}
	case "\"":
		ts.WordSpace = num(ops, 0)
		ts.CharSpace = num(ops, 1)
		r.moveLine(0, -ts.Leading)
		if s, ok := stringAt(ops, 2); ok {
			r.show(s)
		}
	case "TJ":
		if len(ops) == 0 {
			break
		}
		arr, ok := ops[0].(*raw.ArrayObj)
		if !ok {
			break
		}
		for _, it := range arr.Items {
			switch v := it.(type) {
			case raw.StringObj:
				r.show(v.Bytes)
			case raw.NumberObj:
				tx := -v.Float() / 1000 * ts.FontSize * ts.HScale
				r.tm = coords.Translate(tx, 0).Multiply(r.tm)
			}
		}

	// XObjects
	case "Do":
		if n, ok := nameAt(ops, 0); ok {
			return r.xobject(n)
		}
	}
	return nil
}

func (r *run) moveLine(tx, ty float64) {
	r.tlm = coords.Translate(tx, ty).Multiply(r.tlm)
	r.tm = r.tlm
}

func (r *run) closePath() {
	if r.cur != r.start {
		r.lines = append(r.lines, line{r.cur, r.start})
	}
	r.cur = r.start
}

func (r *run) clearPath() {
	r.lines = r.lines[:0]
	r.rects = r.rects[:0]
}

func (r *run) paint(stroke, fill bool) {
	defer r.clearPath()
	gs := &r.st.cur
	if stroke {
		width := gs.LineWidth * (gs.CTM.ScaleX() + gs.CTM.ScaleY()) / 2
		for _, l := range r.lines {
			r.h.Segment(Segment{From: l.a, To: l.b, Width: width, Color: gs.Stroke})
		}
		for _, q := range r.rects {
			for i := range q {
				r.h.Segment(Segment{From: q[i], To: q[(i+1)%4], Width: width, Color: gs.Stroke})
			}
		}
	}
	if !fill {
		return
	}
	for _, q := range r.rects {
		r.thinFill(coords.RectFromPoints(q[:]...))
	}
	if len(r.lines) > 0 && len(r.rects) == 0 {
		pts := make([]coords.Point, 0, 2*len(r.lines))
		for _, l := range r.lines {
			pts = append(pts, l.a, l.b)
		}
		r.thinFill(coords.RectFromPoints(pts...))
	}
}

// thinFill reports a filled area as a rule when it is long and thin.
func (r *run) thinFill(box coords.Rect) {
	w, h := box.Width(), box.Height()
	fill := r.st.cur.Fill
	switch {
	case h <= MaxRuleThickness && w > 2*h:
		y := (box.LLY + box.URY) / 2
		r.h.Segment(Segment{From: coords.Point{X: box.LLX, Y: y}, To: coords.Point{X: box.URX, Y: y}, Width: h, Color: fill, Filled: true})
	case w <= MaxRuleThickness && h > 2*w:
		x := (box.LLX + box.URX) / 2
		r.h.Segment(Segment{From: coords.Point{X: x, Y: box.LLY}, To: coords.Point{X: x, Y: box.URY}, Width: w, Color: fill, Filled: true})
	}
}

func (r *run) font(name string) *fonts.Decoder {
	fontRes, _ := r.in.doc.GetDict(r.res, "Font")
	var dict *raw.DictObj
	if fontRes != nil {
		dict, _ = r.in.doc.GetDict(fontRes, name)
	}
	if dict == nil {
		r.in.log.Debug("font resource missing", observability.String("font", name))
	}
	if dec, ok := r.in.fonts[dict]; ok {
		return dec
	}
	dec := fonts.NewDecoder(r.ctx, r.in.doc, dict)
	r.in.fonts[dict] = dec
	return dec
}

func (r *run) show(b []byte) {
	ts := &r.st.cur.Text
	if ts.Font == nil {
		ts.Font = r.font(ts.FontName)
	}
	var text strings.Builder
	var width float64
	for _, g := range ts.Font.Decode(b) {
		tx := g.Width/1000*ts.FontSize + ts.CharSpace
		if g.Space {
			tx += ts.WordSpace
		}
		width += tx * ts.HScale
		text.WriteString(g.Text)
	}
	trm := r.tm.Multiply(r.st.cur.CTM)
	r.tm = coords.Translate(width, 0).Multiply(r.tm)
	if text.Len() == 0 {
		return
	}

	ascent, descent := ts.Font.Ascent, ts.Font.Descent
	if ascent <= 0 {
		ascent = 750
	}
	if descent >= 0 {
		descent = -250
	}
	lo := descent/1000*ts.FontSize + ts.Rise
	hi := ascent/1000*ts.FontSize + ts.Rise
	box := coords.RectFromPoints(
		trm.Transform(coords.Point{X: 0, Y: lo}),
		trm.Transform(coords.Point{X: width, Y: lo}),
		trm.Transform(coords.Point{X: 0, Y: hi}),
		trm.Transform(coords.Point{X: width, Y: hi}),
	)
	color := r.st.cur.Fill
	if ts.RenderMode == TextStroke || ts.RenderMode == TextStrokeClip {
		color = r.st.cur.Stroke
	}
	space := ts.Font.Decode([]byte{' '})
	spaceWidth := 250.0
	if len(space) == 1 && space[0].Width > 0 {
		spaceWidth = space[0].Width
	}
	r.h.Glyphs(Glyphs{
		Text:       text.String(),
		Font:       ts.Font.Name,
		Bold:       ts.Font.Bold || ts.RenderMode == TextFillStroke,
		Italic:     ts.Font.Italic,
		Size:       ts.FontSize * trm.ScaleY(),
		Origin:     trm.Transform(coords.Point{X: 0, Y: ts.Rise}),
		End:        trm.Transform(coords.Point{X: width, Y: ts.Rise}),
		Box:        box,
		Color:      color,
		Mode:       ts.RenderMode,
		SpaceWidth: spaceWidth / 1000 * ts.FontSize * ts.HScale * trm.ScaleX(),
	})
}

func (r *run) colorSpace(ops []raw.Object) int {
	name, ok := nameAt(ops, 0)
	if !ok {
		return 1
	}
	if n, ok := componentsFor(name); ok {
		return n
	}
	spaces, _ := r.in.doc.GetDict(r.res, "ColorSpace")
	if spaces == nil {
		return 1
	}
	cs, ok := r.in.doc.Get(spaces, name)
	if !ok {
		return 1
	}
	switch v := cs.(type) {
	case raw.NameObj:
		if n, ok := componentsFor(v.Val); ok {
			return n
		}
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return 1
		}
		family, _ := r.in.doc.Resolve(v.Items[0])
		fam, _ := family.(raw.NameObj)
		switch fam.Val {
		case "ICCBased":
			if len(v.Items) > 1 {
				obj, err := r.in.doc.Resolve(v.Items[1])
				if st, isStream := obj.(*raw.StreamObj); err == nil && isStream {
					if n, ok := r.in.doc.GetInt(st.Dict, "N"); ok {
						return int(n)
					}
				}
			}
			return 3
		case "Separation":
			return spaceTint
		case "DeviceN":
			if len(v.Items) > 1 {
				if names, err := r.in.doc.Resolve(v.Items[1]); err == nil {
					if a, ok := names.(*raw.ArrayObj); ok {
						return a.Len()
					}
				}
			}
		case "Indexed":
			return 1
		default:
			if n, ok := componentsFor(fam.Val); ok {
				return n
			}
		}
	}
	return 1
}

// spaceTint marks a single-component space where 1 means full ink.
const spaceTint = -1

func spaceColor(vals []float64, space int, prev Color) Color {
	if space == spaceTint && len(vals) == 1 {
		return Gray(1 - vals[0])
	}
	if space == 0 {
		return prev
	}
	return FromComponents(vals, prev)
}

func (r *run) extGState(ops []raw.Object) {
	name, ok := nameAt(ops, 0)
	if !ok {
		return
	}
	states, _ := r.in.doc.GetDict(r.res, "ExtGState")
	if states == nil {
		return
	}
	gs, ok := r.in.doc.GetDict(states, name)
	if !ok {
		return
	}
	if lw, ok := r.in.doc.GetFloat(gs, "LW"); ok {
		r.st.cur.LineWidth = lw
	}
}

func (r *run) xobject(name string) error {
	xobjs, _ := r.in.doc.GetDict(r.res, "XObject")
	if xobjs == nil {
		return nil
	}
	ref, _ := xobjs.Get(name)
	obj, ok := r.in.doc.Get(xobjs, name)
	if !ok {
		return nil
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil
	}
	subtype, _ := r.in.doc.GetName(st.Dict, "Subtype")
	ctm := r.st.cur.CTM
	switch subtype {
	case "Image":
		img := Image{Name: name, Stream: st, Dict: st.Dict, Box: coords.Rect{URX: 1, URY: 1}.Transform(ctm)}
		if rr, isRef := ref.(raw.RefObj); isRef {
			img.Ref = rr.R
		}
		r.h.Image(img)
		return nil
	case "Form":
	default:
		return nil
	}
	if r.depth >= r.in.maxDepth {
		r.in.log.Warn("form nesting limit reached", observability.String("xobject", name), observability.Int("depth", r.depth))
		return nil
	}
	if r.active[st] {
		r.in.log.Warn("recursive form skipped", observability.String("xobject", name))
		return nil
	}
	data, _, err := r.in.doc.Stream(r.ctx, st)
	if err != nil {
		r.in.log.Warn("form content unreadable", observability.String("xobject", name), observability.Err(err))
		return nil
	}
	if m, ok := r.in.doc.GetArray(st.Dict, "Matrix"); ok {
		if vals, ok := r.in.doc.Floats(m); ok && len(vals) == 6 {
			ctm = coords.Matrix{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}.Multiply(ctm)
		}
	}
	res := r.res
	if formRes, ok := r.in.doc.GetDict(st.Dict, "Resources"); ok {
		res = formRes
	}
	child := &run{in: r.in, ctx: r.ctx, h: r.h, res: res, depth: r.depth + 1, active: r.active}
	child.st.cur = r.st.cur
	child.st.cur.CTM = ctm
	r.active[st] = true
	defer delete(r.active, st)
	return child.exec(data)
}

func num(ops []raw.Object, i int) float64 {
	if i >= len(ops) {
		return 0
	}
	f, _ := raw.Float(ops[i])
	return f
}

func numbers(ops []raw.Object) []float64 {
	out := make([]float64, 0, len(ops))
	for _, o := range ops {
		if f, ok := raw.Float(o); ok {
			out = append(out, f)
		}
	}
	return out
}

func nameAt(ops []raw.Object, i int) (string, bool) {
	if i >= len(ops) {
		return "", false
	}
	n, ok := ops[i].(raw.NameObj)
	return n.Val, ok
}

func stringAt(ops []raw.Object, i int) ([]byte, bool) {
	if i >= len(ops) {
		return nil, false
	}
	s, ok := ops[i].(raw.StringObj)
	return s.Bytes, ok
}

func matrix(ops []raw.Object) (coords.Matrix, bool) {
	vals := numbers(ops)
	if len(vals) != 6 {
		return coords.Matrix{}, false
	}
	return coords.Matrix{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}, true
}
