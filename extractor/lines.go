package extractor

import (
	"math"
	"sort"
	"strings"

	"github.com/wudi/charterkit/contentstream"
	"github.com/wudi/charterkit/coords"
)

// RGB is a fill colour with components in [0,1].
type RGB = contentstream.Color

// Span is a run of text on one line sharing font, colour and marks.
type Span struct {
	Text   string
	Font   string
	Size   float64
	Color  RGB
	Bold   bool
	Struck bool
	Green  bool
	// Markup names an Underline, Highlight or Squiggly annotation over the
	// span. It is informational and never counts as an amendment.
	Markup string
	Box    coords.Rect
}

func (s Span) blank() bool { return strings.TrimSpace(s.Text) == "" }

// Line is a row of spans sharing a baseline.
type Line struct {
	Page     int
	Index    int // position on the page, top to bottom
	Baseline float64
	Box      coords.Rect
	Spans    []Span
}

// Text joins the spans.
func (l Line) Text() string {
	var sb strings.Builder
	for _, s := range l.Spans {
		sb.WriteString(s.Text)
	}
	return strings.TrimSpace(sb.String())
}

// Struck reports whether every non-blank span is struck through.
func (l Line) Struck() bool {
	return l.every(func(s Span) bool { return s.Struck })
}

// Added reports whether every non-blank span is green.
func (l Line) Added() bool {
	return l.every(func(s Span) bool { return s.Green && !s.Struck })
}

// Mixed reports a line that carries amendment marks on only part of it.
func (l Line) Mixed() bool {
	marked := false
	for _, s := range l.Spans {
		if !s.blank() && (s.Struck || s.Green) {
			marked = true
		}
	}
	return marked && !l.Struck() && !l.Added()
}

// OriginalText is the line as it read before amendment: green spans are
// dropped and struck spans kept.
func (l Line) OriginalText() string {
	return l.textWhere(func(s Span) bool { return !s.Green || s.Struck })
}

// CurrentText is the line as amended: struck spans are dropped.
func (l Line) CurrentText() string {
	return l.textWhere(func(s Span) bool { return !s.Struck })
}

func (l Line) every(pred func(Span) bool) bool {
	n := 0
	for _, s := range l.Spans {
		if s.blank() {
			continue
		}
		if !pred(s) {
			return false
		}
		n++
	}
	return n > 0
}

func (l Line) textWhere(keep func(Span) bool) string {
	var parts []string
	for _, s := range l.Spans {
		if keep(s) {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func joinLines(lines []Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text()
	}
	return strings.Join(texts, "\n")
}

// IsGreen applies the added-text colour rule.
func (o Options) IsGreen(c RGB) bool {
	return c.G >= o.GreenMin && c.G-math.Max(c.R, c.B) >= o.GreenMargin
}

type markKind int

const (
	markStrike markKind = iota
	markAnnotStrike
	markAnnotOther
)

type mark struct {
	rect    coords.Rect
	y       float64 // centre line for rules
	kind    markKind
	subtype string
}

type textRun struct {
	g      contentstream.Glyphs
	struck bool
	green  bool
	markup string
}

// assemble groups glyph runs into lines and classifies amendment marks.
func (e *Extractor) assemble(page int, rec *contentstream.Recorder, annots []Annotation) []Line {
	var marks []mark
	for _, s := range rec.Segments {
		if !s.Horizontal() {
			continue
		}
		y := (s.From.Y + s.To.Y) / 2
		half := math.Max(s.Width, 0.1) / 2
		marks = append(marks, mark{
			rect: coords.Rect{LLX: math.Min(s.From.X, s.To.X), LLY: y - half, URX: math.Max(s.From.X, s.To.X), URY: y + half},
			y:    y,
			kind: markStrike,
		})
	}
	for _, a := range annots {
		if a.Page != page {
			continue
		}
		kind := markAnnotOther
		switch a.Subtype {
		case "StrikeOut":
			kind = markAnnotStrike
		case "Underline", "Highlight", "Squiggly":
		default:
			continue
		}
		quads := a.QuadPoints
		if len(quads) == 0 {
			quads = []coords.Rect{a.Rect}
		}
		for _, q := range quads {
			marks = append(marks, mark{rect: q, y: (q.LLY + q.URY) / 2, kind: kind, subtype: a.Subtype})
		}
	}

	var bounds coords.Rect
	for _, m := range marks {
		bounds = bounds.Union(m.rect)
	}
	tree := newQuadTree(bounds)
	for i, m := range marks {
		tree.insert(m.rect, i)
	}

	runs := make([]textRun, 0, len(rec.Text))
	var hits []int
	for _, g := range rec.Text {
		if strings.TrimSpace(g.Text) == "" {
			continue
		}
		r := textRun{g: g, green: e.opts.IsGreen(g.Color)}
		hits = tree.query(g.Box, hits[:0])
		for _, i := range hits {
			m := marks[i]
			switch m.kind {
			case markStrike:
				r.struck = r.struck || e.strikes(g.Box, m.rect, m.y)
			case markAnnotStrike:
				r.struck = r.struck || e.covers(g.Box, m.rect)
			case markAnnotOther:
				if e.covers(g.Box, m.rect) {
					r.markup = m.subtype
				}
			}
		}
		runs = append(runs, r)
	}
	return e.group(page, runs)
}

// strikes reports a rule through the middle band of box covering enough
// of its width.
func (e *Extractor) strikes(box, rule coords.Rect, y float64) bool {
	h := box.Height()
	if h <= 0 || y < box.LLY+0.25*h || y > box.LLY+0.75*h {
		return false
	}
	return box.OverlapX(rule) >= e.opts.StrikeOverlap*box.Width()
}

// covers reports an annotation quad spanning the vertical centre of box
// and enough of its width.
func (e *Extractor) covers(box, quad coords.Rect) bool {
	mid := (box.LLY + box.URY) / 2
	if mid < quad.LLY || mid > quad.URY {
		return false
	}
	return box.OverlapX(quad) >= e.opts.StrikeOverlap*box.Width()
}

func (e *Extractor) group(page int, runs []textRun) []Line {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i].g.Origin, runs[j].g.Origin
		if a.Y != b.Y {
			return a.Y > b.Y
		}
		return a.X < b.X
	})
	var rows [][]textRun
	var base, size float64
	for _, r := range runs {
		n := len(rows)
		if n > 0 && math.Abs(r.g.Origin.Y-base) <= e.opts.LineTolerance*math.Max(r.g.Size, size) {
			rows[n-1] = append(rows[n-1], r)
			size = math.Max(size, r.g.Size)
			continue
		}
		rows = append(rows, []textRun{r})
		base, size = r.g.Origin.Y, r.g.Size
	}
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].g.Origin.X < row[j].g.Origin.X })
		l := Line{Page: page, Index: len(lines), Baseline: row[0].g.Origin.Y, Spans: e.spans(row)}
		for _, s := range l.Spans {
			l.Box = l.Box.Union(s.Box)
		}
		lines = append(lines, l)
	}
	return lines
}

func (e *Extractor) spans(row []textRun) []Span {
	var out []Span
	var prev *textRun
	for i := range row {
		r := &row[i]
		g := r.g
		space := false
		if prev != nil {
			// Overprinted duplicates are a fake-bold technique.
			if g.Text == prev.g.Text && math.Abs(g.Origin.X-prev.g.Origin.X) < 0.5 {
				out[len(out)-1].Bold = true
				continue
			}
			gap := g.Origin.X - prev.g.End.X
			size := math.Max(g.Size, prev.g.Size)
			space = gap > e.opts.SpaceFraction*size &&
				!strings.HasSuffix(prev.g.Text, " ") && !strings.HasPrefix(g.Text, " ")
		}
		text := g.Text
		if space {
			text = " " + text
		}
		if n := len(out); n > 0 && sameStyle(out[n-1], *r) {
			out[n-1].Text += text
			out[n-1].Box = out[n-1].Box.Union(g.Box)
		} else {
			out = append(out, Span{
				Text:   text,
				Font:   g.Font,
				Size:   round2(g.Size),
				Color:  g.Color,
				Bold:   g.Bold,
				Struck: r.struck,
				Green:  r.green,
				Markup: r.markup,
				Box:    g.Box,
			})
		}
		prev = r
	}
	return out
}

func sameStyle(s Span, r textRun) bool {
	return s.Font == r.g.Font && math.Abs(s.Size-r.g.Size) < 0.5 && s.Color == r.g.Color &&
		s.Bold == r.g.Bold && s.Struck == r.struck && s.Green == r.green && s.Markup == r.markup
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
