package contentstream

import (
	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
)

// Glyphs is one shown string, positioned in the coordinate space handed to
// the interpreter (display space for RunPage).
type Glyphs struct {
	Text   string
	Font   string
	Bold   bool
	Italic bool
	Size   float64 // effective size after text and graphics matrices
	Origin coords.Point
	End    coords.Point
	Box    coords.Rect
	Color  Color
	Mode   TextRenderMode
	// SpaceWidth is the advance of a space in the same units as Box.
	SpaceWidth float64
}

// Segment is a painted straight rule: a stroked line or a filled
// rectangle thin enough to read as a line.
type Segment struct {
	From, To coords.Point
	Width    float64
	Color    Color
	Filled   bool
}

// Horizontal reports whether the segment runs left to right within a
// small slope tolerance.
func (s Segment) Horizontal() bool {
	dx, dy := s.To.X-s.From.X, s.To.Y-s.From.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx > 0 && dy <= dx*0.1
}

// Image is a painted image XObject or inline image.
type Image struct {
	Name   string
	Ref    raw.ObjectRef
	Stream *raw.StreamObj
	Inline bool
	Dict   *raw.DictObj
	Data   []byte // inline images only
	Box    coords.Rect
}

// Handler receives drawing events in content order.
type Handler interface {
	Glyphs(g Glyphs)
	Segment(s Segment)
	Image(img Image)
}

// Recorder is a Handler that keeps every event.
type Recorder struct {
	Text     []Glyphs
	Segments []Segment
	Images   []Image
}

func (r *Recorder) Glyphs(g Glyphs)   { r.Text = append(r.Text, g) }
func (r *Recorder) Segment(s Segment) { r.Segments = append(r.Segments, s) }
func (r *Recorder) Image(img Image)   { r.Images = append(r.Images, img) }
