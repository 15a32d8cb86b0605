// Package semantic is the page-level model the builder produces and the
// writer serialises: pages of content operations, font resources and
// annotations.
package semantic

import (
	"time"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/fonts"
	"github.com/wudi/charterkit/security"
)

// Rectangle is a box in default user space.
type Rectangle = coords.Rect

// Document is a generated PDF before serialisation.
type Document struct {
	Pages      []*Page
	Info       *DocumentInfo
	Lang       string
	Encryption *security.Params
}

// Page models a single output page.
type Page struct {
	Index       int
	MediaBox    Rectangle
	Resources   *Resources
	Contents    []ContentStream
	Annotations []Annotation
}

// ContentStream is a sequence of operations on a page.
type ContentStream struct {
	Operations []Operation
}

// Operation is one content stream operator with its operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct{ Value []byte }

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

// Numbers wraps float values as operands.
func Numbers(vals ...float64) []Operand {
	out := make([]Operand, len(vals))
	for i, v := range vals {
		out[i] = NumberOperand{Value: v}
	}
	return out
}

// Resources lists what a page's content refers to by name.
type Resources struct {
	Fonts map[string]fonts.Font
}

// DocumentInfo is written to the trailer's /Info dictionary.
type DocumentInfo struct {
	Title        string
	Author       string
	Subject      string
	Creator      string
	Producer     string
	Keywords     []string
	CreationDate time.Time
	ModDate      time.Time
}

// Annotation is a page annotation the writer knows how to serialise.
type Annotation interface {
	Type() string
	Rect() Rectangle
	Base() *BaseAnnotation
}

// BaseAnnotation provides common fields for annotations.
type BaseAnnotation struct {
	Subtype  string
	RectVal  Rectangle
	Contents string
	Title    string
	Flags    int
	Color    []float64
}

func (a *BaseAnnotation) Type() string          { return a.Subtype }
func (a *BaseAnnotation) Rect() Rectangle       { return a.RectVal }
func (a *BaseAnnotation) Base() *BaseAnnotation { return a }

// StrikeOutAnnotation marks deleted text. QuadPoints holds eight numbers per
// struck region; when empty the writer derives them from the rectangle.
type StrikeOutAnnotation struct {
	BaseAnnotation
	QuadPoints []float64
}

// NewStrikeOut returns a red strike-out covering rect.
func NewStrikeOut(rect Rectangle, contents string) *StrikeOutAnnotation {
	return &StrikeOutAnnotation{BaseAnnotation: BaseAnnotation{
		Subtype:  "StrikeOut",
		RectVal:  rect,
		Contents: contents,
		Flags:    4,
		Color:    []float64{1, 0, 0},
	}}
}

// Quads returns the quad points, deriving a single quad from the rectangle
// when none were set.
func (a *StrikeOutAnnotation) Quads() []float64 {
	if len(a.QuadPoints) > 0 {
		return a.QuadPoints
	}
	r := a.RectVal
	return []float64{r.LLX, r.URY, r.URX, r.URY, r.LLX, r.LLY, r.URX, r.LLY}
}

// LinkAnnotation opens URI when clicked.
type LinkAnnotation struct {
	BaseAnnotation
	URI string
}

// NewLink returns a borderless URI link over rect.
func NewLink(rect Rectangle, uri string) *LinkAnnotation {
	return &LinkAnnotation{BaseAnnotation: BaseAnnotation{Subtype: "Link", RectVal: rect, Flags: 4}, URI: uri}
}
