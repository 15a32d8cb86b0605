package contentstream

import (
	"errors"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/fonts"
)

// Color is a device RGB colour with components in [0,1].
type Color struct {
	R, G, B float64
}

// Black is the initial fill and stroke colour.
var Black = Color{}

// Gray converts a single gray component.
func Gray(g float64) Color { return Color{clamp(g), clamp(g), clamp(g)} }

// CMYK converts with the naive complement formula.
func CMYK(c, m, y, k float64) Color {
	return Color{
		R: clamp((1 - c) * (1 - k)),
		G: clamp((1 - m) * (1 - k)),
		B: clamp((1 - y) * (1 - k)),
	}
}

// FromComponents interprets colour operands by their count: one is gray,
// three RGB and four CMYK. Other counts keep the previous colour.
func FromComponents(vals []float64, prev Color) Color {
	switch len(vals) {
	case 1:
		return Gray(vals[0])
	case 3:
		return Color{clamp(vals[0]), clamp(vals[1]), clamp(vals[2])}
	case 4:
		return CMYK(vals[0], vals[1], vals[2], vals[3])
	}
	return prev
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// GraphicsState is the part of the PDF graphics state that affects text
// position, colour and rule geometry.
type GraphicsState struct {
	CTM         coords.Matrix
	LineWidth   float64
	Fill        Color
	Stroke      Color
	FillSpace   int // components expected by sc/scn
	StrokeSpace int
	Text        TextState
}

// TextState holds the text parameters; it is saved with q/Q.
type TextState struct {
	Font       *fonts.Decoder
	FontName   string
	FontSize   float64
	CharSpace  float64
	WordSpace  float64
	HScale     float64 // Tz / 100
	Leading    float64
	Rise       float64
	RenderMode TextRenderMode
}

func newGraphicsState(ctm coords.Matrix) GraphicsState {
	return GraphicsState{
		CTM:         ctm,
		LineWidth:   1,
		FillSpace:   1,
		StrokeSpace: 1,
		Text:        TextState{HScale: 1},
	}
}

type stateStack struct {
	cur   GraphicsState
	saved []GraphicsState
}

func (s *stateStack) Save() { s.saved = append(s.saved, s.cur) }

func (s *stateStack) Restore() error {
	n := len(s.saved)
	if n == 0 {
		return errors.New("state stack empty")
	}
	s.cur = s.saved[n-1]
	s.saved = s.saved[:n-1]
	return nil
}

// componentsFor returns the component count of a colour space name. Named
// resources that are not device spaces are resolved by the interpreter.
func componentsFor(name string) (int, bool) {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return 1, true
	case "DeviceRGB", "RGB", "CalRGB", "Lab":
		return 3, true
	case "DeviceCMYK", "CMYK":
		return 4, true
	case "Pattern":
		return 0, true
	}
	return 0, false
}

// initialColor is the colour selected by cs/CS before any sc operator.
func initialColor(n int) Color {
	if n == 4 {
		return CMYK(0, 0, 0, 1)
	}
	return Black
}
