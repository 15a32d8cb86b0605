package fonts

import (
	"fmt"
	"strings"
)

// Font is a font the writer can place text with.
type Font interface {
	// Name is the PostScript base font name.
	Name() string
	// Measure returns the advance of text at size, in points.
	Measure(text string, size float64) float64
	// Encode converts text to show-string bytes.
	Encode(text string) []byte
}

// StandardFont is one of the standard 14 Type1 fonts, encoded with
// WinAnsiEncoding and never embedded.
type StandardFont struct {
	name    string
	metrics *Metrics
}

var standardNames = map[string]bool{
	"Helvetica": true, "Helvetica-Bold": true, "Helvetica-Oblique": true, "Helvetica-BoldOblique": true,
	"Times-Roman": true, "Times-Bold": true, "Times-Italic": true, "Times-BoldItalic": true,
	"Courier": true, "Courier-Bold": true, "Courier-Oblique": true, "Courier-BoldOblique": true,
}

// Standard returns the named standard font.
func Standard(name string) (*StandardFont, error) {
	if !standardNames[name] {
		return nil, fmt.Errorf("fonts: %q is not a standard font", name)
	}
	return &StandardFont{name: name, metrics: StandardMetrics(name)}, nil
}

// MustStandard is Standard for names known at compile time.
func MustStandard(name string) *StandardFont {
	f, err := Standard(name)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *StandardFont) Name() string      { return f.name }
func (f *StandardFont) Metrics() *Metrics { return f.metrics }
func (f *StandardFont) Encode(text string) []byte {
	return EncodeWinAnsi(text)
}

func (f *StandardFont) Measure(text string, size float64) float64 {
	var w float64
	for _, r := range text {
		if _, ok := winAnsiReverse[r]; !ok {
			r = '?'
		}
		w += f.metrics.Width(r)
	}
	return w * size / 1000
}

// Family picks the regular or bold member of a standard family.
func Family(base string, bold bool) string {
	family := base
	if i := strings.IndexByte(base, '-'); i > 0 {
		family = base[:i]
	}
	switch family {
	case "Times":
		if bold {
			return "Times-Bold"
		}
		return "Times-Roman"
	case "Courier":
		if bold {
			return "Courier-Bold"
		}
		return "Courier"
	}
	if bold {
		return "Helvetica-Bold"
	}
	return "Helvetica"
}
