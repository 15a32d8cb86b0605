package fonts

import "strings"

// Advance widths in 1/1000 em for printable ASCII (0x20..0x7E).
var helveticaASCII = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldASCII = [95]int{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

var timesASCII = [95]int{
	250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
	921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
	556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
	333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
	500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
}

// Common non-ASCII punctuation shared by the sans and serif faces.
var punctuationWidths = map[rune]int{
	'–': 556, '—': 1000, '•': 350, '‘': 222, '’': 222, '“': 333, '”': 333,
	'…': 1000, '€': 556, '™': 1000, '\u00a0': 278,
}

// Metrics gives glyph advances for one of the standard 14 fonts.
type Metrics struct {
	Name        string
	Bold        bool
	Italic      bool
	Fixed       bool
	ascii       *[95]int
	Ascent      float64
	Descent     float64
	CapHeight   float64
	XHeight     float64
	fallback    int
	punctuation map[rune]int
}

// Width returns the advance of r in 1/1000 em.
func (m *Metrics) Width(r rune) float64 {
	if m.Fixed {
		return 600
	}
	if r >= 0x20 && r <= 0x7E {
		return float64(m.ascii[r-0x20])
	}
	if w, ok := m.punctuation[r]; ok {
		return float64(w)
	}
	if r >= 0xC0 && r <= 0xFF {
		// Accented Latin-1 letters share the advance of their base letter
		// closely enough for layout.
		if base := latinBase(r); base != 0 {
			return float64(m.ascii[base-0x20])
		}
	}
	return float64(m.fallback)
}

func latinBase(r rune) rune {
	const bases = "AAAAAAACEEEEIIIIDNOOOOO*OUUUUYPsaaaaaaaceeeeiiiidnooooo/ouuuuypy"
	b := rune(bases[r-0xC0])
	if b == '*' || b == '/' {
		return 0
	}
	return b
}

// StandardMetrics returns metrics for a standard 14 font name, or for a
// close relative (Arial for Helvetica, TimesNewRoman for Times). Unknown
// names fall back to Helvetica with the weight taken from the name.
func StandardMetrics(baseFont string) *Metrics {
	name := stripSubset(baseFont)
	lower := strings.ToLower(name)
	bold := IsBoldName(name)
	italic := strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
	m := &Metrics{Name: name, Bold: bold, Italic: italic, punctuation: punctuationWidths, fallback: 556,
		Ascent: 718, Descent: -207, CapHeight: 718, XHeight: 523}
	switch {
	case strings.Contains(lower, "courier") || strings.Contains(lower, "mono"):
		m.Fixed = true
		m.Ascent, m.Descent, m.CapHeight, m.XHeight = 629, -157, 562, 426
	case strings.Contains(lower, "times") || strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		m.ascii = &timesASCII
		m.fallback = 500
		m.Ascent, m.Descent, m.CapHeight, m.XHeight = 683, -217, 662, 450
	case bold:
		m.ascii = &helveticaBoldASCII
		m.fallback = 611
	default:
		m.ascii = &helveticaASCII
	}
	return m
}

// IsBoldName reports whether a PostScript font name denotes a bold weight.
func IsBoldName(name string) bool {
	lower := strings.ToLower(stripSubset(name))
	for _, w := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// stripSubset removes a six-letter subset tag such as "ABCDEF+".
func stripSubset(name string) string {
	if len(name) > 7 && name[6] == '+' {
		for i := 0; i < 6; i++ {
			if name[i] < 'A' || name[i] > 'Z' {
				return name
			}
		}
		return name[7:]
	}
	return name
}
