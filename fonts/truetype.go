package fonts

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// TrueTypeFont is an embedded TrueType font written as Type0 Identity-H.
// Glyphs are addressed by glyph id; the font records which ids were used
// so the writer can emit /W and a ToUnicode map for them.
type TrueTypeFont struct {
	BaseName    string
	Data        []byte
	Ascent      float64
	Descent     float64
	CapHeight   float64
	ItalicAngle float64
	BBox        [4]float64

	face   *gofont.Face
	widths map[uint16]int
	dw     int

	mu   sync.Mutex
	used map[uint16]string
}

// LoadTrueType parses a TrueType or OpenType font. The whole file is
// embedded; no subsetting is done.
func LoadTrueType(name string, data []byte) (*TrueTypeFont, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load face: %w", err)
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(upem << 6)

	base := strings.TrimSpace(name)
	if ps, _ := f.Name(buf, sfnt.NameIDPostScript); ps != "" {
		base = ps
	}
	if base == "" {
		base = "CharterSans"
	}
	t := &TrueTypeFont{
		BaseName: base,
		Data:     data,
		face:     face,
		widths:   make(map[uint16]int, f.NumGlyphs()),
		used:     make(map[uint16]string),
	}
	for i := 0; i < f.NumGlyphs() && i <= math.MaxUint16; i++ {
		adv, err := f.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		t.widths[uint16(i)] = int(math.Round(scaleFixed(adv, upem)))
	}
	t.dw = t.widths[0]
	if t.dw == 0 {
		t.dw = 1000
	}
	metrics, _ := f.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := f.Bounds(buf, ppem, xfont.HintingNone)
	t.Ascent = scaleFixed(metrics.Ascent, upem)
	t.Descent = -scaleFixed(metrics.Descent, upem)
	t.CapHeight = t.Ascent
	if metrics.CapHeight > 0 {
		t.CapHeight = scaleFixed(metrics.CapHeight, upem)
	}
	t.BBox = [4]float64{
		scaleFixed(bounds.Min.X, upem), scaleFixed(-bounds.Max.Y, upem),
		scaleFixed(bounds.Max.X, upem), scaleFixed(-bounds.Min.Y, upem),
	}
	if post := f.PostTable(); post != nil {
		t.ItalicAngle = post.ItalicAngle
	}
	return t, nil
}

func scaleFixed(v fixed.Int26_6, upem sfnt.Units) float64 {
	return float64(v) * 1000.0 / (64.0 * float64(upem))
}

type shapedGlyph struct {
	id   uint16
	text string
}

// shape runs HarfBuzz over text and assigns each cluster's runes to the
// first glyph of the cluster.
func (t *TrueTypeFont) shape(text string) []shapedGlyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	out := (&shaping.HarfbuzzShaper{}).Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      t.face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    language.Latin,
		Language:  language.DefaultLanguage(),
	})
	glyphs := make([]shapedGlyph, len(out.Glyphs))
	for i, g := range out.Glyphs {
		glyphs[i].id = uint16(g.GlyphID)
		if i > 0 && out.Glyphs[i-1].ClusterIndex == g.ClusterIndex {
			continue
		}
		end := len(runes)
		for j := i + 1; j < len(out.Glyphs); j++ {
			if c := out.Glyphs[j].ClusterIndex; c != g.ClusterIndex {
				end = c
				break
			}
		}
		if start := g.ClusterIndex; start >= 0 && start < end && end <= len(runes) {
			glyphs[i].text = string(runes[start:end])
		}
	}
	return glyphs
}

func (t *TrueTypeFont) Name() string { return t.BaseName }

// Measure sums the horizontal metrics of the shaped glyphs, matching the
// widths written to /W.
func (t *TrueTypeFont) Measure(text string, size float64) float64 {
	var w int
	for _, g := range t.shape(text) {
		w += t.GlyphWidth(g.id)
	}
	return float64(w) * size / 1000
}

// Encode returns big-endian glyph ids and marks them used.
func (t *TrueTypeFont) Encode(text string) []byte {
	glyphs := t.shape(text)
	out := make([]byte, 0, 2*len(glyphs))
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range glyphs {
		out = append(out, byte(g.id>>8), byte(g.id))
		if prev, ok := t.used[g.id]; !ok || prev == "" {
			t.used[g.id] = g.text
		}
	}
	return out
}

// GlyphWidth returns the advance of a glyph in 1/1000 em.
func (t *TrueTypeFont) GlyphWidth(id uint16) int {
	if w, ok := t.widths[id]; ok {
		return w
	}
	return t.dw
}

// DefaultWidth is the /DW value.
func (t *TrueTypeFont) DefaultWidth() int { return t.dw }

// UsedGlyph is a glyph placed by Encode together with its source text.
type UsedGlyph struct {
	ID   uint16
	Text string
}

// Used returns the glyphs encoded so far ordered by id.
func (t *TrueTypeFont) Used() []UsedGlyph {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]UsedGlyph, 0, len(t.used))
	for id, text := range t.used {
		out = append(out, UsedGlyph{ID: id, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
