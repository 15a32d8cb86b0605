// Package charter reads charter-party documents into their two parts: the
// Part I box of numbered commercial terms and the Part II clauses. Recap
// clause lines carry their amendment provenance from the extractor marks.
package charter

import (
	"fmt"
	"strings"
)

// Kind distinguishes the blank template from the negotiated recap.
type Kind string

const (
	Template Kind = "template"
	Recap    Kind = "recap"
)

// ParseKind accepts "template" or "recap" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Template, Recap:
		return k, nil
	}
	return "", fmt.Errorf("charter: unknown document kind %q", s)
}

// FieldCount is the number of Part I slots.
const FieldCount = 19

// Field is one numbered Part I entry.
type Field struct {
	Number    int    `json:"number"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	LineIndex int    `json:"line_index"`
}

// Origin records where a clause line's text comes from.
type Origin string

const (
	Original Origin = "original"
	Added    Origin = "added"
	Deleted  Origin = "deleted"
)

// ClauseLine is one line of a Part II clause. Number is nil for unnumbered
// continuation lines.
type ClauseLine struct {
	Number *int   `json:"line"`
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
	Page   int    `json:"page"`
}

// Original reports whether the line was part of the text before amendment.
func (l ClauseLine) Original() bool { return l.Origin != Added }

// Present reports whether the line survives in the amended text.
func (l ClauseLine) Present() bool { return l.Origin != Deleted }

// LineNumber formats Number, or "N/A" when the line is unnumbered.
func (l ClauseLine) LineNumber() string {
	if l.Number == nil {
		return "N/A"
	}
	return fmt.Sprint(*l.Number)
}

// Clause is a Part II clause. Title is the full header line.
type Clause struct {
	Number int          `json:"number"`
	Title  string       `json:"title"`
	Lines  []ClauseLine `json:"lines"`
}

// Document is a parsed charter party.
type Document struct {
	Kind     Kind              `json:"kind"`
	PartI    map[int]Field     `json:"part_i"`
	PartII   []Clause          `json:"part_ii"`
	Pages    int               `json:"pages"`
	Metadata map[string]string `json:"metadata"`
	// Text is the extracted plain text, pages joined in order.
	Text string `json:"-"`
}

// Fields returns Part I entries ordered by number.
func (d *Document) Fields() []Field {
	out := make([]Field, 0, len(d.PartI))
	for n := 1; n <= FieldCount; n++ {
		if f, ok := d.PartI[n]; ok {
			out = append(out, f)
		}
	}
	return out
}

// LineCount is the number of Part II lines across clauses.
func (d *Document) LineCount() int {
	n := 0
	for _, c := range d.PartII {
		n += len(c.Lines)
	}
	return n
}

// Clause returns the clause numbered n.
func (d *Document) Clause(n int) (Clause, bool) {
	for _, c := range d.PartII {
		if c.Number == n {
			return c, true
		}
	}
	return Clause{}, false
}
