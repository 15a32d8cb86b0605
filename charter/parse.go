package charter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wudi/charterkit/extractor"
)

const partII = "Part II"

var (
	templateField = regexp.MustCompile(`^(\d+)\.\s+(.+?)(?:\s+\(|$)`)
	recapField    = regexp.MustCompile(`^(\d+)\.\s+(.+?)$`)
	fieldStart    = regexp.MustCompile(`^\d+\.\s+`)
	clauseHeader  = regexp.MustCompile(`^Clause\s*(\d+)\.\s*(.+)$`)
	numberedLine  = regexp.MustCompile(`^\s*(\d+)\s+(.+)$`)
	digitsOnly    = regexp.MustCompile(`^\d+$`)
)

// Parse builds a document from extracted lines in reading order.
func Parse(kind Kind, lines []extractor.Line) *Document {
	doc := &Document{Kind: kind, PartI: make(map[int]Field)}
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text()
	}
	doc.Text = strings.Join(texts, "\n")
	if kind == Recap {
		doc.PartI = recapPartI(lines)
	} else {
		doc.PartI = templatePartI(texts)
	}
	doc.PartII = parsePartII(kind, lines)
	return doc
}

// ParseText builds a document from plain text. Every line reads as original.
func ParseText(kind Kind, text string) *Document {
	raw := strings.Split(text, "\n")
	lines := make([]extractor.Line, 0, len(raw))
	for i, s := range raw {
		lines = append(lines, extractor.Line{Page: 1, Index: i, Spans: []extractor.Span{{Text: s}}})
	}
	return Parse(kind, lines)
}

func templatePartI(texts []string) map[int]Field {
	out := make(map[int]Field)
	for i, t := range texts {
		m := templateField.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > FieldCount {
			continue
		}
		out[n] = Field{Number: n, Label: strings.TrimSpace(m[2]), LineIndex: i}
	}
	return out
}

// recapPartI reads "N. Label" headers followed by value lines, stopping at
// the first mention of Part II. Struck lines are not part of the text.
func recapPartI(lines []extractor.Line) map[int]Field {
	type row struct {
		text  string
		index int
	}
	var rows []row
	for i, l := range lines {
		if l.Struck() {
			continue
		}
		rows = append(rows, row{strings.TrimSpace(l.CurrentText()), i})
	}
	out := make(map[int]Field)
	for i := 0; i < len(rows); i++ {
		line := rows[i].text
		if strings.Contains(line, partII) {
			break
		}
		m := recapField.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		header := rows[i].index
		var values []string
		for i+1 < len(rows) && rows[i+1].text != "" {
			next := rows[i+1].text
			if fieldStart.MatchString(next) || strings.Contains(next, partII) {
				break
			}
			values = append(values, next)
			i++
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > FieldCount {
			continue
		}
		out[n] = Field{
			Number:    n,
			Label:     strings.TrimSpace(m[2]),
			Value:     strings.TrimSpace(strings.Join(values, " ")),
			LineIndex: header,
		}
	}
	return out
}

// reading is one line of Part II text with its provenance. A recap line
// carrying both struck and green text yields two readings.
type reading struct {
	text   string
	origin Origin
	page   int
	header bool
}

func parsePartII(kind Kind, lines []extractor.Line) []Clause {
	start, rest := 0, ""
	found := false
	for i, l := range lines {
		t := l.Text()
		if idx := strings.Index(t, partII); idx >= 0 {
			start, rest, found = i+1, t[idx+len(partII):], true
			break
		}
	}
	var readings []reading
	if found {
		if strings.TrimSpace(rest) != "" {
			readings = append(readings, reading{text: rest, origin: Original, page: lines[start-1].Page, header: true})
		}
	} else {
		start = 0
	}
	for _, l := range lines[start:] {
		readings = append(readings, readLine(kind, l)...)
	}

	var clauses []Clause
	var cur *Clause
	for _, r := range readings {
		text := strings.TrimSpace(r.text)
		if text == "" {
			continue
		}
		if r.header {
			if m := clauseHeader.FindStringSubmatch(text); m != nil {
				n, _ := strconv.Atoi(m[1])
				clauses = append(clauses, Clause{Number: n, Title: text})
				cur = &clauses[len(clauses)-1]
				continue
			}
		}
		if cur == nil {
			continue
		}
		cl := ClauseLine{Text: text, Origin: r.origin, Page: r.page}
		if m := numberedLine.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				cl.Number = &n
				cl.Text = strings.TrimSpace(m[2])
			}
		}
		cur.Lines = append(cur.Lines, cl)
	}
	return clauses
}

// readLine classifies a line. Template lines are always original. In a
// recap a leading line number printed without marks does not stop a struck
// or green line from reading as deleted or added.
func readLine(kind Kind, l extractor.Line) []reading {
	text := l.Text()
	if kind != Recap || clauseHeader.MatchString(strings.TrimSpace(text)) {
		return []reading{{text: text, origin: Original, page: l.Page, header: true}}
	}
	body := l
	if len(l.Spans) > 1 && digitsOnly.MatchString(strings.TrimSpace(l.Spans[0].Text)) {
		body.Spans = l.Spans[1:]
	}
	switch {
	case body.Struck():
		return []reading{{text: l.OriginalText(), origin: Deleted, page: l.Page}}
	case body.Added():
		return []reading{{text: l.CurrentText(), origin: Added, page: l.Page}}
	case body.Mixed():
		out := []reading{{text: l.OriginalText(), origin: Deleted, page: l.Page}}
		if cur := l.CurrentText(); !digitsOnly.MatchString(cur) {
			out = append(out, reading{text: cur, origin: Added, page: l.Page})
		}
		return out
	}
	return []reading{{text: text, origin: Original, page: l.Page}}
}
