// Package amend compares template clauses with recap clauses and sorts the
// differences into deleted, added, new and modified lines.
package amend

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/observability"
)

// DefaultThreshold is the word similarity above which a deleted and an added
// line are reported as one modification.
const DefaultThreshold = 0.7

// PositionAfterClause places a new line at the end of its clause.
const PositionAfterClause = "after_clause"

// Item is one amended line. Line is nil when the line carries no number.
type Item struct {
	Text         string `json:"text"`
	Line         *int   `json:"line"`
	Clause       string `json:"clause"`
	ClauseNumber int    `json:"clause_number"`
	Position     string `json:"position,omitempty"`
}

// LineNumber formats Line, or "N/A" when unknown.
func (i Item) LineNumber() string {
	return charter.ClauseLine{Number: i.Line}.LineNumber()
}

// Modification pairs a deleted line with the added line that replaced it.
type Modification struct {
	Clause       string  `json:"clause"`
	ClauseNumber int     `json:"clause_number"`
	Line         *int    `json:"line"`
	Before       string  `json:"before"`
	After        string  `json:"after"`
	Ratio        float64 `json:"ratio"`
}

// Result holds the detected amendments. Paired lines appear in Modified and
// remain in Deleted and Added.
type Result struct {
	Deleted  []Item         `json:"deleted"`
	Added    []Item         `json:"added"`
	New      []Item         `json:"new"`
	Modified []Modification `json:"modified"`
}

// Counts is the size of each bucket.
type Counts struct {
	Deleted  int `json:"deleted"`
	Added    int `json:"added"`
	New      int `json:"new"`
	Modified int `json:"modified"`
}

// Counts sizes the buckets.
func (r Result) Counts() Counts {
	return Counts{Deleted: len(r.Deleted), Added: len(r.Added), New: len(r.New), Modified: len(r.Modified)}
}

// Empty reports a result with nothing in any bucket.
func (r Result) Empty() bool {
	return len(r.Deleted) == 0 && len(r.Added) == 0 && len(r.New) == 0 && len(r.Modified) == 0
}

// Detector finds amendments.
type Detector struct {
	threshold float64
	log       observability.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the detector's logger.
func WithLogger(l observability.Logger) Option {
	return func(d *Detector) { d.log = observability.OrNop(l) }
}

// NewDetector returns a detector pairing modifications at threshold. A
// threshold outside (0, 1] falls back to DefaultThreshold.
func NewDetector(threshold float64, opts ...Option) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	d := &Detector{threshold: threshold, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the similarity threshold in use.
func (d *Detector) Threshold() float64 { return d.threshold }

type entry struct {
	charter.ClauseLine
	clause string
	number int
	order  int
}

func (e entry) item() Item {
	return Item{Text: e.Text, Line: e.Number, Clause: e.clause, ClauseNumber: e.number}
}

func flatten(clauses []charter.Clause) []entry {
	var out []entry
	for _, c := range clauses {
		for _, l := range c.Lines {
			out = append(out, entry{ClauseLine: l, clause: c.Title, number: c.Number, order: len(out)})
		}
	}
	return out
}

// byText keeps the last entry for each text, listed in the order of those
// entries.
func byText(entries []entry) (map[string]entry, []entry) {
	last := make(map[string]entry, len(entries))
	for _, e := range entries {
		last[e.Text] = e
	}
	list := make([]entry, 0, len(last))
	for _, e := range last {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	return last, list
}

// Detect compares template and recap clauses.
func (d *Detector) Detect(template, recap []charter.Clause) Result {
	tEntries, rEntries := flatten(template), flatten(recap)
	tTexts, tList := byText(tEntries)
	_, rList := byText(rEntries)

	present := make(map[string]bool, len(rEntries))
	for _, e := range rEntries {
		if e.Present() {
			present[e.Text] = true
		}
	}

	var res Result
	type key struct {
		clause int
		text   string
	}
	listed := make(map[key]bool)
	for _, e := range tList {
		if !present[e.Text] {
			res.Deleted = append(res.Deleted, e.item())
			listed[key{e.number, e.Text}] = true
		}
	}
	for _, e := range rEntries {
		if e.Origin == charter.Deleted && !listed[key{e.number, e.Text}] {
			res.Deleted = append(res.Deleted, e.item())
			listed[key{e.number, e.Text}] = true
		}
	}
	sort.SliceStable(res.Deleted, func(i, j int) bool { return res.Deleted[i].ClauseNumber < res.Deleted[j].ClauseNumber })

	for _, e := range rList {
		if _, inTemplate := tTexts[e.Text]; !inTemplate && !e.Original() {
			res.Added = append(res.Added, e.item())
		}
	}
	for _, e := range rEntries {
		if !e.Original() && e.Number == nil {
			it := e.item()
			it.Position = PositionAfterClause
			res.New = append(res.New, it)
		}
	}
	res.Modified = d.pair(res.Deleted, res.Added)

	d.log.Info("amendments detected",
		observability.Int("deleted", len(res.Deleted)),
		observability.Int("added", len(res.Added)),
		observability.Int("new", len(res.New)),
		observability.Int("modified", len(res.Modified)),
	)
	return res
}

// pair matches each deleted line with the most similar unpaired added line
// of the same clause whose number is equal or adjacent.
func (d *Detector) pair(deleted, added []Item) []Modification {
	var out []Modification
	used := make([]bool, len(added))
	for _, del := range deleted {
		best, bestRatio := -1, 0.0
		for i, add := range added {
			if used[i] || add.ClauseNumber != del.ClauseNumber || !nearby(del.Line, add.Line) {
				continue
			}
			if r := Similarity(del.Text, add.Text); r >= d.threshold && r > bestRatio {
				best, bestRatio = i, r
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		line := del.Line
		if line == nil {
			line = added[best].Line
		}
		out = append(out, Modification{
			Clause:       del.Clause,
			ClauseNumber: del.ClauseNumber,
			Line:         line,
			Before:       del.Text,
			After:        added[best].Text,
			Ratio:        bestRatio,
		})
	}
	return out
}

func nearby(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	diff := *a - *b
	return diff >= -1 && diff <= 1
}

// Similarity is the word-sequence match ratio of two lines, in [0, 1].
func Similarity(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	return difflib.NewMatcher(wa, wb).Ratio()
}
