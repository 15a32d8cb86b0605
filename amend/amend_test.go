package amend

import (
	"strings"
	"testing"

	"github.com/wudi/charterkit/charter"
)

func num(n int) *int { return &n }

func cl(n *int, text string, origin charter.Origin) charter.ClauseLine {
	return charter.ClauseLine{Number: n, Text: text, Origin: origin, Page: 1}
}

func fixtures() (template, recap []charter.Clause) {
	template = []charter.Clause{
		{Number: 1, Title: "Clause 1. Definitions", Lines: []charter.ClauseLine{
			cl(num(1), "The Owners shall provide a seaworthy vessel", charter.Original),
			cl(num(2), "Freight payable on delivery", charter.Original),
			cl(num(3), "Charterers to load at one safe port", charter.Original),
		}},
		{Number: 2, Title: "Clause 2. Laytime", Lines: []charter.ClauseLine{
			cl(num(1), "Laytime 72 hours", charter.Original),
		}},
	}
	recap = []charter.Clause{
		{Number: 1, Title: "Clause 1. Definitions", Lines: []charter.ClauseLine{
			cl(num(1), "The Owners shall provide a seaworthy vessel", charter.Original),
			cl(num(2), "Freight payable on delivery", charter.Deleted),
			cl(num(2), "Freight payable on delivery of cargo", charter.Added),
			cl(num(3), "Charterers to load at one safe port", charter.Deleted),
			cl(nil, "Owners to insure the vessel", charter.Added),
		}},
		{Number: 2, Title: "Clause 2. Laytime"},
	}
	return template, recap
}

func TestDetect(t *testing.T) {
	template, recap := fixtures()
	res := NewDetector(0).Detect(template, recap)

	var deleted []string
	for _, it := range res.Deleted {
		deleted = append(deleted, it.Text)
	}
	want := []string{"Freight payable on delivery", "Charterers to load at one safe port", "Laytime 72 hours"}
	if strings.Join(deleted, "|") != strings.Join(want, "|") {
		t.Fatalf("deleted = %q", deleted)
	}
	if res.Deleted[2].Clause != "Clause 2. Laytime" || *res.Deleted[2].Line != 1 || res.Deleted[2].ClauseNumber != 2 {
		t.Fatalf("deleted item = %+v", res.Deleted[2])
	}
	if len(res.Added) != 2 || res.Added[0].Text != "Freight payable on delivery of cargo" || res.Added[1].Line != nil {
		t.Fatalf("added = %+v", res.Added)
	}
	if len(res.New) != 1 || res.New[0].Text != "Owners to insure the vessel" || res.New[0].Position != PositionAfterClause {
		t.Fatalf("new = %+v", res.New)
	}
	if len(res.Modified) != 1 {
		t.Fatalf("modified = %+v", res.Modified)
	}
	m := res.Modified[0]
	if m.Before != "Freight payable on delivery" || m.After != "Freight payable on delivery of cargo" || *m.Line != 2 {
		t.Fatalf("modification = %+v", m)
	}
	if m.Ratio < 0.79 || m.Ratio > 0.81 {
		t.Fatalf("ratio = %v", m.Ratio)
	}
	if c := res.Counts(); c != (Counts{Deleted: 3, Added: 2, New: 1, Modified: 1}) {
		t.Fatalf("counts = %+v", c)
	}
}

func TestDetectRecapOnlyStrike(t *testing.T) {
	template := []charter.Clause{{Number: 4, Title: "Clause 4. Ice", Lines: []charter.ClauseLine{
		cl(num(1), "Vessel not to force ice", charter.Original),
	}}}
	recap := []charter.Clause{{Number: 4, Title: "Clause 4. Ice", Lines: []charter.ClauseLine{
		cl(num(1), "Vessel not to force ice", charter.Original),
		cl(num(2), "nor follow icebreakers", charter.Deleted),
		cl(num(3), "Vessel not to force ice", charter.Original),
	}}}
	res := NewDetector(0.7).Detect(template, recap)
	if len(res.Deleted) != 1 || res.Deleted[0].Text != "nor follow icebreakers" {
		t.Fatalf("deleted = %+v", res.Deleted)
	}
	if len(res.Added) != 0 || len(res.New) != 0 || len(res.Modified) != 0 {
		t.Fatalf("unexpected buckets: %+v", res)
	}
}

func TestThresholdControlsPairing(t *testing.T) {
	template, recap := fixtures()
	if res := NewDetector(0.9).Detect(template, recap); len(res.Modified) != 0 {
		t.Fatalf("0.8 similarity must not pair at 0.9: %+v", res.Modified)
	}
	if d := NewDetector(1.5); d.Threshold() != DefaultThreshold {
		t.Fatalf("threshold = %v", d.Threshold())
	}
}

func TestNoAmendments(t *testing.T) {
	template, _ := fixtures()
	res := NewDetector(0).Detect(template, template)
	if !res.Empty() {
		t.Fatalf("identical documents: %+v", res)
	}
	if Format(res) != "No amendments detected" {
		t.Fatalf("format = %q", Format(res))
	}
	if !strings.Contains(Markdown(res), "No amendments detected.") {
		t.Fatalf("markdown = %q", Markdown(res))
	}
	if res := NewDetector(0).Detect(nil, nil); !res.Empty() {
		t.Fatalf("nil clauses: %+v", res)
	}
}

func TestFormat(t *testing.T) {
	template, recap := fixtures()
	got := Format(NewDetector(0).Detect(template, recap))
	want := "DELETED TEXT:\n" +
		"  Line 2: ~~Freight payable on delivery~~\n" +
		"  Line 3: ~~Charterers to load at one safe port~~\n" +
		"  Line 1: ~~Laytime 72 hours~~\n" +
		"\nADDED TEXT:\n" +
		"  + Freight payable on delivery of cargo\n" +
		"  + Owners to insure the vessel\n" +
		"\nNEW LINES:\n" +
		"  (new) Owners to insure the vessel"
	if got != want {
		t.Fatalf("format =\n%s\nwant\n%s", got, want)
	}
	only := Format(Result{New: []Item{{Text: "x"}}, Deleted: []Item{{Text: "y"}}})
	if only != "DELETED TEXT:\n  Line N/A: ~~y~~\n\nNEW LINES:\n  (new) x" {
		t.Fatalf("format without line = %q", only)
	}
}

func TestMarkdown(t *testing.T) {
	template, recap := fixtures()
	md := Markdown(NewDetector(0).Detect(template, recap))
	for _, want := range []string{
		"# Amendment Summary",
		"- **Deleted:** 3",
		"## Deleted",
		"- **Clause 1. Definitions**, line 2: ~~Freight payable on delivery~~",
		"## New lines",
		"(after clause): Owners to insure the vessel",
		"## Modified",
		"replaced by",
		"(80% similar)",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if got := escape("a*b_[c]~"); got != `a\*b\_\[c\]\~` {
		t.Fatalf("escape = %q", got)
	}
}

func TestSimilarity(t *testing.T) {
	if Similarity("", "") != 1 {
		t.Fatalf("empty lines are identical")
	}
	if r := Similarity("a b c d", "a b c d"); r != 1 {
		t.Fatalf("identical ratio = %v", r)
	}
	if r := Similarity("a b", "c d"); r != 0 {
		t.Fatalf("disjoint ratio = %v", r)
	}
}
