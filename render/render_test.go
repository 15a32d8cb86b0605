package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wudi/charterkit/amend"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/parser"
	"github.com/wudi/charterkit/security"
	"github.com/wudi/charterkit/writer"
)

func intp(n int) *int { return &n }

func fixture() (*charter.Document, fields.Set, amend.Result) {
	template := &charter.Document{
		Kind: charter.Template,
		PartI: map[int]charter.Field{
			2: {Number: 2, Label: "Vessel Name"},
		},
		PartII: []charter.Clause{{
			Number: 1,
			Title:  "Clause 1. Ice",
			Lines: []charter.ClauseLine{
				{Number: intp(1), Text: "Vessel not to force ice", Origin: charter.Original},
				{Number: intp(2), Text: "Owners to be notified", Origin: charter.Original},
			},
		}},
	}
	set := fields.Extract(nil)
	set[2] = fields.Mapped{Number: 2, Label: "Vessel Name", Value: "MV Ocean Star"}
	delete(set, 19)
	result := amend.Result{
		Deleted: []amend.Item{{Text: "Vessel not to force ice", Line: intp(1), Clause: "Clause 1. Ice", ClauseNumber: 1}},
		Added: []amend.Item{
			{Text: "Vessel may follow icebreakers", Line: intp(1), Clause: "Clause 1. Ice", ClauseNumber: 1},
			{Text: "Charterers to advise", Clause: "Clause 1. Ice", ClauseNumber: 1},
		},
		New: []amend.Item{{Text: "Charterers to advise", Clause: "Clause 1. Ice", ClauseNumber: 1, Position: amend.PositionAfterClause}},
	}
	return template, set, result
}

func extract(t *testing.T, data []byte, password string) (*extractor.Extractor, []extractor.Line) {
	t.Helper()
	pdoc, err := parser.OpenBytes(context.Background(), data, parser.Config{Password: password})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ex, err := extractor.New(pdoc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	lines, err := ex.ExtractLines(context.Background())
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	return ex, lines
}

func find(lines []extractor.Line, substr string) []extractor.Line {
	var out []extractor.Line
	for _, l := range lines {
		if strings.Contains(l.Text(), substr) {
			out = append(out, l)
		}
	}
	return out
}

func TestCreateFinalDocument(t *testing.T) {
	template, set, result := fixture()
	clock := func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	var buf bytes.Buffer
	if err := New(WithClock(clock)).Create(context.Background(), template, set, result, &buf); err != nil {
		t.Fatalf("create: %v", err)
	}
	ex, lines := extract(t, buf.Bytes(), "")
	if lines[0].Text() != Title || lines[0].Page != 1 {
		t.Fatalf("first line = %q", lines[0].Text())
	}

	vessel := find(lines, "Vessel Name")
	if len(vessel) != 1 || !strings.Contains(vessel[0].Text(), "MV Ocean Star") || !strings.HasPrefix(vessel[0].Text(), "2.") {
		t.Fatalf("vessel row = %+v", vessel)
	}
	if len(find(lines, Placeholder)) != 17 {
		t.Fatalf("empty values should show the placeholder, got %d", len(find(lines, Placeholder)))
	}
	if len(find(lines, "Special Provisions")) != 0 {
		t.Fatalf("slot without a label should be skipped")
	}

	part2 := find(lines, PartIIHeading)
	if len(part2) != 1 || part2[0].Page == 1 {
		t.Fatalf("Part II should start on a new page: %+v", part2)
	}

	summary := find(lines, "Amendment Summary")
	if len(summary) != 1 {
		t.Fatalf("summary page missing")
	}
	var body []extractor.Line
	for _, l := range lines {
		if l.Page < summary[0].Page {
			body = append(body, l)
		}
	}
	if len(find(lines[len(body):], "Vessel not to force ice")) != 1 {
		t.Fatalf("summary should list the deleted line")
	}

	struck := find(body, "Vessel not to force ice")
	if len(struck) != 2 {
		t.Fatalf("deleted line should appear in the clause and the section: %d", len(struck))
	}
	inClause := struck[0]
	if !strings.HasPrefix(inClause.Text(), "1") || !inClause.Mixed() {
		t.Fatalf("clause line = %q mixed=%v", inClause.Text(), inClause.Mixed())
	}
	if last := inClause.Spans[len(inClause.Spans)-1]; !last.Struck {
		t.Fatalf("line text should be struck: %+v", inClause.Spans)
	}
	if !struck[1].Struck() {
		t.Fatalf("Deleted Content entry should be struck")
	}

	var afterAnchor bool
	for i, l := range body {
		if l.Index == inClause.Index && l.Page == inClause.Page {
			next := body[i+1]
			afterAnchor = next.Added() && next.Text() == "Vessel may follow icebreakers"
		}
	}
	if !afterAnchor {
		t.Fatalf("added line should follow its anchor in green")
	}
	if kept := find(lines, "Owners to be notified"); len(kept) != 1 || kept[0].Struck() || kept[0].Added() {
		t.Fatalf("unchanged line = %+v", kept)
	}
	for _, section := range []string{"Deleted Content:", "Added Content:", "New Lines:"} {
		if len(find(body, section)) != 1 {
			t.Fatalf("missing %q", section)
		}
	}
	if n := len(find(body, "Charterers to advise")); n != 3 {
		t.Fatalf("new line should appear after the clause and in both sections, got %d", n)
	}

	meta, err := ex.ExtractMetadata(context.Background())
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Info.Title != DocumentTitle || !strings.HasPrefix(meta.Info.CreationDate, "D:20260504120000") {
		t.Fatalf("metadata = %+v", meta.Info)
	}
}

func TestCreateWithoutAmendments(t *testing.T) {
	template, set, _ := fixture()
	var buf bytes.Buffer
	if err := New(WithSummary(false)).Create(context.Background(), template, set, amend.Result{}, &buf); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, lines := extract(t, buf.Bytes(), "")
	for _, section := range []string{"Deleted Content:", "Added Content:", "New Lines:", "Amendment Summary"} {
		if len(find(lines, section)) != 0 {
			t.Fatalf("unexpected %q", section)
		}
	}
	for _, l := range lines {
		if l.Struck() || l.Added() || l.Mixed() {
			t.Fatalf("no line should carry marks: %q", l.Text())
		}
	}
}

func TestSummaryModifiedLineIsLegible(t *testing.T) {
	template, set, result := fixture()
	result.Modified = []amend.Modification{{
		Clause:       "Clause 1. Ice",
		ClauseNumber: 1,
		Line:         intp(1),
		Before:       "Vessel not to force ice",
		After:        "Vessel may force ice",
		Ratio:        0.8,
	}}
	var buf bytes.Buffer
	if err := New().Create(context.Background(), template, set, result, &buf); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, lines := extract(t, buf.Bytes(), "")
	modified := find(lines, "Vessel may force ice")
	if len(modified) != 1 {
		t.Fatalf("modified summary line = %+v", modified)
	}
	got := modified[0].Text()
	if strings.Contains(got, "?") {
		t.Fatalf("summary line lost characters: %q", got)
	}
	if !strings.Contains(got, "Vessel not to force ice replaced by Vessel may force ice (80% similar)") {
		t.Fatalf("summary line = %q", got)
	}
}

func TestCreateDeterministic(t *testing.T) {
	template, set, result := fixture()
	clock := func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	render := func() []byte {
		var buf bytes.Buffer
		g := New(WithClock(clock), WithWriterConfig(writer.Config{Deterministic: true}))
		if err := g.Create(context.Background(), template, set, result, &buf); err != nil {
			t.Fatalf("create: %v", err)
		}
		return buf.Bytes()
	}
	if !bytes.Equal(render(), render()) {
		t.Fatalf("deterministic output differs between runs")
	}
}

func TestCreateEncrypted(t *testing.T) {
	template, set, result := fixture()
	var buf bytes.Buffer
	g := New(WithEncryption(security.Params{UserPassword: "recap", Revision: 6}))
	if err := g.Create(context.Background(), template, set, result, &buf); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := parser.OpenBytes(context.Background(), buf.Bytes(), parser.Config{}); !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	if _, lines := extract(t, buf.Bytes(), "recap"); lines[0].Text() != Title {
		t.Fatalf("first line = %q", lines[0].Text())
	}
}

func TestCreateErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := New().Create(context.Background(), nil, nil, amend.Result{}, &buf); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", err)
	}
	template, set, result := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Create(ctx, template, set, result, &buf); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
