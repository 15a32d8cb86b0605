package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wudi/charterkit/builder"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/config"
	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/layout"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/parser"
	"github.com/wudi/charterkit/scripting"
	"github.com/wudi/charterkit/writer"
)

var templateLines = []string{
	"CHARTER PARTY",
	"Part I",
	"1. Charter Party Form",
	"2. Vessel Name",
	"4. Owners",
	"5. Charterers",
	"Part II",
	"Clause 1. Definitions",
	"1 Owners shall pay",
	"2 Vessel to be seaworthy",
	"Clause 2. Ice",
	"1 Vessel not to force ice",
}

var recapLines = []string{
	"1. Charter Party Form",
	"GENCON 1994",
	"2. Vessel Name",
	"MV Ocean Star",
	"4. Owners",
	"Blue Sea Shipping",
	"Part II",
	"Clause 1. Definitions",
	"<s>1 Owners shall pay</s>",
	`<font color="#008000">1 Charterers shall pay</font>`,
	"2 Vessel to be seaworthy",
	"Clause 2. Ice",
	"1 Vessel not to force ice",
	`<font color="#008000">Charterers to advise ice limits</font>`,
}

func writePDF(t *testing.T, path string, lines []string) {
	t.Helper()
	b := builder.NewBuilder()
	e := layout.NewEngine(b, layout.WithDefaultFontSize(10))
	for _, l := range lines {
		if err := e.RenderMarkup(l, layout.TextSpan{}); err != nil {
			t.Fatalf("markup %q: %v", l, err)
		}
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.New().Write(context.Background(), doc, &buf, writer.Config{Deterministic: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func inputs(t *testing.T) (dir, template, recap string) {
	t.Helper()
	dir = t.TempDir()
	template = filepath.Join(dir, "template.pdf")
	recap = filepath.Join(dir, "recap.pdf")
	writePDF(t, template, templateLines)
	writePDF(t, recap, recapLines)
	return dir, template, recap
}

func TestProcess(t *testing.T) {
	dir, template, recap := inputs(t)
	metrics := observability.NewMetrics(nil)
	p, err := New(nil, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := filepath.Join(dir, "out", "nested", "Final_Filled.pdf")
	rep, err := p.Process(context.Background(), Request{Template: template, Recap: recap, Output: out})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if rep.Output != out || rep.Bytes == 0 || rep.Duration <= 0 {
		t.Fatalf("report output = %q bytes=%d duration=%v", rep.Output, rep.Bytes, rep.Duration)
	}
	if rep.TemplatePages != 1 || rep.RecapPages != 1 {
		t.Fatalf("pages = %d/%d", rep.TemplatePages, rep.RecapPages)
	}
	if got := rep.Fields[2].Value; got != "MV Ocean Star" {
		t.Fatalf("field 2 = %q", got)
	}
	if rep.Valid || len(rep.ValidationErrors) == 0 {
		t.Fatalf("missing required fields should be reported")
	}
	if rep.Stats.Filled != 3 {
		t.Fatalf("stats = %+v", rep.Stats)
	}

	c := rep.Amendments.Counts()
	if c.Deleted != 1 || c.Added != 2 || c.New != 1 {
		t.Fatalf("counts = %+v", c)
	}
	if rep.Amendments.Deleted[0].Text != "Owners shall pay" {
		t.Fatalf("deleted = %+v", rep.Amendments.Deleted)
	}
	if rep.Amendments.New[0].Text != "Charterers to advise ice limits" || rep.Amendments.New[0].ClauseNumber != 2 {
		t.Fatalf("new = %+v", rep.Amendments.New)
	}

	if v := testutil.ToFloat64(metrics.Documents.WithLabelValues("recap", "ok")); v != 1 {
		t.Fatalf("recap documents = %v", v)
	}
	if v := testutil.ToFloat64(metrics.Amendments.WithLabelValues("added")); v != 2 {
		t.Fatalf("added amendments = %v", v)
	}
	if n := testutil.CollectAndCount(metrics.Stages); n != 4 {
		t.Fatalf("stage series = %d", n)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	pdoc, err := parser.OpenBytes(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	ex, err := extractor.New(pdoc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	lines, err := ex.ExtractLines(context.Background())
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	var green bool
	for _, l := range lines {
		if l.Text() == "Charterers shall pay" && l.Added() {
			green = true
		}
	}
	if !green {
		t.Fatalf("added clause line should be green in the output")
	}
}

func TestProcessMissingFiles(t *testing.T) {
	_, template, _ := inputs(t)
	p, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = p.Process(context.Background(), Request{
		Template: template,
		Recap:    filepath.Join(t.TempDir(), "missing.pdf"),
		Output:   filepath.Join(t.TempDir(), "out.pdf"),
	})
	if !errors.Is(err, ErrFileNotFound) || !strings.Contains(err.Error(), "recap") {
		t.Fatalf("expected ErrFileNotFound for the recap, got %v", err)
	}
}

func TestProcessStrict(t *testing.T) {
	dir, template, recap := inputs(t)
	cfg := config.DefaultConfig()
	cfg.Output.Strict = true
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := filepath.Join(dir, "strict.pdf")
	rep, err := p.Process(context.Background(), Request{Template: template, Recap: recap, Output: out})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if rep == nil || rep.Valid || !strings.Contains(err.Error(), "Field 5 (Charterers) is required") {
		t.Fatalf("report = %+v err = %v", rep, err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("no output expected in strict mode")
	}
}

func TestRulesAndOverrides(t *testing.T) {
	dir, template, recap := inputs(t)
	script := filepath.Join(dir, "upper.js")
	if err := os.WriteFile(script, []byte(`var f = getField(2); f.value = f.value.toUpperCase();`), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Rules.Scripts = []string{script}
	p, err := New(cfg, WithRules(scripting.Rule{Name: "alert", Source: `app.alert("clauses: " + clauses().length)`}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	tdoc, err := p.Load(ctx, charter.Template, template)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	rdoc, err := p.Load(ctx, charter.Recap, recap)
	if err != nil {
		t.Fatalf("load recap: %v", err)
	}
	rep, err := p.Analyze(ctx, tdoc, rdoc, map[int]string{5: " Global Grain "})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got := rep.Fields[2].Value; got != "MV OCEAN STAR" {
		t.Fatalf("script did not run: %q", got)
	}
	if got := rep.Fields[5].Value; got != "Global Grain" {
		t.Fatalf("override = %q", got)
	}
	if len(rep.Alerts) != 1 || rep.Alerts[0] != "clauses: 2" {
		t.Fatalf("alerts = %v", rep.Alerts)
	}

	var buf bytes.Buffer
	if err := p.Generate(ctx, rep, &buf); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-1.7")) {
		t.Fatalf("output header = %q", buf.Bytes()[:8])
	}

	if _, err := p.Analyze(ctx, tdoc, rdoc, map[int]string{42: "x"}); err == nil {
		t.Fatalf("override of an unknown field should fail")
	}
}

func TestNewErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rules.Scripts = []string{filepath.Join(t.TempDir(), "missing.js")}
	if _, err := New(cfg); err == nil {
		t.Fatalf("missing rule script should fail")
	}
	cfg = config.DefaultConfig()
	cfg.Output.FontRegular = filepath.Join(t.TempDir(), "missing.ttf")
	cfg.Output.FontBold = cfg.Output.FontRegular
	if _, err := New(cfg); err == nil {
		t.Fatalf("missing font should fail")
	}
}
