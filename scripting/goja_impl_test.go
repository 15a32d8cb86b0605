package scripting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/fields"
)

func TestGojaEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if _, err := engine.Execute(ctx, "while (true) {}"); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	if _, err := engine.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine should recover after cancellation, got %v", err)
	}
}

func TestGojaEngine_ImmediateCancel(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Execute(ctx, "42"); err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func recapFixture() (fields.Set, *charter.Document) {
	one := 1
	set := fields.Extract(nil)
	set[8] = fields.Mapped{Number: 8, Label: "Laycan", Value: "1-5 June", OriginalLabel: "Laydays / Cancelling"}
	set[10] = fields.Mapped{Number: 10, Label: "Quantity", Value: "25,000"}
	doc := &charter.Document{
		Kind: charter.Recap,
		PartII: []charter.Clause{{
			Number: 1,
			Title:  "Clause 1. Ice",
			Lines: []charter.ClauseLine{
				{Number: &one, Text: "Vessel not to force ice", Origin: charter.Deleted},
				{Text: "Charterers to advise", Origin: charter.Added},
			},
		}},
	}
	return set, doc
}

func TestFieldAccess(t *testing.T) {
	set, doc := recapFixture()
	dom := NewDocument(set, doc, nil)
	engine := NewEngine()
	if err := engine.RegisterDOM(dom); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := engine.Execute(context.Background(), `getField(8).value + "|" + getField("laycan").label + "|" + getField("Laydays / Cancelling").number`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "1-5 June|Laycan|8" {
		t.Fatalf("got %v", got)
	}

	if _, err := engine.Execute(context.Background(), `getField("Quantity").value = getField("Quantity").value + " MT"`); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if v := dom.Fields()[10].Value; v != "25,000 MT" {
		t.Fatalf("field 10 = %q", v)
	}
	if set[10].Value != "25,000" {
		t.Fatalf("caller's set must not change")
	}

	got, err = engine.Execute(context.Background(), `[numFields, getField(42) === null, getField("Nope") === null]`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr := got.([]interface{})
	if arr[0] != int64(19) || arr[1] != true || arr[2] != true {
		t.Fatalf("got %v", arr)
	}
}

func TestClausesAndAlert(t *testing.T) {
	set, doc := recapFixture()
	dom := NewDocument(set, doc, nil)
	engine := NewEngine()
	if err := engine.RegisterDOM(dom); err != nil {
		t.Fatalf("register: %v", err)
	}
	script := `
var deleted = 0;
clauses().forEach(function (c) {
	c.lines.forEach(function (l) {
		if (l.origin === "deleted") { deleted++; }
		if (l.number === null) { app.alert(c.title + ": unnumbered " + l.text); }
	});
});
deleted;
`
	got, err := engine.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != int64(1) {
		t.Fatalf("deleted = %v", got)
	}
	alerts := dom.Alerts()
	if len(alerts) != 1 || alerts[0] != "Clause 1. Ice: unnumbered Charterers to advise" {
		t.Fatalf("alerts = %q", alerts)
	}
}

func TestRun(t *testing.T) {
	set, doc := recapFixture()
	rules := []Rule{
		{Name: "laytime", Source: `getField(15).value = "SHINC"`},
		{Name: "check", Source: `if (getField(2).value === "") { app.alert("vessel missing") }`},
	}
	out, alerts, err := Run(context.Background(), set, doc, rules, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out[15].Value != "SHINC" || len(alerts) != 1 {
		t.Fatalf("out[15] = %q alerts = %q", out[15].Value, alerts)
	}

	_, _, err = Run(context.Background(), set, doc, []Rule{{Name: "broken", Source: "getField("}}, nil)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := Run(ctx, set, doc, []Rule{{Name: "spin", Source: "for (;;) {}"}}, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
