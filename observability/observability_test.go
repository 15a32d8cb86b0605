package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("expected NopLogger for nil")
	}
	l := NewLogger(&bytes.Buffer{}, "info", "text")
	if OrNop(l) != Logger(l) {
		t.Fatalf("expected logger passed through")
	}
}

func TestSlogJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "debug", "json").With(String("doc", "recap.pdf"))
	l.Info("extracted", Int("pages", 3), Err(errors.New("boom")))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "extracted" || rec["doc"] != "recap.pdf" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["pages"] != float64(3) || rec["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", rec)
	}
}

func TestSlogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "text")
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogTracerWritesSpan(t *testing.T) {
	var buf bytes.Buffer
	tr := LogTracer(NewLogger(&buf, "debug", "text"))
	_, span := tr.StartSpan(context.Background(), "extract")
	span.SetTag("kind", "recap")
	span.Finish()
	if !strings.Contains(buf.String(), "span=extract") || !strings.Contains(buf.String(), "kind=recap") {
		t.Fatalf("span not logged: %q", buf.String())
	}
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Document("recap", "ok")
	m.Amendment("deleted", 3)
	m.Amendment("added", 0)
	m.OCRPage()
	m.ValidationErrors(2)

	if got := testutil.ToFloat64(m.Documents.WithLabelValues("recap", "ok")); got != 1 {
		t.Fatalf("documents = %v", got)
	}
	if got := testutil.ToFloat64(m.Amendments.WithLabelValues("deleted")); got != 3 {
		t.Fatalf("deleted = %v", got)
	}
	if got := testutil.ToFloat64(m.Validation); got != 2 {
		t.Fatalf("validation = %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.Document("x", "y")
	nilMetrics.OCRPage()
}
