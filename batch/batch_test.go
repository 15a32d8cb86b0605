package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/charterkit/builder"
	"github.com/wudi/charterkit/layout"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/pipeline"
	"github.com/wudi/charterkit/writer"
)

func writePDF(t *testing.T, path string, lines ...string) {
	t.Helper()
	b := builder.NewBuilder()
	e := layout.NewEngine(b, layout.WithDefaultFontSize(10))
	for _, l := range lines {
		require.NoError(t, e.RenderMarkup(l, layout.TextSpan{}))
	}
	doc, err := b.Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, writer.New().Write(context.Background(), doc, &buf, writer.Config{Deterministic: true}))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func template(t *testing.T, dir string) string {
	path := filepath.Join(dir, "template.pdf")
	writePDF(t, path,
		"1. Charter Party Form",
		"2. Vessel Name",
		"Part II",
		"Clause 1. Definitions",
		"1 Owners shall pay",
	)
	return path
}

func recap(t *testing.T, path, vessel string) {
	writePDF(t, path,
		"2. Vessel Name",
		vessel,
		"Part II",
		"Clause 1. Definitions",
		"<s>1 Owners shall pay</s>",
		`<font color="#008000">1 Charterers shall pay</font>`,
	)
}

func processor(t *testing.T, m *observability.Metrics) *pipeline.Processor {
	p, err := pipeline.New(nil, pipeline.WithMetrics(m))
	require.NoError(t, err)
	return p
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "voyage12_Final_Filled.pdf", OutputName("/in/voyage12.pdf"))
	assert.Equal(t, "recap.v2_Final_Filled.pdf", OutputName("recap.v2.PDF"))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tpl := template(t, dir)
	recap(t, filepath.Join(dir, "recaps", "a.pdf"), "MV Alpha")
	recap(t, filepath.Join(dir, "recaps", "2026", "b.pdf"), "MV Bravo")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recaps", "broken.pdf"), []byte("not a pdf"), 0o644))

	reg := prometheus.NewRegistry()
	textfile := filepath.Join(dir, "charterkit.prom")
	r := NewRunner(processor(t, observability.NewMetrics(reg)), WithWorkers(2), WithTextfile(textfile, reg))

	out := filepath.Join(dir, "out")
	m, err := r.Run(context.Background(), Job{
		Template:  tpl,
		RecapGlob: filepath.Join(dir, "recaps", "**", "*.pdf"),
		OutputDir: out,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.JobID)
	assert.Equal(t, 2, m.Succeeded)
	assert.Equal(t, 1, m.Failed)
	require.Len(t, m.Entries, 3)

	byName := map[string]Entry{}
	for _, e := range m.Entries {
		byName[filepath.Base(e.Recap)] = e
	}
	a := byName["a.pdf"]
	assert.Equal(t, StatusOK, a.Status)
	assert.Equal(t, filepath.Join(out, "a_Final_Filled.pdf"), a.Output)
	assert.Equal(t, 1, a.Deleted)
	assert.Equal(t, 1, a.Added)
	assert.FileExists(t, a.Output)
	assert.FileExists(t, filepath.Join(out, "b_Final_Filled.pdf"))

	broken := byName["broken.pdf"]
	assert.Equal(t, StatusFailed, broken.Status)
	assert.NotEmpty(t, broken.Error)
	assert.Empty(t, broken.Output)
	assert.NoFileExists(t, filepath.Join(out, "broken_Final_Filled.pdf"))

	data, err := os.ReadFile(filepath.Join(out, ManifestName))
	require.NoError(t, err)
	var saved Manifest
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, m.JobID, saved.JobID)
	assert.Len(t, saved.Entries, 3)

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), observability.MetricDocuments)
	assert.True(t, strings.Contains(string(prom), `outcome="error"`))
}

func TestRunDuplicateOutputNames(t *testing.T) {
	dir := t.TempDir()
	tpl := template(t, dir)
	recap(t, filepath.Join(dir, "recaps", "2026", "a.pdf"), "MV Alpha")
	recap(t, filepath.Join(dir, "recaps", "a.pdf"), "MV Bravo")

	out := filepath.Join(dir, "out")
	m, err := NewRunner(processor(t, nil)).Run(context.Background(), Job{
		Template:  tpl,
		RecapGlob: filepath.Join(dir, "recaps", "**", "*.pdf"),
		OutputDir: out,
	})
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, 1, m.Succeeded)
	assert.Equal(t, 1, m.Failed)

	first, second := m.Entries[0], m.Entries[1]
	assert.Equal(t, filepath.Join(dir, "recaps", "2026", "a.pdf"), first.Recap)
	assert.Equal(t, StatusOK, first.Status)
	assert.Equal(t, filepath.Join(out, "a_Final_Filled.pdf"), first.Output)

	assert.Equal(t, filepath.Join(dir, "recaps", "a.pdf"), second.Recap)
	assert.Equal(t, StatusFailed, second.Status)
	assert.Contains(t, second.Error, ErrDuplicateOutput.Error())
	assert.Empty(t, second.Output)
}

func TestRunNoMatches(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(processor(t, nil))
	_, err := r.Run(context.Background(), Job{
		Template:  filepath.Join(dir, "template.pdf"),
		RecapGlob: filepath.Join(dir, "*.pdf"),
		OutputDir: filepath.Join(dir, "out"),
	})
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	tpl := template(t, dir)
	recap(t, filepath.Join(dir, "a.pdf"), "MV Alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(processor(t, nil)).Run(ctx, Job{
		Template:  tpl,
		RecapGlob: filepath.Join(dir, "a.pdf"),
		OutputDir: filepath.Join(dir, "out"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	tpl := template(t, dir)
	inbox := filepath.Join(dir, "inbox")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	recap(t, filepath.Join(inbox, "early.pdf"), "MV Early")

	results := make(chan Entry, 4)
	w := NewWatcher(NewRunner(processor(t, nil)), tpl, inbox, out,
		WithDebounce(50*time.Millisecond),
		WithNotify(func(e Entry) { results <- e }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	next := func() Entry {
		t.Helper()
		select {
		case e := <-results:
			return e
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for the watcher")
			return Entry{}
		}
	}

	early := next()
	assert.Equal(t, StatusOK, early.Status)
	assert.Equal(t, filepath.Join(inbox, ProcessedDir, "early.pdf"), early.Recap)
	assert.FileExists(t, filepath.Join(out, "early_Final_Filled.pdf"))

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "bad.pdf"), []byte("%PDF-garbage"), 0o644))
	bad := next()
	assert.Equal(t, StatusFailed, bad.Status)
	assert.FileExists(t, filepath.Join(inbox, FailedDir, "bad.pdf"))
	assert.FileExists(t, filepath.Join(inbox, "notes.txt"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}
