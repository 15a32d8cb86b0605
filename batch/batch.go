// Package batch processes many recaps against one template, either from a
// glob or from an inbox directory watched for new files.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/pipeline"
)

// ManifestName is written to the output directory after every run.
const ManifestName = "manifest.json"

// OutputSuffix is appended to the recap file stem to name its output.
const OutputSuffix = "_Final_Filled.pdf"

// ErrNoMatches is returned when the recap glob matches no file.
var ErrNoMatches = errors.New("batch: no recap matches the pattern")

// ErrDuplicateOutput marks a recap whose output name is already taken by an
// earlier match, as with equal file names in different directories.
var ErrDuplicateOutput = errors.New("batch: duplicate output name")

// Job describes one batch run.
type Job struct {
	Template  string
	RecapGlob string
	OutputDir string
}

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Entry is the manifest record for one recap.
type Entry struct {
	Recap      string        `json:"recap"`
	Output     string        `json:"output,omitempty"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Valid      bool          `json:"valid"`
	Validation []string      `json:"validation_errors,omitempty"`
	Deleted    int           `json:"deleted"`
	Added      int           `json:"added"`
	New        int           `json:"new"`
	Modified   int           `json:"modified"`
	Duration   time.Duration `json:"duration_ns"`
}

// Manifest summarises a run. Entries follow the sorted glob order.
type Manifest struct {
	JobID      string    `json:"job_id"`
	Template   string    `json:"template"`
	Pattern    string    `json:"pattern"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Entries    []Entry   `json:"entries"`
}

// Runner fans recaps out to a pipeline.Processor.
type Runner struct {
	proc     *pipeline.Processor
	workers  int
	log      observability.Logger
	textfile string
	gatherer prometheus.Gatherer
	now      func() time.Time
	mu       sync.Mutex // serialises textfile writes
}

type Option func(*Runner)

// WithWorkers bounds the number of recaps processed at once.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

func WithLogger(l observability.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithTextfile exports g to path in the node exporter text format after
// every run.
func WithTextfile(path string, g prometheus.Gatherer) Option {
	return func(r *Runner) {
		r.textfile = path
		r.gatherer = g
	}
}

func NewRunner(proc *pipeline.Processor, opts ...Option) *Runner {
	r := &Runner{proc: proc, workers: 4, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	r.log = observability.OrNop(r.log)
	return r
}

// OutputName returns the output file name for a recap path.
func OutputName(recap string) string {
	base := filepath.Base(recap)
	return strings.TrimSuffix(base, filepath.Ext(base)) + OutputSuffix
}

// Run processes every recap matching job.RecapGlob. Failed recaps are
// recorded in the manifest; only cancellation and manifest errors are
// returned.
func (r *Runner) Run(ctx context.Context, job Job) (*Manifest, error) {
	recaps, err := doublestar.FilepathGlob(job.RecapGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("batch: pattern %q: %w", job.RecapGlob, err)
	}
	sort.Strings(recaps)
	if len(recaps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, job.RecapGlob)
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: output dir: %w", err)
	}

	m := &Manifest{
		JobID:     uuid.NewString(),
		Template:  job.Template,
		Pattern:   job.RecapGlob,
		StartedAt: r.now(),
		Entries:   make([]Entry, len(recaps)),
	}
	log := r.log.With(observability.String("job", m.JobID))
	log.Info("batch started", observability.Int("recaps", len(recaps)), observability.Int("workers", r.workers))

	owners := make(map[string]string, len(recaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, recap := range recaps {
		name := OutputName(recap)
		if first, taken := owners[name]; taken {
			err := fmt.Errorf("%w: %s already writes %s", ErrDuplicateOutput, first, name)
			m.Entries[i] = Entry{Recap: recap, Status: StatusFailed, Error: err.Error()}
			log.Warn("recap skipped", observability.String("recap", recap), observability.Err(err))
			continue
		}
		owners[name] = recap
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m.Entries[i] = r.process(gctx, job.Template, recap, job.OutputDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.FinishedAt = r.now()
	for _, e := range m.Entries {
		if e.Status == StatusOK {
			m.Succeeded++
		} else {
			m.Failed++
		}
	}
	if err := writeManifest(filepath.Join(job.OutputDir, ManifestName), m); err != nil {
		return m, err
	}
	r.exportMetrics()
	log.Info("batch finished",
		observability.Int("succeeded", m.Succeeded),
		observability.Int("failed", m.Failed),
		observability.Duration("elapsed", m.FinishedAt.Sub(m.StartedAt)),
	)
	return m, nil
}

// process runs one recap and never fails; errors land in the entry.
func (r *Runner) process(ctx context.Context, template, recap, outDir string) Entry {
	e := Entry{Recap: recap, Output: filepath.Join(outDir, OutputName(recap))}
	rep, err := r.proc.Process(ctx, pipeline.Request{Template: template, Recap: recap, Output: e.Output})
	if rep != nil {
		c := rep.Amendments.Counts()
		e.Valid = rep.Valid
		e.Validation = rep.ValidationErrors
		e.Deleted, e.Added, e.New, e.Modified = c.Deleted, c.Added, c.New, c.Modified
		e.Duration = rep.Duration
	}
	if err != nil {
		e.Status = StatusFailed
		e.Error = err.Error()
		e.Output = ""
		r.log.Warn("recap failed", observability.String("recap", recap), observability.Err(err))
		return e
	}
	e.Status = StatusOK
	return e
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("batch: manifest: %w", err)
	}
	return nil
}

func (r *Runner) exportMetrics() {
	if r.textfile == "" || r.gatherer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := prometheus.WriteToTextfile(r.textfile, r.gatherer); err != nil {
		r.log.Warn("metrics textfile export failed", observability.String("path", r.textfile), observability.Err(err))
	}
}
