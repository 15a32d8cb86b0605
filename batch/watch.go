package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/wudi/charterkit/observability"
)

// Inbox subdirectories recaps are moved to once handled.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Watcher processes recaps dropped into an inbox directory.
type Watcher struct {
	runner   *Runner
	template string
	inbox    string
	output   string
	glob     string
	debounce time.Duration
	notify   func(Entry)
	log      observability.Logger

	pending map[string]time.Time
}

type WatchOption func(*Watcher)

// WithGlob selects inbox files by base name. The default is "*.pdf".
func WithGlob(pattern string) WatchOption {
	return func(w *Watcher) { w.glob = pattern }
}

// WithDebounce sets how long a file must stay quiet before it is processed.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithNotify is called after each recap is handled.
func WithNotify(fn func(Entry)) WatchOption {
	return func(w *Watcher) { w.notify = fn }
}

// NewWatcher returns a watcher feeding recaps from inbox to r. Outputs are
// written to output.
func NewWatcher(r *Runner, template, inbox, output string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		runner:   r,
		template: template,
		inbox:    inbox,
		output:   output,
		glob:     "*.pdf",
		debounce: 500 * time.Millisecond,
		log:      r.log,
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is done. Matching files already in the inbox are
// queued when watching starts.
func (w *Watcher) Watch(ctx context.Context) error {
	if !doublestar.ValidatePattern(w.glob) {
		return fmt.Errorf("batch: invalid pattern %q", w.glob)
	}
	for _, dir := range []string{w.inbox, w.output, filepath.Join(w.inbox, ProcessedDir), filepath.Join(w.inbox, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("batch: watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.inbox); err != nil {
		return fmt.Errorf("batch: watch %s: %w", w.inbox, err)
	}

	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.queue(filepath.Join(w.inbox, e.Name()))
		}
	}
	w.log.Info("watching inbox",
		observability.String("inbox", w.inbox),
		observability.String("glob", w.glob),
		observability.Duration("debounce", w.debounce),
	)

	tick := w.debounce / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.queue(ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", observability.Err(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) queue(path string) {
	if ok, _ := doublestar.Match(w.glob, filepath.Base(path)); !ok {
		return
	}
	w.pending[path] = time.Now()
}

// flush handles files that have been quiet for the debounce delay.
func (w *Watcher) flush(ctx context.Context) {
	var ready []string
	for path, seen := range w.pending {
		if time.Since(seen) >= w.debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(w.pending, path)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		e := w.runner.process(ctx, w.template, path, w.output)
		dest := ProcessedDir
		if e.Status != StatusOK {
			dest = FailedDir
		}
		moved := filepath.Join(w.inbox, dest, filepath.Base(path))
		if err := os.Rename(path, moved); err != nil {
			w.log.Warn("could not move recap", observability.String("recap", path), observability.Err(err))
		} else {
			e.Recap = moved
		}
		w.log.Info("recap handled",
			observability.String("recap", filepath.Base(path)),
			observability.String("status", string(e.Status)),
		)
		w.runner.exportMetrics()
		if w.notify != nil {
			w.notify(e)
		}
	}
}
