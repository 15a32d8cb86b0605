// Package server is the browser front end: upload a template and a recap,
// review the mapped fields and amendments, correct values and download the
// final document.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wudi/charterkit/amend"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/config"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"truncate": truncate,
}).ParseFS(templateFS, "templates/*.html"))

// previewWidth bounds labels and values in the preview table.
const previewWidth = 30

// Session holds one uploaded pair and the analysis derived from it.
type Session struct {
	ID        string
	Created   time.Time
	Template  string
	Recap     string
	Overrides map[int]string

	mu     sync.Mutex
	report *pipeline.Report
}

// Report returns the latest analysis.
func (s *Session) Report() *pipeline.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Server wraps the HTTP server and the session store.
type Server struct {
	cfg      config.ServerConfig
	proc     *pipeline.Processor
	log      observability.Logger
	sessions *cache.Cache
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
	now      func() time.Time
}

type Option func(*Server)

func WithLogger(l observability.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithGatherer serves g on /metrics. The default is the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithClock fixes the time used for download names.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New constructs a server with all routes registered.
func New(cfg config.ServerConfig, proc *pipeline.Processor, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		proc:     proc,
		gatherer: prometheus.DefaultGatherer,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = observability.OrNop(s.log)
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.sessions = cache.New(ttl, 2*ttl)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /sessions", s.handleUpload)
	s.mux.HandleFunc("GET /sessions/{id}", s.handlePreview)
	s.mux.HandleFunc("POST /sessions/{id}/fields", s.handleFields)
	s.mux.HandleFunc("GET /sessions/{id}/pdf", s.handlePDF)
	s.mux.HandleFunc("GET /sessions/{id}/amendments.json", s.handleAmendments)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.ItemCount()})
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.log, s.mux)
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("web UI listening", observability.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down web UI")
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(log observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", map[string]any{"Debug": s.cfg.Debug})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadMB
	if limit <= 0 {
		limit = 32
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit<<20)
	if err := r.ParseMultipartForm(limit << 20); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	docs := make(map[charter.Kind]*charter.Document, 2)
	names := make(map[charter.Kind]string, 2)
	for _, kind := range []charter.Kind{charter.Template, charter.Recap} {
		file, header, err := r.FormFile(string(kind))
		if err != nil {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("%s PDF is required", kind))
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("read %s: %w", kind, err))
			return
		}
		doc, err := s.proc.LoadBytes(r.Context(), kind, data)
		if err != nil {
			s.fail(w, http.StatusUnprocessableEntity, fmt.Errorf("extract %s: %w", kind, err))
			return
		}
		docs[kind] = doc
		names[kind] = header.Filename
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Created:   s.now(),
		Template:  names[charter.Template],
		Recap:     names[charter.Recap],
		Overrides: map[int]string{},
	}
	if err := s.analyze(r.Context(), sess, docs[charter.Template], docs[charter.Recap]); err != nil {
		s.fail(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.sessions.SetDefault(sess.ID, sess)
	s.log.Info("session created",
		observability.String("session", sess.ID),
		observability.String("template", sess.Template),
		observability.String("recap", sess.Recap),
	)
	http.Redirect(w, r, "/sessions/"+sess.ID, http.StatusSeeOther)
}

// analyze refreshes the session report. Validation failures in strict mode
// keep the report so the preview can show them.
func (s *Server) analyze(ctx context.Context, sess *Session, template, recap *charter.Document) error {
	rep, err := s.proc.Analyze(ctx, template, recap, sess.Overrides)
	if err != nil && !errors.Is(err, pipeline.ErrValidation) {
		return err
	}
	sess.mu.Lock()
	sess.report = rep
	sess.mu.Unlock()
	return nil
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	v, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.fail(w, http.StatusNotFound, errors.New("session not found or expired"))
		return nil, false
	}
	return v.(*Session), true
}

type fieldRow struct {
	Number int
	Label  string
	Value  string
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rep := sess.Report()
	rows := make([]fieldRow, 0, charter.FieldCount)
	for n := 1; n <= charter.FieldCount; n++ {
		rows = append(rows, fieldRow{Number: n, Label: fields.Label(n), Value: rep.Fields[n].Value})
	}
	data := map[string]any{
		"Session":  sess,
		"Report":   rep,
		"Rows":     rows,
		"Counts":   rep.Amendments.Counts(),
		"Preview":  amend.Format(rep.Amendments),
		"Debug":    s.cfg.Debug,
		"Keys":     s.sessionKeys(),
		"Download": s.downloadName(),
		"Width":    previewWidth,
	}
	s.render(w, http.StatusOK, "preview.html", data)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	rep := sess.Report()
	overrides := make(map[int]string, len(sess.Overrides))
	for k, v := range sess.Overrides {
		overrides[k] = v
	}
	for key, vals := range r.PostForm {
		num, found := strings.CutPrefix(key, "field_")
		if !found || len(vals) == 0 {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || fields.Label(n) == "" {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("unknown field %q", key))
			return
		}
		value := strings.TrimSpace(vals[0])
		if value == rep.Fields[n].Value {
			continue
		}
		overrides[n] = value
	}
	sess.mu.Lock()
	sess.Overrides = overrides
	sess.mu.Unlock()
	if err := s.analyze(r.Context(), sess, rep.Template, rep.Recap); err != nil {
		s.fail(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.log.Info("fields updated", observability.String("session", sess.ID), observability.Int("overrides", len(overrides)))
	http.Redirect(w, r, "/sessions/"+sess.ID, http.StatusSeeOther)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rep := sess.Report()
	if !rep.Valid && s.proc.Config().Output.Strict {
		s.fail(w, http.StatusUnprocessableEntity, fmt.Errorf("%w: %s", pipeline.ErrValidation, strings.Join(rep.ValidationErrors, "; ")))
		return
	}
	var buf bytes.Buffer
	if err := s.proc.Generate(r.Context(), rep, &buf); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.downloadName()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleAmendments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rep := sess.Report()
	respondJSON(w, http.StatusOK, map[string]any{
		"session":    sess.ID,
		"counts":     rep.Amendments.Counts(),
		"amendments": rep.Amendments,
	})
}

func (s *Server) downloadName() string {
	return "Final_Filled_" + s.now().Format("2006-01-02_15-04-05") + ".pdf"
}

func (s *Server) sessionKeys() []string {
	items := s.sessions.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("template failed", observability.String("template", name), observability.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", observability.Err(err))
	} else {
		s.log.Warn("request rejected", observability.Int("status", status), observability.Err(err))
	}
	s.render(w, status, "error.html", map[string]any{"Status": status, "Message": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// truncate shortens s to n runes. An empty value reads as a dash.
func truncate(n int, s string) string {
	if s == "" {
		return "—"
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
