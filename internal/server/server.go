// Package server exposes the analysis pipeline over HTTP.
//
// Surface:
//
//	GET  /health  liveness + active session count
//	POST /analyze multipart file upload, full pipeline
//	GET  /data    pagination over a stored session's rows
//	POST /chat    question answering against a stored session
//
// The server is thin plumbing: all analysis semantics live in the
// pipeline packages; handlers translate HTTP to pipeline calls and
// shape the JSON the UI expects.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"insight/internal/audit"
	"insight/internal/blueprint"
	"insight/internal/metrics"
	"insight/internal/session"
	"insight/internal/storage"
)

// Logger is the minimal logging interface used by the server.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options carries the server's collaborators. Sessions and Provider are
// required; the rest degrade to no-ops when nil.
type Options struct {
	Sessions *session.Store
	Provider blueprint.Provider
	Auditor  *audit.Auditor
	Repo     storage.Repository
	Metrics  metrics.Backend
	Logger   Logger

	// PreviewRows caps the row preview in analyze responses.
	// Defaults to 100.
	PreviewRows int
	// PageLimit is the default page size for /data. Defaults to 100.
	PageLimit int
}

// Server holds the handler state.
type Server struct {
	sessions *session.Store
	provider blueprint.Provider
	auditor  *audit.Auditor
	repo     storage.Repository
	metrics  metrics.Backend
	logger   Logger

	previewRows int
	pageLimit   int
}

// New creates a Server. Nil optional collaborators are replaced with
// no-op implementations so handlers never nil-check.
func New(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	previewRows := opts.PreviewRows
	if previewRows <= 0 {
		previewRows = 100
	}
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &Server{
		sessions:    opts.Sessions,
		provider:    opts.Provider,
		auditor:     opts.Auditor,
		repo:        opts.Repo,
		metrics:     m,
		logger:      opts.Logger,
		previewRows: previewRows,
		pageLimit:   pageLimit,
	}
}

// Handler returns the routed handler with CORS and metrics middleware
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("POST /analyze", s.instrument("analyze", s.handleAnalyze))
	mux.HandleFunc("GET /data", s.instrument("data", s.handleData))
	mux.HandleFunc("POST /chat", s.instrument("chat", s.handleChat))
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "online",
		"engine":          "insight",
		"sessions_active": s.sessions.Len(),
	})
}

// corsMiddleware allows any origin. The service fronts a browser UI
// served from a different origin during development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument wraps a handler with request counting and latency
// observation per endpoint.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		labels := metrics.Labels{
			"endpoint": endpoint,
			"status":   strconv.Itoa(sw.status),
		}
		s.metrics.IncCounter(metrics.MetricRequestsTotal, 1, labels)
		s.metrics.ObserveHistogram(metrics.MetricRequestDuration, time.Since(start).Seconds(), labels)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}
