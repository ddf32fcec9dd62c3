// Package api exposes the status HTTP surface: health and metrics
// probes, persisted crawl run history, the board catalog with live
// pacing state, and a snapshot of the current run.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/crawl"
	"github.com/careermap/jobradar/internal/metrics"
	"github.com/careermap/jobradar/internal/ratelimit"
	"github.com/careermap/jobradar/internal/sites"
)

// PacingSource reads live per-site pacing state. *ratelimit.Limiter
// satisfies this.
type PacingSource interface {
	State(site string) (ratelimit.Stats, bool)
}

// Options tunes the HTTP surface.
type Options struct {
	// APIKey guards the /v1 routes when non-empty. Probes and /metrics
	// stay open.
	APIKey string
	// Timeout bounds each request. Zero picks one minute.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Server wires the status routes.
type Server struct {
	router  chi.Router
	runs    *RunHandler
	tracker *crawl.Tracker
	catalog []sites.Descriptor
	pacing  PacingSource
	log     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs,
// tracker, and pacing may be nil; the affected endpoints degrade
// rather than disappear.
func NewServer(runs *RunHandler, tracker *crawl.Tracker, catalog []sites.Descriptor, pacing PacingSource, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if runs == nil {
		runs = NewRunHandler(nil, opts.Logger)
	}
	s := &Server{
		runs:    runs,
		tracker: tracker,
		catalog: catalog,
		pacing:  pacing,
		log:     opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(opts.Logger))
	r.Use(recoverMiddleware(opts.Logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.Timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runs.ListRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", runs.GetRun)
				r.Get("/sites", runs.ListRunSites)
			})
		})
		r.Get("/sites", s.listSites)
		r.Get("/stats", s.stats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The catalog and tracker are in memory; run history degrades to 503
	// per endpoint, so readiness does not gate on the database.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// listSites handles GET /v1/sites: the configured boards plus, when a
// pacer is wired, their live pacing state.
func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	out := make([]siteInfoDTO, 0, len(s.catalog))
	for _, d := range s.catalog {
		info := siteInfoDTO{
			Site:      d.Name,
			Enabled:   d.Enabled,
			BaseURL:   d.BaseURL,
			MaxPages:  d.MaxPages,
			BaseDelay: d.BaseDelay.Seconds(),
			Detail:    d.Detail != nil,
		}
		if s.pacing != nil {
			if st, ok := s.pacing.State(d.Name); ok {
				info.Pacing = &pacingDTO{
					DelaySeconds: st.Delay.Seconds(),
					InBackoff:    st.InBackoff,
					Successes:    st.Successes,
					Failures:     st.Failures,
				}
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": out})
}

// stats handles GET /v1/stats: the in-flight run and the last finished
// one, straight from the tracker.
func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	var resp statsResponse
	if cur, ok := s.tracker.Current(); ok {
		resp.Current = &cur
	}
	if last, ok := s.tracker.Last(); ok {
		resp.Last = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Current *crawl.RunView `json:"current,omitempty"`
	Last    *crawl.RunView `json:"last,omitempty"`
}

type siteInfoDTO struct {
	Site      string     `json:"site"`
	Enabled   bool       `json:"enabled"`
	BaseURL   string     `json:"base_url"`
	MaxPages  int        `json:"max_pages"`
	BaseDelay float64    `json:"base_delay_seconds"`
	Detail    bool       `json:"detail_enrichment"`
	Pacing    *pacingDTO `json:"pacing,omitempty"`
}

type pacingDTO struct {
	DelaySeconds float64 `json:"delay_seconds"`
	InBackoff    bool    `json:"in_backoff"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("dur", time.Since(start)))
		})
	}
}

func recoverMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// A failed encode means the client went away; nothing useful remains
	// to send them.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
