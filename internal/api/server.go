// Package api exposes the harvester's status HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/cache"
	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/scraper"
	"github.com/postly/job-harvester/internal/state"
)

// StatsSource reports live run progress. Implemented by the state
// manager plus whatever owns the page cache.
type StatsSource interface {
	Snapshot() state.ScrapingState
}

// CacheStats exposes the fetch cache's counters.
type CacheStats interface {
	Stats() cache.Stats
}

// Server wires the status routes.
type Server struct {
	router     chi.Router
	stateSrc   StatsSource
	cacheStats CacheStats
	clock      scraper.Clock
	logger     *zap.Logger
	started    time.Time
}

// NewServer constructs a Server with middleware and routes. cacheStats
// may be nil.
func NewServer(stateSrc StatsSource, cacheStats CacheStats, clock scraper.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		stateSrc:   stateSrc,
		cacheStats: cacheStats,
		clock:      clock,
		logger:     logger,
		started:    clock.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State         state.ScrapingState `json:"state"`
	Cache         *cache.Stats        `json:"cache,omitempty"`
	UptimeSeconds int64               `json:"uptime_seconds"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:         s.stateSrc.Snapshot(),
		UptimeSeconds: int64(s.clock.Now().Sub(s.started).Seconds()),
	}
	if s.cacheStats != nil {
		stats := s.cacheStats.Stats()
		resp.Cache = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
