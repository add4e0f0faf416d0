// Package api exposes the HTTP interface: thumbnail job submission and
// retrieval, SNS account linking, and scheduled publishing.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/jobs"
	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/social"
)

// Deps collects everything the handlers need.
type Deps struct {
	Jobs        *jobs.Store
	Queue       *jobs.Queue
	Connections *social.ConnectionStore
	Schedule    *social.ScheduleStore
	OAuth       *social.OAuth
	Publisher   social.Publisher
	Logger      *zap.Logger
}

// Server wires HTTP handlers to the job queue and the SNS subsystem.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/shopping/thumbnail/jobs", func(r chi.Router) {
			r.Post("/", s.createThumbnailJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getThumbnailJob)
				r.Get("/result", s.getThumbnailResult)
			})
		})
		r.Route("/sns", func(r chi.Router) {
			r.Get("/connections", s.listConnections)
			r.Post("/disconnect/{connection_id}", s.disconnect)
			r.Post("/post", s.postNow)
			r.Get("/auth/facebook", s.authFacebook)
			r.Get("/callback/facebook", s.callbackFacebook)
			r.Get("/auth/threads", s.authThreads)
			r.Get("/callback/threads", s.callbackThreads)
			r.Get("/auth/youtube", s.authYouTube)
			r.Get("/callback/youtube", s.callbackYouTube)
			r.Get("/schedule", s.listSchedule)
			r.Post("/schedule", s.addSchedule)
			r.Delete("/schedule/{item_id}", s.deleteSchedule)
			r.Get("/schedule/suggested-times", s.suggestedTimes)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
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

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

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
