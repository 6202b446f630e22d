package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/service/breaker"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
	"github.com/guildops/tierkeeper/pkg/utils/errutil"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// Server exposes the operational surface: liveness and pipeline status
type Server struct {
	router    *chi.Mux
	breaker   *breaker.Breaker
	queue     *queue.Queue
	scheduler *scheduler.Scheduler
}

// Options is a functional option for server configuration
type Options func(*Server)

// WithBreaker attaches the verification circuit breaker for status reporting
func WithBreaker(b *breaker.Breaker) Options {
	return func(s *Server) {
		s.breaker = b
	}
}

// WithQueue attaches the task queue for status reporting
func WithQueue(q *queue.Queue) Options {
	return func(s *Server) {
		s.queue = q
	}
}

// WithScheduler attaches the recheck scheduler for status reporting
func WithScheduler(sc *scheduler.Scheduler) Options {
	return func(s *Server) {
		s.scheduler = sc
	}
}

// New creates the HTTP server
func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{router: r}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/api/status", s.statusHandler)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK")) //nolint:errcheck // header already committed
}

// statusHandler reports the breaker state and queue depth as JSON
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Breaker  *breaker.Status  `json:"breaker,omitempty"`
		Queue    *queue.Stats     `json:"queue,omitempty"`
		Schedule *scheduler.Stats `json:"schedule,omitempty"`
	}

	var resp response
	if s.breaker != nil {
		st := s.breaker.Status()
		resp.Breaker = &st
	}
	if s.queue != nil {
		st := s.queue.Stats()
		resp.Queue = &st
	}
	if s.scheduler != nil {
		st, err := s.scheduler.Stats(r.Context())
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to read schedule stats"), http.StatusInternalServerError)
			return
		}
		resp.Schedule = st
	}

	data, err := json.Marshal(resp)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal status response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data) //nolint:errcheck // header already committed
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
