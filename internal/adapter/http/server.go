package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunReporter exposes the outcome of the latest pipeline run.
type RunReporter interface {
	LastRun() (pipeline.RunSummary, bool)
}

// RunTrigger starts an out-of-schedule run.
type RunTrigger interface {
	TriggerRun() error
}

// Server exposes health, readiness, metrics and run status HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /runs/last routes. POST /runs is only routed when trigger is non-nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunReporter, trigger RunTrigger, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs/last", handleLastRun(runs))
	if trigger != nil {
		mux.HandleFunc("POST /runs", s.handleTrigger(trigger))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleLastRun(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		summary, ok := runs.LastRun()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no run has completed yet"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleTrigger(trigger RunTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := trigger.TriggerRun(); err != nil {
			s.logger.Warn("manual run rejected", "error", err)
			sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "run scheduled"})
	}
}
