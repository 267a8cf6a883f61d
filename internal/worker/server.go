package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthServerConfig holds configuration for the worker health server.
type HealthServerConfig struct {
	Addr    string
	Version string
	Job     *CycleJob

	// Gatherer backs /metrics (optional, defaults to the default registry).
	Gatherer prometheus.Gatherer

	Logger zerolog.Logger
}

// HealthServer exposes /health and /metrics for the worker.
type HealthServer struct {
	httpServer *http.Server
	version    string
	job        *CycleJob
	logger     zerolog.Logger
}

// NewHealthServer creates the worker health server.
func NewHealthServer(cfg HealthServerConfig) *HealthServer {
	mux := http.NewServeMux()

	s := &HealthServer{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		version: cfg.Version,
		job:     cfg.Job,
		logger:  cfg.Logger,
	}

	metrics := promhttp.Handler()
	if cfg.Gatherer != nil {
		metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *HealthServer) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("health server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *HealthServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
	}
	if s.job != nil {
		body["jobs"] = s.job.StatsSnapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // best-effort health response
}
