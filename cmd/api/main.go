// Package main provides the entrypoint for the weather read API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/api"
	"github.com/toomja/ilm/internal/api/handler"
	"github.com/toomja/ilm/internal/api/middleware"
	"github.com/toomja/ilm/internal/app"
	"github.com/toomja/ilm/internal/observability"
	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/telemetry"
	"github.com/toomja/ilm/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "ilm-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting weather API")

	if err := app.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	port := app.GetEnvOrDefault("APP_PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	telemetryConfig := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryConfig.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	cfg, err := app.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	pipeline, err := app.Build(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build weather pipeline")
	}
	defer pipeline.Close()

	var store handler.Pinger
	if pipeline.DB != nil {
		store = pipeline.DB
	}

	// The provider registry only reflects this process, so it is exposed
	// only when this process also runs the cycles.
	var registry *resilience.Registry
	if os.Getenv("EMBED_WORKER") == "true" {
		registry = pipeline.Registry
		workerConfig, err := worker.ConfigFromEnv()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid worker configuration")
		}
		job := worker.NewCycleJob(worker.CycleJobConfig{
			Pipeline: pipeline.Weather,
			Config:   workerConfig,
			Metrics:  observability.NewMetrics(),
			Logger:   log.With().Str("component", "worker").Logger(),
		})
		scheduler := worker.NewScheduler(worker.SchedulerConfig{
			Job:    job,
			Config: workerConfig,
			Logger: log.With().Str("component", "scheduler").Logger(),
		})
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("embedded scheduler stopped")
			}
		}()
		log.Info().Msg("embedded worker started")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     metrics,
		RequireTLS:  os.Getenv("REQUIRE_TLS") == "true",
		Weather:     pipeline.Weather,
		Narratives:  pipeline.Narratives,
		Store:       store,
		Registry:    registry,
		Latitude:    cfg.Latitude,
		Longitude:   cfg.Longitude,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("location", cfg.LocationName).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
