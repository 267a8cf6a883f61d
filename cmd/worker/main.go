// Package main provides the entrypoint for the weather aggregation worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/app"
	"github.com/toomja/ilm/internal/display"
	"github.com/toomja/ilm/internal/observability"
	"github.com/toomja/ilm/internal/telemetry"
	"github.com/toomja/ilm/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "ilm-worker"

	once := flag.Bool("once", false, "run a single cycle, print the current conditions and exit")
	format := flag.String("format", display.FormatSimple, "output format for -once: "+strings.Join(display.Formats, ", "))
	search := flag.String("search", "", "look up ilmateenistus locations by name and exit")
	coordinates := flag.String("coordinates", "", `override WEATHER_LAT/WEATHER_LON with a "lat;lon" pair, as printed by -search`)
	flag.Parse()

	// Logs go to stderr so -once output stays clean on stdout.
	log := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
	if *once || *search != "" {
		log = log.Level(zerolog.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := app.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *coordinates != "" {
		if err = cfg.SetCoordinates(*coordinates); err != nil {
			log.Fatal().Err(err).Msg("invalid -coordinates")
		}
	}
	if *once || *search != "" {
		// One-shot runs must not require a database.
		cfg.StoreBackend = app.StoreMemory
	}

	pipeline, err := app.Build(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build weather pipeline")
	}
	defer pipeline.Close()

	switch {
	case *search != "":
		err = runSearch(ctx, pipeline, *search)
	case *once:
		err = runOnce(ctx, pipeline, *format)
	default:
		err = serve(ctx, pipeline, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("worker failed")
		pipeline.Close()
		os.Exit(1) //nolint:gocritic // pipeline closed above
	}
}

func runSearch(ctx context.Context, pipeline *app.Pipeline, query string) error {
	locations, err := pipeline.Estonian.SearchLocation(ctx, query)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		fmt.Printf("no locations match %q\n", query)
		return nil
	}
	for _, l := range locations {
		coords := l.Coordinates()
		if coords == "" {
			coords = "-"
		}
		fmt.Printf("%s\t%s\t%s\n", l.ID, l.Name, coords)
	}
	return nil
}

func runOnce(ctx context.Context, pipeline *app.Pipeline, format string) error {
	result, err := pipeline.Weather.RunCycle(ctx)
	if err != nil {
		_ = display.Write(os.Stdout, format, nil)
		return err
	}
	return display.Write(os.Stdout, format, result.Entry)
}

func serve(ctx context.Context, pipeline *app.Pipeline, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("location", pipeline.Config.LocationName).
		Msg("starting weather worker")

	telemetryConfig := telemetry.ConfigFromEnv("ilm-worker", Version)
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	workerConfig, err := worker.ConfigFromEnv()
	if err != nil {
		return err
	}

	job := worker.NewCycleJob(worker.CycleJobConfig{
		Pipeline: pipeline.Weather,
		Config:   workerConfig,
		Metrics:  observability.NewMetrics(),
		Logger:   log.With().Str("component", "cycle").Logger(),
	})

	// Worker also exposes a health endpoint for Cloud Run
	health := worker.NewHealthServer(worker.HealthServerConfig{
		Addr:    ":" + app.GetEnvOrDefault("APP_PORT", "8080"),
		Version: Version,
		Job:     job,
		Logger:  log,
	})
	go func() {
		if err := health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: app.GetEnvOrDefault("PUBSUB_SUBSCRIPTION", "weather-jobs"),
			Dispatcher:       worker.NewDispatcher(job, pipeline.Registry, log),
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Job:    job,
		Config: workerConfig,
		Logger: log.With().Str("component", "scheduler").Logger(),
	})
	if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("shutting down worker")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := health.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
	return nil
}
