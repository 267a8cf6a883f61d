// Package api provides the HTTP read API over the cached Toomja forecast.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/api/handler"
	"github.com/toomja/ilm/internal/api/middleware"
	"github.com/toomja/ilm/internal/api/response"
	"github.com/toomja/ilm/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	// Metrics records HTTP server metrics (optional).
	Metrics *middleware.Metrics

	// RequireTLS rejects forwarded plain HTTP requests.
	RequireTLS bool

	Weather    handler.WeatherReader
	Narratives handler.NarrativeReader
	Store      handler.Pinger
	Registry   *resilience.Registry

	// Latitude and Longitude of the configured location.
	Latitude  float64
	Longitude float64

	// RetryAfter is advertised on 503s while the cache is empty.
	RetryAfter time.Duration

	// ReadRateLimit and OpsRateLimit override the per-IP limits (optional).
	ReadRateLimit *middleware.RateLimitConfig
	OpsRateLimit  *middleware.RateLimitConfig

	Clock clockwork.Clock
}

// NewRouter creates a chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ilm-api"
	}

	readLimit := middleware.ReadRateLimit
	if cfg.ReadRateLimit != nil {
		readLimit = *cfg.ReadRateLimit
	}
	opsLimit := middleware.OpsRateLimit
	if cfg.OpsRateLimit != nil {
		opsLimit = *cfg.OpsRateLimit
	}

	// Order matters: the request ID must exist before anything logs it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no such resource")
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Weather:    cfg.Weather,
		Narratives: cfg.Narratives,
		Store:      cfg.Store,
		Registry:   cfg.Registry,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
	})
	weatherHandler := handler.NewWeatherHandler(handler.WeatherHandlerConfig{
		Weather:    cfg.Weather,
		Narratives: cfg.Narratives,
		Latitude:   cfg.Latitude,
		Longitude:  cfg.Longitude,
		RetryAfter: cfg.RetryAfter,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
	})

	r.Route("/v1", func(r chi.Router) {
		// Probes are not rate limited.
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(middleware.RateLimitByIP(opsLimit)).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/weather", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(readLimit))
			r.Get("/current", weatherHandler.Current)
			r.Get("/forecast", weatherHandler.Forecast)
			r.Get("/comparison", weatherHandler.Comparison)
			r.Get("/narrative", weatherHandler.Narrative)
		})
	})

	return r
}
