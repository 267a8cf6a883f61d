// Package handler provides the HTTP handlers of the weather read API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/api/models"
	"github.com/toomja/ilm/internal/api/response"
	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
)

// pingTimeout bounds the store check of readiness and status probes.
const pingTimeout = 2 * time.Second

// Pinger checks a backing store. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandlerConfig holds the ops handler dependencies.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	Weather    WeatherReader
	Narratives NarrativeReader

	// Store is pinged by readiness (optional, nil for the in-memory store).
	Store Pinger

	// Registry reports provider circuits when the worker runs in-process
	// (optional). Without it provider status is derived from the cache.
	Registry *resilience.Registry

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	weather    WeatherReader
	narratives NarrativeReader
	store      Pinger
	registry   *resilience.Registry
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		weather:    cfg.Weather,
		narratives: cfg.Narratives,
		store:      cfg.Store,
		registry:   cfg.Registry,
		clock:      clock,
		logger:     cfg.Logger,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The API is ready when its store
// answers; an empty cache is still ready, reads return 503 until the worker
// fills it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	store := h.storeStatus(r.Context())
	health := models.Health{
		Status: store.Status,
		Time:   models.Timestamp(h.clock.Now()),
	}
	if store.Detail != nil {
		health.Details = map[string]interface{}{"store": *store.Detail}
	}

	status := http.StatusOK
	if store.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entry, stale, err := h.weather.Current(ctx)
	if err != nil && !errors.Is(err, weather.ErrWeatherUnavailable) {
		h.logger.Warn().Err(err).Msg("status: cache read failed")
	}

	var flags []string
	cache := models.SubsystemStatus{Name: "forecast-cache", Status: models.HealthStatusOK}
	switch {
	case entry == nil:
		cache.Status = models.HealthStatusFail
		cache.Detail = ptr("no forecast cached")
		flags = append(flags, models.DegradationNoCache)
	case stale:
		cache.Status = models.HealthStatusDegraded
		cache.Detail = ptr("newest forecast expired at " + entry.ExpiresAt.UTC().Format(time.RFC3339))
		flags = append(flags, models.DegradationStaleCache)
	}
	if entry != nil && entry.Payload.Source != weather.SourceAggregated {
		flags = append(flags, models.DegradationSingleSource)
	}

	narr := h.narrativeStatus(ctx)
	if narr.Status != models.HealthStatusOK {
		flags = append(flags, models.DegradationNoNarrative)
	}

	subsystems := []models.SubsystemStatus{h.storeStatus(ctx), cache, narr}

	var providers []models.ProviderStatus
	if h.registry != nil {
		providers = registryProviders(h.registry)
	} else {
		providers = cachedProviders(entry)
	}

	overall := models.HealthStatusOK
	for _, s := range subsystems {
		overall = worst(overall, s.Status)
	}
	for _, p := range providers {
		// A failing provider degrades the pipeline but never fails it; the
		// other source or the cache still serves.
		if p.Status != models.HealthStatusOK {
			overall = worst(overall, models.HealthStatusDegraded)
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:                 overall,
		Time:                   models.Timestamp(h.clock.Now()),
		Subsystems:             subsystems,
		Providers:              providers,
		ActiveDegradationFlags: flags,
	})
}

func (h *OpsHandler) storeStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "store", Status: models.HealthStatusOK}
	if h.store == nil {
		s.Detail = ptr("in-memory")
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("store ping failed")
		s.Status = models.HealthStatusFail
		s.Detail = ptr("database unreachable")
	}
	return s
}

func (h *OpsHandler) narrativeStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "narrative", Status: models.HealthStatusOK}
	if h.narratives == nil {
		s.Status = models.HealthStatusDegraded
		s.Detail = ptr("narratives disabled")
		return s
	}

	record, err := h.narratives.Latest(ctx)
	switch {
	case err != nil:
		s.Status = models.HealthStatusDegraded
		s.Detail = ptr("narratives unreadable")
	case record == nil:
		s.Status = models.HealthStatusDegraded
		s.Detail = ptr("no narrative generated yet")
	case record.IsFallback():
		s.Status = models.HealthStatusDegraded
		s.Detail = ptr("newest narrative is the template fallback")
	}
	return s
}

func registryProviders(reg *resilience.Registry) []models.ProviderStatus {
	all := reg.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		p := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        models.HealthStatusOK,
			CircuitState:  ph.CircuitState.String(),
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		switch {
		case ph.IsUnhealthy():
			p.Status = models.HealthStatusFail
		case ph.IsDegraded():
			p.Status = models.HealthStatusDegraded
		}
		if ph.LastError != "" {
			p.Message = ptr(ph.LastError)
		}
		out = append(out, p)
	}
	return out
}

// cachedProviders infers provider status from which sources contributed to
// the newest cache entry.
func cachedProviders(entry *weather.CacheEntry) []models.ProviderStatus {
	sources := []weather.Source{weather.SourceEstonian, weather.SourceOpenMeteo}
	out := make([]models.ProviderStatus, 0, len(sources))
	for _, src := range sources {
		p := models.ProviderStatus{Provider: string(src), Status: models.HealthStatusDegraded, CircuitState: "unknown"}
		switch {
		case entry == nil:
			p.Message = ptr("no forecast cached")
		case entry.Payload.Source == weather.SourceAggregated || entry.Payload.Source == src:
			p.Status = models.HealthStatusOK
			p.LastSuccessAt = models.TimestampPtr(&entry.CachedAt)
		default:
			p.Message = ptr(string(src) + " missing from the newest forecast")
			for _, a := range entry.Alerts {
				if a.Type == weather.AlertSingleSource {
					p.Message = ptr(a.Message)
				}
			}
		}
		out = append(out, p)
	}
	return out
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func ptr(s string) *string {
	return &s
}
