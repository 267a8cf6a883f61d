package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/api/middleware"
	"github.com/toomja/ilm/internal/api/models"
	"github.com/toomja/ilm/internal/api/response"
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

// MaxForecastHours bounds the hours query parameter.
const MaxForecastHours = 48

// WeatherReader serves cached forecasts. *weather.Service implements it.
type WeatherReader interface {
	Current(ctx context.Context) (entry *weather.CacheEntry, stale bool, err error)
	Location() string
}

// NarrativeReader returns the newest narrative. *narrative.Service
// implements it.
type NarrativeReader interface {
	Latest(ctx context.Context) (*narrative.Record, error)
}

// WeatherHandlerConfig holds the weather handler dependencies.
type WeatherHandlerConfig struct {
	Weather WeatherReader

	// Narratives supplies the blurb (optional).
	Narratives NarrativeReader

	// Latitude and Longitude place the sun for day/night icons.
	Latitude  float64
	Longitude float64

	// RetryAfter is sent with 503s while nothing is cached (optional).
	RetryAfter time.Duration

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// WeatherHandler serves the read side of the pipeline. It never triggers a
// fetch; the worker keeps the cache warm.
type WeatherHandler struct {
	weather    WeatherReader
	narratives NarrativeReader
	lat, lon   float64
	retryAfter time.Duration
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(cfg WeatherHandlerConfig) *WeatherHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WeatherHandler{
		weather:    cfg.Weather,
		narratives: cfg.Narratives,
		lat:        cfg.Latitude,
		lon:        cfg.Longitude,
		retryAfter: cfg.RetryAfter,
		clock:      clock,
		logger:     cfg.Logger,
	}
}

// Current handles GET /v1/weather/current.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	entry, stale, ok := h.entry(w, r)
	if !ok {
		return
	}

	now := h.clock.Now()
	sun := weather.SolarPosition(now, h.lat, h.lon)
	c := entry.Payload.Current

	body := models.CurrentWeather{
		Location:            entry.Payload.Location,
		Temperature:         c.Temperature,
		ApparentTemperature: c.ApparentTemperature,
		Phenomenon:          optional(c.Phenomenon),
		WindSpeed:           c.WindSpeed,
		WindDirection:       optional(c.WindDirection),
		Precipitation:       c.Precipitation,
		CloudCover:          c.CloudCover,
		Humidity:            c.Humidity,
		Icon:                weather.IconFor(c.Conditions, sun.IsDay()),
		Blurb:               h.blurb(r),
		Timestamp:           models.Timestamp(c.ObservedAt),
		SunPosition:         &sun,
		Source:              entry.Payload.Source,
		Stale:               stale,
	}
	response.Cached(w, r, body, entry.ExpiresAt, now)
}

// optional maps an unknown (empty) label to null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Forecast handles GET /v1/weather/forecast. The optional hours parameter
// truncates the hourly series; the summary always covers the full window.
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxForecastHours {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{{
				Field:   "hours",
				Message: fmt.Sprintf("must be an integer between 1 and %d", MaxForecastHours),
				Code:    "OUT_OF_RANGE",
			}})
			return
		}
		hours = n
	}

	entry, stale, ok := h.entry(w, r)
	if !ok {
		return
	}

	forecast := entry.Payload
	if hours > 0 && len(forecast.Hourly) > hours {
		forecast.Hourly = forecast.Hourly[:hours]
	}

	body := models.Forecast{
		Forecast:  forecast,
		CachedAt:  models.Timestamp(entry.CachedAt),
		ExpiresAt: models.Timestamp(entry.ExpiresAt),
		Stale:     stale,
	}
	response.Cached(w, r, body, entry.ExpiresAt, h.clock.Now())
}

// Comparison handles GET /v1/weather/comparison.
func (h *WeatherHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	entry, stale, ok := h.entry(w, r)
	if !ok {
		return
	}

	alerts := entry.Alerts
	if alerts == nil {
		alerts = []weather.DisagreementAlert{}
	}

	body := models.Comparison{
		Comparison: entry.Comparison,
		Alerts:     alerts,
		Source:     entry.Payload.Source,
		CachedAt:   models.Timestamp(entry.CachedAt),
		Stale:      stale,
	}
	response.Cached(w, r, body, entry.ExpiresAt, h.clock.Now())
}

// Narrative handles GET /v1/weather/narrative.
func (h *WeatherHandler) Narrative(w http.ResponseWriter, r *http.Request) {
	if h.narratives == nil {
		response.NotFound(w, r, "no narrative has been generated")
		return
	}

	record, err := h.narratives.Latest(r.Context())
	if err != nil {
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("failed to read narrative")
		response.InternalError(w, r, "failed to read narrative")
		return
	}
	if record == nil {
		response.NotFound(w, r, "no narrative has been generated")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Narrative{
		Text:        record.Text,
		SourceModel: record.SourceModel,
		Fallback:    record.IsFallback(),
		TokenCount:  record.TokenCount,
		CreatedAt:   models.Timestamp(record.CreatedAt),
	})
}

// entry loads the newest cache entry, writing the error response itself
// when there is none.
func (h *WeatherHandler) entry(w http.ResponseWriter, r *http.Request) (*weather.CacheEntry, bool, bool) {
	entry, stale, err := h.weather.Current(r.Context())
	switch {
	case errors.Is(err, weather.ErrWeatherUnavailable):
		response.WeatherUnavailable(w, r, "no forecast has been cached for "+h.weather.Location()+" yet", h.retryAfter)
		return nil, false, false
	case err != nil:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("failed to read forecast cache")
		response.InternalError(w, r, "failed to read forecast cache")
		return nil, false, false
	}
	return entry, stale, true
}

// blurb is best effort: a narrative read failure leaves it empty.
func (h *WeatherHandler) blurb(r *http.Request) string {
	if h.narratives == nil {
		return ""
	}
	record, err := h.narratives.Latest(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("narrative unavailable for blurb")
		return ""
	}
	if record == nil {
		return ""
	}
	return record.Text
}
