// Package openmeteo fetches forecasts from the Open-Meteo API.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	forecastHours = 48
)

var (
	currentFields = []string{
		"temperature_2m", "apparent_temperature", "relative_humidity_2m",
		"precipitation", "cloud_cover", "wind_speed_10m", "wind_direction_10m",
		"weather_code",
	}
	hourlyFields = append(append([]string(nil), currentFields...),
		"precipitation_probability", "snowfall")
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// Location is the name recorded on parsed forecasts.
	Location string

	// Lat and Lon are the forecast coordinates.
	Lat float64
	Lon float64

	// BaseURL is the API endpoint (optional, defaults to Open-Meteo).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Clock stamps parsed forecasts (optional).
	Clock clockwork.Clock
}

// Client is an Open-Meteo API client.
type Client struct {
	location   string
	lat, lon   float64
	baseURL    string
	httpClient *resilience.Client
	clock      clockwork.Clock
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Client{
		location:   cfg.Location,
		lat:        cfg.Lat,
		lon:        cfg.Lon,
		baseURL:    baseURL,
		httpClient: httpClient,
		clock:      clock,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Source returns the provenance tag of this provider.
func (c *Client) Source() weather.Source {
	return weather.SourceOpenMeteo
}

// FetchRaw fetches the raw forecast payload. Exhausted retries are
// reported as an error wrapping weather.ErrSourceUnavailable.
func (c *Client) FetchRaw(ctx context.Context) (*Response, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.lon, 'f', -1, 64))
	q.Set("current", strings.Join(currentFields, ","))
	q.Set("hourly", strings.Join(hourlyFields, ","))
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "GMT")
	q.Set("forecast_hours", strconv.Itoa(forecastHours))

	var resp Response
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"?"+q.Encode(), nil, &resp, nil); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", ProviderName, weather.ErrSourceUnavailable, err)
	}
	return &resp, nil
}

// Forecast fetches and parses the current forecast.
func (c *Client) Forecast(ctx context.Context) (*weather.NormalizedForecast, error) {
	raw, err := c.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}

	f := Parse(raw, c.location)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", ProviderName, weather.ErrNoData)
	}
	f.IssuedAt = c.clock.Now().UTC()
	return f, nil
}

// timeLayout is the ISO 8601 local time format used with timezone=GMT.
const timeLayout = "2006-01-02T15:04"

func parseTime(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
