// Package ilmateenistus fetches forecasts from the Estonian Environment
// Agency weather service.
package ilmateenistus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "estonian"

	// DefaultBaseURL is the Ilmateenistus site root.
	DefaultBaseURL = "https://www.ilmateenistus.ee"

	forecastPath = "/wp-content/themes/ilm2020/meteogram.php"
	searchPath   = "/wp-json/emhi/locationAutocomplete"
)

// The meteogram endpoint rejects requests that do not look like a browser.
var browserHeaders = http.Header{
	"User-Agent":      {"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"},
	"Accept":          {"application/json, text/javascript, */*; q=0.01"},
	"Accept-Language": {"et,en;q=0.9"},
}

// ClientConfig holds configuration for the Ilmateenistus client.
type ClientConfig struct {
	// Location is the name recorded on parsed forecasts.
	Location string

	// Lat and Lon are the forecast coordinates.
	Lat float64
	Lon float64

	// Lang is the phenomenon language (optional, defaults to "et").
	Lang string

	// BaseURL is the site root (optional, defaults to Ilmateenistus).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Clock stamps parsed forecasts (optional).
	Clock clockwork.Clock
}

// Client is an Ilmateenistus API client.
type Client struct {
	location   string
	lat, lon   float64
	lang       string
	baseURL    string
	httpClient *resilience.Client
	clock      clockwork.Clock
}

// NewClient creates a new Ilmateenistus client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	lang := cfg.Lang
	if lang == "" {
		lang = "et"
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
		lang:       lang,
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
	return weather.SourceEstonian
}

// Coordinates returns the "lat;lon" parameter the meteogram expects.
func (c *Client) Coordinates() string {
	return formatCoord(c.lat) + ";" + formatCoord(c.lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FetchRaw fetches the raw meteogram payload. Exhausted retries are
// reported as an error wrapping weather.ErrSourceUnavailable.
func (c *Client) FetchRaw(ctx context.Context) (*Response, error) {
	q := url.Values{}
	q.Set("coordinates", c.Coordinates())
	q.Set("lang", c.lang)

	var resp Response
	if err := c.httpClient.GetJSON(ctx, c.baseURL+forecastPath+"?"+q.Encode(), browserHeaders, &resp, nil); err != nil {
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

// SearchLocation looks up places matching query with the site's location
// autocomplete.
func (c *Client) SearchLocation(ctx context.Context, query string) ([]Location, error) {
	q := url.Values{}
	q.Set("query", query)

	var raw searchResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+searchPath+"?"+q.Encode(), browserHeaders, &raw, nil); err != nil {
		return nil, fmt.Errorf("searching location %q: %w", query, err)
	}
	return raw.locations, nil
}
