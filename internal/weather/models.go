package weather

import (
	"errors"
	"math"
	"time"
)

// Weather errors.
var (
	// ErrSourceUnavailable marks a provider fetch that exhausted its retries.
	ErrSourceUnavailable = errors.New("weather source unavailable")

	// ErrNoData marks a provider response without the expected container.
	ErrNoData = errors.New("no weather data in response")

	// ErrAllSourcesFailed is returned when no provider produced a forecast.
	ErrAllSourcesFailed = errors.New("all weather sources failed")

	// ErrWeatherUnavailable is returned when neither a live nor a cached
	// forecast exists.
	ErrWeatherUnavailable = errors.New("weather unavailable")
)

// Source identifies the provenance of a forecast.
type Source string

const (
	SourceEstonian   Source = "estonian"
	SourceOpenMeteo  Source = "open-meteo"
	SourceAggregated Source = "aggregated"
)

// Conditions holds the observable values shared by current conditions and
// hourly samples. Nil means the value is unknown.
type Conditions struct {
	// Temperature in Celsius.
	Temperature *float64 `json:"temperature"`

	// ApparentTemperature in Celsius, only supplied by Open-Meteo.
	ApparentTemperature *float64 `json:"apparentTemperature"`

	// Phenomenon is the source-language condition label, empty when the
	// provider has none.
	Phenomenon string `json:"phenomenon,omitempty"`

	WindSpeed *float64 `json:"windSpeed"` // m/s

	// WindDirection is a compass label, empty when unknown.
	WindDirection string   `json:"windDirection,omitempty"`
	WindDegrees   *float64 `json:"windDegrees"`

	Precipitation *float64 `json:"precipitation"` // mm
	CloudCover    *float64 `json:"cloudCover"`    // %
	Humidity      *float64 `json:"humidity"`      // %
}

// CurrentConditions is the observation nearest to the fetch time.
type CurrentConditions struct {
	Conditions
	ObservedAt time.Time `json:"observedAt"`
}

// HourSample is a single forecast step.
type HourSample struct {
	Time time.Time `json:"time"`
	Conditions
	PrecipitationProbability *float64 `json:"precipitationProbability"` // %
	Snowfall                 *float64 `json:"snowfall"`                 // mm
}

// Summary holds reductions over the next 24 hourly samples.
type Summary struct {
	MinTemperature              *float64 `json:"minTemperature"`
	MaxTemperature              *float64 `json:"maxTemperature"`
	MinApparentTemperature      *float64 `json:"minApparentTemperature"`
	MaxApparentTemperature      *float64 `json:"maxApparentTemperature"`
	TotalPrecipitation          *float64 `json:"totalPrecipitation"`
	MaxPrecipitationProbability *float64 `json:"maxPrecipitationProbability"`
	AvgCloudCover               *float64 `json:"avgCloudCover"`
	DominantConditions          []string `json:"dominantConditions"`
}

// NormalizedForecast is the provider-independent forecast shape.
type NormalizedForecast struct {
	Location string            `json:"location"`
	Current  CurrentConditions `json:"current"`
	Hourly   []HourSample      `json:"hourly"`
	Summary  Summary           `json:"summary"`
	IssuedAt time.Time         `json:"issuedAt"`
	Source   Source            `json:"source"`
}

// MetricComparison holds one metric as reported by both sources.
type MetricComparison struct {
	SourceA            *float64 `json:"sourceA"`
	SourceB            *float64 `json:"sourceB"`
	AbsoluteDifference *float64 `json:"absoluteDifference"`
}

// SourceComparison compares the original per-source values.
type SourceComparison struct {
	SourceA Source `json:"sourceA"`
	SourceB Source `json:"sourceB"`

	Temperature        MetricComparison `json:"temperature"`
	WindSpeed          MetricComparison `json:"windSpeed"`
	Precipitation      MetricComparison `json:"precipitation"`
	MinTemperature     MetricComparison `json:"minTemperature"`
	MaxTemperature     MetricComparison `json:"maxTemperature"`
	TotalPrecipitation MetricComparison `json:"totalPrecipitation"`

	// AgreementScore is in [0,100], nil when no metric had both values.
	AgreementScore *float64 `json:"agreementScore"`
}

// AlertType classifies a disagreement alert.
type AlertType string

const (
	AlertTemperature   AlertType = "temperature"
	AlertPrecipitation AlertType = "precipitation"
	AlertWindSpeed     AlertType = "wind_speed"
	AlertSingleSource  AlertType = "single_source"
)

// Severity of a disagreement alert.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// DisagreementAlert reports a metric where the sources diverge, or a
// missing source.
type DisagreementAlert struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	ValueA   *float64  `json:"valueA"`
	ValueB   *float64  `json:"valueB"`
}

// AggregatedResult is the outcome of one aggregation.
type AggregatedResult struct {
	Forecast   *NormalizedForecast `json:"forecast"`
	Comparison *SourceComparison   `json:"comparison"`
	Alerts     []DisagreementAlert `json:"alerts"`
}

// CacheEntry is an immutable cached forecast. A newer entry supersedes it.
type CacheEntry struct {
	ID         int64               `json:"id"`
	Location   string              `json:"location"`
	Payload    NormalizedForecast  `json:"payload"`
	Comparison *SourceComparison   `json:"comparison,omitempty"`
	Alerts     []DisagreementAlert `json:"alerts,omitempty"`
	CachedAt   time.Time           `json:"cachedAt"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
