package models

import (
	"github.com/toomja/ilm/internal/weather"
)

// CurrentWeather is the flattened, UI-ready projection of the latest cached
// forecast.
type CurrentWeather struct {
	Location            string   `json:"location"`
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparentTemperature"`
	Phenomenon          *string  `json:"phenomenon"`
	WindSpeed           *float64 `json:"windSpeed"`
	WindDirection       *string  `json:"windDirection"`
	Precipitation       *float64 `json:"precipitation"`
	CloudCover          *float64 `json:"cloudCover"`
	Humidity            *float64 `json:"humidity"`

	// Icon is day/night aware, see weather.IconFor.
	Icon string `json:"icon"`

	// Blurb is the newest narrative text, empty when none exists yet.
	Blurb string `json:"blurb"`

	// Timestamp is the observation time of the current conditions.
	Timestamp Timestamp `json:"timestamp"`

	SunPosition *weather.SunPosition `json:"sunPosition,omitempty"`
	Source      weather.Source       `json:"source"`

	// Stale is true when the newest cache entry has already expired.
	Stale bool `json:"stale"`
}

// Forecast wraps the full cached forecast.
type Forecast struct {
	Forecast  weather.NormalizedForecast `json:"forecast"`
	CachedAt  Timestamp                  `json:"cachedAt"`
	ExpiresAt Timestamp                  `json:"expiresAt"`
	Stale     bool                       `json:"stale"`
}

// Comparison is the latest per-source comparison and its alerts. Comparison
// is null when only one source contributed.
type Comparison struct {
	Comparison *weather.SourceComparison   `json:"comparison"`
	Alerts     []weather.DisagreementAlert `json:"alerts"`
	Source     weather.Source              `json:"source"`
	CachedAt   Timestamp                   `json:"cachedAt"`
	Stale      bool                        `json:"stale"`
}

// Narrative is the newest generated narrative.
type Narrative struct {
	Text        string    `json:"text"`
	SourceModel string    `json:"sourceModel"`
	Fallback    bool      `json:"fallback"`
	TokenCount  *int      `json:"tokenCount"`
	CreatedAt   Timestamp `json:"createdAt"`
}
