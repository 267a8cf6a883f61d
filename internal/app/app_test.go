package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/app"
	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
	"github.com/toomja/ilm/internal/weather/ilmateenistus"
	"github.com/toomja/ilm/internal/weather/openmeteo"
)

const openMeteoPayload = `{
	"current": {
		"time": "2026-03-01T12:15",
		"temperature_2m": 2.4,
		"apparent_temperature": -1.3,
		"relative_humidity_2m": 86,
		"precipitation": 0.2,
		"cloud_cover": 100,
		"wind_speed_10m": 4.6,
		"wind_direction_10m": 225,
		"weather_code": 61
	},
	"hourly": {
		"time": ["2026-03-01T12:00", "2026-03-01T13:00"],
		"temperature_2m": [2.4, 2.9],
		"precipitation": [0.2, 0.3],
		"cloud_cover": [100, 90],
		"wind_speed_10m": [4.6, 5.0]
	}
}`

func singleAttempt() *resilience.Policy {
	return &resilience.Policy{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		Multiplier:      2,
		RateLimitStep:   time.Millisecond,
		BaseTimeout:     2 * time.Second,
		TimeoutGrowth:   time.Second,
	}
}

func memoryConfig(serverURL string) app.Config {
	return app.Config{
		LocationName: "Toomja",
		Latitude:     app.DefaultLatitude,
		Longitude:    app.DefaultLongitude,
		CacheTTL:     time.Hour,
		StoreBackend: app.StoreMemory,
		OpenMeteoURL: serverURL + "/v1/forecast",
		EstonianURL:  serverURL,
	}
}

func TestBuild_SingleSourceCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openMeteoPayload))
	}))
	defer server.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 20, 0, 0, time.UTC))
	p, err := app.Build(context.Background(), memoryConfig(server.URL), app.Options{
		Logger: zerolog.Nop(),
		Clock:  clock,
		Policy: singleAttempt(),
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.DB)

	result, err := p.Weather.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, weather.SourceOpenMeteo, result.Entry.Payload.Source)
	assert.NotEmpty(t, result.Narrative)

	entry, stale, err := p.Weather.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, clock.Now().Add(time.Hour), entry.ExpiresAt)

	record, err := p.Narratives.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.IsFallback(), "no API key means template narratives")

	health := p.Registry.GetAllHealth()
	require.Len(t, health, 2)
	assert.Equal(t, ilmateenistus.ProviderName, health[0].Name)
	assert.NotNil(t, health[0].LastFailureAt)
	assert.Nil(t, health[0].LastSuccessAt)
	assert.Equal(t, openmeteo.ProviderName, health[1].Name)
	assert.NotNil(t, health[1].LastSuccessAt)
}

func TestBuild_AllSourcesDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	p, err := app.Build(context.Background(), memoryConfig(server.URL), app.Options{
		Logger: zerolog.Nop(),
		Clock:  clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 20, 0, 0, time.UTC)),
		Policy: singleAttempt(),
	})
	require.NoError(t, err)

	_, err = p.Weather.RunCycle(context.Background())
	require.Error(t, err)

	_, _, err = p.Weather.Current(context.Background())
	assert.ErrorIs(t, err, weather.ErrWeatherUnavailable)
}
