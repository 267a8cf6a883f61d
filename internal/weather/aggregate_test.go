package weather_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/weather"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func forecast(source weather.Source, temp, wind, precip float64) *weather.NormalizedForecast {
	hourly := make([]weather.HourSample, 24)
	for i := range hourly {
		hourly[i] = weather.HourSample{
			Time: now.Add(time.Duration(i) * time.Hour),
			Conditions: weather.Conditions{
				Temperature:   weather.Float(temp),
				WindSpeed:     weather.Float(wind),
				Precipitation: weather.Float(precip),
			},
		}
	}
	f := &weather.NormalizedForecast{
		Location: "Toomja",
		Current: weather.CurrentConditions{
			Conditions: weather.Conditions{
				Temperature:   weather.Float(temp),
				WindSpeed:     weather.Float(wind),
				Precipitation: weather.Float(precip),
			},
			ObservedAt: now,
		},
		Hourly:   hourly,
		IssuedAt: now,
		Source:   source,
	}
	f.Summary = weather.Summarize(f.Hourly)
	return f
}

func TestAggregate_BothMissing(t *testing.T) {
	result, err := weather.Aggregate(nil, nil, now)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, weather.ErrAllSourcesFailed)
}

func TestAggregate_SingleSource(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 3, 4, 0)
	b := forecast(weather.SourceEstonian, 5, 6, 0)

	tests := []struct {
		name     string
		a, b     *weather.NormalizedForecast
		expected *weather.NormalizedForecast
		missing  string
	}{
		{"only open-meteo", a, nil, a, "estonian"},
		{"only estonian", nil, b, b, "open-meteo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := weather.Aggregate(tt.a, tt.b, now)
			require.NoError(t, err)

			assert.Same(t, tt.expected, result.Forecast, "forecast is returned verbatim")
			assert.Equal(t, tt.expected.Source, result.Forecast.Source)
			assert.Nil(t, result.Comparison)
			require.Len(t, result.Alerts, 1)
			assert.Equal(t, weather.AlertSingleSource, result.Alerts[0].Type)
			assert.Equal(t, weather.SeverityInfo, result.Alerts[0].Severity)
			assert.Contains(t, result.Alerts[0].Message, tt.missing)
		})
	}
}

func TestAggregate_WeightedCurrentTemperature(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 10.0, 3, 0)
	b := forecast(weather.SourceEstonian, 16.0, 3, 0)

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)

	f := result.Forecast
	assert.Equal(t, weather.SourceAggregated, f.Source)
	assert.InDelta(t, 14.8, *f.Current.Temperature, 1e-9)
	assert.InDelta(t, 13.0, *f.Hourly[0].Temperature, 1e-9, "hourly weights are even")
	assert.InDelta(t, 13.0, *f.Summary.MinTemperature, 1e-9, "summary is recomputed from aggregated hours")

	require.NotNil(t, result.Comparison)
	assert.InDelta(t, 6.0, *result.Comparison.Temperature.AbsoluteDifference, 1e-9)
	assert.InDelta(t, 10.0, *result.Comparison.Temperature.SourceA, 1e-9, "comparison keeps original values")

	require.Len(t, result.Alerts, 1)
	alert := result.Alerts[0]
	assert.Equal(t, weather.AlertTemperature, alert.Type)
	assert.Equal(t, weather.SeverityWarning, alert.Severity)
	assert.InDelta(t, 10.0, *alert.ValueA, 1e-9)
	assert.InDelta(t, 16.0, *alert.ValueB, 1e-9)
}

func TestAggregate_IdenticalInputsAreIdempotent(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 7.3, 4.1, 0.4)
	b := forecast(weather.SourceEstonian, 7.3, 4.1, 0.4)

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)

	f := result.Forecast
	assert.InDelta(t, 7.3, *f.Current.Temperature, 1e-9)
	assert.InDelta(t, 4.1, *f.Current.WindSpeed, 1e-9)
	assert.InDelta(t, 0.4, *f.Current.Precipitation, 1e-9)
	require.Len(t, f.Hourly, 24)
	for _, h := range f.Hourly {
		assert.InDelta(t, 7.3, *h.Temperature, 1e-9)
	}
	assert.InDelta(t, 100.0, *result.Comparison.AgreementScore, 1e-9)
	assert.Empty(t, result.Alerts)
}

func TestAggregate_OneSidedValuesCarriedUnweighted(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 5, 2, 0)
	a.Current.ApparentTemperature = weather.Float(1.7)
	a.Current.CloudCover = weather.Float(90)
	a.Current.WindDirection = "SW"
	b := forecast(weather.SourceEstonian, 5, 2, 0)
	b.Current.Phenomenon = "Vahelduv pilvisus"
	b.Current.WindDirection = "Edelatuul"

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)

	c := result.Forecast.Current
	assert.InDelta(t, 1.7, *c.ApparentTemperature, 1e-9)
	assert.InDelta(t, 90.0, *c.CloudCover, 1e-9)
	assert.Nil(t, c.Humidity)
	assert.Equal(t, "Vahelduv pilvisus", c.Phenomenon)
	assert.Equal(t, "Edelatuul", c.WindDirection, "labels prefer the Estonian source")
}

func TestAggregate_HourlyAlignedByTimestamp(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 2, 1, 0)
	a.Hourly = a.Hourly[:3]
	b := forecast(weather.SourceEstonian, 4, 1, 0)
	// Estonian steps start one hour later.
	b.Hourly = b.Hourly[1:4]

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)

	h := result.Forecast.Hourly
	require.Len(t, h, 4)
	assert.InDelta(t, 2.0, *h[0].Temperature, 1e-9, "open-meteo only")
	assert.InDelta(t, 3.0, *h[1].Temperature, 1e-9)
	assert.InDelta(t, 3.0, *h[2].Temperature, 1e-9)
	assert.InDelta(t, 4.0, *h[3].Temperature, 1e-9, "estonian only")
	assert.True(t, h[0].Time.Before(h[1].Time))
}

func TestAggregate_PrecipitationAndWindAlerts(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 5, 2, 0)
	b := forecast(weather.SourceEstonian, 5, 8, 1)

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)

	types := make([]weather.AlertType, 0, len(result.Alerts))
	for _, alert := range result.Alerts {
		types = append(types, alert.Type)
	}
	assert.ElementsMatch(t, []weather.AlertType{weather.AlertPrecipitation, weather.AlertWindSpeed}, types)

	for _, alert := range result.Alerts {
		if alert.Type == weather.AlertWindSpeed {
			assert.Equal(t, weather.SeverityInfo, alert.Severity)
		}
	}
}

func TestAggregate_ThresholdIsExclusive(t *testing.T) {
	a := forecast(weather.SourceOpenMeteo, 10, 2, 0)
	b := forecast(weather.SourceEstonian, 15, 2, 0)

	result, err := weather.Aggregate(a, b, now)
	require.NoError(t, err)
	assert.Empty(t, result.Alerts, "a difference of exactly 5.0 does not alert")
}

func TestCompare_AgreementScore(t *testing.T) {
	t.Run("decreases monotonically and floors at zero", func(t *testing.T) {
		prev := 101.0
		for _, delta := range []float64{0, 1, 3, 6, 10, 25} {
			a := forecast(weather.SourceOpenMeteo, 10, 2, 0)
			b := forecast(weather.SourceEstonian, 10+delta, 2, 0)

			score := *weather.Compare(a, b).AgreementScore
			assert.Less(t, score, prev+1e-9, "delta %v", delta)
			assert.GreaterOrEqual(t, score, 0.0)
			prev = score
		}
	})

	t.Run("single metric beyond span contributes zero", func(t *testing.T) {
		a := &weather.NormalizedForecast{Source: weather.SourceOpenMeteo}
		b := &weather.NormalizedForecast{Source: weather.SourceEstonian}
		a.Current.Temperature = weather.Float(0)
		b.Current.Temperature = weather.Float(30)

		c := weather.Compare(a, b)
		assert.InDelta(t, 0.0, *c.AgreementScore, 1e-9)
	})

	t.Run("nil without overlapping metrics", func(t *testing.T) {
		a := &weather.NormalizedForecast{Source: weather.SourceOpenMeteo}
		b := &weather.NormalizedForecast{Source: weather.SourceEstonian}
		a.Current.Temperature = weather.Float(3)

		c := weather.Compare(a, b)
		assert.Nil(t, c.AgreementScore)
		assert.Nil(t, c.Temperature.AbsoluteDifference)
		assert.InDelta(t, 3.0, *c.Temperature.SourceA, 1e-9)
	})

	t.Run("mean of per-metric scores", func(t *testing.T) {
		a := &weather.NormalizedForecast{Source: weather.SourceOpenMeteo}
		b := &weather.NormalizedForecast{Source: weather.SourceEstonian}
		a.Current.Temperature, b.Current.Temperature = weather.Float(10), weather.Float(12)
		a.Current.Precipitation, b.Current.Precipitation = weather.Float(0), weather.Float(1)

		// temperature 80, precipitation 80
		c := weather.Compare(a, b)
		assert.InDelta(t, 80.0, *c.AgreementScore, 1e-9)
	})
}

func TestWeightedValue(t *testing.T) {
	w := weather.CurrentWeights

	assert.InDelta(t, 14.8, *weather.WeightedValue(weather.Float(10), weather.Float(16), w), 1e-9)
	assert.InDelta(t, 10.0, *weather.WeightedValue(weather.Float(10), nil, w), 1e-9)
	assert.InDelta(t, 16.0, *weather.WeightedValue(nil, weather.Float(16), w), 1e-9)
	assert.Nil(t, weather.WeightedValue(nil, nil, w))
}

// stubProvider returns a fixed forecast or error after an optional delay.
type stubProvider struct {
	name     string
	source   weather.Source
	forecast *weather.NormalizedForecast
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (p *stubProvider) Name() string          { return p.name }
func (p *stubProvider) Source() weather.Source { return p.source }

func (p *stubProvider) Forecast(ctx context.Context) (*weather.NormalizedForecast, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.forecast, p.err
}

func TestAggregator_Run(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)

	t.Run("both succeed", func(t *testing.T) {
		a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 10, 2, 0)}
		b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 16, 2, 0)}
		agg := weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock})

		result, outcomes, err := agg.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, weather.SourceAggregated, result.Forecast.Source)
		assert.Equal(t, now, result.Forecast.IssuedAt)
		require.Len(t, outcomes, 2)
		assert.NoError(t, outcomes[0].Err)
		assert.NoError(t, outcomes[1].Err)
	})

	t.Run("one failure does not cancel the other", func(t *testing.T) {
		failErr := fmt.Errorf("open-meteo: %w", weather.ErrSourceUnavailable)
		a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, err: failErr}
		b := &stubProvider{
			name: "estonian", source: weather.SourceEstonian,
			forecast: forecast(weather.SourceEstonian, 16, 2, 0),
			delay:    20 * time.Millisecond,
		}
		agg := weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock})

		result, outcomes, err := agg.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, weather.SourceEstonian, result.Forecast.Source)
		assert.ErrorIs(t, outcomes[0].Err, weather.ErrSourceUnavailable)
		assert.Equal(t, int32(1), b.calls.Load())
	})

	t.Run("nil forecast without error counts as no data", func(t *testing.T) {
		a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo}
		b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 1, 1, 0)}
		agg := weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock})

		_, outcomes, err := agg.Run(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, outcomes[0].Err, weather.ErrNoData)
	})

	t.Run("all fail", func(t *testing.T) {
		errA := errors.New("a down")
		errB := errors.New("b down")
		a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, err: errA}
		b := &stubProvider{name: "estonian", source: weather.SourceEstonian, err: errB}
		agg := weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock})

		result, _, err := agg.Run(context.Background())
		assert.Nil(t, result)
		assert.ErrorIs(t, err, weather.ErrAllSourcesFailed)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	})

	t.Run("sources are fetched concurrently", func(t *testing.T) {
		a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 1, 1, 0), delay: 100 * time.Millisecond}
		b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 1, 1, 0), delay: 100 * time.Millisecond}
		agg := weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock})

		start := time.Now()
		_, _, err := agg.Run(context.Background())
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 190*time.Millisecond)
	})
}
