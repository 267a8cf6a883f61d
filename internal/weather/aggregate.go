package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Provider fetches and normalizes a forecast from one upstream.
type Provider interface {
	// Name returns the provider name for logging and health reporting.
	Name() string

	// Source returns the provenance tag of forecasts from this provider.
	Source() Source

	// Forecast fetches and parses the latest forecast. Soft failures wrap
	// ErrSourceUnavailable or ErrNoData.
	Forecast(ctx context.Context) (*NormalizedForecast, error)
}

// Weights assigns the share of source A and source B in a consensus value.
type Weights struct {
	A float64
	B float64
}

var (
	// CurrentWeights trusts the Estonian service for current conditions.
	CurrentWeights = Weights{A: 0.2, B: 0.8}

	// HourlyWeights treats both sources as equally credible for the outlook.
	HourlyWeights = Weights{A: 0.5, B: 0.5}
)

// Disagreement thresholds.
const (
	TemperatureThreshold   = 5.0  // °C
	PrecipitationThreshold = 20.0 // mm
	WindSpeedThreshold     = 5.0  // m/s
)

// Agreement score spans.
const (
	temperatureSpan   = 10.0
	windSpeedSpan     = 10.0
	precipitationSpan = 5.0
)

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	// SourceA is the Open-Meteo slot.
	SourceA Provider

	// SourceB is the Estonian slot.
	SourceB Provider

	// Clock stamps aggregated forecasts (optional).
	Clock clockwork.Clock
}

// Aggregator fetches both sources concurrently and merges them.
type Aggregator struct {
	sourceA Provider
	sourceB Provider
	clock   clockwork.Clock
}

// NewAggregator creates a new aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{
		sourceA: cfg.SourceA,
		sourceB: cfg.SourceB,
		clock:   clock,
	}
}

// Outcome is the settled result of one source fetch.
type Outcome struct {
	Provider string
	Source   Source
	Forecast *NormalizedForecast
	Err      error
}

// Run fetches both sources, waits for both to settle and aggregates them.
// Per-source outcomes are returned alongside the result so callers can
// report partial failures.
func (a *Aggregator) Run(ctx context.Context) (*AggregatedResult, []Outcome, error) {
	outcomes := make([]Outcome, 2)

	// Neither fetch returns an error to the group, so one failure never
	// cancels the other.
	var g errgroup.Group
	for i, p := range []Provider{a.sourceA, a.sourceB} {
		g.Go(func() error {
			outcomes[i] = fetch(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	result, err := Aggregate(outcomes[0].Forecast, outcomes[1].Forecast, a.clock.Now())
	if err != nil {
		return nil, outcomes, fmt.Errorf("%w: %w", err, errors.Join(outcomes[0].Err, outcomes[1].Err))
	}
	return result, outcomes, nil
}

func fetch(ctx context.Context, p Provider) Outcome {
	if p == nil {
		return Outcome{Err: ErrSourceUnavailable}
	}
	o := Outcome{Provider: p.Name(), Source: p.Source()}
	o.Forecast, o.Err = p.Forecast(ctx)
	if o.Err == nil && o.Forecast == nil {
		o.Err = fmt.Errorf("%s: %w", p.Name(), ErrNoData)
	}
	if o.Err != nil {
		o.Forecast = nil
	}
	return o
}

// Aggregate merges forecast a (Open-Meteo slot) and b (Estonian slot).
// With one forecast missing the other is returned verbatim with a
// single_source alert. With both missing it fails with ErrAllSourcesFailed.
func Aggregate(a, b *NormalizedForecast, now time.Time) (*AggregatedResult, error) {
	switch {
	case a == nil && b == nil:
		return nil, ErrAllSourcesFailed
	case a == nil:
		return singleSource(b, sourceOf(b, SourceEstonian), SourceOpenMeteo), nil
	case b == nil:
		return singleSource(a, sourceOf(a, SourceOpenMeteo), SourceEstonian), nil
	}

	hourly := mergeHourly(a.Hourly, b.Hourly)
	merged := &NormalizedForecast{
		Location: firstNonEmpty(b.Location, a.Location),
		Current: CurrentConditions{
			Conditions: mergeConditions(a.Current.Conditions, b.Current.Conditions, CurrentWeights),
			ObservedAt: latest(a.Current.ObservedAt, b.Current.ObservedAt),
		},
		Hourly:   hourly,
		Summary:  Summarize(hourly),
		IssuedAt: now,
		Source:   SourceAggregated,
	}

	comparison := Compare(a, b)
	return &AggregatedResult{
		Forecast:   merged,
		Comparison: comparison,
		Alerts:     Alerts(comparison),
	}, nil
}

func singleSource(f *NormalizedForecast, present, missing Source) *AggregatedResult {
	return &AggregatedResult{
		Forecast: f,
		Alerts: []DisagreementAlert{{
			Type:     AlertSingleSource,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s unavailable, using %s only", missing, present),
		}},
	}
}

func sourceOf(f *NormalizedForecast, fallback Source) Source {
	if f.Source != "" {
		return f.Source
	}
	return fallback
}

// WeightedValue combines two readings. Known values on both sides are
// weighted and rounded to one decimal; a single known value is used as is.
func WeightedValue(a, b *float64, w Weights) *float64 {
	switch {
	case a != nil && b != nil:
		return Float(Round1(*a*w.A + *b*w.B))
	case a != nil:
		return Float(*a)
	case b != nil:
		return Float(*b)
	default:
		return nil
	}
}

// mergeConditions weights the numeric fields. Labels come from b, the
// provider with natural-language labels, falling back to a.
func mergeConditions(a, b Conditions, w Weights) Conditions {
	c := Conditions{
		Temperature:         WeightedValue(a.Temperature, b.Temperature, w),
		ApparentTemperature: WeightedValue(a.ApparentTemperature, b.ApparentTemperature, w),
		Phenomenon:          firstNonEmpty(b.Phenomenon, a.Phenomenon),
		WindSpeed:           WeightedValue(a.WindSpeed, b.WindSpeed, w),
		WindDirection:       firstNonEmpty(b.WindDirection, a.WindDirection),
		Precipitation:       WeightedValue(a.Precipitation, b.Precipitation, w),
		CloudCover:          WeightedValue(a.CloudCover, b.CloudCover, w),
		Humidity:            WeightedValue(a.Humidity, b.Humidity, w),
	}
	// Bearings are not averaged.
	if b.WindDegrees != nil {
		c.WindDegrees = Float(*b.WindDegrees)
	} else if a.WindDegrees != nil {
		c.WindDegrees = Float(*a.WindDegrees)
	}
	return c
}

// mergeHourly aligns samples by hour. Samples present in one source only
// are carried over unweighted.
func mergeHourly(a, b []HourSample) []HourSample {
	byHour := make(map[int64]*[2]*HourSample, len(a)+len(b))
	var hours []int64
	add := func(samples []HourSample, slot int) {
		for i := range samples {
			key := samples[i].Time.Truncate(time.Hour).Unix()
			pair, ok := byHour[key]
			if !ok {
				pair = &[2]*HourSample{}
				byHour[key] = pair
				hours = append(hours, key)
			}
			if pair[slot] == nil {
				pair[slot] = &samples[i]
			}
		}
	}
	add(a, 0)
	add(b, 1)
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	merged := make([]HourSample, 0, len(hours))
	for _, key := range hours {
		pair := byHour[key]
		switch {
		case pair[0] != nil && pair[1] != nil:
			sa, sb := pair[0], pair[1]
			merged = append(merged, HourSample{
				Time:                     sb.Time,
				Conditions:               mergeConditions(sa.Conditions, sb.Conditions, HourlyWeights),
				PrecipitationProbability: WeightedValue(sa.PrecipitationProbability, sb.PrecipitationProbability, HourlyWeights),
				Snowfall:                 WeightedValue(sa.Snowfall, sb.Snowfall, HourlyWeights),
			})
		case pair[0] != nil:
			merged = append(merged, *pair[0])
		default:
			merged = append(merged, *pair[1])
		}
	}
	return merged
}

// Compare builds the per-metric comparison of two source forecasts.
func Compare(a, b *NormalizedForecast) *SourceComparison {
	c := &SourceComparison{
		SourceA:            sourceOf(a, SourceOpenMeteo),
		SourceB:            sourceOf(b, SourceEstonian),
		Temperature:        compareMetric(a.Current.Temperature, b.Current.Temperature),
		WindSpeed:          compareMetric(a.Current.WindSpeed, b.Current.WindSpeed),
		Precipitation:      compareMetric(a.Current.Precipitation, b.Current.Precipitation),
		MinTemperature:     compareMetric(a.Summary.MinTemperature, b.Summary.MinTemperature),
		MaxTemperature:     compareMetric(a.Summary.MaxTemperature, b.Summary.MaxTemperature),
		TotalPrecipitation: compareMetric(a.Summary.TotalPrecipitation, b.Summary.TotalPrecipitation),
	}

	var scores []float64
	for _, m := range []struct {
		metric MetricComparison
		span   float64
	}{
		{c.Temperature, temperatureSpan},
		{c.WindSpeed, windSpeedSpan},
		{c.Precipitation, precipitationSpan},
		{c.MinTemperature, temperatureSpan},
		{c.MaxTemperature, temperatureSpan},
		{c.TotalPrecipitation, precipitationSpan},
	} {
		if m.metric.AbsoluteDifference == nil {
			continue
		}
		scores = append(scores, math.Max(0, 100-(*m.metric.AbsoluteDifference/m.span)*100))
	}
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		c.AgreementScore = Float(Round1(sum / float64(len(scores))))
	}
	return c
}

func compareMetric(a, b *float64) MetricComparison {
	m := MetricComparison{SourceA: a, SourceB: b}
	if a != nil && b != nil {
		m.AbsoluteDifference = Float(Round1(math.Abs(*a - *b)))
	}
	return m
}

// Alerts returns the disagreement alerts for a comparison.
func Alerts(c *SourceComparison) []DisagreementAlert {
	if c == nil {
		return nil
	}

	var alerts []DisagreementAlert
	check := func(t AlertType, sev Severity, m MetricComparison, threshold float64, unit string) {
		if m.AbsoluteDifference == nil || *m.AbsoluteDifference <= threshold {
			return
		}
		alerts = append(alerts, DisagreementAlert{
			Type:     t,
			Severity: sev,
			Message: fmt.Sprintf("%s differs by %.1f%s (%s %.1f%s, %s %.1f%s)",
				t, *m.AbsoluteDifference, unit, c.SourceA, *m.SourceA, unit, c.SourceB, *m.SourceB, unit),
			ValueA: m.SourceA,
			ValueB: m.SourceB,
		})
	}
	check(AlertTemperature, SeverityWarning, c.Temperature, TemperatureThreshold, "°C")
	check(AlertPrecipitation, SeverityWarning, c.TotalPrecipitation, PrecipitationThreshold, "mm")
	check(AlertWindSpeed, SeverityInfo, c.WindSpeed, WindSpeedThreshold, " m/s")
	return alerts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
