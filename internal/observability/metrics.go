// Package observability holds the Prometheus instruments of the worker
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ilm"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// aggregation pipeline.
type Metrics struct {
	// Cycle metrics.
	Cycles          *prometheus.CounterVec // labels: outcome={success,failed,skipped}
	CycleDuration   prometheus.Histogram
	LastCycleSource *prometheus.GaugeVec // labels: source={estonian,open-meteo,aggregated}
	LastSuccess     prometheus.Gauge

	// Source metrics.
	SourceFailures *prometheus.CounterVec // labels: provider
	AgreementScore prometheus.Gauge
	Alerts         *prometheus.CounterVec // labels: type, severity

	// Narrative metrics.
	Narratives *prometheus.CounterVec // labels: outcome={stored,missing}

	// Maintenance metrics.
	Sweeps            *prometheus.CounterVec // labels: outcome={success,failed}
	ExpiredEntries    prometheus.Counter
	TrimmedNarratives prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.MustRegister(prometheus.DefaultRegisterer)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like, or register them with their own registry.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// MustRegister registers every instrument with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.LastCycleSource,
		m.LastSuccess,
		m.SourceFailures,
		m.AgreementScore,
		m.Alerts,
		m.Narratives,
		m.Sweeps,
		m.ExpiredEntries,
		m.TrimmedNarratives,
	)
}

func newMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Aggregation cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-aggregate-cache-narrate cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		LastCycleSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_source",
			Help:      "1 for the source of the last cached forecast, 0 for the others.",
		}, []string{"source"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that cached a forecast.",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Weather source fetches that produced no forecast.",
		}, []string{"provider"}),
		AgreementScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agreement_score",
			Help:      "Agreement score (0-100) of the last two-source comparison.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disagreement_alerts_total",
			Help:      "Disagreement alerts raised by type and severity.",
		}, []string{"type", "severity"}),
		Narratives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narratives_total",
			Help:      "Narratives per cycle by outcome.",
		}, []string{"outcome"}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Maintenance sweeps by outcome.",
		}, []string{"outcome"}),
		ExpiredEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_cache_entries_total",
			Help:      "Expired cache entries deleted by maintenance sweeps.",
		}),
		TrimmedNarratives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_narratives_total",
			Help:      "Narratives deleted by the retention trim during sweeps.",
		}),
	}
}
