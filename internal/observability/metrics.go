package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the fusion engine.
type Metrics struct {
	FusionRuns        *prometheus.CounterVec // labels: outcome={success,error}
	FusionPoints      prometheus.Histogram
	FusionConfidence  prometheus.Histogram
	FusionDuration    prometheus.Histogram
	CalibrationRuns   *prometheus.CounterVec // labels: outcome={success,insufficient_data,error}
	ValidationResults *prometheus.CounterVec // labels: result={ok,anomalous}
	EngineRunning     prometheus.Gauge

	// Source fetch metrics.
	SourceFetchDuration *prometheus.HistogramVec // labels: source={sensor,satellite,excel}
	SourceFetchErrors   *prometheus.CounterVec   // labels: source={sensor,satellite,excel}

	// Event publication metrics.
	EventsPublished *prometheus.CounterVec // labels: event_type
	PublishErrors   *prometheus.CounterVec // labels: event_type
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FusionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "fusion_runs_total",
			Help:      "Total fusion runs by outcome.",
		}, []string{"outcome"}),
		FusionPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_fusion",
			Name:      "fusion_points",
			Help:      "Number of fused locations produced per run.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		FusionConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_fusion",
			Name:      "fusion_average_confidence",
			Help:      "Average confidence score per fusion run.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_fusion",
			Name:      "fusion_duration_seconds",
			Help:      "Duration of a complete fetch-fuse-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CalibrationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "calibration_runs_total",
			Help:      "Total calibration runs by outcome.",
		}, []string{"outcome"}),
		ValidationResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "validation_results_total",
			Help:      "Cross-validation comparisons by result.",
		}, []string{"result"}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aq_fusion",
			Name:      "engine_running",
			Help:      "1 when the scheduler loop is active, 0 when shut down.",
		}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aq_fusion",
			Name:      "source_fetch_duration_seconds",
			Help:      "Upstream fetch duration per data source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"source"}),
		SourceFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "source_fetch_errors_total",
			Help:      "Upstream fetch failures per data source.",
		}, []string{"source"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "events_published_total",
			Help:      "Domain events published by type.",
		}, []string{"event_type"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_fusion",
			Name:      "publish_errors_total",
			Help:      "Event publication failures by type.",
		}, []string{"event_type"}),
	}

	prometheus.MustRegister(
		m.FusionRuns,
		m.FusionPoints,
		m.FusionConfidence,
		m.FusionDuration,
		m.CalibrationRuns,
		m.ValidationResults,
		m.EngineRunning,
		m.SourceFetchDuration,
		m.SourceFetchErrors,
		m.EventsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FusionRuns:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "fusion_runs_total"}, []string{"outcome"}),
		FusionPoints:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aq_fusion", Name: "fusion_points"}),
		FusionConfidence:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aq_fusion", Name: "fusion_average_confidence"}),
		FusionDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aq_fusion", Name: "fusion_duration_seconds"}),
		CalibrationRuns:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "calibration_runs_total"}, []string{"outcome"}),
		ValidationResults:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "validation_results_total"}, []string{"result"}),
		EngineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aq_fusion", Name: "engine_running"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "aq_fusion", Name: "source_fetch_duration_seconds"}, []string{"source"}),
		SourceFetchErrors:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "source_fetch_errors_total"}, []string{"source"}),
		EventsPublished:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "events_published_total"}, []string{"event_type"}),
		PublishErrors:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aq_fusion", Name: "publish_errors_total"}, []string{"event_type"}),
	}
}
