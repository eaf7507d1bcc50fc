package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brewery_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,error}
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec // labels: stage={fetch,raw,tabular,analytical,publish}
	StageErrors   *prometheus.CounterVec   // labels: stage

	// Source metrics.
	FetchResponses *prometheus.CounterVec // labels: code
	PayloadBytes   prometheus.Gauge

	// Lake metrics.
	RecordsNormalized   prometheus.Counter
	LocationsAggregated prometheus.Counter
	BytesWritten        *prometheus.CounterVec // labels: layer={raw,tabular,analytical}
	CachedTables        prometheus.Gauge

	AggregatesPublished prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-to-gold run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Failures by pipeline stage.",
		}, []string{"stage"}),
		FetchResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_responses_total",
			Help:      "Source API responses by HTTP status code.",
		}, []string{"code"}),
		PayloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payload_bytes",
			Help:      "Size of the last captured payload.",
		}),
		RecordsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Brewery records written to the tabular layer.",
		}),
		LocationsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_aggregated_total",
			Help:      "Location rows written to the analytical layer.",
		}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Parquet bytes written per lake layer.",
		}, []string{"layer"}),
		CachedTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_tables",
			Help:      "Tabular tables currently retained between stages.",
		}),
		AggregatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_published_total",
			Help:      "Location aggregates written to the Kafka topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.PipelineRunning,
		m.LastSuccess,
		m.RunDuration,
		m.StageDuration,
		m.StageErrors,
		m.FetchResponses,
		m.PayloadBytes,
		m.RecordsNormalized,
		m.LocationsAggregated,
		m.BytesWritten,
		m.CachedTables,
		m.AggregatesPublished,
	}
}
