package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL
// pipeline.
type Metrics struct {
	RowsRead    *prometheus.CounterVec // labels: source={cases,hospital,population}
	RowsDropped *prometheus.CounterVec // labels: source, reason={bad_date,summary_row,join_gap,no_boundary}
	RowsCoerced *prometheus.CounterVec // labels: source (malformed numeric cells coerced)
	RowsWritten *prometheus.CounterVec // labels: output={final,geo}

	RefreshRuns     *prometheus.CounterVec // labels: outcome={success,error}
	RefreshDuration prometheus.Histogram
	LastRefresh     prometheus.Gauge
	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsRead,
		m.RowsDropped,
		m.RowsCoerced,
		m.RowsWritten,
		m.RefreshRuns,
		m.RefreshDuration,
		m.LastRefresh,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "rows_read_total",
			Help:      "Raw rows read from the source extracts.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during cleaning and joining, by reason.",
		}, []string{"source", "reason"}),
		RowsCoerced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "rows_coerced_total",
			Help:      "Malformed numeric cells coerced to a missing or zero value.",
		}, []string{"source"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "rows_written_total",
			Help:      "Rows written to the output files.",
		}, []string{"output"}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "refresh_runs_total",
			Help:      "Completed pipeline refresh runs by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "covid_etl",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete extract-transform-load refresh.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
	}
}
