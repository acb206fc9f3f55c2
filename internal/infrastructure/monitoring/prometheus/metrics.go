// Package prometheus registers and serves the engine's operational metrics.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcome label values.
const (
	OutcomeHit      = "hit"
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
)

// DefaultRunDurationBuckets covers seconds through multi-hour batch runs.
var DefaultRunDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}

// Metrics holds every engine metric on a private registry, so tests and
// embedded uses never collide with the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	RowsProcessed *prometheus.CounterVec
	RowErrors     *prometheus.CounterVec
	LookupsTotal  *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	DriftAdded    prometheus.Gauge
	DriftRemoved  prometheus.Gauge
}

// NewMetrics registers all engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_runs_total",
			Help: "Reconciliation runs by final status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medirec_run_duration_seconds",
			Help:    "Wall-clock duration of a reconciliation run.",
			Buckets: DefaultRunDurationBuckets,
		}),
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_rows_processed_total",
			Help: "Rows processed per pipeline stage.",
		}, []string{"stage"}),
		RowErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_row_errors_total",
			Help: "Recoverable row-level failures per pipeline stage.",
		}, []string{"stage"}),
		LookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_lookups_total",
			Help: "External lookups by service and outcome.",
		}, []string{"service", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_cache_hits_total",
			Help: "Verdict cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medirec_cache_misses_total",
			Help: "Verdict cache misses by cache name.",
		}, []string{"cache"}),
		DriftAdded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medirec_drift_added",
			Help: "Identifiers added by the most recent run.",
		}),
		DriftRemoved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medirec_drift_removed",
			Help: "Identifiers removed by the most recent run.",
		}),
	}
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// ObserveDrift records the most recent diff sizes.
func (m *Metrics) ObserveDrift(added, removed int) {
	m.DriftAdded.Set(float64(added))
	m.DriftRemoved.Set(float64(removed))
}
