// Package metrics holds the Prometheus collectors exported by the dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agridash"

// Metrics groups every collector. A nil *Metrics is valid and records nothing,
// which keeps tests and the CLI free of registry plumbing.
type Metrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	loadSeconds *prometheus.HistogramVec
	loadErrors  *prometheus.CounterVec
	tableRows   *prometheus.GaugeVec
	requests    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Table loads served from the cache.",
		}, []string{"table"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Table loads that queried the backing store.",
		}, []string{"table"}),
		loadSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "cache", Name: "load_seconds",
			Help:    "Time spent fetching and encoding a table.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"table"}),
		loadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "load_errors_total",
			Help: "Failed table loads by error class.",
		}, []string{"table", "class"}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "table_rows",
			Help: "Rows held for each cached table.",
		}, []string{"table"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "reports_total",
			Help: "Section reports built, by section and outcome.",
		}, []string{"section", "outcome"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.loadSeconds, m.loadErrors, m.tableRows, m.requests)
	return m
}

func (m *Metrics) CacheHit(table string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(table).Inc()
}

func (m *Metrics) CacheMiss(table string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(table).Inc()
}

// Loaded records a successful load of rows rows that took d.
func (m *Metrics) Loaded(table string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.loadSeconds.WithLabelValues(table).Observe(d.Seconds())
	m.tableRows.WithLabelValues(table).Set(float64(rows))
}

func (m *Metrics) LoadFailed(table, class string) {
	if m == nil {
		return
	}
	m.loadErrors.WithLabelValues(table, class).Inc()
}

func (m *Metrics) Report(section, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(section, outcome).Inc()
}
