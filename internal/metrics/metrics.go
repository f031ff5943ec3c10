// Package metrics holds the Prometheus collectors for batch runs and the
// validation cache. All methods are nil-safe so components can run without
// instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	organizationsScored prometheus.Counter
	recordErrors        *prometheus.CounterVec
	duplicatesMerged    prometheus.Counter
	cacheLookups        *prometheus.CounterVec
	runDuration         prometheus.Histogram
	rankedPopulation    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		organizationsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qualitygrid",
			Name:      "organizations_scored_total",
			Help:      "Organizations scored across batch runs.",
		}),
		recordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qualitygrid",
			Name:      "record_errors_total",
			Help:      "Per-organization diagnostics by pipeline stage.",
		}, []string{"stage"}),
		duplicatesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qualitygrid",
			Name:      "duplicates_merged_total",
			Help:      "Source records folded into an existing organization.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qualitygrid",
			Name:      "cache_lookups_total",
			Help:      "Validation cache lookups by category and result.",
		}, []string{"category", "result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qualitygrid",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full batch run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rankedPopulation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qualitygrid",
			Name:      "ranked_population",
			Help:      "Organizations ranked by the last run.",
		}),
	}
	m.Registry.MustRegister(
		m.organizationsScored,
		m.recordErrors,
		m.duplicatesMerged,
		m.cacheLookups,
		m.runDuration,
		m.rankedPopulation,
	)
	return m
}

func (m *Metrics) OrganizationScored() {
	if m == nil {
		return
	}
	m.organizationsScored.Inc()
}

func (m *Metrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.recordErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) DuplicatesMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesMerged.Add(float64(n))
}

func (m *Metrics) CacheLookup(category string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(category, result).Inc()
}

func (m *Metrics) RunFinished(d time.Duration, ranked int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.rankedPopulation.Set(float64(ranked))
}
