// Package metrics exposes Prometheus collectors for the cleaning pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sales_report"

// Run outcomes used as the "outcome" label.
const (
	OutcomeSuccess        = "success"
	OutcomeMissingColumns = "missing_columns"
	OutcomeParseError     = "parse_error"
	OutcomeError          = "error"
)

// Metrics groups the pipeline collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	rowsCleaned       prometheus.Counter
	rowsDropped       *prometheus.CounterVec
	rowsMalformed     prometheus.Counter
	encodings         *prometheus.CounterVec
	encodingFallbacks prometheus.Counter
	jobsSwept         prometheus.Counter
}

// New registers all collectors, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clean_runs_total",
			Help:      "Cleaning runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		rowsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_cleaned_total",
			Help:      "Rows persisted to clean tables.",
		}),
		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows removed by filtering, by reason.",
		}, []string{"reason"}),
		rowsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_malformed_total",
			Help:      "Ragged or unparseable rows skipped while parsing.",
		}),
		encodings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encodings_total",
			Help:      "Resolved input encodings.",
		}, []string{"encoding", "kind"}),
		encodingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_fallbacks_total",
			Help:      "Uploads decoded with the fallback encoding.",
		}),
		jobsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_swept_total",
			Help:      "Expired jobs removed by the retention sweep.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runDuration,
		m.rowsCleaned,
		m.rowsDropped,
		m.rowsMalformed,
		m.encodings,
		m.encodingFallbacks,
		m.jobsSwept,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveEncoding(encoding, kind string, fallback bool) {
	if m == nil {
		return
	}
	m.encodings.WithLabelValues(encoding, kind).Inc()
	if fallback {
		m.encodingFallbacks.Inc()
	}
}

// ObserveRows records the row counts of one run. dropped is keyed by reason.
func (m *Metrics) ObserveRows(cleaned, malformed int, dropped map[string]int) {
	if m == nil {
		return
	}
	m.rowsCleaned.Add(float64(cleaned))
	m.rowsMalformed.Add(float64(malformed))
	for reason, n := range dropped {
		m.rowsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.jobsSwept.Add(float64(n))
}
