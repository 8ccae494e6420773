// Package telemetry exposes retrieval metrics in Prometheus format.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
)

const namespace = "crmrag"

// RetrievalMetrics records engine measurements on a private registry.
type RetrievalMetrics struct {
	registry *prometheus.Registry

	queriesTotal    *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	channelFailures *prometheus.CounterVec
	poolSize        prometheus.Histogram
	selected        prometheus.Histogram
}

// NewRetrievalMetrics creates and registers the retrieval collectors.
func NewRetrievalMetrics() *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	m := &RetrievalMetrics{
		registry: registry,
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "queries_total",
				Help:      "Total retrieval queries by outcome.",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "duration_seconds",
				Help:      "Retrieval latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"query_type"},
		),
		channelFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "channel_failures_total",
				Help:      "Failed dense, lexical or type channel searches.",
			},
			[]string{"channel"},
		),
		poolSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "pool_size",
				Help:      "Candidate pool size per query.",
				Buckets:   []float64{0, 10, 30, 60, 90, 120, 150},
			},
		),
		selected: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "selected",
				Help:      "Documents returned per query.",
				Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
			},
		),
	}

	registry.MustRegister(
		m.queriesTotal,
		m.duration,
		m.channelFailures,
		m.poolSize,
		m.selected,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveRetrieval implements retrieval.Recorder.
func (m *RetrievalMetrics) ObserveRetrieval(queryType analyze.QueryType, status string, latency time.Duration, poolSize, selected int) {
	m.queriesTotal.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(queryType.String()).Observe(latency.Seconds())
	if status == retrieval.StatusOK || status == retrieval.StatusEmpty {
		m.poolSize.Observe(float64(poolSize))
		m.selected.Observe(float64(selected))
	}
}

// ObserveChannelFailure implements retrieval.Recorder.
func (m *RetrievalMetrics) ObserveChannelFailure(channel retrieval.Channel) {
	m.channelFailures.WithLabelValues(channel.String()).Inc()
}

// Registry returns the underlying registry.
func (m *RetrievalMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics for scraping.
func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ retrieval.Recorder = (*RetrievalMetrics)(nil)
