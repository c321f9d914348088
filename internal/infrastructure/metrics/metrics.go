package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the aggregation pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SourceUpdates   *prometheus.CounterVec
	RejectedUpdates *prometheus.CounterVec
	SourcesEnded    *prometheus.CounterVec
	CloseFailures   prometheus.Counter
	Aggregates      prometheus.Counter
	Spread          prometheus.Gauge
	MergeSeconds    prometheus.Histogram
	StreamSessions  prometheus.Gauge
	Published       prometheus.Counter
}

// New creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SourceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "book_source_updates_total",
			Help: "Order book snapshots applied per source",
		}, []string{"exchange"}),
		RejectedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "book_rejected_updates_total",
			Help: "Snapshots rejected as NaN or unsorted, per source",
		}, []string{"exchange"}),
		SourcesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "book_source_streams_ended_total",
			Help: "Source streams that stopped producing",
		}, []string{"exchange"}),
		CloseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "book_connection_close_failures_total",
			Help: "Underlying connections that failed to close",
		}),
		Aggregates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "book_aggregates_emitted_total",
			Help: "Consolidated books emitted",
		}),
		Spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "book_consolidated_spread",
			Help: "Best ask minus best bid of the last consolidated book",
		}),
		MergeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "book_merge_duration_seconds",
			Help:    "Time spent in one update and merge step",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		StreamSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "book_stream_sessions",
			Help: "Open websocket summary sessions",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "book_summaries_published_total",
			Help: "Summaries published on the fan-out exchange",
		}),
	}
	m.registry.MustRegister(
		m.SourceUpdates, m.RejectedUpdates, m.SourcesEnded,
		m.CloseFailures, m.Aggregates, m.Spread, m.MergeSeconds,
		m.StreamSessions, m.Published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SourceUpdated(exchange string) {
	if m == nil {
		return
	}
	m.SourceUpdates.WithLabelValues(exchange).Inc()
}

func (m *Metrics) UpdateRejected(exchange string) {
	if m == nil {
		return
	}
	m.RejectedUpdates.WithLabelValues(exchange).Inc()
}

func (m *Metrics) SourceEnded(exchange string) {
	if m == nil {
		return
	}
	m.SourcesEnded.WithLabelValues(exchange).Inc()
}

func (m *Metrics) CloseFailed() {
	if m == nil {
		return
	}
	m.CloseFailures.Inc()
}

// AggregateEmitted records one emission and how long its merge step took.
func (m *Metrics) AggregateEmitted(spread, seconds float64) {
	if m == nil {
		return
	}
	m.Aggregates.Inc()
	m.Spread.Set(spread)
	m.MergeSeconds.Observe(seconds)
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.StreamSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.StreamSessions.Dec()
}

func (m *Metrics) SummaryPublished() {
	if m == nil {
		return
	}
	m.Published.Inc()
}
