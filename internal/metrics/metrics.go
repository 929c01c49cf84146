package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for chat requests.
const (
	OutcomeReply         = "reply"
	OutcomeHandoff       = "handoff"
	OutcomeRateLimited   = "rate_limited"
	OutcomeInvalid       = "invalid"
	OutcomeTooLarge      = "too_large"
	OutcomeConfiguration = "configuration_error"
	OutcomeUpstream      = "upstream_error"
	OutcomeInternal      = "internal_error"
)

// Metrics holds the relay's Prometheus collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	HandoffsTotal    prometheus.Counter
	UpstreamTotal    *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total number of chat requests by outcome",
			},
			[]string{"outcome"},
		),
		HandoffsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_handoffs_total",
				Help: "Total number of requests answered with the human handoff reply",
			},
		),
		UpstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_upstream_requests_total",
				Help: "Total number of upstream calls by result",
			},
			[]string{"result"},
		),
		UpstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_upstream_duration_seconds",
				Help:    "Latency of upstream generate calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.HandoffsTotal,
		m.UpstreamTotal,
		m.UpstreamDuration,
	)
	return m
}

// ObserveRequest counts a finished chat request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHandoff counts a short-circuited handoff.
func (m *Metrics) ObserveHandoff() {
	if m == nil {
		return
	}
	m.HandoffsTotal.Inc()
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamTotal.WithLabelValues(result).Inc()
	m.UpstreamDuration.Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
