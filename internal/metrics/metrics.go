// Package metrics exposes Prometheus instruments for the review engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CandidatesIngested *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	Ratings            *prometheus.CounterVec
	DuplicateBlocks    prometheus.Counter
	SimilarResolutions *prometheus.CounterVec
	UpstreamDegraded   *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers the instruments on a fresh registry, alongside
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CandidatesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_candidates_ingested_total",
			Help: "Candidates accepted for review, by initial routing.",
		}, []string{"routing"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_candidate_transitions_total",
			Help: "Reviewer actions applied to candidates.",
		}, []string{"action"}),
		Ratings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_ratings_total",
			Help: "Ratings recorded, and whether they counted as calibration samples.",
		}, []string{"rating", "calibration_sample"}),
		DuplicateBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_duplicate_blocks_total",
			Help: "Approvals refused because of an unresolved near-duplicate FAQ.",
		}),
		SimilarResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_similar_faq_resolutions_total",
			Help: "Similar-FAQ candidates resolved, by outcome.",
		}, []string{"status"}),
		UpstreamDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_upstream_degraded_total",
			Help: "Upstream failures that were recovered locally.",
		}, []string{"service"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "review_circuit_breaker_state",
			Help: "Circuit breaker state per upstream: 0 closed, 1 open, 2 half-open.",
		}, []string{"service"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CandidatesIngested,
		m.Transitions,
		m.Ratings,
		m.DuplicateBlocks,
		m.SimilarResolutions,
		m.UpstreamDegraded,
		m.BreakerState,
		m.RequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Ingested counts a new candidate.
func (m *Metrics) Ingested(routing string) {
	if m == nil {
		return
	}
	m.CandidatesIngested.WithLabelValues(routing).Inc()
}

// Transition counts a reviewer action such as approve, reject or skip.
func (m *Metrics) Transition(action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action).Inc()
}

// Rated counts a rating.
func (m *Metrics) Rated(rating string, counted bool) {
	if m == nil {
		return
	}
	sample := "false"
	if counted {
		sample = "true"
	}
	m.Ratings.WithLabelValues(rating, sample).Inc()
}

// Blocked counts an approval refused for a near-duplicate.
func (m *Metrics) Blocked() {
	if m == nil {
		return
	}
	m.DuplicateBlocks.Inc()
}

// Resolved counts a similar-FAQ resolution.
func (m *Metrics) Resolved(status string) {
	if m == nil {
		return
	}
	m.SimilarResolutions.WithLabelValues(status).Inc()
}

// Degraded counts an upstream failure recovered locally.
func (m *Metrics) Degraded(service string) {
	if m == nil {
		return
	}
	m.UpstreamDegraded.WithLabelValues(service).Inc()
}

// SetBreakerState records a breaker transition. state is the numeric CircuitState.
func (m *Metrics) SetBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
