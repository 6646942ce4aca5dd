// Package metrics exposes the Prometheus collectors for the relevance engine, the
// comment pipeline and the HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "larder"

type Metrics struct {
	RelevanceDuration    *prometheus.HistogramVec
	RelevanceEmpty       *prometheus.CounterVec
	CommentSubmissions   *prometheus.CounterVec
	VerificationFailures *prometheus.CounterVec
	ModerationActions    *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RelevanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relevance_rank_duration_seconds",
			Help:      "Time spent scoring and ranking related content",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"kind"}),
		RelevanceEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_empty_results_total",
			Help:      "Rankings that produced no related content",
		}, []string{"kind"}),
		CommentSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_submissions_total",
			Help:      "Comment submissions by outcome",
		}, []string{"outcome"}),
		VerificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_verification_failures_total",
			Help:      "Failed bot-challenge verifications by error code",
		}, []string{"code"}),
		ModerationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_moderation_actions_total",
			Help:      "Status updates and deletions performed by moderators",
		}, []string{"action"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.RelevanceDuration,
		m.RelevanceEmpty,
		m.CommentSubmissions,
		m.VerificationFailures,
		m.ModerationActions,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) ObserveRank(kind string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.RelevanceDuration.WithLabelValues(kind).Observe(d.Seconds())
	if results == 0 {
		m.RelevanceEmpty.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncSubmission(outcome string) {
	if m == nil {
		return
	}
	m.CommentSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncVerificationFailure(code string) {
	if m == nil {
		return
	}
	m.VerificationFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) IncModeration(action string) {
	if m == nil {
		return
	}
	m.ModerationActions.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
