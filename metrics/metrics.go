// Package metrics holds the Prometheus instruments of the service. Every method is
// safe on a nil *Metrics so tests and tools can pass nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agrinetwork"

type Metrics struct {
	registry *prometheus.Registry

	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	mediation          *prometheus.CounterVec
	outboxPublished    *prometheus.CounterVec
	outboxFailed       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all instruments on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Applied order transitions by action and resulting status.",
		}, []string{"action", "status"}),
		transitionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_rejections_total",
			Help:      "Rejected order actions by action and reason.",
		}, []string{"action", "reason"}),
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_settlements_total",
			Help:      "Escrow settlements by kind.",
		}, []string{"kind"}),
		mediation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_verdicts_total",
			Help:      "AI verdict requests by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		outboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox messages handed to the broker.",
		}, []string{"topic"}),
		outboxFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failures_total",
			Help:      "Outbox publish attempts that failed.",
		}, []string{"topic"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPool exports connection pool gauges.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_acquired_conns",
		Help:      "Connections currently acquired from the pool.",
	}, func() float64 { return float64(pool.Stat().AcquiredConns()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_idle_conns",
		Help:      "Idle connections in the pool.",
	}, func() float64 { return float64(pool.Stat().IdleConns()) })
}

func (m *Metrics) TransitionApplied(action, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, status).Inc()
}

func (m *Metrics) TransitionRejected(action, reason string) {
	if m == nil {
		return
	}
	m.transitionFailures.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) Settled(kind string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind).Inc()
}

// Verdict records an AI verdict request. outcome is the recommendation, or
// "fallback" when the request failed.
func (m *Metrics) Verdict(purpose, outcome string) {
	if m == nil {
		return
	}
	m.mediation.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) OutboxPublished(topic string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxFailed(topic string) {
	if m == nil {
		return
	}
	m.outboxFailed.WithLabelValues(topic).Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
