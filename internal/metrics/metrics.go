// Package metrics exposes Prometheus collectors for the admission core.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg                  *prometheus.Registry
	decisions            *prometheus.CounterVec
	releases             *prometheus.CounterVec
	promotions           prometheus.Counter
	expired              prometheus.Counter
	retries              prometheus.Counter
	unavailable          prometheus.Counter
	notificationFailures *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Capacity gate decisions by outcome.",
		}, []string{"outcome"}),
		releases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_releases_total",
			Help: "Seat releases by outcome.",
		}, []string{"outcome"}),
		promotions: f.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_promotions_total",
			Help: "Waitlist entries offered a freed seat.",
		}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Name: "invitations_expired_total",
			Help: "Invitations moved to EXPIRED.",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "admission_transient_retries_total",
			Help: "Transactions retried after a transient store failure.",
		}),
		unavailable: f.NewCounter(prometheus.CounterOpts{
			Name: "admission_unavailable_total",
			Help: "Operations that gave up after exhausting retries.",
		}),
		notificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be delivered, by kind.",
		}, []string{"kind"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) ObserveDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRelease(outcome string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePromotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) ObserveExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) ObserveUnavailable() {
	if m == nil {
		return
	}
	m.unavailable.Inc()
}

func (m *Metrics) ObserveNotificationFailure(kind string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(kind).Inc()
}
