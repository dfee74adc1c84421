// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "superhero"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	HeroOperations    *prometheus.CounterVec
	AuthAttempts      *prometheus.CounterVec
	ImagesRemoved     prometheus.Counter
	JournalRecovered  prometheus.Counter
	LiveSubscribers   prometheus.Gauge
	CacheLookups      *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
}

// NewRegistry returns a registry with the process and Go runtime collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		HeroOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hero_operations_total",
			Help:      "Hero store operations by kind and outcome.",
		}, []string{"operation", "result"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Register and login attempts by outcome.",
		}, []string{"action", "result"}),
		ImagesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_removed_total",
			Help:      "Image files deleted from the upload directory.",
		}),
		JournalRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_entries_recovered_total",
			Help:      "Image journal entries resolved by recovery.",
		}),
		LiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Open hero event WebSocket connections.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Hero list cache lookups by result.",
		}, []string{"result"}),
		RateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.HeroOperations,
		m.AuthAttempts,
		m.ImagesRemoved,
		m.JournalRecovered,
		m.LiveSubscribers,
		m.CacheLookups,
		m.RateLimitRejected,
	)
	return m
}

func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(seconds)
}

func (m *Metrics) HeroOp(operation string, err error) {
	if m == nil {
		return
	}
	m.HeroOperations.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) Auth(action string, err error) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) ImageRemoved() {
	if m == nil {
		return
	}
	m.ImagesRemoved.Inc()
}

func (m *Metrics) Recovered(n int) {
	if m == nil {
		return
	}
	m.JournalRecovered.Add(float64(n))
}

func (m *Metrics) SubscriberDelta(d float64) {
	if m == nil {
		return
	}
	m.LiveSubscribers.Add(d)
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
