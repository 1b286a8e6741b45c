package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compute paths
const (
	PathFast     = "fast"
	PathFallback = "fallback"
)

// Metrics tracks holdings cache and computation behaviour
type Metrics struct {
	cacheRequests   *prometheus.CounterVec
	computeTotal    *prometheus.CounterVec
	degradedTotal   *prometheus.CounterVec
	computeDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers holdings metrics on reg. A nil reg leaves
// the collectors unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_cache_requests_total",
			Help: "Holdings cache lookups by result",
		}, []string{"result"}),
		computeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_compute_total",
			Help: "Holdings computations by path",
		}, []string{"path"}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_degraded_total",
			Help: "Holdings reads degraded to an empty result, by error code",
		}, []string{"code"}),
		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "holdings_compute_duration_seconds",
			Help:    "Time to compute holdings on a cache miss",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}

	if reg != nil {
		reg.MustRegister(m.cacheRequests, m.computeTotal, m.degradedTotal, m.computeDuration)
	}
	return m
}

func (m *Metrics) cacheHit() {
	m.cacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) cacheMiss() {
	m.cacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) computed(path string, started time.Time) {
	m.computeTotal.WithLabelValues(path).Inc()
	m.computeDuration.WithLabelValues(path).Observe(time.Since(started).Seconds())
}

func (m *Metrics) degraded(code string) {
	m.degradedTotal.WithLabelValues(code).Inc()
}
