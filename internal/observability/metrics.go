package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records the measurements spec §1's ambient stack calls for:
// check outcomes, fallback usage, gossip publish failures, and GC sweeps.
type Metrics interface {
	IncCheck(domain, result string)
	IncFallback(reason string)
	IncGossipPublishFailure()
	IncGossipApplied()
	ObserveCheckLatency(d time.Duration)
	ObserveGCSweep(removed int, d time.Duration)
}

// PrometheusMetrics backs Metrics with github.com/prometheus/client_golang,
// matching the dependency turtacn-cbc and xiaonanln-goverse both carry for
// this concern.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	checks           *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	gossipPublishErr prometheus.Counter
	gossipApplied    prometheus.Counter
	checkLatency     prometheus.Histogram
	gcRemoved        prometheus.Histogram
	gcDuration       prometheus.Histogram
}

// NewPrometheusMetrics registers Hivemind's metric families on reg. Passing
// a fresh prometheus.NewRegistry() keeps test suites isolated from the
// global default registry.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &PrometheusMetrics{
		registry: reg,
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hivemind_checks_total",
			Help: "Admission decisions by domain and result.",
		}, []string{"domain", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hivemind_fallback_total",
			Help: "Fail-open fallbacks triggered by internal errors, by reason.",
		}, []string{"reason"}),
		gossipPublishErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hivemind_gossip_publish_failures_total",
			Help: "Replicator publish ticks that failed to write to the substrate.",
		}),
		gossipApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hivemind_gossip_applied_total",
			Help: "Peer updates successfully merged into the Counter Store.",
		}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hivemind_check_duration_seconds",
			Help:    "Latency of a single ShouldRateLimit admission decision.",
			Buckets: prometheus.DefBuckets,
		}),
		gcRemoved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hivemind_gc_removed_keys",
			Help:    "Counter keys removed per GC sweep.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		}),
		gcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hivemind_gc_duration_seconds",
			Help:    "Duration of a single GC sweep.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.checks, m.fallbacks, m.gossipPublishErr, m.gossipApplied, m.checkLatency, m.gcRemoved, m.gcDuration)
	return m
}

// IncCheck increments the check counter for domain/result.
func (m *PrometheusMetrics) IncCheck(domain, result string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(domain, result).Inc()
}

// IncFallback increments the fallback counter for reason.
func (m *PrometheusMetrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// IncGossipPublishFailure records a failed publish tick.
func (m *PrometheusMetrics) IncGossipPublishFailure() {
	if m == nil {
		return
	}
	m.gossipPublishErr.Inc()
}

// IncGossipApplied records a successfully merged peer update.
func (m *PrometheusMetrics) IncGossipApplied() {
	if m == nil {
		return
	}
	m.gossipApplied.Inc()
}

// ObserveCheckLatency records the duration of one admission decision.
func (m *PrometheusMetrics) ObserveCheckLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.checkLatency.Observe(d.Seconds())
}

// ObserveGCSweep records the outcome of one GC sweep.
func (m *PrometheusMetrics) ObserveGCSweep(removed int, d time.Duration) {
	if m == nil {
		return
	}
	m.gcRemoved.Observe(float64(removed))
	m.gcDuration.Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text exposition format as
// an http.Handler. No server in this module mounts it on a route.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
