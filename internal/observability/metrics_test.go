package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsRecordsAndExposes(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.IncCheck("edge", "OK")
	m.IncFallback("rule_lookup_panic")
	m.IncGossipPublishFailure()
	m.IncGossipApplied()
	m.ObserveCheckLatency(2 * time.Millisecond)
	m.ObserveGCSweep(3, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "hivemind_checks_total")
	require.Contains(t, rec.Body.String(), "hivemind_gossip_applied_total")
}

func TestHashSamplerIsDeterministicPerTraceID(t *testing.T) {
	s := NewHashSampler(4)
	first := s.Sampled("trace-a")
	second := s.Sampled("trace-a")
	require.Equal(t, first, second)

	require.False(t, NewHashSampler(0).Sampled("trace-a"))
	require.False(t, s.Sampled(""))
}
