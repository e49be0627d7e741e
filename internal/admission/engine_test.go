package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hivemind/internal/counterstore"
	"hivemind/internal/ruleforest"
	"hivemind/internal/window"
)

func newEngine(t *testing.T, now func() time.Time) (*Engine, *window.Clock, *counterstore.Store) {
	forest, err := ruleforest.Build("edge", []ruleforest.NodeSpec{
		{Key: "test_key", Value: "limited", HasValue: true, HasLimit: true, Unit: window.Second, RequestsPerUnit: 5},
	})
	require.NoError(t, err)

	clk := window.NewWithNowFunc(now)
	store := counterstore.New("n1", counterstore.Options{})
	e := New(map[string]*ruleforest.Forest{"edge": forest}, clk, store, Options{Now: now})
	return e, clk, store
}

func TestScenario1FiveRequestsPerSecond(t *testing.T) {
	now := time.Unix(100, 0)
	e, _, _ := newEngine(t, func() time.Time { return now })

	vec := []ruleforest.Vector{{{Key: "test_key", Value: "limited"}}}
	var remaining []uint64
	for i := 0; i < 5; i++ {
		resp := e.ShouldRateLimit(Request{Domain: "edge", Descriptors: vec, Hits: 1})
		require.Equal(t, CodeOK, resp.OverallCode)
		require.Len(t, resp.Statuses, 1)
		remaining = append(remaining, resp.Statuses[0].LimitRemaining)
	}
	require.Equal(t, []uint64{4, 3, 2, 1, 0}, remaining)

	resp := e.ShouldRateLimit(Request{Domain: "edge", Descriptors: vec, Hits: 1})
	require.Equal(t, CodeOverLimit, resp.OverallCode)
	require.Equal(t, uint64(0), resp.Statuses[0].LimitRemaining)

	now = time.Unix(101, 100_000_000)
	resp = e.ShouldRateLimit(Request{Domain: "edge", Descriptors: vec, Hits: 1})
	require.Equal(t, CodeOK, resp.OverallCode)
	require.Equal(t, uint64(4), resp.Statuses[0].LimitRemaining)
}

func TestScenario2WildcardVsExactPriority(t *testing.T) {
	now := time.Unix(0, 0)
	forest, err := ruleforest.Build("edge", []ruleforest.NodeSpec{
		{Key: "api_key", HasValue: false, HasLimit: true, Unit: window.Second, RequestsPerUnit: 10},
		{Key: "api_key", Value: "premium", HasValue: true, HasLimit: true, Unit: window.Second, RequestsPerUnit: 100},
	})
	require.NoError(t, err)
	clk := window.NewWithNowFunc(func() time.Time { return now })
	store := counterstore.New("n1", counterstore.Options{})
	e := New(map[string]*ruleforest.Forest{"edge": forest}, clk, store, Options{Now: func() time.Time { return now }})

	resp := e.ShouldRateLimit(Request{Domain: "edge", Descriptors: []ruleforest.Vector{{{Key: "api_key", Value: "premium"}}}, Hits: 1})
	require.Equal(t, uint64(100), resp.Statuses[0].CurrentLimit)

	resp = e.ShouldRateLimit(Request{Domain: "edge", Descriptors: []ruleforest.Vector{{{Key: "api_key", Value: "free"}}}, Hits: 1})
	require.Equal(t, uint64(10), resp.Statuses[0].CurrentLimit)
}

func TestScenario5MissingDescriptorRuleLeavesStoreUnchanged(t *testing.T) {
	now := time.Unix(0, 0)
	e, _, store := newEngine(t, func() time.Time { return now })

	resp := e.ShouldRateLimit(Request{
		Domain:      "edge",
		Descriptors: []ruleforest.Vector{{{Key: "unknown_key", Value: "x"}}},
		Hits:        1,
	})
	require.Equal(t, CodeOK, resp.OverallCode)
	require.Empty(t, resp.Statuses)
	require.Equal(t, 0, store.Size())
}

func TestUnknownDomainYieldsOKWithNoStatuses(t *testing.T) {
	e, _, _ := newEngine(t, time.Now)
	resp := e.ShouldRateLimit(Request{Domain: "nope", Descriptors: []ruleforest.Vector{{{Key: "a", Value: "b"}}}, Hits: 1})
	require.Equal(t, CodeOK, resp.OverallCode)
	require.Empty(t, resp.Statuses)
}

func TestEmptyDescriptorsYieldsUnknown(t *testing.T) {
	e, _, _ := newEngine(t, time.Now)
	resp := e.ShouldRateLimit(Request{Domain: "edge", Descriptors: nil})
	require.Equal(t, CodeUnknown, resp.OverallCode)
}

func TestGlobalSumSeesJustAppliedLocalIncrement(t *testing.T) {
	now := time.Unix(0, 0)
	e, _, store := newEngine(t, func() time.Time { return now })
	vec := []ruleforest.Vector{{{Key: "test_key", Value: "limited"}}}

	key := counterstore.Key{RuleID: "test_key=limited", WindowID: window.ID(0), Unit: window.Second}
	store.MergePeerUpdate(key, "n2", 3, 1)

	resp := e.ShouldRateLimit(Request{Domain: "edge", Descriptors: vec, Hits: 1})
	require.Equal(t, uint64(1), resp.Statuses[0].LimitRemaining, "global sum must include both the peer's 3 and this node's own increment")
}
