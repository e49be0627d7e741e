package ruleforest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/window"
)

func buildSample(t *testing.T) *Forest {
	specs := []NodeSpec{
		{
			Key: "api_key", HasValue: false,
			HasLimit: true, Unit: window.Second, RequestsPerUnit: 10,
		},
		{
			Key: "api_key", Value: "premium", HasValue: true,
			HasLimit: true, Unit: window.Second, RequestsPerUnit: 100,
		},
		{
			Key: "source_cluster", Value: "web", HasValue: true,
			HasLimit: true, Unit: window.Second, RequestsPerUnit: 1000,
			Children: []NodeSpec{
				{
					Key: "destination_cluster", Value: "critical_service", HasValue: true,
					HasLimit: true, Unit: window.Second, RequestsPerUnit: 100,
				},
				{
					Key: "destination_cluster", Value: "internal_only", HasValue: true,
					// interior, no limit: requests routed here fall back to source_cluster's own 1000/s
				},
			},
		},
	}
	f, err := Build("test-domain", specs)
	require.NoError(t, err)
	return f
}

func TestExactBeatsWildcardAtSameDepth(t *testing.T) {
	f := buildSample(t)

	rule, ok := f.Match(Vector{{Key: "api_key", Value: "premium"}})
	require.True(t, ok)
	require.Equal(t, uint64(100), rule.RequestsPerUnit)

	rule, ok = f.Match(Vector{{Key: "api_key", Value: "anonymous"}})
	require.True(t, ok)
	require.Equal(t, uint64(10), rule.RequestsPerUnit)
}

func TestDeeperMatchWinsOverAncestor(t *testing.T) {
	f := buildSample(t)

	rule, ok := f.Match(Vector{
		{Key: "source_cluster", Value: "web"},
		{Key: "destination_cluster", Value: "critical_service"},
	})
	require.True(t, ok)
	require.Equal(t, uint64(100), rule.RequestsPerUnit)
}

func TestInteriorWithoutLimitFallsBackToAncestor(t *testing.T) {
	f := buildSample(t)

	rule, ok := f.Match(Vector{
		{Key: "source_cluster", Value: "web"},
		{Key: "destination_cluster", Value: "internal_only"},
	})
	require.True(t, ok)
	require.Equal(t, uint64(1000), rule.RequestsPerUnit, "deepest node on the path lacks a limit, ancestor's limit applies")
}

func TestNoMatchYieldsNoRule(t *testing.T) {
	f := buildSample(t)

	_, ok := f.Match(Vector{{Key: "unknown_key", Value: "x"}})
	require.False(t, ok)
}

func TestTopLevelEntryOnlyUsesTopLevelLimit(t *testing.T) {
	f := buildSample(t)

	rule, ok := f.Match(Vector{{Key: "source_cluster", Value: "web"}})
	require.True(t, ok)
	require.Equal(t, uint64(1000), rule.RequestsPerUnit)
}

func TestDuplicateSiblingRejected(t *testing.T) {
	_, err := Build("dup", []NodeSpec{
		{Key: "a", Value: "x", HasValue: true},
		{Key: "a", Value: "x", HasValue: true},
	})
	require.Error(t, err)
}

func TestInvalidUnitRejected(t *testing.T) {
	_, err := Build("bad-unit", []NodeSpec{
		{Key: "a", Value: "x", HasValue: true, HasLimit: true, Unit: window.Unit(99), RequestsPerUnit: 1},
	})
	require.Error(t, err)
}

func TestZeroRequestsPerUnitRejected(t *testing.T) {
	_, err := Build("zero-limit", []NodeSpec{
		{Key: "a", Value: "x", HasValue: true, HasLimit: true, Unit: window.Second, RequestsPerUnit: 0},
	})
	require.Error(t, err)
}

func TestDescribeTracesMatchedPath(t *testing.T) {
	f := buildSample(t)
	got := f.Describe(Vector{
		{Key: "source_cluster", Value: "web"},
		{Key: "destination_cluster", Value: "critical_service"},
	})
	require.Equal(t, "source_cluster=web/destination_cluster=critical_service", got)
}
