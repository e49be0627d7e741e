package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hivemind/internal/admission"
	"hivemind/internal/gossip"
	"hivemind/internal/ruleforest"
)

func writeRulesFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	data := []byte(`
domain: edge
descriptors:
  - key: test_key
    value: limited
    rate_limit:
      unit: second
      requests_per_unit: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewRejectsMissingNodeID(t *testing.T) {
	_, err := New(&Config{RulesPath: writeRulesFile(t)})
	require.Error(t, err)
}

func TestNewRejectsMeshWithoutSubstrate(t *testing.T) {
	_, err := New(&Config{NodeID: "n1", RulesPath: writeRulesFile(t), MeshEnabled: true})
	require.Error(t, err)
}

func TestLocalOnlyApplicationAdmitsRequests(t *testing.T) {
	a, err := New(&Config{NodeID: "n1", RulesPath: writeRulesFile(t)})
	require.NoError(t, err)
	require.False(t, a.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.True(t, a.Ready())

	resp := a.Engine.ShouldRateLimit(admission.Request{
		Domain:      "edge",
		Descriptors: []ruleforest.Vector{{{Key: "test_key", Value: "limited"}}},
		Hits:        1,
	})
	require.Equal(t, admission.CodeOK, resp.OverallCode)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, a.Shutdown(shutdownCtx))
	require.False(t, a.Ready())
}

func TestMeshApplicationRunsReplicator(t *testing.T) {
	net := gossip.NewNetwork()
	substrate := net.Join("n1")

	a, err := New(&Config{
		NodeID:          "n1",
		RulesPath:       writeRulesFile(t),
		MeshEnabled:     true,
		Substrate:       substrate,
		PublishInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		require.NoError(t, a.Shutdown(shutdownCtx))
	}()

	require.NotNil(t, a.Replicator)
	status := a.Admin.Health()
	require.True(t, status.MeshEnabled)
}

// TestThreeNodeGlobalLimitConverges exercises the three-node global-limit
// scenario: three nodes share a gossip network, one node takes all the
// local hits, and the others must observe the global count converge within
// a couple of publish intervals (spec §8 scenario 3).
func TestThreeNodeGlobalLimitConverges(t *testing.T) {
	net := gossip.NewNetwork()
	rulesPath := writeRulesFile(t)

	newNode := func(id string) *Application {
		a, err := New(&Config{
			NodeID:          id,
			RulesPath:       rulesPath,
			MeshEnabled:     true,
			Substrate:       net.Join(id),
			PublishInterval: 10 * time.Millisecond,
		})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, a.Start(ctx))
		t.Cleanup(func() {
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			_ = a.Shutdown(shutdownCtx)
		})
		return a
	}

	n1 := newNode("n1")
	n2 := newNode("n2")
	_ = newNode("n3")

	descriptors := []ruleforest.Vector{{{Key: "test_key", Value: "limited"}}}
	query := func(a *Application, hits uint64) admission.Response {
		return a.Engine.ShouldRateLimit(admission.Request{Domain: "edge", Descriptors: descriptors, Hits: hits})
	}

	for i := 0; i < 3; i++ {
		resp := query(n1, 1)
		require.Equal(t, admission.CodeOK, resp.OverallCode)
	}

	require.Eventually(t, func() bool {
		resp := query(n2, 0) // hits_addend=0 is a no-op read, per spec §9
		return resp.Statuses[0].LimitRemaining == 2
	}, 2*time.Second, 10*time.Millisecond, "n2 must observe n1's three increments via gossip convergence")

	resp := query(n2, 1)
	require.Equal(t, uint64(1), resp.Statuses[0].LimitRemaining, "the query itself consumes the fourth hit")
}
