// Package admin exposes a read-only operability surface over the Rule
// Store, Replicator, and gossip substrate — rule inspection and
// health/readiness, grounded in the teacher's AdminHandler and
// grpcHealthServer. Unlike the teacher's AdminHandler it has no
// Create/Update/Delete: spec §1's Non-goals rule out hot-reloading of
// descriptor rules, so this surface only ever reads.
package admin

import (
	"sort"

	"hivemind/internal/replicator"
	"hivemind/internal/ruleforest"
)

// DomainSummary describes one loaded domain for ListDomains.
type DomainSummary struct {
	Domain string
}

// MatchTraceResult is the outcome of tracing one descriptor vector against
// a domain's forest, for operator debugging of "why did/didn't this match".
type MatchTraceResult struct {
	Domain  string
	Path    string
	Matched bool
	RuleID  string
	Limit   uint64
}

// Status reports the node's health for the Health RPC, grounded in the
// teacher's DegradeController/OperatingMode pattern but kept purely
// read-only: nothing here feeds back into the admission decision (spec
// §4.5 has no "degraded mode" branch).
type Status struct {
	Ready            bool
	MeshEnabled      bool
	GossipFailures   int64
	PeerCount        int
	DomainCount      int
}

// Surface is the admin collaborator wired into the gRPC Health service and
// any future operator tooling.
type Surface struct {
	domains    map[string]*ruleforest.Forest
	replicator *replicator.Replicator
	meshPeers  func() int
	ready      func() bool
	meshOn     bool
}

// Options configures a Surface.
type Options struct {
	// Replicator is nil when --mesh is disabled; GossipFailures then
	// reports zero.
	Replicator *replicator.Replicator
	// PeerCount supplies Status.PeerCount; when nil, PeerCount reports zero.
	PeerCount func() int
	Ready      func() bool
	MeshOn     bool
}

// New constructs a Surface over the loaded domains.
func New(domains map[string]*ruleforest.Forest, opts Options) *Surface {
	peerCount := opts.PeerCount
	if peerCount == nil {
		peerCount = func() int { return 0 }
	}
	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return false }
	}
	return &Surface{
		domains:    domains,
		replicator: opts.Replicator,
		meshPeers:  peerCount,
		ready:      ready,
		meshOn:     opts.MeshOn,
	}
}

// ListDomains returns every loaded domain, sorted by name.
func (s *Surface) ListDomains() []DomainSummary {
	if s == nil {
		return nil
	}
	out := make([]DomainSummary, 0, len(s.domains))
	for name := range s.domains {
		out = append(out, DomainSummary{Domain: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// MatchTrace traces vec against domain's forest and reports the matched
// path and rule, mirroring the original's RateLimitConfig::get_domain +
// find_limit pair exposed for operability rather than mutation.
func (s *Surface) MatchTrace(domain string, vec ruleforest.Vector) MatchTraceResult {
	if s == nil {
		return MatchTraceResult{Domain: domain}
	}
	forest, ok := s.domains[domain]
	if !ok {
		return MatchTraceResult{Domain: domain, Path: "<unknown domain>"}
	}
	result := MatchTraceResult{Domain: domain, Path: forest.Describe(vec)}
	if rule, matched := forest.Match(vec); matched {
		result.Matched = true
		result.RuleID = rule.ID
		result.Limit = rule.RequestsPerUnit
	}
	return result
}

// Health reports current node status for the Health RPC.
func (s *Surface) Health() Status {
	if s == nil {
		return Status{}
	}
	var failures int64
	if s.replicator != nil {
		failures = s.replicator.Failures()
	}
	return Status{
		Ready:          s.ready(),
		MeshEnabled:    s.meshOn,
		GossipFailures: failures,
		PeerCount:      s.meshPeers(),
		DomainCount:    len(s.domains),
	}
}
