// Package replicator runs the background publish/subscribe loop that keeps
// a node's Counter Store in sync with its peers over the KV-gossip
// substrate (spec §4.4).
package replicator

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hivemind/internal/counterstore"
	"hivemind/internal/gossip"
	"hivemind/internal/observability"
	"hivemind/internal/window"
)

// Options configures a Replicator.
type Options struct {
	// PublishInterval is how often changed local cells are written to the
	// substrate. Defaults to 100ms, spec §4.4's stated default.
	PublishInterval time.Duration
	Logger          observability.Logger
	Metrics         observability.Metrics
	Now             func() time.Time
}

// Replicator publishes this node's counter state to the substrate on a
// fixed tick and applies peer updates as they arrive, grounded in the
// teacher's CacheSyncWorker (ticker-driven refresh loop) for the outbound
// side and CacheInvalidator (subscribe-then-apply) for the inbound side.
type Replicator struct {
	store     *counterstore.Store
	substrate gossip.Substrate
	peerID    string
	interval  time.Duration
	logger    observability.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]counterstore.SnapshotEntry

	failures atomic.Int64
}

// New constructs a Replicator. peerID must match the identity the Counter
// Store was constructed with, so local increments and the node's own
// published cells agree.
func New(store *counterstore.Store, substrate gossip.Substrate, peerID string, opts Options) *Replicator {
	interval := opts.PublishInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Replicator{
		store:     store,
		substrate: substrate,
		peerID:    peerID,
		interval:  interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       now,
		pending:   make(map[string]counterstore.SnapshotEntry),
	}
}

// Run subscribes to inbound substrate changes and then runs the publish
// tick loop until ctx is cancelled. It is the component that occupies
// suspension points (c) and (d) from spec §5.
func (r *Replicator) Run(ctx context.Context) error {
	if r == nil || r.store == nil || r.substrate == nil {
		return fmt.Errorf("replicator: not configured")
	}
	if err := r.substrate.Subscribe(ctx, r.onPeerEntry); err != nil {
		return fmt.Errorf("replicator: subscribe: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.publishTick()
		}
	}
}

// publishTick writes every changed local cell to the substrate, retrying
// any entry whose write failed on the previous tick (spec §7
// GossipTransient: "logged; retried next tick").
func (r *Replicator) publishTick() {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]counterstore.SnapshotEntry)
	r.mu.Unlock()

	for _, e := range r.store.SnapshotLocal() {
		batch[e.Key.String()] = e
	}

	failed := make(map[string]counterstore.SnapshotEntry)
	for wireKey, e := range batch {
		payload := encodeValue(e.Value, e.LastUpdated, e.Key.Unit.Seconds())
		if err := r.substrate.Set(wireKey, payload, e.LastUpdated); err != nil {
			failed[wireKey] = e
			r.failures.Add(1)
			if r.metrics != nil {
				r.metrics.IncGossipPublishFailure()
			}
			if r.logger != nil {
				r.logger.Error("gossip publish failed", map[string]any{
					"key":   wireKey,
					"error": err.Error(),
				})
			}
		}
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for k, v := range failed {
			r.pending[k] = v
		}
		r.mu.Unlock()
	}
}

// onPeerEntry applies one inbound substrate tuple to the Counter Store.
func (r *Replicator) onPeerEntry(e gossip.Entry) {
	if e.PeerID == r.peerID {
		return
	}
	ruleID, windowID, err := counterstore.ParseKeyString(e.Key)
	if err != nil {
		return
	}
	value, lastUpdated, unitSeconds, ok := decodeValue(e.Value)
	if !ok {
		return
	}
	unit, ok := window.UnitFromSeconds(unitSeconds)
	if !ok {
		return
	}

	_, end := window.Bounds(unit, windowID)
	grace := 2 * unit.Seconds()
	if r.now().Unix() > end+grace {
		return // window already past grace; discard per spec §4.4.
	}

	key := counterstore.Key{RuleID: ruleID, WindowID: windowID, Unit: unit}
	r.store.MergePeerUpdate(key, e.PeerID, value, lastUpdated)
	if r.metrics != nil {
		r.metrics.IncGossipApplied()
	}
}

// encodeValue packs (local_value, last_updated, unit_seconds) into the
// opaque byte payload the substrate carries per key.
func encodeValue(value uint64, lastUpdated int64, unitSeconds int64) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], value)
	binary.BigEndian.PutUint64(buf[8:16], uint64(lastUpdated))
	binary.BigEndian.PutUint64(buf[16:24], uint64(unitSeconds))
	return buf
}

func decodeValue(b []byte) (value uint64, lastUpdated int64, unitSeconds int64, ok bool) {
	if len(b) != 24 {
		return 0, 0, 0, false
	}
	value = binary.BigEndian.Uint64(b[0:8])
	lastUpdated = int64(binary.BigEndian.Uint64(b[8:16]))
	unitSeconds = int64(binary.BigEndian.Uint64(b[16:24]))
	return value, lastUpdated, unitSeconds, true
}

// Failures reports the cumulative count of failed substrate writes across
// all publish ticks (an entry that fails on several ticks counts each time),
// for admin-surface health reporting.
func (r *Replicator) Failures() int64 {
	return r.failures.Load()
}
