// Package counterstore holds per-(rule, window) hit counts, combining each
// node's local observations with the most recent counts broadcast by peers.
package counterstore

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"hivemind/internal/window"
)

// PeerID identifies one node contributing to a counter key's peer cells.
type PeerID string

// Key identifies one counter: a rule and the window instance it applies to.
// Unit travels with the key so GC can compute the window's expiry without a
// second lookup into the Rule Store.
type Key struct {
	RuleID   string
	WindowID window.ID
	Unit     window.Unit
}

func (k Key) encode() string {
	return k.String()
}

// String renders the counter key in the stable wire format spec §4.4 names:
// "${rule_id}:${window_id}".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.RuleID, int64(k.WindowID))
}

// ParseKeyString splits a wire-format counter key back into its rule id and
// window id. Unit is not recoverable from the string alone and must be
// supplied by the caller from the published payload.
func ParseKeyString(s string) (ruleID string, windowID window.ID, err error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			var id int64
			if _, scanErr := fmt.Sscanf(s[i+1:], "%d", &id); scanErr != nil {
				return "", 0, fmt.Errorf("counterstore: invalid window id in key %q: %w", s, scanErr)
			}
			return s[:i], window.ID(id), nil
		}
	}
	return "", 0, fmt.Errorf("counterstore: malformed key %q", s)
}

// SnapshotEntry is one row of the Replicator's outbound publish payload.
type SnapshotEntry struct {
	Key         Key
	Value       uint64
	LastUpdated int64
}

type peerValue struct {
	value       uint64
	lastUpdated int64
}

type cell struct {
	mu          sync.Mutex
	unit        window.Unit
	windowID    window.ID
	peers       map[PeerID]*peerValue
	localDirty  bool
}

type shard struct {
	mu    sync.Mutex
	cells map[string]*cell
}

// Store is the sharded, mutex-guarded counter map described in spec §4.3. It
// is the only mutable shared state in the system; the sharding mirrors the
// teacher's fnv-hashed LimiterPool shards so that contention on one counter
// key never blocks unrelated keys.
type Store struct {
	shards      []shard
	localPeerID PeerID
	lastSnapAt  int64
	snapMu      sync.Mutex
	clock       func() int64
}

// Options configures a Store. ShardCount defaults to 16, matching the
// teacher's LimiterPool default.
type Options struct {
	ShardCount int
}

// New constructs a Store for localPeerID, the peer identity this node's
// increments are attributed to.
func New(localPeerID string, opts Options) *Store {
	shardCount := opts.ShardCount
	if shardCount <= 0 {
		shardCount = 16
	}
	s := &Store{
		shards:      make([]shard, shardCount),
		localPeerID: PeerID(localPeerID),
		clock:       func() int64 { return time.Now().UnixNano() },
	}
	for i := range s.shards {
		s.shards[i].cells = make(map[string]*cell)
	}
	return s
}

func (s *Store) shardFor(encoded string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(encoded))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) getOrCreate(key Key) *cell {
	encoded := key.encode()
	sh := s.shardFor(encoded)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.cells[encoded]
	if !ok {
		c = &cell{unit: key.Unit, windowID: key.WindowID, peers: make(map[PeerID]*peerValue)}
		sh.cells[encoded] = c
	}
	return c
}

// lookup returns the existing cell for key without creating one, for
// read-only queries that must not materialize state for keys that were
// never incremented.
func (s *Store) lookup(key Key) (*cell, bool) {
	encoded := key.encode()
	sh := s.shardFor(encoded)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.cells[encoded]
	return c, ok
}

// Increment atomically adds amount to the local peer's cell for key and
// returns the new local value. A zero amount is a no-op read, per
// DESIGN.md's resolution of the spec's open question on hits_addend=0.
func (s *Store) Increment(key Key, amount uint64) uint64 {
	if amount == 0 {
		c, ok := s.lookup(key)
		if !ok {
			return 0
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if pv, ok := c.peers[s.localPeerID]; ok {
			return pv.value
		}
		return 0
	}

	c := s.getOrCreate(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	pv, ok := c.peers[s.localPeerID]
	if !ok {
		pv = &peerValue{}
		c.peers[s.localPeerID] = pv
	}
	pv.value += amount
	pv.lastUpdated = s.clock()
	c.localDirty = true
	return pv.value
}

// GlobalSum returns the sum of value over all known peer cells for key,
// including the local cell.
func (s *Store) GlobalSum(key Key) uint64 {
	c, ok := s.lookup(key)
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, pv := range c.peers {
		total += pv.value
	}
	return total
}

// MergePeerUpdate applies a peer-originated observation. The update is
// accepted only if lastUpdated strictly advances the stored timestamp for
// that peer's cell; the accompanying value is then taken unconditionally,
// even if it is numerically smaller than the previous value, since the peer
// may have rotated to a new window under the same encoded key only in
// adversarial clock conditions — in the normal case a smaller value after a
// later timestamp means the peer's own window reset, and the newer
// observation still wins. The local peer's own cell can only be written by
// Increment; a merge naming the local peer is ignored.
func (s *Store) MergePeerUpdate(key Key, peerID string, value uint64, lastUpdated int64) {
	pid := PeerID(peerID)
	if pid == s.localPeerID {
		return
	}
	c := s.getOrCreate(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	pv, ok := c.peers[pid]
	if !ok {
		pv = &peerValue{}
		c.peers[pid] = pv
	}
	if lastUpdated <= pv.lastUpdated && ok {
		return
	}
	pv.value = value
	pv.lastUpdated = lastUpdated
}

// SnapshotLocal returns every local cell whose value changed since the
// previous call to SnapshotLocal, for the Replicator's publish tick. Cells
// untouched since the last call are omitted to bound substrate churn.
func (s *Store) SnapshotLocal() []SnapshotEntry {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	var entries []SnapshotEntry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for encoded, c := range sh.cells {
			c.mu.Lock()
			if c.localDirty {
				if pv, ok := c.peers[s.localPeerID]; ok {
					entries = append(entries, SnapshotEntry{
						Key:         decodeKey(encoded, c.unit, c.windowID),
						Value:       pv.value,
						LastUpdated: pv.lastUpdated,
					})
				}
				c.localDirty = false
			}
			c.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return entries
}

func decodeKey(encoded string, unit window.Unit, windowID window.ID) Key {
	// encoded is "ruleID:windowID"; ruleID may itself contain ':' from the
	// forest's path-based ids, so split on the last separator.
	for i := len(encoded) - 1; i >= 0; i-- {
		if encoded[i] == ':' {
			return Key{RuleID: encoded[:i], WindowID: windowID, Unit: unit}
		}
	}
	return Key{RuleID: encoded, WindowID: windowID, Unit: unit}
}

// GC removes counter keys whose window ended more than two full unit
// lengths ago, per spec §3's counter-key lifecycle.
func (s *Store) GC(now time.Time) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for encoded, c := range sh.cells {
			c.mu.Lock()
			_, end := window.Bounds(c.unit, c.windowID)
			grace := 2 * c.unit.Seconds()
			expired := now.Unix() > end+grace
			c.mu.Unlock()
			if expired {
				delete(sh.cells, encoded)
			}
		}
		sh.mu.Unlock()
	}
}

// Remaining computes the quota remaining given a limit and a global sum,
// clamped at zero.
func Remaining(limit, globalSum uint64) uint64 {
	if globalSum >= limit {
		return 0
	}
	return limit - globalSum
}

// Size reports the number of live counter keys, for tests and admin status.
func (s *Store) Size() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.cells)
		sh.mu.Unlock()
	}
	return total
}
