// Package gossip models the KV-gossip substrate assumed by spec §4.4: a
// pre-existing library providing eventually-consistent per-peer key-value
// broadcast, peer discovery, and failure detection. Hivemind treats it as an
// opaque collaborator behind a narrow interface — the same pattern the
// teacher uses for its Redis client and cluster membership provider — rather
// than reimplementing a gossip protocol.
package gossip

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Entry is one (peer_id, key, value, heartbeat) tuple as reported by the
// substrate.
type Entry struct {
	PeerID    string
	Key       string
	Value     []byte
	Heartbeat int64
}

// Substrate is the three-operation contract spec §4.4 assumes: set a local
// key with a node-local versioned heartbeat, iterate every tuple known to
// this node, and install a change notifier.
type Substrate interface {
	Set(key string, value []byte, heartbeat int64) error
	Entries() []Entry
	Subscribe(ctx context.Context, fn func(Entry)) error
}

type subscription struct {
	id  int
	ctx context.Context
	fn  func(Entry)
}

// Network is the shared medium joining a set of in-memory substrates,
// standing in for the real mesh transport in single-process runs and tests.
// It is the only way to construct an InMemorySubstrate.
type Network struct {
	mu      sync.Mutex
	members []*InMemorySubstrate
}

// NewNetwork constructs an empty in-memory mesh.
func NewNetwork() *Network {
	return &Network{}
}

// Join attaches a new node to the network under peerID and returns its
// substrate handle.
func (n *Network) Join(peerID string) *InMemorySubstrate {
	s := &InMemorySubstrate{
		net:    n,
		peerID: peerID,
		known:  make(map[string]Entry),
	}
	n.mu.Lock()
	n.members = append(n.members, s)
	n.mu.Unlock()
	return s
}

// InMemorySubstrate is a reference Substrate implementation for
// single-process `--mesh` runs and for integration tests, grounded in
// the teacher's InMemoryPubSub (asynchronous fan-out to subscribers) and
// StaticMembership (fixed, in-process peer set). Unlike a real gossip
// library it delivers updates immediately rather than within a bounded
// interval, which is a stricter guarantee than spec §4.4 requires, not a
// weaker one.
type InMemorySubstrate struct {
	net    *Network
	peerID string

	mu    sync.Mutex
	known map[string]Entry // "peerID\x00key" -> latest entry for that peer's key

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int

	partitioned atomic.Bool
}

// Partition simulates a network split: this node stops sending and
// receiving broadcasts until Heal is called. Used by tests exercising spec
// §8 scenario 6.
func (s *InMemorySubstrate) Partition() {
	s.partitioned.Store(true)
}

// Heal reconnects a partitioned node to the network.
func (s *InMemorySubstrate) Heal() {
	s.partitioned.Store(false)
}

// Set publishes key/value under this node's heartbeat and fans it out to
// every other connected, non-partitioned member.
func (s *InMemorySubstrate) Set(key string, value []byte, heartbeat int64) error {
	if s == nil {
		return errors.New("substrate is nil")
	}
	cp := append([]byte(nil), value...)
	entry := Entry{PeerID: s.peerID, Key: key, Value: cp, Heartbeat: heartbeat}
	s.storeKnown(entry)
	s.broadcast(entry)
	return nil
}

// Entries returns every (peer_id, key, value, heartbeat) tuple known to this
// node, including its own.
func (s *InMemorySubstrate) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.known))
	for _, e := range s.known {
		out = append(out, e)
	}
	return out
}

// Subscribe registers fn to be called for every entry this node receives
// from another peer. This node's own Set calls are not delivered to its own
// subscribers. The subscription is removed automatically when ctx is done,
// mirroring the teacher's InMemoryPubSub.Subscribe lifecycle.
func (s *InMemorySubstrate) Subscribe(ctx context.Context, fn func(Entry)) error {
	if s == nil {
		return errors.New("substrate is nil")
	}
	if fn == nil {
		return errors.New("handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, ctx: ctx, fn: fn})
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeSubscription(id)
	}()
	return nil
}

func (s *InMemorySubstrate) removeSubscription(id int) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
}

func (s *InMemorySubstrate) storeKnown(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.PeerID + "\x00" + e.Key
	if existing, ok := s.known[key]; ok && e.Heartbeat <= existing.Heartbeat {
		return
	}
	s.known[key] = e
}

func (s *InMemorySubstrate) broadcast(e Entry) {
	if s.partitioned.Load() {
		return
	}
	s.net.mu.Lock()
	members := append([]*InMemorySubstrate(nil), s.net.members...)
	s.net.mu.Unlock()

	for _, m := range members {
		if m == s || m.partitioned.Load() {
			continue
		}
		go m.deliver(e)
	}
}

func (s *InMemorySubstrate) deliver(e Entry) {
	s.storeKnown(e)
	s.subsMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subsMu.Unlock()
	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		go sub.fn(e)
	}
}
