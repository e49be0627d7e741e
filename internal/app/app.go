// Package app wires the five core components, the ambient observability
// stack, and the gossip-backed Replicator into one runnable Application,
// grounded in the teacher's Application struct and NewApplication
// validation/defaulting pattern (internal/ratelimit/app/app.go). Where the
// teacher supervises background goroutines with a bare sync.WaitGroup,
// this one uses golang.org/x/sync/errgroup, a dependency turtacn-cbc
// already carries and SPEC_FULL §1 commits to for this concern — errgroup
// additionally propagates the first background failure out of Wait, which
// the teacher's WaitGroup cannot do.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hivemind/internal/admin"
	"hivemind/internal/admission"
	"hivemind/internal/config"
	"hivemind/internal/counterstore"
	"hivemind/internal/gossip"
	"hivemind/internal/observability"
	"hivemind/internal/replicator"
	"hivemind/internal/ruleforest"
	"hivemind/internal/window"
)

// Config holds everything New needs to assemble an Application.
// It mirrors the teacher's Config in spirit: a flat struct validated and
// defaulted in one place rather than through functional options.
type Config struct {
	// NodeID is this node's cluster-unique identity; required.
	NodeID string

	// RulesPath is the YAML rule file (spec §6); required.
	RulesPath string

	// MeshEnabled starts the Replicator against Substrate. When false the
	// node serves purely local counters (spec §6 "--mesh").
	MeshEnabled bool
	// Substrate is required when MeshEnabled is true.
	Substrate gossip.Substrate
	// PeerCount reports the current mesh peer count for the admin Health
	// surface; optional.
	PeerCount func() int

	PublishInterval time.Duration
	GCInterval      time.Duration
	ShardCount      int

	Logger  observability.Logger
	Metrics observability.Metrics

	Now func() time.Time
}

func (c *Config) validate() error {
	if c.NodeID == "" {
		return errors.New("app: node id is required")
	}
	if c.RulesPath == "" {
		return errors.New("app: rules path is required")
	}
	if c.MeshEnabled && c.Substrate == nil {
		return errors.New("app: mesh enabled but no substrate configured")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.PublishInterval <= 0 {
		c.PublishInterval = 100 * time.Millisecond
	}
	if c.GCInterval <= 0 {
		c.GCInterval = 1 * time.Second
	}
	if c.ShardCount <= 0 {
		c.ShardCount = 16
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.PeerCount == nil {
		c.PeerCount = func() int { return 0 }
	}
}

// Application is the fully wired node: the Rule Store forests, Window
// Clock, Counter Store, Admission Engine, optional Replicator, and the
// read-only Admin surface, plus lifecycle management for their background
// tasks.
type Application struct {
	cfg *Config

	Domains    map[string]*ruleforest.Forest
	Clock      *window.Clock
	Store      *counterstore.Store
	Engine     *admission.Engine
	Replicator *replicator.Replicator
	Admin      *admin.Surface

	logger  observability.Logger
	metrics observability.Metrics

	ready  atomic.Bool
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs an Application from cfg, validating and defaulting fields
// the way the teacher's NewApplication does, then building the five core
// components bottom-up (Rule Store and Window Clock first, since the
// Admission Engine and Replicator both depend on them).
func New(cfg *Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	domains, err := config.LoadRulesFile(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	clock := window.NewWithNowFunc(cfg.Now)
	store := counterstore.New(cfg.NodeID, counterstore.Options{ShardCount: cfg.ShardCount})
	engine := admission.New(domains, clock, store, admission.Options{
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
		Now:     cfg.Now,
	})

	var repl *replicator.Replicator
	if cfg.MeshEnabled {
		repl = replicator.New(store, cfg.Substrate, cfg.NodeID, replicator.Options{
			PublishInterval: cfg.PublishInterval,
			Logger:          cfg.Logger,
			Metrics:         cfg.Metrics,
			Now:             cfg.Now,
		})
	}

	a := &Application{
		cfg:        cfg,
		Domains:    domains,
		Clock:      clock,
		Store:      store,
		Engine:     engine,
		Replicator: repl,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	a.Admin = admin.New(domains, admin.Options{
		Replicator: repl,
		PeerCount:  cfg.PeerCount,
		Ready:      a.Ready,
		MeshOn:     cfg.MeshEnabled,
	})
	return a, nil
}

// Start launches the background tasks: the Replicator's publish/subscribe
// loop (spec §5 suspension points c/d, when mesh is enabled) and the
// Counter Store's GC sweep (suspension point e). Both run under one
// errgroup.Group so the first failure cancels the other and is reported by
// Wait; the teacher's equivalent (sync.WaitGroup) has no such propagation.
func (a *Application) Start(ctx context.Context) error {
	if a == nil {
		return errors.New("app: application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	group, groupCtx := errgroup.WithContext(ctx)
	a.group = group

	if a.Replicator != nil {
		group.Go(func() error {
			return a.Replicator.Run(groupCtx)
		})
	}

	group.Go(func() error {
		a.runGC(groupCtx)
		return nil
	})

	a.ready.Store(true)
	if a.logger != nil {
		a.logger.Info("application started", map[string]any{
			"node_id":      a.cfg.NodeID,
			"mesh_enabled": a.cfg.MeshEnabled,
			"domains":      len(a.Domains),
		})
	}
	return nil
}

// runGC sweeps the Counter Store on a fixed tick until ctx is cancelled,
// grounded in the teacher's CacheSyncWorker ticker loop.
func (a *Application) runGC(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := a.cfg.Now()
			before := a.Store.Size()
			a.Store.GC(start)
			if a.metrics != nil {
				a.metrics.ObserveGCSweep(before-a.Store.Size(), a.cfg.Now().Sub(start))
			}
		}
	}
}

// Shutdown cancels background tasks and waits for them to return, up to
// ctx's deadline, mirroring the teacher's cancel-then-WaitGroup.Wait
// shutdown shape but propagating the errgroup's first error.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("app: application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.ready.Store(false)
	if a.logger != nil {
		a.logger.Info("application shutdown", map[string]any{"node_id": a.cfg.NodeID})
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- a.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the application has completed startup.
func (a *Application) Ready() bool {
	if a == nil {
		return false
	}
	return a.ready.Load()
}
