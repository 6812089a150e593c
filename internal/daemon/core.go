// Package daemon wires the state store, lock manager, fuse engine,
// session tracker, and adapter registry into the single cooperative
// Core the RPC server and periodic scheduler drive.
package daemon

import (
	"context"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/dispatch"
	"github.com/agentctl/agentctl/internal/daemon/fuse"
	"github.com/agentctl/agentctl/internal/daemon/locks"
	"github.com/agentctl/agentctl/internal/daemon/metrics"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/registry"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/agentctl/agentctl/internal/daemon/tracker"
	"github.com/sirupsen/logrus"
)

// Config carries every tunable Core needs, already defaulted by the
// config loader.
type Config struct {
	StatePath      string
	AdapterTimeout time.Duration
	FuseDefaultTTL time.Duration
	FlushDebounce  time.Duration
}

// Core bundles every daemon subsystem and the single-writer queue that
// serializes access to them. RPC handlers and periodic jobs both call
// Core.Queue.Do/Enqueue to perform mutations.
type Core struct {
	Store    *store.Store
	Locks    *locks.Manager
	Fuse     *fuse.Engine
	Tracker  *tracker.Tracker
	Registry *registry.Registry
	Metrics  *metrics.Registry
	Queue    *dispatch.Queue

	log       *logrus.Entry
	cfg       Config
	startedAt time.Time
}

// New constructs a Core and resumes any persisted fuses. ctx governs
// the lifetime of the dispatch queue's worker goroutine.
func New(ctx context.Context, cfg Config, log *logrus.Entry) *Core {
	startedAt := time.Now()
	st := store.New(cfg.StatePath, log.WithField("component", "store"))
	if cfg.FlushDebounce > 0 {
		st.WithDebounce(cfg.FlushDebounce)
	}

	lm := locks.New(st)
	mr := metrics.New(startedAt)
	reg := registry.New(log.WithField("component", "registry"))

	fe := fuse.New(st, log.WithField("component", "fuse"), func(dir string, fired model.FuseTimer) {
		mr.IncFusesFired()
	})

	tk := tracker.New(st, lm, log.WithField("component", "tracker"))

	c := &Core{
		Store:     st,
		Locks:     lm,
		Fuse:      fe,
		Tracker:   tk,
		Registry:  reg,
		Metrics:   mr,
		Queue:     dispatch.New(ctx, 256),
		log:       log,
		cfg:       cfg,
		startedAt: startedAt,
	}

	c.Queue.Enqueue(func() {
		for _, id := range tk.CleanupDeadLaunches() {
			lm.AutoUnlock(id)
			mr.IncLocksReleased()
		}
		fe.Resume()
	})

	return c
}

// StartedAt returns the process start time, for daemon.status uptime.
func (c *Core) StartedAt() time.Time { return c.startedAt }

// AdapterTimeout returns the per-adapter discover/operation timeout.
func (c *Core) AdapterTimeout() time.Duration { return c.cfg.AdapterTimeout }

// FuseDefaultTTL returns the default fuse TTL when a caller omits one.
func (c *Core) FuseDefaultTTL() time.Duration { return c.cfg.FuseDefaultTTL }

// Shutdown flushes state synchronously and stops in-memory fuse timers.
// Called once, on SIGTERM/SIGINT.
func (c *Core) Shutdown() {
	c.Fuse.Shutdown()
	if err := c.Store.Persist(); err != nil {
		c.log.WithError(err).Error("failed to persist state during shutdown")
	}
}
