// Package scheduler drives agentctl's three periodic housekeeping
// jobs (spec.md §4.4.3, SPEC_FULL.md §4.12) using robfig/cron/v3. Every
// job only enqueues a closure onto the core's dispatch queue — the cron
// library's own goroutine never touches daemon state directly.
package scheduler

import (
	"context"
	"time"

	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler owns the three @every jobs named in SPEC_FULL.md §4.12:
// the PID-liveness dead-launch sweep, the batched pending-id
// resolution sweep, and the fuse-expiry double-check tick.
type Scheduler struct {
	cron *cron.Cron
	core *daemon.Core
	log  *logrus.Entry
}

// New builds a Scheduler and registers its three jobs as @every specs,
// which robfig/cron handles as plain durations regardless of the field
// parser in use. Call Start to begin running them.
func New(core *daemon.Core, log *logrus.Entry, deadSweep, pendingSweep time.Duration) *Scheduler {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	s := &Scheduler{cron: c, core: core, log: log}

	s.every(deadSweep, "dead-launch-sweep", func() {
		for _, id := range core.Tracker.CleanupDeadLaunches() {
			core.Locks.AutoUnlock(id)
			core.Metrics.IncLocksReleased()
		}
	})
	s.every(pendingSweep, "pending-id-sweep", func() {
		discover := func(adapter string) ([]model.DiscoveredSession, error) {
			ctx, cancel := context.WithTimeout(context.Background(), core.AdapterTimeout())
			defer cancel()
			return core.Registry.Discover(ctx, adapter)
		}
		core.Tracker.ResolvePendingSessions(discover, func(pendingID, stableID string) {
			core.Locks.UpdateAutoLockSessionID(pendingID, stableID)
		})
	})
	s.every(time.Second, "fuse-expiry-tick", func() {
		core.Fuse.CheckExpired()
	})

	return s
}

// every registers fn to run on the dispatch queue at the given
// interval, formatted as a `@every` cron spec.
func (s *Scheduler) every(interval time.Duration, name string, fn func()) {
	spec := "@every " + interval.String()
	_, err := s.cron.AddFunc(spec, func() {
		s.core.Queue.Enqueue(fn)
	})
	if err != nil {
		s.log.WithError(err).WithField("job", name).Error("failed to schedule periodic job")
	}
}

// Start begins running scheduled jobs in a background goroutine owned
// by the cron library.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
