// Package tracker implements the session tracker: the LaunchRecord map,
// reconciliation/enrichment against adapter discovery, pending-id
// resolution, and the PID liveness sweep. This is the heart of the
// daemon — every other subsystem's mutations eventually flow through it
// or the lock manager it drives.
package tracker

import (
	"strconv"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/locks"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/agentctl/agentctl/pkg/process"
	"github.com/sirupsen/logrus"
)

// GraceWindow is how long a just-launched session is shown as running
// even before the adapter's own discover() corroborates it.
const GraceWindow = 45 * time.Second

// StartTimeToleranceTicks bounds how far two /proc start-time samples
// may drift and still be considered the same process (see
// pkg/process.SameStartTime). Five seconds of clock ticks at the
// conventional 100 Hz USER_HZ.
const StartTimeToleranceTicks = 500

// ClockTicksPerSecond is the conventional USER_HZ used to convert the
// tolerance window in ResolvePendingID's pid-match guard into ticks.
const ClockTicksPerSecond = 100

// launchOriginTolerance bounds how much earlier than its own launch a
// newly discovered process may claim to have started and still be
// accepted as a pid match, absorbing clock-read jitter between launch
// and the first discover() that corroborates it.
const launchOriginTolerance = 2 * time.Second

// Tracker holds the LaunchRecord map (via the store) and coordinates
// with the lock manager on every transition that changes a session's
// identity or liveness.
type Tracker struct {
	store *store.Store
	locks *locks.Manager
	log   *logrus.Entry
}

// New creates a Tracker over st, driving lm for lock side effects.
func New(st *store.Store, lm *locks.Manager, log *logrus.Entry) *Tracker {
	return &Tracker{store: st, locks: lm, log: log}
}

// Track upserts a LaunchRecord. If the record's pid matches a pending
// record of the same adapter and the new id is stable (not pending
// itself), the pending record is collapsed into the stable one and the
// lock manager's auto-lock is rewritten to the stable id.
func (t *Tracker) Track(rec model.LaunchRecord) {
	if rec.PID != 0 && rec.ProcessStartTime == "" {
		if st, err := process.StartTime(rec.PID); err == nil {
			rec.ProcessStartTime = st
		}
	}

	if !model.IsPendingID(rec.ID) && rec.PID != 0 {
		for _, existing := range t.store.GetLaunches() {
			if model.IsPendingID(existing.ID) && existing.Adapter == rec.Adapter && existing.PID == rec.PID {
				t.collapsePending(existing, rec)
				return
			}
		}
	}
	t.store.UpsertLaunch(rec.ID, rec)
}

// collapsePending removes the pending record, carries its caller-set
// fields forward onto the stable record, and rewrites the auto-lock.
func (t *Tracker) collapsePending(pending model.LaunchRecord, stable model.LaunchRecord) {
	if stable.Prompt == "" {
		stable.Prompt = pending.Prompt
	}
	if stable.Group == "" {
		stable.Group = pending.Group
	}
	if stable.Spec == "" {
		stable.Spec = pending.Spec
	}
	if len(stable.Meta) == 0 {
		stable.Meta = pending.Meta
	}

	t.store.RemoveLaunch(pending.ID)
	t.store.UpsertLaunch(stable.ID, stable)
	t.locks.UpdateAutoLockSessionID(pending.ID, stable.ID)
}

// OnSessionExit transitions a record to stopped. Idempotent.
func (t *Tracker) OnSessionExit(id string) {
	rec, ok := t.store.GetLaunch(id)
	if !ok || rec.Status == model.StatusStopped {
		return
	}
	now := time.Now()
	rec.Status = model.StatusStopped
	rec.StoppedAt = &now
	t.store.UpsertLaunch(id, rec)
}

// RemoveSession unconditionally removes a record, used for stop --force
// against a ghost pending entry whose pid is dead.
func (t *Tracker) RemoveSession(id string) {
	t.store.RemoveLaunch(id)
}

// ReconcileResult is the output of ReconcileAndEnrich.
type ReconcileResult struct {
	Sessions         []model.EnrichedSession
	StoppedLaunchIDs []string
}

// ReconcileAndEnrich merges a fan-out's discovered sessions with the
// LaunchRecord map: collapses pending-by-pid matches, enriches
// discovered sessions with launch metadata, and detects disappearance
// of previously-running launches whose adapter succeeded this cycle.
func (t *Tracker) ReconcileAndEnrich(discovered []model.DiscoveredSession, succeededAdapters map[string]bool) ReconcileResult {
	launches := t.store.GetLaunches()
	seenIDs := make(map[string]bool, len(discovered))

	// 1. Pending-by-pid collapse.
	for i, d := range discovered {
		if _, ok := launches[d.ID]; ok {
			continue
		}
		for _, rec := range launches {
			if model.IsPendingID(rec.ID) && rec.Adapter == d.Adapter && rec.PID == d.PID && d.PID != 0 && sameProcessStart(rec.ProcessStartTime, d.ProcessStartTime) {
				stable := rec
				stable.ID = d.ID
				stable.Status = model.StatusRunning
				t.collapsePending(rec, stable)
				launches = t.store.GetLaunches()
				discovered[i] = d
				break
			}
		}
	}

	sessions := make([]model.EnrichedSession, 0, len(discovered))

	// 2. Enrichment.
	for _, d := range discovered {
		seenIDs[d.ID] = true
		sessions = append(sessions, t.enrich(d, launches))
	}

	// 3. Disappearance detection.
	var stoppedIDs []string
	for id, rec := range launches {
		if rec.Status != model.StatusRunning {
			continue
		}
		if !succeededAdapters[rec.Adapter] {
			continue
		}
		if seenIDs[id] {
			continue
		}

		if time.Since(rec.StartedAt) < GraceWindow {
			sessions = append(sessions, launchRecordToEnriched(rec, true))
			continue
		}

		now := time.Now()
		rec.Status = model.StatusStopped
		rec.StoppedAt = &now
		t.store.UpsertLaunch(id, rec)
		stoppedIDs = append(stoppedIDs, id)
	}

	return ReconcileResult{Sessions: sessions, StoppedLaunchIDs: stoppedIDs}
}

func (t *Tracker) enrich(d model.DiscoveredSession, launches map[string]model.LaunchRecord) model.EnrichedSession {
	e := model.EnrichedSession{
		ID:        d.ID,
		Adapter:   d.Adapter,
		Status:    d.Status,
		Cwd:       d.Cwd,
		Model:     d.Model,
		StartedAt: d.StartedAt,
		StoppedAt: d.StoppedAt,
		PID:       d.PID,
		Prompt:    d.Prompt,
		TokensIn:  d.TokensIn,
		TokensOut: d.TokensOut,
		Cost:      d.Cost,
	}

	rec, ok := launches[d.ID]
	if !ok {
		return e
	}
	if e.Prompt == "" {
		e.Prompt = rec.Prompt
	}
	e.Spec = rec.Spec
	e.Group = rec.Group
	if len(rec.Meta) > 0 {
		e.Meta = rec.Meta
	}
	return e
}

func launchRecordToEnriched(rec model.LaunchRecord, inGrace bool) model.EnrichedSession {
	return model.EnrichedSession{
		ID:        rec.ID,
		Adapter:   rec.Adapter,
		Status:    model.StatusRunning,
		Cwd:       rec.Cwd,
		Model:     rec.Model,
		StartedAt: rec.StartedAt,
		PID:       rec.PID,
		Prompt:    rec.Prompt,
		Spec:      rec.Spec,
		Group:     rec.Group,
		Meta:      rec.Meta,
		InGrace:   inGrace,
	}
}

// CleanupDeadLaunches transitions every running LaunchRecord whose pid
// is no longer alive, or whose pid has been recycled by an unrelated
// process or cannot be verified, to stopped, and returns their ids. Runs at startup and on the
// periodic PID sweep.
func (t *Tracker) CleanupDeadLaunches() []string {
	var dead []string
	for id, rec := range t.store.GetLaunches() {
		if rec.Status != model.StatusRunning || rec.PID == 0 {
			continue
		}
		if process.IsProcessAlive(rec.PID) && !pidWasRecycled(rec) {
			continue
		}
		now := time.Now()
		rec.Status = model.StatusStopped
		rec.StoppedAt = &now
		t.store.UpsertLaunch(id, rec)
		dead = append(dead, id)
	}
	return dead
}

// pidWasRecycled reports whether the process currently holding rec.PID
// cannot be shown to be the one rec was tracking: its live start time
// does not match the one recorded at launch/track time. A missing sample
// on either side (capture failed, the record pre-dates this field, or
// the live read fails) cannot be verified, and SameStartTime treats it
// as a different process, so the record is reported stopped.
func pidWasRecycled(rec model.LaunchRecord) bool {
	live, _ := process.StartTime(rec.PID)
	return !process.SameStartTime(rec.ProcessStartTime, live, StartTimeToleranceTicks)
}

// sameProcessStart reports whether two opaque start-time samples plausibly
// describe the same process for pid-match purposes. Either side being
// unavailable (an adapter that doesn't report it, or a read failure) falls
// back to trusting the pid match alone, since that was the only signal
// before this field existed.
func sameProcessStart(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return process.SameStartTime(a, b, StartTimeToleranceTicks)
}

// DiscoverFunc performs one adapter's discover() call, used by
// ResolvePendingID and ResolvePendingSessions without importing the
// registry package (avoiding an import cycle).
type DiscoverFunc func(adapter string) ([]model.DiscoveredSession, error)

// ResolvePendingID gives the RPC layer "try one more time" semantics:
// if id is a pending id, it invokes the owning adapter's discover() and
// promotes the matching record if found. Returns the input id unchanged
// on any failure or non-match.
func (t *Tracker) ResolvePendingID(id string, discover DiscoverFunc) string {
	if !model.IsPendingID(id) {
		return id
	}
	rec, ok := t.store.GetLaunch(id)
	if !ok {
		return id
	}

	discovered, err := discover(rec.Adapter)
	if err != nil {
		return id
	}

	for _, d := range discovered {
		if d.PID != 0 && d.PID == rec.PID && plausiblePidMatch(rec, d) {
			stable := rec
			stable.ID = d.ID
			stable.Status = model.StatusRunning
			t.collapsePending(rec, stable)
			return d.ID
		}
	}
	return id
}

// plausiblePidMatch guards a pending record's pid-based match against an
// adapter-discovered session that merely inherited a recycled pid: the
// candidate's own start time must not predate the pending record's,
// within a small jitter allowance. Either side missing a start-time
// sample falls back to trusting the pid match alone.
func plausiblePidMatch(rec model.LaunchRecord, d model.DiscoveredSession) bool {
	if rec.ProcessStartTime == "" || d.ProcessStartTime == "" {
		return true
	}
	refTicks, err := strconv.ParseInt(rec.ProcessStartTime, 10, 64)
	if err != nil {
		return true
	}
	candTicks, err := strconv.ParseInt(d.ProcessStartTime, 10, 64)
	if err != nil {
		return true
	}
	return process.StartedAtOrAfter(candTicks, refTicks, launchOriginTolerance, ClockTicksPerSecond)
}

// ResolvePendingSessions groups every pending LaunchRecord by adapter,
// issues one discover() per adapter, and collapses every match. onResolved
// is invoked for each (pendingID, stableID) pair resolved, so callers
// beyond the lock manager (already handled internally) can react.
func (t *Tracker) ResolvePendingSessions(discover DiscoverFunc, onResolved func(pendingID, stableID string)) {
	byAdapter := make(map[string][]model.LaunchRecord)
	for _, rec := range t.store.GetLaunches() {
		if model.IsPendingID(rec.ID) {
			byAdapter[rec.Adapter] = append(byAdapter[rec.Adapter], rec)
		}
	}

	for adapter, pendings := range byAdapter {
		discovered, err := discover(adapter)
		if err != nil {
			t.log.WithField("adapter", adapter).WithError(err).Warn("pending-session resolution discover failed")
			continue
		}
		for _, rec := range pendings {
			for _, d := range discovered {
				if d.PID != 0 && d.PID == rec.PID && plausiblePidMatch(rec, d) {
					stable := rec
					stable.ID = d.ID
					stable.Status = model.StatusRunning
					t.collapsePending(rec, stable)
					if onResolved != nil {
						onResolved(rec.ID, d.ID)
					}
					break
				}
			}
		}
	}
}
