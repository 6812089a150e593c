package tracker

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/locks"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/agentctl/agentctl/pkg/process"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store, *locks.Manager) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "state.json"), logrus.NewEntry(logrus.New())).WithDebounce(5 * time.Millisecond)
	lm := locks.New(st)
	return New(st, lm, logrus.NewEntry(logrus.New())), st, lm
}

// deadPID returns a pid almost certain to belong to nothing: spawn and
// immediately reap a short-lived child.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

// Boundary Scenario #1: ghost pid. A running LaunchRecord whose pid has
// died gets swept to stopped, and the caller is handed back the id so it
// can release the auto-lock (the part the core.go/scheduler.go call sites
// were missing before this fix).
func TestCleanupDeadLaunchesStopsGhostPID(t *testing.T) {
	tk, st, lm := newTestTracker(t)

	pid := deadPID(t)
	rec := model.LaunchRecord{ID: "sess-1", Adapter: "claude-code", Status: model.StatusRunning, PID: pid, Cwd: "/tmp/work"}
	st.UpsertLaunch(rec.ID, rec)
	_, err := lm.AutoLock("/tmp/work", rec.ID)
	require.NoError(t, err)

	dead := tk.CleanupDeadLaunches()
	require.Equal(t, []string{"sess-1"}, dead)

	got, ok := st.GetLaunch("sess-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusStopped, got.Status)
	assert.NotNil(t, got.StoppedAt)
}

func TestCleanupDeadLaunchesLeavesLiveSessionRunning(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	rec := model.LaunchRecord{ID: "sess-1", Adapter: "claude-code", Status: model.StatusRunning, PID: os.Getpid(), Cwd: "/tmp/work"}
	if st_, err := process.StartTime(os.Getpid()); err == nil {
		rec.ProcessStartTime = st_
	}
	st.UpsertLaunch(rec.ID, rec)

	dead := tk.CleanupDeadLaunches()
	assert.Empty(t, dead)

	got, _ := st.GetLaunch("sess-1")
	assert.Equal(t, model.StatusRunning, got.Status)
}

// Boundary Scenario #3: recycled pid. A running record's pid is still
// alive, but the live process's start time no longer matches the one
// recorded at launch — the OS has handed that pid to an unrelated
// process. CleanupDeadLaunches must not trust IsProcessAlive alone.
func TestCleanupDeadLaunchesDetectsRecycledPID(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	rec := model.LaunchRecord{
		ID:               "sess-1",
		Adapter:          "claude-code",
		Status:           model.StatusRunning,
		PID:              os.Getpid(),
		ProcessStartTime: "1", // far from this test process's real start tick
		Cwd:              "/tmp/work",
	}
	st.UpsertLaunch(rec.ID, rec)

	dead := tk.CleanupDeadLaunches()
	require.Equal(t, []string{"sess-1"}, dead)

	got, _ := st.GetLaunch("sess-1")
	assert.Equal(t, model.StatusStopped, got.Status)
}

// Boundary Scenario #2: pending -> stable promotion. Track collapses a
// pending-<pid> record into a newly-assigned stable id once the adapter's
// own id matches by pid, carrying caller-set fields forward and rewriting
// the auto-lock.
func TestTrackCollapsesPendingByPID(t *testing.T) {
	tk, st, lm := newTestTracker(t)

	pending := model.LaunchRecord{
		ID: model.PendingID(4242), Adapter: "claude-code", Status: model.StatusRunning,
		PID: 4242, Cwd: "/tmp/work", Prompt: "do the thing",
	}
	tk.Track(pending)
	_, err := lm.AutoLock("/tmp/work", pending.ID)
	require.NoError(t, err)

	stable := model.LaunchRecord{
		ID: "stable-uuid", Adapter: "claude-code", Status: model.StatusRunning,
		PID: 4242, Cwd: "/tmp/work",
	}
	tk.Track(stable)

	_, stillPending := st.GetLaunch(pending.ID)
	assert.False(t, stillPending)

	got, ok := st.GetLaunch("stable-uuid")
	require.True(t, ok)
	assert.Equal(t, "do the thing", got.Prompt, "prompt should carry forward from the pending record")

	lock, ok := lm.Check("/tmp/work")
	require.True(t, ok)
	assert.Equal(t, "stable-uuid", lock.SessionID, "auto-lock should be rewritten to the stable id")
}

func TestReconcileAndEnrichCollapsesPendingByPIDOnDiscover(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	pending := model.LaunchRecord{
		ID: model.PendingID(99), Adapter: "claude-code", Status: model.StatusRunning,
		PID: 99, ProcessStartTime: "1000", Cwd: "/tmp/work", StartedAt: time.Now(),
	}
	st.UpsertLaunch(pending.ID, pending)

	discovered := []model.DiscoveredSession{
		{ID: "stable-uuid", Adapter: "claude-code", Status: model.StatusRunning, PID: 99, ProcessStartTime: "1000", StartedAt: time.Now()},
	}

	rr := tk.ReconcileAndEnrich(discovered, map[string]bool{"claude-code": true})
	require.Len(t, rr.Sessions, 1)
	assert.Equal(t, "stable-uuid", rr.Sessions[0].ID)

	_, stillPending := st.GetLaunch(pending.ID)
	assert.False(t, stillPending)
}

// The recycled-pid defense must also stop a pending record from
// collapsing into an unrelated discovered session that merely reused the
// same pid after the original process died.
func TestReconcileAndEnrichRefusesRecycledPIDCollapse(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	pending := model.LaunchRecord{
		ID: model.PendingID(99), Adapter: "claude-code", Status: model.StatusRunning,
		PID: 99, ProcessStartTime: "1000", Cwd: "/tmp/work", StartedAt: time.Now(),
	}
	st.UpsertLaunch(pending.ID, pending)

	discovered := []model.DiscoveredSession{
		// Same pid, but a start time far outside the 5-second tolerance:
		// an unrelated process that started long after the original died.
		{ID: "unrelated-uuid", Adapter: "claude-code", Status: model.StatusRunning, PID: 99, ProcessStartTime: "50000", StartedAt: time.Now()},
	}

	rr := tk.ReconcileAndEnrich(discovered, map[string]bool{"claude-code": true})

	_, stillPending := st.GetLaunch(pending.ID)
	assert.True(t, stillPending, "pending record must not collapse into an unrelated process sharing its recycled pid")

	var sawUnrelated bool
	for _, s := range rr.Sessions {
		if s.ID == "unrelated-uuid" {
			sawUnrelated = true
		}
	}
	assert.True(t, sawUnrelated)
}

// Grace window: a just-launched record not yet corroborated by the
// adapter's own discover() is still reported running, not disappeared.
func TestReconcileAndEnrichHonorsGraceWindow(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	rec := model.LaunchRecord{
		ID: "fresh", Adapter: "claude-code", Status: model.StatusRunning,
		StartedAt: time.Now(), Cwd: "/tmp/work",
	}
	st.UpsertLaunch(rec.ID, rec)

	rr := tk.ReconcileAndEnrich(nil, map[string]bool{"claude-code": true})
	require.Len(t, rr.Sessions, 1)
	assert.True(t, rr.Sessions[0].InGrace)
	assert.Empty(t, rr.StoppedLaunchIDs)

	got, _ := st.GetLaunch("fresh")
	assert.Equal(t, model.StatusRunning, got.Status)
}

// Disappearance: once the grace window has passed and the owning
// adapter succeeded this cycle without reporting the id, the record is
// marked stopped and returned for lock release.
func TestReconcileAndEnrichDetectsDisappearanceAfterGrace(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	rec := model.LaunchRecord{
		ID: "gone", Adapter: "claude-code", Status: model.StatusRunning,
		StartedAt: time.Now().Add(-GraceWindow - time.Second), Cwd: "/tmp/work",
	}
	st.UpsertLaunch(rec.ID, rec)

	rr := tk.ReconcileAndEnrich(nil, map[string]bool{"claude-code": true})
	assert.Empty(t, rr.Sessions)
	require.Equal(t, []string{"gone"}, rr.StoppedLaunchIDs)

	got, _ := st.GetLaunch("gone")
	assert.Equal(t, model.StatusStopped, got.Status)
}

// A failing adapter this cycle must not cause its sessions to be
// declared disappeared — the fan-out layer already excludes it from
// succeededAdapters, and reconciliation must honor that.
func TestReconcileAndEnrichSkipsDisappearanceForFailingAdapter(t *testing.T) {
	tk, st, _ := newTestTracker(t)

	rec := model.LaunchRecord{
		ID: "maybe-still-there", Adapter: "codex", Status: model.StatusRunning,
		StartedAt: time.Now().Add(-GraceWindow - time.Second), Cwd: "/tmp/work",
	}
	st.UpsertLaunch(rec.ID, rec)

	rr := tk.ReconcileAndEnrich(nil, map[string]bool{})
	assert.Empty(t, rr.StoppedLaunchIDs)

	got, _ := st.GetLaunch("maybe-still-there")
	assert.Equal(t, model.StatusRunning, got.Status)
}

// RemoveSession unconditionally removes a record regardless of status,
// the behavior stop --force relies on for a ghost pending entry.
func TestRemoveSessionDeletesRegardlessOfStatus(t *testing.T) {
	tk, st, _ := newTestTracker(t)
	st.UpsertLaunch("ghost", model.LaunchRecord{ID: "ghost", Status: model.StatusRunning})

	tk.RemoveSession("ghost")

	_, ok := st.GetLaunch("ghost")
	assert.False(t, ok)
}

func TestOnSessionExitIsIdempotent(t *testing.T) {
	tk, st, _ := newTestTracker(t)
	st.UpsertLaunch("s", model.LaunchRecord{ID: "s", Status: model.StatusRunning})

	tk.OnSessionExit("s")
	got, _ := st.GetLaunch("s")
	stoppedAt := got.StoppedAt
	require.NotNil(t, stoppedAt)

	tk.OnSessionExit("s")
	got, _ = st.GetLaunch("s")
	assert.Same(t, stoppedAt, got.StoppedAt, "second call must not touch an already-stopped record")
}

// Pending-id resolution: ResolvePendingID only promotes a pending id when the
// rediscovered pid actually matches; a non-matching discover leaves the
// pending id untouched rather than guessing.
func TestResolvePendingIDPromotesOnMatch(t *testing.T) {
	tk, st, _ := newTestTracker(t)
	pending := model.LaunchRecord{ID: model.PendingID(7), Adapter: "claude-code", PID: 7, Status: model.StatusRunning}
	st.UpsertLaunch(pending.ID, pending)

	discover := func(adapter string) ([]model.DiscoveredSession, error) {
		return []model.DiscoveredSession{{ID: "resolved-uuid", Adapter: "claude-code", PID: 7}}, nil
	}

	resolved := tk.ResolvePendingID(pending.ID, discover)
	assert.Equal(t, "resolved-uuid", resolved)
	_, ok := st.GetLaunch("resolved-uuid")
	assert.True(t, ok)
}

func TestResolvePendingIDLeavesUnresolvedOnNoMatch(t *testing.T) {
	tk, st, _ := newTestTracker(t)
	pending := model.LaunchRecord{ID: model.PendingID(7), Adapter: "claude-code", PID: 7, Status: model.StatusRunning}
	st.UpsertLaunch(pending.ID, pending)

	discover := func(adapter string) ([]model.DiscoveredSession, error) {
		return []model.DiscoveredSession{{ID: "unrelated", Adapter: "claude-code", PID: 123}}, nil
	}

	resolved := tk.ResolvePendingID(pending.ID, discover)
	assert.Equal(t, pending.ID, resolved)
}

func TestResolvePendingSessionsInvokesCallbackPerMatch(t *testing.T) {
	tk, st, _ := newTestTracker(t)
	pending := model.LaunchRecord{ID: model.PendingID(11), Adapter: "claude-code", PID: 11, Status: model.StatusRunning}
	st.UpsertLaunch(pending.ID, pending)

	discover := func(adapter string) ([]model.DiscoveredSession, error) {
		return []model.DiscoveredSession{{ID: "resolved-uuid", Adapter: "claude-code", PID: 11}}, nil
	}

	var gotPending, gotStable string
	tk.ResolvePendingSessions(discover, func(pendingID, stableID string) {
		gotPending, gotStable = pendingID, stableID
	})

	assert.Equal(t, pending.ID, gotPending)
	assert.Equal(t, "resolved-uuid", gotStable)
}
