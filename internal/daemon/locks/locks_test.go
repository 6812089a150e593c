package locks

import (
	"path/filepath"
	"testing"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "state.json"), logrus.NewEntry(logrus.New()))
	return New(st)
}

func TestAutoLockIsIdempotentForSameSession(t *testing.T) {
	m := newTestManager(t)
	first, err := m.AutoLock("/tmp/work", "session-1")
	require.NoError(t, err)

	second, err := m.AutoLock("/tmp/work", "session-1")
	require.NoError(t, err)
	assert.Equal(t, first.Directory, second.Directory)
}

func TestAutoLockConflictsWithAnotherSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/work", "session-1")
	require.NoError(t, err)

	_, err = m.AutoLock("/tmp/work", "session-2")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLockConflict, errors.GetCode(err))
}

func TestManualLockConflictsWithExistingAutoLock(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/work", "session-1")
	require.NoError(t, err)

	_, err = m.ManualLock("/tmp/work", "alice", "doing a rebase")
	require.Error(t, err)
}

func TestManualUnlockIgnoresAutoLocks(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/work", "session-1")
	require.NoError(t, err)

	m.ManualUnlock("/tmp/work")

	lock, ok := m.Check("/tmp/work")
	require.True(t, ok)
	assert.Equal(t, model.LockAuto, lock.Type)
}

func TestAutoUnlockRemovesOnlyMatchingSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/a", "session-1")
	require.NoError(t, err)
	_, err = m.AutoLock("/tmp/b", "session-2")
	require.NoError(t, err)

	removed := m.AutoUnlock("session-1")
	assert.Equal(t, 1, removed)

	_, ok := m.Check("/tmp/a")
	assert.False(t, ok)
	_, ok = m.Check("/tmp/b")
	assert.True(t, ok)
}

func TestUpdateAutoLockSessionIDRewritesOwner(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/work", "pending-123")
	require.NoError(t, err)

	m.UpdateAutoLockSessionID("pending-123", "stable-abc")

	lock, ok := m.Check("/tmp/work")
	require.True(t, ok)
	assert.Equal(t, "stable-abc", lock.SessionID)
}

func TestListAllReturnsEveryLock(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AutoLock("/tmp/a", "session-1")
	require.NoError(t, err)
	_, err = m.ManualLock("/tmp/b", "alice", "")
	require.NoError(t, err)

	assert.Len(t, m.ListAll(), 2)
}
