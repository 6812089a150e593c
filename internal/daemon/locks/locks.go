// Package locks implements directory-keyed mutual exclusion over the
// state store: auto-locks owned by session lifecycle, and manual locks
// owned by explicit RPC calls.
package locks

import (
	"path/filepath"
	"time"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
)

// Manager serializes check/acquire/release operations over the store's
// lock map. Canonicalization is "absolute path, symlinks left intact" —
// matching how users name directories on the command line.
type Manager struct {
	store *store.Store
}

// New creates a lock Manager over st.
func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// canonicalize resolves dir to an absolute path without following
// symlinks and without a trailing separator.
func canonicalize(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// Check returns the current lock for dir, if any. Never fails.
func (m *Manager) Check(dir string) (model.Lock, bool) {
	key, err := canonicalize(dir)
	if err != nil {
		return model.Lock{}, false
	}
	return m.store.GetLock(key)
}

// AutoLock creates an auto-lock owned by sessionID. Idempotent when the
// existing lock is already an auto-lock owned by the same session.
func (m *Manager) AutoLock(dir, sessionID string) (model.Lock, error) {
	key, err := canonicalize(dir)
	if err != nil {
		return model.Lock{}, errors.InvalidArgument(err.Error())
	}

	if existing, ok := m.store.GetLock(key); ok {
		if existing.Type == model.LockAuto && existing.SessionID == sessionID {
			return existing, nil
		}
		return model.Lock{}, errors.LockConflict(key, lockOwnerLabel(existing))
	}

	lock := model.Lock{
		Directory: key,
		Type:      model.LockAuto,
		SessionID: sessionID,
		LockedAt:  time.Now(),
	}
	m.store.UpsertLock(key, lock)
	return lock, nil
}

// AutoUnlock removes every auto-lock owned by sessionID. Idempotent;
// returns the number of locks removed.
func (m *Manager) AutoUnlock(sessionID string) int {
	removed := 0
	for key, lock := range m.store.GetLocks() {
		if lock.Type == model.LockAuto && lock.SessionID == sessionID {
			m.store.RemoveLock(key)
			removed++
		}
	}
	return removed
}

// ManualLock creates a manual lock. Fails with LockConflict if any lock
// already exists for dir.
func (m *Manager) ManualLock(dir, by, reason string) (model.Lock, error) {
	key, err := canonicalize(dir)
	if err != nil {
		return model.Lock{}, errors.InvalidArgument(err.Error())
	}

	if existing, ok := m.store.GetLock(key); ok {
		return model.Lock{}, errors.LockConflict(key, lockOwnerLabel(existing))
	}

	lock := model.Lock{
		Directory: key,
		Type:      model.LockManual,
		LockedBy:  by,
		Reason:    reason,
		LockedAt:  time.Now(),
	}
	m.store.UpsertLock(key, lock)
	return lock, nil
}

// ManualUnlock removes the lock for dir if it is a manual lock.
// Idempotent; silently no-ops if the lock is missing or is an auto-lock.
func (m *Manager) ManualUnlock(dir string) {
	key, err := canonicalize(dir)
	if err != nil {
		return
	}
	lock, ok := m.store.GetLock(key)
	if !ok || lock.Type != model.LockManual {
		return
	}
	m.store.RemoveLock(key)
}

// UpdateAutoLockSessionID rewrites sessionId on every auto-lock owned by
// oldID to newID. Idempotent; called during pending->stable promotion.
func (m *Manager) UpdateAutoLockSessionID(oldID, newID string) {
	for key, lock := range m.store.GetLocks() {
		if lock.Type == model.LockAuto && lock.SessionID == oldID {
			lock.SessionID = newID
			m.store.UpsertLock(key, lock)
		}
	}
}

// ListAll returns a snapshot of every lock.
func (m *Manager) ListAll() []model.Lock {
	locks := m.store.GetLocks()
	out := make([]model.Lock, 0, len(locks))
	for _, l := range locks {
		out = append(out, l)
	}
	return out
}

func lockOwnerLabel(l model.Lock) string {
	if l.Type == model.LockManual {
		if l.LockedBy != "" {
			return l.LockedBy
		}
		return "manual lock"
	}
	return l.SessionID
}
