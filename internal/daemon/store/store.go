// Package store holds the daemon's single persistent JSON document:
// launch records, locks, and fuse timers. It is the only component that
// touches disk for daemon state.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/sirupsen/logrus"
)

// DefaultFlushDebounce is how long the store waits after a mutation
// before flushing to disk, coalescing bursts of back-to-back changes.
const DefaultFlushDebounce = 1 * time.Second

// Store is the in-memory, mutex-guarded mirror of the persistent
// document. Every public method is safe for concurrent use, though the
// daemon's single-writer dispatch queue (see internal/daemon/dispatch)
// means mutations are already serialized before they reach the store.
type Store struct {
	mu       sync.RWMutex
	doc      *model.PersistentDocument
	path     string
	debounce time.Duration
	logger   *logrus.Entry

	flushMu    sync.Mutex
	flushTimer *time.Timer
	dirty      bool
}

// New creates a Store backed by path, loading any existing document.
// A malformed document is logged and replaced with an empty one —
// the store never fails to start because of on-disk corruption.
func New(path string, logger *logrus.Entry) *Store {
	s := &Store{
		path:     path,
		debounce: DefaultFlushDebounce,
		logger:   logger,
	}
	s.doc = s.load()
	return s
}

// WithDebounce overrides the flush debounce interval; daemon.New passes
// the configured FlushDebounce, and tests pass a short one.
func (s *Store) WithDebounce(d time.Duration) *Store {
	s.debounce = d
	return s
}

func (s *Store) load() *model.PersistentDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("failed to read state file, starting empty")
		}
		return model.NewDocument()
	}

	var doc model.PersistentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.WithError(err).Warn("state file is malformed, discarding and starting empty")
		return model.NewDocument()
	}
	if doc.Launches == nil {
		doc.Launches = make(map[string]model.LaunchRecord)
	}
	if doc.Locks == nil {
		doc.Locks = make(map[string]model.Lock)
	}
	if doc.Fuses == nil {
		doc.Fuses = make(map[string]model.FuseTimer)
	}
	return &doc
}

// --- launches ---

// GetLaunches returns a snapshot of all launch records.
func (s *Store) GetLaunches() map[string]model.LaunchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.LaunchRecord, len(s.doc.Launches))
	for k, v := range s.doc.Launches {
		out[k] = v
	}
	return out
}

// GetLaunch returns a single launch record.
func (s *Store) GetLaunch(id string) (model.LaunchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.doc.Launches[id]
	return rec, ok
}

// UpsertLaunch writes or replaces a launch record and schedules a flush.
func (s *Store) UpsertLaunch(id string, rec model.LaunchRecord) {
	s.mu.Lock()
	s.doc.Launches[id] = rec
	s.mu.Unlock()
	s.scheduleFlush()
}

// RemoveLaunch deletes a launch record, if present, and schedules a flush.
func (s *Store) RemoveLaunch(id string) {
	s.mu.Lock()
	_, existed := s.doc.Launches[id]
	delete(s.doc.Launches, id)
	s.mu.Unlock()
	if existed {
		s.scheduleFlush()
	}
}

// --- locks ---

// GetLocks returns a snapshot of all locks.
func (s *Store) GetLocks() map[string]model.Lock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Lock, len(s.doc.Locks))
	for k, v := range s.doc.Locks {
		out[k] = v
	}
	return out
}

// GetLock returns a single lock.
func (s *Store) GetLock(dir string) (model.Lock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.doc.Locks[dir]
	return l, ok
}

// UpsertLock writes or replaces a lock and schedules a flush.
func (s *Store) UpsertLock(dir string, l model.Lock) {
	s.mu.Lock()
	s.doc.Locks[dir] = l
	s.mu.Unlock()
	s.scheduleFlush()
}

// RemoveLock deletes a lock, if present, and schedules a flush.
func (s *Store) RemoveLock(dir string) {
	s.mu.Lock()
	_, existed := s.doc.Locks[dir]
	delete(s.doc.Locks, dir)
	s.mu.Unlock()
	if existed {
		s.scheduleFlush()
	}
}

// --- fuses ---

// GetFuses returns a snapshot of all fuse timers.
func (s *Store) GetFuses() map[string]model.FuseTimer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.FuseTimer, len(s.doc.Fuses))
	for k, v := range s.doc.Fuses {
		out[k] = v
	}
	return out
}

// GetFuse returns a single fuse timer.
func (s *Store) GetFuse(dir string) (model.FuseTimer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.doc.Fuses[dir]
	return f, ok
}

// UpsertFuse writes or replaces a fuse timer and schedules a flush.
func (s *Store) UpsertFuse(dir string, f model.FuseTimer) {
	s.mu.Lock()
	s.doc.Fuses[dir] = f
	s.mu.Unlock()
	s.scheduleFlush()
}

// RemoveFuse deletes a fuse timer, if present, and schedules a flush.
func (s *Store) RemoveFuse(dir string) {
	s.mu.Lock()
	_, existed := s.doc.Fuses[dir]
	delete(s.doc.Fuses, dir)
	s.mu.Unlock()
	if existed {
		s.scheduleFlush()
	}
}

// scheduleFlush arms (or re-arms) the debounce timer. Concurrent
// mutations within the debounce window coalesce into a single write.
func (s *Store) scheduleFlush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirty = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(s.debounce, func() {
		if err := s.Persist(); err != nil {
			s.logger.WithError(err).Warn("failed to flush state file")
		}
	})
}

// Persist writes the current document to disk synchronously, regardless
// of the debounce timer. Safe to call directly (e.g. on shutdown) in
// addition to the debounced path. Flush failures are logged, never
// propagated to callers of the mutating operations that triggered them.
func (s *Store) Persist() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	s.flushMu.Lock()
	s.dirty = false
	s.flushMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Dirty reports whether a flush is currently pending.
func (s *Store) Dirty() bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.dirty
}
