// Package fuse implements persistent single-shot timers keyed by
// directory, used to reclaim heavy per-directory infrastructure after a
// session goes idle. Timers are mirrored in the state store so an armed
// fuse survives a daemon restart.
package fuse

import (
	"context"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/sirupsen/logrus"
)

// DefaultTTL is used when a caller does not specify one.
const DefaultTTL = 10 * time.Minute

// Options configure a fuse being set.
type Options struct {
	Directory string
	SessionID string
	TTL       time.Duration
	OnExpire  string
	Label     string
}

// Engine owns the in-memory timer handles mirrored by FuseTimer records
// in the store. Persisted fuse state is mutated by the
// RPC-triggered operations, which run on the dispatch queue, and by
// fire, which runs from a timer callback or the CheckExpired backstop;
// e.mu guards the in-memory timer map and fire's read-and-remove of the
// persisted fuse.
type Engine struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	store   *store.Store
	logger  *logrus.Entry
	onFired func(dir string, fired model.FuseTimer)
}

// New creates a fuse Engine over st. onFired is invoked after a fuse's
// action has run, for metrics/event subscribers; it may be nil.
func New(st *store.Store, logger *logrus.Entry, onFired func(dir string, fired model.FuseTimer)) *Engine {
	return &Engine{
		timers:  make(map[string]*time.Timer),
		store:   st,
		logger:  logger,
		onFired: onFired,
	}
}

// SetFuse cancels any existing fuse for opts.Directory, persists a new
// FuseTimer, and arms an in-memory timer for it.
func (e *Engine) SetFuse(opts Options) model.FuseTimer {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked(opts.Directory)

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	f := model.FuseTimer{
		Directory: opts.Directory,
		ExpiresAt: time.Now().Add(ttl),
		SessionID: opts.SessionID,
		TTLMs:     ttl.Milliseconds(),
		OnExpire:  opts.OnExpire,
		Label:     opts.Label,
	}
	e.store.UpsertFuse(opts.Directory, f)
	e.armLocked(f)
	return f
}

// ExtendFuse resets expiresAt on an existing fuse and re-arms it.
// Returns false if no fuse exists for directory.
func (e *Engine) ExtendFuse(directory string, ttl time.Duration) (model.FuseTimer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.store.GetFuse(directory)
	if !ok {
		return model.FuseTimer{}, false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	existing.ExpiresAt = time.Now().Add(ttl)
	existing.TTLMs = ttl.Milliseconds()

	if t, ok := e.timers[directory]; ok {
		t.Stop()
	}
	e.store.UpsertFuse(directory, existing)
	e.armLocked(existing)
	return existing, true
}

// CancelFuse clears the in-memory timer and removes the persisted
// FuseTimer. Idempotent.
func (e *Engine) CancelFuse(directory string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(directory)
	e.store.RemoveFuse(directory)
}

func (e *Engine) cancelLocked(directory string) {
	if t, ok := e.timers[directory]; ok {
		t.Stop()
		delete(e.timers, directory)
	}
}

// armLocked starts a timer that fires at f.ExpiresAt. Caller holds e.mu.
func (e *Engine) armLocked(f model.FuseTimer) {
	delay := time.Until(f.ExpiresAt)
	if delay < 0 {
		delay = 0
	}
	e.timers[f.Directory] = time.AfterFunc(delay, func() {
		e.fire(f.Directory)
	})
}

// fire removes the FuseTimer from persistent state, then runs its
// action. Persistent removal happens before the action so a crash
// mid-action never causes a refire on restart.
func (e *Engine) fire(directory string) {
	e.mu.Lock()
	f, ok := e.store.GetFuse(directory)
	if ok {
		e.store.RemoveFuse(directory)
		delete(e.timers, directory)
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	e.runAction(f)

	if e.onFired != nil {
		e.onFired(directory, f)
	}
}

// runAction executes the configured action: a script (cwd = directory),
// a webhook POST, or nothing if onExpire is empty. Failures are logged,
// never retried — the fuse is already gone from persisted state.
func (e *Engine) runAction(f model.FuseTimer) {
	if f.OnExpire == "" {
		return
	}

	log := e.logger.WithField("directory", f.Directory).WithField("onExpire", f.OnExpire)

	switch {
	case isURL(f.OnExpire):
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.OnExpire, nil)
		if err != nil {
			log.WithError(err).Warn("fuse webhook request construction failed")
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("fuse webhook call failed")
			return
		}
		resp.Body.Close()
	default:
		cmd := exec.Command(f.OnExpire)
		cmd.Dir = f.Directory
		if err := cmd.Run(); err != nil {
			log.WithError(err).Warn("fuse script action failed")
		}
	}
}

func isURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

// ListActive returns a snapshot of all persisted fuses.
func (e *Engine) ListActive() []model.FuseTimer {
	fuses := e.store.GetFuses()
	out := make([]model.FuseTimer, 0, len(fuses))
	for _, f := range fuses {
		out = append(out, f)
	}
	return out
}

// Resume arms timers for every persisted fuse at boot. A fuse whose
// expiresAt has already passed fires immediately. Must be called
// exactly once during daemon startup.
func (e *Engine) Resume() {
	e.mu.Lock()
	fuses := e.store.GetFuses()
	e.mu.Unlock()

	for dir, f := range fuses {
		e.mu.Lock()
		e.armLocked(f)
		e.mu.Unlock()
		_ = dir
	}
}

// CheckExpired double-checks every persisted fuse's expiresAt against
// wall clock and fires anything overdue whose in-memory timer didn't
// already fire. The fuse engine arms its own time.AfterFunc per timer,
// but a missed or late callback (e.g. during a GC pause) would
// otherwise sit expired-but-unfired until the next mutation touches it;
// this is the periodic scheduler's backstop, per SPEC_FULL.md §4.12.
func (e *Engine) CheckExpired() {
	now := time.Now()
	e.mu.Lock()
	var overdue []string
	for dir, f := range e.store.GetFuses() {
		if !f.ExpiresAt.After(now) {
			overdue = append(overdue, dir)
		}
	}
	e.mu.Unlock()

	for _, dir := range overdue {
		e.fire(dir)
	}
}

// Shutdown cancels every in-memory timer without touching persisted
// state, so the fuses resume correctly on the next boot.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for dir, t := range e.timers {
		t.Stop()
		delete(e.timers, dir)
	}
}
