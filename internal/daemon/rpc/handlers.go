package rpc

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/daemon/fuse"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/registry"
	"github.com/agentctl/agentctl/pkg/process"
)

// handlerFunc is the signature every RPC method implements. Handlers that
// mutate state route the mutation itself through core.Queue.Do so every
// write is serialized on the single cooperative goroutine; handlers that
// only read may call the store/lock manager/fuse engine directly, since
// those already guard themselves with their own mutex.
type handlerFunc func(ctx context.Context, core *daemon.Core, params json.RawMessage) (interface{}, error)

func methodTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"session.list":    sessionList,
		"session.status":  sessionStatus,
		"session.peek":    sessionPeek,
		"session.launch":  sessionLaunch,
		"session.stop":    sessionStop,
		"session.resume":  sessionResume,
		"session.prune":   sessionPrune,
		"lock.list":       lockList,
		"lock.acquire":    lockAcquire,
		"lock.release":    lockRelease,
		"fuse.list":       fuseList,
		"fuse.set":        fuseSet,
		"fuse.extend":     fuseExtend,
		"fuse.cancel":     fuseCancel,
		"daemon.status":   daemonStatus,
		"daemon.shutdown": daemonShutdown,
	}
}

// --- session.* ---

type sessionListParams struct {
	Status  string `json:"status"`
	All     bool   `json:"all"`
	Adapter string `json:"adapter"`
	Group   string `json:"group"`
}

type sessionListResult struct {
	Sessions []model.EnrichedSession `json:"sessions"`
	Warnings []string                `json:"warnings"`
}

func sessionList(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionListParams
	_ = json.Unmarshal(raw, &p)

	fanOut := core.Registry.FanOutDiscover(ctx, core.AdapterTimeout())

	var discovered []model.DiscoveredSession
	succeeded := make(map[string]bool)
	var warnings []string
	for _, r := range fanOut {
		if r.Err != nil {
			warnings = append(warnings, registry.WarningFor(r))
			core.Metrics.IncAdapterFailures()
			continue
		}
		succeeded[r.Adapter] = true
		discovered = append(discovered, r.Sessions...)
	}

	sessions := core.Queue.Do(func() interface{} {
		rr := core.Tracker.ReconcileAndEnrich(discovered, succeeded)
		for _, id := range rr.StoppedLaunchIDs {
			core.Locks.AutoUnlock(id)
			core.Metrics.IncLocksReleased()
		}
		return rr.Sessions
	}).([]model.EnrichedSession)

	filtered := make([]model.EnrichedSession, 0, len(sessions))
	for _, s := range sessions {
		if p.Adapter != "" && s.Adapter != p.Adapter {
			continue
		}
		if p.Group != "" && s.Group != p.Group {
			continue
		}
		if p.Status != "" && string(s.Status) != p.Status {
			continue
		}
		if !p.All && s.Status != model.StatusRunning {
			continue
		}
		filtered = append(filtered, s)
	}

	return sessionListResult{Sessions: filtered, Warnings: warnings}, nil
}

type sessionIDParams struct {
	ID      string `json:"id"`
	Adapter string `json:"adapter"`
}

// resolveID attempts pending->stable promotion for a single id by asking
// its owning adapter to discover again, then resolves a unique prefix
// against the launch map. Both steps run on the dispatch queue since
// resolution may mutate the launch/lock maps.
func resolveID(ctx context.Context, core *daemon.Core, id string) string {
	return core.Queue.Do(func() interface{} {
		resolved := core.Tracker.ResolvePendingID(id, func(adapter string) ([]model.DiscoveredSession, error) {
			return core.Registry.Discover(ctx, adapter)
		})
		return matchPrefixLocked(core, resolved)
	}).(string)
}

// matchPrefixLocked resolves a unique launch-id prefix. Safe to call from
// within a queued closure or standalone, since store reads are themselves
// mutex-guarded.
func matchPrefixLocked(core *daemon.Core, id string) string {
	if _, ok := core.Store.GetLaunch(id); ok {
		return id
	}
	var match string
	count := 0
	for recID := range core.Store.GetLaunches() {
		if strings.HasPrefix(recID, id) {
			match = recID
			count++
		}
	}
	if count == 1 {
		return match
	}
	return id
}

func sessionStatus(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, errors.InvalidArgument("id is required")
	}

	id := resolveID(ctx, core, p.ID)

	fanOut := core.Registry.FanOutDiscover(ctx, core.AdapterTimeout())
	var discovered []model.DiscoveredSession
	succeeded := make(map[string]bool)
	for _, r := range fanOut {
		if r.Err == nil {
			succeeded[r.Adapter] = true
			discovered = append(discovered, r.Sessions...)
		}
	}

	found, ok := core.Queue.Do(func() interface{} {
		rr := core.Tracker.ReconcileAndEnrich(discovered, succeeded)
		for _, s := range rr.Sessions {
			if s.ID == id {
				return s
			}
		}
		return nil
	}).(model.EnrichedSession)

	if !ok {
		return nil, errors.NotFound("session", p.ID)
	}
	return found, nil
}

type sessionPeekParams struct {
	ID      string `json:"id"`
	Lines   int    `json:"lines"`
	Adapter string `json:"adapter"`
}

func sessionPeek(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionPeekParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, errors.InvalidArgument("id is required")
	}

	id := resolveID(ctx, core, p.ID)

	adapterName := p.Adapter
	if adapterName == "" {
		if rec, ok := core.Store.GetLaunch(id); ok {
			adapterName = rec.Adapter
		}
	}
	if adapterName == "" {
		return nil, errors.NotFound("session", p.ID)
	}

	adapter, err := core.Registry.Get(adapterName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, core.AdapterTimeout())
	defer cancel()
	out, err := adapter.Peek(callCtx, id, p.Lines)
	if err != nil {
		return nil, errors.NotFound("session", p.ID)
	}
	return out, nil
}

type sessionLaunchParams struct {
	Adapter     string                 `json:"adapter"`
	Prompt      string                 `json:"prompt"`
	Cwd         string                 `json:"cwd"`
	Spec        string                 `json:"spec"`
	Model       string                 `json:"model"`
	Env         map[string]string      `json:"env"`
	AdapterOpts map[string]interface{} `json:"adapterOpts"`
	Group       string                 `json:"group"`
	Force       bool                   `json:"force"`
}

const defaultAdapter = "claude-code"

func sessionLaunch(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionLaunchParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Cwd == "" || p.Prompt == "" {
		return nil, errors.InvalidArgument("cwd and prompt are required")
	}
	if p.Adapter == "" {
		p.Adapter = defaultAdapter
	}

	adapter, err := core.Registry.Get(p.Adapter)
	if err != nil {
		return nil, err
	}

	if !p.Force {
		if l, locked := core.Locks.Check(p.Cwd); locked {
			return nil, errors.LockConflict(p.Cwd, l.SessionID+l.LockedBy)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, core.AdapterTimeout())
	defer cancel()
	rec, err := adapter.Launch(callCtx, registry.LaunchOptions{
		Prompt:      p.Prompt,
		Cwd:         p.Cwd,
		Model:       p.Model,
		Env:         p.Env,
		AdapterOpts: p.AdapterOpts,
		Group:       p.Group,
	})
	if err != nil {
		return nil, errors.Internal(err, "adapter launch failed")
	}
	rec.Spec = p.Spec

	result := core.Queue.Do(func() interface{} {
		core.Fuse.CancelFuse(p.Cwd)
		core.Tracker.Track(rec)

		if _, lockErr := core.Locks.AutoLock(p.Cwd, rec.ID); lockErr != nil {
			if !p.Force {
				return lockErr
			}
		} else {
			core.Metrics.IncLocksAcquired()
		}
		core.Metrics.IncSessionsTracked(1)
		return rec
	})

	if lockErr, ok := result.(error); ok {
		return nil, lockErr
	}
	return result, nil
}

type sessionStopParams struct {
	ID      string `json:"id"`
	Adapter string `json:"adapter"`
	Force   bool   `json:"force"`
}

func sessionStop(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionStopParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, errors.InvalidArgument("id is required")
	}

	id := resolveID(ctx, core, p.ID)
	rec, ok := core.Store.GetLaunch(id)
	if !ok {
		if p.Force {
			core.Queue.Do(func() interface{} {
				core.Tracker.RemoveSession(id)
				core.Locks.AutoUnlock(id)
				return nil
			})
			return nil, nil
		}
		return nil, errors.NotFound("session", p.ID)
	}

	// A pending entry whose pid has already died is a ghost: nothing can
	// ever resolve it to a stable id, and the adapter has no record of it
	// to stop. force on it means remove outright rather than mark stopped.
	if p.Force && model.IsPendingID(rec.ID) && rec.PID != 0 && !process.IsProcessAlive(rec.PID) {
		core.Queue.Do(func() interface{} {
			core.Tracker.RemoveSession(id)
			core.Locks.AutoUnlock(id)
			core.Metrics.IncLocksReleased()
			return nil
		})
		return nil, nil
	}

	adapterName := p.Adapter
	if adapterName == "" {
		adapterName = rec.Adapter
	}
	adapter, err := core.Registry.Get(adapterName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, core.AdapterTimeout())
	defer cancel()
	if err := adapter.Stop(callCtx, id, p.Force); err != nil && !p.Force {
		return nil, errors.Internal(err, "adapter stop failed")
	}

	core.Queue.Do(func() interface{} {
		core.Tracker.OnSessionExit(id)
		core.Locks.AutoUnlock(id)
		core.Metrics.IncLocksReleased()
		return nil
	})
	return nil, nil
}

type sessionResumeParams struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Adapter string `json:"adapter"`
}

func sessionResume(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p sessionResumeParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" || p.Message == "" {
		return nil, errors.InvalidArgument("id and message are required")
	}

	id := resolveID(ctx, core, p.ID)
	adapterName := p.Adapter
	if adapterName == "" {
		if rec, ok := core.Store.GetLaunch(id); ok {
			adapterName = rec.Adapter
		}
	}
	adapter, err := core.Registry.Get(adapterName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, core.AdapterTimeout())
	defer cancel()
	if err := adapter.Resume(callCtx, id, p.Message); err != nil {
		return nil, errors.Internal(err, "adapter resume failed")
	}
	return nil, nil
}

type sessionPruneResult struct {
	Pruned int `json:"pruned"`
}

func sessionPrune(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	dead := core.Queue.Do(func() interface{} {
		ids := core.Tracker.CleanupDeadLaunches()
		for _, id := range ids {
			core.Locks.AutoUnlock(id)
			core.Metrics.IncLocksReleased()
		}
		return ids
	}).([]string)
	return sessionPruneResult{Pruned: len(dead)}, nil
}

// --- lock.* ---

func lockList(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	return core.Locks.ListAll(), nil
}

type lockAcquireParams struct {
	Directory string `json:"directory"`
	By        string `json:"by"`
	Reason    string `json:"reason"`
}

func lockAcquire(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p lockAcquireParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Directory == "" {
		return nil, errors.InvalidArgument("directory is required")
	}
	result := core.Queue.Do(func() interface{} {
		lock, err := core.Locks.ManualLock(p.Directory, p.By, p.Reason)
		if err != nil {
			return err
		}
		core.Metrics.IncLocksAcquired()
		return lock
	})
	if err, ok := result.(error); ok {
		return nil, err
	}
	return result, nil
}

type lockReleaseParams struct {
	Directory string `json:"directory"`
}

func lockRelease(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p lockReleaseParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Directory == "" {
		return nil, errors.InvalidArgument("directory is required")
	}
	core.Queue.Do(func() interface{} {
		core.Locks.ManualUnlock(p.Directory)
		core.Metrics.IncLocksReleased()
		return nil
	})
	return nil, nil
}

// --- fuse.* ---

func fuseList(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	return core.Fuse.ListActive(), nil
}

type fuseSetParams struct {
	Directory string `json:"directory"`
	SessionID string `json:"sessionId"`
	TTLMs     int64  `json:"ttlMs"`
	OnExpire  string `json:"onExpire"`
	Label     string `json:"label"`
}

func fuseSet(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p fuseSetParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Directory == "" {
		return nil, errors.InvalidArgument("directory is required")
	}
	ttl := core.FuseDefaultTTL()
	if p.TTLMs > 0 {
		ttl = time.Duration(p.TTLMs) * time.Millisecond
	}

	result := core.Queue.Do(func() interface{} {
		f := core.Fuse.SetFuse(fuse.Options{
			Directory: p.Directory,
			SessionID: p.SessionID,
			TTL:       ttl,
			OnExpire:  p.OnExpire,
			Label:     p.Label,
		})
		core.Metrics.IncFusesArmed()
		return f
	})
	return result, nil
}

type fuseExtendParams struct {
	Directory string `json:"directory"`
	TTLMs     int64  `json:"ttlMs"`
}

func fuseExtend(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p fuseExtendParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Directory == "" {
		return nil, errors.InvalidArgument("directory is required")
	}
	ttl := core.FuseDefaultTTL()
	if p.TTLMs > 0 {
		ttl = time.Duration(p.TTLMs) * time.Millisecond
	}

	type extendOutcome struct {
		fuse model.FuseTimer
		ok   bool
	}
	out := core.Queue.Do(func() interface{} {
		f, ok := core.Fuse.ExtendFuse(p.Directory, ttl)
		return extendOutcome{fuse: f, ok: ok}
	}).(extendOutcome)

	if !out.ok {
		return nil, errors.NotFound("fuse", p.Directory)
	}
	return out.fuse, nil
}

type fuseCancelParams struct {
	Directory string `json:"directory"`
}

func fuseCancel(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	var p fuseCancelParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Directory == "" {
		return nil, errors.InvalidArgument("directory is required")
	}
	core.Queue.Do(func() interface{} {
		core.Fuse.CancelFuse(p.Directory)
		core.Metrics.IncFusesCancelled()
		return nil
	})
	return nil, nil
}

// --- daemon.* ---

type daemonStatusResult struct {
	PID      int     `json:"pid"`
	Uptime   float64 `json:"uptime"`
	Sessions int     `json:"sessions"`
	Locks    int     `json:"locks"`
	Fuses    int     `json:"fuses"`
}

func daemonStatus(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	snap := core.Metrics.Snapshot()
	return daemonStatusResult{
		PID:      os.Getpid(),
		Uptime:   snap.UptimeSeconds,
		Sessions: len(core.Store.GetLaunches()),
		Locks:    len(core.Store.GetLocks()),
		Fuses:    len(core.Store.GetFuses()),
	}, nil
}

// ShutdownRequests is signaled by daemon.shutdown and consumed by the
// `daemon foreground` command (runDaemonForeground in cmd/agentctl),
// which then begins its graceful-shutdown sequence.
var ShutdownRequests = make(chan struct{}, 1)

func daemonShutdown(ctx context.Context, core *daemon.Core, raw json.RawMessage) (interface{}, error) {
	select {
	case ShutdownRequests <- struct{}{}:
	default:
	}
	return nil, nil
}
