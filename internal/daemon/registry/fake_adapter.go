package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/pkg/process"
	"github.com/google/uuid"
)

// FakeAdapter is an in-memory adapter implementing the Adapter contract,
// used by the session tracker and RPC tests. It never touches disk or
// spawns real subprocesses.
type FakeAdapter struct {
	mu       sync.Mutex
	name     string
	sessions map[string]model.DiscoveredSession
	// DiscoverErr, when set, is returned by every Discover call instead
	// of the stored sessions, to exercise adapter-failure paths.
	DiscoverErr error
	// DiscoverDelay simulates a slow scan for timeout tests.
	DiscoverDelay time.Duration
	// NextPID, when set, is used as the next Launch call's pid (and the
	// /proc start-time sample taken from it) instead of this test
	// process's own pid. Lets tests simulate a dead or recycled pid by
	// launching against one pid and later re-seeding the same id under a
	// different one.
	NextPID int
}

// NewFakeAdapter creates a FakeAdapter named name.
func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{name: name, sessions: make(map[string]model.DiscoveredSession)}
}

func (f *FakeAdapter) Name() string { return f.name }

// Seed injects a discovered session directly, bypassing Launch, for
// tests that want to control the on-disk-scan view precisely.
func (f *FakeAdapter) Seed(s model.DiscoveredSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

// Remove deletes a session from the fake's view, simulating a process
// disappearing from the adapter's scan.
func (f *FakeAdapter) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

func (f *FakeAdapter) Discover(ctx context.Context) ([]model.DiscoveredSession, error) {
	if f.DiscoverDelay > 0 {
		select {
		case <-time.After(f.DiscoverDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DiscoverErr != nil {
		return nil, f.DiscoverErr
	}

	out := make([]model.DiscoveredSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *FakeAdapter) IsAlive(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[id]
	return ok
}

func (f *FakeAdapter) Launch(ctx context.Context, opts LaunchOptions) (model.LaunchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pid := f.NextPID
	if pid == 0 {
		pid = os.Getpid()
	}
	startTime, _ := process.StartTime(pid)

	id := uuid.NewString()
	rec := model.LaunchRecord{
		ID:               id,
		Adapter:          f.name,
		Status:           model.StatusRunning,
		StartedAt:        time.Now(),
		PID:              pid,
		ProcessStartTime: startTime,
		Cwd:              opts.Cwd,
		Model:            opts.Model,
		Prompt:           opts.Prompt,
		Group:            opts.Group,
	}
	f.sessions[id] = model.DiscoveredSession{
		ID:               id,
		Adapter:          f.name,
		Status:           model.StatusRunning,
		Cwd:              opts.Cwd,
		Model:            opts.Model,
		PID:              pid,
		ProcessStartTime: startTime,
		StartedAt:        rec.StartedAt,
		Prompt:           opts.Prompt,
	}
	return rec, nil
}

func (f *FakeAdapter) Stop(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("fake adapter %s: unknown session %s", f.name, id)
	}
	now := time.Now()
	s.Status = model.StatusStopped
	s.StoppedAt = &now
	f.sessions[id] = s
	return nil
}

func (f *FakeAdapter) Resume(ctx context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return fmt.Errorf("fake adapter %s: unknown session %s", f.name, id)
	}
	return nil
}

func (f *FakeAdapter) Peek(ctx context.Context, id string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return "", fmt.Errorf("fake adapter %s: unknown session %s", f.name, id)
	}
	return fmt.Sprintf("fake output for %s", id), nil
}
