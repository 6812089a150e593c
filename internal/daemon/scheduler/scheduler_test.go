package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsFuseTick(t *testing.T) {
	tmpDir := t.TempDir()
	log := logrus.NewEntry(logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := daemon.New(ctx, daemon.Config{
		StatePath:      filepath.Join(tmpDir, "state.json"),
		AdapterTimeout: time.Second,
		FuseDefaultTTL: time.Minute,
		FlushDebounce:  10 * time.Millisecond,
	}, log)
	defer core.Shutdown()

	// Persist an already-expired fuse with no timer armed for it, so only
	// the scheduler's once-a-second CheckExpired tick can fire it.
	core.Queue.Do(func() interface{} {
		core.Store.UpsertFuse("/tmp/agentctl-scheduler-test", model.FuseTimer{
			Directory: "/tmp/agentctl-scheduler-test",
			ExpiresAt: time.Now().Add(-time.Minute),
		})
		return nil
	})

	s := New(core, log, 50*time.Millisecond, 50*time.Millisecond)
	s.Start()
	defer s.Stop(context.Background())

	time.Sleep(1500 * time.Millisecond)
	assert.Empty(t, core.Fuse.ListActive(), "expired fuse should have been fired by the scheduler's double-check tick")
}
