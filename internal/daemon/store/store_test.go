package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return New(path, logrus.NewEntry(logrus.New())).WithDebounce(5 * time.Millisecond), path
}

func TestUpsertAndGetLaunch(t *testing.T) {
	s, _ := newTestStore(t)
	rec := model.LaunchRecord{ID: "abc123", Adapter: "claude-code", Cwd: "/tmp/work"}
	s.UpsertLaunch(rec.ID, rec)

	got, ok := s.GetLaunch(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.Adapter, got.Adapter)

	all := s.GetLaunches()
	assert.Len(t, all, 1)
}

func TestRemoveLaunch(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpsertLaunch("a", model.LaunchRecord{ID: "a"})
	s.RemoveLaunch("a")
	_, ok := s.GetLaunch("a")
	assert.False(t, ok)
}

func TestPersistAndReload(t *testing.T) {
	s, path := newTestStore(t)
	s.UpsertLock("/tmp/work", model.Lock{Directory: "/tmp/work", Type: model.LockType("auto")})
	require.NoError(t, s.Persist())

	reloaded := New(path, logrus.NewEntry(logrus.New()))
	lock, ok := reloaded.GetLock("/tmp/work")
	require.True(t, ok)
	assert.Equal(t, "/tmp/work", lock.Directory)
}

func TestLoadMalformedStateStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	s := New(path, logrus.NewEntry(logrus.New()))
	assert.Empty(t, s.GetLaunches())
}

func TestDebouncedFlushClearsDirty(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpsertFuse("/tmp/a", model.FuseTimer{Directory: "/tmp/a"})
	assert.True(t, s.Dirty())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Dirty())
}
