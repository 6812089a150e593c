package fuse

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// TestCheckExpiredFiresMissedTimer exercises the backstop path directly:
// a fuse recorded in the store as already-expired, with no in-memory
// timer armed for it (simulating a missed AfterFunc callback), is
// caught and fired by the next CheckExpired call.
func TestCheckExpiredFiresMissedTimer(t *testing.T) {
	tmpDir := t.TempDir()
	st := store.New(filepath.Join(tmpDir, "state.json"), logrus.NewEntry(logrus.New()))

	expired := model.FuseTimer{
		Directory: "/tmp/agentctl-missed-fuse",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	st.UpsertFuse(expired.Directory, expired)

	e := New(st, logrus.NewEntry(logrus.New()), nil)
	// Deliberately skip Resume/SetFuse so no in-memory timer is armed,
	// reproducing "missed callback during a GC pause."

	e.CheckExpired()

	assert.Empty(t, e.ListActive())
	_, ok := st.GetFuse(expired.Directory)
	assert.False(t, ok)
}
