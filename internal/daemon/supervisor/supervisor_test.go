package supervisor

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRespawnsOnCrash(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "supervisor.pid")

	var spawns int
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	log := logrus.NewEntry(logrus.New())
	err := Run(ctx, log, Options{
		Command: func() *exec.Cmd {
			spawns++
			return exec.Command("true")
		},
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
		ResetAfter:  time.Hour, // never resets within this test's window
		PidPath:     pidPath,
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, spawns, 2, "expected multiple respawns within the test window")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "supervisor.pid")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	log := logrus.NewEntry(logrus.New())
	err := Run(ctx, log, Options{
		Command: func() *exec.Cmd {
			return exec.Command("sleep", "5")
		},
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
		ResetAfter:  time.Hour,
		PidPath:     pidPath,
	})

	require.NoError(t, err)
}
