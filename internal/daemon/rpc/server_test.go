package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/daemon/fuse"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/internal/daemon/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, statePath string) *daemon.Core {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return daemon.New(ctx, daemon.Config{
		StatePath:      statePath,
		AdapterTimeout: time.Second,
		FuseDefaultTTL: time.Minute,
	}, logrus.NewEntry(logrus.New()))
}

func dialServer(t *testing.T, core *daemon.Core, socketPath string) net.Conn {
	t.Helper()
	srv := New(core, logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.ListenAndServe(ctx, socketPath)
	waitForSocket(t, socketPath)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Boundary Scenario: failing-adapter list. A registered adapter whose
// Discover fails must not prevent session.list from returning the other
// adapters' sessions, and the failure surfaces as a warning string rather
// than an error.
func TestSessionListSurvivesFailingAdapter(t *testing.T) {
	tmpDir := t.TempDir()
	core := newTestCore(t, filepath.Join(tmpDir, "state.json"))

	good := registry.NewFakeAdapter("claude-code")
	bad := registry.NewFakeAdapter("codex")
	bad.DiscoverErr = assert.AnError
	core.Registry.Register(good)
	core.Registry.Register(bad)

	_, err := good.Launch(context.Background(), registry.LaunchOptions{Prompt: "p", Cwd: "/tmp/work"})
	require.NoError(t, err)

	conn := dialServer(t, core, filepath.Join(tmpDir, "test.sock"))
	resp := call(t, conn, "session.list", map[string]interface{}{"all": true})
	require.Nil(t, resp.Error)

	var result sessionListResult
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Len(t, result.Sessions, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "codex")
}

// Boundary Scenario: launch race. Launching into an already-locked
// directory without force is rejected; force overrides the conflict.
func TestSessionLaunchRaceOnSameDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	core := newTestCore(t, filepath.Join(tmpDir, "state.json"))

	fake := registry.NewFakeAdapter("claude-code")
	core.Registry.Register(fake)

	conn := dialServer(t, core, filepath.Join(tmpDir, "test.sock"))

	first := call(t, conn, "session.launch", map[string]interface{}{"cwd": "/tmp/work", "prompt": "p1"})
	require.Nil(t, first.Error)

	second := call(t, conn, "session.launch", map[string]interface{}{"cwd": "/tmp/work", "prompt": "p2"})
	require.NotNil(t, second.Error)
	assert.Equal(t, "LOCK_CONFLICT", second.Error.Code)

	third := call(t, conn, "session.launch", map[string]interface{}{"cwd": "/tmp/work", "prompt": "p3", "force": true})
	assert.Nil(t, third.Error)
}

// Boundary Scenario: fuse-across-restart. A fuse armed before a restart
// is still listed as active once a fresh Core loads the same persisted
// state, mirroring what the real daemon does on respawn.
func TestFuseSurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "state.json")

	core1 := newTestCore(t, statePath)
	core1.Fuse.SetFuse(fuse.Options{Directory: "/tmp/work", SessionID: "s1", TTL: time.Hour})
	require.NoError(t, core1.Store.Persist())

	core2 := newTestCore(t, statePath)
	active := core2.Fuse.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "/tmp/work", active[0].Directory)
}

// Boundary Scenario: ghost pending entry removed by stop --force. A
// pending-<pid> record whose pid has already died is removed outright,
// not merely marked stopped.
func TestSessionStopForceRemovesGhostPendingEntry(t *testing.T) {
	tmpDir := t.TempDir()
	core := newTestCore(t, filepath.Join(tmpDir, "state.json"))

	deadCmd := exec.Command("true")
	require.NoError(t, deadCmd.Run())
	deadPID := deadCmd.Process.Pid

	pendingID := model.PendingID(deadPID)
	core.Queue.Do(func() interface{} {
		core.Tracker.Track(model.LaunchRecord{
			ID: pendingID, Adapter: "claude-code", Status: model.StatusRunning,
			PID: deadPID, Cwd: "/tmp/work",
		})
		return nil
	})

	fake := registry.NewFakeAdapter("claude-code")
	core.Registry.Register(fake)

	conn := dialServer(t, core, filepath.Join(tmpDir, "test.sock"))
	resp := call(t, conn, "session.stop", map[string]interface{}{"id": pendingID, "force": true})
	require.Nil(t, resp.Error)

	_, ok := core.Store.GetLaunch(pendingID)
	assert.False(t, ok, "ghost pending entry should be removed outright, not marked stopped")
}

// call performs one newline-JSON request against a live listener,
// exercising the exact wire framing the daemon's real clients use.
func call(t *testing.T, conn net.Conn, method string, params interface{}) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	line, err := json.Marshal(Request{ID: json.RawMessage(`1`), Method: method, Params: raw})
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)

	respLine, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(respLine, &resp))
	return resp
}

func TestServerDispatchesUnknownMethod(t *testing.T) {
	tmpDir := t.TempDir()
	log := logrus.NewEntry(logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := daemon.New(ctx, daemon.Config{
		StatePath:      filepath.Join(tmpDir, "state.json"),
		AdapterTimeout: time.Second,
		FuseDefaultTTL: time.Minute,
	}, log)
	defer core.Shutdown()

	srv := New(core, log)
	socketPath := filepath.Join(tmpDir, "test.sock")

	go srv.ListenAndServe(ctx, socketPath)
	waitForSocket(t, socketPath)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, "no.such.method", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_ARGUMENT", resp.Error.Code)
}

func TestServerDaemonStatusRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	log := logrus.NewEntry(logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := daemon.New(ctx, daemon.Config{
		StatePath:      filepath.Join(tmpDir, "state.json"),
		AdapterTimeout: time.Second,
		FuseDefaultTTL: time.Minute,
	}, log)
	defer core.Shutdown()

	srv := New(core, log)
	socketPath := filepath.Join(tmpDir, "test.sock")

	go srv.ListenAndServe(ctx, socketPath)
	waitForSocket(t, socketPath)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, "daemon.status", nil)
	require.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.Result)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", path)
}
