package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "agentctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_path: /tmp/agentctl.sock
adapter_timeout: 10s
log_level: debug
custom_adapter_key: ride-along
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/agentctl.sock", cfg.SocketPath)
	assert.Equal(t, "10s", cfg.AdapterTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ride-along", cfg.Extensions["custom_adapter_key"])
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "agentctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_path = "/tmp/agentctl.sock"
grace_period = "1m"

[supervisor]
backoff_base = "2s"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/agentctl.sock", cfg.SocketPath)
	assert.Equal(t, "1m", cfg.GracePeriod)
	assert.Equal(t, "2s", cfg.Supervisor.BackoffBase)
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("AGENTCTL_TEST_SOCK", "/var/run/custom.sock")
	defer os.Unsetenv("AGENTCTL_TEST_SOCK")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "agentctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_path: ${AGENTCTL_TEST_SOCK}
log_level: ${AGENTCTL_TEST_LEVEL:-info}
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/run/custom.sock", cfg.SocketPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/agentctl.yaml")
	require.Error(t, err)
}

func TestFindConfigFileSearchesUpward(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project")
	subDir := filepath.Join(projectDir, "a", "b")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	configPath := filepath.Join(projectDir, "agentctl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: warn\n"), 0644))

	found, err := FindConfigFile(subDir)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestFindConfigFileNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("AGENTCTL_HOME", filepath.Join(tmpDir, "no-such-home"))
	_, err := FindConfigFile(tmpDir)
	require.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "5s", cfg.AdapterTimeout)
	assert.Equal(t, 5*time.Second, cfg.AdapterTimeoutDuration())
	assert.Equal(t, 45*time.Second, cfg.GracePeriodDuration())
	assert.Equal(t, 30*time.Second, cfg.DeadSweepIntervalDuration())
	assert.Equal(t, 10*time.Second, cfg.PendingSweepIntervalDuration())
	assert.Equal(t, time.Second, cfg.BackoffBaseDuration())
	assert.Equal(t, 5*time.Minute, cfg.BackoffCapDuration())
	assert.Equal(t, 60*time.Second, cfg.ResetAfterDuration())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestSetDefaultsPreservesOverrides(t *testing.T) {
	cfg := &Config{AdapterTimeout: "30s", LogLevel: "trace"}
	cfg.SetDefaults()

	assert.Equal(t, "30s", cfg.AdapterTimeout)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat) // untouched field still gets default
}

func TestParseDurationOrDefaultFallsBackOnMalformed(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("not-a-duration", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("", 5*time.Second))
	assert.Equal(t, 10*time.Second, ParseDurationOrDefault("10s", 5*time.Second))
}
