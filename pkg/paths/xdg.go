// Package paths provides XDG-compliant path resolution for agentctl.
//
// Resolution order:
// 1. AGENTCTL_HOME (portable root) → $AGENTCTL_HOME/{config,data,state,cache}
// 2. XDG env vars → $XDG_*_HOME/agentctl
// 3. Platform defaults → ~/.config/agentctl, ~/.local/share/agentctl, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("AGENTCTL_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if home := os.Getenv("AGENTCTL_HOME"); home != "" {
		return filepath.Join(home, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("AGENTCTL_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// getCacheHome returns the base cache home directory.
func getCacheHome() string {
	if home := os.Getenv("AGENTCTL_HOME"); home != "" {
		return filepath.Join(home, "cache")
	}
	if xdgCacheHome := os.Getenv("XDG_CACHE_HOME"); xdgCacheHome != "" {
		return xdgCacheHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".cache")
	}
	return ""
}

// ConfigDir returns the agentctl configuration directory.
// Used for config files like agentctl.yaml and the daemon.lock sentinel.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "agentctl")
}

// DataDir returns the agentctl data directory.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "agentctl")
}

// StateDir returns the agentctl state directory.
// Used for state.json, pid files, and the env-capture file.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "agentctl")
}

// CacheDir returns the agentctl cache directory.
func CacheDir() string {
	base := getCacheHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "agentctl")
}

// RuntimeDir returns the agentctl runtime directory for the RPC socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir
// on systems without it (macOS).
func RuntimeDir() string {
	if home := os.Getenv("AGENTCTL_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "agentctl")
	}
	return StateDir()
}

// SocketPath returns the path to the agentctl daemon's Unix domain socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "agentctl.sock")
}

// PidFilePath returns the path to the daemon's PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "agentctl.pid")
}

// SupervisorPidFilePath returns the path to the supervisor process's PID
// file, distinct from the daemon's own PID file since the supervisor
// restarts the daemon underneath it across crashes.
func SupervisorPidFilePath() string {
	return filepath.Join(StateDir(), "agentctl-supervisor.pid")
}

// StateFilePath returns the path to the persistent JSON state document
// holding tracked launches, locks, and fuses.
func StateFilePath() string {
	return filepath.Join(StateDir(), "state.json")
}

// LockFilePath returns the path to the flock sentinel file used as a
// second, independent singleton-enforcement layer alongside the PID-file
// sequence.
func LockFilePath() string {
	return filepath.Join(ConfigDir(), "daemon.lock")
}

// DaemonEnvFilePath returns the path to the file `agentctl daemon start`
// writes, before spawning the supervisor, capturing the environment the daemon should inherit across respawns,
// per spec.md §6.3.
func DaemonEnvFilePath() string {
	return filepath.Join(StateDir(), "daemon-env.json")
}

// EnsureDirs creates all agentctl directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		CacheDir(),
		RuntimeDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
