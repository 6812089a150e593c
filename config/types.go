// Package config loads the daemon's single global configuration file:
// a flat set of timeouts/intervals plus a nested supervisor section,
// with unknown keys preserved for adapter-owned extensions.
package config

import (
	"time"

	"github.com/agentctl/agentctl/pkg/paths"
	"github.com/agentctl/agentctl/util/pathutil"
)

// SupervisorConfig tunes the respawn-backoff loop described in spec.md
// §4 ("Supervisor + singleton"). Durations are plain strings (e.g.
// "1s", "5m") so they round-trip through YAML/TOML without a custom
// unmarshaler; ParseDurationOrDefault resolves them at point of use.
type SupervisorConfig struct {
	BackoffBase string `yaml:"backoff_base,omitempty" toml:"backoff_base,omitempty" jsonschema:"description=Initial respawn delay after a crash (e.g. 1s)."`
	BackoffCap  string `yaml:"backoff_cap,omitempty" toml:"backoff_cap,omitempty" jsonschema:"description=Maximum respawn delay after repeated crashes (e.g. 5m)."`
	ResetAfter  string `yaml:"reset_after,omitempty" toml:"reset_after,omitempty" jsonschema:"description=Uptime after which backoff resets to BackoffBase (e.g. 60s)."`
}

// Config is agentctl's single global daemon configuration. Unlike the
// teacher's grove.yml, there is no per-project/ecosystem layering here:
// one file, found once, loaded once, hot-reloaded in place for the
// handful of fields that are safe to change live (see config_watcher.go
// in pkg/daemon).
type Config struct {
	SocketPath string `yaml:"socket_path,omitempty" toml:"socket_path,omitempty" jsonschema:"description=Unix socket path the daemon listens on. Empty means use the XDG runtime default."`
	ConfigDir  string `yaml:"config_dir,omitempty" toml:"config_dir,omitempty" jsonschema:"description=Directory holding state.json and daemon.lock. Empty means use the XDG state/config default."`

	// Of the fields below, RPCTimeout and GracePeriod are parsed and
	// defaulted, but nothing else reads them: the CLI client uses fixed
	// timeouts, and the tracker's grace window is the constant
	// tracker.GraceWindow.
	AdapterTimeout       string `yaml:"adapter_timeout,omitempty" toml:"adapter_timeout,omitempty" jsonschema:"description=Per-adapter discover/operation timeout (e.g. 5s)."`
	RPCTimeout           string `yaml:"rpc_timeout,omitempty" toml:"rpc_timeout,omitempty" jsonschema:"description=Client-side timeout for one RPC round trip (e.g. 30s)."`
	FuseDefaultTTL       string `yaml:"fuse_default_ttl,omitempty" toml:"fuse_default_ttl,omitempty" jsonschema:"description=Default fuse TTL when a caller omits one (e.g. 10m)."`
	GracePeriod          string `yaml:"grace_period,omitempty" toml:"grace_period,omitempty" jsonschema:"description=Window after launch during which a not-yet-discovered session is still reported running (e.g. 45s)."`
	DeadSweepInterval    string `yaml:"dead_sweep_interval,omitempty" toml:"dead_sweep_interval,omitempty" jsonschema:"description=Period of the PID-liveness dead-launch sweep (e.g. 30s)."`
	PendingSweepInterval string `yaml:"pending_sweep_interval,omitempty" toml:"pending_sweep_interval,omitempty" jsonschema:"description=Period of the batched pending-id resolution sweep (e.g. 10s)."`
	FlushDebounce        string `yaml:"flush_debounce,omitempty" toml:"flush_debounce,omitempty" jsonschema:"description=Debounce interval before a dirty state document is flushed to disk (e.g. 1s)."`

	Supervisor SupervisorConfig `yaml:"supervisor,omitempty" toml:"supervisor,omitempty" jsonschema:"description=Respawn-backoff tuning for the supervisor process."`

	LogLevel  string `yaml:"log_level,omitempty" toml:"log_level,omitempty" jsonschema:"description=logrus level name.,enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat string `yaml:"log_format,omitempty" toml:"log_format,omitempty" jsonschema:"description=logrus formatter.,enum=text,enum=json"`

	// Extensions holds every key this struct doesn't recognize, so
	// adapter-specific config can ride along without the core daemon
	// needing to know its shape.
	Extensions map[string]interface{} `yaml:"-" toml:"-" jsonschema:"-"`
}

// ParseDurationOrDefault parses s as a time.Duration, falling back to
// fallback when s is empty or malformed.
func ParseDurationOrDefault(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SetDefaults fills every empty duration/level field with its
// documented default string. Called after parse (Load does not run the
// Validator), so
// a config file that only overrides one field still ends up fully
// populated for display (agentctl daemon status, schema docs).
func (c *Config) SetDefaults() {
	if c.AdapterTimeout == "" {
		c.AdapterTimeout = "5s"
	}
	if c.RPCTimeout == "" {
		c.RPCTimeout = "30s"
	}
	if c.FuseDefaultTTL == "" {
		c.FuseDefaultTTL = "10m"
	}
	if c.GracePeriod == "" {
		c.GracePeriod = "45s"
	}
	if c.DeadSweepInterval == "" {
		c.DeadSweepInterval = "30s"
	}
	if c.PendingSweepInterval == "" {
		c.PendingSweepInterval = "10s"
	}
	if c.FlushDebounce == "" {
		c.FlushDebounce = "1s"
	}
	if c.Supervisor.BackoffBase == "" {
		c.Supervisor.BackoffBase = "1s"
	}
	if c.Supervisor.BackoffCap == "" {
		c.Supervisor.BackoffCap = "5m"
	}
	if c.Supervisor.ResetAfter == "" {
		c.Supervisor.ResetAfter = "60s"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// ResolvedSocketPath expands ~ and env vars in SocketPath, falling back
// to the XDG runtime default when the config file leaves it empty.
func (c *Config) ResolvedSocketPath() string {
	if c.SocketPath == "" {
		return paths.SocketPath()
	}
	if expanded, err := pathutil.Expand(c.SocketPath); err == nil {
		return expanded
	}
	return c.SocketPath
}

// ResolvedConfigDir expands ~ and env vars in ConfigDir, falling back
// to the XDG config default when the config file leaves it empty.
func (c *Config) ResolvedConfigDir() string {
	if c.ConfigDir == "" {
		return paths.ConfigDir()
	}
	if expanded, err := pathutil.Expand(c.ConfigDir); err == nil {
		return expanded
	}
	return c.ConfigDir
}

// AdapterTimeoutDuration resolves AdapterTimeout, defaulting to 5s.
func (c *Config) AdapterTimeoutDuration() time.Duration {
	return ParseDurationOrDefault(c.AdapterTimeout, 5*time.Second)
}

// RPCTimeoutDuration resolves RPCTimeout, defaulting to 30s.
func (c *Config) RPCTimeoutDuration() time.Duration {
	return ParseDurationOrDefault(c.RPCTimeout, 30*time.Second)
}

// FuseDefaultTTLDuration resolves FuseDefaultTTL, defaulting to 10m.
func (c *Config) FuseDefaultTTLDuration() time.Duration {
	return ParseDurationOrDefault(c.FuseDefaultTTL, 10*time.Minute)
}

// GracePeriodDuration resolves GracePeriod, defaulting to 45s.
func (c *Config) GracePeriodDuration() time.Duration {
	return ParseDurationOrDefault(c.GracePeriod, 45*time.Second)
}

// DeadSweepIntervalDuration resolves DeadSweepInterval, defaulting to 30s.
func (c *Config) DeadSweepIntervalDuration() time.Duration {
	return ParseDurationOrDefault(c.DeadSweepInterval, 30*time.Second)
}

// PendingSweepIntervalDuration resolves PendingSweepInterval, defaulting to 10s.
func (c *Config) PendingSweepIntervalDuration() time.Duration {
	return ParseDurationOrDefault(c.PendingSweepInterval, 10*time.Second)
}

// FlushDebounceDuration resolves FlushDebounce, defaulting to 1s.
func (c *Config) FlushDebounceDuration() time.Duration {
	return ParseDurationOrDefault(c.FlushDebounce, time.Second)
}

// BackoffBaseDuration resolves Supervisor.BackoffBase, defaulting to 1s.
func (c *Config) BackoffBaseDuration() time.Duration {
	return ParseDurationOrDefault(c.Supervisor.BackoffBase, time.Second)
}

// BackoffCapDuration resolves Supervisor.BackoffCap, defaulting to 5m.
func (c *Config) BackoffCapDuration() time.Duration {
	return ParseDurationOrDefault(c.Supervisor.BackoffCap, 5*time.Minute)
}

// ResetAfterDuration resolves Supervisor.ResetAfter, defaulting to 60s.
func (c *Config) ResetAfterDuration() time.Duration {
	return ParseDurationOrDefault(c.Supervisor.ResetAfter, 60*time.Second)
}
