// Package registry holds the adapter contract the core consumes from
// tool-specific modules, plus the lookup table built once at boot. Real
// per-tool adapters (Claude Code, Codex, etc.) are out of scope here —
// only the interface and a registry wrapping it in a circuit breaker and
// rate limiter live in this package.
package registry

import (
	"context"

	"github.com/agentctl/agentctl/internal/daemon/model"
)

// LaunchOptions carries everything session.launch needs to hand off to
// an adapter.
type LaunchOptions struct {
	Prompt      string
	Cwd         string
	Model       string
	Env         map[string]string
	AdapterOpts map[string]interface{}
	Group       string
}

// Adapter is the uniform contract every registered tool-specific module
// implements. Adapters are forbidden from mutating daemon state
// directly — launch/stop/resume/peek report results; all cross-cutting
// effects (locks, fuses, launch records) go through the RPC surface
// that called them.
type Adapter interface {
	// Name identifies the adapter, e.g. "claude-code".
	Name() string

	// Discover scans the adapter's on-disk transcript directory. Cheap;
	// may be called every few seconds.
	Discover(ctx context.Context) ([]model.DiscoveredSession, error)

	// IsAlive reports whether the adapter still considers id running.
	IsAlive(ctx context.Context, id string) bool

	// Launch starts a new session. The returned LaunchRecord's ID may be
	// a pending-<pid> placeholder when the tool assigns a stable id
	// asynchronously.
	Launch(ctx context.Context, opts LaunchOptions) (model.LaunchRecord, error)

	// Stop signals id to exit; force escalates to a hard kill after the
	// caller's grace window.
	Stop(ctx context.Context, id string, force bool) error

	// Resume delivers message as a continuation to an existing session.
	Resume(ctx context.Context, id, message string) error

	// Peek returns recent agent-authored output, at most lines lines
	// when lines > 0.
	Peek(ctx context.Context, id string, lines int) (string, error)
}
