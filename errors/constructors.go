package errors

import "fmt"

// NotFound creates a not-found error for the given kind of record
// ("session", "lock", "fuse") and its id.
func NotFound(kind, id string) *AgentctlError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, id)).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// LockConflict creates an error for a directory already locked by a
// different owner.
func LockConflict(dir, owner string) *AgentctlError {
	return New(ErrCodeLockConflict,
		fmt.Sprintf("directory already locked: %s", dir)).
		WithDetail("dir", dir).
		WithDetail("owner", owner)
}

// AdapterUnknown creates an error for an RPC naming an unregistered
// adapter.
func AdapterUnknown(tool string) *AgentctlError {
	return New(ErrCodeAdapterUnknown, fmt.Sprintf("no adapter registered for tool: %s", tool)).
		WithDetail("tool", tool)
}

// AdapterTimeout creates an error for an adapter call that exceeded its
// configured timeout.
func AdapterTimeout(tool, operation string, timeout string) *AgentctlError {
	return New(ErrCodeAdapterTimeout,
		fmt.Sprintf("adapter %s timed out during %s after %s", tool, operation, timeout)).
		WithDetail("tool", tool).
		WithDetail("operation", operation).
		WithDetail("timeout", timeout)
}

// InvalidArgument creates an error for a malformed or missing RPC
// parameter.
func InvalidArgument(reason string) *AgentctlError {
	return New(ErrCodeInvalidArgument, reason)
}

// Internal wraps an unexpected failure (persistence, bug, invariant
// violation) that has no more specific code.
func Internal(err error, message string) *AgentctlError {
	return Wrap(err, ErrCodeInternal, message)
}

// ConfigNotFound creates a configuration-not-found error.
func ConfigNotFound(path string) *AgentctlError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid-configuration error.
func ConfigInvalid(reason string) *AgentctlError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// AlreadyRunning creates an error for the singleton guard: another
// daemon instance already holds the socket or the file lock.
func AlreadyRunning(detail string) *AgentctlError {
	return New(ErrCodeAlreadyRunning, fmt.Sprintf("agentctl daemon already running: %s", detail))
}
