package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition reported by the daemon.
type ErrorCode string

const (
	// ErrCodeNotFound covers sessions, locks, fuses, and adapters that
	// don't exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeLockConflict is returned when a working directory is
	// already locked by a different owner.
	ErrCodeLockConflict ErrorCode = "LOCK_CONFLICT"

	// ErrCodeAdapterUnknown is returned when an RPC names a tool with no
	// registered adapter.
	ErrCodeAdapterUnknown ErrorCode = "ADAPTER_UNKNOWN"

	// ErrCodeAdapterTimeout is returned when an adapter call (discover,
	// launch, stop, resume, peek) exceeds its configured timeout.
	ErrCodeAdapterTimeout ErrorCode = "ADAPTER_TIMEOUT"

	// ErrCodeInvalidArgument covers malformed or missing RPC parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeInternal covers anything else: persistence failures, bugs,
	// unexpected state transitions.
	ErrCodeInternal ErrorCode = "INTERNAL"

	// Config errors surface during daemon startup, before the RPC
	// surface exists, so they are reported on stderr rather than the wire.
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// ErrCodeAlreadyRunning is returned by the singleton/supervisor guard
	// when another daemon instance holds the socket or the file lock.
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
)

// AgentctlError is a structured error carrying a stable code, a
// human-readable message, and optional machine-readable details. Only
// Code and Message cross the RPC wire; Details and Cause are for local
// logging and tests.
type AgentctlError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AgentctlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface.
func (e *AgentctlError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail and returns the error for chaining.
func (e *AgentctlError) WithDetail(key string, value interface{}) *AgentctlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON renders the error for verbose CLI output. Never used for the
// RPC wire shape, which only ever sends {code, message}.
func (e *AgentctlError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// WireError is the shape serialized at the RPC boundary.
type WireError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToWire strips Details and Cause for transmission over the socket.
func (e *AgentctlError) ToWire() WireError {
	return WireError{Code: e.Code, Message: e.Message}
}

// New creates a new AgentctlError.
func New(code ErrorCode, message string) *AgentctlError {
	return &AgentctlError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code ErrorCode, message string) *AgentctlError {
	return &AgentctlError{Code: code, Message: message, Cause: err}
}

// Is reports whether err is an AgentctlError carrying the given code,
// unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	agentErr, ok := err.(*AgentctlError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return agentErr.Code == code
}

// GetCode extracts the error code from an error, unwrapping as needed.
// Returns "" when err is nil or carries no AgentctlError anywhere in its
// chain.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	agentErr, ok := err.(*AgentctlError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return agentErr.Code
}
