package cli

import (
	"fmt"
	"os"

	"github.com/agentctl/agentctl/errors"
)

// ErrorHandler provides user-friendly error messages for CLI verbs.
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose}
}

// Handle prints a user-friendly message based on the error's code and
// returns the error unchanged so callers can propagate an exit status.
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "error: no configuration found; agentctl will use built-in defaults\n")
		return err

	case errors.ErrCodeLockConflict:
		if agentErr, ok := err.(*errors.AgentctlError); ok {
			fmt.Fprintf(os.Stderr, "error: %s is locked by %s\n", agentErr.Details["dir"], agentErr.Details["owner"])
			fmt.Fprintf(os.Stderr, "run 'agentctl lock release %s' if you own this session\n", agentErr.Details["dir"])
		}
		return err

	case errors.ErrCodeNotFound:
		if agentErr, ok := err.(*errors.AgentctlError); ok {
			fmt.Fprintf(os.Stderr, "error: %s not found: %s\n", agentErr.Details["kind"], agentErr.Details["id"])
		}
		return err

	case errors.ErrCodeAdapterUnknown:
		if agentErr, ok := err.(*errors.AgentctlError); ok {
			fmt.Fprintf(os.Stderr, "error: no adapter registered for tool '%s'\n", agentErr.Details["tool"])
		}
		return err

	case errors.ErrCodeAdapterTimeout:
		if agentErr, ok := err.(*errors.AgentctlError); ok {
			fmt.Fprintf(os.Stderr, "error: adapter '%s' timed out during %s after %s\n",
				agentErr.Details["tool"], agentErr.Details["operation"], agentErr.Details["timeout"])
		}
		return err

	case errors.ErrCodeAlreadyRunning:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "run 'agentctl daemon status' to check the running instance\n")
		return err

	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if h.Verbose {
			if agentErr, ok := err.(*errors.AgentctlError); ok {
				fmt.Fprintf(os.Stderr, "\ndetails:\n%s\n", agentErr.ToJSON())
			}
		}
		return err
	}
}
