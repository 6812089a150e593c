package errors

import (
	"fmt"
	"testing"
)

func TestAgentctlError(t *testing.T) {
	err := New(ErrCodeNotFound, "session not found")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeInternal, "persist failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeInternal) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("kind", "session").WithDetail("id", "abc123")
	if detailed.Details["kind"] != "session" {
		t.Error("WithDetail should add details")
	}

	wire := detailed.ToWire()
	if wire.Code != ErrCodeNotFound || wire.Message != "session not found" {
		t.Error("ToWire should carry only code and message")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := NotFound("session", "abc123")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Details["id"] != "abc123" {
		t.Error("NotFound should include id detail")
	}

	lc := LockConflict("/repo", "pending-4242")
	if lc.Code != ErrCodeLockConflict {
		t.Errorf("expected code %s, got %s", ErrCodeLockConflict, lc.Code)
	}
	if lc.Details["owner"] != "pending-4242" {
		t.Error("LockConflict should include owner detail")
	}

	au := AdapterUnknown("claude-code")
	if au.Code != ErrCodeAdapterUnknown {
		t.Errorf("expected code %s, got %s", ErrCodeAdapterUnknown, au.Code)
	}

	at := AdapterTimeout("claude-code", "discover", "5s")
	if at.Code != ErrCodeAdapterTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeAdapterTimeout, at.Code)
	}

	ar := AlreadyRunning("pid 1234 holds the socket")
	if ar.Code != ErrCodeAlreadyRunning {
		t.Errorf("expected code %s, got %s", ErrCodeAlreadyRunning, ar.Code)
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}

	err := New(ErrCodeAdapterUnknown, "no adapter")
	if GetCode(err) != ErrCodeAdapterUnknown {
		t.Error("GetCode should extract the code")
	}

	wrapped := fmt.Errorf("context: %w", err)
	if GetCode(wrapped) != ErrCodeAdapterUnknown {
		t.Error("GetCode should unwrap through fmt.Errorf")
	}
}
