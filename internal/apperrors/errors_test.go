package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("command", "command is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "command is required" {
		t.Errorf("expected message 'command is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "command" {
		t.Errorf("expected field 'command', got %q", appErr.Field)
	}
}

func TestCallback(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("exit status rejected")
	err := Callback("job-1", cause)

	if !errors.Is(err, ErrCallback) {
		t.Error("expected error to match ErrCallback")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.JobID != "job-1" {
		t.Errorf("expected job ID 'job-1', got %q", appErr.JobID)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("docker daemon unavailable")
	err := Internal("docker.create", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if err.Error() != "docker.create: docker daemon unavailable" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "docker.create" {
		t.Errorf("expected op 'docker.create', got %q", appErr.Op)
	}
}

func TestErrorsDoNotCrossMatch(t *testing.T) {
	t.Parallel()
	if errors.Is(Validation("id", "bad id"), ErrInternal) {
		t.Error("validation error should not match ErrInternal")
	}
	if errors.Is(Internal("op", fmt.Errorf("boom")), ErrValidation) {
		t.Error("internal error should not match ErrValidation")
	}
}
