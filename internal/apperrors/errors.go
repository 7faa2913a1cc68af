// Package apperrors provides structured application errors for the batch runner.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrValidation marks an invalid job descriptor. Fatal to the batch.
	ErrValidation = errors.New("invalid job")
	// ErrCallback marks a completion callback failure. Fatal to the batch.
	ErrCallback = errors.New("callback failed")
	// ErrInternal marks an unexpected failure in a collaborator.
	ErrInternal = errors.New("internal error")
)

// Error provides a structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "command", "timeoutSeconds")
	JobID    string // Job the error relates to, if known
	Op       string // Operation that failed (e.g., "exec.start")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific descriptor field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Callback wraps a completion callback failure for a job.
// The cause is preserved in Cause; classification matches ErrCallback.
func Callback(jobID string, cause error) error {
	return &Error{
		Sentinel: ErrCallback,
		Message:  fmt.Sprintf("completion callback for job %q: %v", jobID, cause),
		JobID:    jobID,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
