// Package proc abstracts external processes behind a minimal handle
// contract and provides factories that turn job descriptors into handles.
package proc

import (
	"context"

	"batchctl/internal/job"
)

// Handle represents a startable external process. The controller relies on
// exactly two capabilities: starting the process and probing whether it is
// still running. Everything else (timeout enforcement, exit status, logs)
// belongs to the concrete implementation.
type Handle interface {
	// Start begins execution. It must be called exactly once per handle.
	Start(ctx context.Context) error

	// Running reports whether the process is still executing. It is
	// non-blocking and must eventually report false once the process has
	// exited for any reason. This is the sole completion signal the
	// controller observes.
	Running() bool
}

// ExitCoder is optionally implemented by handles that can report the exit
// status of a finished process. Completion callbacks may type-assert for it.
type ExitCoder interface {
	// ExitCode returns the process exit code and whether it is known yet.
	ExitCode() (int, bool)
}

// Factory converts a job descriptor into a startable handle. Creation must
// not start the process; starting is an explicit step owned by the
// controller.
type Factory interface {
	New(j *job.Job) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface, for callers that
// supply their own descriptor-to-handle strategy.
type FactoryFunc func(j *job.Job) (Handle, error)

// New calls the underlying function.
func (f FactoryFunc) New(j *job.Job) (Handle, error) {
	return f(j)
}

var _ Factory = (FactoryFunc)(nil)
