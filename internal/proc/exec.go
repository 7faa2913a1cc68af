package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"batchctl/internal/apperrors"
	"batchctl/internal/job"
)

// ExecFactory is the default descriptor-to-handle strategy. It runs jobs
// as raw OS processes via os/exec.
//
// WARNING: no sandboxing - jobs run with the same privileges as the
// calling process.
type ExecFactory struct {
	// InheritEnv controls whether the handle inherits the parent
	// environment before applying the descriptor's env entries.
	InheritEnv bool
}

// NewExecFactory creates an exec-backed factory that inherits the parent
// environment.
func NewExecFactory() *ExecFactory {
	return &ExecFactory{InheritEnv: true}
}

// New builds a handle for the descriptor. The process is not started.
func (f *ExecFactory) New(j *job.Job) (Handle, error) {
	if len(j.Command) == 0 {
		return nil, apperrors.Validation("command", "command is required")
	}
	return &execHandle{
		job:        j,
		inheritEnv: f.InheritEnv,
	}, nil
}

// execHandle is a process started with os/exec. The per-job timeout is
// enforced through the start context; a background goroutine reaps the
// process and records its exit code.
type execHandle struct {
	job        *job.Job
	inheritEnv bool

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	started  atomic.Bool
	done     atomic.Bool
	exitCode atomic.Int64
}

// Start launches the process. Must be called exactly once.
// The process is not tied to ctx: once started it runs to its own
// completion or its configured timeout, even if the caller gives up.
func (h *execHandle) Start(ctx context.Context) error {
	if h.started.Swap(true) {
		return apperrors.Internal("exec.start", fmt.Errorf("handle already started"))
	}

	runCtx, cancel := context.WithTimeout(context.Background(), h.job.Timeout())
	h.cancel = cancel

	cmd := exec.CommandContext(runCtx, h.job.Command[0], h.job.Command[1:]...)
	cmd.Dir = h.job.Dir
	if h.inheritEnv {
		cmd.Env = os.Environ()
	}
	for k, v := range h.job.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if h.job.Input != "" {
		cmd.Stdin = strings.NewReader(h.job.Input)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		h.done.Store(true)
		return apperrors.Internal("exec.start", err)
	}
	h.cmd = cmd

	go h.wait()
	return nil
}

// wait reaps the process and records its outcome.
func (h *execHandle) wait() {
	defer h.cancel()

	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			slog.Warn("Process wait failed", "jobId", h.job.ID, "error", err)
		}
	}
	h.exitCode.Store(int64(code))
	h.done.Store(true)
}

// Running reports whether the process is still executing.
func (h *execHandle) Running() bool {
	return h.started.Load() && !h.done.Load()
}

// ExitCode returns the exit code once the process has finished.
// A timed-out or signalled process reports the code os/exec assigns (-1).
func (h *execHandle) ExitCode() (int, bool) {
	if !h.done.Load() {
		return 0, false
	}
	return int(h.exitCode.Load()), true
}

var (
	_ Handle    = (*execHandle)(nil)
	_ ExitCoder = (*execHandle)(nil)
)
