package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"batchctl/internal/apperrors"
	"batchctl/internal/job"
	"batchctl/internal/proc"
	"batchctl/internal/testutil"
)

// pollHandle reports running for a fixed number of Running() probes after
// Start, then finishes. onStart, if set, observes each admission.
type pollHandle struct {
	probes  atomic.Int32
	started atomic.Bool
	onStart func()
}

func newPollHandle(probes int, onStart func()) *pollHandle {
	h := &pollHandle{onStart: onStart}
	h.probes.Store(int32(probes))
	return h
}

func (h *pollHandle) Start(ctx context.Context) error {
	h.started.Store(true)
	if h.onStart != nil {
		h.onStart()
	}
	return nil
}

func (h *pollHandle) Running() bool {
	if !h.started.Load() {
		return false
	}
	return h.probes.Add(-1) >= 0
}

// manualHandle runs until released.
type manualHandle struct {
	started atomic.Bool
	done    atomic.Bool
}

func (h *manualHandle) Start(ctx context.Context) error { h.started.Store(true); return nil }
func (h *manualHandle) Running() bool                   { return h.started.Load() && !h.done.Load() }
func (h *manualHandle) finish()                         { h.done.Store(true) }

func descriptors(n int) []*job.Job {
	jobs := make([]*job.Job, n)
	for i := range jobs {
		jobs[i] = &job.Job{ID: fmt.Sprintf("job-%d", i), Command: []string{"true"}}
	}
	return jobs
}

func TestControllerRunsAllJobs(t *testing.T) {
	t.Parallel()

	// 4 jobs, each running for exactly one poll cycle, ceiling of 2.
	var completions atomic.Int32
	var ctrl *Controller

	var maxInFlight atomic.Int32
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		return newPollHandle(1, func() {
			inFlight := int32(ctrl.InFlight())
			for {
				cur := maxInFlight.Load()
				if inFlight <= cur || maxInFlight.CompareAndSwap(cur, inFlight) {
					return
				}
			}
		}), nil
	})

	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(4)),
		Factory:       factory,
		MaxConcurrent: 2,
		PollInterval:  time.Millisecond,
		OnComplete: func(jobID string, h proc.Handle) error {
			completions.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := completions.Load(); got != 4 {
		t.Errorf("expected 4 completions, got %d", got)
	}
	if ctrl.InFlight() != 0 {
		t.Errorf("expected empty pool after Run, got %d", ctrl.InFlight())
	}
	if got := maxInFlight.Load(); got > 2 {
		t.Errorf("concurrency ceiling exceeded: %d in flight", got)
	}
}

func TestControllerAdmitsInSourceOrder(t *testing.T) {
	t.Parallel()

	var started []string
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		id := j.ID
		return newPollHandle(0, func() { started = append(started, id) }), nil
	})

	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(5)),
		Factory:       factory,
		MaxConcurrent: 2,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(started) != 5 {
		t.Fatalf("expected 5 starts, got %d", len(started))
	}
	for i, id := range started {
		if want := fmt.Sprintf("job-%d", i); id != want {
			t.Errorf("start %d: expected %q, got %q", i, want, id)
		}
	}
}

func TestControllerMissingCommandAbortsBeforeAnyStart(t *testing.T) {
	t.Parallel()

	var callbacks atomic.Int32
	ctrl, err := New(Config{
		Source: job.NewSliceSource([]*job.Job{
			{ID: "x"}, // no command, default factory
			{ID: "y", Command: []string{"true"}},
		}),
		MaxConcurrent: 2,
		PollInterval:  time.Millisecond,
		OnComplete: func(jobID string, h proc.Handle) error {
			callbacks.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runErr := ctrl.Run(context.Background())
	if !errors.Is(runErr, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", runErr)
	}
	if ctrl.InFlight() != 0 {
		t.Errorf("expected empty pool after aborted run, got %d", ctrl.InFlight())
	}
	if callbacks.Load() != 0 {
		t.Error("no callback should fire for an aborted run")
	}
}

func TestControllerNilDescriptorAborts(t *testing.T) {
	t.Parallel()

	ctrl, err := New(Config{
		Source:        job.Func(func() (*job.Job, error) { return nil, nil }),
		MaxConcurrent: 1,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runErr := ctrl.Run(context.Background())
	if !errors.Is(runErr, apperrors.ErrValidation) {
		t.Errorf("expected validation error for nil descriptor, got %v", runErr)
	}
}

func TestControllerSourceErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("source failed")
	ctrl, err := New(Config{
		Source:        job.Func(func() (*job.Job, error) { return nil, boom }),
		MaxConcurrent: 1,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runErr := ctrl.Run(context.Background())
	if !errors.Is(runErr, apperrors.ErrInternal) {
		t.Errorf("expected internal error, got %v", runErr)
	}
}

func TestControllerCallbackErrorAbortsAndEvictionStands(t *testing.T) {
	t.Parallel()

	rejected := errors.New("bad exit")
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		return newPollHandle(0, nil), nil
	})

	var calls atomic.Int32
	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(3)),
		Factory:       factory,
		MaxConcurrent: 1,
		PollInterval:  time.Millisecond,
		OnComplete: func(jobID string, h proc.Handle) error {
			calls.Add(1)
			return rejected
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runErr := ctrl.Run(context.Background())
	if !errors.Is(runErr, apperrors.ErrCallback) {
		t.Errorf("expected callback error, got %v", runErr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 callback invocation, got %d", calls.Load())
	}
	// The failing job was already evicted; it is not re-inserted.
	if ctrl.InFlight() != 0 {
		t.Errorf("expected evicted entry to stay evicted, pool len %d", ctrl.InFlight())
	}
}

func TestControllerCallbackOptional(t *testing.T) {
	t.Parallel()

	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		return newPollHandle(0, nil), nil
	})
	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(2)),
		Factory:       factory,
		MaxConcurrent: 1,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ctrl.Run(context.Background()); err != nil {
		t.Errorf("Run without callback failed: %v", err)
	}
}

func TestControllerZeroConcurrencyBlocks(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		return newPollHandle(0, func() { started.Add(1) }), nil
	})

	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(1)),
		Factory:       factory,
		MaxConcurrent: 0,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// No admission may happen within the window.
	if !testutil.NeverWithin(t, func() bool { return started.Load() > 0 }, 100*time.Millisecond) {
		t.Error("expected no job to start with a ceiling of zero")
	}
	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestControllerDrainsBeforeReturning(t *testing.T) {
	t.Parallel()

	handle := &manualHandle{}
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		return handle, nil
	})

	ctrl, err := New(Config{
		Source:        job.NewSliceSource(descriptors(1)),
		Factory:       factory,
		MaxConcurrent: 2,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	// Source is exhausted immediately, but the job is still running.
	if !testutil.NeverWithin(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond) {
		t.Fatal("Run returned before the pool drained")
	}

	handle.finish()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the job finished")
	}
	if ctrl.InFlight() != 0 {
		t.Errorf("expected empty pool, got %d", ctrl.InFlight())
	}
}

func TestReapIsIdempotent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctrl, err := New(Config{
		Source:        job.NewSliceSource(nil),
		MaxConcurrent: 2,
		PollInterval:  time.Millisecond,
		OnComplete: func(jobID string, h proc.Handle) error {
			calls.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	finished := newPollHandle(0, nil)
	finished.started.Store(true)
	live := &manualHandle{}
	live.started.Store(true)
	ctrl.pool.Add(&Entry{JobID: "done", Handle: finished})
	ctrl.pool.Add(&Entry{JobID: "live", Handle: live})

	if err := ctrl.reap(context.Background()); err != nil {
		t.Fatalf("first reap failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 completion after first pass, got %d", calls.Load())
	}
	if ctrl.InFlight() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", ctrl.InFlight())
	}

	// Second pass with no state change evicts nothing.
	if err := ctrl.reap(context.Background()); err != nil {
		t.Fatalf("second reap failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no extra completions, got %d", calls.Load())
	}
	if ctrl.InFlight() != 1 {
		t.Errorf("expected pool unchanged, got %d", ctrl.InFlight())
	}
}

func TestControllerEmptySource(t *testing.T) {
	t.Parallel()

	ctrl, err := New(Config{
		Source:        job.NewSliceSource(nil),
		MaxConcurrent: 0,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Ceiling of zero with nothing to admit returns immediately.
	if err := ctrl.Run(context.Background()); err != nil {
		t.Errorf("Run failed: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxConcurrent: 1}); err == nil {
		t.Error("expected error for missing source")
	}
	_, err := New(Config{Source: job.NewSliceSource(nil), MaxConcurrent: -1})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for negative ceiling, got %v", err)
	}
}

func TestControllerAppliesTimeoutDefault(t *testing.T) {
	t.Parallel()

	var seen int
	factory := proc.FactoryFunc(func(j *job.Job) (proc.Handle, error) {
		seen = j.TimeoutSeconds
		return newPollHandle(0, nil), nil
	})

	ctrl, err := New(Config{
		Source:        job.NewSliceSource([]*job.Job{{ID: "t", Command: []string{"true"}}}),
		Factory:       factory,
		MaxConcurrent: 1,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if seen != 60 {
		t.Errorf("expected default timeout of 60 seconds, got %d", seen)
	}
}
