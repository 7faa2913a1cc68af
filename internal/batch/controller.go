// Package batch implements the bounded-concurrency admission controller:
// a single control flow that admits jobs from a source as capacity allows,
// polls for completions, and invokes a callback per finished job.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"batchctl/internal/apperrors"
	"batchctl/internal/job"
	"batchctl/internal/proc"
)

// DefaultPollInterval is the sleep between reap scans when none is
// configured. Smaller intervals reclaim finished slots sooner at the cost
// of more wasted scans.
const DefaultPollInterval = 100 * time.Millisecond

// CompletionFunc is invoked once per finished job, after the controller
// has evicted it from the pool. A non-nil error aborts the batch; the
// eviction stands.
type CompletionFunc func(jobID string, h proc.Handle) error

// MetricsRecorder is an optional interface for recording controller metrics.
type MetricsRecorder interface {
	RecordJobAdmitted(ctx context.Context)
	RecordAdmissionWait(ctx context.Context, durationSeconds float64)
	RecordJobCompleted(ctx context.Context, durationSeconds float64)
	RecordPoolSize(ctx context.Context, size int64)
	RecordReapScan(ctx context.Context)
}

// Config holds construction-time settings for a Controller. All fields
// are immutable for the lifetime of one run.
type Config struct {
	Source        job.Source      // sequence of descriptors (required)
	Factory       proc.Factory    // descriptor-to-handle strategy (default: exec)
	MaxConcurrent int             // concurrency ceiling, >= 0
	PollInterval  time.Duration   // sleep between reap scans (default: DefaultPollInterval)
	OnComplete    CompletionFunc  // optional per-job completion callback
	Metrics       MetricsRecorder // optional
}

// Controller runs one batch of jobs with bounded concurrency. It is
// single-threaded: one control flow serializes all pool mutation, so no
// two admissions or reap passes ever overlap.
type Controller struct {
	source        job.Source
	factory       proc.Factory
	maxConcurrent int
	pollInterval  time.Duration
	onComplete    CompletionFunc
	metrics       MetricsRecorder
	pool          *Pool
	logger        *slog.Logger
}

// New creates a controller. A Controller runs at most one batch.
func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, apperrors.Internal("batch.new", fmt.Errorf("source is required"))
	}
	if cfg.MaxConcurrent < 0 {
		return nil, apperrors.Validation("maxConcurrent", "max concurrent must be >= 0")
	}

	factory := cfg.Factory
	if factory == nil {
		factory = proc.NewExecFactory()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Controller{
		source:        cfg.Source,
		factory:       factory,
		maxConcurrent: cfg.MaxConcurrent,
		pollInterval:  pollInterval,
		onComplete:    cfg.OnComplete,
		metrics:       cfg.Metrics,
		pool:          NewPool(),
		logger:        slog.With("component", "batch"),
	}, nil
}

// InFlight returns the current number of admitted, unfinished jobs.
func (c *Controller) InFlight() int {
	return c.pool.Len()
}

// Run executes the batch: admit every descriptor the source produces in
// order, never exceeding the concurrency ceiling, then drain until all
// in-flight jobs have finished. It returns on the first fatal error;
// already-started jobs are left running and unreaped in that case.
//
// With MaxConcurrent of zero and a non-empty source, Run blocks until ctx
// is cancelled. There is likewise no deadline on draining: a job that
// never terminates holds its slot forever unless its handle enforces a
// timeout.
func (c *Controller) Run(ctx context.Context) error {
	admitted := 0
	for {
		j, err := c.source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.Internal("source.next", err)
		}

		// Reserve one slot for the job about to start.
		waitStart := time.Now()
		if err := c.waitUntil(ctx, c.maxConcurrent-1); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RecordAdmissionWait(ctx, time.Since(waitStart).Seconds())
		}

		if err := job.Validate(j); err != nil {
			return err
		}
		job.ApplyDefaults(j)

		handle, err := c.factory.New(j)
		if err != nil {
			return err
		}

		entry := &Entry{JobID: j.ID, Handle: handle, admittedAt: time.Now()}
		c.pool.Add(entry)

		if err := handle.Start(ctx); err != nil {
			return err
		}
		admitted++
		c.logger.Debug("Job admitted", "jobId", j.ID, "inFlight", c.pool.Len())
		if c.metrics != nil {
			c.metrics.RecordJobAdmitted(ctx)
		}

		// Opportunistic pass: reclaim slots that freed up during
		// creation and start.
		if err := c.reap(ctx); err != nil {
			return err
		}
	}

	c.logger.Info("Source exhausted, draining", "admitted", admitted, "inFlight", c.pool.Len())
	if err := c.waitUntil(ctx, 0); err != nil {
		return err
	}
	c.logger.Info("Batch complete", "admitted", admitted)
	return nil
}

// waitUntil blocks until the pool holds at most target entries. Each
// iteration sleeps the poll interval first, then runs one reap pass, so
// the loop never busy-spins. Cancelling ctx is the only escape when the
// target is unreachable.
func (c *Controller) waitUntil(ctx context.Context, target int) error {
	for c.pool.Len() > target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
		if err := c.reap(ctx); err != nil {
			return err
		}
	}
	return nil
}

// reap performs one pass over the pool in storage order: every entry
// whose handle reports not running is evicted and its callback invoked
// exactly once. A callback error aborts the pass; the eviction for that
// entry stands and remaining in-flight jobs are left unreaped.
func (c *Controller) reap(ctx context.Context) error {
	for _, entry := range c.pool.Entries() {
		if entry.Handle.Running() {
			continue
		}

		c.pool.Remove(entry)
		c.logger.Debug("Job finished", "jobId", entry.JobID, "inFlight", c.pool.Len())
		if c.metrics != nil {
			c.metrics.RecordJobCompleted(ctx, time.Since(entry.admittedAt).Seconds())
		}

		if c.onComplete != nil {
			if err := c.onComplete(entry.JobID, entry.Handle); err != nil {
				return apperrors.Callback(entry.JobID, err)
			}
		}
	}

	if c.metrics != nil {
		c.metrics.RecordReapScan(ctx)
		c.metrics.RecordPoolSize(ctx, int64(c.pool.Len()))
	}
	return nil
}
