// Package notify provides async webhook delivery of job lifecycle events
// with buffering, retry, and a circuit breaker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"batchctl/pkg/backoff"
	"batchctl/pkg/circuitbreaker"
	"batchctl/pkg/webhook"
)

// ErrBufferFull is returned when the notifier's buffer is full and the
// event is dropped.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

// MetricsRecorder is an optional interface for recording notifier metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifyFailed(ctx context.Context)
	RecordNotifyDropped(ctx context.Context)
	RecordNotifyQueueSize(ctx context.Context, size int64)
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth int   // current queue size
	Queued     int64 // total events queued
	Delivered  int64 // successful deliveries
	Failed     int64 // failed after retries
	Dropped    int64 // dropped due to full buffer or open circuit
}

// Notifier delivers events to a single webhook endpoint. Events are
// queued in a bounded channel and sent by a worker pool; a full buffer
// drops the event rather than blocking the batch controller.
type Notifier struct {
	queue   chan *webhook.Event
	sender  *webhook.Sender
	breaker *circuitbreaker.Breaker
	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a notifier and starts its delivery workers.
func New(cfg Config, metrics MetricsRecorder) (*Notifier, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	n := &Notifier{
		queue:    make(chan *webhook.Event, cfg.BufferSize),
		sender:   webhook.NewSender(cfg.HTTPTimeout),
		breaker:  circuitbreaker.New(defaultBreakerThreshold, defaultBreakerCooldown),
		config:   cfg,
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}

	if metrics != nil {
		go n.reportQueueSize()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return n, nil
}

// Publish queues an event for async delivery. Non-blocking; returns
// ErrBufferFull if the event cannot be queued.
func (n *Notifier) Publish(event *webhook.Event) error {
	if n.closed.Load() {
		return fmt.Errorf("notifier is closed")
	}

	select {
	case n.queue <- event:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyDropped(context.Background())
		}
		n.logger.Warn("Event dropped, buffer full", "type", event.Type, "jobId", event.JobID)
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *Notifier) Stats() Stats {
	return Stats{
		QueueDepth: len(n.queue),
		Queued:     n.queued.Load(),
		Delivered:  n.delivered.Load(),
		Failed:     n.failed.Load(),
		Dropped:    n.dropped.Load(),
	}
}

// Close gracefully shuts down, attempting to deliver queued events.
// The context deadline controls how long to wait for the drain.
func (n *Notifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil // already closed
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

// reportQueueSize periodically reports the queue size metric.
func (n *Notifier) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.shutdown:
			return
		case <-ticker.C:
			n.metrics.RecordNotifyQueueSize(context.Background(), int64(len(n.queue)))
		}
	}
}

// worker delivers events from the queue.
func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			n.drainQueue()
			return
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

// drainQueue delivers remaining events after the shutdown signal.
func (n *Notifier) drainQueue() {
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		default:
			return
		}
	}
}

// deliver attempts delivery with retry behind the circuit breaker.
func (n *Notifier) deliver(event *webhook.Event) {
	if !n.breaker.Allow() {
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyDropped(context.Background())
		}
		n.logger.Warn("Event dropped, circuit open", "type", event.Type, "jobId", event.JobID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, event); err != nil {
		n.breaker.Failure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Delivery failed", "type", event.Type, "jobId", event.JobID, "error", err)
		return
	}

	n.breaker.Success()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, event *webhook.Event) error {
	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Delay(attempt, defaultInitialBackoff, defaultMaxBackoff)):
			}
		}

		lastErr = n.sender.Send(ctx, n.config.URL, event, n.config.SigningKey)
		if lastErr == nil {
			return nil
		}
		if webhook.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
