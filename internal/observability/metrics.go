// Package observability provides metrics for the batch runner.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics:
// - Traffic: jobs admitted / completed, reap scans
// - Latency: job duration
// - Errors: webhook delivery failures
// - Saturation: in-flight jobs, webhook queue size
type Metrics struct {
	meter metric.Meter

	// Batch controller metrics
	JobsAdmitted  metric.Int64Counter
	JobsCompleted metric.Int64Counter
	JobsInFlight  metric.Int64UpDownCounter
	AdmissionWait metric.Float64Histogram
	JobDuration   metric.Float64Histogram
	ReapScans     metric.Int64Counter
	PoolSize      metric.Int64Gauge

	// Webhook notifier metrics
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
	NotifyDropped   metric.Int64Counter
	NotifyDuration  metric.Float64Histogram
	NotifyQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("batchctl")
	m := &Metrics{meter: meter}

	m.JobsAdmitted, err = meter.Int64Counter(
		"jobs_admitted_total",
		metric.WithDescription("Total number of jobs admitted to the pool"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of jobs reaped as finished"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsInFlight, err = meter.Int64UpDownCounter(
		"jobs_in_flight",
		metric.WithDescription("Number of currently running jobs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.AdmissionWait, err = meter.Float64Histogram(
		"admission_wait_seconds",
		metric.WithDescription("Time spent waiting for a free slot before each admission"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Job wall time from admission to reap in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ReapScans, err = meter.Int64Counter(
		"reap_scans_total",
		metric.WithDescription("Total number of completion scans over the pool"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PoolSize, err = meter.Int64Gauge(
		"pool_size",
		metric.WithDescription("Pool size observed at the end of each reap scan"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total webhook events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total webhook events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDropped, err = meter.Int64Counter(
		"notify_dropped_total",
		metric.WithDescription("Total webhook events dropped due to a full buffer"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyQueueSize, err = meter.Int64Gauge(
		"notify_queue_size",
		metric.WithDescription("Current number of events in the webhook queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordJobAdmitted records a job entering the pool.
func (m *Metrics) RecordJobAdmitted(ctx context.Context) {
	m.JobsAdmitted.Add(ctx, 1)
	m.JobsInFlight.Add(ctx, 1)
}

// RecordAdmissionWait records how long the controller blocked for a slot.
func (m *Metrics) RecordAdmissionWait(ctx context.Context, durationSeconds float64) {
	m.AdmissionWait.Record(ctx, durationSeconds)
}

// RecordJobCompleted records a job being reaped, with its wall time.
func (m *Metrics) RecordJobCompleted(ctx context.Context, durationSeconds float64) {
	m.JobsCompleted.Add(ctx, 1)
	m.JobsInFlight.Add(ctx, -1)
	m.JobDuration.Record(ctx, durationSeconds)
}

// RecordReapScan records one completion scan over the pool.
func (m *Metrics) RecordReapScan(ctx context.Context) {
	m.ReapScans.Add(ctx, 1)
}

// RecordPoolSize records the pool size after a scan.
func (m *Metrics) RecordPoolSize(ctx context.Context, size int64) {
	m.PoolSize.Record(ctx, size)
}

// RecordNotifyDelivered records a successful webhook delivery with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a failed webhook delivery.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// RecordNotifyDropped records a dropped webhook event.
func (m *Metrics) RecordNotifyDropped(ctx context.Context) {
	m.NotifyDropped.Add(ctx, 1)
}

// RecordNotifyQueueSize records the current webhook queue size.
func (m *Metrics) RecordNotifyQueueSize(ctx context.Context, size int64) {
	m.NotifyQueueSize.Record(ctx, size)
}
