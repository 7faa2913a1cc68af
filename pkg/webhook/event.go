// Package webhook delivers signed job lifecycle events over HTTP.
package webhook

import "time"

// Event types emitted by the batch runner.
const (
	EventJobFinished   = "job.finished"
	EventBatchFinished = "batch.finished"
)

// Event is the JSON payload posted to a webhook endpoint.
type Event struct {
	Type     string    `json:"type"`
	JobID    string    `json:"jobId,omitempty"`
	ExitCode *int      `json:"exitCode,omitempty"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
}

// NewJobFinished builds a completion event for one job. exitCode may be
// nil when the handle cannot report one.
func NewJobFinished(jobID string, exitCode *int) *Event {
	return &Event{
		Type:     EventJobFinished,
		JobID:    jobID,
		ExitCode: exitCode,
		Time:     time.Now().UTC(),
		Source:   "batchctl",
	}
}

// NewBatchFinished builds the end-of-batch event.
func NewBatchFinished() *Event {
	return &Event{
		Type:   EventBatchFinished,
		Time:   time.Now().UTC(),
		Source: "batchctl",
	}
}
