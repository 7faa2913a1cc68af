package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"batchctl/internal/testutil"
	"batchctl/pkg/webhook"
)

func TestNotifierDelivers(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := New(Config{URL: server.URL, BufferSize: 10, Workers: 2}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	code := 0
	if err := n.Publish(webhook.NewJobFinished("job-1", &code)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool {
		return received.Load() >= 1
	}, testutil.WithTimeout(5*time.Second))

	stats := n.Stats()
	if stats.Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", stats.Delivered)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Close(ctx)
}

func TestNotifierRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := New(Config{URL: server.URL, BufferSize: 10, Workers: 1}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	n.Publish(webhook.NewBatchFinished())

	testutil.MustWaitFor(t, func() bool {
		return n.Stats().Delivered >= 1
	}, testutil.WithTimeout(10*time.Second))

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Close(ctx)
}

func TestNotifierDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n, err := New(Config{URL: server.URL, BufferSize: 10, Workers: 1}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	n.Publish(webhook.NewBatchFinished())

	testutil.MustWaitFor(t, func() bool {
		return n.Stats().Failed >= 1
	}, testutil.WithTimeout(5*time.Second))

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt for client error, got %d", attempts.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Close(ctx)
}

func TestNotifierBufferFull(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(block)

	n, err := New(Config{URL: server.URL, BufferSize: 1, Workers: 1}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var dropped bool
	for i := 0; i < 10; i++ {
		if err := n.Publish(webhook.NewBatchFinished()); err == ErrBufferFull {
			dropped = true
		}
	}
	if !dropped {
		t.Error("expected ErrBufferFull with a blocked worker and tiny buffer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n.Close(ctx)
}

func TestNotifierRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestNotifierClosedRejectsPublish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := New(Config{URL: server.URL}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Close(ctx)

	if err := n.Publish(webhook.NewBatchFinished()); err == nil {
		t.Error("expected error publishing to a closed notifier")
	}
}
