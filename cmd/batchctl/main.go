// batchctl runs a batch of external jobs with bounded concurrency.
//
// Usage: batchctl <batch-file.yaml>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batchctl/internal/batch"
	"batchctl/internal/batchfile"
	"batchctl/internal/config"
	"batchctl/internal/notify"
	"batchctl/internal/observability"
	"batchctl/internal/proc"
	"batchctl/pkg/webhook"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: batchctl <batch-file.yaml>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		slog.Error("Batch failed", "error", err)
		os.Exit(1)
	}
}

func run(path string) error {
	// Cancelled on SIGINT/SIGTERM. Cancellation stops the controller;
	// already-started jobs keep running.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runnerCfg := config.LoadRunnerConfig()
	notifyCfg := notify.LoadConfigFromEnv()

	file, err := batchfile.Load(path)
	if err != nil {
		return err
	}

	maxConcurrent := runnerCfg.MaxConcurrent
	if file.MaxConcurrent != nil {
		maxConcurrent = *file.MaxConcurrent
	}
	pollInterval := runnerCfg.PollInterval
	if file.PollInterval > 0 {
		pollInterval = time.Duration(file.PollInterval)
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if runnerCfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:         runnerCfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Starting metrics server", "addr", runnerCfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	var notifier *notify.Notifier
	if notifyCfg.URL != "" {
		notifier, err = notify.New(notifyCfg, metrics)
		if err != nil {
			return err
		}
	}

	factory, cleanup, err := buildFactory(runnerCfg.Runtime)
	if err != nil {
		return err
	}
	defer cleanup()

	controller, err := batch.New(batch.Config{
		Source:        file.Source(),
		Factory:       factory,
		MaxConcurrent: maxConcurrent,
		PollInterval:  pollInterval,
		OnComplete:    completionFunc(notifier),
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	slog.Info("Starting batch", "jobs", len(file.Jobs), "maxConcurrent", maxConcurrent, "pollInterval", pollInterval, "runtime", runnerCfg.Runtime)

	runErr := controller.Run(ctx)
	if runErr != nil {
		slog.Error("Batch aborted", "error", runErr, "inFlight", controller.InFlight())
	}

	if notifier != nil {
		if runErr == nil {
			_ = notifier.Publish(webhook.NewBatchFinished())
		}
		slog.Info("Draining notifier")
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.Close(drainCtx); err != nil {
			slog.Warn("Notifier shutdown error", "error", err)
		}
		stats := notifier.Stats()
		slog.Info("Notifier stats", "delivered", stats.Delivered, "failed", stats.Failed, "dropped", stats.Dropped)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	return runErr
}

// buildFactory selects the descriptor-to-handle strategy.
func buildFactory(runtime string) (proc.Factory, func(), error) {
	switch runtime {
	case config.RuntimeExec:
		return proc.NewExecFactory(), func() {}, nil
	case config.RuntimeDocker:
		f, err := proc.NewDockerFactory()
		if err != nil {
			return nil, nil, err
		}
		if err := f.Ready(context.Background()); err != nil {
			f.Close()
			return nil, nil, err
		}
		slog.Info("Connected to Docker daemon")
		return f, func() { f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime %q", runtime)
	}
}

// completionFunc logs each finished job and publishes a webhook event
// when a notifier is configured.
func completionFunc(notifier *notify.Notifier) batch.CompletionFunc {
	return func(jobID string, h proc.Handle) error {
		logger := slog.With("jobId", jobID)

		var exitCode *int
		if ec, ok := h.(proc.ExitCoder); ok {
			if code, known := ec.ExitCode(); known {
				exitCode = &code
				logger = logger.With("exitCode", code)
			}
		}
		logger.Info("Job finished")

		if notifier != nil {
			if err := notifier.Publish(webhook.NewJobFinished(jobID, exitCode)); err != nil {
				slog.Warn("Failed to queue webhook event", "jobId", jobID, "error", err)
			}
		}
		return nil
	}
}
