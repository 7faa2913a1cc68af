// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Runtime names accepted by RUNTIME.
const (
	RuntimeExec   = "exec"
	RuntimeDocker = "docker"
)

// RunnerConfig holds configuration for a batch run. Batch file settings
// take precedence for max concurrency and poll interval; these act as
// fallbacks.
type RunnerConfig struct {
	MaxConcurrent int           // concurrency ceiling
	PollInterval  time.Duration // sleep between completion scans
	Runtime       string        // "exec" or "docker"
	MetricsAddr   string        // address for /metrics, empty disables the listener
}

// LoadRunnerConfig loads runner configuration from environment variables.
func LoadRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		MaxConcurrent: GetIntEnv("MAX_CONCURRENT", 4),
		PollInterval:  GetDurationEnv("POLL_INTERVAL", 100*time.Millisecond),
		Runtime:       GetEnv("RUNTIME", RuntimeExec),
		MetricsAddr:   GetEnv("METRICS_ADDR", ""),
	}
}
