// Package job defines the job descriptor and the descriptor source consumed
// by the batch controller.
package job

import (
	"fmt"
	"regexp"
	"time"

	"batchctl/internal/apperrors"
)

// Validation limits
const (
	maxJobIDLength = 128
	maxTimeoutSecs = 86400 // 24 hours
	maxEnvEntries  = 256
	maxEnvKeyLen   = 128
	maxEnvValueLen = 4096
)

// DefaultTimeout is applied when a descriptor does not set one.
const DefaultTimeout = 60 * time.Second

// jobIDPattern allows alphanumeric, hyphens, and underscores
var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Job describes one unit of external work. It is created by the caller
// and read-only to the controller.
type Job struct {
	ID             string            `json:"id,omitempty" yaml:"id,omitempty"`
	Command        []string          `json:"command" yaml:"command"`
	Image          string            `json:"image,omitempty" yaml:"image,omitempty"`
	Dir            string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Input          string            `json:"input,omitempty" yaml:"input,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// Timeout returns the effective execution timeout.
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// ApplyDefaults sets default values for unspecified descriptor fields.
func ApplyDefaults(j *Job) {
	if j.TimeoutSeconds <= 0 {
		j.TimeoutSeconds = int(DefaultTimeout / time.Second)
	}
}

// Validate validates a job descriptor. Does not modify the descriptor.
// The command field is deliberately not checked here: whether a command
// is required depends on the process factory in use.
func Validate(j *Job) error {
	if j == nil {
		return apperrors.Validation("", "job descriptor is nil")
	}

	if j.ID != "" {
		if len(j.ID) > maxJobIDLength {
			return apperrors.Validation("id", fmt.Sprintf("job ID exceeds maximum length of %d", maxJobIDLength))
		}
		if !jobIDPattern.MatchString(j.ID) {
			return apperrors.Validation("id", "job ID must be alphanumeric (hyphens and underscores allowed, cannot start with hyphen/underscore)")
		}
	}

	if j.TimeoutSeconds > maxTimeoutSecs {
		return apperrors.Validation("timeoutSeconds", fmt.Sprintf("timeout exceeds maximum of %d seconds", maxTimeoutSecs))
	}

	if len(j.Env) > maxEnvEntries {
		return apperrors.Validation("env", fmt.Sprintf("environment exceeds maximum of %d entries", maxEnvEntries))
	}
	for k, v := range j.Env {
		if k == "" {
			return apperrors.Validation("env", "environment key must not be empty")
		}
		if len(k) > maxEnvKeyLen {
			return apperrors.Validation("env", fmt.Sprintf("environment key exceeds maximum length of %d", maxEnvKeyLen))
		}
		if len(v) > maxEnvValueLen {
			return apperrors.Validation("env", fmt.Sprintf("environment value exceeds maximum length of %d", maxEnvValueLen))
		}
	}

	return nil
}
