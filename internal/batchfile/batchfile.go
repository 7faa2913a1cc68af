// Package batchfile loads batch definitions from YAML files.
package batchfile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"batchctl/internal/apperrors"
	"batchctl/internal/job"
)

// Duration parses YAML scalars like "250ms" or "2m" via time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// File is a batch definition: run settings plus the job list.
type File struct {
	MaxConcurrent *int       `yaml:"maxConcurrent,omitempty"`
	PollInterval  Duration   `yaml:"pollInterval,omitempty"`
	Jobs          []*job.Job `yaml:"jobs"`
}

// Parse decodes a batch definition from YAML content.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Validation("", fmt.Sprintf("invalid batch file: %v", err))
	}

	if f.MaxConcurrent != nil && *f.MaxConcurrent < 0 {
		return nil, apperrors.Validation("maxConcurrent", "max concurrent must be >= 0")
	}
	for i, j := range f.Jobs {
		if j == nil {
			return nil, apperrors.Validation("jobs", fmt.Sprintf("job %d is empty", i))
		}
		if err := job.Validate(j); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Load reads and parses a batch definition file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Internal("batchfile.read", err)
	}
	return Parse(data)
}

// Source returns a job source over the file's jobs.
func (f *File) Source() job.Source {
	return job.NewSliceSource(f.Jobs)
}
