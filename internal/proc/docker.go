package proc

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"batchctl/internal/apperrors"
	"batchctl/internal/job"
)

// Container labels used to identify jobs managed by this runner.
const (
	labelManagedBy = "managed-by"
	labelJobID     = "job.id"
	managedByValue = "batchctl"
)

// DockerFactory runs jobs as containers on the local Docker daemon.
// Descriptors must carry an image; the command is optional (the image
// entrypoint runs when it is absent).
type DockerFactory struct {
	client *client.Client
}

// NewDockerFactory creates a Docker-backed factory using the environment's
// daemon configuration.
func NewDockerFactory() (*DockerFactory, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.Internal("docker.connect", err)
	}
	return &DockerFactory{client: dockerClient}, nil
}

// Ready checks that the Docker daemon is reachable.
func (f *DockerFactory) Ready(ctx context.Context) error {
	_, err := f.client.Ping(ctx)
	if err != nil {
		return apperrors.Internal("docker.ping", err)
	}
	return nil
}

// Close releases the client. Running containers are not stopped.
func (f *DockerFactory) Close() error {
	return f.client.Close()
}

// New creates the job container without starting it.
func (f *DockerFactory) New(j *job.Job) (Handle, error) {
	if j.Image == "" {
		return nil, apperrors.Validation("image", "image is required for container jobs")
	}

	env := make([]string, 0, len(j.Env))
	for k, v := range j.Env {
		env = append(env, k+"="+v)
	}

	stopTimeout := j.TimeoutSeconds
	cfg := &container.Config{
		Image:       j.Image,
		Cmd:         j.Command,
		Env:         env,
		WorkingDir:  j.Dir,
		StopTimeout: &stopTimeout,
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelJobID:     j.ID,
		},
	}

	name := ""
	if j.ID != "" {
		name = fmt.Sprintf("batchctl-job-%s", j.ID)
	}

	resp, err := f.client.ContainerCreate(context.Background(), cfg, &container.HostConfig{}, nil, nil, name)
	if err != nil {
		return nil, apperrors.Internal("docker.create", err)
	}

	return &dockerHandle{
		client:      f.client,
		jobID:       j.ID,
		containerID: resp.ID,
	}, nil
}

// dockerHandle is a job running as a container.
type dockerHandle struct {
	client      *client.Client
	jobID       string
	containerID string
	started     atomic.Bool
}

// Start starts the container. Must be called exactly once.
func (h *dockerHandle) Start(ctx context.Context) error {
	if h.started.Swap(true) {
		return apperrors.Internal("docker.start", fmt.Errorf("handle already started"))
	}
	if err := h.client.ContainerStart(ctx, h.containerID, container.StartOptions{}); err != nil {
		return apperrors.Internal("docker.start", err)
	}
	return nil
}

// Running reports whether the container is still executing. A container
// that has been removed counts as finished; transient daemon errors are
// reported as still running so the poll loop retries rather than reaping
// a live job.
func (h *dockerHandle) Running() bool {
	if !h.started.Load() {
		return false
	}

	inspect, err := h.client.ContainerInspect(context.Background(), h.containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false
		}
		slog.Warn("Container inspect failed", "jobId", h.jobID, "containerId", h.containerID, "error", err)
		return true
	}
	return inspect.State.Running
}

// ExitCode returns the container exit code once it has stopped.
func (h *dockerHandle) ExitCode() (int, bool) {
	inspect, err := h.client.ContainerInspect(context.Background(), h.containerID)
	if err != nil || inspect.State.Running {
		return 0, false
	}
	return inspect.State.ExitCode, true
}

var (
	_ Handle    = (*dockerHandle)(nil)
	_ ExitCoder = (*dockerHandle)(nil)
	_ Factory   = (*DockerFactory)(nil)
)
