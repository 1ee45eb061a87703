// Package container restarts the VPN container through the Docker Engine API.
package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Restarter restarts a named container and waits until it is running again.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

// dockerAPI is the subset of the Docker client used here.
type dockerAPI interface {
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Close() error
}

// DockerRestarter implements [Restarter] against the local Docker daemon.
type DockerRestarter struct {
	api          dockerAPI
	clock        clockwork.Clock
	stopTimeout  int
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// NewDockerRestarter connects to the daemon configured by the DOCKER_*
// environment variables. stopTimeout is the grace period given to the
// container before it is killed; readiness is polled on clock.
func NewDockerRestarter(clock clockwork.Clock, stopTimeout time.Duration, log logrus.FieldLogger) (*DockerRestarter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerRestarter(cli, clock, stopTimeout, log), nil
}

func newDockerRestarter(api dockerAPI, clock clockwork.Clock, stopTimeout time.Duration, log logrus.FieldLogger) *DockerRestarter {
	return &DockerRestarter{
		api:          api,
		clock:        clock,
		stopTimeout:  int(stopTimeout / time.Second),
		pollInterval: time.Second,
		log:          log,
	}
}

// Restart restarts the container and blocks until Docker reports it running
// (and healthy, when the image defines a health check) or ctx expires.
func (r *DockerRestarter) Restart(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("container name is empty")
	}

	timeout := r.stopTimeout
	if err := r.api.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	r.log.WithField("container", name).Info("Container restart issued")

	for {
		ready, err := r.ready(ctx, name)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("container %s did not become ready: %w", name, ctx.Err())
		case <-r.clock.After(r.pollInterval):
		}
	}
}

func (r *DockerRestarter) ready(ctx context.Context, name string) (bool, error) {
	info, err := r.api.ContainerInspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		return false, nil
	}
	if info.State.Health != nil && info.State.Health.Status != container.Healthy {
		return false, nil
	}
	return true, nil
}

// Close releases the Docker client.
func (r *DockerRestarter) Close() error {
	return r.api.Close()
}
