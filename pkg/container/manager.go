package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sony/gobreaker"
)

// Runtime is the narrow async interface the rest of the module programs
// against; Manager is the Docker-backed implementation.
type Runtime interface {
	CreateContainer(ctx context.Context, cfg Config) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	Exec(ctx context.Context, id string, argv []string) (ExecResult, error)
	Wait(ctx context.Context, id string) (int, error)
	InspectStatus(ctx context.Context, id string) (RuntimeState, error)
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	Logs(ctx context.Context, id string) (string, error)
}

// Manager mediates all interaction with the Docker daemon. A circuit
// breaker wraps every daemon call so repeated daemon outages fail fast
// instead of piling up goroutines on a dead socket.
type Manager struct {
	client  *dockerclient.Client
	breaker *gobreaker.CircuitBreaker
}

// NewManager connects to the daemon referenced by the environment
// (DOCKER_HOST et al., via client.FromEnv) and negotiates the API version.
func NewManager() (*Manager, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, newErr(DaemonUnavailable, "failed to construct docker client", err)
	}

	st := gobreaker.Settings{
		Name:        "docker-daemon",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("container runtime circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	}

	return &Manager{
		client:  cli,
		breaker: gobreaker.NewCircuitBreaker(st),
	}, nil
}

// call routes every daemon operation through the breaker, translating a
// tripped breaker into DaemonUnavailable.
func (m *Manager) call(fn func() (any, error)) (any, error) {
	result, err := m.breaker.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, newErr(DaemonUnavailable, "circuit breaker open", err)
		}
		return nil, err
	}
	return result, nil
}

// CreateContainer pulls the image if absent, then creates a container with
// the difficulty-derived resource limits from cfg.
func (m *Manager) CreateContainer(ctx context.Context, cfg Config) (string, error) {
	exists, err := m.ImageExists(ctx, cfg.Image)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := m.PullImage(ctx, cfg.Image); err != nil {
			return "", err
		}
	}

	period, quota := cfg.Limits.CPUPeriodQuota()

	mounts := make([]mount.Mount, 0, len(cfg.Mounts))
	for _, mnt := range cfg.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   mnt.Source,
			Target:   mnt.Target,
			ReadOnly: mnt.ReadOnly,
		})
	}

	workingDir := cfg.WorkingDir
	if workingDir == "" {
		workingDir = "/workspace"
	}
	netMode := cfg.NetworkMode
	if netMode == "" {
		netMode = NetworkBridge
	}

	pidsLimit := int64(cfg.Limits.MaxProcesses)

	v, err := m.call(func() (any, error) {
		resp, err := m.client.ContainerCreate(ctx,
			&container.Config{
				Image:      cfg.Image,
				Cmd:        []string{"sleep", "infinity"},
				Env:        cfg.Env,
				WorkingDir: workingDir,
				Tty:        false,
			},
			&container.HostConfig{
				NetworkMode: container.NetworkMode(netMode),
				Mounts:      mounts,
				Resources: container.Resources{
					Memory:     cfg.Limits.MemoryBytes(),
					CPUPeriod:  period,
					CPUQuota:   quota,
					PidsLimit:  &pidsLimit,
				},
			},
			nil, nil, "",
		)
		return resp.ID, err
	})
	if err != nil {
		return "", newErr(RunFailed, "container create failed", err)
	}
	return v.(string), nil
}

// Start starts a previously created container.
func (m *Manager) Start(ctx context.Context, id string) error {
	_, err := m.call(func() (any, error) {
		return nil, m.client.ContainerStart(ctx, id, container.StartOptions{})
	})
	if err != nil {
		return translateErr(err, "container start failed")
	}
	return nil
}

// Stop sends SIGTERM and waits up to the default grace period before the
// daemon escalates to SIGKILL.
func (m *Manager) Stop(ctx context.Context, id string) error {
	timeout := int(defaultStopGrace.Seconds())
	_, err := m.call(func() (any, error) {
		return nil, m.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	})
	if err != nil {
		return translateErr(err, "container stop failed")
	}
	return nil
}

// Remove deletes the container, optionally forcing removal of a running
// container and its anonymous volumes.
func (m *Manager) Remove(ctx context.Context, id string, force bool) error {
	_, err := m.call(func() (any, error) {
		return nil, m.client.ContainerRemove(ctx, id, container.RemoveOptions{
			Force:         force,
			RemoveVolumes: true,
		})
	})
	if err != nil {
		return translateErr(err, "container remove failed")
	}
	return nil
}

// Exec runs argv inside a running container and collects its stdout and
// stderr (demultiplexed into separate buffers) and its exit code via a
// follow-up inspect.
func (m *Manager) Exec(ctx context.Context, id string, argv []string) (ExecResult, error) {
	v, err := m.call(func() (any, error) {
		execID, err := m.client.ContainerExecCreate(ctx, id, container.ExecOptions{
			Cmd:          argv,
			AttachStdout: true,
			AttachStderr: true,
		})
		if err != nil {
			return nil, err
		}

		attach, err := m.client.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
		if err != nil {
			return nil, err
		}
		defer attach.Close()

		var stdout, stderr bytes.Buffer
		if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
			return nil, err
		}

		inspect, err := m.client.ContainerExecInspect(ctx, execID.ID)
		if err != nil {
			return nil, err
		}

		exitCode := -1
		if !inspect.Running {
			exitCode = inspect.ExitCode
		}

		return ExecResult{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	})
	if err != nil {
		return ExecResult{}, translateErr(err, "exec failed")
	}
	return v.(ExecResult), nil
}

// Wait blocks until the container exits and returns its exit code.
func (m *Manager) Wait(ctx context.Context, id string) (int, error) {
	v, err := m.call(func() (any, error) {
		statusCh, errCh := m.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			if err != nil {
				return nil, err
			}
			// Empty wait stream: read the exit code from the container state.
			inspect, err := m.client.ContainerInspect(ctx, id)
			if err != nil {
				return nil, err
			}
			if inspect.State != nil && inspect.State.Status == "exited" {
				return inspect.State.ExitCode, nil
			}
			return 0, nil
		case status := <-statusCh:
			return int(status.StatusCode), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		// If the wait itself failed, fall back to inspect.
		state, inspectErr := m.InspectStatus(ctx, id)
		if inspectErr == nil && state.ExitCode != nil {
			return *state.ExitCode, nil
		}
		return 0, translateErr(err, "wait failed")
	}
	return v.(int), nil
}

// InspectStatus translates the daemon's container state into RuntimeState.
func (m *Manager) InspectStatus(ctx context.Context, id string) (RuntimeState, error) {
	v, err := m.call(func() (any, error) {
		return m.client.ContainerInspect(ctx, id)
	})
	if err != nil {
		return RuntimeState{}, translateErr(err, "inspect failed")
	}
	inspect := v.(container.InspectResponse)
	if inspect.State == nil {
		return RuntimeState{Status: StatusUnknown, Raw: "no state reported"}, nil
	}

	state := inspect.State
	result := RuntimeState{Raw: state.Status}
	switch state.Status {
	case "created":
		result.Status = StatusCreated
	case "running":
		result.Status = StatusRunning
	case "paused":
		result.Status = StatusPaused
	case "restarting":
		result.Status = StatusRestarting
	case "removing":
		result.Status = StatusRemoving
	case "exited":
		result.Status = StatusExited
		code := state.ExitCode
		result.ExitCode = &code
	case "dead":
		result.Status = StatusDead
	default:
		result.Status = StatusUnknown
	}
	return result, nil
}

// ImageExists reports whether ref is present in the local image store.
func (m *Manager) ImageExists(ctx context.Context, ref string) (bool, error) {
	v, err := m.call(func() (any, error) {
		images, err := m.client.ImageList(ctx, image.ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			for _, tag := range img.RepoTags {
				if tag == ref {
					return true, nil
				}
			}
		}
		return false, nil
	})
	if err != nil {
		return false, translateErr(err, "image list failed")
	}
	return v.(bool), nil
}

// PullImage streams the pull progress to completion; any error aborts with BuildFailed.
func (m *Manager) PullImage(ctx context.Context, ref string) error {
	_, err := m.call(func() (any, error) {
		rc, err := m.client.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		_, err = io.Copy(io.Discard, rc)
		return nil, err
	})
	if err != nil {
		return newErr(BuildFailed, fmt.Sprintf("failed to pull image %s", ref), err)
	}
	return nil
}

// Logs pulls the full stdout+stderr log stream for a container. A pull
// failure yields a placeholder string rather than an error, matching the
// runner's "always return logs" cleanup contract.
func (m *Manager) Logs(ctx context.Context, id string) (string, error) {
	v, err := m.call(func() (any, error) {
		rc, err := m.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil && err != io.EOF {
			return nil, err
		}
		return buf.String(), nil
	})
	if err != nil {
		slog.Warn("failed to pull container logs, returning placeholder", "container_id", id, "error", err)
		return "<log unavailable>", nil
	}
	return v.(string), nil
}

// translateErr classifies a raw docker-client error into the DockerError sum.
func translateErr(err error, msg string) error {
	if dockerclient.IsErrNotFound(err) {
		return newErr(ContainerNotFound, msg, err)
	}
	if dockerclient.IsErrConnectionFailed(err) {
		return newErr(DaemonUnavailable, msg, err)
	}
	return newErr(RunFailed, msg, err)
}
