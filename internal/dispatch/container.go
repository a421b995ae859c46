package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// ContainerRunner runs a Dark/Flat/analysis shell tool inside a pinned
// image rather than directly on the host, for reproducible tool
// versions across nights (SPEC_FULL's domain-stack wiring of
// github.com/docker/docker). Grounded on the teacher's DockerDispatcher
// (same client construction, bind-mount-plus-run shape), but reworked
// from "launch a long-lived agent session and poll it" into "run one
// short-lived tool invocation to completion and collect its output" —
// the acquisition tools spec.md §4.8 describes are blocking, not
// agentic.
type ContainerRunner struct {
	cli       *client.Client
	Image     string
	WorkDir   string // host directory bind-mounted as the container's /work
}

// NewContainerRunner connects to the local Docker daemon using
// environment-derived configuration, matching NewDockerDispatcher's
// client construction. A nil *ContainerRunner.cli (Docker unreachable)
// is reported by every method rather than panicking, so a deployment
// without Docker can still fall back to direct host execution via
// ThrottledPool.
func NewContainerRunner(image, workDir string) (*ContainerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dispatch: docker client: %w", err)
	}
	return &ContainerRunner{cli: cli, Image: image, WorkDir: workDir}, nil
}

// Run starts a container running argv against the pinned image, waits
// for it to exit, and returns its combined stdout/stderr. The
// container is always removed afterward regardless of outcome.
func (r *ContainerRunner) Run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("dispatch: empty command")
	}
	if r.cli == nil {
		return "", fmt.Errorf("dispatch: no docker client")
	}

	name := fmt.Sprintf("astrosession-tool-%s", uuid.New().String())
	absWorkDir, err := filepath.Abs(r.WorkDir)
	if err != nil {
		return "", fmt.Errorf("dispatch: resolve workdir: %w", err)
	}
	if err := os.MkdirAll(absWorkDir, 0o755); err != nil {
		return "", fmt.Errorf("dispatch: create workdir: %w", err)
	}

	cfg := &container.Config{
		Image:      r.Image,
		Cmd:        argv,
		Tty:        false,
		WorkingDir: "/work",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: absWorkDir, Target: "/work"},
		},
		AutoRemove: false,
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("dispatch: create container: %w", err)
	}
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.cli.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("dispatch: start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("dispatch: wait for container: %w", err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			out, _ := r.collectLogs(ctx, resp.ID)
			return out, fmt.Errorf("dispatch: tool exited %d", status.StatusCode)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return r.collectLogs(ctx, resp.ID)
}

func (r *ContainerRunner) collectLogs(ctx context.Context, containerID string) (string, error) {
	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("dispatch: fetch logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", fmt.Errorf("dispatch: demux logs: %w", err)
	}
	return stdout.String() + stderr.String(), nil
}
