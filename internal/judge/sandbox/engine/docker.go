package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smartsolution/internal/judge/sandbox"
	"smartsolution/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const (
	defaultDockerImage     = "python:3.11-slim"
	defaultDockerWorkspace = "/workspace"
	dockerCleanupTimeout   = 30 * time.Second
)

// DockerConfig controls the container executor.
type DockerConfig struct {
	Image string `yaml:"image"`
	// Workspace is where the run directory is mounted inside the container.
	Workspace string `yaml:"workspace"`
	// User runs the program as this uid:gid inside the container when set.
	// The mounted run directory is then opened to all users so the program can write its output.
	User string `yaml:"user"`
}

// DockerAPI is the container lifecycle the executor drives.
type DockerAPI interface {
	CreateContainer(ctx context.Context, config *container.Config, hostConfig *container.HostConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	// WaitContainer blocks until the container is no longer running and returns its exit code.
	WaitContainer(ctx context.Context, id string) (int64, error)
	OOMKilled(ctx context.Context, id string) (bool, error)
	Logs(ctx context.Context, id string) (io.ReadCloser, error)
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
}

// dockerClient adapts the docker SDK client to DockerAPI.
type dockerClient struct {
	cli *client.Client
}

func (d *dockerClient) CreateContainer(ctx context.Context, config *container.Config, hostConfig *container.HostConfig) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *dockerClient) StartContainer(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d *dockerClient) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case resp := <-statusCh:
		if resp.Error != nil {
			return -1, fmt.Errorf("container error: %s", resp.Error.Message)
		}
		return resp.StatusCode, nil
	}
}

func (d *dockerClient) OOMKilled(ctx context.Context, id string) (bool, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, err
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return false, nil
	}
	return inspect.State.OOMKilled, nil
}

func (d *dockerClient) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	return d.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
}

func (d *dockerClient) KillContainer(ctx context.Context, id string) error {
	return d.cli.ContainerKill(ctx, id, "SIGKILL")
}

func (d *dockerClient) RemoveContainer(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// DockerExecutor runs each program in a throwaway container with networking disabled.
type DockerExecutor struct {
	api DockerAPI
	cfg DockerConfig
}

// NewDockerExecutor connects to the daemon configured in the environment.
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewDockerExecutorWithAPI(&dockerClient{cli: cli}, cfg), nil
}

// NewDockerExecutorWithAPI wraps an existing client.
func NewDockerExecutorWithAPI(api DockerAPI, cfg DockerConfig) *DockerExecutor {
	if cfg.Image == "" {
		cfg.Image = defaultDockerImage
	}
	if cfg.Workspace == "" {
		cfg.Workspace = defaultDockerWorkspace
	}
	return &DockerExecutor{api: api, cfg: cfg}
}

type dockerProcess struct {
	api         DockerAPI
	containerID string
	stdout      io.Writer
	stderr      io.Writer

	killOnce   sync.Once
	removeOnce sync.Once
}

// Start creates and starts the container. The container is removed on every exit path.
func (e *DockerExecutor) Start(ctx context.Context, spec sandbox.Spec, stdout, stderr io.Writer) (sandbox.Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	hostDir, err := filepath.Abs(spec.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if e.cfg.User != "" {
		if err := os.Chmod(hostDir, 0777); err != nil {
			return nil, fmt.Errorf("open work dir to container user: %w", err)
		}
	}

	containerConfig := &container.Config{
		Image:           e.cfg.Image,
		Cmd:             spec.Command,
		WorkingDir:      e.cfg.Workspace,
		Env:             spec.Env,
		User:            e.cfg.User,
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: hostDir,
			Target: e.cfg.Workspace,
		}},
		Resources: buildResources(spec.Limits),
	}

	id, err := e.api.CreateContainer(ctx, containerConfig, hostConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	proc := &dockerProcess{api: e.api, containerID: id, stdout: stdout, stderr: stderr}

	if err := e.api.StartContainer(ctx, id); err != nil {
		proc.remove()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	return proc, nil
}

func buildResources(limits sandbox.Limits) container.Resources {
	res := container.Resources{}
	if limits.Memory > 0 {
		res.Memory = limits.Memory
		res.MemorySwap = limits.Memory
	}
	if limits.CPUs > 0 {
		res.NanoCPUs = int64(limits.CPUs * 1e9)
	}
	if limits.PIDs > 0 {
		pids := limits.PIDs
		res.PidsLimit = &pids
	}
	return res
}

// Wait blocks until the container stops, copies its logs, then removes it.
func (p *dockerProcess) Wait() (sandbox.ExitStatus, error) {
	defer p.remove()

	ctx := context.Background()
	status := sandbox.ExitStatus{ExitCode: -1}
	code, err := p.api.WaitContainer(ctx, p.containerID)
	if err != nil {
		return status, fmt.Errorf("error waiting for container: %w", err)
	}
	status.ExitCode = int(code)
	// 128+n is how the daemon reports death by signal n.
	status.Signaled = code > 128

	if oom, err := p.api.OOMKilled(ctx, p.containerID); err == nil {
		status.OOMKilled = oom
	}

	logs, err := p.api.Logs(ctx, p.containerID)
	if err != nil {
		logger.Warn(ctx, "read container logs failed", zap.String("container", p.containerID), zap.Error(err))
		return status, nil
	}
	defer logs.Close()
	if _, err := stdcopy.StdCopy(p.stdout, p.stderr, logs); err != nil {
		logger.Warn(ctx, "demultiplex container logs failed", zap.String("container", p.containerID), zap.Error(err))
	}
	return status, nil
}

func (p *dockerProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dockerCleanupTimeout)
		defer cancel()
		err = p.api.KillContainer(ctx, p.containerID)
	})
	return err
}

func (p *dockerProcess) remove() {
	p.removeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dockerCleanupTimeout)
		defer cancel()
		if err := p.api.RemoveContainer(ctx, p.containerID); err != nil {
			logger.Warn(ctx, "remove container failed", zap.String("container", p.containerID), zap.Error(err))
		}
	})
}
