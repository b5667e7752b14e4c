package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"smartsolution/internal/judge/sandbox"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
)

type fakeDocker struct {
	mu         sync.Mutex
	config     *container.Config
	hostConfig *container.HostConfig
	exitCode   int64
	oom        bool
	stdout     string
	stderr     string
	startErr   error
	block      chan struct{}
	killed     int
	removed    int
}

func (f *fakeDocker) CreateContainer(ctx context.Context, config *container.Config, hostConfig *container.HostConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = config
	f.hostConfig = hostConfig
	return "c1", nil
}

func (f *fakeDocker) StartContainer(ctx context.Context, id string) error {
	return f.startErr
}

func (f *fakeDocker) WaitContainer(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
		return 137, nil
	}
	return f.exitCode, nil
}

func (f *fakeDocker) OOMKilled(ctx context.Context, id string) (bool, error) {
	return f.oom, nil
}

func (f *fakeDocker) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) KillContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed++
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
	return nil
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func TestDockerExecutorIsolationSettings(t *testing.T) {
	api := &fakeDocker{stdout: "out", stderr: "err"}
	exec := NewDockerExecutorWithAPI(api, DockerConfig{})
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	proc, err := exec.Start(context.Background(), sandbox.Spec{
		WorkDir: dir,
		Command: []string{"python3", "main.py", "input.csv"},
		Limits:  sandbox.Limits{Memory: 256 << 20, PIDs: 64, CPUs: 1},
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	status, err := proc.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.ExitCode != 0 || status.Signaled || status.OOMKilled {
		t.Fatalf("unexpected status %+v", status)
	}
	if stdout.String() != "out" || stderr.String() != "err" {
		t.Fatalf("logs not demultiplexed: %q %q", stdout.String(), stderr.String())
	}

	if !api.config.NetworkDisabled || api.hostConfig.NetworkMode != "none" {
		t.Fatalf("network must be disabled")
	}
	if api.config.Image != defaultDockerImage || api.config.WorkingDir != defaultDockerWorkspace {
		t.Fatalf("unexpected container config %+v", api.config)
	}
	if len(api.hostConfig.Mounts) != 1 {
		t.Fatalf("expected one mount, got %d", len(api.hostConfig.Mounts))
	}
	m := api.hostConfig.Mounts[0]
	if m.Type != mount.TypeBind || m.Source != dir || m.Target != defaultDockerWorkspace || m.ReadOnly {
		t.Fatalf("unexpected mount %+v", m)
	}
	res := api.hostConfig.Resources
	if res.Memory != 256<<20 || res.MemorySwap != res.Memory || res.NanoCPUs != 1e9 || res.PidsLimit == nil || *res.PidsLimit != 64 {
		t.Fatalf("unexpected resources %+v", res)
	}
	if api.removed != 1 {
		t.Fatalf("container removed %d times", api.removed)
	}
}

func TestDockerExecutorKillRemoves(t *testing.T) {
	api := &fakeDocker{block: make(chan struct{})}
	exec := NewDockerExecutorWithAPI(api, DockerConfig{Image: "python:3.12"})

	proc, err := exec.Start(context.Background(), sandbox.Spec{WorkDir: t.TempDir(), Command: []string{"python3"}}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan sandbox.ExitStatus, 1)
	go func() {
		st, _ := proc.Wait()
		done <- st
	}()
	time.Sleep(10 * time.Millisecond)
	if err := proc.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	_ = proc.Kill()

	select {
	case st := <-done:
		if !st.Signaled {
			t.Fatalf("expected signaled status, got %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not return after kill")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.killed != 1 || api.removed != 1 {
		t.Fatalf("killed=%d removed=%d", api.killed, api.removed)
	}
}

func TestDockerExecutorStartFailureRemoves(t *testing.T) {
	api := &fakeDocker{startErr: errors.New("no such image")}
	exec := NewDockerExecutorWithAPI(api, DockerConfig{})
	if _, err := exec.Start(context.Background(), sandbox.Spec{WorkDir: t.TempDir(), Command: []string{"x"}}, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected start error")
	}
	if api.removed != 1 {
		t.Fatalf("container not removed after failed start")
	}
}

func TestDockerExecutorUserGetsWritableWorkDir(t *testing.T) {
	api := &fakeDocker{}
	exec := NewDockerExecutorWithAPI(api, DockerConfig{User: "65534:65534"})
	dir := t.TempDir()
	if err := os.Chmod(dir, 0755); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	proc, err := exec.Start(context.Background(), sandbox.Spec{WorkDir: dir, Command: []string{"python3", "main.py"}}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := proc.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if api.config.User != "65534:65534" {
		t.Fatalf("user = %q", api.config.User)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0777 {
		t.Fatalf("work dir mode = %v, want 0777", info.Mode().Perm())
	}

	plain := t.TempDir()
	_ = os.Chmod(plain, 0755)
	proc, err = NewDockerExecutorWithAPI(&fakeDocker{}, DockerConfig{}).Start(context.Background(), sandbox.Spec{WorkDir: plain, Command: []string{"true"}}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = proc.Wait()
	if info, _ := os.Stat(plain); info.Mode().Perm() != 0755 {
		t.Fatalf("work dir without user changed to %v", info.Mode().Perm())
	}
}
