//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"smartsolution/internal/judge/sandbox"
	"smartsolution/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ProcessExecutor runs programs as host processes in their own process group.
type ProcessExecutor struct {
	cfg ProcessConfig
}

// NewProcessExecutor creates a host process executor.
func NewProcessExecutor(cfg ProcessConfig) (*ProcessExecutor, error) {
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	return &ProcessExecutor{cfg: cfg}, nil
}

type hostProcess struct {
	cmd        *exec.Cmd
	pgid       int
	cgroupPath string
}

// Start spawns spec.Command inside spec.WorkDir.
func (e *ProcessExecutor) Start(ctx context.Context, spec sandbox.Spec, stdout, stderr io.Writer) (sandbox.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = e.buildEnv(spec.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = buildSysProcAttr(e.cfg.EnableNetNamespace)
	// Background children that keep the pipes open must not block Wait forever.
	cmd.WaitDelay = time.Second

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		var err error
		cgroupPath, err = createRunCgroup(e.cfg.CgroupRoot, uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("create cgroup: %w", err)
		}
		if err := applyCgroupLimits(cgroupPath, spec.Limits); err != nil {
			removeCgroup(cgroupPath)
			return nil, fmt.Errorf("apply cgroup limits: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		if cgroupPath != "" {
			removeCgroup(cgroupPath)
		}
		return nil, fmt.Errorf("start process: %w", err)
	}
	pid := cmd.Process.Pid

	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	if err := applyRlimits(pid, spec.Limits, cgroupPath == ""); err != nil {
		logger.Warn(ctx, "apply rlimits failed", zap.Int("pid", pid), zap.Error(err))
	}

	return &hostProcess{cmd: cmd, pgid: pid, cgroupPath: cgroupPath}, nil
}

func (e *ProcessExecutor) buildEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	hasPath := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			hasPath = true
		}
		out = append(out, kv)
	}
	if !hasPath {
		out = append(out, "PATH="+e.cfg.Path)
	}
	return out
}

// Wait reaps the leader, then sweeps the rest of the group so nothing outlives the run.
func (p *hostProcess) Wait() (sandbox.ExitStatus, error) {
	waitErr := p.cmd.Wait()
	p.killTree()

	status := sandbox.ExitStatus{ExitCode: -1}
	if state := p.cmd.ProcessState; state != nil {
		status.ExitCode = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signaled = true
		}
	}
	if p.cgroupPath != "" {
		status.OOMKilled = wasOomKilled(p.cgroupPath)
		removeCgroup(p.cgroupPath)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) || errors.Is(waitErr, exec.ErrWaitDelay) {
			return status, nil
		}
		return status, waitErr
	}
	return status, nil
}

// Kill sends SIGKILL to the whole process group and the cgroup.
func (p *hostProcess) Kill() error {
	p.killTree()
	return nil
}

func (p *hostProcess) killTree() {
	if p.cgroupPath != "" {
		_ = killCgroup(p.cgroupPath)
	}
	if p.pgid > 0 {
		if err := unix.Kill(-p.pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			logger.Warn(context.Background(), "kill process group failed", zap.Int("pgid", p.pgid), zap.Error(err))
		}
	}
}

func applyRlimits(pid int, limits sandbox.Limits, memoryViaRlimit bool) error {
	if limits.CPUTime > 0 {
		secs := uint64((limits.CPUTime + time.Second - 1) / time.Second)
		// Soft limit delivers SIGXCPU, hard limit one second later delivers SIGKILL.
		rl := unix.Rlimit{Cur: secs, Max: secs + 1}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &rl, nil); err != nil {
			return fmt.Errorf("set RLIMIT_CPU: %w", err)
		}
	}
	if memoryViaRlimit && limits.Memory > 0 {
		rl := unix.Rlimit{Cur: uint64(limits.Memory), Max: uint64(limits.Memory)}
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, &rl, nil); err != nil {
			return fmt.Errorf("set RLIMIT_AS: %w", err)
		}
	}
	core := unix.Rlimit{Cur: 0, Max: 0}
	if err := unix.Prlimit(pid, unix.RLIMIT_CORE, &core, nil); err != nil {
		return fmt.Errorf("set RLIMIT_CORE: %w", err)
	}
	return nil
}

func buildSysProcAttr(enableNetNamespace bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNetNamespace {
		return attr
	}
	attr.Cloneflags = uintptr(syscall.CLONE_NEWUSER | syscall.CLONE_NEWNET)
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getuid(), HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getgid(), HostID: os.Getgid(), Size: 1}}
	return attr
}

func createRunCgroup(root, name string) (string, error) {
	cgroupPath := filepath.Join(root, "run-"+name)
	if err := os.Mkdir(cgroupPath, 0750); err != nil {
		return "", err
	}
	return cgroupPath, nil
}
