// Package sandbox runs untrusted programs through a swappable isolated executor.
package sandbox

import (
	"context"
	"io"
	"time"
)

// Limits are the resource ceilings applied to one run. Zero means unlimited.
type Limits struct {
	CPUTime time.Duration `yaml:"cpuTime"`
	// Memory in bytes.
	Memory int64   `yaml:"memory"`
	PIDs   int64   `yaml:"pids"`
	CPUs   float64 `yaml:"cpus"`
}

// Spec is what an executor needs to spawn one process tree.
type Spec struct {
	// WorkDir is the host directory the program runs in. It is the only writable location.
	WorkDir string
	// Command is relative to WorkDir.
	Command []string
	Env     []string
	Limits  Limits
}

// ExitStatus describes how a process tree ended.
type ExitStatus struct {
	ExitCode  int
	Signaled  bool
	OOMKilled bool
}

// Process is a started run.
type Process interface {
	// Wait blocks until the process tree is gone and its output is flushed.
	Wait() (ExitStatus, error)
	// Kill terminates the whole process tree. Safe to call more than once.
	Kill() error
}

// IsolatedExecutor spawns a command inside an isolation boundary.
type IsolatedExecutor interface {
	Start(ctx context.Context, spec Spec, stdout, stderr io.Writer) (Process, error)
}
