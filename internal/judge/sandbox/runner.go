package sandbox

import (
	"context"
	"fmt"
	"time"

	"smartsolution/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultOutputLimit int64 = 64 * 1024
	defaultKillGrace         = 10 * time.Second
)

// Run results reported to the Observer.
const (
	RunOK       = "ok"
	RunTimeout  = "timeout"
	RunCrashed  = "crashed"
	RunCanceled = "canceled"
	RunFailed   = "failed"
)

// Request describes one sandboxed execution.
type Request struct {
	WorkDir string
	Command []string
	Env     []string
	Limits  Limits
	// Timeout is the wall-clock limit. Zero disables it.
	Timeout time.Duration
}

// Outcome is what happened to the program. Artifact validation is left to the caller.
type Outcome struct {
	ExitCode  int
	TimedOut  bool
	Crashed   bool
	OOMKilled bool
	Stdout    []byte
	Stderr    []byte
	Truncated bool
	Duration  time.Duration
}

// Observer receives one callback per finished run.
type Observer interface {
	ObserveSandboxRun(result string, elapsed time.Duration)
}

// RunnerConfig controls Runner behavior.
type RunnerConfig struct {
	// OutputLimit caps captured stdout and stderr each. Default 64 KiB.
	OutputLimit int64
	// KillGrace bounds the wait for teardown after a kill. Default 10s.
	KillGrace time.Duration
	Observer  Observer
}

// Runner enforces the wall-clock limit and output capture on top of an executor.
type Runner struct {
	executor    IsolatedExecutor
	outputLimit int64
	killGrace   time.Duration
	observer    Observer
}

// NewRunner creates a Runner.
func NewRunner(executor IsolatedExecutor, cfg RunnerConfig) (*Runner, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = defaultOutputLimit
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	return &Runner{
		executor:    executor,
		outputLimit: cfg.OutputLimit,
		killGrace:   cfg.KillGrace,
		observer:    cfg.Observer,
	}, nil
}

type waitResult struct {
	status ExitStatus
	err    error
}

// Run executes req and waits for the process tree to be torn down.
// On timeout the tree is killed and Outcome.TimedOut is set. If ctx ends first
// the tree is killed and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.WorkDir == "" {
		return Outcome{}, fmt.Errorf("work dir is required")
	}
	if len(req.Command) == 0 {
		return Outcome{}, fmt.Errorf("command is required")
	}

	stdout := newLimitedBuffer(r.outputLimit)
	stderr := newLimitedBuffer(r.outputLimit)

	start := time.Now()
	proc, err := r.executor.Start(ctx, Spec{
		WorkDir: req.WorkDir,
		Command: req.Command,
		Env:     req.Env,
		Limits:  req.Limits,
	}, stdout, stderr)
	if err != nil {
		r.observe(RunFailed, time.Since(start))
		return Outcome{}, fmt.Errorf("start sandbox: %w", err)
	}

	waitCh := make(chan waitResult, 1)
	go func() {
		status, err := proc.Wait()
		waitCh <- waitResult{status: status, err: err}
	}()

	var timer <-chan time.Time
	if req.Timeout > 0 {
		t := time.NewTimer(req.Timeout)
		defer t.Stop()
		timer = t.C
	}

	var res waitResult
	timedOut := false
	select {
	case res = <-waitCh:
	case <-timer:
		timedOut = true
		if err := proc.Kill(); err != nil {
			logger.Warn(ctx, "kill timed out sandbox failed", zap.Error(err))
		}
		res = r.awaitTeardown(ctx, waitCh)
	case <-ctx.Done():
		if err := proc.Kill(); err != nil {
			logger.Warn(ctx, "kill canceled sandbox failed", zap.Error(err))
		}
		r.awaitTeardown(ctx, waitCh)
		r.observe(RunCanceled, time.Since(start))
		return Outcome{}, ctx.Err()
	}
	elapsed := time.Since(start)

	if res.err != nil && !timedOut {
		r.observe(RunFailed, elapsed)
		return Outcome{}, fmt.Errorf("wait sandbox: %w", res.err)
	}

	out := Outcome{
		ExitCode:  res.status.ExitCode,
		TimedOut:  timedOut,
		OOMKilled: res.status.OOMKilled,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  elapsed,
	}
	if !timedOut {
		out.Crashed = res.status.ExitCode != 0 || res.status.Signaled || res.status.OOMKilled
	}

	switch {
	case out.TimedOut:
		r.observe(RunTimeout, elapsed)
	case out.Crashed:
		r.observe(RunCrashed, elapsed)
	default:
		r.observe(RunOK, elapsed)
	}
	return out, nil
}

// awaitTeardown waits at most killGrace for a killed process to be reaped.
// A process that outlives the grace is abandoned to its Wait goroutine.
func (r *Runner) awaitTeardown(ctx context.Context, waitCh <-chan waitResult) waitResult {
	grace := time.NewTimer(r.killGrace)
	defer grace.Stop()
	select {
	case res := <-waitCh:
		return res
	case <-grace.C:
		logger.Error(ctx, "sandbox did not stop after kill", zap.Duration("grace", r.killGrace))
		return waitResult{status: ExitStatus{ExitCode: -1}}
	}
}

func (r *Runner) observe(result string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveSandboxRun(result, elapsed)
	}
}
