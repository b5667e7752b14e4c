package firsttrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartsolution/internal/judge/archive"
	"smartsolution/internal/judge/model"
	"smartsolution/internal/judge/sandbox"
	"smartsolution/internal/judge/scorer"
	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	defaultCommand    = "python3 {entrypoint} {input}"
	defaultInputName  = "input.csv"
	defaultOutputName = "output.csv"
	defaultTimeout    = 120 * time.Second

	stderrTailBytes = 512
	solutionDirName = "solution"
)

// Config configures the first-track strategy.
type Config struct {
	// ReferencePath is the pristine dataset. The solver only ever sees a copy.
	ReferencePath string `yaml:"referencePath"`
	// Command is a shell-like template; {entrypoint} and {input} are substituted per token.
	Command    string         `yaml:"command"`
	InputName  string         `yaml:"inputName"`
	OutputName string         `yaml:"outputName"`
	Timeout    time.Duration  `yaml:"timeout"`
	Limits     sandbox.Limits `yaml:"limits"`
	Env        []string       `yaml:"env"`
	Tolerance  float64        `yaml:"tolerance"`
}

// Runner is the sandbox capability the strategy needs.
type Runner interface {
	Run(ctx context.Context, req sandbox.Request) (sandbox.Outcome, error)
}

// Strategy extracts, runs and scores one first-track submission.
type Strategy struct {
	extractor  *archive.Extractor
	runner     Runner
	comparator *Comparator
	command    []string
	reference  string
	inputName  string
	outputName string
	timeout    time.Duration
	limits     sandbox.Limits
	env        []string
}

// NewStrategy validates cfg and creates a Strategy.
// comparator may be nil, in which case a square-transform comparator with cfg.Tolerance is used.
func NewStrategy(cfg Config, extractor *archive.Extractor, runner Runner, comparator *Comparator) (*Strategy, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if cfg.ReferencePath == "" {
		return nil, fmt.Errorf("reference dataset path is required")
	}
	if cfg.Command == "" {
		cfg.Command = defaultCommand
	}
	if cfg.InputName == "" {
		cfg.InputName = defaultInputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = defaultOutputName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	for _, name := range []string{cfg.InputName, cfg.OutputName} {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return nil, fmt.Errorf("file name %q must not contain a directory", name)
		}
	}
	command, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command template: %w", err)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("command template is empty")
	}
	if comparator == nil {
		comparator = NewComparator(ComparatorConfig{Tolerance: cfg.Tolerance})
	}
	return &Strategy{
		extractor:  extractor,
		runner:     runner,
		comparator: comparator,
		command:    command,
		reference:  cfg.ReferencePath,
		inputName:  cfg.InputName,
		outputName: cfg.OutputName,
		timeout:    cfg.Timeout,
		limits:     cfg.Limits,
		env:        cfg.Env,
	}, nil
}

var _ scorer.Strategy = (*Strategy)(nil)

// Judge runs the submission. Failures come back as typed errors for the caller to record.
func (s *Strategy) Judge(ctx context.Context, req scorer.Request) (model.AutoJudgeResult, error) {
	if req.WorkDir == "" {
		return model.AutoJudgeResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("work dir is required")
	}
	root, err := s.extractor.Extract(ctx, req.ArchivePath, filepath.Join(req.WorkDir, solutionDirName))
	if err != nil {
		return model.AutoJudgeResult{}, err
	}
	if err := s.prepare(root); err != nil {
		return model.AutoJudgeResult{}, err
	}

	outcome, err := s.runner.Run(ctx, sandbox.Request{
		WorkDir: root,
		Command: s.render(),
		Env:     s.env,
		Limits:  s.limits,
		Timeout: s.timeout,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.AutoJudgeResult{}, ctxErr
		}
		return model.AutoJudgeResult{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox could not run the solution")
	}
	logger.Info(ctx, "sandbox run finished",
		zap.Int("exit_code", outcome.ExitCode),
		zap.Bool("timed_out", outcome.TimedOut),
		zap.Bool("oom_killed", outcome.OOMKilled),
		zap.Duration("duration", outcome.Duration),
	)
	if err := s.checkOutcome(outcome); err != nil {
		return model.AutoJudgeResult{}, err
	}

	produced, err := s.openOutput(root)
	if err != nil {
		return model.AutoJudgeResult{}, err
	}
	defer produced.Close()

	reference, err := os.Open(s.reference)
	if err != nil {
		return model.AutoJudgeResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "open reference dataset failed")
	}
	defer reference.Close()

	return s.comparator.Compare(produced, reference), nil
}

// prepare places a read-only copy of the reference input at the root and removes any
// output file shipped inside the archive, so only the run itself can produce it.
func (s *Strategy) prepare(root string) error {
	src, err := os.Open(s.reference)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "open reference dataset failed")
	}
	defer src.Close()

	input := filepath.Join(root, s.inputName)
	if err := os.RemoveAll(input); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "replace input file failed")
	}
	dst, err := os.OpenFile(input, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0444)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create input file failed")
	}
	_, copyErr := io.Copy(dst, src)
	if err := dst.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return appErr.Wrapf(copyErr, appErr.JudgeSystemError, "copy input file failed")
	}

	if err := os.RemoveAll(filepath.Join(root, s.outputName)); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "clear output file failed")
	}
	return nil
}

func (s *Strategy) render() []string {
	replacer := strings.NewReplacer("{entrypoint}", s.extractor.Entrypoint(), "{input}", s.inputName, "{output}", s.outputName)
	out := make([]string, len(s.command))
	for i, token := range s.command {
		out[i] = replacer.Replace(token)
	}
	return out
}

func (s *Strategy) checkOutcome(outcome sandbox.Outcome) error {
	switch {
	case outcome.TimedOut:
		return appErr.New(appErr.SandboxTimeout).
			WithMessagef("execution timed out after %s", s.timeout)
	case outcome.OOMKilled:
		return appErr.New(appErr.SandboxRuntimeError).
			WithMessage("memory limit exceeded").
			WithDetail("exit_code", outcome.ExitCode)
	case outcome.Crashed:
		msg := fmt.Sprintf("exit code %d", outcome.ExitCode)
		if tail := stderrTail(outcome.Stderr); tail != "" {
			msg += "; stderr: " + tail
		}
		return appErr.New(appErr.SandboxRuntimeError).
			WithMessage(msg).
			WithDetail("exit_code", outcome.ExitCode)
	}
	return nil
}

func (s *Strategy) openOutput(root string) (*os.File, error) {
	p := filepath.Join(root, s.outputName)
	info, err := os.Lstat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, appErr.New(appErr.OutputMissing).WithMessagef("%s was not produced", s.outputName)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "stat output file failed")
	}
	if !info.Mode().IsRegular() {
		return nil, appErr.New(appErr.OutputMissing).WithMessagef("%s is not a regular file", s.outputName)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "open output file failed")
	}
	return f, nil
}

func stderrTail(stderr []byte) string {
	if len(stderr) > stderrTailBytes {
		stderr = stderr[len(stderr)-stderrTailBytes:]
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(stderr), ""))
}
