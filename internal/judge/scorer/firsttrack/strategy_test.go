package firsttrack

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"smartsolution/internal/judge/archive"
	"smartsolution/internal/judge/model"
	"smartsolution/internal/judge/sandbox"
	"smartsolution/internal/judge/scorer"
	appErr "smartsolution/pkg/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

type behavior int

const (
	solveCorrectly behavior = iota
	writeNothing
	crash
	hang
	tamperInput
)

type solverProcess struct {
	done   chan struct{}
	once   sync.Once
	status sandbox.ExitStatus
}

func (p *solverProcess) Wait() (sandbox.ExitStatus, error) {
	<-p.done
	return p.status, nil
}

func (p *solverProcess) Kill() error {
	p.once.Do(func() {
		p.status = sandbox.ExitStatus{ExitCode: -1, Signaled: true}
		close(p.done)
	})
	return nil
}

// solverExecutor plays the contestant program inside spec.WorkDir.
type solverExecutor struct {
	mu       sync.Mutex
	behavior behavior
	starts   int
	specs    []sandbox.Spec
}

func (e *solverExecutor) Start(ctx context.Context, spec sandbox.Spec, stdout, stderr io.Writer) (sandbox.Process, error) {
	e.mu.Lock()
	e.starts++
	e.specs = append(e.specs, spec)
	e.mu.Unlock()

	p := &solverProcess{done: make(chan struct{})}
	switch e.behavior {
	case solveCorrectly:
		if err := squareInput(spec.WorkDir); err != nil {
			return nil, err
		}
	case tamperInput:
		tampered := "id,num\n1,100\n2,100\n"
		_ = os.Remove(filepath.Join(spec.WorkDir, "input.csv"))
		_ = os.WriteFile(filepath.Join(spec.WorkDir, "input.csv"), []byte(tampered), 0644)
		if err := squareInput(spec.WorkDir); err != nil {
			return nil, err
		}
	case crash:
		_, _ = stderr.Write([]byte("Traceback (most recent call last):\nZeroDivisionError: division by zero\n"))
		p.status = sandbox.ExitStatus{ExitCode: 1}
	case hang:
		return p, nil
	}
	p.once.Do(func() { close(p.done) })
	return p, nil
}

func (e *solverExecutor) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func squareInput(dir string) error {
	in, err := os.Open(filepath.Join(dir, "input.csv"))
	if err != nil {
		return err
	}
	defer in.Close()
	rows, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "num"})
	for _, row := range rows[1:] {
		v, _ := strconv.ParseFloat(row[1], 64)
		_ = w.Write([]string{row[0], strconv.FormatFloat(v*v, 'f', -1, 64)})
	}
	w.Flush()
	return os.WriteFile(filepath.Join(dir, "output.csv"), buf.Bytes(), 0644)
}

func writeSubmission(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		_, _ = w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	p := filepath.Join(t.TempDir(), "submission.zip")
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return p
}

func newTestStrategy(t *testing.T, exec sandbox.IsolatedExecutor, timeout time.Duration) *Strategy {
	t.Helper()
	ref := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(ref, []byte("id,num\n1,3\n2,4\n"), 0644); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	runner, err := sandbox.NewRunner(exec, sandbox.RunnerConfig{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	s, err := NewStrategy(Config{ReferencePath: ref, Timeout: timeout},
		archive.NewExtractor(archive.Config{}), runner,
		NewComparator(ComparatorConfig{Bonus: fixedBonus(0.5)}))
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	return s
}

func judge(t *testing.T, s *Strategy, archivePath string) (model.AutoJudgeResult, error) {
	t.Helper()
	return s.Judge(context.Background(), scorer.Request{ArchivePath: archivePath, WorkDir: t.TempDir()})
}

func TestStrategyScoresCorrectSolution(t *testing.T) {
	t.Parallel()
	exec := &solverExecutor{behavior: solveCorrectly}
	s := newTestStrategy(t, exec, time.Second)

	res, err := judge(t, s, writeSubmission(t, map[string]string{"wrapped/main.py": "print()"}))
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !res.Succeeded() || *res.Value != 2.5 || res.Message != "Correct: 2/2, bonus=0.500" {
		t.Fatalf("unexpected result %+v", res)
	}
	if diff := cmp.Diff([]string{"python3", "main.py", "input.csv"}, exec.specs[0].Command); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
	info, err := os.Stat(filepath.Join(exec.specs[0].WorkDir, "input.csv"))
	if err != nil || info.Mode().Perm()&0222 != 0 {
		t.Fatalf("input copy should be read-only: %v %v", err, info)
	}
}

func TestStrategyComparesAgainstPristineReference(t *testing.T) {
	t.Parallel()
	s := newTestStrategy(t, &solverExecutor{behavior: tamperInput}, time.Second)

	res, err := judge(t, s, writeSubmission(t, map[string]string{"main.py": "x"}))
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if *res.Value != 0.5 {
		t.Fatalf("tampered input must not earn points, got %+v", res)
	}
}

func TestStrategyRejectsBadArchiveWithoutRunning(t *testing.T) {
	t.Parallel()
	tests := map[string]map[string]string{
		"traversal":          {"main.py": "x", "../../escape.py": "x"},
		"missing entrypoint": {"solve.py": "x"},
	}
	for name, files := range tests {
		files := files
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			exec := &solverExecutor{behavior: solveCorrectly}
			s := newTestStrategy(t, exec, time.Second)
			_, err := judge(t, s, writeSubmission(t, files))
			if !appErr.Is(err, appErr.ArchiveInvalid) {
				t.Fatalf("expected ArchiveInvalid, got %v", err)
			}
			if exec.startCount() != 0 {
				t.Fatalf("sandbox must not run for an invalid archive")
			}
		})
	}
}

func TestStrategyOutcomeMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		behavior behavior
		code     appErr.ErrorCode
		contains string
	}{
		{"no output", writeNothing, appErr.OutputMissing, "OutputMissing: output.csv was not produced"},
		{"crash", crash, appErr.SandboxRuntimeError, "ZeroDivisionError"},
		{"timeout", hang, appErr.SandboxTimeout, "SandboxTimeout: execution timed out"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &solverExecutor{behavior: tt.behavior}
			s := newTestStrategy(t, exec, 50*time.Millisecond)
			_, err := judge(t, s, writeSubmission(t, map[string]string{"main.py": "x"}))
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
			if got := appErr.Describe(err); !strings.Contains(got, tt.contains) {
				t.Fatalf("message %q does not contain %q", got, tt.contains)
			}
		})
	}
}

func TestStrategyIgnoresShippedOutput(t *testing.T) {
	t.Parallel()
	s := newTestStrategy(t, &solverExecutor{behavior: writeNothing}, time.Second)
	_, err := judge(t, s, writeSubmission(t, map[string]string{"main.py": "x", "output.csv": "id,num\n1,9\n2,16\n"}))
	if !appErr.Is(err, appErr.OutputMissing) {
		t.Fatalf("a precomputed output must not count, got %v", err)
	}
}

func TestStrategyCancellation(t *testing.T) {
	t.Parallel()
	s := newTestStrategy(t, &solverExecutor{behavior: hang}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Judge(ctx, scorer.Request{ArchivePath: writeSubmission(t, map[string]string{"main.py": "x"}), WorkDir: t.TempDir()})
	if appErr.GetCode(err) != appErr.Canceled {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewStrategyValidation(t *testing.T) {
	t.Parallel()
	runner, _ := sandbox.NewRunner(&solverExecutor{}, sandbox.RunnerConfig{})
	ex := archive.NewExtractor(archive.Config{})
	if _, err := NewStrategy(Config{}, ex, runner, nil); err == nil {
		t.Fatalf("expected error without reference path")
	}
	if _, err := NewStrategy(Config{ReferencePath: "in.csv", Command: `python3 "unterminated`}, ex, runner, nil); err == nil {
		t.Fatalf("expected error for bad command template")
	}
	if _, err := NewStrategy(Config{ReferencePath: "in.csv", OutputName: "../out.csv"}, ex, runner, nil); err == nil {
		t.Fatalf("expected error for nested output name")
	}
	s, err := NewStrategy(Config{ReferencePath: "in.csv", Command: "python3 -u {entrypoint} --data={input}"}, ex, runner, nil)
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	if diff := cmp.Diff([]string{"python3", "-u", "main.py", "--data=input.csv"}, s.render()); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}
}
