//go:build !linux

package engine

import (
	"context"
	"fmt"
	"io"

	"smartsolution/internal/judge/sandbox"
)

// ProcessExecutor is only available on linux.
type ProcessExecutor struct{}

func NewProcessExecutor(cfg ProcessConfig) (*ProcessExecutor, error) {
	return &ProcessExecutor{}, nil
}

func (e *ProcessExecutor) Start(ctx context.Context, spec sandbox.Spec, stdout, stderr io.Writer) (sandbox.Process, error) {
	return nil, fmt.Errorf("process executor is only supported on linux")
}
