package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"archive", New(ArchiveInvalid).WithMessage("unsafe path"), "ArchiveInvalid: unsafe path"},
		{"default message", New(OutputMissing), "OutputMissing: Output file is missing"},
		{"wrapped", fmt.Errorf("judge: %w", New(SandboxTimeout).WithMessage("exceeded 2s")), "SandboxTimeout: exceeded 2s"},
		{"plain error", stderrors.New("disk on fire"), "InternalError: Internal server error"},
		{"database", Wrap(stderrors.New("conn reset"), DatabaseError), "InternalError: conn reset"},
		{"canceled", context.Canceled, "Canceled: Operation canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Fatalf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribeHasNoStack(t *testing.T) {
	err := Wrapf(stderrors.New("boom"), JudgeSystemError, "mkdir failed")
	if err.Stack == "" {
		t.Fatalf("expected stack to be captured")
	}
	if strings.Contains(Describe(err), ".go:") {
		t.Fatalf("describe leaked stack: %q", Describe(err))
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	base := New(AlreadyJudging)
	wrapped := fmt.Errorf("outer: %w", base)
	if GetCode(wrapped) != AlreadyJudging {
		t.Fatalf("GetCode = %d", GetCode(wrapped))
	}
	if !Is(wrapped, AlreadyJudging) {
		t.Fatalf("Is should match wrapped code")
	}
	if Is(stderrors.New("x"), AlreadyJudging) {
		t.Fatalf("plain errors carry no code")
	}
	if GetCode(context.DeadlineExceeded) != Timeout {
		t.Fatalf("deadline should map to Timeout")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{Success, 200},
		{SubmissionNotFound, 404},
		{AlreadyJudging, 409},
		{SubmissionNotPending, 409},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{SandboxUnavailable, 503},
		{ArchiveInvalid, 500},
		{ErrorCode(99999), 500},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestNameFallsBackToInternal(t *testing.T) {
	if ErrorCode(12345).Name() != "InternalError" {
		t.Fatalf("unknown code should be InternalError")
	}
	if ErrorCode(12345).Message() != "Unknown error" {
		t.Fatalf("unknown code message")
	}
	if ScorerNotRegistered.Name() != "ScorerNotRegistered" {
		t.Fatalf("name mismatch")
	}
}
