package logger

import (
	"context"
	"testing"

	"smartsolution/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAttached(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetGlobal(NewWithCore(core))
	defer SetGlobal(nil)

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "t-1")
	ctx = WithSubmission(ctx, "sub-9")
	Info(ctx, "judged", zap.String("kind", "ok"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "t-1" {
		t.Fatalf("trace_id = %v", fields["trace_id"])
	}
	if fields["submission_id"] != "sub-9" {
		t.Fatalf("submission_id = %v", fields["submission_id"])
	}
	if fields["kind"] != "ok" {
		t.Fatalf("kind = %v", fields["kind"])
	}
}

func TestSilentWithoutLogger(t *testing.T) {
	SetGlobal(nil)
	Info(context.Background(), "dropped")
	if err := Sync(); err != nil {
		t.Fatalf("sync without logger: %v", err)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
