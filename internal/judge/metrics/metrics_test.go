package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveResult("success", "", 2*time.Second)
	m.ObserveResult("error", "SandboxTimeout", time.Minute)
	m.ObserveResult("error", "SandboxTimeout", time.Minute)
	m.ObserveSandboxRun("timeout", time.Second)
	m.IncInflight()
	m.IncInflight()
	m.DecInflight()
	m.Rejected("AlreadyJudging")
	m.DeliveryFailed("notify")

	if got := testutil.ToFloat64(m.judgeTotal.WithLabelValues("error", "SandboxTimeout")); got != 2 {
		t.Fatalf("timeout results = %v", got)
	}
	if got := testutil.ToFloat64(m.judgeTotal.WithLabelValues("success", "none")); got != 1 {
		t.Fatalf("success results = %v", got)
	}
	if got := testutil.ToFloat64(m.sandboxRuns.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("sandbox runs = %v", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 1 {
		t.Fatalf("inflight = %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("AlreadyJudging")); got != 1 {
		t.Fatalf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.deliveryFailures.WithLabelValues("notify")); got != 1 {
		t.Fatalf("delivery failures = %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("no metric families registered")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResult("success", "", time.Second)
	m.ObserveSandboxRun("ok", time.Second)
	m.IncInflight()
	m.DecInflight()
	m.Rejected("x")
	m.DeliveryFailed("x")
}
