package ecs

import (
	"errors"
	"testing"
	"time"
)

func TestErrorRecoveryDisableStrategyStopsScheduling(t *testing.T) {
	r := newErrorRecovery(0)
	r.SetPolicy("render", RecoveryPolicy{Strategy: StrategyDisable, FailureThreshold: 2})

	r.RecordFailure("render", 1, errors.New("boom"))
	if !r.ShouldRun("render") {
		t.Fatalf("expected system to still run below threshold")
	}

	r.RecordFailure("render", 2, errors.New("boom again"))
	if r.ShouldRun("render") {
		t.Fatalf("expected disabled system to be skipped")
	}
	health := r.Health("render")
	if !health.Disabled || health.State != CircuitOpen {
		t.Fatalf("expected disabled+open health record, got %+v", health)
	}
}

func TestErrorRecoveryRecordSuccessClosesCircuit(t *testing.T) {
	r := newErrorRecovery(0)
	r.SetPolicy("physics", RecoveryPolicy{Strategy: StrategySkip, FailureThreshold: 1})

	r.RecordFailure("physics", 1, errors.New("fail"))
	if r.ShouldRun("physics") {
		t.Fatalf("expected circuit open after threshold reached")
	}

	r.RecordSuccess("physics")
	if !r.ShouldRun("physics") {
		t.Fatalf("expected circuit closed after success")
	}
}

func TestErrorRecoveryRetryReopensAfterBackoff(t *testing.T) {
	r := newErrorRecovery(0)
	r.SetPolicy("ai", RecoveryPolicy{Strategy: StrategyRetry, FailureThreshold: 1})

	original := timeNow
	now := time.Unix(0, 0)
	timeNow = func() time.Time { return now }
	defer func() { timeNow = original }()

	r.RecordFailure("ai", 1, errors.New("transient"))
	if r.ShouldRun("ai") {
		t.Fatalf("expected retry circuit to stay open before cooldown elapses")
	}

	now = now.Add(10 * time.Second)
	if !r.ShouldRun("ai") {
		t.Fatalf("expected retry circuit to half-open after backoff elapses")
	}
}

func TestErrorRecoveryFallbackStrategyInvokesCallback(t *testing.T) {
	r := newErrorRecovery(0)
	var called SystemError
	r.SetPolicy("audio", RecoveryPolicy{
		Strategy:         StrategyFallback,
		FailureThreshold: 1,
		Fallback:         func(e SystemError) { called = e },
	})

	r.RecordFailure("audio", 5, errors.New("no device"))
	if called.System != "audio" || called.Tick != 5 {
		t.Fatalf("expected fallback invoked with the system error, got %+v", called)
	}
}

func TestErrorRecoveryHistoryBounded(t *testing.T) {
	r := newErrorRecovery(2)
	r.SetPolicy("x", RecoveryPolicy{Strategy: StrategySkip, FailureThreshold: 100})
	r.RecordFailure("x", 1, errors.New("a"))
	r.RecordFailure("x", 2, errors.New("b"))
	r.RecordFailure("x", 3, errors.New("c"))

	hist := r.History()
	if len(hist) != 2 {
		t.Fatalf("expected bounded history of 2, got %d", len(hist))
	}
	if hist[0].Tick != 2 || hist[1].Tick != 3 {
		t.Fatalf("expected oldest entry trimmed, got %+v", hist)
	}
}

func TestErrorRecoveryReport(t *testing.T) {
	r := newErrorRecovery(0)
	r.SetPolicy("a", RecoveryPolicy{Strategy: StrategyDisable, FailureThreshold: 1})
	r.RecordFailure("a", 1, errors.New("err"))

	report := r.Report()
	if report.TotalSystems != 1 || report.DisabledSystems != 1 || report.OpenCircuits != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
