package ecs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPrometheusGroupCollectorWritesMetrics(t *testing.T) {
	collector := NewPrometheusGroupCollector(&PrometheusCollectorOptions{})
	cimpl, ok := collector.(*PrometheusGroupCollector)
	if !ok {
		t.Fatalf("expected PrometheusGroupCollector implementation")
	}

	summary := GroupSummary{
		Group:           "physics",
		Tick:            42,
		Duration:        5 * time.Millisecond,
		SystemsTotal:    2,
		SystemsExecuted: 2,
		SystemsSkipped:  0,
	}

	collector.ObserveGroup(summary)

	var buf bytes.Buffer
	if err := cimpl.WriteMetrics(&buf); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	metrics := buf.String()
	if !strings.Contains(metrics, "ecs_group_duration_seconds_sum") {
		t.Fatalf("expected duration metric in %q", metrics)
	}
	if !strings.Contains(metrics, "ecs_group_systems_executed_total") {
		t.Fatalf("expected executed metric in %q", metrics)
	}
	if !strings.Contains(metrics, `group="physics"`) {
		t.Fatalf("expected group label in %q", metrics)
	}
}

func TestSigNozSpanExporterWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewSigNozSpanExporter(&SigNozOptions{Writer: &buf, ServiceName: "ecs-test"})

	summary := GroupSummary{
		Group:           "render",
		Tick:            13,
		Duration:        10 * time.Millisecond,
		SystemsTotal:    1,
		SystemsExecuted: 1,
		ResourceReads:   []string{"clock"},
	}

	exporter.ExportGroup(summary)

	if buf.Len() == 0 {
		t.Fatalf("expected exporter to write output")
	}

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	attrs, ok := payload["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes missing in payload: %v", payload)
	}
	if attrs["group"] != "render" {
		t.Fatalf("unexpected group: %v", attrs["group"])
	}
}

func TestCompositeObserverFansOutToEveryObserver(t *testing.T) {
	var first, second int
	a := recordingObserver{fn: func(GroupSummary) { first++ }}
	b := recordingObserver{fn: func(GroupSummary) { second++ }}
	composite := compositeObserver{observers: []SchedulerObserver{a, b}}

	composite.GroupCompleted(GroupSummary{Group: "g"})
	if first != 1 || second != 1 {
		t.Fatalf("expected both observers notified, got %d/%d", first, second)
	}
}

func TestBuildObserverChainFallsBackToNoop(t *testing.T) {
	observer := buildObserverChain(NewNoopLogger(), InstrumentationConfig{})
	if _, ok := observer.(noopObserver); !ok {
		t.Fatalf("expected noopObserver when no instrumentation is enabled")
	}
}

func TestBuildObserverChainHonorsExplicitObserver(t *testing.T) {
	var calls int
	custom := recordingObserver{fn: func(GroupSummary) { calls++ }}
	observer := buildObserverChain(NewNoopLogger(), InstrumentationConfig{Observer: custom})
	observer.GroupCompleted(GroupSummary{Group: "g"})
	if calls != 1 {
		t.Fatalf("expected custom observer invoked once, got %d", calls)
	}
}

type recordingObserver struct {
	fn func(GroupSummary)
}

func (r recordingObserver) GroupCompleted(summary GroupSummary) { r.fn(summary) }
