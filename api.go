package ecs

import (
	"context"
	"io"
	"time"
)

// ResourceContainer holds shared resources accessible to systems and plugins.
type ResourceContainer interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Delete(name string)
	Range(func(string, any) bool)
}

// InstrumentationConfig configures logging, tracing, and metrics sinks for
// the scheduler (ambient observability stack, adapted from the teacher's
// work-group instrumentation scaffold).
type InstrumentationConfig struct {
	EnableTrace   bool
	EnableMetrics bool
	Observer      SchedulerObserver
	Observation   ObservationSettings
}

// ObservationSettings toggles built-in observer integrations.
type ObservationSettings struct {
	EnableStructuredLogging bool
	LoggingFormat           ObservationLogFormat
	StructuredLogger        Logger
	EnablePrometheus        bool
	PrometheusCollector     PrometheusCollector
	PrometheusOptions       *PrometheusCollectorOptions
	EnableSigNoz            bool
	SigNozExporter          SigNozExporter
	SigNozOptions           *SigNozOptions
}

// ObservationLogFormat controls structured logging encoding.
type ObservationLogFormat uint8

const (
	ObservationLogFormatJSON ObservationLogFormat = iota
	ObservationLogFormatKeyValue
)

// SchedulerObserver receives a summary after each group finishes a tick.
type SchedulerObserver interface {
	GroupCompleted(summary GroupSummary)
}

// PrometheusCollector handles group summaries for Prometheus-style metrics.
type PrometheusCollector interface {
	ObserveGroup(summary GroupSummary)
}

type PrometheusCollectorOptions struct {
	Writer          io.Writer
	DurationBuckets []time.Duration
}

// SigNozExporter handles group summaries for SigNoz platforms.
type SigNozExporter interface {
	ExportGroup(summary GroupSummary)
}

type SigNozOptions struct {
	Writer      io.Writer
	ServiceName string
}

// GroupSummary captures execution metadata for one group's tick. Adapted
// from the teacher's WorkGroupSummary with the async-mode fields removed.
type GroupSummary struct {
	Group           string
	Tick            uint64
	Duration        time.Duration
	SystemsTotal    int
	SystemsExecuted int
	SystemsSkipped  int
	Error           error
	ComponentReads  []TypeID
	ComponentWrites []TypeID
	ResourceReads   []string
	ResourceWrites  []string
}

// Tracer coordinates tracing spans for observability tooling.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, TraceSpan)
}

// TraceSpan represents an active tracing region.
type TraceSpan interface {
	End()
}
