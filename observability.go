package ecs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type compositeObserver struct {
	observers []SchedulerObserver
}

func (c compositeObserver) GroupCompleted(summary GroupSummary) {
	for _, observer := range c.observers {
		observer.GroupCompleted(summary)
	}
}

type loggingObserver struct {
	logger Logger
	format ObservationLogFormat
}

func newLoggingObserver(logger Logger, format ObservationLogFormat) SchedulerObserver {
	if logger == nil {
		return noopObserver{}
	}
	if format != ObservationLogFormatKeyValue {
		format = ObservationLogFormatJSON
	}
	return loggingObserver{logger: logger, format: format}
}

func (o loggingObserver) GroupCompleted(summary GroupSummary) {
	switch o.format {
	case ObservationLogFormatKeyValue:
		o.logKeyValue(summary)
	default:
		o.logJSON(summary)
	}
}

func (o loggingObserver) logJSON(summary GroupSummary) {
	payload := map[string]any{
		"group":            summary.Group,
		"tick":             summary.Tick,
		"duration_ms":      float64(summary.Duration) / float64(time.Millisecond),
		"systems_total":    summary.SystemsTotal,
		"systems_executed": summary.SystemsExecuted,
		"systems_skipped":  summary.SystemsSkipped,
		"component_reads":  summary.ComponentReads,
		"component_writes": summary.ComponentWrites,
		"resource_reads":   summary.ResourceReads,
		"resource_writes":  summary.ResourceWrites,
	}
	if summary.Error != nil {
		payload["error"] = summary.Error.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.With("group", summary.Group).Error("group summary marshal error", "err", err)
		return
	}
	o.logger.Info(string(data))
}

func (o loggingObserver) logKeyValue(summary GroupSummary) {
	builder := o.logger.With("group", summary.Group)
	args := []any{
		"tick", summary.Tick,
		"duration", summary.Duration,
		"systems_total", summary.SystemsTotal,
		"systems_executed", summary.SystemsExecuted,
		"systems_skipped", summary.SystemsSkipped,
		"component_reads", strings.Join(convertTypeIDs(summary.ComponentReads), ","),
		"component_writes", strings.Join(convertTypeIDs(summary.ComponentWrites), ","),
		"resource_reads", strings.Join(summary.ResourceReads, ","),
		"resource_writes", strings.Join(summary.ResourceWrites, ","),
	}
	if summary.Error != nil {
		args = append(args, "error", summary.Error.Error())
	}
	builder.Info("group summary", args...)
}

type prometheusObserver struct {
	collector PrometheusCollector
}

func newPrometheusObserver(collector PrometheusCollector) SchedulerObserver {
	if collector == nil {
		return noopObserver{}
	}
	return prometheusObserver{collector: collector}
}

func (o prometheusObserver) GroupCompleted(summary GroupSummary) {
	o.collector.ObserveGroup(summary)
}

type sigNozObserver struct {
	exporter SigNozExporter
}

func newSigNozObserver(exporter SigNozExporter) SchedulerObserver {
	if exporter == nil {
		return noopObserver{}
	}
	return sigNozObserver{exporter: exporter}
}

func (o sigNozObserver) GroupCompleted(summary GroupSummary) {
	o.exporter.ExportGroup(summary)
}

func convertTypeIDs(types []TypeID) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, fmt.Sprintf("%d", uint32(t)))
	}
	sort.Strings(out)
	return out
}

func buildObserverChain(logger Logger, cfg InstrumentationConfig) SchedulerObserver {
	var observers []SchedulerObserver

	if cfg.Observer != nil {
		observers = append(observers, cfg.Observer)
	}

	obs := cfg.Observation

	if obs.EnableStructuredLogging {
		structuredLogger := obs.StructuredLogger
		if structuredLogger == nil {
			structuredLogger = logger
		}
		observers = append(observers, newLoggingObserver(structuredLogger, obs.LoggingFormat))
	}

	if obs.EnablePrometheus {
		collector := obs.PrometheusCollector
		if collector == nil {
			collector = NewPrometheusGroupCollector(obs.PrometheusOptions)
		}
		if collector != nil {
			observers = append(observers, newPrometheusObserver(collector))
		}
	}

	if obs.EnableSigNoz {
		exporter := obs.SigNozExporter
		if exporter == nil {
			exporter = NewSigNozSpanExporter(obs.SigNozOptions)
		}
		if exporter != nil {
			observers = append(observers, newSigNozObserver(exporter))
		}
	}

	if len(observers) == 0 {
		return noopObserver{}
	}
	if len(observers) == 1 {
		return observers[0]
	}
	return compositeObserver{observers: observers}
}

// PrometheusGroupCollector accumulates per-group execution samples into a
// minimal hand-rolled text-exposition writer, adapted from the teacher's
// PrometheusWorkGroupCollector with the async mode/label removed.
type PrometheusGroupCollector struct {
	options *PrometheusCollectorOptions
	mu      sync.Mutex
	samples map[string]*prometheusSample
}

type prometheusSample struct {
	durationSum   float64
	durationCount float64
	buckets       []float64
	executed      float64
	skipped       float64
	errors        float64
}

func NewPrometheusGroupCollector(opts *PrometheusCollectorOptions) PrometheusCollector {
	if opts == nil {
		opts = &PrometheusCollectorOptions{}
	}
	return &PrometheusGroupCollector{
		options: opts,
		samples: make(map[string]*prometheusSample),
	}
}

func (c *PrometheusGroupCollector) ObserveGroup(summary GroupSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sample, ok := c.samples[summary.Group]
	if !ok {
		sample = &prometheusSample{}
		if buckets := c.options.DurationBuckets; len(buckets) > 0 {
			sample.buckets = make([]float64, len(buckets))
		}
		c.samples[summary.Group] = sample
	}
	durSeconds := summary.Duration.Seconds()
	sample.durationSum += durSeconds
	sample.durationCount++
	for i := range sample.buckets {
		if durSeconds <= c.options.DurationBuckets[i].Seconds() {
			sample.buckets[i]++
		}
	}
	sample.executed += float64(summary.SystemsExecuted)
	sample.skipped += float64(summary.SystemsSkipped)
	if summary.Error != nil {
		sample.errors++
	}

	if writer := c.options.Writer; writer != nil {
		_ = c.writeMetricsLocked(writer)
	}
}

func (c *PrometheusGroupCollector) WriteMetrics(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeMetricsLocked(w)
}

func (c *PrometheusGroupCollector) writeMetricsLocked(w io.Writer) error {
	if w == nil {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString("# HELP ecs_group_duration_seconds Group execution duration.\n")
	buf.WriteString("# TYPE ecs_group_duration_seconds summary\n")
	keys := make([]string, 0, len(c.samples))
	for key := range c.samples {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sample := c.samples[key]
		labels := fmt.Sprintf("group=%q", key)
		buf.WriteString(fmt.Sprintf("ecs_group_duration_seconds_sum{%s} %f\n", labels, sample.durationSum))
		buf.WriteString(fmt.Sprintf("ecs_group_duration_seconds_count{%s} %f\n", labels, sample.durationCount))
		if len(sample.buckets) > 0 {
			for i, bucket := range sample.buckets {
				le := c.options.DurationBuckets[i].Seconds()
				buf.WriteString(fmt.Sprintf("ecs_group_duration_seconds_bucket{%s,le=\"%.6f\"} %f\n", labels, le, bucket))
			}
		}
	}

	buf.WriteString("# HELP ecs_group_systems_executed_total Systems executed per group.\n")
	buf.WriteString("# TYPE ecs_group_systems_executed_total counter\n")
	for _, key := range keys {
		sample := c.samples[key]
		buf.WriteString(fmt.Sprintf("ecs_group_systems_executed_total{group=%q} %f\n", key, sample.executed))
	}

	buf.WriteString("# HELP ecs_group_systems_skipped_total Systems skipped per group.\n")
	buf.WriteString("# TYPE ecs_group_systems_skipped_total counter\n")
	for _, key := range keys {
		sample := c.samples[key]
		buf.WriteString(fmt.Sprintf("ecs_group_systems_skipped_total{group=%q} %f\n", key, sample.skipped))
	}

	buf.WriteString("# HELP ecs_group_errors_total Group error count.\n")
	buf.WriteString("# TYPE ecs_group_errors_total counter\n")
	for _, key := range keys {
		sample := c.samples[key]
		buf.WriteString(fmt.Sprintf("ecs_group_errors_total{group=%q} %f\n", key, sample.errors))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

type SigNozSpanExporter struct {
	opts *SigNozOptions
	mu   sync.Mutex
}

func NewSigNozSpanExporter(opts *SigNozOptions) SigNozExporter {
	if opts == nil {
		opts = &SigNozOptions{}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "ecs-scheduler"
	}
	return &SigNozSpanExporter{opts: opts}
}

func (e *SigNozSpanExporter) ExportGroup(summary GroupSummary) {
	if e.opts.Writer == nil {
		return
	}
	span := map[string]any{
		"service_name": e.opts.ServiceName,
		"name":         fmt.Sprintf("group:%s", summary.Group),
		"timestamp":    nowFunc().UnixNano(),
		"duration_ms":  float64(summary.Duration) / float64(time.Millisecond),
		"attributes": map[string]any{
			"group":            summary.Group,
			"tick":             summary.Tick,
			"systems_total":    summary.SystemsTotal,
			"systems_executed": summary.SystemsExecuted,
			"systems_skipped":  summary.SystemsSkipped,
			"component_reads":  summary.ComponentReads,
			"component_writes": summary.ComponentWrites,
			"resource_reads":   summary.ResourceReads,
			"resource_writes":  summary.ResourceWrites,
		},
	}
	if summary.Error != nil {
		span["error"] = summary.Error.Error()
	}
	payload, err := json.Marshal(span)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.opts.Writer.Write(append(payload, '\n'))
}

// nowFunc is indirected so exporter tests can stub wall-clock time.
var nowFunc = time.Now

type noopObserver struct{}

func (noopObserver) GroupCompleted(GroupSummary) {}
