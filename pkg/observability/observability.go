// Package observability centralizes OpenTelemetry instrumentation. Only
// the otel API is used here; exporter and SDK wiring belongs to the
// embedding process.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/reagentlabs/reagent"

// Tracer returns the runtime's tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Meter returns the runtime's meter.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics bundles the instruments recorded by the LLM and tool layers.
type Metrics struct {
	llmRequests  metric.Int64Counter
	llmTokens    metric.Int64Counter
	llmDuration  metric.Float64Histogram
	toolExecs    metric.Int64Counter
	toolDuration metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics returns the shared instrument set, creating it on first use.
// Instrument creation errors fall back to no-op instruments from the
// global provider, so recording is always safe.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m := Meter()
		metrics = &Metrics{}
		metrics.llmRequests, _ = m.Int64Counter("llm.requests",
			metric.WithDescription("LLM completion requests"))
		metrics.llmTokens, _ = m.Int64Counter("llm.tokens",
			metric.WithDescription("Total tokens consumed"))
		metrics.llmDuration, _ = m.Float64Histogram("llm.request.duration",
			metric.WithDescription("LLM request duration in seconds"),
			metric.WithUnit("s"))
		metrics.toolExecs, _ = m.Int64Counter("tool.executions",
			metric.WithDescription("Tool executions"))
		metrics.toolDuration, _ = m.Float64Histogram("tool.execution.duration",
			metric.WithDescription("Tool execution duration in seconds"),
			metric.WithUnit("s"))
	})
	return metrics
}

// RecordLLMRequest records one completion round-trip.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, model string, tokens int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	)
	if m.llmRequests != nil {
		m.llmRequests.Add(ctx, 1, attrs)
	}
	if m.llmTokens != nil && tokens > 0 {
		m.llmTokens.Add(ctx, int64(tokens), attrs)
	}
	if m.llmDuration != nil {
		m.llmDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordToolExecution records one tool execution.
func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	)
	if m.toolExecs != nil {
		m.toolExecs.Add(ctx, 1, attrs)
	}
	if m.toolDuration != nil {
		m.toolDuration.Record(ctx, d.Seconds(), attrs)
	}
}
