package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Port    int  `yaml:"port" json:"port" mapstructure:"port"`
}

// Metrics is the sink for orchestrator instrumentation.
type Metrics interface {
	RecordWorkerTask(ctx context.Context, tier string, duration time.Duration, err error)
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordEscalation(ctx context.Context, fromTier, toTier string)
}

// InitMetrics builds the Prometheus-backed metrics when enabled, an inert
// instance otherwise.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("maestro")

	taskDuration, err := meter.Float64Histogram(
		"maestro_worker_task_duration_seconds",
		metric.WithDescription("Worker task duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task duration histogram: %w", err)
	}

	taskTotal, err := meter.Int64Counter(
		"maestro_worker_tasks_total",
		metric.WithDescription("Total worker tasks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task counter: %w", err)
	}

	taskErrors, err := meter.Int64Counter(
		"maestro_worker_task_errors_total",
		metric.WithDescription("Total worker task failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task error counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"maestro_tool_call_duration_seconds",
		metric.WithDescription("Tool call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolTotal, err := meter.Int64Counter(
		"maestro_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"maestro_tool_call_errors_total",
		metric.WithDescription("Total tool call failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool error counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"maestro_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"maestro_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input token counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"maestro_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output token counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"maestro_llm_errors_total",
		metric.WithDescription("Total LLM call failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm error counter: %w", err)
	}

	escalations, err := meter.Int64Counter(
		"maestro_routing_escalations_total",
		metric.WithDescription("Total routing tier escalations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalation counter: %w", err)
	}

	return &PrometheusMetrics{
		taskDuration:    taskDuration,
		taskTotal:       taskTotal,
		taskErrors:      taskErrors,
		toolDuration:    toolDuration,
		toolTotal:       toolTotal,
		toolErrors:      toolErrors,
		llmDuration:     llmDuration,
		llmInputTokens:  llmInputTokens,
		llmOutputTokens: llmOutputTokens,
		llmErrors:       llmErrors,
		escalations:     escalations,
	}, nil
}

// PrometheusMetrics implements Metrics over OTel instruments. The zero value
// is inert and safe to call.
type PrometheusMetrics struct {
	taskDuration metric.Float64Histogram
	taskTotal    metric.Int64Counter
	taskErrors   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolTotal    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	escalations metric.Int64Counter
}

func (m *PrometheusMetrics) RecordWorkerTask(ctx context.Context, tier string, duration time.Duration, err error) {
	if m == nil || m.taskDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
	m.taskTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.taskErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordEscalation(ctx context.Context, fromTier, toTier string) {
	if m == nil || m.escalations == nil {
		return
	}
	m.escalations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", fromTier),
		attribute.String("to", toTier),
	))
}
