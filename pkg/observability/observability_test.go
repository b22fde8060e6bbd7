package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestManagerDisabledEverything(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.Initialize(context.Background()))

	tracer := m.GetTracer("test")
	assert.NotNil(t, tracer)

	// Disabled metrics are inert but callable.
	metrics := m.GetMetrics()
	metrics.RecordWorkerTask(context.Background(), "frugal", time.Second, nil)
	metrics.RecordLLMCall(context.Background(), "gpt-4o-mini", time.Second, 10, 20, nil)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNoopTracerWhenDisabled(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	_, ok := tp.(noop.TracerProvider)
	assert.True(t, ok)
}

func TestGlobalMetricsFallback(t *testing.T) {
	SetGlobalMetrics(nil)
	m := GetGlobalMetrics()
	require.NotNil(t, m)
	m.RecordToolCall(context.Background(), "read_file", time.Millisecond, nil)
}

func TestSpanRecorderRetention(t *testing.T) {
	r := NewSpanRecorder().WithMaxSize(2)
	assert.Empty(t, r.Spans())
	require.NoError(t, r.Shutdown(context.Background()))
}
