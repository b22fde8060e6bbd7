package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process-wide metrics sink.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the installed sink, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics{}
	}
	return globalMetrics
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordWorkerTask(ctx context.Context, tier string, duration time.Duration, err error) {
}
func (NoopMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
}
func (NoopMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
}
func (NoopMetrics) RecordEscalation(ctx context.Context, fromTier, toTier string) {}
