package observability

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is a SpanExporter that retains recent spans in memory so the
// stats surfaces can show what workers, tools and LLM calls have been doing.
type SpanRecorder struct {
	mu      sync.RWMutex
	spans   map[string]*RecordedSpan
	order   []string
	maxSize int
}

// RecordedSpan is the captured form of one finished span.
type RecordedSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    int64             `json:"start_time_unix_nano"`
	EndTime      int64             `json:"end_time_unix_nano"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes"`
	Status       string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
}

// NewSpanRecorder creates a recorder retaining the last 1000 spans.
func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{
		spans:   make(map[string]*RecordedSpan),
		maxSize: 1000,
	}
}

// WithMaxSize sets the retention bound.
func (r *SpanRecorder) WithMaxSize(size int) *SpanRecorder {
	r.maxSize = size
	return r
}

// ExportSpans implements sdktrace.SpanExporter.
func (r *SpanRecorder) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range spans {
		sc := s.SpanContext()
		rec := &RecordedSpan{
			TraceID:    sc.TraceID().String(),
			SpanID:     sc.SpanID().String(),
			Name:       s.Name(),
			StartTime:  s.StartTime().UnixNano(),
			EndTime:    s.EndTime().UnixNano(),
			DurationMs: float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000.0,
			Attributes: make(map[string]string, len(s.Attributes())),
			Status:     s.Status().Code.String(),
			StatusMsg:  s.Status().Description,
		}
		if parent := s.Parent(); parent.IsValid() {
			rec.ParentSpanID = parent.SpanID().String()
		}
		for _, attr := range s.Attributes() {
			rec.Attributes[string(attr.Key)] = attr.Value.Emit()
		}

		if _, exists := r.spans[rec.SpanID]; !exists {
			r.order = append(r.order, rec.SpanID)
		}
		r.spans[rec.SpanID] = rec
	}

	for len(r.order) > r.maxSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.spans, oldest)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (r *SpanRecorder) Shutdown(ctx context.Context) error {
	return nil
}

// Spans returns a copy of the retained spans, oldest first.
func (r *SpanRecorder) Spans() []RecordedSpan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RecordedSpan, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.spans[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}
