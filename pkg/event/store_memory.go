package event

import (
	"context"
	"sync"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// MemoryStore is an in-process event log. Suitable for tests and
// single-shot runs; the SQL store is the durable backend.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	seqs   map[string]int64 // per-aggregate next sequence
}

// NewMemoryStore creates an empty in-memory event log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seqs: make(map[string]int64),
	}
}

func aggKey(aggregateType, aggregateID string) string {
	return aggregateType + "\x00" + aggregateID
}

// Append records the event, assigning its per-aggregate sequence.
func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	if e == nil {
		return retry.New(retry.KindValidation, "event cannot be nil")
	}
	if e.AggregateType == "" || e.AggregateID == "" {
		return retry.New(retry.KindValidation, "event aggregate type and id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggKey(e.AggregateType, e.AggregateID)
	s.seqs[key]++
	e.Seq = s.seqs[key]
	s.events = append(s.events, *e)
	return nil
}

// Replay returns the aggregate's events in (timestamp, seq) order.
func (s *MemoryStore) Replay(_ context.Context, aggregateType, aggregateID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// Query returns matching events in global append order.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for _, e := range s.events {
		if f.EventType != "" && e.Type != f.EventType {
			continue
		}
		if f.SessionID != "" && !matchesSession(e, f.SessionID) {
			continue
		}
		matched = append(matched, e)
	}

	return window(matched, f.Offset, f.Limit), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesSession(e Event, sessionID string) bool {
	if e.AggregateType == AggregateSession && e.AggregateID == sessionID {
		return true
	}
	if v, ok := e.Data["session_id"].(string); ok && v == sessionID {
		return true
	}
	return false
}

func window(events []Event, offset, limit int) []Event {
	if offset >= len(events) {
		return nil
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

func sortEvents(events []Event) {
	// Timestamps are non-decreasing within an aggregate, so a stable
	// insertion sort on (timestamp, seq) is effectively linear.
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && less(events[j], events[j-1]); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func less(a, b Event) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.Seq < b.Seq
	}
	return a.Timestamp.Before(b.Timestamp)
}
