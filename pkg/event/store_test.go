package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/retry"
)

func TestMemoryStoreAppendAssignsSeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e1 := New(TypeSessionCreated, AggregateSession, "sess-1", nil)
	e2 := New(TypeSessionCompleted, AggregateSession, "sess-1", nil)
	other := New(TypeACRegistered, AggregateAC, "ac-1", nil)

	require.NoError(t, s.Append(ctx, e1))
	require.NoError(t, s.Append(ctx, e2))
	require.NoError(t, s.Append(ctx, other))

	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, int64(1), other.Seq, "sequences are per-aggregate")
}

func TestMemoryStoreReplayOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Equal timestamps: insertion order must be preserved via Seq.
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e := New(TypeWorkerMessage, AggregateExecution, "exec-1", map[string]any{"n": i})
		e.Timestamp = now
		require.NoError(t, s.Append(ctx, e))
	}

	events, err := s.Replay(ctx, AggregateExecution, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 5)

	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, i, int(e.Data["n"].(int)))
	}
}

func TestReplayTimestampsNonDecreasing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(ctx, New(TypeWorkerMessage, AggregateExecution, "exec-2", nil)))
	}

	events, err := s.Replay(ctx, AggregateExecution, "exec-2")
	require.NoError(t, err)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, New(TypeSessionCreated, AggregateSession, "sess-1", nil)))
	require.NoError(t, s.Append(ctx, New(TypeACCompleted, AggregateAC, "ac-1", map[string]any{"session_id": "sess-1"})))
	require.NoError(t, s.Append(ctx, New(TypeACCompleted, AggregateAC, "ac-2", map[string]any{"session_id": "sess-other"})))

	byType, err := s.Query(ctx, Filter{EventType: TypeACCompleted})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	bySession, err := s.Query(ctx, Filter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2, "session aggregate plus events tagged session_id")

	limited, err := s.Query(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Append(ctx, nil)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))

	err = s.Append(ctx, &Event{Type: TypeSessionCreated})
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}
