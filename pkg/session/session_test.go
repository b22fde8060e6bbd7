package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

func newTestRepo(t *testing.T) (*Repository, event.Store) {
	t.Helper()
	store := event.NewMemoryStore()
	repo, err := NewRepository(store)
	require.NoError(t, err)
	return repo, store
}

func TestCreateEmitsEvent(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	tracker, err := repo.Create(ctx, "exec-1", "seed-1", "autonomous")
	require.NoError(t, err)
	assert.NotEmpty(t, tracker.SessionID)
	assert.Equal(t, StatusInProgress, tracker.Status)

	events, err := store.Replay(ctx, event.AggregateSession, tracker.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeSessionCreated, events[0].Type)
}

func TestCreateValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Create(context.Background(), "", "seed-1", "autonomous")
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestReconstructFoldsStream(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	tracker, err := repo.Create(ctx, "exec-1", "seed-1", "autonomous")
	require.NoError(t, err)
	sid := tracker.SessionID

	require.NoError(t, store.Append(ctx, event.New(event.TypeACCompleted, event.AggregateAC, "ac-1",
		map[string]any{"session_id": sid})))
	require.NoError(t, store.Append(ctx, event.New(event.TypeACFailed, event.AggregateAC, "ac-2",
		map[string]any{"session_id": sid})))
	require.NoError(t, store.Append(ctx, event.New(event.TypeToolCalled, event.AggregateExecution, "exec-1",
		map[string]any{"session_id": sid, "tool": "read_file"})))
	require.NoError(t, repo.MarkCompleted(ctx, sid))

	got, err := repo.Reconstruct(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, "seed-1", got.SeedID)
	assert.Equal(t, 1, got.ACsCompleted)
	assert.Equal(t, 1, got.ACsFailed)
	assert.Equal(t, 1, got.ToolCallCount)
}

func TestTerminalIdempotency(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	tracker, err := repo.Create(ctx, "exec-1", "seed-1", "autonomous")
	require.NoError(t, err)
	sid := tracker.SessionID

	require.NoError(t, repo.MarkCompleted(ctx, sid))
	// Same terminal state again: success, no second event.
	require.NoError(t, repo.MarkCompleted(ctx, sid))

	events, err := store.Replay(ctx, event.AggregateSession, sid)
	require.NoError(t, err)
	count := 0
	for _, e := range events {
		if e.Type == event.TypeSessionCompleted {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// A different terminal state is a logical error.
	err = repo.MarkFailed(ctx, sid, "boom")
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestResumeTerminalFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	tracker, err := repo.Create(ctx, "exec-1", "seed-1", "autonomous")
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, tracker.SessionID, "timeout"))

	_, err = repo.Resume(ctx, tracker.SessionID)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestResumeIncrementsCounter(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	tracker, err := repo.Create(ctx, "exec-1", "seed-1", "autonomous")
	require.NoError(t, err)

	resumed, err := repo.Resume(ctx, tracker.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusResumed, resumed.Status)
	assert.Equal(t, 1, resumed.ResumeCount)
}

func TestReconstructUnknownSession(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Reconstruct(context.Background(), "sess-unknown")
	assert.Equal(t, retry.KindNotFound, retry.KindOf(err))
}
