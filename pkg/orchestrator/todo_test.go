package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

func TestTodoRoundTrip(t *testing.T) {
	store, err := NewTodoStore(event.NewMemoryStore(), "sess-1")
	require.NoError(t, err)
	ctx := context.Background()

	todo, err := store.Create(ctx, "tighten the retry bounds", "seen flaky timeouts", TodoPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, TodoStatusPending, todo.Status)

	got, err := store.Get(ctx, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, "tighten the retry bounds", got.Description)
	assert.Equal(t, "seen flaky timeouts", got.Context)
	assert.Equal(t, TodoPriorityHigh, got.Priority)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestTodoStatusUpdates(t *testing.T) {
	store, err := NewTodoStore(event.NewMemoryStore(), "sess-1")
	require.NoError(t, err)
	ctx := context.Background()

	todo, err := store.Create(ctx, "improve logging", "", "")
	require.NoError(t, err)
	assert.Equal(t, TodoPriorityMedium, todo.Priority, "default priority")

	require.NoError(t, store.SetStatus(ctx, todo.ID, TodoStatusInProgress, ""))
	require.NoError(t, store.SetStatus(ctx, todo.ID, TodoStatusFailed, "worker crashed"))

	got, err := store.Get(ctx, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, TodoStatusFailed, got.Status)
	assert.Equal(t, "worker crashed", got.ErrorMessage)
}

func TestTodoValidation(t *testing.T) {
	store, err := NewTodoStore(event.NewMemoryStore(), "sess-1")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "", "", "")
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))

	_, err = store.Create(ctx, "desc", "", "urgent")
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))

	err = store.SetStatus(ctx, "todo-missing", TodoStatusDone, "")
	assert.Equal(t, retry.KindNotFound, retry.KindOf(err))

	todo, err := store.Create(ctx, "desc", "", "")
	require.NoError(t, err)
	err = store.SetStatus(ctx, todo.ID, "finished", "")
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestTodoListScopedToSession(t *testing.T) {
	events := event.NewMemoryStore()
	ctx := context.Background()

	a, err := NewTodoStore(events, "sess-a")
	require.NoError(t, err)
	b, err := NewTodoStore(events, "sess-b")
	require.NoError(t, err)

	_, err = a.Create(ctx, "first for a", "", "")
	require.NoError(t, err)
	_, err = a.Create(ctx, "second for a", "", "")
	require.NoError(t, err)
	_, err = b.Create(ctx, "only for b", "", "")
	require.NoError(t, err)

	listA, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, listA, 2)
	assert.Equal(t, "first for a", listA[0].Description)
	assert.Equal(t, "second for a", listA[1].Description)

	listB, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, listB, 1)
}
