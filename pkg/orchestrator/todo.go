package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// TODO priorities and statuses.
const (
	TodoPriorityHigh   = "high"
	TodoPriorityMedium = "medium"
	TodoPriorityLow    = "low"

	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in_progress"
	TodoStatusDone       = "done"
	TodoStatusFailed     = "failed"
	TodoStatusSkipped    = "skipped"
)

// Todo is a secondary-loop improvement item. Stored only as events;
// reconstructed on read.
type Todo struct {
	ID           string    `json:"id" mapstructure:"id"`
	Description  string    `json:"description" mapstructure:"description"`
	Context      string    `json:"context,omitempty" mapstructure:"context"`
	Priority     string    `json:"priority" mapstructure:"priority"`
	Status       string    `json:"status" mapstructure:"status"`
	CreatedAt    time.Time `json:"created_at" mapstructure:"-"`
	ErrorMessage string    `json:"error_message,omitempty" mapstructure:"error_message"`
}

// TodoStore reads and writes TODO items through the event log.
type TodoStore struct {
	events    event.Store
	sessionID string
}

// NewTodoStore creates a store scoped to one session.
func NewTodoStore(events event.Store, sessionID string) (*TodoStore, error) {
	if events == nil {
		return nil, retry.New(retry.KindConfig, "event store is required")
	}
	return &TodoStore{events: events, sessionID: sessionID}, nil
}

// Create emits a todo.created event and returns the new item.
func (s *TodoStore) Create(ctx context.Context, description, todoContext, priority string) (*Todo, error) {
	if description == "" {
		return nil, retry.New(retry.KindValidation, "todo description cannot be empty")
	}
	switch priority {
	case TodoPriorityHigh, TodoPriorityMedium, TodoPriorityLow:
	case "":
		priority = TodoPriorityMedium
	default:
		return nil, retry.Newf(retry.KindValidation, "unknown todo priority: %s", priority)
	}

	todo := &Todo{
		ID:          "todo-" + uuid.NewString(),
		Description: description,
		Context:     todoContext,
		Priority:    priority,
		Status:      TodoStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.events.Append(ctx, event.New(event.TypeTodoCreated, event.AggregateTodo, todo.ID,
		map[string]any{
			"session_id":  s.sessionID,
			"description": todo.Description,
			"context":     todo.Context,
			"priority":    todo.Priority,
			"status":      todo.Status,
		}))
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// SetStatus emits a todo.updated event. An optional errorMessage accompanies
// failed items.
func (s *TodoStore) SetStatus(ctx context.Context, todoID, status, errorMessage string) error {
	switch status {
	case TodoStatusPending, TodoStatusInProgress, TodoStatusDone, TodoStatusFailed, TodoStatusSkipped:
	default:
		return retry.Newf(retry.KindValidation, "unknown todo status: %s", status)
	}

	if _, err := s.Get(ctx, todoID); err != nil {
		return err
	}

	data := map[string]any{
		"session_id": s.sessionID,
		"status":     status,
	}
	if errorMessage != "" {
		data["error_message"] = errorMessage
	}
	return s.events.Append(ctx, event.New(event.TypeTodoUpdated, event.AggregateTodo, todoID, data))
}

// Get reconstructs one TODO item from its events.
func (s *TodoStore) Get(ctx context.Context, todoID string) (*Todo, error) {
	events, err := s.events.Replay(ctx, event.AggregateTodo, todoID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, retry.Newf(retry.KindNotFound, "todo not found: %s", todoID)
	}

	todo := &Todo{ID: todoID}
	for i := range events {
		foldTodo(todo, &events[i])
	}
	return todo, nil
}

// List reconstructs the session's TODO items in creation order.
func (s *TodoStore) List(ctx context.Context) ([]Todo, error) {
	created, err := s.events.Query(ctx, event.Filter{
		SessionID: s.sessionID,
		EventType: event.TypeTodoCreated,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Todo, 0, len(created))
	for _, e := range created {
		todo, err := s.Get(ctx, e.AggregateID)
		if err != nil {
			return nil, err
		}
		out = append(out, *todo)
	}
	return out, nil
}

func foldTodo(t *Todo, e *event.Event) {
	switch e.Type {
	case event.TypeTodoCreated:
		_ = mapstructure.Decode(e.Data, t)
		t.ID = e.AggregateID
		t.CreatedAt = e.Timestamp
	case event.TypeTodoUpdated:
		if status, ok := e.Data["status"].(string); ok {
			t.Status = status
		}
		if msg, ok := e.Data["error_message"].(string); ok {
			t.ErrorMessage = msg
		}
	}
}
