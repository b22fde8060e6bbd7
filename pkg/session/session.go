// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session reconstructs session state from the event log. Sessions
// are never stored as mutable records; the event stream for the session
// aggregate is the source of truth and trackers are folded from it on read.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
	StatusResumed    Status = "resumed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// Tracker is the reconstructed view of a session.
type Tracker struct {
	SessionID   string    `json:"session_id"`
	ExecutionID string    `json:"execution_id"`
	SeedID      string    `json:"seed_id"`
	Status      Status    `json:"status"`
	Mode        string    `json:"mode"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	FailReason  string    `json:"fail_reason,omitempty"`

	// Derived counters folded from the stream.
	EventCount     int `json:"event_count"`
	ACsCompleted   int `json:"acs_completed"`
	ACsFailed      int `json:"acs_failed"`
	ToolCallCount  int `json:"tool_call_count"`
	ResumeCount    int `json:"resume_count"`
	MessageCount   int `json:"message_count"`
	RoutingChanges int `json:"routing_changes"`
}

// Repository creates sessions and rebuilds trackers by replaying events.
type Repository struct {
	events event.Store
}

// NewRepository creates a session repository over an event store.
func NewRepository(events event.Store) (*Repository, error) {
	if events == nil {
		return nil, retry.New(retry.KindConfig, "event store is required")
	}
	return &Repository{events: events}, nil
}

// Create emits a session.created event and returns the initial tracker.
func (r *Repository) Create(ctx context.Context, executionID, seedID, mode string) (*Tracker, error) {
	if executionID == "" || seedID == "" {
		return nil, retry.New(retry.KindValidation, "execution_id and seed_id are required")
	}

	sessionID := "sess-" + uuid.NewString()
	e := event.New(event.TypeSessionCreated, event.AggregateSession, sessionID, map[string]any{
		"execution_id": executionID,
		"seed_id":      seedID,
		"mode":         mode,
	})
	if err := r.events.Append(ctx, e); err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to record session creation", err)
	}

	slog.Info("Session created",
		"session_id", sessionID,
		"seed_id", seedID,
		"mode", mode)

	return &Tracker{
		SessionID:   sessionID,
		ExecutionID: executionID,
		SeedID:      seedID,
		Status:      StatusInProgress,
		Mode:        mode,
		CreatedAt:   e.Timestamp,
		UpdatedAt:   e.Timestamp,
		EventCount:  1,
	}, nil
}

// MarkCompleted transitions the session to completed. Re-marking a session
// already completed is a no-op; transitioning from any other terminal state
// fails with a validation error.
func (r *Repository) MarkCompleted(ctx context.Context, sessionID string) error {
	return r.markTerminal(ctx, sessionID, StatusCompleted, event.TypeSessionCompleted, "")
}

// MarkFailed transitions the session to failed with a reason.
func (r *Repository) MarkFailed(ctx context.Context, sessionID, reason string) error {
	return r.markTerminal(ctx, sessionID, StatusFailed, event.TypeSessionFailed, reason)
}

func (r *Repository) markTerminal(ctx context.Context, sessionID string, target Status, eventType, reason string) error {
	tracker, err := r.Reconstruct(ctx, sessionID)
	if err != nil {
		return err
	}

	if tracker.Status.Terminal() {
		if tracker.Status == target {
			// Idempotent: same terminal state, no second event.
			return nil
		}
		return retry.Newf(retry.KindValidation,
			"session %s is already %s, cannot mark %s", sessionID, tracker.Status, target)
	}

	data := map[string]any{}
	if reason != "" {
		data["reason"] = reason
	}
	e := event.New(eventType, event.AggregateSession, sessionID, data)
	if err := r.events.Append(ctx, e); err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to record session transition", err)
	}

	slog.Info("Session transitioned",
		"session_id", sessionID,
		"status", target)
	return nil
}

// Resume emits a session.resumed event. Resuming a terminal session fails
// with a validation error, distinct from I/O failures.
func (r *Repository) Resume(ctx context.Context, sessionID string) (*Tracker, error) {
	tracker, err := r.Reconstruct(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tracker.Status.Terminal() {
		return nil, retry.Newf(retry.KindValidation,
			"cannot resume session %s in terminal state %s", sessionID, tracker.Status)
	}

	e := event.New(event.TypeSessionResumed, event.AggregateSession, sessionID, nil)
	if err := r.events.Append(ctx, e); err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to record session resume", err)
	}
	return r.Reconstruct(ctx, sessionID)
}

// Reconstruct replays the session aggregate and folds it into a tracker.
func (r *Repository) Reconstruct(ctx context.Context, sessionID string) (*Tracker, error) {
	events, err := r.events.Replay(ctx, event.AggregateSession, sessionID)
	if err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to replay session events", err)
	}
	if len(events) == 0 {
		return nil, retry.Newf(retry.KindNotFound, "session %s not found", sessionID)
	}

	tracker := &Tracker{SessionID: sessionID}
	for i := range events {
		fold(tracker, &events[i])
	}

	// Session-scoped events outside the session aggregate contribute to the
	// derived counters only.
	related, err := r.events.Query(ctx, event.Filter{SessionID: sessionID})
	if err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to query session events", err)
	}
	for i := range related {
		e := &related[i]
		if e.AggregateType == event.AggregateSession {
			continue
		}
		tracker.EventCount++
		foldCounters(tracker, e)
	}

	return tracker, nil
}

func fold(t *Tracker, e *event.Event) {
	t.EventCount++
	t.UpdatedAt = e.Timestamp

	switch e.Type {
	case event.TypeSessionCreated:
		t.Status = StatusInProgress
		t.CreatedAt = e.Timestamp
		t.ExecutionID, _ = e.Data["execution_id"].(string)
		t.SeedID, _ = e.Data["seed_id"].(string)
		t.Mode, _ = e.Data["mode"].(string)
	case event.TypeSessionCompleted:
		t.Status = StatusCompleted
	case event.TypeSessionFailed:
		t.Status = StatusFailed
		t.FailReason, _ = e.Data["reason"].(string)
	case event.TypeSessionResumed:
		t.Status = StatusResumed
		t.ResumeCount++
	}
}

func foldCounters(t *Tracker, e *event.Event) {
	switch e.Type {
	case event.TypeACCompleted:
		t.ACsCompleted++
	case event.TypeACFailed:
		t.ACsFailed++
	case event.TypeToolCalled:
		t.ToolCallCount++
	case event.TypeWorkerMessage:
		t.MessageCount++
	case event.TypeRoutingEscalated, event.TypeRoutingDowngraded:
		t.RoutingChanges++
	}
}
