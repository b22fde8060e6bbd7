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

// Package event is the append-only event log, the source of truth for all
// session state. Events are never edited or deleted; consumers reconstruct
// state by left-folding the replayed stream.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Aggregate types.
const (
	AggregateSession   = "session"
	AggregateAC        = "ac"
	AggregateRouting   = "routing"
	AggregateTodo      = "todo"
	AggregateExecution = "execution"
)

// Well-known event types. The type namespace is dotted:
// "<aggregate>.<noun>.<verb>".
const (
	TypeSessionCreated   = "session.created"
	TypeSessionCompleted = "session.completed"
	TypeSessionFailed    = "session.failed"
	TypeSessionResumed   = "session.resumed"

	TypeACRegistered            = "ac.registered"
	TypeACAtomicityChecked      = "ac.atomicity.checked"
	TypeACDecompositionStarted  = "ac.decomposition.started"
	TypeACDecompositionComplete = "ac.decomposition.completed"
	TypeACDecompositionFailed   = "ac.decomposition.failed"
	TypeACExecutionStarted      = "ac.execution.started"
	TypeACCompleted             = "ac.completed"
	TypeACFailed                = "ac.failed"

	TypeRoutingDecision   = "routing.decision"
	TypeRoutingEscalated  = "routing.escalated"
	TypeRoutingDowngraded = "routing.downgraded"
	TypeRoutingStagnation = "routing.stagnation"

	TypeToolsLoaded       = "mcp.tools.loaded"
	TypeToolCalled        = "execution.tool.called"
	TypeWorkerMessage     = "execution.message"
	TypeCancellation      = "execution.cancelled"
	TypeExecutionFinished = "execution.finished"

	TypeTodoCreated = "todo.created"
	TypeTodoUpdated = "todo.updated"
)

// Event is one immutable fact. Data must be JSON-serializable; the log is
// losslessly representable as JSON with sorted keys.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Seq           int64          `json:"seq"`
	Data          map[string]any `json:"data,omitempty"`
}

// New builds an event with a fresh id and UTC timestamp. Seq is assigned by
// the store at append time.
func New(eventType, aggregateType, aggregateID string, data map[string]any) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}
}

// Filter narrows a Query. Zero fields are ignored.
type Filter struct {
	SessionID string
	EventType string
	Limit     int
	Offset    int
}

// Store is the append-only event log.
//
// Ordering guarantees: within an aggregate, Replay returns events in
// monotonic timestamp order with wall-clock ties broken by insertion order
// (the store-assigned Seq).
type Store interface {
	// Append durably records an event before returning. The only failure
	// mode is underlying storage failure, surfaced as a persistence error.
	Append(ctx context.Context, e *Event) error

	// Replay returns every event for an aggregate, in order.
	Replay(ctx context.Context, aggregateType, aggregateID string) ([]Event, error)

	// Query returns a bounded slice of events matching the filter, in
	// global append order.
	Query(ctx context.Context, f Filter) ([]Event, error)

	// Close releases store resources.
	Close() error
}
