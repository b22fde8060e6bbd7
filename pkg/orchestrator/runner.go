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

// Package orchestrator drives a run end to end: seed in, session out. It
// owns the workflow context, builds prompts, registers acceptance criteria
// as AC trees, schedules them, and folds worker activity back into the
// event log.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/ac"
	"github.com/kadirpekel/maestro/pkg/agentpool"
	"github.com/kadirpekel/maestro/pkg/checkpoint"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
	"github.com/kadirpekel/maestro/pkg/seed"
	"github.com/kadirpekel/maestro/pkg/session"
	"github.com/kadirpekel/maestro/pkg/tokens"
	"github.com/kadirpekel/maestro/pkg/tools"
)

// CompletionResult is the runner's terminal report.
type CompletionResult struct {
	Success           bool    `json:"success"`
	SessionID         string  `json:"session_id"`
	ExecutionID       string  `json:"execution_id"`
	MessagesProcessed int     `json:"messages_processed"`
	Summary           string  `json:"summary"`
	FinalMessage      string  `json:"final_message"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// Runner wires every core service into one end-to-end driver.
type Runner struct {
	Sessions   *session.Repository
	Events     event.Store
	Tools      *tools.Registry
	Pool       *agentpool.Pool
	Checker    *ac.Checker
	Decomposer *ac.Decomposer

	// Worker is the pool's executor; the runner injects the session id,
	// system prompt and context builder before scheduling starts.
	Worker *Worker

	// Compressor summarizes the workflow context when it outgrows its
	// bounds. Nil disables LLM compression (truncation still applies).
	Compressor    llm.Provider
	CompressModel llm.RequestConfig

	// Counter estimates context size; nil falls back to the character
	// heuristic.
	Counter *tokens.Counter

	// Checkpoints persists per-criterion progress so an interrupted run of
	// the same seed resumes where it stopped. Nil disables checkpointing.
	Checkpoints *checkpoint.Store

	// MaxDepth bounds AC decomposition; zero selects the default.
	MaxDepth int

	// Bounds caps the workflow context; zero values select the package
	// defaults. Populate from config.ContextConfig via BoundsFromConfig.
	Bounds Bounds

	mu       sync.Mutex
	workflow *WorkflowContext
	todos    *TodoStore
}

// Run executes a validated seed to completion.
func (r *Runner) Run(ctx context.Context, s *seed.Seed) (*CompletionResult, error) {
	if s == nil {
		return nil, retry.New(retry.KindValidation, "seed is required")
	}
	if r.Sessions == nil || r.Events == nil || r.Pool == nil || r.Checker == nil || r.Decomposer == nil || r.Worker == nil {
		return nil, retry.New(retry.KindConfig, "runner is not fully wired")
	}

	start := time.Now()
	executionID := "exec-" + uuid.NewString()

	tracker, err := r.Sessions.Create(ctx, executionID, s.ID(), "autonomous")
	if err != nil {
		return nil, err
	}
	sessionID := tracker.SessionID

	r.mu.Lock()
	r.workflow = NewWorkflowContext(s.Goal())
	r.workflow.Bounds = r.Bounds
	r.mu.Unlock()

	if r.todos, err = NewTodoStore(r.Events, sessionID); err != nil {
		return nil, err
	}

	r.Worker.SessionID = sessionID
	r.Worker.SystemPrompt = BuildSystemPrompt(s)
	r.Worker.ContextFor = r.contextFor

	if err := r.discoverTools(ctx, sessionID); err != nil {
		return r.finish(ctx, s, sessionID, executionID, start, false, err.Error())
	}

	completed, total, runErr := r.runCriteria(ctx, s)
	if runErr != nil {
		return r.finish(ctx, s, sessionID, executionID, start, false, runErr.Error())
	}

	success := completed == total
	reason := ""
	if !success {
		reason = fmt.Sprintf("%d of %d acceptance criteria failed", total-completed, total)
	}
	return r.finish(ctx, s, sessionID, executionID, start, success, reason)
}

// discoverTools merges built-ins and MCP tools and journals the result.
func (r *Runner) discoverTools(ctx context.Context, sessionID string) error {
	if r.Tools == nil {
		return nil
	}

	defs, conflicts, err := r.Tools.Discover(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	conflictData := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		conflictData = append(conflictData, map[string]any{
			"name":        c.Name,
			"source":      c.Source,
			"shadowed_by": c.ShadowedBy,
		})
	}

	return r.Events.Append(ctx, event.New(event.TypeToolsLoaded, event.AggregateSession, sessionID,
		map[string]any{
			"session_id":     sessionID,
			"tools":          names,
			"tool_count":     len(names),
			"conflict_count": len(conflicts),
			"conflicts":      conflictData,
		}))
}

// runCriteria registers each acceptance criterion as a root AC tree and
// drives it to a terminal state. Returns (completed, total).
func (r *Runner) runCriteria(ctx context.Context, s *seed.Seed) (int, int, error) {
	criteria := s.AcceptanceCriteria()
	completed, start := r.restoreProgress(s.ID(), len(criteria))

	for i := start; i < len(criteria); i++ {
		criterion := criteria[i]
		r.setCurrentAC(criterion)
		r.maybeCompress(ctx)

		tree, err := ac.NewTree(criterion, r.MaxDepth)
		if err != nil {
			return completed, len(criteria), err
		}
		if err := r.Events.Append(ctx, event.New(event.TypeACRegistered, event.AggregateAC, tree.RootID(),
			map[string]any{
				"session_id": r.Worker.SessionID,
				"content":    criterion,
				"index":      i,
			})); err != nil {
			return completed, len(criteria), err
		}

		scheduler, err := ac.NewScheduler(tree, r.Checker, r.Decomposer, r.Pool, r.Events)
		if err != nil {
			return completed, len(criteria), err
		}
		if err := scheduler.Run(ctx); err != nil {
			return completed, len(criteria), err
		}

		if tree.Succeeded() {
			completed++
			r.addHistory("orchestrator", fmt.Sprintf("Criterion %d completed: %s", i+1, criterion))
		} else {
			r.addHistory("orchestrator", fmt.Sprintf("Criterion %d failed: %s", i+1, criterion))
			r.noteFollowUp(ctx, criterion)
		}
		r.saveProgress(s.ID(), i, completed, len(criteria))
	}
	return completed, len(criteria), nil
}

// noteFollowUp records a failed criterion as a high-priority todo so a later
// run (or an operator) can pick it up from the event log.
func (r *Runner) noteFollowUp(ctx context.Context, criterion string) {
	if _, err := r.todos.Create(ctx, "Revisit failed criterion", criterion, TodoPriorityHigh); err != nil {
		slog.Warn("Failed to record follow-up todo", "error", err)
	}
}

// restoreProgress resumes from the newest valid checkpoint for the seed.
// Returns the completed count so far and the index to continue from.
func (r *Runner) restoreProgress(seedID string, total int) (int, int) {
	if r.Checkpoints == nil {
		return 0, 0
	}
	cp, level, err := r.Checkpoints.Load(seedID)
	if err != nil {
		return 0, 0
	}

	next, ok := cp.State["next_index"].(float64)
	if !ok || next <= 0 || int(next) >= total+1 {
		return 0, 0
	}
	done, _ := cp.State["completed"].(float64)

	slog.Info("Resuming from checkpoint",
		"seed_id", seedID,
		"phase", cp.Phase,
		"level", level,
		"next_index", int(next))
	return int(done), int(next)
}

// saveProgress snapshots progress after one criterion reached a terminal
// state. Checkpoint failures are logged, not fatal; the run carries on.
func (r *Runner) saveProgress(seedID string, index, completed, total int) {
	if r.Checkpoints == nil {
		return
	}
	cp, err := checkpoint.New(seedID, fmt.Sprintf("criterion-%d", index+1), map[string]any{
		"next_index": index + 1,
		"completed":  completed,
		"total":      total,
	})
	if err == nil {
		err = r.Checkpoints.Save(cp)
	}
	if err != nil {
		slog.Warn("Failed to save checkpoint", "seed_id", seedID, "error", err)
	}
}

// finish marks the session terminal, emits the final event, and assembles
// the completion result. The final event is emitted even when marking
// fails.
func (r *Runner) finish(ctx context.Context, s *seed.Seed, sessionID, executionID string, start time.Time, success bool, reason string) (*CompletionResult, error) {
	messages, finalMessage := r.collectMessages(ctx, sessionID)
	duration := time.Since(start)

	summary := fmt.Sprintf("run %s: %d worker messages over %s",
		map[bool]string{true: "succeeded", false: "failed"}[success],
		messages, duration.Round(time.Second))
	if reason != "" {
		summary += " (" + reason + ")"
	}

	var markErr error
	if success {
		markErr = r.Sessions.MarkCompleted(ctx, sessionID)
	} else {
		markErr = r.Sessions.MarkFailed(ctx, sessionID, reason)
	}
	if markErr != nil {
		slog.Error("Failed to mark session terminal", "session_id", sessionID, "error", markErr)
	}

	if err := r.Events.Append(ctx, event.New(event.TypeExecutionFinished, event.AggregateExecution, executionID,
		map[string]any{
			"session_id":       sessionID,
			"seed_id":          s.ID(),
			"success":          success,
			"reason":           reason,
			"summary":          summary,
			"duration_seconds": duration.Seconds(),
		})); err != nil {
		slog.Error("Failed to append final event", "error", err)
	}

	result := &CompletionResult{
		Success:           success,
		SessionID:         sessionID,
		ExecutionID:       executionID,
		MessagesProcessed: messages,
		Summary:           summary,
		FinalMessage:      finalMessage,
		DurationSeconds:   duration.Seconds(),
	}
	if markErr != nil {
		return result, markErr
	}
	return result, nil
}

// collectMessages counts worker messages for the session and returns the
// last one.
func (r *Runner) collectMessages(ctx context.Context, sessionID string) (int, string) {
	events, err := r.Events.Query(ctx, event.Filter{
		SessionID: sessionID,
		EventType: event.TypeWorkerMessage,
	})
	if err != nil {
		slog.Warn("Failed to query worker messages", "error", err)
		return 0, ""
	}
	if len(events) == 0 {
		return 0, ""
	}
	last, _ := events[len(events)-1].Data["content"].(string)
	return len(events), last
}

func (r *Runner) contextFor(currentAC string) FilteredContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workflow.Filter(currentAC, nil)
}

func (r *Runner) setCurrentAC(criterion string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflow.CurrentAC = criterion
}

func (r *Runner) addHistory(role, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflow.AddHistory(role, content)
}

// maybeCompress shrinks the workflow context when it outgrows its token or
// age bound.
func (r *Runner) maybeCompress(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.workflow.NeedsCompression(r.Counter) {
		return
	}
	stats := r.workflow.Compress(ctx, r.Compressor, r.CompressModel, r.Counter)
	slog.Info("Compressed workflow context",
		"method", stats.Method,
		"tokens_before", stats.TokensBefore,
		"tokens_after", stats.TokensAfter,
		"ratio", stats.Ratio)
}
