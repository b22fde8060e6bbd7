package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/maestro/pkg/agentpool"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/jsonx"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/retry"
	"github.com/kadirpekel/maestro/pkg/routing"
	"github.com/kadirpekel/maestro/pkg/security"
	"github.com/kadirpekel/maestro/pkg/tokens"
	"github.com/kadirpekel/maestro/pkg/tools"
)

// DefaultMaxToolIterations bounds the tool loop within one worker task.
const DefaultMaxToolIterations = 5

// Worker executes one atomic AC: route a tier, draw a model, call the LLM
// with a filtered context, run requested tools through the security gate,
// and report the routing outcome. It implements agentpool.Executor.
type Worker struct {
	Controller *routing.Controller
	Catalog    *routing.Catalog
	Providers  *llm.Registry
	Tools      *tools.Registry
	Gate       *security.Gate
	Events     event.Store

	// SessionID correlates emitted events with the run.
	SessionID string

	// SystemPrompt is the run-level system prompt built from the seed.
	SystemPrompt string

	// ContextFor builds the filtered context for an AC. Nil means a bare
	// context containing only the AC itself.
	ContextFor func(ac string) FilteredContext

	// Credential is presented to the gate on every tool call.
	Credential string

	Adaptive          llm.AdaptiveConfig
	MaxToolIterations int
}

// toolRequest is the JSON shape a model uses to ask for a tool.
type toolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Execute runs one pool task end to end.
func (w *Worker) Execute(ctx context.Context, task *agentpool.Task) (*agentpool.TaskResult, error) {
	tc := w.taskContext(task)

	decision, err := w.Controller.Route(ctx, tc)
	if err != nil {
		return nil, err
	}
	if decision.Stagnating {
		return nil, retry.Newf(retry.KindStagnation,
			"no viable tier above %s for pattern %s", decision.Tier, decision.Fingerprint)
	}

	model, err := w.Catalog.ModelForTier(decision.Tier)
	if err != nil {
		return nil, err
	}
	provider, err := w.Providers.ProviderFor(model.Provider)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewAdaptiveClient(provider, w.Adaptive)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := w.converse(ctx, task, client, model.Model)
	duration := time.Since(start)

	if err != nil {
		// RecordResult also bumps the failure tracker for the pattern.
		w.Controller.RecordResult(ctx, tc, decision.Tier, false, duration)
		return nil, err
	}

	w.Controller.RecordResult(ctx, tc, decision.Tier, true, duration)
	result.Tier = decision.Tier.String()
	return result, nil
}

func (w *Worker) taskContext(task *agentpool.Task) routing.TaskContext {
	tc := routing.TaskContext{
		TaskType:   task.AgentType,
		TokenCount: tokens.Estimate(task.Prompt),
		Content:    task.Prompt,
	}
	if task.Metadata != nil {
		if depth, ok := task.Metadata["ac_depth"].(int); ok {
			tc.ACDepth = depth
		}
		if deps, ok := task.Metadata["tool_dependencies"].([]string); ok {
			tc.ToolDependencies = deps
		}
	}
	return tc
}

// converse drives the LLM conversation, executing tool requests until the
// model produces a final answer or the iteration bound is hit.
func (w *Worker) converse(ctx context.Context, task *agentpool.Task, client *llm.AdaptiveClient, model string) (*agentpool.TaskResult, error) {
	fc := FilteredContext{CurrentAC: task.Prompt}
	if w.ContextFor != nil {
		fc = w.ContextFor(task.Prompt)
	}

	messages := []llm.Message{
		{Role: "system", Content: w.systemPrompt()},
		{Role: "user", Content: fc.Render() + "\nComplete the current acceptance criterion."},
	}

	maxIter := w.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}

	var tokensUsed, toolCalls int
	for i := 0; i <= maxIter; i++ {
		callStart := time.Now()
		resp, err := client.Complete(ctx, messages, llm.RequestConfig{Model: model})
		observability.GetGlobalMetrics().RecordLLMCall(ctx, model, time.Since(callStart),
			usagePrompt(resp), usageCompletion(resp), err)
		if err != nil {
			return nil, err
		}
		tokensUsed += resp.Usage.PromptTokens + resp.Usage.CompletionTokens

		w.append(ctx, event.New(event.TypeWorkerMessage, event.AggregateExecution, task.ID,
			map[string]any{
				"session_id": w.SessionID,
				"role":       "assistant",
				"content":    resp.Content,
			}))

		var req toolRequest
		if jsonx.ExtractObject(resp.Content, &req) != nil || req.Tool == "" {
			return &agentpool.TaskResult{
				TaskID:     task.ID,
				Output:     resp.Content,
				TokensUsed: tokensUsed,
				ToolCalls:  toolCalls,
			}, nil
		}

		if i == maxIter {
			return nil, retry.Newf(retry.KindTool,
				"tool loop exceeded %d iterations", maxIter)
		}

		toolCalls++
		output := w.callTool(ctx, task.ID, req)
		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "user", Content: fmt.Sprintf("Tool %s result:\n%s", req.Tool, output)},
		)
	}

	return nil, retry.New(retry.KindTool, "tool loop did not converge")
}

// callTool runs one guarded tool invocation. Failures are folded into the
// conversation rather than aborting the task; the model decides what to do
// with them.
func (w *Worker) callTool(ctx context.Context, taskID string, req toolRequest) string {
	start := time.Now()
	output, err := w.invoke(ctx, req)
	if err != nil {
		slog.Warn("Tool call failed",
			"tool", req.Tool,
			"task_id", taskID,
			"error", err)
		output = "error: " + err.Error()
	}

	w.append(ctx, event.New(event.TypeToolCalled, event.AggregateExecution, taskID,
		map[string]any{
			"session_id": w.SessionID,
			"tool":       req.Tool,
			"duration":   time.Since(start).Seconds(),
			"failed":     err != nil,
		}))
	return output
}

func (w *Worker) invoke(ctx context.Context, req toolRequest) (string, error) {
	if w.Tools == nil {
		return "", retry.New(retry.KindConfig, "no tool registry configured")
	}
	if w.Gate != nil {
		if _, err := w.Gate.Authorize(ctx, security.Request{
			Credential: w.Credential,
			Tool:       req.Tool,
			Arguments:  req.Arguments,
		}); err != nil {
			return "", err
		}
	}

	result, err := w.Tools.Call(ctx, req.Tool, req.Arguments, 0)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", retry.Newf(retry.KindTool, "tool reported error: %s", result.Content)
	}
	return result.Content, nil
}

func (w *Worker) systemPrompt() string {
	if w.SystemPrompt != "" {
		return w.SystemPrompt
	}
	return "You are an autonomous software engineering agent."
}

func (w *Worker) append(ctx context.Context, e *event.Event) {
	if w.Events == nil {
		return
	}
	if err := w.Events.Append(ctx, e); err != nil {
		slog.Error("Failed to append worker event", "type", e.Type, "error", err)
	}
}

func usagePrompt(r *llm.Response) int {
	if r == nil {
		return 0
	}
	return r.Usage.PromptTokens
}

func usageCompletion(r *llm.Response) int {
	if r == nil {
		return 0
	}
	return r.Usage.CompletionTokens
}
