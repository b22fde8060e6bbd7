package ac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/jsonx"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Decomposition bounds.
const (
	MinChildren = 2
	MaxChildren = 5

	// CompressionDepth is the depth at which discovery insights are
	// truncated to keep decomposition prompts bounded.
	CompressionDepth = 3
	maxInsightChars  = 500
)

// DecompositionResult is a validated breakdown of a parent AC.
type DecompositionResult struct {
	ParentID      string   `json:"parent_id"`
	ChildContents []string `json:"child_contents"`
	ChildIDs      []string `json:"child_ids"`
	Reasoning     string   `json:"reasoning"`
	Dependencies  [][]int  `json:"dependencies"`
}

// Children converts the result into graftable specs.
func (r *DecompositionResult) Children() []ChildSpec {
	out := make([]ChildSpec, len(r.ChildIDs))
	for i := range r.ChildIDs {
		out[i] = ChildSpec{
			ID:        r.ChildIDs[i],
			Content:   r.ChildContents[i],
			DependsOn: r.Dependencies[i],
		}
	}
	return out
}

// Decomposer breaks non-atomic ACs into 2..5 ordered children via an LLM.
type Decomposer struct {
	provider llm.Provider
	model    llm.RequestConfig
	events   event.Store
	maxDepth int
}

// NewDecomposer creates a decomposer journaling to the given event store.
// A non-positive maxDepth selects the default.
func NewDecomposer(provider llm.Provider, model llm.RequestConfig, events event.Store, maxDepth int) (*Decomposer, error) {
	if provider == nil {
		return nil, retry.New(retry.KindConfig, "llm provider is required")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Decomposer{provider: provider, model: model, events: events, maxDepth: maxDepth}, nil
}

type decompositionPayload struct {
	Children []struct {
		Content   string `json:"content"`
		DependsOn []int  `json:"depends_on"`
	} `json:"children"`
	Reasoning string `json:"reasoning"`
}

// Decompose asks the LLM to split parentContent into children and validates
// the reply. insights carries discovery context and is truncated at depth
// CompressionDepth and below to bound prompt size.
func (d *Decomposer) Decompose(ctx context.Context, parentContent, parentID string, depth int, insights string) (*DecompositionResult, error) {
	if depth >= d.maxDepth {
		err := retry.Newf(retry.KindDecomposition,
			"depth %d reached max depth %d for %s", depth, d.maxDepth, parentID).
			WithReason(retry.ReasonMaxDepth)
		d.journalFailure(ctx, parentID, depth, err)
		return nil, err
	}

	if depth >= CompressionDepth && len(insights) > maxInsightChars {
		insights = insights[:maxInsightChars]
	}

	d.append(ctx, event.New(event.TypeACDecompositionStarted, event.AggregateAC, parentID,
		map[string]any{"depth": depth}))

	resp, err := d.provider.Complete(ctx, d.messages(parentContent, insights), d.model)
	if err != nil {
		d.journalFailure(ctx, parentID, depth, err)
		return nil, err
	}

	var payload decompositionPayload
	if err := jsonx.ExtractObject(resp.Content, &payload); err != nil {
		derr := retry.Wrap(retry.KindDecomposition, "unparseable decomposition response", err).
			WithReason(retry.ReasonParseFailure)
		d.journalFailure(ctx, parentID, depth, derr)
		return nil, derr
	}

	result, err := d.validate(payload, parentContent, parentID)
	if err != nil {
		d.journalFailure(ctx, parentID, depth, err)
		return nil, err
	}

	d.append(ctx, event.New(event.TypeACDecompositionComplete, event.AggregateAC, parentID,
		map[string]any{
			"child_ids":   result.ChildIDs,
			"child_count": len(result.ChildIDs),
			"depth":       depth,
			"reasoning":   result.Reasoning,
		}))
	return result, nil
}

func (d *Decomposer) messages(parentContent, insights string) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Break this task into %d to %d smaller subtasks.\n\nTask: %s\n",
		MinChildren, MaxChildren, parentContent)
	if insights != "" {
		fmt.Fprintf(&sb, "\nContext from earlier discovery:\n%s\n", insights)
	}
	sb.WriteString("\nRespond with JSON: {\"children\": [{\"content\": string, " +
		"\"depends_on\": [int, ...]}], \"reasoning\": string}. " +
		"depends_on lists zero-based indexes of earlier siblings the subtask waits on.")

	return []llm.Message{
		{Role: "system", Content: "You decompose software tasks into independent, " +
			"concretely actionable subtasks. Subtasks must together cover the parent " +
			"task and must not restate it."},
		{Role: "user", Content: sb.String()},
	}
}

// validate enforces the decomposition contract: child count in bounds, no
// empty child, no restatement of the parent, dependencies strictly backward.
// Invalid dependency indexes are dropped, never repaired.
func (d *Decomposer) validate(payload decompositionPayload, parentContent, parentID string) (*DecompositionResult, error) {
	n := len(payload.Children)
	if n < MinChildren {
		return nil, retry.Newf(retry.KindDecomposition,
			"got %d children, need at least %d", n, MinChildren).
			WithReason(retry.ReasonInsufficientChildren)
	}
	if n > MaxChildren {
		return nil, retry.Newf(retry.KindDecomposition,
			"got %d children, at most %d allowed", n, MaxChildren).
			WithReason(retry.ReasonTooManyChildren)
	}

	parentNorm := normalizeContent(parentContent)
	result := &DecompositionResult{
		ParentID:  parentID,
		Reasoning: payload.Reasoning,
	}

	for i, child := range payload.Children {
		content := strings.TrimSpace(child.Content)
		if content == "" {
			return nil, retry.Newf(retry.KindDecomposition, "child %d is empty", i).
				WithReason(retry.ReasonEmptyChild)
		}
		if normalizeContent(content) == parentNorm {
			return nil, retry.Newf(retry.KindDecomposition,
				"child %d restates the parent", i).
				WithReason(retry.ReasonCyclic)
		}

		deps := make([]int, 0, len(child.DependsOn))
		for _, dep := range child.DependsOn {
			if dep < 0 || dep >= i {
				slog.Warn("Dropping invalid dependency index",
					"parent_id", parentID,
					"child_index", i,
					"depends_on", dep)
				continue
			}
			deps = append(deps, dep)
		}

		result.ChildContents = append(result.ChildContents, content)
		result.ChildIDs = append(result.ChildIDs, "ac-"+uuid.NewString())
		result.Dependencies = append(result.Dependencies, deps)
	}
	return result, nil
}

func (d *Decomposer) journalFailure(ctx context.Context, parentID string, depth int, cause error) {
	d.append(ctx, event.New(event.TypeACDecompositionFailed, event.AggregateAC, parentID,
		map[string]any{
			"depth":  depth,
			"reason": string(retry.KindOf(cause)) + "/" + retry.ReasonOf(cause),
			"error":  cause.Error(),
		}))
}

func (d *Decomposer) append(ctx context.Context, e *event.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.Append(ctx, e); err != nil {
		slog.Error("Failed to append decomposition event", "type", e.Type, "error", err)
	}
}
