package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/tokens"
)

// Workflow context bounds.
const (
	// MaxContextTokens triggers compression when the workflow context
	// grows past it.
	MaxContextTokens = 100_000

	// MaxContextAge triggers compression on stale contexts.
	MaxContextAge = 6 * time.Hour

	// RecentHistoryCount is how many trailing history items every worker
	// sees verbatim.
	RecentHistoryCount = 3

	// truncationFactCount is how many key facts survive the aggressive
	// fallback when LLM compression fails.
	truncationFactCount = 5
)

// Bounds caps a workflow context. Zero values select the package defaults.
type Bounds struct {
	MaxTokens     int
	MaxAge        time.Duration
	RecentHistory int
}

// BoundsFromConfig converts the context config section.
func BoundsFromConfig(cfg config.ContextConfig) Bounds {
	return Bounds{
		MaxTokens:     cfg.MaxTokens,
		MaxAge:        time.Duration(cfg.MaxAgeHours) * time.Hour,
		RecentHistory: cfg.RecentHistoryCount,
	}
}

func (b Bounds) withDefaults() Bounds {
	if b.MaxTokens <= 0 {
		b.MaxTokens = MaxContextTokens
	}
	if b.MaxAge <= 0 {
		b.MaxAge = MaxContextAge
	}
	if b.RecentHistory <= 0 {
		b.RecentHistory = RecentHistoryCount
	}
	return b
}

// HistoryItem is one recorded exchange in the workflow.
type HistoryItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowContext is the orchestrator's accumulated view of the run. It is
// owned by the runner; workers only ever see filtered value copies.
type WorkflowContext struct {
	SeedGoal             string        `json:"seed_goal"`
	CurrentAC            string        `json:"current_ac"`
	ParentSummary        string        `json:"parent_summary,omitempty"`
	KeyFacts             []string      `json:"key_facts,omitempty"`
	History              []HistoryItem `json:"history,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	CompressionTimestamp time.Time     `json:"compression_timestamp,omitempty"`

	// Bounds overrides the package defaults when non-zero.
	Bounds Bounds `json:"-"`
}

// NewWorkflowContext creates a fresh context for a run.
func NewWorkflowContext(seedGoal string) *WorkflowContext {
	return &WorkflowContext{
		SeedGoal:  seedGoal,
		CreatedAt: time.Now().UTC(),
	}
}

// AddHistory appends one exchange.
func (w *WorkflowContext) AddHistory(role, content string) {
	w.History = append(w.History, HistoryItem{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AddFact records a key fact.
func (w *WorkflowContext) AddFact(fact string) {
	if fact == "" {
		return
	}
	w.KeyFacts = append(w.KeyFacts, fact)
}

// TokenCount estimates the context's size. A nil counter falls back to the
// character heuristic.
func (w *WorkflowContext) TokenCount(counter *tokens.Counter) int {
	count := func(s string) int {
		if counter != nil {
			return counter.Count(s)
		}
		return tokens.Estimate(s)
	}

	total := count(w.SeedGoal) + count(w.CurrentAC) + count(w.ParentSummary)
	for _, f := range w.KeyFacts {
		total += count(f)
	}
	for _, h := range w.History {
		total += count(h.Content)
	}
	return total
}

// age is measured from the last compression, or creation if never
// compressed.
func (w *WorkflowContext) age() time.Duration {
	since := w.CreatedAt
	if !w.CompressionTimestamp.IsZero() {
		since = w.CompressionTimestamp
	}
	return time.Since(since)
}

// NeedsCompression reports whether the context exceeds its token or age
// bound.
func (w *WorkflowContext) NeedsCompression(counter *tokens.Counter) bool {
	b := w.Bounds.withDefaults()
	return w.TokenCount(counter) > b.MaxTokens || w.age() > b.MaxAge
}

// FilteredContext is the immutable slice of workflow state handed to one
// worker. Value-typed: mutating it cannot touch the orchestrator's view.
type FilteredContext struct {
	CurrentAC     string        `json:"current_ac"`
	RelevantFacts []string      `json:"relevant_facts,omitempty"`
	ParentSummary string        `json:"parent_summary,omitempty"`
	RecentHistory []HistoryItem `json:"recent_history,omitempty"`
}

// Filter builds a worker's context: facts matching any keyword
// (case-insensitive substring; no keywords means all facts) plus the
// trailing history items allowed by the bounds.
func (w *WorkflowContext) Filter(currentAC string, keywords []string) FilteredContext {
	facts := make([]string, 0, len(w.KeyFacts))
	if len(keywords) == 0 {
		facts = append(facts, w.KeyFacts...)
	} else {
		for _, fact := range w.KeyFacts {
			lower := strings.ToLower(fact)
			for _, kw := range keywords {
				if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
					facts = append(facts, fact)
					break
				}
			}
		}
	}

	start := len(w.History) - w.Bounds.withDefaults().RecentHistory
	if start < 0 {
		start = 0
	}
	recent := make([]HistoryItem, len(w.History)-start)
	copy(recent, w.History[start:])

	return FilteredContext{
		CurrentAC:     currentAC,
		RelevantFacts: facts,
		ParentSummary: w.ParentSummary,
		RecentHistory: recent,
	}
}

// Render flattens the filtered context into prompt text.
func (f FilteredContext) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current acceptance criterion: %s\n", f.CurrentAC)
	if f.ParentSummary != "" {
		fmt.Fprintf(&sb, "\nParent context: %s\n", f.ParentSummary)
	}
	if len(f.RelevantFacts) > 0 {
		sb.WriteString("\nKnown facts:\n")
		for _, fact := range f.RelevantFacts {
			fmt.Fprintf(&sb, "- %s\n", fact)
		}
	}
	if len(f.RecentHistory) > 0 {
		sb.WriteString("\nRecent history:\n")
		for _, h := range f.RecentHistory {
			fmt.Fprintf(&sb, "[%s] %s\n", h.Role, h.Content)
		}
	}
	return sb.String()
}

// CompressionStats reports one compression pass.
type CompressionStats struct {
	TokensBefore int     `json:"tokens_before"`
	TokensAfter  int     `json:"tokens_after"`
	Ratio        float64 `json:"ratio"`
	Method       string  `json:"method"` // "llm" or "truncation"
}

// Compress shrinks the context in place. Preferred path: an LLM summary of
// all history except the recent tail, preserving the seed goal, current AC
// and key facts. On LLM failure it falls back to aggressive truncation
// keeping only the goal, the current AC and the top facts.
func (w *WorkflowContext) Compress(ctx context.Context, provider llm.Provider, cfg llm.RequestConfig, counter *tokens.Counter) CompressionStats {
	before := w.TokenCount(counter)

	keep := len(w.History) - w.Bounds.withDefaults().RecentHistory
	if keep < 0 {
		keep = 0
	}
	old, recent := w.History[:keep], w.History[keep:]

	summary, err := w.summarize(ctx, provider, cfg, old)
	if err != nil {
		slog.Warn("Context compression LLM call failed, truncating", "error", err)
		w.truncate()
	} else {
		w.ParentSummary = summary
		w.History = append([]HistoryItem(nil), recent...)
	}
	w.CompressionTimestamp = time.Now().UTC()

	after := w.TokenCount(counter)
	stats := CompressionStats{
		TokensBefore: before,
		TokensAfter:  after,
		Method:       "llm",
	}
	if err != nil {
		stats.Method = "truncation"
	}
	if before > 0 {
		stats.Ratio = float64(after) / float64(before)
	}
	return stats
}

func (w *WorkflowContext) summarize(ctx context.Context, provider llm.Provider, cfg llm.RequestConfig, old []HistoryItem) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("no provider")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\nCurrent criterion: %s\n\nHistory to summarize:\n", w.SeedGoal, w.CurrentAC)
	for _, h := range old {
		fmt.Fprintf(&sb, "[%s] %s\n", h.Role, h.Content)
	}

	resp, err := provider.Complete(ctx, []llm.Message{
		{Role: "system", Content: "Summarize the working history below into a compact " +
			"paragraph. Preserve decisions, discovered constraints and open problems. " +
			"Do not restate the goal."},
		{Role: "user", Content: sb.String()},
	}, cfg)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// truncate is the lossy fallback: goal, current AC and the top facts only.
func (w *WorkflowContext) truncate() {
	if len(w.KeyFacts) > truncationFactCount {
		w.KeyFacts = append([]string(nil), w.KeyFacts[:truncationFactCount]...)
	}
	w.ParentSummary = ""
	w.History = nil
}
