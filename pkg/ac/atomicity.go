package ac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/maestro/pkg/jsonx"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Atomicity verdict methods.
const (
	MethodLLM       = "llm"
	MethodHeuristic = "heuristic"
)

// Criteria bounds what the heuristic considers atomic.
type Criteria struct {
	MaxComplexity      float64 `yaml:"max_complexity,omitempty" json:"max_complexity,omitempty"`
	MaxToolCount       int     `yaml:"max_tool_count,omitempty" json:"max_tool_count,omitempty"`
	MaxDurationSeconds float64 `yaml:"max_duration_seconds,omitempty" json:"max_duration_seconds,omitempty"`
}

// SetDefaults sets default values for Criteria.
func (c *Criteria) SetDefaults() {
	if c.MaxComplexity == 0 {
		c.MaxComplexity = 0.5
	}
	if c.MaxToolCount == 0 {
		c.MaxToolCount = 3
	}
	if c.MaxDurationSeconds == 0 {
		c.MaxDurationSeconds = 300
	}
}

// Verdict is the outcome of an atomicity check.
type Verdict struct {
	IsAtomic          bool    `json:"is_atomic"`
	ComplexityScore   float64 `json:"complexity_score"`
	ToolCount         int     `json:"tool_count"`
	EstimatedDuration float64 `json:"estimated_duration"`
	Reasoning         string  `json:"reasoning"`
	Method            string  `json:"method"`
}

// toolKeywords are verbs that usually imply a tool invocation.
var toolKeywords = []string{
	"read", "write", "create", "delete", "edit", "search", "list",
	"run", "execute", "install", "build", "compile", "test",
	"fetch", "download", "query", "deploy", "configure",
}

// sequenceIndicators mark multi-step phrasing.
var sequenceIndicators = []string{
	"and then", "after that", "followed by", "while", "once done",
}

// Checker decides whether an AC is small enough to hand to a worker as-is.
// It prefers an LLM judgment and falls back to a lexical heuristic when the
// call or its parse fails.
type Checker struct {
	provider llm.Provider
	model    llm.RequestConfig
	criteria Criteria
}

// NewChecker creates a checker. A nil provider forces the heuristic path.
func NewChecker(provider llm.Provider, model llm.RequestConfig, criteria Criteria) *Checker {
	criteria.SetDefaults()
	return &Checker{provider: provider, model: model, criteria: criteria}
}

// Check returns an atomicity verdict for the given AC content.
func (c *Checker) Check(ctx context.Context, content string) (*Verdict, error) {
	if strings.TrimSpace(content) == "" {
		return nil, retry.New(retry.KindValidation, "ac content cannot be empty")
	}

	if c.provider != nil {
		verdict, err := c.checkLLM(ctx, content)
		if err == nil {
			return verdict, nil
		}
		slog.Warn("Atomicity LLM check failed, falling back to heuristic", "error", err)
	}

	return c.checkHeuristic(content), nil
}

type atomicityPayload struct {
	IsAtomic  *bool  `json:"is_atomic"`
	Reasoning string `json:"reasoning"`
}

func (c *Checker) checkLLM(ctx context.Context, content string) (*Verdict, error) {
	messages := []llm.Message{
		{Role: "system", Content: "You judge whether a task is atomic: " +
			"completable in a single focused work session without further breakdown. " +
			"Respond with a JSON object: {\"is_atomic\": bool, \"reasoning\": string}."},
		{Role: "user", Content: fmt.Sprintf(
			"Is this task atomic?\n\nTask: %s\n\nLimits: at most %d tool calls, about %.0f seconds.",
			content, c.criteria.MaxToolCount, c.criteria.MaxDurationSeconds)},
	}

	resp, err := c.provider.Complete(ctx, messages, c.model)
	if err != nil {
		return nil, err
	}

	var payload atomicityPayload
	if err := jsonx.ExtractObject(resp.Content, &payload); err != nil {
		return nil, retry.Wrap(retry.KindProvider, "unparseable atomicity response", err)
	}
	if payload.IsAtomic == nil {
		return nil, retry.New(retry.KindProvider, "atomicity response missing is_atomic")
	}

	// Heuristic factors still fill the metric fields; the LLM owns the call.
	estimate := c.checkHeuristic(content)
	return &Verdict{
		IsAtomic:          *payload.IsAtomic,
		ComplexityScore:   estimate.ComplexityScore,
		ToolCount:         estimate.ToolCount,
		EstimatedDuration: estimate.EstimatedDuration,
		Reasoning:         payload.Reasoning,
		Method:            MethodLLM,
	}, nil
}

// checkHeuristic estimates atomicity from lexical signals: distinct tool
// keywords, multi-step phrasing, and raw length. Atomic iff every estimate
// lies under its criterion.
func (c *Checker) checkHeuristic(content string) *Verdict {
	lower := strings.ToLower(content)

	toolCount := 0
	for _, kw := range toolKeywords {
		if containsWord(lower, kw) {
			toolCount++
		}
	}

	sequences := 0
	for _, ind := range sequenceIndicators {
		sequences += strings.Count(lower, ind)
	}

	complexity := float64(len(content))/2000 + 0.15*float64(sequences)
	if complexity > 1 {
		complexity = 1
	}
	duration := 30*float64(toolCount) + 20*float64(sequences) + float64(len(content))/50

	atomic := complexity <= c.criteria.MaxComplexity &&
		toolCount <= c.criteria.MaxToolCount &&
		duration <= c.criteria.MaxDurationSeconds

	return &Verdict{
		IsAtomic:          atomic,
		ComplexityScore:   complexity,
		ToolCount:         toolCount,
		EstimatedDuration: duration,
		Reasoning: fmt.Sprintf(
			"heuristic: %d tool keywords, %d sequence indicators, %d chars",
			toolCount, sequences, len(content)),
		Method: MethodHeuristic,
	}
}

// containsWord reports whether w occurs in s on word boundaries.
func containsWord(s, w string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if field == w {
			return true
		}
	}
	return false
}
