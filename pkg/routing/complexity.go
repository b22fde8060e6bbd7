package routing

import (
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Complexity estimation constants. Raw per-factor scores saturate at 1.0
// when the value reaches its threshold.
const (
	MaxTokenThreshold = 4000
	MaxToolThreshold  = 5
	MaxDepthThreshold = 5

	TokenWeight = 0.30
	ToolWeight  = 0.30
	DepthWeight = 0.40
)

// Tier thresholds over the composite score.
const (
	FrugalUpperBound   = 0.4
	StandardUpperBound = 0.7
)

// TaskContext is the routing-relevant shape of a task.
type TaskContext struct {
	TaskType         string
	TokenCount       int
	ToolDependencies []string
	ACDepth          int
	Content          string
}

// FactorScore is one factor's raw and weighted contribution.
type FactorScore struct {
	Raw      float64 `json:"raw"`
	Weighted float64 `json:"weighted"`
}

// Complexity is the composite score plus its breakdown.
type Complexity struct {
	Score     float64                `json:"score"`
	Breakdown map[string]FactorScore `json:"breakdown"`
}

// EstimateComplexity is a pure function from task shape to a score in [0,1].
// Negative inputs are validation errors.
func EstimateComplexity(ctx TaskContext) (*Complexity, error) {
	if ctx.TokenCount < 0 {
		return nil, retry.Newf(retry.KindValidation, "token_count cannot be negative: %d", ctx.TokenCount)
	}
	if ctx.ACDepth < 0 {
		return nil, retry.Newf(retry.KindValidation, "ac_depth cannot be negative: %d", ctx.ACDepth)
	}

	tok := saturate(float64(ctx.TokenCount) / MaxTokenThreshold)
	tool := saturate(float64(len(ctx.ToolDependencies)) / MaxToolThreshold)
	depth := saturate(float64(ctx.ACDepth) / MaxDepthThreshold)

	score := TokenWeight*tok + ToolWeight*tool + DepthWeight*depth
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &Complexity{
		Score: score,
		Breakdown: map[string]FactorScore{
			"tokens": {Raw: tok, Weighted: TokenWeight * tok},
			"tools":  {Raw: tool, Weighted: ToolWeight * tool},
			"depth":  {Raw: depth, Weighted: DepthWeight * depth},
		},
	}, nil
}

func saturate(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// TierForScore maps a composite score onto the tier ladder.
func TierForScore(score float64) Tier {
	switch {
	case score < FrugalUpperBound:
		return TierFrugal
	case score < StandardUpperBound:
		return TierStandard
	default:
		return TierFrontier
	}
}
