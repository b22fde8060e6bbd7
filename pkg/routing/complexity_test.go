package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/retry"
)

func TestEstimateComplexityBounds(t *testing.T) {
	tests := []struct {
		name string
		ctx  TaskContext
		want float64
	}{
		{
			name: "zero context scores zero",
			ctx:  TaskContext{},
			want: 0,
		},
		{
			name: "all factors saturated scores one",
			ctx: TaskContext{
				TokenCount:       100000,
				ToolDependencies: []string{"a", "b", "c", "d", "e", "f"},
				ACDepth:          10,
			},
			want: 1,
		},
		{
			name: "factors at threshold score one",
			ctx: TaskContext{
				TokenCount:       MaxTokenThreshold,
				ToolDependencies: []string{"a", "b", "c", "d", "e"},
				ACDepth:          MaxDepthThreshold,
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EstimateComplexity(tt.ctx)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Score, 1e-9)
		})
	}
}

func TestEstimateComplexityWeights(t *testing.T) {
	// Half of each threshold: score = 0.5 * (0.30 + 0.30 + 0.40) = 0.5.
	got, err := EstimateComplexity(TaskContext{
		TokenCount:       MaxTokenThreshold / 2,
		ToolDependencies: []string{"a", "b"}, // 2/5 = 0.4 raw
		ACDepth:          MaxDepthThreshold / 2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, got.Breakdown["tokens"].Raw, 1e-9)
	assert.InDelta(t, 0.15, got.Breakdown["tokens"].Weighted, 1e-9)
	assert.InDelta(t, 0.4, got.Breakdown["tools"].Raw, 1e-9)
	assert.InDelta(t, 0.12, got.Breakdown["tools"].Weighted, 1e-9)

	sum := 0.0
	for _, f := range got.Breakdown {
		sum += f.Weighted
	}
	assert.InDelta(t, got.Score, sum, 1e-9)
}

func TestEstimateComplexitySingleFactorMaxima(t *testing.T) {
	// A single saturated factor contributes exactly its weight.
	got, err := EstimateComplexity(TaskContext{TokenCount: MaxTokenThreshold})
	require.NoError(t, err)
	assert.InDelta(t, 0.30, got.Score, 1e-9)

	got, err = EstimateComplexity(TaskContext{ACDepth: MaxDepthThreshold})
	require.NoError(t, err)
	assert.InDelta(t, 0.40, got.Score, 1e-9)

	got, err = EstimateComplexity(TaskContext{
		ToolDependencies: []string{"a", "b", "c", "d", "e"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.30, got.Score, 1e-9)
}

func TestEstimateComplexitySmallTask(t *testing.T) {
	// 100/4000*0.30 + 1/5*0.30 + 1/5*0.40 = 0.0075 + 0.06 + 0.08.
	got, err := EstimateComplexity(TaskContext{
		TokenCount:       100,
		ToolDependencies: []string{"git"},
		ACDepth:          1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.1475, got.Score, 1e-9)
	assert.Equal(t, TierFrugal, TierForScore(got.Score))
}

func TestEstimateComplexityMonotonic(t *testing.T) {
	prev := -1.0
	for tokens := 0; tokens <= 8000; tokens += 400 {
		got, err := EstimateComplexity(TaskContext{TokenCount: tokens})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Score, prev)
		prev = got.Score
	}
}

func TestEstimateComplexityValidation(t *testing.T) {
	_, err := EstimateComplexity(TaskContext{TokenCount: -1})
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))

	_, err = EstimateComplexity(TaskContext{ACDepth: -1})
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestTierForScoreBoundaries(t *testing.T) {
	assert.Equal(t, TierFrugal, TierForScore(0))
	assert.Equal(t, TierFrugal, TierForScore(0.39))
	assert.Equal(t, TierStandard, TierForScore(0.4))
	assert.Equal(t, TierStandard, TierForScore(0.69))
	assert.Equal(t, TierFrontier, TierForScore(0.7))
	assert.Equal(t, TierFrontier, TierForScore(1))
}

func TestTierLadder(t *testing.T) {
	next, ok := TierFrugal.Escalate()
	assert.True(t, ok)
	assert.Equal(t, TierStandard, next)

	next, ok = TierStandard.Escalate()
	assert.True(t, ok)
	assert.Equal(t, TierFrontier, next)

	_, ok = TierFrontier.Escalate()
	assert.False(t, ok)

	assert.Equal(t, TierStandard, TierFrontier.Downgrade())
	assert.Equal(t, TierFrugal, TierStandard.Downgrade())
	assert.Equal(t, TierFrugal, TierFrugal.Downgrade())
}

func TestCostMultipliers(t *testing.T) {
	assert.Equal(t, 1, TierFrugal.CostMultiplier())
	assert.Equal(t, 10, TierStandard.CostMultiplier())
	assert.Equal(t, 30, TierFrontier.CostMultiplier())
}
