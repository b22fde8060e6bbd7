package ac

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
	"github.com/kadirpekel/maestro/pkg/testutils"
)

func TestCheckHonorsLLMVerdict(t *testing.T) {
	provider := testutils.NewScriptedProvider(
		testutils.Respond(`{"is_atomic": false, "reasoning": "multiple subsystems involved"}`),
	)
	checker := NewChecker(provider, llm.RequestConfig{Model: "test"}, Criteria{})

	verdict, err := checker.Check(context.Background(), "add a login field")
	require.NoError(t, err)
	assert.False(t, verdict.IsAtomic, "LLM verdict wins even for trivially short content")
	assert.Equal(t, MethodLLM, verdict.Method)
	assert.Equal(t, "multiple subsystems involved", verdict.Reasoning)
}

func TestCheckParsesFencedJSON(t *testing.T) {
	provider := testutils.NewScriptedProvider(
		testutils.Respond("Sure, here is my judgment:\n```json\n{\"is_atomic\": true, \"reasoning\": \"single edit\"}\n```"),
	)
	checker := NewChecker(provider, llm.RequestConfig{}, Criteria{})

	verdict, err := checker.Check(context.Background(), "rename the config field")
	require.NoError(t, err)
	assert.True(t, verdict.IsAtomic)
	assert.Equal(t, MethodLLM, verdict.Method)
}

func TestCheckFallsBackToHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		provider *testutils.ScriptedProvider
	}{
		{"llm error", testutils.NewScriptedProvider(
			testutils.Fail(retry.New(retry.KindProvider, "overloaded")))},
		{"no json in reply", testutils.NewScriptedProvider(
			testutils.Respond("I think it is atomic."))},
		{"missing is_atomic", testutils.NewScriptedProvider(
			testutils.Respond(`{"reasoning": "looks simple"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(tt.provider, llm.RequestConfig{}, Criteria{})
			verdict, err := checker.Check(context.Background(), "fix the typo in the readme")
			require.NoError(t, err)
			assert.Equal(t, MethodHeuristic, verdict.Method)
			assert.True(t, verdict.IsAtomic)
		})
	}
}

func TestHeuristicWithoutProvider(t *testing.T) {
	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})

	verdict, err := checker.Check(context.Background(), "update the version constant")
	require.NoError(t, err)
	assert.Equal(t, MethodHeuristic, verdict.Method)
	assert.True(t, verdict.IsAtomic)
}

func TestHeuristicRejectsMultiStepContent(t *testing.T) {
	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})

	content := "Read the schema file and then write a migration, and then run the test " +
		"suite while you search the logs, and then install the new build and deploy it."
	verdict, err := checker.Check(context.Background(), content)
	require.NoError(t, err)
	assert.False(t, verdict.IsAtomic)
	assert.Greater(t, verdict.ToolCount, 3)
}

func TestHeuristicRejectsLongContent(t *testing.T) {
	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})

	verdict, err := checker.Check(context.Background(), strings.Repeat("describe the behavior ", 200))
	require.NoError(t, err)
	assert.False(t, verdict.IsAtomic)
	assert.InDelta(t, 1.0, verdict.ComplexityScore, 0.01, "length saturates the score")
}

func TestCheckRejectsEmptyContent(t *testing.T) {
	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})
	_, err := checker.Check(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestHeuristicCountsDistinctToolKeywords(t *testing.T) {
	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})

	// "read" twice still counts once.
	verdict, err := checker.Check(context.Background(), "read the file, read it again, then write a summary")
	require.NoError(t, err)
	assert.Equal(t, 2, verdict.ToolCount)
}
