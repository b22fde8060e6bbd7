package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/event"
)

func newTestController(t *testing.T, cfg *config.RoutingConfig) (*Controller, event.Store) {
	t.Helper()
	store := event.NewMemoryStore()
	c, err := NewController(cfg, store)
	require.NoError(t, err)
	return c, store
}

func simpleTask() TaskContext {
	return TaskContext{TaskType: "implement", TokenCount: 100, Content: "write a parser"}
}

func TestRouteByComplexityWithoutHistory(t *testing.T) {
	c, _ := newTestController(t, nil)

	d, err := c.Route(context.Background(), simpleTask())
	require.NoError(t, err)
	assert.Equal(t, TierFrugal, d.Tier)
	assert.Equal(t, "complexity", d.Source)
	require.NotNil(t, d.Complexity)
}

func TestEscalationChain(t *testing.T) {
	c, store := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()

	// Two failures at Frugal force Standard.
	c.RecordResult(ctx, task, TierFrugal, false, time.Second)
	c.RecordResult(ctx, task, TierFrugal, false, time.Second)

	d, err := c.Route(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, TierStandard, d.Tier)
	assert.Equal(t, "escalation", d.Source)

	// Two failures at Standard force Frontier.
	c.RecordResult(ctx, task, TierStandard, false, time.Second)
	c.RecordResult(ctx, task, TierStandard, false, time.Second)

	d, err = c.Route(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, TierFrontier, d.Tier)

	// Two failures at Frontier: ladder exhausted, stagnation signaled.
	c.RecordResult(ctx, task, TierFrontier, false, time.Second)
	c.RecordResult(ctx, task, TierFrontier, false, time.Second)

	d, err = c.Route(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, TierFrontier, d.Tier)
	assert.True(t, d.Stagnating)

	stagnations, err := store.Query(ctx, event.Filter{EventType: event.TypeRoutingStagnation})
	require.NoError(t, err)
	assert.NotEmpty(t, stagnations)
}

func TestSingleFailureDoesNotEscalate(t *testing.T) {
	c, _ := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()

	c.RecordResult(ctx, task, TierFrugal, true, time.Second)
	c.RecordResult(ctx, task, TierFrugal, false, time.Second)

	d, err := c.Route(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, TierFrugal, d.Tier, "single failure returns to last successful tier")
	assert.Equal(t, "history", d.Source)
}

func TestDowngradeAfterSustainedSuccess(t *testing.T) {
	c, store := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()

	for i := 0; i < 5; i++ {
		c.RecordResult(ctx, task, TierStandard, true, time.Second)
	}

	d, err := c.Route(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, TierFrugal, d.Tier, "five consecutive successes learn the lower tier")

	downgrades, err := store.Query(ctx, event.Filter{EventType: event.TypeRoutingDowngraded})
	require.NoError(t, err)
	assert.Len(t, downgrades, 1)
}

func TestFailureResetsSuccessStreak(t *testing.T) {
	c, store := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()

	for i := 0; i < 4; i++ {
		c.RecordResult(ctx, task, TierStandard, true, time.Second)
	}
	c.RecordResult(ctx, task, TierStandard, false, time.Second)
	for i := 0; i < 4; i++ {
		c.RecordResult(ctx, task, TierStandard, true, time.Second)
	}

	downgrades, err := store.Query(ctx, event.Filter{EventType: event.TypeRoutingDowngraded})
	require.NoError(t, err)
	assert.Empty(t, downgrades, "streak restarts after a failure")
}

func TestFrugalNeverDowngrades(t *testing.T) {
	c, store := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()

	for i := 0; i < 10; i++ {
		c.RecordResult(ctx, task, TierFrugal, true, time.Second)
	}

	downgrades, err := store.Query(ctx, event.Filter{EventType: event.TypeRoutingDowngraded})
	require.NoError(t, err)
	assert.Empty(t, downgrades)
}

func TestSimilarityInheritance(t *testing.T) {
	c, _ := newTestController(t, nil)
	ctx := context.Background()

	learned := TaskContext{
		TaskType:   "implement",
		TokenCount: 100,
		Content:    "implement the user login endpoint with validation",
	}
	for i := 0; i < 5; i++ {
		c.RecordResult(ctx, learned, TierStandard, true, time.Second)
	}

	// Different fingerprint (different task type) but near-identical content.
	similar := TaskContext{
		TaskType:   "review",
		TokenCount: 100,
		Content:    "implement the user login endpoint with validation checks",
	}
	d, err := c.Route(ctx, similar)
	require.NoError(t, err)
	assert.Equal(t, "inherited", d.Source)
	assert.Equal(t, TierFrugal, d.Tier, "inherits the learned downgraded tier")
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Parse the config file", "parse the config file!"), 1e-9)
	assert.Less(t, Similarity("parse config", "deploy cluster"), 0.5)
	assert.Zero(t, Similarity("", "anything"))
}

func TestPerFingerprintHistoryCap(t *testing.T) {
	cfg := &config.RoutingConfig{MaxHistoryPerHash: 5, MaxTotalHistory: 100}
	c, _ := newTestController(t, cfg)
	ctx := context.Background()
	task := simpleTask()

	for i := 0; i < 20; i++ {
		c.RecordResult(ctx, task, TierFrugal, true, time.Second)
	}

	stats := c.StatsSnapshot()
	assert.Equal(t, 1, stats.Fingerprints)
	assert.Equal(t, 5, stats.TotalRecords)
}

func TestGlobalHistoryEviction(t *testing.T) {
	cfg := &config.RoutingConfig{MaxHistoryPerHash: 10, MaxTotalHistory: 10}
	c, _ := newTestController(t, cfg)
	ctx := context.Background()

	types := []string{"a", "b", "c", "d"}
	for _, tt := range types {
		for i := 0; i < 5; i++ {
			c.RecordResult(ctx, TaskContext{TaskType: tt}, TierFrugal, true, time.Second)
		}
	}

	stats := c.StatsSnapshot()
	assert.LessOrEqual(t, stats.TotalRecords, 10)
	assert.Less(t, stats.Fingerprints, len(types), "oldest fingerprints evicted whole")
}

func TestCostOptimizationBias(t *testing.T) {
	cfg := &config.RoutingConfig{CostOptimization: config.BoolPtr(true)}
	c, _ := newTestController(t, cfg)
	ctx := context.Background()

	// Mid-complexity task would be Standard; bias pulls it to Frugal.
	mid := TaskContext{
		TaskType:         "implement",
		TokenCount:       MaxTokenThreshold,
		ToolDependencies: []string{"grep", "edit"},
		ACDepth:          1,
	}
	d, err := c.Route(ctx, mid)
	require.NoError(t, err)
	assert.Equal(t, TierFrugal, d.Tier)

	// Frontier-complexity tasks are never biased down.
	heavy := TaskContext{
		TaskType:         "architect",
		TokenCount:       10000,
		ToolDependencies: []string{"a", "b", "c", "d", "e"},
		ACDepth:          5,
	}
	d, err = c.Route(ctx, heavy)
	require.NoError(t, err)
	assert.Equal(t, TierFrontier, d.Tier)
}

func TestFailureTracker(t *testing.T) {
	c, _ := newTestController(t, nil)
	ctx := context.Background()
	task := simpleTask()
	fp := Fingerprint(task)

	c.RecordResult(ctx, task, TierStandard, false, time.Second)
	tracker, ok := c.FailureTrackerFor(fp)
	require.True(t, ok)
	assert.Equal(t, 1, tracker.ConsecutiveFailures)
	assert.Equal(t, TierStandard, tracker.CurrentTier)

	c.RecordResult(ctx, task, TierStandard, true, time.Second)
	_, ok = c.FailureTrackerFor(fp)
	assert.False(t, ok, "success clears the tracker")
}

func TestFingerprintDeterminism(t *testing.T) {
	a := Fingerprint(TaskContext{TaskType: "implement", TokenCount: 600, ACDepth: 1})
	b := Fingerprint(TaskContext{TaskType: "implement", TokenCount: 1900, ACDepth: 2})
	assert.Equal(t, a, b, "same buckets yield the same fingerprint")

	c := Fingerprint(TaskContext{TaskType: "implement", TokenCount: 600, ACDepth: 5})
	assert.NotEqual(t, a, c)
}
