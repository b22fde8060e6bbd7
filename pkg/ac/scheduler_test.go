package ac

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/agentpool"
	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
	"github.com/kadirpekel/maestro/pkg/testutils"
)

// orderedExecutor records execution order and fails prompts containing
// "fail".
type orderedExecutor struct {
	mu    sync.Mutex
	order []string
}

func (e *orderedExecutor) Execute(ctx context.Context, task *agentpool.Task) (*agentpool.TaskResult, error) {
	e.mu.Lock()
	e.order = append(e.order, task.Prompt)
	e.mu.Unlock()

	if strings.Contains(task.Prompt, "fail") {
		return nil, retry.New(retry.KindTool, "scripted failure")
	}
	return &agentpool.TaskResult{TaskID: task.ID, Output: "done: " + task.Prompt}, nil
}

func (e *orderedExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func startPool(t *testing.T, exec agentpool.Executor) *agentpool.Pool {
	t.Helper()
	pool, err := agentpool.New(&config.PoolConfig{
		MinInstances:        2,
		MaxInstances:        4,
		IdleTimeout:         time.Second,
		HealthCheckInterval: 100 * time.Millisecond,
		TaskTimeout:         5 * time.Second,
	}, exec)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	return pool
}

func atomicVerdicts(first string, rest string) *testutils.ScriptedProvider {
	return testutils.NewScriptedProvider(
		testutils.Respond(first),
		testutils.Respond(rest),
	)
}

func TestSchedulerDecomposesAndRespectsDependencies(t *testing.T) {
	events := event.NewMemoryStore()
	exec := &orderedExecutor{}
	pool := startPool(t, exec)

	tree, err := NewTree("deliver the search feature", 5)
	require.NoError(t, err)

	checkerProvider := atomicVerdicts(
		`{"is_atomic": false, "reasoning": "too broad"}`,
		`{"is_atomic": true, "reasoning": "single step"}`,
	)
	decomposerProvider := testutils.NewScriptedProvider(testutils.Respond(`{
		"children": [
			{"content": "index the corpus", "depends_on": []},
			{"content": "serve queries", "depends_on": [0]},
			{"content": "tune ranking", "depends_on": [0, 1]}
		],
		"reasoning": "pipeline order"
	}`))

	checker := NewChecker(checkerProvider, llm.RequestConfig{}, Criteria{})
	decomposer, err := NewDecomposer(decomposerProvider, llm.RequestConfig{}, events, 0)
	require.NoError(t, err)

	s, err := NewScheduler(tree, checker, decomposer, pool, events)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, tree.Succeeded())

	order := exec.executed()
	require.Equal(t, []string{"index the corpus", "serve queries", "tune ranking"}, order)

	counts := tree.Counts()
	assert.Equal(t, 4, counts[StatusCompleted], "three leaves plus the propagated root")
	assert.Equal(t, StatusCompleted, tree.Root().Status)
}

func TestSchedulerExecutesAtomicRootDirectly(t *testing.T) {
	events := event.NewMemoryStore()
	exec := &orderedExecutor{}
	pool := startPool(t, exec)

	tree, err := NewTree("bump the patch version", 5)
	require.NoError(t, err)

	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})
	decomposer, err := NewDecomposer(testutils.NewScriptedProvider(), llm.RequestConfig{}, events, 0)
	require.NoError(t, err)

	s, err := NewScheduler(tree, checker, decomposer, pool, events)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, tree.Succeeded())
	assert.Equal(t, []string{"bump the patch version"}, exec.executed())

	recorded, err := events.Replay(context.Background(), event.AggregateAC, tree.RootID())
	require.NoError(t, err)
	var types []string
	for _, e := range recorded {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		event.TypeACAtomicityChecked,
		event.TypeACExecutionStarted,
		event.TypeACCompleted,
	}, types)
}

func TestSchedulerPropagatesWorkerFailure(t *testing.T) {
	events := event.NewMemoryStore()
	exec := &orderedExecutor{}
	pool := startPool(t, exec)

	tree, err := NewTree("roll out the migration", 5)
	require.NoError(t, err)

	checkerProvider := atomicVerdicts(
		`{"is_atomic": false, "reasoning": "two phases"}`,
		`{"is_atomic": true, "reasoning": "single step"}`,
	)
	decomposerProvider := testutils.NewScriptedProvider(testutils.Respond(`{
		"children": [
			{"content": "fail the dry run", "depends_on": []},
			{"content": "apply for real", "depends_on": [0]}
		],
		"reasoning": "dry run first"
	}`))

	checker := NewChecker(checkerProvider, llm.RequestConfig{}, Criteria{})
	decomposer, err := NewDecomposer(decomposerProvider, llm.RequestConfig{}, events, 0)
	require.NoError(t, err)

	s, err := NewScheduler(tree, checker, decomposer, pool, events)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, tree.Finished())
	assert.False(t, tree.Succeeded())

	// The dependent sibling never ran.
	assert.Equal(t, []string{"fail the dry run"}, exec.executed())

	counts := tree.Counts()
	assert.Equal(t, 3, counts[StatusFailed], "leaf, stranded sibling, root")
}

func TestSchedulerFailsNodeOnRejectedDecomposition(t *testing.T) {
	events := event.NewMemoryStore()
	exec := &orderedExecutor{}
	pool := startPool(t, exec)

	tree, err := NewTree("refactor the module", 5)
	require.NoError(t, err)

	checkerProvider := testutils.NewScriptedProvider(
		testutils.Respond(`{"is_atomic": false, "reasoning": "broad"}`))
	// The decomposer returns a single child, violating the minimum.
	decomposerProvider := testutils.NewScriptedProvider(testutils.Respond(`{
		"children": [{"content": "only step"}],
		"reasoning": "r"
	}`))

	checker := NewChecker(checkerProvider, llm.RequestConfig{}, Criteria{})
	decomposer, err := NewDecomposer(decomposerProvider, llm.RequestConfig{}, events, 0)
	require.NoError(t, err)

	s, err := NewScheduler(tree, checker, decomposer, pool, events)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, tree.Finished())
	assert.False(t, tree.Succeeded())
	assert.Empty(t, exec.executed())
}

func TestSchedulerCancellation(t *testing.T) {
	exec := &orderedExecutor{}
	pool := startPool(t, exec)

	tree, err := NewTree("anything at all", 5)
	require.NoError(t, err)

	checker := NewChecker(nil, llm.RequestConfig{}, Criteria{})
	decomposer, err := NewDecomposer(testutils.NewScriptedProvider(), llm.RequestConfig{}, nil, 0)
	require.NoError(t, err)

	s, err := NewScheduler(tree, checker, decomposer, pool, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, retry.KindTimeout, retry.KindOf(err))
}
