package agentpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

func fastPoolConfig() *config.PoolConfig {
	return &config.PoolConfig{
		MinInstances:        1,
		MaxInstances:        4,
		IdleTimeout:         50 * time.Millisecond,
		HealthCheckInterval: 20 * time.Millisecond,
		ScaleFactor:         2,
		TaskTimeout:         5 * time.Second,
	}
}

func echoExecutor(delay time.Duration) Executor {
	return ExecutorFunc(func(ctx context.Context, task *Task) (*TaskResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, retry.Wrap(retry.KindTimeout, "task cancelled", ctx.Err())
		}
		return &TaskResult{TaskID: task.ID, Output: "echo: " + task.Prompt}, nil
	})
}

func TestSubmitAndAwaitResult(t *testing.T) {
	p, err := New(fastPoolConfig(), echoExecutor(0))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	id, err := p.SubmitTask("coder", "build the thing", PriorityNormal, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	result, err := p.GetTaskResult(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "echo: build the thing", result.Output)
	assert.Equal(t, id, result.TaskID)
}

func TestSubmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	p, err := New(fastPoolConfig(), ExecutorFunc(func(ctx context.Context, task *Task) (*TaskResult, error) {
		<-block
		return &TaskResult{TaskID: task.ID}, nil
	}))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer func() {
		close(block)
		p.Stop(context.Background())
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_, err := p.SubmitTask("coder", "task", PriorityNormal, nil)
			require.NoError(t, err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SubmitTask blocked the caller")
	}
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	gate := make(chan struct{})

	cfg := fastPoolConfig()
	cfg.MinInstances = 1
	cfg.MaxInstances = 1
	cfg.AutoScale = config.BoolPtr(false)

	p, err := New(cfg, ExecutorFunc(func(ctx context.Context, task *Task) (*TaskResult, error) {
		<-gate
		mu.Lock()
		order = append(order, task.Prompt)
		mu.Unlock()
		return &TaskResult{TaskID: task.ID}, nil
	}))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	// First task occupies the single worker; the rest queue up.
	first, err := p.SubmitTask("coder", "first", PriorityNormal, nil)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	low, err := p.SubmitTask("coder", "low", PriorityLow, nil)
	require.NoError(t, err)
	high, err := p.SubmitTask("coder", "high", PriorityHigh, nil)
	require.NoError(t, err)
	normal, err := p.SubmitTask("coder", "normal", PriorityNormal, nil)
	require.NoError(t, err)

	close(gate)
	for _, id := range []string{first, low, high, normal} {
		_, err := p.GetTaskResult(context.Background(), id, time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "high", "normal", "low"}, order)
}

func TestAutoScaling(t *testing.T) {
	cfg := fastPoolConfig()
	cfg.MinInstances = 1
	cfg.MaxInstances = 3

	var concurrent, peak int32
	p, err := New(cfg, ExecutorFunc(func(ctx context.Context, task *Task) (*TaskResult, error) {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return &TaskResult{TaskID: task.ID}, nil
	}))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	var ids []string
	for i := 0; i < 12; i++ {
		id, err := p.SubmitTask("coder", "work", PriorityNormal, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		_, err := p.GetTaskResult(context.Background(), id, 5*time.Second)
		require.NoError(t, err)
	}

	assert.Greater(t, atomic.LoadInt32(&peak), int32(1), "backlog spawned extra workers")
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3), "never exceeds max_instances")
}

func TestIdleRetirement(t *testing.T) {
	cfg := fastPoolConfig()
	cfg.MinInstances = 1
	cfg.MaxInstances = 4
	cfg.IdleTimeout = 30 * time.Millisecond

	p, err := New(cfg, echoExecutor(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := p.SubmitTask("coder", "burst", PriorityNormal, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		_, err := p.GetTaskResult(context.Background(), id, time.Second)
		require.NoError(t, err)
	}

	// After the burst, idle workers above the floor retire.
	assert.Eventually(t, func() bool {
		return p.StatsSnapshot().ActiveWorkers == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTaskTimeout(t *testing.T) {
	cfg := fastPoolConfig()
	cfg.TaskTimeout = 200 * time.Millisecond
	p, err := New(cfg, echoExecutor(time.Hour))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	id, err := p.SubmitTask("coder", "slow", PriorityNormal, nil)
	require.NoError(t, err)

	_, err = p.GetTaskResult(context.Background(), id, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, retry.KindTimeout, retry.KindOf(err))
}

func TestGetUnknownTask(t *testing.T) {
	p, err := New(fastPoolConfig(), echoExecutor(0))
	require.NoError(t, err)

	_, err = p.GetTaskResult(context.Background(), "task-missing", time.Second)
	assert.Equal(t, retry.KindNotFound, retry.KindOf(err))
}

func TestSubmitAfterStop(t *testing.T) {
	p, err := New(fastPoolConfig(), echoExecutor(0))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop(context.Background()))

	_, err = p.SubmitTask("coder", "late", PriorityNormal, nil)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestEmptyPromptRejected(t *testing.T) {
	p, err := New(fastPoolConfig(), echoExecutor(0))
	require.NoError(t, err)
	_, err = p.SubmitTask("coder", "", PriorityNormal, nil)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}
