// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agentpool runs worker agents over a priority task queue with
// auto-scaling, idle retirement and health checks.
package agentpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Task is one unit of work for a worker agent.
type Task struct {
	ID        string
	AgentType string
	Prompt    string
	Priority  Priority
	Metadata  map[string]any

	seq        int64
	index      int
	enqueuedAt time.Time

	done   chan struct{}
	result *TaskResult
	err    error
}

// TaskResult is what a worker produced.
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Output     string        `json:"output"`
	Tier       string        `json:"tier,omitempty"`
	TokensUsed int           `json:"tokens_used"`
	ToolCalls  int           `json:"tool_calls"`
	Duration   time.Duration `json:"duration"`
}

// Executor performs the actual work of a task. The pool owns scheduling;
// the executor owns semantics.
type Executor interface {
	Execute(ctx context.Context, task *Task) (*TaskResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (*TaskResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	return f(ctx, task)
}

// Pool dispatches queued tasks to worker goroutines.
type Pool struct {
	cfg      *config.PoolConfig
	executor Executor

	mu      sync.Mutex
	queue   *queue
	tasks   map[string]*Task
	active  int
	busy    int
	beats   map[int]time.Time
	started bool
	stopped bool

	notify   chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
	workerID int
}

// New creates a pool with the given executor.
func New(cfg *config.PoolConfig, executor Executor) (*Pool, error) {
	if executor == nil {
		return nil, retry.New(retry.KindConfig, "executor is required")
	}
	if cfg == nil {
		cfg = &config.PoolConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, retry.Wrap(retry.KindConfig, "invalid pool config", err)
	}

	return &Pool{
		cfg:      cfg,
		executor: executor,
		queue:    newQueue(),
		tasks:    make(map[string]*Task),
		beats:    make(map[int]time.Time),
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start spawns the minimum workers and the health check loop.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return retry.New(retry.KindValidation, "pool is already started")
	}
	p.started = true

	for i := 0; i < p.cfg.MinInstances; i++ {
		p.spawnLocked()
	}

	p.wg.Add(1)
	go p.healthLoop()

	slog.Info("Agent pool started",
		"min_instances", p.cfg.MinInstances,
		"max_instances", p.cfg.MaxInstances)
	return nil
}

// Stop drains in-flight work and terminates the workers. The context bounds
// how long draining may take.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Agent pool stopped")
		return nil
	case <-ctx.Done():
		return retry.Wrap(retry.KindTimeout, "pool drain timed out", ctx.Err())
	}
}

// SubmitTask enqueues a task and returns its id without blocking.
func (p *Pool) SubmitTask(agentType, prompt string, priority Priority, metadata map[string]any) (string, error) {
	if prompt == "" {
		return "", retry.New(retry.KindValidation, "task prompt cannot be empty")
	}

	task := &Task{
		ID:         "task-" + uuid.NewString(),
		AgentType:  agentType,
		Prompt:     prompt,
		Priority:   priority,
		Metadata:   metadata,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", retry.New(retry.KindValidation, "pool is stopped")
	}
	p.queue.push(task)
	p.tasks[task.ID] = task
	p.maybeScaleLocked()
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return task.ID, nil
}

// GetTaskResult waits for the task's completion. A non-positive timeout
// means the pool's default task timeout.
func (p *Pool) GetTaskResult(ctx context.Context, taskID string, timeout time.Duration) (*TaskResult, error) {
	p.mu.Lock()
	task, ok := p.tasks[taskID]
	p.mu.Unlock()
	if !ok {
		return nil, retry.Newf(retry.KindNotFound, "task not found: %s", taskID)
	}

	if timeout <= 0 {
		timeout = p.cfg.TaskTimeout
	}

	select {
	case <-task.done:
		return task.result, task.err
	case <-ctx.Done():
		return nil, retry.Wrap(retry.KindTimeout, "wait for task cancelled", ctx.Err())
	case <-time.After(timeout):
		return nil, retry.Newf(retry.KindTimeout, "task %s did not complete within %s", taskID, timeout)
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	ActiveWorkers int `json:"active_workers"`
	BusyWorkers   int `json:"busy_workers"`
	Pending       int `json:"pending"`
}

// StatsSnapshot reports current pool occupancy.
func (p *Pool) StatsSnapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		ActiveWorkers: p.active,
		BusyWorkers:   p.busy,
		Pending:       p.queue.len(),
	}
}

// maybeScaleLocked spawns one worker when backlog outruns capacity.
func (p *Pool) maybeScaleLocked() {
	if !p.started || !config.BoolValue(p.cfg.AutoScale, true) {
		return
	}
	if p.active >= p.cfg.MaxInstances {
		return
	}
	if p.active == 0 || p.queue.len() >= p.cfg.ScaleFactor*p.active {
		p.spawnLocked()
	}
}

func (p *Pool) spawnLocked() {
	p.workerID++
	id := p.workerID
	p.active++
	p.beats[id] = time.Now()

	p.wg.Add(1)
	go p.worker(id)

	slog.Debug("Spawned worker", "worker_id", id, "active", p.active)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.active--
		delete(p.beats, id)
		p.mu.Unlock()
	}()

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		p.mu.Lock()
		task := p.queue.pop()
		if task != nil {
			p.busy++
		}
		p.beats[id] = time.Now()
		p.mu.Unlock()

		if task != nil {
			p.run(task)
			p.mu.Lock()
			p.busy--
			p.mu.Unlock()

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.cfg.IdleTimeout)
			continue
		}

		select {
		case <-p.stopCh:
			return
		case <-p.notify:
		case <-time.After(p.cfg.HealthCheckInterval):
			// Heartbeat wakeup; the loop top refreshes the beat.
		case <-idle.C:
			if p.retire(id) {
				return
			}
			idle.Reset(p.cfg.IdleTimeout)
		}
	}
}

// retire reports whether an idle worker above the floor should exit.
func (p *Pool) retire(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > p.cfg.MinInstances && p.queue.len() == 0 {
		slog.Debug("Retiring idle worker", "worker_id", id)
		return true
	}
	return false
}

func (p *Pool) run(task *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	result, err := p.executor.Execute(ctx, task)
	duration := time.Since(start)

	tier := ""
	if result != nil {
		tier = result.Tier
		result.Duration = duration
	}
	observability.GetGlobalMetrics().RecordWorkerTask(ctx, tier, duration, err)

	if err != nil {
		slog.Warn("Task failed",
			"task_id", task.ID,
			"agent_type", task.AgentType,
			"error", err)
	}

	task.result = result
	task.err = err
	close(task.done)
}

func (p *Pool) healthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

// checkHealth replaces missing workers below the floor and logs workers
// that have not moved for three intervals.
func (p *Pool) checkHealth() {
	stale := 3 * p.cfg.HealthCheckInterval

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, beat := range p.beats {
		if time.Since(beat) > stale {
			slog.Warn("Worker heartbeat is stale",
				"worker_id", id,
				"last_beat", beat)
		}
	}
	for p.active < p.cfg.MinInstances {
		p.spawnLocked()
	}
}
