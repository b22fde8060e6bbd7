package ac

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/maestro/pkg/agentpool"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Scheduler drives one AC tree to a terminal state: it classifies pending
// leaves, decomposes the ones that are not atomic, and executes atomic
// leaves on the agent pool in dependency batches.
type Scheduler struct {
	tree       *Tree
	checker    *Checker
	decomposer *Decomposer
	pool       *agentpool.Pool
	events     event.Store

	// Insights carries discovery context forwarded into decomposition
	// prompts.
	Insights string

	// TaskTimeout bounds each atomic leaf execution; zero uses the pool's
	// default.
	TaskTimeout time.Duration
}

// NewScheduler wires a scheduler over the given tree and services.
func NewScheduler(tree *Tree, checker *Checker, decomposer *Decomposer, pool *agentpool.Pool, events event.Store) (*Scheduler, error) {
	if tree == nil || checker == nil || decomposer == nil || pool == nil {
		return nil, retry.New(retry.KindConfig, "tree, checker, decomposer and pool are required")
	}
	return &Scheduler{
		tree:       tree,
		checker:    checker,
		decomposer: decomposer,
		pool:       pool,
		events:     events,
	}, nil
}

// Run loops until the tree reaches a terminal state or no pass makes
// progress. It returns nil even when the root failed; callers read the
// outcome from the tree.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return retry.Wrap(retry.KindTimeout, "scheduling cancelled", err)
		}

		classified, err := s.classify(ctx)
		if err != nil {
			return err
		}
		executed, err := s.executeBatches(ctx)
		if err != nil {
			return err
		}

		if s.tree.Finished() {
			return nil
		}
		if classified == 0 && executed == 0 {
			// Nothing runnable and nothing to decompose. Remaining nodes
			// wait on siblings that will never complete.
			s.failStranded()
			return nil
		}
	}
}

// classify resolves every pending leaf to atomic or decomposed. A leaf that
// cannot be decomposed further (depth frontier) executes as-is.
func (s *Scheduler) classify(ctx context.Context) (int, error) {
	changed := 0
	for _, leaf := range s.tree.PendingLeaves() {
		verdict, err := s.checker.Check(ctx, leaf.Content)
		if err != nil {
			return changed, err
		}

		s.append(ctx, event.New(event.TypeACAtomicityChecked, event.AggregateAC, leaf.ID,
			map[string]any{
				"is_atomic":        verdict.IsAtomic,
				"method":           verdict.Method,
				"complexity_score": verdict.ComplexityScore,
				"tool_count":       verdict.ToolCount,
			}))

		if verdict.IsAtomic || !s.tree.CanDecompose(leaf.ID) {
			if err := s.tree.MarkAtomic(leaf.ID); err != nil {
				return changed, err
			}
			changed++
			continue
		}

		result, err := s.decomposer.Decompose(ctx, leaf.Content, leaf.ID, leaf.Depth, s.Insights)
		if err != nil {
			if retry.KindOf(err) == retry.KindDecomposition {
				slog.Warn("Decomposition rejected, failing node",
					"node_id", leaf.ID,
					"reason", retry.ReasonOf(err))
				if serr := s.tree.SetStatus(leaf.ID, StatusFailed); serr != nil {
					return changed, serr
				}
				s.tree.Propagate(leaf.ID)
				changed++
				continue
			}
			return changed, err
		}

		if err := s.tree.Graft(leaf.ID, result.Children()); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// executeBatches repeatedly runs every atomic leaf whose sibling
// dependencies are satisfied, one batch at a time, each batch in parallel.
func (s *Scheduler) executeBatches(ctx context.Context) (int, error) {
	executed := 0
	for {
		batch := s.nextBatch()
		if len(batch) == 0 {
			return executed, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, leaf := range batch {
			g.Go(func() error {
				return s.execute(gctx, leaf)
			})
		}
		if err := g.Wait(); err != nil {
			return executed, err
		}
		executed += len(batch)
	}
}

// nextBatch selects atomic leaves whose dependencies all completed. Leaves
// behind a failed dependency are failed immediately.
func (s *Scheduler) nextBatch() []Node {
	var batch []Node
	for _, leaf := range s.tree.AtomicLeaves() {
		switch s.depState(leaf) {
		case depReady:
			batch = append(batch, leaf)
		case depFailed:
			if err := s.tree.SetStatus(leaf.ID, StatusFailed); err == nil {
				s.append(context.Background(), event.New(event.TypeACFailed, event.AggregateAC, leaf.ID,
					map[string]any{"reason": "dependency failed"}))
				s.tree.Propagate(leaf.ID)
			}
		case depWaiting:
		}
	}
	return batch
}

type depState int

const (
	depReady depState = iota
	depWaiting
	depFailed
)

func (s *Scheduler) depState(leaf Node) depState {
	if len(leaf.DependsOn) == 0 || leaf.ParentID == "" {
		return depReady
	}
	parent, ok := s.tree.Node(leaf.ParentID)
	if !ok {
		return depReady
	}

	for _, idx := range leaf.DependsOn {
		if idx < 0 || idx >= len(parent.ChildrenIDs) {
			continue
		}
		sibling, ok := s.tree.Node(parent.ChildrenIDs[idx])
		if !ok {
			continue
		}
		switch sibling.Status {
		case StatusFailed:
			return depFailed
		case StatusCompleted:
		default:
			return depWaiting
		}
	}
	return depReady
}

// execute runs one atomic leaf on the pool and records the outcome. Worker
// failure fails the node, not the scheduler.
func (s *Scheduler) execute(ctx context.Context, leaf Node) error {
	if err := s.tree.SetStatus(leaf.ID, StatusExecuting); err != nil {
		return err
	}

	taskID, err := s.pool.SubmitTask("worker", leaf.Content, agentpool.PriorityNormal,
		map[string]any{"ac_id": leaf.ID, "ac_depth": leaf.Depth})
	if err != nil {
		return err
	}
	if err := s.tree.SetExecutionID(leaf.ID, taskID); err != nil {
		return err
	}

	s.append(ctx, event.New(event.TypeACExecutionStarted, event.AggregateAC, leaf.ID,
		map[string]any{"task_id": taskID, "depth": leaf.Depth}))

	result, err := s.pool.GetTaskResult(ctx, taskID, s.TaskTimeout)
	if err != nil {
		if serr := s.tree.SetStatus(leaf.ID, StatusFailed); serr != nil {
			return serr
		}
		s.append(ctx, event.New(event.TypeACFailed, event.AggregateAC, leaf.ID,
			map[string]any{"task_id": taskID, "error": err.Error()}))
		s.tree.Propagate(leaf.ID)
		return nil
	}

	if serr := s.tree.SetStatus(leaf.ID, StatusCompleted); serr != nil {
		return serr
	}
	data := map[string]any{"task_id": taskID}
	if result != nil {
		data["tier"] = result.Tier
		data["tokens_used"] = result.TokensUsed
		data["tool_calls"] = result.ToolCalls
	}
	s.append(ctx, event.New(event.TypeACCompleted, event.AggregateAC, leaf.ID, data))
	s.tree.Propagate(leaf.ID)
	return nil
}

// failStranded fails atomic leaves that can never run because a dependency
// chain stalled, then propagates.
func (s *Scheduler) failStranded() {
	for _, leaf := range s.tree.AtomicLeaves() {
		if err := s.tree.SetStatus(leaf.ID, StatusFailed); err == nil {
			s.tree.Propagate(leaf.ID)
		}
	}
}

func (s *Scheduler) append(ctx context.Context, e *event.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, e); err != nil {
		slog.Error("Failed to append scheduling event", "type", e.Type, "error", err)
	}
}
