package ac

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// DefaultMaxDepth bounds how deep decomposition may nest.
const DefaultMaxDepth = 5

// Graft input: one child to attach under a parent.
type ChildSpec struct {
	ID        string
	Content   string
	DependsOn []int
}

// Tree owns a set of AC nodes rooted at a single criterion. All access goes
// through the tree; callers receive value copies, never node pointers.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	rootID   string
	maxDepth int
}

// NewTree creates a tree with a pending root node at depth 0. A non-positive
// maxDepth selects the default.
func NewTree(rootContent string, maxDepth int) (*Tree, error) {
	if rootContent == "" {
		return nil, retry.New(retry.KindValidation, "root content cannot be empty")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	root := &Node{
		ID:      "ac-" + uuid.NewString(),
		Content: rootContent,
		Depth:   0,
		Status:  StatusPending,
	}
	return &Tree{
		nodes:    map[string]*Node{root.ID: root},
		rootID:   root.ID,
		maxDepth: maxDepth,
	}, nil
}

// RootID returns the root node's id.
func (t *Tree) RootID() string {
	return t.rootID
}

// MaxDepth returns the depth bound.
func (t *Tree) MaxDepth() int {
	return t.maxDepth
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Root returns a copy of the root node.
func (t *Tree) Root() Node {
	n, _ := t.Node(t.rootID)
	return n
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// PendingLeaves returns copies of all pending nodes without children, in no
// particular order.
func (t *Tree) PendingLeaves() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Node
	for _, n := range t.nodes {
		if n.Status == StatusPending && n.Leaf() {
			out = append(out, n.clone())
		}
	}
	return out
}

// AtomicLeaves returns copies of all atomic nodes awaiting execution.
func (t *Tree) AtomicLeaves() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Node
	for _, n := range t.nodes {
		if n.Status == StatusAtomic && n.Leaf() {
			out = append(out, n.clone())
		}
	}
	return out
}

// CanDecompose reports whether the node may still be broken down: pending,
// not atomic, and with room left under the depth bound for its children.
func (t *Tree) CanDecompose(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	return n.Status == StatusPending && !n.IsAtomic && n.Depth+1 <= t.maxDepth
}

// MarkAtomic flags a pending node as directly executable.
func (t *Tree) MarkAtomic(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return retry.Newf(retry.KindNotFound, "node not found: %s", id)
	}
	if !n.Leaf() {
		return retry.Newf(retry.KindValidation, "node %s has children and cannot be atomic", id)
	}
	if !n.Status.CanTransition(StatusAtomic) {
		return retry.Newf(retry.KindValidation,
			"invalid transition %s -> %s for node %s", n.Status, StatusAtomic, id)
	}
	n.Status = StatusAtomic
	n.IsAtomic = true
	return nil
}

// Graft attaches decomposition children under a pending parent and marks it
// decomposed. Every insertion is validated: parent must exist and be
// pending, depth must stay within bounds, no child may be empty or a
// restatement of the parent.
func (t *Tree) Graft(parentID string, children []ChildSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return retry.Newf(retry.KindNotFound, "parent not found: %s", parentID)
	}
	if parent.Status != StatusPending {
		return retry.Newf(retry.KindValidation,
			"parent %s is %s, only pending nodes decompose", parentID, parent.Status)
	}
	if parent.IsAtomic {
		return retry.Newf(retry.KindValidation, "parent %s is atomic", parentID)
	}
	if len(children) == 0 {
		return retry.New(retry.KindValidation, "no children to graft")
	}

	childDepth := parent.Depth + 1
	if childDepth > t.maxDepth {
		return retry.Newf(retry.KindDecomposition, "depth %d exceeds max depth %d", childDepth, t.maxDepth).
			WithReason(retry.ReasonMaxDepth)
	}

	parentNorm := normalizeContent(parent.Content)
	for _, c := range children {
		if c.Content == "" {
			return retry.New(retry.KindDecomposition, "empty child content").
				WithReason(retry.ReasonEmptyChild)
		}
		if normalizeContent(c.Content) == parentNorm {
			return retry.Newf(retry.KindDecomposition,
				"child restates parent %s", parentID).
				WithReason(retry.ReasonCyclic)
		}
		if c.ID == "" {
			return retry.New(retry.KindValidation, "child id cannot be empty")
		}
		if _, exists := t.nodes[c.ID]; exists {
			return retry.Newf(retry.KindValidation, "duplicate node id: %s", c.ID)
		}
	}

	for _, c := range children {
		t.nodes[c.ID] = &Node{
			ID:        c.ID,
			Content:   c.Content,
			Depth:     childDepth,
			ParentID:  parentID,
			Status:    StatusPending,
			DependsOn: append([]int(nil), c.DependsOn...),
		}
		parent.ChildrenIDs = append(parent.ChildrenIDs, c.ID)
	}
	parent.Status = StatusDecomposed
	parent.IsAtomic = false
	return nil
}

// SetStatus transitions a node, enforcing monotonicity. Re-asserting the
// current status is a no-op.
func (t *Tree) SetStatus(id string, target Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setStatusLocked(id, target)
}

func (t *Tree) setStatusLocked(id string, target Status) error {
	n, ok := t.nodes[id]
	if !ok {
		return retry.Newf(retry.KindNotFound, "node not found: %s", id)
	}
	if n.Status == target {
		return nil
	}
	if !n.Status.CanTransition(target) {
		return retry.Newf(retry.KindValidation,
			"invalid transition %s -> %s for node %s", n.Status, target, id)
	}
	n.Status = target
	return nil
}

// SetExecutionID records the pool task id driving a node.
func (t *Tree) SetExecutionID(id, executionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return retry.Newf(retry.KindNotFound, "node not found: %s", id)
	}
	n.ExecutionID = executionID
	return nil
}

// Propagate walks from the given node's parent to the root, completing
// parents whose children all completed and failing parents with any failed
// child. Returns the ids whose status changed.
func (t *Tree) Propagate(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []string
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}

	for n.ParentID != "" {
		parent := t.nodes[n.ParentID]
		if parent == nil || parent.Status.Terminal() {
			break
		}

		anyFailed := false
		allCompleted := true
		for _, cid := range parent.ChildrenIDs {
			child := t.nodes[cid]
			if child.Status == StatusFailed {
				anyFailed = true
			}
			if child.Status != StatusCompleted {
				allCompleted = false
			}
		}

		switch {
		case anyFailed:
			if err := t.setStatusLocked(parent.ID, StatusFailed); err == nil {
				changed = append(changed, parent.ID)
			}
		case allCompleted:
			if err := t.setStatusLocked(parent.ID, StatusCompleted); err == nil {
				changed = append(changed, parent.ID)
			}
		default:
			return changed
		}
		n = parent
	}
	return changed
}

// Finished reports whether the root reached a terminal status.
func (t *Tree) Finished() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.rootID].Status.Terminal()
}

// Succeeded reports whether the root completed.
func (t *Tree) Succeeded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.rootID].Status == StatusCompleted
}

// Counts returns how many nodes are in each status.
func (t *Tree) Counts() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[Status]int, 6)
	for _, n := range t.nodes {
		out[n.Status]++
	}
	return out
}
