package agentpool

import (
	"container/heap"
)

// Priority orders tasks in the queue; higher runs first. Ties run in
// submission order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// taskHeap is a max-heap on (priority, -submission order).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// queue is a priority queue of tasks. Not goroutine-safe; the pool guards it
// with its own lock.
type queue struct {
	heap taskHeap
	seq  int64
}

func newQueue() *queue {
	q := &queue{}
	heap.Init(&q.heap)
	return q
}

func (q *queue) push(t *Task) {
	q.seq++
	t.seq = q.seq
	heap.Push(&q.heap, t)
}

func (q *queue) pop() *Task {
	if q.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*Task)
}

func (q *queue) len() int {
	return q.heap.Len()
}
