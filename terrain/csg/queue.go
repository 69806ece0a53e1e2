package csg

import (
	"sync"
)

// Queue collects edits submitted from any goroutine until the update pass drains them.
type Queue struct {
	mu  sync.Mutex
	ops []Op
}

// Enqueue adds op to the end of the queue.
func (q *Queue) Enqueue(op Op) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
}

// Drain removes and returns all queued edits in the order they were submitted.
func (q *Queue) Drain() []Op {
	q.mu.Lock()
	ops := q.ops
	q.ops = nil
	q.mu.Unlock()
	return ops
}

// Len returns the number of edits waiting to be drained.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
