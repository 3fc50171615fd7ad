// Package refine holds the FIFO queue of explicitly requested comparisons,
// e.g. those created to validate a manual reorder against the rating model.
package refine

import (
	"sync"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/pkg/metrics"
)

// Resolver reports whether an entity id still resolves in the live
// population. Tasks referencing unknown ids are dropped, not surfaced.
type Resolver func(id model.EntityID) bool

// Queue is a FIFO of refinement tasks with a global unordered-pair
// duplicate check: a task for {A,B} anywhere in the queue blocks a new
// task for {B,A}.
type Queue struct {
	mu    sync.Mutex
	tasks []model.RefinementTask
	keys  map[string]struct{}
}

// New creates an empty refinement queue.
func New() *Queue {
	return &Queue{
		keys: make(map[string]struct{}),
	}
}

// Enqueue appends a task unless its unordered pair is already queued or the
// task pairs an entity with itself. Returns true when the task was accepted.
func (q *Queue) Enqueue(primary, opponent model.EntityID, reason string) bool {
	if primary == opponent {
		return false
	}
	task := model.RefinementTask{Primary: primary, Opponent: opponent, Reason: reason}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.keys[task.Key()]; dup {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.keys[task.Key()] = struct{}{}

	metrics.RecordRefinementEnqueued()
	metrics.UpdateRefinementDepth(len(q.tasks))
	return true
}

// PeekNext returns the first task whose ids both resolve. Tasks with stale
// ids are dropped on the way. Returns nil when the queue is exhausted.
func (q *Queue) PeekNext(resolves Resolver) *model.RefinementTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) > 0 {
		head := q.tasks[0]
		if resolves(head.Primary) && resolves(head.Opponent) {
			t := head
			return &t
		}
		q.dropHeadLocked()
		metrics.RecordRefinementDropped()
	}
	return nil
}

// Pop removes the head task. No-op on an empty queue.
func (q *Queue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) > 0 {
		q.dropHeadLocked()
	}
}

func (q *Queue) dropHeadLocked() {
	head := q.tasks[0]
	q.tasks = q.tasks[1:]
	delete(q.keys, head.Key())
	metrics.UpdateRefinementDepth(len(q.tasks))
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
	q.keys = make(map[string]struct{})
	metrics.UpdateRefinementDepth(0)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Tasks returns a copy of the pending tasks in FIFO order, for persistence.
func (q *Queue) Tasks() []model.RefinementTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.RefinementTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Restore replaces the queue contents, preserving order and dedup state.
func (q *Queue) Restore(tasks []model.RefinementTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = nil
	q.keys = make(map[string]struct{})
	for _, t := range tasks {
		if _, dup := q.keys[t.Key()]; dup {
			continue
		}
		q.tasks = append(q.tasks, t)
		q.keys[t.Key()] = struct{}{}
	}
	metrics.UpdateRefinementDepth(len(q.tasks))
}
