package engine

import "github.com/roach88/deduce/internal/ir"

// task is one unit of fixed-point work: evaluate a new call, or deliver an
// answer to a waiter.
type task struct {
	call   *call
	waiter *waiter
	answer ir.Frame
}

// worklist is the FIFO queue behind breadth-first fixed-point evaluation.
//
// It is owned by a single fixpoint and never shared, so it carries no lock.
type worklist struct {
	tasks []task
}

// newWorklist creates an empty worklist.
func newWorklist() *worklist {
	return &worklist{
		tasks: make([]task, 0, 64),
	}
}

// Push adds a task to the back of the queue.
func (q *worklist) Push(t task) {
	q.tasks = append(q.tasks, t)
}

// Pop removes and returns the front task.
// Returns (task{}, false) if the queue is empty.
func (q *worklist) Pop() (task, bool) {
	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the backing array does not retain frames.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Len returns the current queue length.
func (q *worklist) Len() int {
	return len(q.tasks)
}
