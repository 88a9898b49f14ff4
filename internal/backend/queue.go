package backend

import (
	"github.com/eapache/queue"

	"github.com/utkarsh5026/forkpool/internal/types"
)

// taskQueue is a FIFO of pending tasks on top of a ring-buffer queue.
// It is not safe for concurrent use; callers hold the task lock.
type taskQueue[I any] struct {
	q *queue.Queue
}

func newTaskQueue[I any]() *taskQueue[I] {
	return &taskQueue[I]{q: queue.New()}
}

func (t *taskQueue[I]) push(task types.Task[I]) {
	t.q.Add(task)
}

func (t *taskQueue[I]) pop() (types.Task[I], bool) {
	if t.q.Length() == 0 {
		var zero types.Task[I]
		return zero, false
	}
	task, ok := t.q.Remove().(types.Task[I])
	if !ok {
		panic("taskQueue.pop: invalid type assertion")
	}
	return task, true
}

func (t *taskQueue[I]) len() int {
	return t.q.Length()
}

// drain empties the queue and returns its contents in FIFO order.
func (t *taskQueue[I]) drain() []types.Task[I] {
	out := make([]types.Task[I], 0, t.q.Length())
	for {
		task, ok := t.pop()
		if !ok {
			return out
		}
		out = append(out, task)
	}
}
