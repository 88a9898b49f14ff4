package backend

import (
	"context"
	"sync"

	"github.com/utkarsh5026/forkpool/internal/types"
)

// lockBackend guards the task group and the result group with two
// independent lockers, each paired with a condition variable.
//
// With fair=true both lockers admit goroutines in FIFO order; sync.Cond
// already wakes Signal waiters in the order they started waiting.
type lockBackend[I any, O any] struct {
	taskMu   sync.Locker
	notEmpty *sync.Cond
	queue    *taskQueue[I]
	running  bool
	gen      uint64

	resultMu    sync.Locker
	resultReady *sync.Cond
	outstanding map[uint64]struct{}
	results     map[uint64]types.Outcome[O]
}

func newLockBackend[I any, O any](fair bool) *lockBackend[I, O] {
	b := &lockBackend[I, O]{
		taskMu:      newLocker(fair),
		queue:       newTaskQueue[I](),
		running:     true,
		resultMu:    newLocker(fair),
		outstanding: make(map[uint64]struct{}),
		results:     make(map[uint64]types.Outcome[O]),
	}
	b.notEmpty = sync.NewCond(b.taskMu)
	b.resultReady = sync.NewCond(b.resultMu)
	return b
}

func (b *lockBackend[I, O]) Submit(input I, allocate func() uint64) (uint64, error) {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()

	if !b.running {
		return 0, ErrStopped
	}

	task := types.NewTask(allocate(), input)

	b.resultMu.Lock()
	b.outstanding[task.ID] = struct{}{}
	b.resultMu.Unlock()

	b.queue.push(task)
	b.notEmpty.Signal()
	return task.ID, nil
}

func (b *lockBackend[I, O]) Pop(gen uint64) (types.Task[I], bool) {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()

	for b.running && b.gen == gen && b.queue.len() == 0 {
		b.notEmpty.Wait()
	}

	if !b.running || b.gen != gen {
		var zero types.Task[I]
		return zero, false
	}
	return b.queue.pop()
}

func (b *lockBackend[I, O]) Stop() []types.Task[I] {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()

	b.running = false
	b.gen++
	b.notEmpty.Broadcast()
	return b.queue.drain()
}

func (b *lockBackend[I, O]) Resume() uint64 {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()

	b.running = true
	b.notEmpty.Broadcast()
	return b.gen
}

func (b *lockBackend[I, O]) Running() bool {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()
	return b.running
}

func (b *lockBackend[I, O]) Generation() uint64 {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()
	return b.gen
}

func (b *lockBackend[I, O]) Pending() int {
	b.taskMu.Lock()
	defer b.taskMu.Unlock()
	return b.queue.len()
}

func (b *lockBackend[I, O]) Publish(id uint64, out types.Outcome[O]) bool {
	b.resultMu.Lock()
	defer b.resultMu.Unlock()

	if _, ok := b.outstanding[id]; !ok {
		return false
	}
	delete(b.outstanding, id)
	b.results[id] = out
	b.resultReady.Broadcast()
	return true
}

func (b *lockBackend[I, O]) Await(ctx context.Context, id uint64) (types.Outcome[O], error) {
	b.resultMu.Lock()
	defer b.resultMu.Unlock()

	// sync.Cond cannot select on a context, so cancellation is turned into
	// a broadcast. stop does not wait for the callback, which keeps the
	// deferred unlock below free of deadlocks.
	stop := context.AfterFunc(ctx, func() {
		b.resultMu.Lock()
		b.resultReady.Broadcast()
		b.resultMu.Unlock()
	})
	defer stop()

	for {
		if out, ok := b.results[id]; ok {
			delete(b.results, id)
			return out, nil
		}
		if _, ok := b.outstanding[id]; !ok {
			return types.Outcome[O]{}, ErrUnknownTask
		}
		if err := ctx.Err(); err != nil {
			return types.Outcome[O]{}, err
		}
		b.resultReady.Wait()
	}
}

func (b *lockBackend[I, O]) Ready(id uint64) bool {
	b.resultMu.Lock()
	defer b.resultMu.Unlock()
	_, ok := b.results[id]
	return ok
}

func (b *lockBackend[I, O]) Outstanding() int {
	b.resultMu.Lock()
	defer b.resultMu.Unlock()
	return len(b.outstanding)
}
