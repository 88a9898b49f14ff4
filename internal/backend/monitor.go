package backend

import (
	"context"
	"sync"

	"github.com/utkarsh5026/forkpool/internal/types"
)

// monitor is a mutex with notify-all signalling. Waiters park on the
// current signal channel; notifyAll closes it and installs a fresh one.
type monitor struct {
	mu     sync.Mutex
	signal chan struct{}
}

func newMonitor() *monitor {
	return &monitor{signal: make(chan struct{})}
}

func (m *monitor) enter() { m.mu.Lock() }
func (m *monitor) exit()  { m.mu.Unlock() }

// notifyAll wakes every waiter. Must be called inside the monitor.
func (m *monitor) notifyAll() {
	close(m.signal)
	m.signal = make(chan struct{})
}

// wait releases the monitor until the next notifyAll or until ctx ends,
// then re-enters. Must be called inside the monitor.
func (m *monitor) wait(ctx context.Context) error {
	ch := m.signal
	m.mu.Unlock()
	defer m.mu.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// monitorBackend keeps one monitor for the task group and one for the
// result group. Wakeup order among waiters is unspecified.
type monitorBackend[I any, O any] struct {
	tasks   *monitor
	queue   *taskQueue[I]
	running bool
	gen     uint64

	results     *monitor
	outstanding map[uint64]struct{}
	done        map[uint64]types.Outcome[O]
}

func newMonitorBackend[I any, O any]() *monitorBackend[I, O] {
	return &monitorBackend[I, O]{
		tasks:       newMonitor(),
		queue:       newTaskQueue[I](),
		running:     true,
		results:     newMonitor(),
		outstanding: make(map[uint64]struct{}),
		done:        make(map[uint64]types.Outcome[O]),
	}
}

func (b *monitorBackend[I, O]) Submit(input I, allocate func() uint64) (uint64, error) {
	b.tasks.enter()
	defer b.tasks.exit()

	if !b.running {
		return 0, ErrStopped
	}

	task := types.NewTask(allocate(), input)

	b.results.enter()
	b.outstanding[task.ID] = struct{}{}
	b.results.exit()

	b.queue.push(task)
	b.tasks.notifyAll()
	return task.ID, nil
}

func (b *monitorBackend[I, O]) Pop(gen uint64) (types.Task[I], bool) {
	b.tasks.enter()
	defer b.tasks.exit()

	for b.running && b.gen == gen && b.queue.len() == 0 {
		_ = b.tasks.wait(context.Background())
	}

	if !b.running || b.gen != gen {
		var zero types.Task[I]
		return zero, false
	}
	return b.queue.pop()
}

func (b *monitorBackend[I, O]) Stop() []types.Task[I] {
	b.tasks.enter()
	defer b.tasks.exit()

	b.running = false
	b.gen++
	b.tasks.notifyAll()
	return b.queue.drain()
}

func (b *monitorBackend[I, O]) Resume() uint64 {
	b.tasks.enter()
	defer b.tasks.exit()

	b.running = true
	b.tasks.notifyAll()
	return b.gen
}

func (b *monitorBackend[I, O]) Running() bool {
	b.tasks.enter()
	defer b.tasks.exit()
	return b.running
}

func (b *monitorBackend[I, O]) Generation() uint64 {
	b.tasks.enter()
	defer b.tasks.exit()
	return b.gen
}

func (b *monitorBackend[I, O]) Pending() int {
	b.tasks.enter()
	defer b.tasks.exit()
	return b.queue.len()
}

func (b *monitorBackend[I, O]) Publish(id uint64, out types.Outcome[O]) bool {
	b.results.enter()
	defer b.results.exit()

	if _, ok := b.outstanding[id]; !ok {
		return false
	}
	delete(b.outstanding, id)
	b.done[id] = out
	b.results.notifyAll()
	return true
}

func (b *monitorBackend[I, O]) Await(ctx context.Context, id uint64) (types.Outcome[O], error) {
	b.results.enter()
	defer b.results.exit()

	for {
		if out, ok := b.done[id]; ok {
			delete(b.done, id)
			return out, nil
		}
		if _, ok := b.outstanding[id]; !ok {
			return types.Outcome[O]{}, ErrUnknownTask
		}
		if err := b.results.wait(ctx); err != nil {
			return types.Outcome[O]{}, err
		}
	}
}

func (b *monitorBackend[I, O]) Ready(id uint64) bool {
	b.results.enter()
	defer b.results.exit()
	_, ok := b.done[id]
	return ok
}

func (b *monitorBackend[I, O]) Outstanding() int {
	b.results.enter()
	defer b.results.exit()
	return len(b.outstanding)
}
