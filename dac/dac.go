// Package dac splits an index range into contiguous slices and runs them
// as independent tasks on a reservable worker pool.
//
// Callers implement Conqueror for one slice; DivideAndConquer reserves as
// many workers as the range allows, partitions the range to match, submits
// one task per slice and returns the per-slice status codes in slice order.
// Reservations keep concurrent (or nested) calls sharing one pool from
// oversubscribing it: a call that gets no capacity runs on its caller.
package dac

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/utkarsh5026/forkpool/pool"
)

// Conqueror computes a status code for one contiguous slice of a range.
type Conqueror[I any] interface {
	Conquer(ctx context.Context, input I, iv Interval) (int, error)
}

// ConquerFunc adapts a function to Conqueror.
type ConquerFunc[I any] func(ctx context.Context, input I, iv Interval) (int, error)

func (f ConquerFunc[I]) Conquer(ctx context.Context, input I, iv Interval) (int, error) {
	return f(ctx, input, iv)
}

// Slice is the task input submitted for one slice.
type Slice[I any] struct {
	Input    I
	Interval Interval
}

// Pool is the part of the worker pool contract DivideAndConquer relies on.
// *pool.WorkerPool[Slice[I], int] satisfies it.
type Pool[I any] interface {
	ReserveMaxWorkers(n int) (int, error)
	FreeWorkers(n int) error
	Submit(s Slice[I]) (uint64, error)
	Get(ctx context.Context, id uint64) (int, error)
}

// Process returns the pool computation that runs c on a submitted slice.
// Use it to build a pool shared between several DivideAndConquer values:
//
//	p, err := pool.New(dac.Process(c), pool.WithMaxWorkers(8))
//	d := dac.NewWithPool(c, p)
func Process[I any](c Conqueror[I]) pool.ProcessFunc[Slice[I], int] {
	return func(ctx context.Context, s Slice[I]) (int, error) {
		return c.Conquer(ctx, s.Input, s.Interval)
	}
}

// DivideAndConquer runs a Conqueror over ranges, in parallel when the
// pool has capacity.
type DivideAndConquer[I any] struct {
	pool   Pool[I]
	local  *pool.Worker[Slice[I], int]
	owned  *pool.WorkerPool[Slice[I], int]
	logger logrus.FieldLogger
}

// New creates a DivideAndConquer backed by a pool of its own, configured
// with opts. Close releases that pool.
func New[I any](c Conqueror[I], opts ...pool.Option) (*DivideAndConquer[I], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil conqueror", pool.ErrInvalidArgument)
	}

	p, err := pool.New(Process(c), opts...)
	if err != nil {
		return nil, err
	}
	d := newDivideAndConquer(p, p.CloneWorker())
	d.owned = p
	return d, nil
}

// NewWithPool creates a DivideAndConquer on a pool the caller owns. The
// pool's computation must be Process(c).
//
// Slices conquered on the calling goroutine run through a worker cloned
// from p when p can provide one (a *pool.WorkerPool does), so they share
// its rate limiter, retry policy and hooks. For other Pool
// implementations the fallback worker is built from opts.
func NewWithPool[I any](c Conqueror[I], p Pool[I], opts ...pool.Option) (*DivideAndConquer[I], error) {
	if c == nil || p == nil {
		return nil, fmt.Errorf("%w: nil conqueror or pool", pool.ErrInvalidArgument)
	}

	if cloner, ok := p.(workerCloner[I]); ok {
		return newDivideAndConquer(p, cloner.CloneWorker()), nil
	}
	local, err := pool.NewWorker(Process(c), opts...)
	if err != nil {
		return nil, err
	}
	return newDivideAndConquer(p, local), nil
}

type workerCloner[I any] interface {
	CloneWorker() *pool.Worker[Slice[I], int]
}

func newDivideAndConquer[I any](p Pool[I], local *pool.Worker[Slice[I], int]) *DivideAndConquer[I] {
	return &DivideAndConquer[I]{
		pool:   p,
		local:  local,
		logger: discardLogger(),
	}
}

// WithLogger replaces the logger used for fallback and failure messages.
func (d *DivideAndConquer[I]) WithLogger(l logrus.FieldLogger) *DivideAndConquer[I] {
	if l != nil {
		d.logger = l.WithField("component", "dac")
	}
	return d
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DivideAndConquer splits [from, to) into at most ceil((to-from) /
// minSliceSize) contiguous slices, runs Conquer on each and returns their
// status codes in slice order.
//
// The slice count is whatever ReserveMaxWorkers grants. When the range
// fits in one slice, or no worker can be reserved, the whole range is
// conquered synchronously on the calling goroutine and a single status is
// returned. The reservation is always freed before returning.
//
// A failed slice gets status 0 and contributes a *SliceError to the
// returned error; the other statuses stay valid. ctx bounds the wait for
// slice outcomes. If it ends first, the outcomes not yet collected are
// retrieved and dropped in the background so they do not pile up in the
// pool.
func (d *DivideAndConquer[I]) DivideAndConquer(ctx context.Context, input I, from, to, minSliceSize int) (statuses []int, err error) {
	if minSliceSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSliceSize, minSliceSize)
	}
	length := to - from
	if to < from || length < 0 {
		// length < 0 means to-from overflowed int.
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, from, to)
	}

	whole := Interval{From: from, To: to}
	limit := maxSlices(length, minSliceSize)
	if limit <= 1 {
		return d.conquerLocal(ctx, input, whole)
	}

	reserved, err := d.pool.ReserveMaxWorkers(limit)
	if err != nil {
		return nil, fmt.Errorf("reserving workers: %w", err)
	}
	defer func() {
		if freeErr := d.pool.FreeWorkers(reserved); freeErr != nil {
			err = errors.Join(err, fmt.Errorf("freeing workers: %w", freeErr))
		}
	}()

	if reserved == 0 {
		d.logger.WithField("range", whole.String()).Debug("no capacity, conquering synchronously")
		return d.conquerLocal(ctx, input, whole)
	}

	slices := Partition(from, to, reserved)
	ids := make([]uint64, 0, len(slices))
	var submitErr error
	for _, iv := range slices {
		id, err := d.pool.Submit(Slice[I]{Input: input, Interval: iv})
		if err != nil {
			submitErr = fmt.Errorf("submitting slice %v: %w", iv, err)
			break
		}
		ids = append(ids, id)
	}

	statuses = make([]int, len(slices))
	var errs []error
	for i, id := range ids {
		status, err := d.pool.Get(ctx, id)
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
			go d.discard(ids[i:])
			return nil, errors.Join(append(errs, ctxErr)...)
		}
		if err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{"slice": i, "range": slices[i].String()}).Warn("slice failed")
			errs = append(errs, &SliceError{Index: i, Interval: slices[i], Err: err})
			continue
		}
		statuses[i] = status
	}

	if submitErr != nil {
		return nil, errors.Join(append(errs, submitErr)...)
	}
	return statuses, errors.Join(errs...)
}

// Close shuts down the pool created by New and waits for its workers,
// bounded by ctx. It does nothing for a pool passed to NewWithPool.
func (d *DivideAndConquer[I]) Close(ctx context.Context) error {
	if d.owned == nil {
		return nil
	}
	if err := d.owned.Shutdown(ctx, false); err != nil {
		return err
	}
	return d.owned.AwaitTermination(ctx)
}

// Stats returns the owned pool's counters, or false for a shared pool.
func (d *DivideAndConquer[I]) Stats() (pool.Stats, bool) {
	if d.owned == nil {
		return pool.Stats{}, false
	}
	return d.owned.Stats(), true
}

// discard retrieves and drops the outcomes of ids. It blocks until every
// computation has published, so it runs off the caller's goroutine.
func (d *DivideAndConquer[I]) discard(ids []uint64) {
	for _, id := range ids {
		if _, err := d.pool.Get(context.Background(), id); err != nil {
			d.logger.WithError(err).WithField("task", id).Debug("abandoned slice")
		}
	}
}

func (d *DivideAndConquer[I]) conquerLocal(ctx context.Context, input I, iv Interval) ([]int, error) {
	status, err := d.local.Call(ctx, Slice[I]{Input: input, Interval: iv})
	if err != nil {
		return []int{0}, &SliceError{Index: 0, Interval: iv, Err: err}
	}
	return []int{status}, nil
}
