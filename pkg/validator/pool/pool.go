// Package pool provides the minimal task-pool contract the validation engine
// runs on: submit a task and get a handle back, then wait until at least one
// of several handles has finished. Two implementations are provided, a local
// goroutine pool and an HTTP client for a remote worker server.
package pool

import (
	"context"
	"errors"
	"reflect"
)

var (
	// ErrPoolUnavailable indicates the pool cannot accept work at all, for
	// example because a remote worker cannot be reached.
	ErrPoolUnavailable = errors.New("task pool unavailable")

	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("task pool closed")

	// ErrTaskFailed wraps an error reported by a task itself.
	ErrTaskFailed = errors.New("task failed")

	// ErrTaskPanic indicates a task panicked. errors.Is(err, ErrTaskFailed)
	// is also true.
	ErrTaskPanic = errors.New("task panicked")
)

// TaskFunc executes one task. workerID is unique among the tasks a pool runs
// concurrently, so it can name per-worker resources such as log files.
type TaskFunc[T, R any] func(ctx context.Context, workerID string, task T) (R, error)

// Pool accepts tasks and returns a handle for each. Submit must not block
// waiting for capacity; queued tasks start as slots free up.
type Pool[T, R any] interface {
	Submit(ctx context.Context, task T) (*Future[R], error)
	// Capacity is the number of tasks the pool runs at once.
	Capacity() int
	Close() error
}

// Future is the handle to a submitted task.
type Future[R any] struct {
	done     chan struct{}
	result   R
	err      error
	workerID string
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) complete(workerID string, result R, err error) {
	f.workerID = workerID
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the task has finished.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the task has finished, without blocking.
func (f *Future[R]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the task finishes and returns its outcome.
func (f *Future[R]) Result() (R, error) {
	<-f.done
	return f.result, f.err
}

// WorkerID returns the identity the task ran under. Empty until Done.
func (f *Future[R]) WorkerID() string {
	if !f.Ready() {
		return ""
	}
	return f.workerID
}

// WaitAny blocks until at least one of pending has finished, then returns
// every finished handle and the ones still running. Relative order is kept
// within both slices. An empty pending slice returns immediately.
func WaitAny[R any](ctx context.Context, pending []*Future[R]) (done, remaining []*Future[R], err error) {
	if len(pending) == 0 {
		return nil, nil, nil
	}

	if !anyReady(pending) {
		cases := make([]reflect.SelectCase, 0, len(pending)+1)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
		for _, f := range pending {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(f.done)})
		}
		chosen, _, _ := reflect.Select(cases)
		if chosen == 0 {
			return nil, pending, ctx.Err()
		}
	}

	for _, f := range pending {
		if f.Ready() {
			done = append(done, f)
		} else {
			remaining = append(remaining, f)
		}
	}
	return done, remaining, nil
}

// WaitAll drains pending, calling fn for each finished handle as it arrives.
// It stops at the first error returned by fn or by ctx.
func WaitAll[R any](ctx context.Context, pending []*Future[R], fn func(*Future[R]) error) error {
	for len(pending) > 0 {
		done, remaining, err := WaitAny(ctx, pending)
		if err != nil {
			return err
		}
		for _, f := range done {
			if err := fn(f); err != nil {
				return err
			}
		}
		pending = remaining
	}
	return nil
}

func anyReady[R any](futures []*Future[R]) bool {
	for _, f := range futures {
		if f.Ready() {
			return true
		}
	}
	return false
}
