package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Local runs tasks on goroutines in this process, at most Capacity at once.
// Each running task holds a numbered slot; the slot number becomes part of
// its worker identity, so two concurrently running tasks never share one.
type Local[T, R any] struct {
	fn       TaskFunc[T, R]
	size     int
	prefix   string
	sem      *semaphore.Weighted
	logger   *slog.Logger
	mu       sync.Mutex
	free     []int
	closed   bool
	inflight sync.WaitGroup
}

// LocalOptions configures a Local pool.
type LocalOptions struct {
	// Size is the number of concurrent slots. Values < 1 mean runtime.NumCPU().
	Size int
	// WorkerPrefix prefixes every worker identity. Defaults to "worker".
	WorkerPrefix string
	Logger       slog.Handler
}

// NewLocal creates a local pool that executes fn.
func NewLocal[T, R any](fn TaskFunc[T, R], opts LocalOptions) *Local[T, R] {
	size := opts.Size
	if size < 1 {
		size = runtime.NumCPU()
	}
	prefix := opts.WorkerPrefix
	if prefix == "" {
		prefix = "worker"
	}
	handler := opts.Logger
	if handler == nil {
		handler = slog.DiscardHandler
	}
	free := make([]int, size)
	for i := range free {
		free[i] = size - 1 - i // pop order 0, 1, 2, ...
	}
	return &Local[T, R]{
		fn:     fn,
		size:   size,
		prefix: prefix,
		sem:    semaphore.NewWeighted(int64(size)),
		logger: slog.New(handler).With(slog.String("component", "pool.local")),
		free:   free,
	}
}

// Capacity implements Pool.
func (p *Local[T, R]) Capacity() int { return p.size }

// Submit implements Pool. The task starts as soon as a slot is free; if ctx
// is cancelled first, the handle completes with ctx's error.
func (p *Local[T, R]) Submit(ctx context.Context, task T) (*Future[R], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	f := newFuture[R]()
	go func() {
		defer p.inflight.Done()
		var zero R
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.complete("", zero, err)
			return
		}
		slot := p.takeSlot()
		workerID := fmt.Sprintf("%s-%d", p.prefix, slot)
		result, err := p.run(ctx, workerID, task)
		p.returnSlot(slot)
		p.sem.Release(1)
		f.complete(workerID, result, err)
	}()
	return f, nil
}

// Run executes task synchronously on a free slot. It is used by servers that
// already have a goroutine per request.
func (p *Local[T, R]) Run(ctx context.Context, task T) (string, R, error) {
	f, err := p.Submit(ctx, task)
	if err != nil {
		var zero R
		return "", zero, err
	}
	result, err := f.Result()
	return f.WorkerID(), result, err
}

// Close stops accepting tasks and waits for submitted ones to finish.
func (p *Local[T, R]) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
	return nil
}

func (p *Local[T, R]) run(ctx context.Context, workerID string, task T) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", slog.String("worker", workerID), slog.Any("panic", r))
			err = fmt.Errorf("%w: %w: %v\n%s", ErrTaskFailed, ErrTaskPanic, r, debug.Stack())
		}
	}()
	p.logger.Debug("Task started", slog.String("worker", workerID))
	result, err = p.fn(ctx, workerID, task)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTaskFailed, err)
	}
	return result, err
}

func (p *Local[T, R]) takeSlot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return slot
}

func (p *Local[T, R]) returnSlot(slot int) {
	p.mu.Lock()
	p.free = append(p.free, slot)
	p.mu.Unlock()
}
