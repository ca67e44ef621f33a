package sched

import (
	"context"
	"sync"
)

// Future is the completion handle returned by asynchronous lifecycle and
// backup operations. Callers compose on Done or block in Await; resolving
// twice is a no-op so a late timer cannot clobber an earlier result.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future. Only the first call takes effect.
func (f *Future[T]) Resolve(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until resolution or context cancellation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Resolved returns an already-completed future.
func Resolved[T any](val T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(val, err)
	return f
}
