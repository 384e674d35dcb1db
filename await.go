package irccore

import (
	"context"
	"sync"
)

// await is a one-shot outcome shared between a blocking caller and the wire
// library's dispatch goroutine. A callback that resolves before the caller
// starts waiting is never lost, and duplicate resolutions are ignored, so a
// second success/failure delivery for an already-resolved operation has no
// caller-visible effect.
type await[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newAwait[T any]() *await[T] {
	return &await[T]{done: make(chan struct{})}
}

// resolve records the outcome and releases all waiters. Only the first call
// has any effect.
func (a *await[T]) resolve(val T, err error) {
	a.once.Do(func() {
		a.val = val
		a.err = err
		close(a.done)
	})
}

// wait blocks until the outcome is resolved or ctx is done. Cancellation is
// reported as the context's error so callers can tell it apart from a
// protocol failure.
func (a *await[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-a.done:
		return a.val, a.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
