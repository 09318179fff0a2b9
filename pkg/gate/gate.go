// Package gate provides a single-slot rendezvous between the goroutine that
// waits for a round result and the goroutine that produces it.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTimeout  = errors.New("gate was not opened before the timeout")
	ErrCanceled = errors.New("gate wait canceled")
)

// Gate carries exactly one result per round. Open and Fail release waiters;
// only the first release after Close has any effect.
type Gate[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	released bool
	value    T
	err      error
}

func New[T any]() *Gate[T] {
	return &Gate[T]{done: make(chan struct{})}
}

// Close resets the gate to the blocked state, discarding any previous result.
func (g *Gate[T]) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	var zero T
	g.done = make(chan struct{})
	g.released = false
	g.value = zero
	g.err = nil
}

// Open releases the gate with v. It reports false if the gate was already released.
func (g *Gate[T]) Open(v T) bool {
	return g.release(v, nil)
}

// Fail releases the gate with err. It reports false if the gate was already released.
func (g *Gate[T]) Fail(err error) bool {
	var zero T

	return g.release(zero, err)
}

// Await blocks until the gate is released, ctx is done, or timeout elapses.
// A non-positive timeout waits without a deadline.
func (g *Gate[T]) Await(ctx context.Context, timeout time.Duration) (T, error) {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case <-done:
		g.mu.Lock()
		defer g.mu.Unlock()

		return g.value, g.err
	case <-expired:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, errors.Join(ErrCanceled, ctx.Err())
	}
}

// Released reports whether the current round's result has been delivered.
func (g *Gate[T]) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.released
}

func (g *Gate[T]) release(v T, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return false
	}
	g.released = true
	g.value = v
	g.err = err
	close(g.done)

	return true
}
