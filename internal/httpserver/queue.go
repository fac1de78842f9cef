package httpserver

import (
	"sync"
	"time"
)

// Queue is a bounded multi-producer, multi-consumer FIFO with timed push and
// pop.
//
// The item channel is never closed. Close signals the done channel first so
// blocked pushes and pops return at once, then takes the write lock so no
// push is in flight while the remaining items are drained.
type Queue[T any] struct {
	items chan T
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity items. A capacity below
// one is raised to one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push adds v, waiting up to timeout for a free slot.
//
// Returns:
//   - error: ErrQueueTimeout when no slot freed up in time,
//     ErrQueueClosed when the queue is (or gets) closed
func (q *Queue[T]) Push(v T, timeout time.Duration) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- v:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-timer.C:
		return ErrQueueTimeout
	}
}

// Pop removes the oldest item, waiting up to timeout for one to arrive.
// A closed queue returns ErrQueueClosed even if items remain.
func (q *Queue[T]) Pop(timeout time.Duration) (T, error) {
	var zero T

	select {
	case <-q.done:
		return zero, ErrQueueClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-q.items:
		return v, nil
	case <-q.done:
		return zero, ErrQueueClosed
	case <-timer.C:
		return zero, ErrQueueTimeout
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Close shuts the queue and returns the items that were never popped.
// Safe to call more than once; later calls return nil.
func (q *Queue[T]) Close() []T {
	first := false
	q.closeOnce.Do(func() {
		close(q.done)
		first = true
	})
	if !first {
		return nil
	}

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	var dropped []T
	for {
		select {
		case v := <-q.items:
			dropped = append(dropped, v)
		default:
			return dropped
		}
	}
}
