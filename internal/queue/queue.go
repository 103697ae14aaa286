// Package queue provides the bounded FIFO that bridges the update
// ingestion goroutine and the single-threaded event loop. Push never
// blocks the producer: when full, the oldest entry is dropped and
// counted, since a later dialogs snapshot re-sync recovers lost updates.
package queue

import "sync"

type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	cap     int
	dropped uint64
	wake    func()
}

// New creates a queue with the given capacity. wake, if non-nil, is
// called after every Push so the consumer can schedule a drain; it must
// not block.
func New[T any](capacity int, wake func()) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{cap: capacity, wake: wake}
}

// Push appends v, dropping the oldest entry when at capacity.
// It reports whether an entry was dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	dropped := false
	if len(q.items) >= q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, v)
	wake := q.wake
	q.mu.Unlock()

	if wake != nil {
		wake()
	}
	return dropped
}

// Drain removes and returns all queued items in arrival order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of entries discarded by back-pressure.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
