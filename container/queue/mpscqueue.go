package queue

import (
	"sync"
)

// MPSCQueue is an unbounded multi-producer single-consumer queue. Producers
// Push from any goroutine; the consumer swaps out whole batches, either
// blocking in Pop or selecting on Notify and calling Drain.
type MPSCQueue[T any] struct {
	in         []T
	out        []T
	mu         sync.Mutex
	notify     chan struct{}
	shrinkSize int
	closed     bool
}

func NewMPSCQueue[T any](shrinkSize int) *MPSCQueue[T] {
	return &MPSCQueue[T]{
		shrinkSize: shrinkSize,
		notify:     make(chan struct{}, 1),
	}
}

// Push appends v and reports false once the queue is closed.
func (q *MPSCQueue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.in = append(q.in, v)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *MPSCQueue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify fires at least once after every Push that found no pending signal.
func (q *MPSCQueue[T]) Notify() <-chan struct{} {
	return q.notify
}

// Drain returns the pending batch without blocking. The returned slice is
// owned by the queue and valid until the next Drain or Pop.
func (q *MPSCQueue[T]) Drain() []T {
	q.clearOrShrinkOut()
	q.mu.Lock()
	q.in, q.out = q.out, q.in
	q.mu.Unlock()
	return q.out
}

// Pop blocks until a batch is pending or the queue is closed and empty.
func (q *MPSCQueue[T]) Pop() ([]T, bool) {
	for {
		if out := q.Drain(); len(out) > 0 {
			return out, true
		}
		q.mu.Lock()
		closed := q.closed && len(q.in) == 0
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.notify
	}
}

func (q *MPSCQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *MPSCQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.in)
}

func (q *MPSCQueue[T]) clearOrShrinkOut() {
	if q.shrinkSize == 0 || cap(q.out) < q.shrinkSize {
		clear(q.out)
		q.out = q.out[0:0]
	} else {
		q.out = []T{}
	}
}
