package engine

import (
	"sync"
	"sync/atomic"
)

const minQueueCap = 64

// Queue is an unbounded FIFO safe for any number of producers and
// consumers. Pop never blocks; an empty queue reports false.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int
	size int
	n    atomic.Int64
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v at the tail.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.n.Store(int64(q.size))
	q.mu.Unlock()
}

// Pop removes and returns the head.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.n.Load() == 0 {
		return zero, false
	}
	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.n.Store(int64(q.size))
	q.mu.Unlock()
	return v, true
}

// Len is a lock-free read of the current length.
func (q *Queue[T]) Len() int {
	return int(q.n.Load())
}

// grow doubles the ring and unwraps it. Caller holds mu.
func (q *Queue[T]) grow() {
	next := make([]T, max(minQueueCap, 2*len(q.buf)))
	for i := 0; i < q.size; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
