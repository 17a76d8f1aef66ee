package engine

import (
	"sync/atomic"

	"feed_go/internal/domain"
	"feed_go/internal/orderbook"
)

// Lane is a FIFO plus its work lock. While the lock is held exactly one
// Work for the lane is either queued or running.
type Lane[T any] struct {
	q    Queue[T]
	busy atomic.Bool
	work *Work
}

// Push appends v to the lane.
func (l *Lane[T]) Push(v T) { l.q.Push(v) }

// Len returns the number of pending values.
func (l *Lane[T]) Len() int { return l.q.Len() }

// Acquire flips the lane from idle to busy.
func (l *Lane[T]) Acquire() bool { return l.busy.CompareAndSwap(false, true) }

// Release marks the lane idle.
func (l *Lane[T]) Release() { l.busy.Store(false) }

// Busy reports whether a Work for this lane is outstanding.
func (l *Lane[T]) Busy() bool { return l.busy.Load() }

// BookLane is the per-instrument state for MCX: decoded depth messages in
// arrival order and the instrument they are applied to.
type BookLane struct {
	Lane[orderbook.Message]
	Instrument *orderbook.Instrument
}

func newPacketLane(wt domain.WorkType) *Lane[*domain.Packet] {
	l := &Lane[*domain.Packet]{}
	l.work = &Work{Type: wt, lane: l}
	return l
}

func newBookLane(id int64) *BookLane {
	b := &BookLane{Instrument: orderbook.NewInstrument(id)}
	b.work = &Work{Type: domain.Security(id), book: b}
	return b
}
