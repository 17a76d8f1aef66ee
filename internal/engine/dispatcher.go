package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/event"
	"feed_go/internal/infra"
	"feed_go/internal/orderbook"
)

// Processor turns dispatched work into output records. Implementations
// select behavior by WorkType; they may return records together with an
// error when part of the input was unusable.
type Processor interface {
	Process(wt domain.WorkType, p *domain.Packet) ([]*domain.Record, error)
	ProcessBook(inst *orderbook.Instrument, msg orderbook.Message) (*domain.Record, error)
}

// Dispatcher routes classified packets to lanes or slots and executes the
// resulting Work. It is safe for concurrent use.
type Dispatcher struct {
	reg     *Registry
	work    *Queue[*Work]
	proc    Processor
	out     domain.Output
	metrics *infra.Metrics
	release func(*domain.Packet)
	seq     atomic.Uint64
}

// NewDispatcher wires a dispatcher. Consumed packets go back to the pool.
func NewDispatcher(reg *Registry, proc Processor, out domain.Output, metrics *infra.Metrics) *Dispatcher {
	return &Dispatcher{
		reg:     reg,
		work:    NewQueue[*Work](),
		proc:    proc,
		out:     out,
		metrics: metrics,
		release: event.ReleasePacket,
	}
}

// Registry exposes the per-key state.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Pending returns the number of queued Work items.
func (d *Dispatcher) Pending() int { return d.work.Len() }

// Next pops the next Work item.
func (d *Dispatcher) Next() (*Work, bool) { return d.work.Pop() }

// Dispatch takes ownership of p. FIFO kinds are appended to their lane;
// token-wise packets replace whatever is pending for the token.
func (d *Dispatcher) Dispatch(p *domain.Packet, wt domain.WorkType) {
	if id, ok := wt.QueueID(); ok {
		l := d.reg.Lane(id)
		l.Push(p)
		if l.Acquire() {
			d.push(l.work)
		}
		return
	}

	if wt.Kind != domain.TokenWise {
		slog.Warn("Packet work type has no packet route", slog.String("work", wt.String()))
		d.release(p)
		return
	}

	s := d.reg.Slot(wt.Token)
	if old := s.Put(p); old != nil {
		// A Work is already armed for this token and will read the new packet.
		d.metrics.RecordCoalesced()
		d.release(old)
		return
	}
	if s.Acquire() {
		d.push(s.work)
	}
}

// DispatchBook queues a decoded depth message behind earlier messages for
// the same security.
func (d *Dispatcher) DispatchBook(msg orderbook.Message) {
	b := d.reg.Book(msg.Security())
	b.Push(msg)
	if b.Acquire() {
		d.push(b.work)
	}
}

// Execute runs one Work item. Every path leaves the lane or slot either
// released or re-armed with its Work back on the queue.
func (d *Dispatcher) Execute(w *Work) {
	start := time.Now()
	switch {
	case w.lane != nil:
		drain(d, w.lane, w, func(p *domain.Packet) {
			d.processPacket(w.Type, p)
		})
	case w.slot != nil:
		d.runSlot(w)
	case w.book != nil:
		drain(d, &w.book.Lane, w, func(m orderbook.Message) {
			d.processBook(w.book.Instrument, m)
		})
	}
	d.metrics.RecordWork(time.Since(start).Nanoseconds())
}

func (d *Dispatcher) push(w *Work) {
	w.Seq = d.seq.Add(1)
	d.work.Push(w)
}

// drain pops and handles values in order. It yields the worker by
// requeueing w when other Work is waiting, and otherwise drains to empty.
func drain[T any](d *Dispatcher, l *Lane[T], w *Work, handle func(T)) {
	for {
		v, ok := l.q.Pop()
		if !ok {
			break
		}
		handle(v)
		if l.q.Len() == 0 {
			break
		}
		if d.work.Len() > 0 {
			d.metrics.RecordRequeue()
			d.push(w)
			return
		}
	}
	l.Release()
	// A producer may have pushed after the last Pop but before Release
	// and lost the Acquire race to us.
	if l.q.Len() > 0 && l.Acquire() {
		d.push(w)
	}
}

func (d *Dispatcher) runSlot(w *Work) {
	s := w.slot
	if p := s.Take(); p != nil {
		d.processPacket(w.Type, p)
	}
	s.Release()
	if s.Pending() && s.Acquire() {
		d.push(w)
	}
}

func (d *Dispatcher) processPacket(wt domain.WorkType, p *domain.Packet) {
	defer d.release(p)
	d.guard(wt, func() error {
		recs, err := d.proc.Process(wt, p)
		for _, rec := range recs {
			d.emit(rec)
		}
		return err
	})
}

func (d *Dispatcher) processBook(inst *orderbook.Instrument, msg orderbook.Message) {
	d.guard(domain.Security(inst.ID), func() error {
		rec, err := d.proc.ProcessBook(inst, msg)
		if rec != nil {
			d.emit(rec)
		}
		return err
	})
}

// emit hands rec to the output, which owns the records_out count.
func (d *Dispatcher) emit(rec *domain.Record) {
	d.out.Write(rec)
}

// guard runs fn, converting a panic into a counted and logged drop so the
// caller can always release its lane or slot.
func (d *Dispatcher) guard(wt domain.WorkType, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordPanic()
			slog.Error("Work item panicked",
				slog.String("work", wt.String()),
				slog.Any("panic", fmt.Sprint(r)),
			)
		}
	}()

	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStaleSequence), errors.Is(err, domain.ErrNoSnapshot):
		d.metrics.RecordStale()
		slog.Debug("Dropped stale update", slog.String("work", wt.String()), slog.Any("error", err))
	default:
		d.metrics.RecordDecodeError()
		slog.Debug("Dropped undecodable input", slog.String("work", wt.String()), slog.Any("error", err))
	}
}
