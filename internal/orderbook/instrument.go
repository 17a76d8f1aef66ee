package orderbook

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Message is a decoded depth message addressed to one instrument.
type Message interface {
	Security() int64
	Sequence() uint32
}

// Snapshot is a full refresh of one instrument's depth.
type Snapshot struct {
	SecurityID             int64
	MsgSeqNum              uint32
	LastMsgSeqNumProcessed uint32
	TotalBuyQty            decimal.Decimal
	TotalSellQty           decimal.Decimal
	LastUpdateTime         int64
	Entries                []Entry
}

func (s *Snapshot) Security() int64 { return s.SecurityID }

// Sequence is the incremental sequence number the snapshot reflects.
func (s *Snapshot) Sequence() uint32 {
	if s.LastMsgSeqNumProcessed != 0 {
		return s.LastMsgSeqNumProcessed
	}
	return s.MsgSeqNum
}

func (s *Snapshot) book() *Book {
	return &Book{
		SecurityID:     s.SecurityID,
		TotalBuyQty:    s.TotalBuyQty,
		TotalSellQty:   s.TotalSellQty,
		LastUpdateTime: s.LastUpdateTime,
		Entries:        slices.Clone(s.Entries),
	}
}

// Incremental holds the entries of one incremental message that address a
// single instrument, in wire order.
type Incremental struct {
	SecurityID int64
	MsgSeqNum  uint32
	Updates    []Update
}

func (m *Incremental) Security() int64  { return m.SecurityID }
func (m *Incremental) Sequence() uint32 { return m.MsgSeqNum }

// Instrument owns the published book and the last applied sequence number
// of one security. Apply must not be called concurrently for the same
// instrument; Book and Sequence may be read from any goroutine.
type Instrument struct {
	ID   int64
	seq  atomic.Uint32
	book atomic.Pointer[Book]
}

// NewInstrument creates an instrument with no book.
func NewInstrument(id int64) *Instrument {
	return &Instrument{ID: id}
}

// Book returns the current published book, or nil before the first snapshot.
func (i *Instrument) Book() *Book {
	return i.book.Load()
}

// Sequence returns the last applied sequence number.
func (i *Instrument) Sequence() uint32 {
	return i.seq.Load()
}

// Apply fences msg on its sequence number and publishes the resulting
// book. Entry-level problems are joined into the error returned alongside
// a non-nil book; a nil book means the message was dropped.
func (i *Instrument) Apply(msg Message) (*Book, error) {
	seq := msg.Sequence()
	cur := i.seq.Load()
	prev := i.book.Load()

	var next *Book
	var errs []error
	switch m := msg.(type) {
	case *Snapshot:
		// The first snapshot may legitimately reflect sequence zero.
		if seq < cur || (seq == cur && prev != nil) {
			return nil, fmt.Errorf("snapshot %d: %w (current %d)", seq, domain.ErrStaleSequence, cur)
		}
		next = m.book()
	case *Incremental:
		if seq <= cur {
			return nil, fmt.Errorf("incremental %d: %w (current %d)", seq, domain.ErrStaleSequence, cur)
		}
		if prev == nil {
			return nil, fmt.Errorf("security %d: %w", i.ID, domain.ErrNoSnapshot)
		}
		next = prev.Clone()
		for k := range m.Updates {
			if err := next.Apply(&m.Updates[k]); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported depth message %T", msg)
	}

	if !i.seq.CompareAndSwap(cur, seq) {
		return nil, fmt.Errorf("sequence %d: %w", seq, domain.ErrStaleSequence)
	}
	next.SeqNo = seq
	i.book.Store(next)
	return next, errors.Join(errs...)
}
