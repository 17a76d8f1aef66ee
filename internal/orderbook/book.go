package orderbook

import (
	"errors"
	"fmt"
	"slices"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrMissingLevel is returned when an action that addresses a price level
// arrives without one.
var ErrMissingLevel = errors.New("price level required")

// Book is the reconstructed depth of one instrument. A published Book is
// never mutated; Apply is called on a Clone.
type Book struct {
	SecurityID     int64
	SeqNo          uint32
	TotalBuyQty    decimal.Decimal
	TotalSellQty   decimal.Decimal
	LastUpdateTime int64
	Entries        []Entry
}

// Clone returns a deep copy.
func (b *Book) Clone() *Book {
	c := *b
	c.Entries = slices.Clone(b.Entries)
	return &c
}

// Side returns the entries of one type in book order.
func (b *Book) Side(t EntryType) []Entry {
	var out []Entry
	for _, e := range b.Entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Levels returns the price levels of one side in book order.
func (b *Book) Levels(t EntryType) []int32 {
	var out []int32
	for _, e := range b.Entries {
		if e.Type == t {
			out = append(out, e.Level)
		}
	}
	return out
}

// Apply mutates the book with one incremental entry. A returned error
// describes a problem with this entry only; the book stays consistent.
func (b *Book) Apply(u *Update) error {
	if u.TotalBuyQty != nil {
		b.TotalBuyQty = *u.TotalBuyQty
	}
	if u.TotalSellQty != nil {
		b.TotalSellQty = *u.TotalSellQty
	}
	if u.Time != nil && *u.Time > b.LastUpdateTime {
		b.LastUpdateTime = *u.Time
	}

	switch u.Action {
	case ActionNew:
		if u.Type == Trade {
			return b.trade(u)
		}
		b.add(u)
		return nil
	case ActionChange:
		return b.change(u)
	case ActionDelete:
		return b.delete(u)
	case ActionDeleteThru:
		return b.deleteThru(u)
	case ActionDeleteFrom:
		return b.deleteFrom(u)
	case ActionOverlay:
		return b.overlay(u)
	default:
		return fmt.Errorf("unsupported update action %s on entry type %d", u.Action, u.Type)
	}
}

func (b *Book) count(t EntryType) int32 {
	var n int32
	for _, e := range b.Entries {
		if e.Type == t {
			n++
		}
	}
	return n
}

// insertPos keeps a same-side run ordered by ascending level: scan until
// the run of t starts, then stop at the first entry that leaves the run or
// sits at or deeper than the new level.
func (b *Book) insertPos(e Entry) int {
	pos := 0
	started := false
	for _, cur := range b.Entries {
		if cur.Type == e.Type {
			started = true
		}
		if started && cur.Type != e.Type {
			break
		}
		if started && cur.Level >= e.Level {
			break
		}
		pos++
	}
	return pos
}

func (b *Book) add(u *Update) {
	e := u.entry()
	if !e.Type.IsSide() {
		b.replace(e)
		return
	}

	// Levels stay contiguous: a missing or too deep level lands at the back.
	if n := b.count(e.Type); e.Level <= 0 || e.Level > n+1 {
		e.Level = n + 1
	}
	pos := b.insertPos(e)
	b.Entries = slices.Insert(b.Entries, pos, e)
	for i := pos + 1; i < len(b.Entries); i++ {
		if b.Entries[i].Type == e.Type && b.Entries[i].Level > 0 {
			b.Entries[i].Level++
		}
	}
}

// replace installs a non-side entry over the existing one with the same
// type (and, for trades, the same trade condition), or at the front.
func (b *Book) replace(e Entry) {
	for i := range b.Entries {
		cur := &b.Entries[i]
		if cur.Type != e.Type {
			continue
		}
		if e.Type == Trade && cur.TradeCondition != e.TradeCondition {
			continue
		}
		*cur = e
		return
	}
	b.Entries = slices.Insert(b.Entries, 0, e)
}

func (b *Book) removeAt(i int) {
	removed := b.Entries[i]
	b.Entries = slices.Delete(b.Entries, i, i+1)
	for j := range b.Entries {
		if b.Entries[j].Type == removed.Type && b.Entries[j].Level > removed.Level {
			b.Entries[j].Level--
		}
	}
}

func (b *Book) find(t EntryType, level int32) int {
	return slices.IndexFunc(b.Entries, func(e Entry) bool {
		return e.Type == t && e.Level == level
	})
}

func (b *Book) trade(u *Update) error {
	var err error
	if u.Price != nil && u.Size != nil {
		pos := slices.IndexFunc(b.Entries, func(e Entry) bool {
			return e.Type.IsSide() && e.Price.Equal(*u.Price)
		})
		switch {
		case pos < 0:
			err = fmt.Errorf("trade at %s: %w", u.Price, domain.ErrNoMatchingPrice)
		case b.Entries[pos].Size.GreaterThan(*u.Size):
			b.Entries[pos].Size = b.Entries[pos].Size.Sub(*u.Size)
		default:
			b.removeAt(pos)
		}
	}

	b.replace(u.entry())
	return err
}

func (b *Book) change(u *Update) error {
	if u.Level <= 0 {
		return fmt.Errorf("change: %w", ErrMissingLevel)
	}
	pos := b.find(u.Type, u.Level)
	if pos < 0 {
		b.add(u)
		return nil
	}
	u.mergeInto(&b.Entries[pos])
	return nil
}

func (b *Book) delete(u *Update) error {
	if u.Level <= 0 {
		return fmt.Errorf("delete: %w", ErrMissingLevel)
	}
	if pos := b.find(u.Type, u.Level); pos >= 0 {
		b.removeAt(pos)
	}
	return nil
}

// deleteThru removes levels 1..Level of one side and renumbers the
// survivors from 1.
func (b *Book) deleteThru(u *Update) error {
	if u.Level <= 0 {
		return fmt.Errorf("delete thru: %w", ErrMissingLevel)
	}
	b.Entries = slices.DeleteFunc(b.Entries, func(e Entry) bool {
		return e.Type == u.Type && e.Level <= u.Level
	})
	var level int32 = 1
	for i := range b.Entries {
		if b.Entries[i].Type == u.Type {
			b.Entries[i].Level = level
			level++
		}
	}
	return nil
}

// deleteFrom removes Level and everything deeper on one side.
func (b *Book) deleteFrom(u *Update) error {
	if u.Level <= 0 {
		return fmt.Errorf("delete from: %w", ErrMissingLevel)
	}
	b.Entries = slices.DeleteFunc(b.Entries, func(e Entry) bool {
		return e.Type == u.Type && e.Level >= u.Level
	})
	return nil
}

func (b *Book) overlay(u *Update) error {
	if u.Level <= 0 {
		return fmt.Errorf("overlay: %w", ErrMissingLevel)
	}
	pos := b.find(u.Type, u.Level)
	if pos < 0 {
		return nil
	}
	e := &b.Entries[pos]
	if u.Price != nil {
		e.Price = *u.Price
	}
	u.mergeInto(e)
	return nil
}
