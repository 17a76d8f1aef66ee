package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EntryType is the MDEntryType of a depth entry.
type EntryType uint32

const (
	Bid         EntryType = 0
	Ask         EntryType = 1
	Trade       EntryType = 2
	TradeVolume EntryType = 9
)

// IsSide reports whether the entry is a bid or ask price level.
func (t EntryType) IsSide() bool {
	return t == Bid || t == Ask
}

// UpdateAction is the MDUpdateAction of an incremental entry.
type UpdateAction uint32

const (
	ActionNew        UpdateAction = 0
	ActionChange     UpdateAction = 1
	ActionDelete     UpdateAction = 2
	ActionDeleteThru UpdateAction = 3
	ActionDeleteFrom UpdateAction = 4
	ActionOverlay    UpdateAction = 5
)

func (a UpdateAction) String() string {
	switch a {
	case ActionNew:
		return "new"
	case ActionChange:
		return "change"
	case ActionDelete:
		return "delete"
	case ActionDeleteThru:
		return "delete_thru"
	case ActionDeleteFrom:
		return "delete_from"
	case ActionOverlay:
		return "overlay"
	default:
		return fmt.Sprintf("action(%d)", uint32(a))
	}
}

// Trade condition bits carried on trade entries.
const (
	ConditionLast  uint64 = 1
	ConditionOpen  uint64 = 2
	ConditionHigh  uint64 = 4
	ConditionLow   uint64 = 8
	ConditionClose uint64 = 128
)

// Entry is one row of a depth snapshot. Level is 1-based; 0 means the
// entry carries no price level (trade and statistics rows).
type Entry struct {
	Type           EntryType
	Level          int32
	Price          decimal.Decimal
	Size           decimal.Decimal
	Orders         int32
	Time           int64
	TradeCondition uint64
	AvgPrice       decimal.Decimal
	PotentialEvent uint32
	QuoteCondition uint32
}

// Update is one incremental entry. Nil fields were absent on the wire and
// must never overwrite existing values.
type Update struct {
	Action         UpdateAction
	Type           EntryType
	Level          int32
	Price          *decimal.Decimal
	Size           *decimal.Decimal
	Orders         *int32
	Time           *int64
	TradeCondition *uint64
	AvgPrice       *decimal.Decimal
	PotentialEvent *uint32
	QuoteCondition *uint32
	TotalBuyQty    *decimal.Decimal
	TotalSellQty   *decimal.Decimal
}

func (u *Update) entry() Entry {
	e := Entry{Type: u.Type, Level: u.Level}
	if u.Price != nil {
		e.Price = *u.Price
	}
	if u.Size != nil {
		e.Size = *u.Size
	}
	if u.Orders != nil {
		e.Orders = *u.Orders
	}
	if u.Time != nil {
		e.Time = *u.Time
	}
	if u.TradeCondition != nil {
		e.TradeCondition = *u.TradeCondition
	}
	if u.AvgPrice != nil {
		e.AvgPrice = *u.AvgPrice
	}
	if u.PotentialEvent != nil {
		e.PotentialEvent = *u.PotentialEvent
	}
	if u.QuoteCondition != nil {
		e.QuoteCondition = *u.QuoteCondition
	}
	return e
}

// mergeInto applies the present non-price fields to e.
func (u *Update) mergeInto(e *Entry) {
	if u.Size != nil {
		e.Size = *u.Size
	}
	if u.Orders != nil {
		e.Orders = *u.Orders
	}
	if u.Time != nil {
		e.Time = *u.Time
	}
	if u.PotentialEvent != nil {
		e.PotentialEvent = *u.PotentialEvent
	}
	if u.QuoteCondition != nil {
		e.QuoteCondition = *u.QuoteCondition
	}
}
