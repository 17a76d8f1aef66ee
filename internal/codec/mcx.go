package codec

import (
	"errors"
	"fmt"

	"feed_go/internal/codec/fast"
	"feed_go/internal/domain"
	"feed_go/internal/orderbook"

	"github.com/shopspring/decimal"
)

// McxKind classifies a decoded MCX template.
type McxKind uint8

const (
	McxOther McxKind = iota
	McxHeader
	McxReset
	McxSnapshot
	McxIncremental
)

// ClassifyMCX maps a template to its role in the depth stream.
func ClassifyMCX(msg *fast.Message) McxKind {
	switch msg.TemplateID {
	case 60, 65:
		return McxHeader
	case 120:
		return McxReset
	case 93, 101:
		return McxSnapshot
	case 94, 102:
		return McxIncremental
	}
	switch msg.Name {
	case "MDPacketHeader":
		return McxHeader
	case "FastReset":
		return McxReset
	case "DepthSnapshot":
		return McxSnapshot
	case "DepthIncremental":
		return McxIncremental
	}
	return McxOther
}

// McxStats counts what one datagram carried.
type McxStats struct {
	Headers      int
	Resets       int
	Snapshots    int
	Incrementals int
	Other        int
}

// McxDecoder turns a FAST datagram into per-instrument depth messages. It
// keeps the FAST dictionary across datagrams and must be driven by a
// single goroutine.
type McxDecoder struct {
	dec *fast.Decoder
}

// NewMcxDecoder creates a decoder over a parsed template set.
func NewMcxDecoder(ts *fast.Templates) *McxDecoder {
	return &McxDecoder{dec: fast.NewDecoder(ts)}
}

// Decode walks every message in b and reports depth messages through emit
// in stream order. A decode error stops the walk; messages already emitted
// stand.
func (d *McxDecoder) Decode(b []byte, emit func(orderbook.Message)) (McxStats, error) {
	var st McxStats
	for len(b) > 0 {
		msg, n, err := d.dec.Decode(b)
		if err != nil {
			return st, domain.NewDecodeError(domain.MCX, 0, err)
		}
		b = b[n:]

		switch ClassifyMCX(msg) {
		case McxHeader:
			st.Headers++
		case McxReset:
			st.Resets++
			d.dec.Reset()
		case McxSnapshot:
			snap, err := SnapshotFrom(msg.Fields)
			if err != nil {
				return st, domain.NewDecodeError(domain.MCX, int32(msg.TemplateID), err)
			}
			st.Snapshots++
			emit(snap)
		case McxIncremental:
			st.Incrementals++
			for _, inc := range IncrementalsFrom(msg.Fields) {
				emit(inc)
			}
		default:
			st.Other++
		}
	}
	return st, nil
}

var errNoSecurity = errors.New("missing SecurityID")

// SnapshotFrom builds a snapshot from DepthSnapshot fields.
func SnapshotFrom(g fast.Group) (*orderbook.Snapshot, error) {
	id, ok := intField(g, "SecurityID")
	if !ok {
		return nil, errNoSecurity
	}
	s := &orderbook.Snapshot{SecurityID: id}
	if v, ok := intField(g, "MsgSeqNum"); ok {
		s.MsgSeqNum = uint32(v)
	}
	if v, ok := intField(g, "LastMsgSeqNumProcessed"); ok {
		s.LastMsgSeqNumProcessed = uint32(v)
	}
	s.LastUpdateTime, _ = intField(g, "LastUpdateTime")
	s.TotalBuyQty, _ = decField(g, "TotalBuyQuantity")
	s.TotalSellQty, _ = decField(g, "TotalSellQuantity")

	rows := g.Sequence("MDSshGrp")
	s.Entries = make([]orderbook.Entry, 0, len(rows))
	for i, row := range rows {
		t, ok := intField(row, "MDEntryType")
		if !ok {
			return nil, fmt.Errorf("MDSshGrp[%d]: missing MDEntryType", i)
		}
		e := orderbook.Entry{Type: orderbook.EntryType(t)}
		if v, ok := intField(row, "MDPriceLevel"); ok {
			e.Level = int32(v)
		}
		e.Price, _ = decField(row, "MDEntryPx")
		e.Size, _ = decField(row, "MDEntrySize")
		e.AvgPrice, _ = decField(row, "AverageTradedPrice")
		if v, ok := intField(row, "NumberOfOrders"); ok {
			e.Orders = int32(v)
		}
		e.Time, _ = intField(row, "MDEntryTime")
		if v, ok := intField(row, "TradeCondition"); ok {
			e.TradeCondition = uint64(v)
		}
		if v, ok := intField(row, "PotentialSecurityTradingEvent"); ok {
			e.PotentialEvent = uint32(v)
		}
		if v, ok := intField(row, "QuoteCondition"); ok {
			e.QuoteCondition = uint32(v)
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

// IncrementalsFrom splits a DepthIncremental into one message per
// security, ordered by first appearance. Entries keep wire order.
func IncrementalsFrom(g fast.Group) []*orderbook.Incremental {
	var seq uint32
	if v, ok := intField(g, "MsgSeqNum"); ok {
		seq = uint32(v)
	}
	var out []*orderbook.Incremental
	index := make(map[int64]int)
	for _, row := range g.Sequence("MDIncGrp") {
		id, ok := intField(row, "SecurityID")
		if !ok {
			continue
		}
		i, seen := index[id]
		if !seen {
			i = len(out)
			index[id] = i
			out = append(out, &orderbook.Incremental{SecurityID: id, MsgSeqNum: seq})
		}
		out[i].Updates = append(out[i].Updates, updateFrom(row))
	}
	return out
}

func updateFrom(row fast.Group) orderbook.Update {
	var u orderbook.Update
	if v, ok := intField(row, "MDUpdateAction"); ok {
		u.Action = orderbook.UpdateAction(v)
	}
	if v, ok := intField(row, "MDEntryType"); ok {
		u.Type = orderbook.EntryType(v)
	}
	if v, ok := intField(row, "MDPriceLevel"); ok {
		u.Level = int32(v)
	}
	u.Price = optDec(row, "MDEntryPx")
	u.Size = optDec(row, "MDEntrySize")
	u.TotalBuyQty = optDec(row, "TotalBuyQuantity")
	u.TotalSellQty = optDec(row, "TotalSellQuantity")
	if v, ok := intField(row, "NumberOfOrders"); ok {
		n := int32(v)
		u.Orders = &n
	}
	if v, ok := intField(row, "MDEntryTime"); ok {
		u.Time = &v
	}
	if v, ok := intField(row, "PotentialSecurityTradingEvent"); ok {
		n := uint32(v)
		u.PotentialEvent = &n
	}
	if v, ok := intField(row, "QuoteCondition"); ok {
		n := uint32(v)
		u.QuoteCondition = &n
	}
	if trade, ok := row.Group("TradeEntryGrp"); ok {
		if v, ok := intField(trade, "TradeCondition"); ok {
			c := uint64(v)
			u.TradeCondition = &c
		}
		u.AvgPrice = optDec(trade, "AverageTradedPrice")
	}
	return u
}

// intField reads an integer regardless of the template's signedness.
func intField(g fast.Group, name string) (int64, bool) {
	if v, ok := g.Int(name); ok {
		return v, true
	}
	if v, ok := g.Uint(name); ok {
		return int64(v), true
	}
	return 0, false
}

// decField reads a decimal, accepting integer-typed templates.
func decField(g fast.Group, name string) (decimal.Decimal, bool) {
	if v, ok := g.Decimal(name); ok {
		return v, true
	}
	if v, ok := intField(g, name); ok {
		return decimal.NewFromInt(v), true
	}
	return decimal.Zero, false
}

func optDec(g fast.Group, name string) *decimal.Decimal {
	if v, ok := decField(g, name); ok {
		return &v
	}
	return nil
}
