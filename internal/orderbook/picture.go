package orderbook

import (
	"time"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

// paise converts a rupee price to the x100 integer used on the wire.
func paise(d decimal.Decimal) int32 {
	return int32(d.Shift(2).IntPart())
}

// ToPicture converts a book to the normalized record. Buy levels come
// first, then sell levels, each in book order.
func ToPicture(b *Book, now time.Time) *domain.MarketPicture {
	pic := &domain.MarketPicture{
		Header: domain.MessageHeader{
			MessageCode: domain.CodeMcxSnapshot,
			LogTime:     int32(b.SeqNo),
			Timestamp:   uint64(now.UnixMicro()),
		},
		Token:         b.SecurityID,
		TotalBuyQty:   b.TotalBuyQty.IntPart(),
		TotalSellQty:  b.TotalSellQty.IntPart(),
		LUT:           b.LastUpdateTime,
		TradingStatus: 1,
	}

	for _, e := range b.Entries {
		switch e.Type {
		case TradeVolume:
			pic.VolumeTradedToday = e.Size.IntPart()
			pic.ATP = paise(e.AvgPrice)
		case Trade:
			c := e.TradeCondition
			if c&ConditionLast != 0 {
				pic.LTP = paise(e.Price)
				pic.LTQ = int32(e.Size.IntPart())
				pic.LTT = int32(e.Time / int64(time.Second))
			}
			if c&ConditionOpen != 0 {
				pic.OpenPrice = paise(e.Price)
			}
			if c&ConditionHigh != 0 {
				pic.HighPrice = paise(e.Price)
			}
			if c&ConditionLow != 0 {
				pic.LowPrice = paise(e.Price)
			}
			if c&ConditionClose != 0 {
				pic.ClosePrice = paise(e.Price)
			}
		}
	}

	depth := make([]domain.DepthLevel, 0, len(b.Entries))
	for _, side := range [...]EntryType{Bid, Ask} {
		for _, e := range b.Entries {
			if e.Type != side || len(depth) == domain.MaxDepth {
				continue
			}
			depth = append(depth, domain.DepthLevel{
				Qty:    e.Size.IntPart(),
				Price:  paise(e.Price),
				Orders: int16(e.Orders),
			})
			if side == Bid {
				pic.BuyDepthCount++
			} else {
				pic.SellDepthCount++
			}
		}
	}
	pic.Depth = depth
	return pic
}
