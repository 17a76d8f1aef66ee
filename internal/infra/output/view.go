package output

import (
	"slices"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

// levelView is a depth level with the price in rupees.
type levelView struct {
	Price  decimal.Decimal `json:"price"`
	Qty    int64           `json:"qty"`
	Orders int16           `json:"orders"`
}

// pictureView is the JSON form of a market picture published to humans
// and browsers.
type pictureView struct {
	Exchange     string          `json:"exchange"`
	Code         int32           `json:"code"`
	Token        int64           `json:"token"`
	Symbol       string          `json:"symbol,omitempty"`
	LTP          decimal.Decimal `json:"ltp"`
	LTQ          int32           `json:"ltq"`
	LTT          int32           `json:"ltt"`
	ATP          decimal.Decimal `json:"atp"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       int64           `json:"volume"`
	TotalBuyQty  int64           `json:"total_buy_qty"`
	TotalSellQty int64           `json:"total_sell_qty"`
	Timestamp    uint64          `json:"timestamp"`
	Bids         []levelView     `json:"bids"`
	Asks         []levelView     `json:"asks"`
}

// recordView is the JSON form of a record without a picture.
type recordView struct {
	Exchange string `json:"exchange"`
	Code     int32  `json:"code"`
	Token    int64  `json:"token,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Size     int    `json:"size"`
}

func rupees(paise int32) decimal.Decimal {
	return decimal.New(int64(paise), -2)
}

func levels(ls []domain.DepthLevel) []levelView {
	out := make([]levelView, len(ls))
	for i, l := range ls {
		out[i] = levelView{Price: rupees(l.Price), Qty: l.Qty, Orders: l.Orders}
	}
	return out
}

// viewOf renders rec for JSON output. The symbol comes from lookup when
// one is configured.
func viewOf(rec *domain.Record, lookup domain.InstrumentLookup) any {
	var sym string
	if lookup != nil {
		sym, _ = lookup.Symbol(rec.Token)
	}

	pic := rec.Picture
	if pic == nil {
		return recordView{
			Exchange: string(rec.Exchange),
			Code:     rec.Code,
			Token:    rec.Token,
			Symbol:   sym,
			Size:     len(rec.Payload),
		}
	}
	return pictureView{
		Exchange:     string(rec.Exchange),
		Code:         rec.Code,
		Token:        pic.Token,
		Symbol:       sym,
		LTP:          rupees(pic.LTP),
		LTQ:          pic.LTQ,
		LTT:          pic.LTT,
		ATP:          rupees(pic.ATP),
		Open:         rupees(pic.OpenPrice),
		High:         rupees(pic.HighPrice),
		Low:          rupees(pic.LowPrice),
		Close:        rupees(pic.ClosePrice),
		Volume:       pic.VolumeTradedToday,
		TotalBuyQty:  pic.TotalBuyQty,
		TotalSellQty: pic.TotalSellQty,
		Timestamp:    pic.Header.Timestamp,
		Bids:         levels(pic.Buy()),
		Asks:         levels(pic.Sell()),
	}
}

// displayFilter reports whether a record belongs on the display feed of ex.
func displayFilter(ex domain.Exchange) func(*domain.Record) bool {
	codes := ex.DisplayCodes()
	return func(rec *domain.Record) bool {
		return rec.Picture != nil && slices.Contains(codes, rec.Code)
	}
}
