package domain

import (
	"encoding/binary"
	"fmt"
)

// Message codes that produce a MarketPicture.
const (
	CodeBseMBP        int32 = 2020
	CodeBseComplexMBP int32 = 2021
	CodeBseDebtMBP    int32 = 2033
	CodeNseMboMbp     int32 = 7200
	CodeNseOnlyMBP    int32 = 7208
	CodeNseOnlyMBPEq  int32 = 18705
	CodeMcxSnapshot   int32 = 93
)

// MaxDepth bounds the number of depth levels carried by a picture.
const MaxDepth = 200

const (
	headerSize     = 44
	pictureFixed   = headerSize + 86
	depthLevelSize = 14
)

// MessageHeader mirrors the exchange broadcast header of a picture.
type MessageHeader struct {
	MessageCode     int32   `json:"message_code"`
	TransactionType int16   `json:"transaction_type"`
	LogTime         int32   `json:"log_time"`
	AlphaChar       [2]byte `json:"-"`
	TraderID        int32   `json:"trader_id"`
	ErrorCode       int16   `json:"error_code"`
	Timestamp       uint64  `json:"timestamp"`
	Timestamp1      [8]byte `json:"-"`
	Timestamp2      [8]byte `json:"-"`
	MessageLength   int16   `json:"message_length"`
}

// DepthLevel is one price point. Prices are in paise (x100).
type DepthLevel struct {
	Qty    int64 `json:"qty"`
	Price  int32 `json:"price"`
	Orders int16 `json:"orders"`
}

// MarketPicture is the normalized record published for every instrument
// update. Depth holds BuyDepthCount buy levels followed by SellDepthCount
// sell levels.
type MarketPicture struct {
	Header               MessageHeader `json:"header"`
	Token                int64         `json:"token"`
	TotalBuyQty          int64         `json:"total_buy_qty"`
	TotalSellQty         int64         `json:"total_sell_qty"`
	VolumeTradedToday    int64         `json:"volume_traded_today"`
	OpenPrice            int32         `json:"open_price"`
	ClosePrice           int32         `json:"close_price"`
	HighPrice            int32         `json:"high_price"`
	LowPrice             int32         `json:"low_price"`
	LTP                  int32         `json:"ltp"`
	LTQ                  int32         `json:"ltq"`
	LTT                  int32         `json:"ltt"`
	ATP                  int32         `json:"atp"`
	IndicativeClosePrice int32         `json:"indicative_close_price"`
	LUT                  int64         `json:"lut"`
	BuyDepthCount        int32         `json:"buy_depth_count"`
	SellDepthCount       int32         `json:"sell_depth_count"`
	TradingStatus        int16         `json:"trading_status"`
	Depth                []DepthLevel  `json:"depth"`
}

// Buy returns the buy side levels.
func (m *MarketPicture) Buy() []DepthLevel {
	n := min(int(m.BuyDepthCount), len(m.Depth))
	return m.Depth[:n]
}

// Sell returns the sell side levels.
func (m *MarketPicture) Sell() []DepthLevel {
	start := min(int(m.BuyDepthCount), len(m.Depth))
	end := min(start+int(m.SellDepthCount), len(m.Depth))
	return m.Depth[start:end]
}

// EncodedLen is the size of the binary encoding.
func (m *MarketPicture) EncodedLen() int {
	return pictureFixed + depthLevelSize*min(len(m.Depth), MaxDepth)
}

// MarshalBinary encodes the picture little-endian, carrying only the
// populated depth levels. Header.MessageLength is set to the encoded size.
func (m *MarketPicture) MarshalBinary() ([]byte, error) {
	levels := m.Depth
	if len(levels) > MaxDepth {
		levels = levels[:MaxDepth]
	}
	m.Header.MessageLength = int16(m.EncodedLen())

	le := binary.LittleEndian
	b := make([]byte, 0, m.EncodedLen())
	h := &m.Header
	b = le.AppendUint32(b, uint32(h.MessageCode))
	b = le.AppendUint16(b, uint16(h.TransactionType))
	b = le.AppendUint32(b, uint32(h.LogTime))
	b = append(b, h.AlphaChar[:]...)
	b = le.AppendUint32(b, uint32(h.TraderID))
	b = le.AppendUint16(b, uint16(h.ErrorCode))
	b = le.AppendUint64(b, h.Timestamp)
	b = append(b, h.Timestamp1[:]...)
	b = append(b, h.Timestamp2[:]...)
	b = le.AppendUint16(b, uint16(h.MessageLength))

	b = le.AppendUint64(b, uint64(m.Token))
	b = le.AppendUint64(b, uint64(m.TotalBuyQty))
	b = le.AppendUint64(b, uint64(m.TotalSellQty))
	b = le.AppendUint64(b, uint64(m.VolumeTradedToday))
	for _, v := range [...]int32{m.OpenPrice, m.ClosePrice, m.HighPrice, m.LowPrice, m.LTP, m.LTQ, m.LTT, m.ATP, m.IndicativeClosePrice} {
		b = le.AppendUint32(b, uint32(v))
	}
	b = le.AppendUint64(b, uint64(m.LUT))
	b = le.AppendUint32(b, uint32(m.BuyDepthCount))
	b = le.AppendUint32(b, uint32(m.SellDepthCount))
	b = le.AppendUint16(b, uint16(m.TradingStatus))
	for _, l := range levels {
		b = le.AppendUint64(b, uint64(l.Qty))
		b = le.AppendUint32(b, uint32(l.Price))
		b = le.AppendUint16(b, uint16(l.Orders))
	}
	return b, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (m *MarketPicture) UnmarshalBinary(b []byte) error {
	if len(b) < pictureFixed {
		return fmt.Errorf("market picture: %w: %d bytes", ErrShortPacket, len(b))
	}
	le := binary.LittleEndian
	h := &m.Header
	h.MessageCode = int32(le.Uint32(b[0:]))
	h.TransactionType = int16(le.Uint16(b[4:]))
	h.LogTime = int32(le.Uint32(b[6:]))
	copy(h.AlphaChar[:], b[10:12])
	h.TraderID = int32(le.Uint32(b[12:]))
	h.ErrorCode = int16(le.Uint16(b[16:]))
	h.Timestamp = le.Uint64(b[18:])
	copy(h.Timestamp1[:], b[26:34])
	copy(h.Timestamp2[:], b[34:42])
	h.MessageLength = int16(le.Uint16(b[42:]))

	o := headerSize
	m.Token = int64(le.Uint64(b[o:]))
	m.TotalBuyQty = int64(le.Uint64(b[o+8:]))
	m.TotalSellQty = int64(le.Uint64(b[o+16:]))
	m.VolumeTradedToday = int64(le.Uint64(b[o+24:]))
	o += 32
	prices := [...]*int32{&m.OpenPrice, &m.ClosePrice, &m.HighPrice, &m.LowPrice, &m.LTP, &m.LTQ, &m.LTT, &m.ATP, &m.IndicativeClosePrice}
	for _, p := range prices {
		*p = int32(le.Uint32(b[o:]))
		o += 4
	}
	m.LUT = int64(le.Uint64(b[o:]))
	m.BuyDepthCount = int32(le.Uint32(b[o+8:]))
	m.SellDepthCount = int32(le.Uint32(b[o+12:]))
	m.TradingStatus = int16(le.Uint16(b[o+16:]))
	o += 18

	n := (len(b) - o) / depthLevelSize
	m.Depth = make([]DepthLevel, 0, n)
	for i := 0; i < n; i++ {
		m.Depth = append(m.Depth, DepthLevel{
			Qty:    int64(le.Uint64(b[o:])),
			Price:  int32(le.Uint32(b[o+8:])),
			Orders: int16(le.Uint16(b[o+12:])),
		})
		o += depthLevelSize
	}
	return nil
}
