package codec

import (
	"errors"
	"fmt"
	"time"

	"feed_go/internal/domain"
)

// Sentinels of the BSE field-delta compression.
const (
	bestBidStop   = 32766
	bestOfferStop = -32766
	fieldEscape   = 32767
)

const (
	bseHeaderLen  = 28
	bseMaxRecords = 6
	bseMaxLevels  = 5
)

// bseLayout locates the uncompressed part of one MBP detail record.
type bseLayout struct {
	detailLen  int
	wideToken  bool // contract code is i64
	volumeAt   int
	sessionAt  int
	pointsAt   int
	tsAt       int
	closeAt    int
	ltqAt      int
	ltpAt      int
	sideFields int // compressed fields per level after the rate
	ordersIdx  int // index of the order count within the side fields
}

var bseLayouts = map[int32]bseLayout{
	domain.CodeBseMBP: {
		detailLen: 56, volumeAt: 8, sessionAt: 22, pointsAt: 34, tsAt: 36,
		closeAt: 44, ltqAt: 48, ltpAt: 52, sideFields: 3, ordersIdx: 1,
	},
	domain.CodeBseComplexMBP: {
		detailLen: 60, wideToken: true, volumeAt: 12, sessionAt: 26, pointsAt: 38, tsAt: 40,
		closeAt: 48, ltqAt: 52, ltpAt: 56, sideFields: 3, ordersIdx: 1,
	},
	domain.CodeBseDebtMBP: {
		detailLen: 68, volumeAt: 8, sessionAt: 22, pointsAt: 34, tsAt: 36,
		closeAt: 44, ltqAt: 60, ltpAt: 64, sideFields: 6, ordersIdx: 4,
	},
}

// ClassifyBSE reads the leading message code of a BSE packet.
func ClassifyBSE(b []byte) (domain.WorkType, int32, error) {
	if len(b) < 4 {
		return domain.WorkType{}, 0, domain.ErrShortPacket
	}
	code := int32(be.Uint32(b))
	if _, ok := bseLayouts[code]; ok {
		return domain.Of(domain.BseCompressed), code, nil
	}
	return domain.Of(domain.BseUncompressed), code, nil
}

// DecompressField decodes one delta-compressed field from the start of b
// and returns its value and the number of bytes consumed. Stop sentinels
// are returned unchanged; the escape value is followed by a full i32.
func DecompressField(b []byte, base int32) (int32, int, error) {
	c := cursor{b: b}
	v := c.field(base)
	return v, c.off, c.err
}

func (c *cursor) field(base int32) int32 {
	v := c.i16()
	switch v {
	case bestBidStop, bestOfferStop:
		return int32(v)
	case fieldEscape:
		return c.i32()
	default:
		return base + int32(v)
	}
}

// BseDecoder turns BSE packets into records.
type BseDecoder struct {
	now func() time.Time
}

// NewBseDecoder creates a BSE decoder stamping records with the wall clock.
func NewBseDecoder() *BseDecoder {
	return &BseDecoder{now: time.Now}
}

// Decode handles one BSE packet. Compressed market pictures yield one
// record per instrument; every other message is republished raw.
func (d *BseDecoder) Decode(b []byte) ([]*domain.Record, error) {
	wt, code, err := ClassifyBSE(b)
	if err != nil {
		return nil, domain.NewDecodeError(domain.BSE, code, err)
	}
	if wt.Kind == domain.BseUncompressed {
		return []*domain.Record{domain.NewRawRecord(domain.BSE, code, b)}, nil
	}
	recs, err := d.decodeMBP(code, b)
	if err != nil {
		return nil, domain.NewDecodeError(domain.BSE, code, err)
	}
	return recs, nil
}

var errPointsRange = errors.New("price points out of range")

type bseSide struct {
	rate   int32
	fields [6]int32
}

func (d *BseDecoder) decodeMBP(code int32, b []byte) ([]*domain.Record, error) {
	l := bseLayouts[code]
	if len(b) < bseHeaderLen {
		return nil, domain.ErrShortPacket
	}
	n := int(int16(be.Uint16(b[26:])))
	if n < 0 || n > bseMaxRecords {
		return nil, fmt.Errorf("no_of_records %d out of range", n)
	}

	c := cursor{b: b, off: bseHeaderLen}
	now := uint64(d.now().UnixMicro())
	recs := make([]*domain.Record, 0, n)
	for i := 0; i < n; i++ {
		pic := d.readDetail(&c, l)
		if c.err != nil {
			return nil, fmt.Errorf("record %d: %w", i, c.err)
		}
		pic.Header.MessageCode = code
		pic.Header.Timestamp = now
		rec, err := domain.NewPictureRecord(domain.BSE, pic)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (d *BseDecoder) readDetail(c *cursor, l bseLayout) *domain.MarketPicture {
	raw := c.take(l.detailLen)
	if raw == nil {
		return nil
	}
	p := &domain.MarketPicture{}
	if l.wideToken {
		p.Token = int64(be.Uint64(raw))
	} else {
		p.Token = int64(int32(be.Uint32(raw)))
	}
	p.VolumeTradedToday = int64(int32(be.Uint32(raw[l.volumeAt:])))
	p.TradingStatus = int16(be.Uint16(raw[l.sessionAt:]))
	points := int(int16(be.Uint16(raw[l.pointsAt:])))
	if points < 0 {
		c.err = fmt.Errorf("no_of_price_points %d: %w", points, errPointsRange)
		return nil
	}
	p.LUT = int64(be.Uint64(raw[l.tsAt:]))
	p.ClosePrice = int32(be.Uint32(raw[l.closeAt:]))
	ltq := int32(be.Uint32(raw[l.ltqAt:]))
	ltp := int32(be.Uint32(raw[l.ltpAt:]))
	p.LTQ, p.LTP = ltq, ltp

	p.OpenPrice = c.field(ltp)
	c.field(ltp) // previous close
	p.HighPrice = c.field(ltp)
	p.LowPrice = c.field(ltp)
	c.field(ltp) // block deal reference rate
	c.field(ltp) // indicative equilibrium price
	c.field(ltq) // indicative equilibrium quantity
	p.TotalBuyQty = int64(c.field(ltq))
	p.TotalSellQty = int64(c.field(ltq))
	c.field(ltp) // lower band
	c.field(ltp) // upper band
	p.ATP = c.field(ltp)

	buys := readSide(c, l, points, ltp, ltq, bestBidStop)
	sells := readSide(c, l, points, ltp, ltq, bestOfferStop)

	p.Depth = make([]domain.DepthLevel, 0, len(buys)+len(sells))
	for _, s := range buys {
		p.Depth = append(p.Depth, s.level(l))
	}
	for _, s := range sells {
		p.Depth = append(p.Depth, s.level(l))
	}
	p.BuyDepthCount = int32(len(buys))
	p.SellDepthCount = int32(len(sells))
	return p
}

// readSide decodes up to points levels. The first level is relative to the
// last trade, each later one to the level before it. A stop sentinel in
// place of a rate ends the side.
func readSide(c *cursor, l bseLayout, points int, ltp, ltq, stop int32) []bseSide {
	points = min(points, bseMaxLevels)
	out := make([]bseSide, 0, points)
	for i := 0; i < points; i++ {
		var s bseSide
		rateBase := ltp
		if i > 0 {
			rateBase = out[i-1].rate
		}
		s.rate = c.field(rateBase)
		if s.rate == stop || c.err != nil {
			break
		}
		for f := 0; f < l.sideFields; f++ {
			base := ltq
			if i > 0 {
				base = out[i-1].fields[f]
			}
			s.fields[f] = c.field(base)
		}
		out = append(out, s)
	}
	return out
}

func (s bseSide) level(l bseLayout) domain.DepthLevel {
	return domain.DepthLevel{
		Qty:    int64(s.fields[0]),
		Price:  s.rate,
		Orders: int16(s.fields[l.ordersIdx]),
	}
}
