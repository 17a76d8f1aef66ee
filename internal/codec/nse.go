package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"feed_go/internal/domain"
)

const (
	// NseHeaderSize is the size of the broadcast header that follows the
	// skip bytes of every NSE message.
	NseHeaderSize = 40

	maxSubMessages = 12
	packDataHeader = 4
	mbpLevels      = 10
	pictureLevels  = 5
)

// BcastHeader is the common header of NSE broadcast messages.
type BcastHeader struct {
	LogTime       int32
	AlphaChar     [2]byte
	TransCode     int16
	ErrorCode     int16
	BcSeqNo       int32
	Timestamp2    [8]byte
	Filler2       [8]byte
	MessageLength int16
}

// ParseBcastHeader reads the header at the start of b.
func ParseBcastHeader(b []byte) (BcastHeader, error) {
	var h BcastHeader
	c := cursor{b: b}
	c.skip(4)
	h.LogTime = c.i32()
	c.array(h.AlphaChar[:])
	h.TransCode = c.i16()
	h.ErrorCode = c.i16()
	h.BcSeqNo = c.i32()
	c.skip(4)
	c.array(h.Timestamp2[:])
	c.array(h.Filler2[:])
	h.MessageLength = c.i16()
	return h, c.err
}

// appendLE re-encodes the header little-endian so downstream consumers
// see one byte order regardless of exchange.
func (h *BcastHeader) appendLE(b []byte) []byte {
	le := binary.LittleEndian
	b = append(b, 0, 0, 0, 0)
	b = le.AppendUint32(b, uint32(h.LogTime))
	b = append(b, h.AlphaChar[:]...)
	b = le.AppendUint16(b, uint16(h.TransCode))
	b = le.AppendUint16(b, uint16(h.ErrorCode))
	b = le.AppendUint32(b, uint32(h.BcSeqNo))
	b = append(b, 0, 0, 0, 0)
	b = append(b, h.Timestamp2[:]...)
	b = append(b, h.Filler2[:]...)
	return le.AppendUint16(b, uint16(h.MessageLength))
}

// NseUnpacker splits a PackData datagram into its inner messages. Each
// inner message starts with the skip bytes followed by a BcastHeader.
// An unpacker owns a scratch buffer and must not be shared.
type NseUnpacker struct {
	scratch []byte
}

// NewNseUnpacker creates an unpacker with its own decompression buffer.
func NewNseUnpacker() *NseUnpacker {
	return &NseUnpacker{scratch: make([]byte, domain.BufSize)}
}

// Unpack walks the sub-messages of b and calls emit for each one with its
// classification. The slice handed to emit is only valid during the call.
// A compressed sub-message that fails to decompress or classify is skipped
// and its error joined into the result. Broken framing ends the walk;
// messages already emitted stand.
func (u *NseUnpacker) Unpack(b []byte, emit func(msg []byte, wt domain.WorkType)) (int, error) {
	if len(b) < packDataHeader {
		return 0, fmt.Errorf("pack data: %w", domain.ErrShortPacket)
	}
	count := int(be.Uint16(b[2:]))
	if count > maxSubMessages {
		count = maxSubMessages
	}
	data := b[packDataHeader:]
	off, n := 0, 0
	var errs []error
	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			errs = append(errs, fmt.Errorf("sub-message %d: %w", i, domain.ErrShortPacket))
			break
		}
		clen := int(be.Uint16(data[off:]))
		body := data[off+2:]

		if clen == 0 {
			if len(body) < domain.SkipBytes+NseHeaderSize {
				errs = append(errs, fmt.Errorf("sub-message %d: %w", i, domain.ErrShortPacket))
				break
			}
			h, _ := ParseBcastHeader(body[domain.SkipBytes:])
			mlen := int(h.MessageLength)
			if mlen < NseHeaderSize || domain.SkipBytes+mlen > len(body) {
				errs = append(errs, fmt.Errorf("sub-message %d: message length %d: %w", i, mlen, domain.ErrShortPacket))
				break
			}
			emit(body[:domain.SkipBytes+mlen], domain.Of(domain.NseUncompressed))
			off += mlen + domain.SkipBytes + 2 + 2
			n++
			continue
		}

		if clen > len(body) {
			errs = append(errs, fmt.Errorf("sub-message %d: compressed length %d: %w", i, clen, domain.ErrShortPacket))
			break
		}
		off += clen + 2
		msg, err := DecompressLZO(body[:clen], u.scratch)
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-message %d: %w", i, err))
			continue
		}
		wt, err := classifyNse(msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-message %d: %w", i, err))
			continue
		}
		emit(msg, wt)
		n++
	}
	return n, errors.Join(errs...)
}

// classifyNse keys only-MBP messages by token and everything else by the
// segment byte carried in filler2.
func classifyNse(msg []byte) (domain.WorkType, error) {
	h, err := ParseBcastHeader(msg[min(domain.SkipBytes, len(msg)):])
	if err != nil {
		return domain.WorkType{}, err
	}
	if int32(h.TransCode) == domain.CodeNseOnlyMBP {
		at := domain.SkipBytes + NseHeaderSize + 2
		if len(msg) < at+4 {
			return domain.WorkType{}, domain.ErrShortPacket
		}
		return domain.Token(int32(be.Uint32(msg[at:]))), nil
	}
	return domain.Segment(h.Filler2[0]), nil
}

// mbpLayout describes where an exchange's MBP record differs from the
// equity cash layout.
type mbpLayout struct {
	records         bool // no_of_records precedes up to two records
	wideVolume      bool // i64 volume, otherwise u32
	wideLTT         bool // i64 last trade time, otherwise i32
	wideQty         bool // i64 level quantity, otherwise 32 bit
	floatTotals     bool // f64 total buy/sell quantity
	bbFlags         bool
	mboBlock        bool // 10 MBO rows precede the MBP levels
	indicativeClose bool
}

var (
	neqOnlyMBP   = mbpLayout{records: true, wideVolume: true, wideQty: true, bbFlags: true, indicativeClose: true}
	neqOnlyMBPEq = mbpLayout{records: true, bbFlags: true, floatTotals: true}
	neqMboMbp    = mbpLayout{wideVolume: true, bbFlags: true, mboBlock: true}
	derivOnlyMBP = mbpLayout{records: true, wideLTT: true, bbFlags: true, floatTotals: true}
	derivMboMbp  = mbpLayout{wideLTT: true, floatTotals: true, mboBlock: true}
)

const mboRowSize = 18

var neqCodes = codeSet(5294, 6501, 6511, 6521, 6531, 6571, 6581, 7200, 7201, 7206, 7207, 7208, 7210,
	7214, 7215, 7216, 7306, 7764, 8207, 9010, 9011, 18130, 18201, 18700, 18703, 18705, 18707, 18708, 18720)

var nfoCodes = codeSet(5294, 6013, 6501, 6511, 6521, 6531, 6541, 6571, 7130, 7200, 7201, 7202, 7203,
	7206, 7208, 7210, 7211, 7220, 7305, 7306, 7320, 7324, 7340, 7341, 9010, 9011)

var ncdCodes = codeSet(5294, 6013, 6501, 6503, 6511, 6521, 6522, 6531, 6541, 6571, 7130, 7200, 7201,
	7202, 7203, 7206, 7208, 7210, 7211, 7213, 7214, 7215, 7216, 7220, 7305, 7306, 7320, 7324, 7340, 7341, 9010, 9011)

func codeSet(codes ...int16) map[int16]struct{} {
	m := make(map[int16]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// NseDecoder turns inner NSE messages into records for one exchange.
type NseDecoder struct {
	ex      domain.Exchange
	known   map[int16]struct{}
	layouts map[int32]mbpLayout
	now     func() time.Time
}

// NewNseDecoder returns a decoder for NEQ, NFO or NCD.
func NewNseDecoder(ex domain.Exchange) (*NseDecoder, error) {
	d := &NseDecoder{ex: ex, now: time.Now}
	switch ex {
	case domain.NEQ:
		d.known = neqCodes
		d.layouts = map[int32]mbpLayout{
			domain.CodeNseOnlyMBP:   neqOnlyMBP,
			domain.CodeNseOnlyMBPEq: neqOnlyMBPEq,
			domain.CodeNseMboMbp:    neqMboMbp,
		}
	case domain.NFO, domain.NCD:
		d.known = nfoCodes
		if ex == domain.NCD {
			d.known = ncdCodes
		}
		d.layouts = map[int32]mbpLayout{
			domain.CodeNseOnlyMBP: derivOnlyMBP,
			domain.CodeNseMboMbp:  derivMboMbp,
		}
	default:
		return nil, fmt.Errorf("nse decoder: unsupported exchange %s", ex)
	}
	return d, nil
}

// IsMBP reports whether code decodes to market pictures.
func (d *NseDecoder) IsMBP(code int32) bool {
	_, ok := d.layouts[code]
	return ok
}

// Decode decodes one inner message (skip bytes included).
func (d *NseDecoder) Decode(msg []byte) ([]*domain.Record, error) {
	if len(msg) < domain.SkipBytes+NseHeaderSize {
		return nil, domain.NewDecodeError(d.ex, 0, domain.ErrShortPacket)
	}
	body := msg[domain.SkipBytes:]
	h, err := ParseBcastHeader(body)
	if err != nil {
		return nil, domain.NewDecodeError(d.ex, 0, err)
	}
	code := int32(h.TransCode)
	if _, ok := d.known[h.TransCode]; !ok {
		return nil, domain.NewDecodeError(d.ex, code, domain.ErrUnknownTransCode)
	}
	if layout, ok := d.layouts[code]; ok {
		recs, err := d.decodeMBP(&h, layout, body[NseHeaderSize:])
		if err != nil {
			return nil, domain.NewDecodeError(d.ex, code, err)
		}
		return recs, nil
	}

	payload := h.appendLE(make([]byte, 0, len(body)))
	payload = append(payload, body[NseHeaderSize:]...)
	rec := domain.NewRawRecord(d.ex, code, payload)
	return []*domain.Record{rec}, nil
}

func (d *NseDecoder) decodeMBP(h *BcastHeader, l mbpLayout, b []byte) ([]*domain.Record, error) {
	c := cursor{b: b}
	n := 1
	if l.records {
		n = int(c.i16())
		if n < 0 || n > 2 {
			return nil, fmt.Errorf("no_of_records %d out of range", n)
		}
	}
	now := d.now()
	recs := make([]*domain.Record, 0, n)
	for i := 0; i < n; i++ {
		pic := d.readMBP(&c, l)
		if c.err != nil {
			return nil, fmt.Errorf("record %d: %w", i, c.err)
		}
		pic.Header = domain.MessageHeader{
			MessageCode: int32(h.TransCode),
			LogTime:     h.LogTime,
			AlphaChar:   h.AlphaChar,
			ErrorCode:   h.ErrorCode,
			Timestamp:   uint64(now.UnixMicro()),
			Timestamp2:  h.Timestamp2,
		}
		rec, err := domain.NewPictureRecord(d.ex, pic)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (d *NseDecoder) readMBP(c *cursor, l mbpLayout) *domain.MarketPicture {
	p := &domain.MarketPicture{}
	p.Token = int64(c.i32())
	c.skip(2) // book type
	p.TradingStatus = c.i16()
	if l.wideVolume {
		p.VolumeTradedToday = c.i64()
	} else {
		p.VolumeTradedToday = int64(c.u32())
	}
	p.LTP = c.i32()
	c.skip(2) // net change indicator, padded
	c.skip(4) // net price change from close
	p.LTQ = c.i32()
	if l.wideLTT {
		p.LTT = int32(c.i64())
	} else {
		p.LTT = c.i32()
	}
	p.ATP = c.i32()
	c.skip(22) // auction block

	if l.mboBlock {
		c.skip(mbpLevels * mboRowSize)
	}

	var levels [mbpLevels]domain.DepthLevel
	for i := range levels {
		if l.wideQty {
			levels[i].Qty = c.i64()
		} else {
			levels[i].Qty = int64(c.u32())
		}
		levels[i].Price = c.i32()
		levels[i].Orders = c.i16()
		c.skip(2) // bb buy/sell flag
	}

	if l.bbFlags {
		c.skip(4)
	}
	if l.floatTotals {
		p.TotalBuyQty = int64(c.f64())
		p.TotalSellQty = int64(c.f64())
	} else {
		p.TotalBuyQty = c.i64()
		p.TotalSellQty = c.i64()
	}
	c.skip(2) // indicator
	p.ClosePrice = c.i32()
	p.OpenPrice = c.i32()
	p.HighPrice = c.i32()
	p.LowPrice = c.i32()
	if l.indicativeClose {
		p.IndicativeClosePrice = c.i32()
	}
	p.LUT = int64(p.LTT)

	p.Depth = make([]domain.DepthLevel, 0, 2*pictureLevels)
	for _, lv := range levels[:pictureLevels] {
		if lv.Qty != 0 || lv.Price != 0 {
			p.Depth = append(p.Depth, lv)
		}
	}
	p.BuyDepthCount = int32(len(p.Depth))
	for _, lv := range levels[pictureLevels:] {
		if lv.Qty != 0 || lv.Price != 0 {
			p.Depth = append(p.Depth, lv)
		}
	}
	p.SellDepthCount = int32(len(p.Depth)) - p.BuyDepthCount
	return p
}
