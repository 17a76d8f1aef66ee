// Package worker holds the processing functions run by the scheduler's
// workers: packet decoding and depth book application.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed_go/internal/codec"
	"feed_go/internal/domain"
	"feed_go/internal/infra"
	"feed_go/internal/orderbook"
)

// Processor decodes packets for one exchange. Decoders are stateless, so
// a single Processor serves every worker.
type Processor struct {
	ex      domain.Exchange
	nse     *codec.NseDecoder
	bse     *codec.BseDecoder
	metrics *infra.Metrics
	now     func() time.Time
}

// New returns the processor for ex.
func New(ex domain.Exchange, metrics *infra.Metrics) (*Processor, error) {
	p := &Processor{ex: ex, metrics: metrics, now: time.Now}
	switch {
	case ex.IsNSE():
		d, err := codec.NewNseDecoder(ex)
		if err != nil {
			return nil, err
		}
		p.nse = d
	case ex == domain.BSE:
		p.bse = codec.NewBseDecoder()
	case ex == domain.MCX:
		// depth messages arrive decoded through ProcessBook
	default:
		return nil, fmt.Errorf("worker: unsupported exchange %q", ex)
	}
	return p, nil
}

// Process decodes one packet into records.
func (p *Processor) Process(wt domain.WorkType, pkt *domain.Packet) ([]*domain.Record, error) {
	var recs []*domain.Record
	var err error
	switch wt.Kind {
	case domain.NseUncompressed, domain.SegmentWise, domain.TokenWise:
		if p.nse == nil {
			return nil, fmt.Errorf("%s packet on %s feed", wt, p.ex)
		}
		recs, err = p.nse.Decode(pkt.Bytes())
	case domain.BseCompressed, domain.BseUncompressed:
		if p.bse == nil {
			return nil, fmt.Errorf("%s packet on %s feed", wt, p.ex)
		}
		recs, err = p.bse.Decode(pkt.Bytes())
	default:
		return nil, fmt.Errorf("no packet processor for %s", wt)
	}
	if err != nil {
		return nil, err
	}
	p.count(recs)
	return recs, nil
}

func (p *Processor) count(recs []*domain.Record) {
	for _, r := range recs {
		if r.Picture != nil {
			p.metrics.RecordMBP()
			return
		}
	}
	p.metrics.RecordOther()
}

// ProcessBook applies a depth message and renders the published book.
// Trades that match no price level are logged and otherwise ignored.
func (p *Processor) ProcessBook(inst *orderbook.Instrument, msg orderbook.Message) (*domain.Record, error) {
	book, err := inst.Apply(msg)
	if book == nil {
		return nil, err
	}
	err = dropUnmatchedTrades(err, inst.ID)

	rec, encErr := domain.NewPictureRecord(domain.MCX, orderbook.ToPicture(book, p.now()))
	if encErr != nil {
		return nil, errors.Join(err, encErr)
	}
	p.metrics.RecordMBP()
	return rec, err
}

func dropUnmatchedTrades(err error, security int64) error {
	if err == nil {
		return nil
	}
	var kept []error
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	for _, e := range errs {
		if errors.Is(e, domain.ErrNoMatchingPrice) {
			slog.Debug("Trade matched no depth level", slog.Int64("security", security), slog.Any("error", e))
			continue
		}
		kept = append(kept, e)
	}
	return errors.Join(kept...)
}
