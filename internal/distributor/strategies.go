package distributor

import (
	"feed_go/internal/codec"
	"feed_go/internal/codec/fast"
	"feed_go/internal/domain"
	"feed_go/internal/engine"
	"feed_go/internal/event"
	"feed_go/internal/infra"
	"feed_go/internal/orderbook"
)

// NSE un-multiplexes PackData datagrams. Each inner message is copied into
// its own packet; the datagram is released once walked.
type NSE struct {
	unpacker *codec.NseUnpacker
	d        *engine.Dispatcher
}

// NewNSE creates the NSE PackData strategy.
func NewNSE(d *engine.Dispatcher) *NSE {
	return &NSE{unpacker: codec.NewNseUnpacker(), d: d}
}

// Distribute dispatches every inner message of a PackData datagram. The
// datagram itself is always released.
func (s *NSE) Distribute(p *domain.Packet) error {
	defer event.ReleasePacket(p)
	_, err := s.unpacker.Unpack(p.Bytes(), func(msg []byte, wt domain.WorkType) {
		s.d.Dispatch(event.ClonePacket(msg), wt)
	})
	return err
}

// BSE forwards each datagram untouched, routed by its message code.
type BSE struct {
	d *engine.Dispatcher
}

// NewBSE creates the BSE strategy.
func NewBSE(d *engine.Dispatcher) *BSE {
	return &BSE{d: d}
}

// Distribute routes the datagram by its message code. An unclassifiable
// datagram is released and reported as a DecodeError.
func (s *BSE) Distribute(p *domain.Packet) error {
	wt, _, err := codec.ClassifyBSE(p.Bytes())
	if err != nil {
		event.ReleasePacket(p)
		return domain.NewDecodeError(domain.BSE, 0, err)
	}
	s.d.Dispatch(p, wt)
	return nil
}

// MCX decodes the FAST stream in place, since the decoder dictionary
// spans datagrams, and dispatches depth messages per security.
type MCX struct {
	dec     *codec.McxDecoder
	d       *engine.Dispatcher
	metrics *infra.Metrics
}

// NewMCX creates the MCX strategy with its own FAST dictionary.
func NewMCX(ts *fast.Templates, d *engine.Dispatcher, metrics *infra.Metrics) *MCX {
	return &MCX{dec: codec.NewMcxDecoder(ts), d: d, metrics: metrics}
}

// Distribute decodes every FAST message in the datagram and dispatches
// the depth updates.
func (s *MCX) Distribute(p *domain.Packet) error {
	defer event.ReleasePacket(p)
	st, err := s.dec.Decode(p.Bytes(), func(m orderbook.Message) {
		s.d.DispatchBook(m)
	})
	s.metrics.RecordOtherN(st.Other)
	return err
}
