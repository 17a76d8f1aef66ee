// Package distributor classifies ingested datagrams and hands the
// resulting units of work to the dispatcher.
package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"feed_go/internal/codec/fast"
	"feed_go/internal/domain"
	"feed_go/internal/engine"
	"feed_go/internal/infra"
)

const (
	defaultIdleSpins = 64
	idleSleep        = 50 * time.Microsecond
)

// Strategy splits one datagram into dispatchable work. Distribute takes
// ownership of p and must release or forward it exactly once.
type Strategy interface {
	Distribute(p *domain.Packet) error
}

// Distributor drains the ingestion queue through a Strategy. Run is the
// only consumer of the queue.
type Distributor struct {
	in        *engine.Queue[*domain.Packet]
	strategy  Strategy
	metrics   *infra.Metrics
	idleSpins int
}

// Options carries exchange specific parameters.
type Options struct {
	Templates *fast.Templates // required for MCX
	IdleSpins int
}

// New builds the distributor for ex.
func New(ex domain.Exchange, in *engine.Queue[*domain.Packet], d *engine.Dispatcher, metrics *infra.Metrics, opts Options) (*Distributor, error) {
	var s Strategy
	switch {
	case ex.IsNSE():
		s = NewNSE(d)
	case ex == domain.BSE:
		s = NewBSE(d)
	case ex == domain.MCX:
		if opts.Templates == nil {
			return nil, fmt.Errorf("distributor: %s requires FAST templates", ex)
		}
		s = NewMCX(opts.Templates, d, metrics)
	default:
		return nil, fmt.Errorf("distributor: unsupported exchange %q", ex)
	}
	return NewWithStrategy(in, s, metrics, opts.IdleSpins), nil
}

// NewWithStrategy wires a distributor around an arbitrary strategy.
func NewWithStrategy(in *engine.Queue[*domain.Packet], s Strategy, metrics *infra.Metrics, idleSpins int) *Distributor {
	if idleSpins <= 0 {
		idleSpins = defaultIdleSpins
	}
	return &Distributor{in: in, strategy: s, metrics: metrics, idleSpins: idleSpins}
}

// Run polls the ingestion queue until ctx is cancelled.
func (d *Distributor) Run(ctx context.Context) {
	slog.Info("Distributor started")
	defer slog.Info("Distributor stopped")

	done := ctx.Done()
	misses := 0
	for {
		select {
		case <-done:
			return
		default:
		}

		p, ok := d.in.Pop()
		if !ok {
			misses++
			if misses < d.idleSpins {
				runtime.Gosched()
			} else {
				time.Sleep(idleSleep)
			}
			continue
		}
		misses = 0
		d.Step(p)
	}
}

// Step distributes a single packet. A panicking strategy costs the packet,
// not the distributor.
func (d *Distributor) Step(p *domain.Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordPanic()
			slog.Error("Distribution panicked", slog.Any("panic", fmt.Sprint(r)))
		}
	}()

	if err := d.strategy.Distribute(p); err != nil {
		d.metrics.RecordDecodeError()
		slog.Debug("Dropped malformed datagram", slog.Any("error", err))
	}
}
