package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feed_go/internal/codec/fast"
	"feed_go/internal/distributor"
	"feed_go/internal/domain"
	"feed_go/internal/engine"
	"feed_go/internal/infra"
	"feed_go/internal/infra/input"
	"feed_go/internal/infra/output"
	"feed_go/internal/worker"
)

// Pipeline is the running feed handler: input reader, distributor,
// scheduler and output fan-out.
type Pipeline struct {
	cfg     *infra.Config
	metrics *infra.Metrics

	Ingest      *engine.Queue[*domain.Packet]
	Dispatcher  *engine.Dispatcher
	Distributor *distributor.Distributor
	Scheduler   *engine.Scheduler
	Output      *output.Fanout

	reader *input.Reader
	wg     sync.WaitGroup
}

// NewPipeline builds every stage but starts nothing.
func NewPipeline(cfg *infra.Config, metrics *infra.Metrics, lookup domain.InstrumentLookup) (*Pipeline, error) {
	ex := cfg.ExchangeID()

	out, err := buildOutput(cfg, metrics, lookup)
	if err != nil {
		return nil, err
	}

	proc, err := worker.New(ex, metrics)
	if err != nil {
		out.Close()
		return nil, err
	}

	var opts distributor.Options
	opts.IdleSpins = cfg.Engine.IdleSpins
	if ex == domain.MCX {
		ts, err := fast.LoadTemplates(cfg.MCX.FastTemplate)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("load FAST templates: %w", err)
		}
		slog.Info("FAST templates loaded", slog.Int("templates", ts.Len()))
		opts.Templates = ts
	}

	p := &Pipeline{
		cfg:     cfg,
		metrics: metrics,
		Ingest:  engine.NewQueue[*domain.Packet](),
		Output:  out,
	}
	p.Dispatcher = engine.NewDispatcher(engine.NewRegistry(), proc, out, metrics)
	p.Distributor, err = distributor.New(ex, p.Ingest, p.Dispatcher, metrics, opts)
	if err != nil {
		out.Close()
		return nil, err
	}
	p.Scheduler = engine.NewScheduler(p.Dispatcher, cfg.Engine.Workers, cfg.Engine.IdleSpins)

	p.reader, err = input.NewReader(input.ConfigFrom(cfg), p.Ingest, metrics)
	if err != nil {
		out.Close()
		return nil, err
	}
	return p, nil
}

func buildOutput(cfg *infra.Config, metrics *infra.Metrics, lookup domain.InstrumentLookup) (*output.Fanout, error) {
	f := output.NewFanout(metrics)
	for _, t := range cfg.Output.Targets {
		var s domain.Sink
		switch t {
		case infra.TargetUDP:
			udp, err := output.NewUDPSink(cfg.Output.UDP.String())
			if err != nil {
				f.Close()
				return nil, err
			}
			s = udp
		case infra.TargetKafka:
			k := cfg.Output.Kafka
			kafka, err := output.NewKafkaSink(output.KafkaConfig{
				Brokers:   k.Brokers,
				Topic:     k.Topic,
				Partition: k.Partition,
				ClientID:  k.ClientID,
			}, metrics)
			if err != nil {
				f.Close()
				return nil, err
			}
			s = kafka
		case infra.TargetWS:
			hub := output.NewWSHub(cfg.ExchangeID(), lookup, metrics)
			if err := hub.Start(cfg.Output.WS.Addr); err != nil {
				f.Close()
				return nil, err
			}
			s = hub
		case infra.TargetStdout:
			s = output.NewStdoutSink(nil, lookup)
		case infra.TargetCounter:
			s = output.NewCounterSink(cfg.Output.Counter.Steps)
		}
		f.Add(s)
		slog.Info("Output enabled", slog.String("sink", s.Name()))
	}
	return f, nil
}

// Start launches the scheduler, distributor and input reader.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.Scheduler.Run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.Distributor.Run(ctx)
	}()
	p.reader.Start(ctx)
}

// Err fires when the input stops for good. The process should shut down
// since no more data will arrive.
func (p *Pipeline) Err() <-chan error {
	return p.reader.Err()
}

// Wait blocks until every stage has stopped, then closes the sinks.
func (p *Pipeline) Wait() {
	p.reader.Close()
	p.wg.Wait()
	if err := p.Output.Close(); err != nil {
		slog.Warn("Output close failed", slog.Any("error", err))
	}
}

// LogStats writes a statistics line every interval until ctx is done.
func LogStats(ctx context.Context, m *infra.Metrics, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Snapshot()
			slog.Info("Feed statistics",
				slog.Uint64("udp_packets", s.UDPPackets),
				slog.Uint64("filtered", s.FilteredPackets),
				slog.Uint64("mbp", s.MBPPackets),
				slog.Uint64("other", s.OtherPackets),
				slog.Uint64("decode_errors", s.DecodeErrors),
				slog.Uint64("coalesced", s.Coalesced),
				slog.Uint64("stale", s.StaleDrops),
				slog.Uint64("records_out", s.RecordsOut),
				slog.Uint64("sink_errors", s.SinkErrors),
				slog.Uint64("failovers", s.Failovers),
				slog.Int64("avg_latency_ns", s.AvgLatencyNs),
				slog.Int("ws_clients", int(s.WSClients)),
			)
		}
	}
}
