// Package app is the composition root: it owns every shared resource
// and wires the feed pipeline together.
package app

import (
	"log/slog"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/event"
	"feed_go/internal/infra"
	"feed_go/internal/infra/storage"
)

// DefaultConfigPath is used when no path is given on the command line.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Metrics *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger and opens the
// instrument master.
func (b *Bootstrap) Initialize(path string) error {
	if path == "" {
		path = DefaultConfigPath
	}

	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping feed handler",
		slog.String("exchange", string(cfg.ExchangeID())),
		slog.String("config", path),
	)

	// 3. Instrument master
	store, err := storage.NewStorage(cfg.Storage.Path, cfg.ExchangeID())
	if err != nil {
		return err
	}
	b.Storage = store
	if err := b.seedInstruments(); err != nil {
		return err
	}

	// 4. Metrics and packet pool
	b.Metrics = infra.NewMetrics()
	event.Warmup(cfg.Engine.PoolWarm)

	return nil
}

// seedInstruments upserts configured instruments and loads the symbol cache.
func (b *Bootstrap) seedInstruments() error {
	now := time.Now()
	insts := make([]domain.Instrument, 0, len(b.Config.Instruments))
	for _, ic := range b.Config.Instruments {
		insts = append(insts, domain.Instrument{
			Token:     ic.Token,
			Symbol:    ic.Symbol,
			Name:      ic.Name,
			UpdatedAt: now,
		})
	}
	if err := b.Storage.Upsert(insts...); err != nil {
		return err
	}
	n, err := b.Storage.Load()
	if err != nil {
		return err
	}
	slog.Info("✅ Instrument master ready", slog.Int("instruments", n))
	return nil
}

// Close releases bootstrap resources.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Storage close failed", slog.Any("error", err))
		}
	}
}
