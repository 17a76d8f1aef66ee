package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feed_go/internal/app"
	"feed_go/internal/infra"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	path := app.DefaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(path); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return 1
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics + pprof server
	handler, err := infra.MetricsHandler(bootstrap.Metrics, string(cfg.ExchangeID()))
	if err != nil {
		slog.Error("❌ Metrics setup failed", slog.Any("error", err))
		return 1
	}
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("🕵️ Metrics server started", slog.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	// 4. Pipeline
	pipeline, err := app.NewPipeline(cfg, bootstrap.Metrics, bootstrap.Storage)
	if err != nil {
		slog.Error("❌ Pipeline setup failed", slog.Any("error", err))
		return 1
	}
	pipeline.Start(ctx)
	go app.LogStats(ctx, bootstrap.Metrics, cfg.StatsInterval())

	slog.InfoContext(ctx, "✨ Feed handler fully operational. Press Ctrl+C to exit.",
		slog.String("exchange", string(cfg.ExchangeID())),
		slog.Int("workers", cfg.Engine.Workers),
	)

	// Wait for shutdown signal or a dead input
	select {
	case <-ctx.Done():
		slog.Info("👋 Shutting down gracefully...")
	case err := <-pipeline.Err():
		slog.Error("❌ Input failed, shutting down", slog.Any("error", err))
		exitCode = 1
		stop()
	}
	pipeline.Wait()
	return exitCode
}
