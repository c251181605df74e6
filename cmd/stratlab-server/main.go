package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stratlab/internal/compare"
	"stratlab/internal/config"
	"stratlab/internal/httpapi"
	"stratlab/internal/loader"
	"stratlab/internal/store"
	"stratlab/internal/strategy"
	"stratlab/internal/strategy/builtins"
	"stratlab/internal/strategy/custom"
	"stratlab/internal/util"
)

func main() {
	cfgPath := "config/stratlab.yaml"
	if p := os.Getenv("STRATLAB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	src, cleanup, err := newSource(cfg)
	if err != nil {
		log.Fatalf("opening price source: %v", err)
	}
	defer cleanup()

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)
	registry.Register(&custom.ScriptStrategy{Timeout: time.Duration(cfg.Backtest.ScriptTimeout)})

	runner := &compare.Runner{
		Loader:             loader.New(src),
		Registry:           registry,
		TradingDaysPerYear: cfg.Backtest.TradingDaysPerYear,
		MaxWorkers:         cfg.Backtest.MaxWorkers,
		Log:                logger,
	}
	srv := httpapi.NewServer(runner.Loader, runner, cfg.Backtest.DefaultCapital, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("stratlab server listening", "addr", addr, "backend", cfg.Storage.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// newSource selects the price source by configured backend.
func newSource(cfg *config.Config) (loader.Source, func(), error) {
	switch cfg.Storage.Backend {
	case "csv", "":
		return loader.NewCSVSource(cfg.Storage.DataDir), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return loader.NewStoreSource(s), func() { s.Close() }, nil
	case "parquet":
		return loader.NewStoreSource(store.NewParquetStore(cfg.Storage.DataDir)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
