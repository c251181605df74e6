package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stratlab/internal/config"
	"stratlab/internal/gather"
	"stratlab/internal/store"
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

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials are required (set APCA_API_KEY_ID and APCA_API_SECRET_KEY)")
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer sqliteStore.Close()

	stores := []store.PriceStore{
		sqliteStore,
		store.NewParquetStore(cfg.Storage.DataDir),
	}

	gatherer := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		stores,
		cfg.Fetch.Tickers,
		cfg.Fetch.StartDate,
		cfg.Fetch.RateLimitPerMin,
		cfg.Fetch.MaxRetries,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("starting %s gatherer\n", gatherer.Name())
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gatherer error: %v", err)
	}
}
