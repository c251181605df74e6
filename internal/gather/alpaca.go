package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stratlab/internal/domain"
	"stratlab/internal/store"
	"stratlab/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// barFetcher is the slice of the Alpaca market-data client the gatherer
// uses, extracted for testing.
type barFetcher interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// DailyBarGatherer fetches daily OHLCV bars for a configured ticker list
// from the Alpaca market-data API and writes them to the price stores.
type DailyBarGatherer struct {
	client          barFetcher
	stores          []store.PriceStore
	tickers         []string
	startDate       string
	rateLimitPerMin int
	maxRetries      int
	log             *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer with the given Alpaca
// credentials and target stores. Every store receives the same bars, so the
// SQLite and Parquet backends stay interchangeable for the loader.
func NewDailyBarGatherer(
	apiKey, apiSecret, dataURL string,
	stores []store.PriceStore,
	tickers []string,
	startDate string,
	rateLimitPerMin, maxRetries int,
	log *slog.Logger,
) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &DailyBarGatherer{
		client:          marketdata.NewClient(opts),
		stores:          stores,
		tickers:         tickers,
		startDate:       startDate,
		rateLimitPerMin: rateLimitPerMin,
		maxRetries:      maxRetries,
		log:             log.With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run fetches bars from the start date through yesterday and writes them to
// every configured store. One ticker failing does not stop the rest.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.tickers) == 0 {
		return fmt.Errorf("no tickers configured")
	}

	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)

	limiter := util.NewRateLimiter(g.rateLimitPerMin)
	runStart := time.Now()

	var failed int
	for _, ticker := range g.tickers {
		ticker = strings.ToUpper(ticker)
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		bars, err := g.fetchBars(ctx, ticker, DateRange{Start: start, End: end})
		if err != nil {
			g.log.Error("fetching bars failed", "ticker", ticker, "err", err)
			failed++
			continue
		}
		if len(bars) == 0 {
			g.log.Warn("no bars returned", "ticker", ticker)
			continue
		}

		for _, s := range g.stores {
			if err := s.WriteBars(ctx, ticker, bars); err != nil {
				g.log.Error("writing bars failed", "ticker", ticker, "err", err)
				failed++
				break
			}
		}
		g.log.Info("ticker done", "ticker", ticker, "bars", len(bars))
	}

	g.log.Info("complete",
		"tickers", len(g.tickers),
		"failed", failed,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if failed == len(g.tickers) {
		return fmt.Errorf("all %d tickers failed", failed)
	}
	return nil
}

// fetchBars fetches daily bars for one ticker with retries.
func (g *DailyBarGatherer) fetchBars(ctx context.Context, ticker string, r DateRange) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar

	err := util.Retry(ctx, g.maxRetries, time.Second, func() error {
		var err error
		multiBars, err = g.client.GetMultiBars([]string{ticker}, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     r.Start,
			End:       r.End,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for _, ab := range multiBars[ticker] {
		bars = append(bars, domain.Bar{
			Date:   ab.Timestamp.UTC().Truncate(24 * time.Hour),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: float64(ab.Volume),
		})
	}
	return bars, nil
}
