// Package compare orchestrates backtests across tickers and reduces the
// results to comparable, ranked metrics.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stratlab/internal/analytics"
	"stratlab/internal/config"
	"stratlab/internal/domain"
	"stratlab/internal/loader"
	"stratlab/internal/strategy"
)

// Outcome is the result of running one experiment on one ticker. Exactly one
// of Metrics or Err is set; a failed ticker never hides the others.
type Outcome struct {
	Ticker  string
	Metrics *domain.MetricRecord
	Trace   *domain.EquityTrace
	Err     error
}

// Runner runs experiments against loaded bar series.
type Runner struct {
	Loader             *loader.Loader
	Registry           *strategy.Registry
	TradingDaysPerYear int

	// MaxWorkers bounds concurrent per-ticker runs in Compare. Zero or
	// negative means one worker per ticker.
	MaxWorkers int

	Log *slog.Logger
}

// Run executes one experiment end to end: load the series for the
// experiment's window, replay the strategy, validate the trace, and compute
// metrics.
func (r *Runner) Run(ctx context.Context, exp config.Experiment) Outcome {
	out := Outcome{Ticker: exp.Ticker}

	if err := exp.Validate(); err != nil {
		out.Err = err
		return out
	}
	strat, ok := r.Registry.Get(exp.Strategy)
	if !ok {
		out.Err = fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidConfig, exp.Strategy)
		return out
	}
	start, end, err := exp.DateRange()
	if err != nil {
		out.Err = err
		return out
	}

	series, err := r.Loader.Load(ctx, exp.Ticker, start, end)
	if err != nil {
		out.Err = err
		return out
	}

	trace, err := strat.Run(ctx, series, paramsFrom(exp, start))
	if err != nil {
		out.Err = err
		return out
	}
	if err := strategy.ValidateTrace(series, trace); err != nil {
		out.Err = err
		return out
	}

	metrics, err := analytics.Analyze(trace, r.TradingDaysPerYear)
	if err != nil {
		out.Err = err
		return out
	}

	out.Trace = trace
	out.Metrics = metrics
	return out
}

// Compare runs the experiment on every ticker concurrently and collects one
// outcome per ticker. Failures are isolated: a ticker that cannot load or
// simulate reports its error while the rest complete normally.
func (r *Runner) Compare(ctx context.Context, tickers []string, exp config.Experiment) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(tickers))
	if len(tickers) == 0 {
		return outcomes
	}

	tickerCh := make(chan string, len(tickers))
	for _, ticker := range tickers {
		tickerCh <- ticker
	}
	close(tickerCh)

	workers := r.MaxWorkers
	if workers <= 0 || workers > len(tickers) {
		workers = len(tickers)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range tickerCh {
				if ctx.Err() != nil {
					return
				}

				tickerExp := exp
				tickerExp.Ticker = ticker
				out := r.Run(ctx, tickerExp)

				if r.Log != nil {
					if out.Err != nil {
						r.Log.Warn("ticker failed", "ticker", ticker, "strategy", exp.Strategy, "err", out.Err)
					} else {
						r.Log.Info("ticker done", "ticker", ticker, "strategy", exp.Strategy,
							"final_value", out.Metrics.FinalValue)
					}
				}

				mu.Lock()
				outcomes[ticker] = out
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return outcomes
}

// Rank orders outcomes by Sharpe-like ratio, best first. Outcomes without a
// ratio sort after those with one, and failed outcomes sort last. Ties break
// on ticker for stable output.
func Rank(outcomes map[string]Outcome) []Outcome {
	ranked := make([]Outcome, 0, len(outcomes))
	for _, out := range outcomes {
		ranked = append(ranked, out)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case (a.Err == nil) != (b.Err == nil):
			return a.Err == nil
		case a.Err != nil:
			return a.Ticker < b.Ticker
		}
		as, bs := a.Metrics.SharpeLike, b.Metrics.SharpeLike
		switch {
		case (as != nil) != (bs != nil):
			return as != nil
		case as != nil && *as != *bs:
			return *as > *bs
		}
		return a.Ticker < b.Ticker
	})
	return ranked
}

// paramsFrom maps an experiment's fields onto strategy parameters.
func paramsFrom(exp config.Experiment, buyDate time.Time) strategy.Params {
	return strategy.Params{
		BuyDate:        buyDate,
		InitialCapital: exp.InitialCapital,
		CostRate:       exp.TransactionCostPct,
		ShortWindow:    exp.ShortWindow,
		LongWindow:     exp.LongWindow,
		VolThreshold:   exp.VolThreshold,
		TakeProfit:     exp.TakeProfit,
		StopLoss:       exp.StopLoss,
		Source:         exp.CustomSource,
	}
}
