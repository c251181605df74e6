package builtins

import (
	"context"
	"fmt"
	"math"

	"stratlab/internal/domain"
	"stratlab/internal/strategy"
)

// VolTrigger enters on a volatility spike and exits on fixed take-profit or
// stop-loss levels. While flat, a daily return whose magnitude exceeds the
// threshold opens a position at that bar's close. While long, the unrealized
// return against the entry price is checked each bar; hitting the take-profit
// or the stop-loss closes the position at that bar's close. A bar that exits
// never re-enters on the same bar.
type VolTrigger struct{}

// Name returns "vol_trigger".
func (s *VolTrigger) Name() string { return "vol_trigger" }

// Run simulates the volatility-trigger policy over the series.
func (s *VolTrigger) Run(_ context.Context, series *domain.BarSeries, p Params) (*domain.EquityTrace, error) {
	if err := requireCapital(p); err != nil {
		return nil, err
	}
	if p.VolThreshold <= 0 {
		return nil, fmt.Errorf("%w: volatility threshold must be positive, got %v",
			domain.ErrInvalidConfig, p.VolThreshold)
	}
	if p.TakeProfit < 0 || p.StopLoss < 0 {
		return nil, fmt.Errorf("%w: take-profit and stop-loss must be non-negative, got %v and %v",
			domain.ErrInvalidConfig, p.TakeProfit, p.StopLoss)
	}

	acct := strategy.NewAccount(p.InitialCapital, p.CostRate)
	trace := newTrace(series, p)

	var entryPrice float64
	for i, bar := range series.Bars {
		// The first bar has no daily return; it is warm-up.
		if i >= 1 {
			if acct.Long() {
				unrealized := bar.Close/entryPrice - 1
				takeProfitHit := p.TakeProfit > 0 && unrealized >= p.TakeProfit
				stopLossHit := p.StopLoss > 0 && unrealized <= -p.StopLoss
				if takeProfitHit || stopLossHit {
					acct.Sell(bar.Close)
				}
			} else {
				prev := series.Bars[i-1].Close
				if prev > 0 && math.Abs(bar.Close/prev-1) > p.VolThreshold {
					acct.Buy(bar.Close)
					if acct.Long() {
						entryPrice = bar.Close
					}
				}
			}
		}
		trace.States = append(trace.States, acct.State(bar.Date, bar.Close))
	}
	return trace, nil
}
