// Package builtins provides the built-in strategy implementations that ship
// with stratlab.
package builtins

import (
	"context"
	"fmt"

	"stratlab/internal/domain"
	"stratlab/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*BuyAndHold)(nil)
var _ strategy.Strategy = (*MACrossover)(nil)
var _ strategy.Strategy = (*VolTrigger)(nil)

// RegisterAll registers every built-in strategy.
func RegisterAll(r *strategy.Registry) {
	r.Register(&BuyAndHold{})
	r.Register(&MACrossover{})
	r.Register(&VolTrigger{})
}

// BuyAndHold buys the largest affordable whole-share position at the close of
// the first bar on or after the buy date and holds it for the rest of the
// series, marked to market each bar. It never sells.
type BuyAndHold struct{}

// Name returns "buy_and_hold".
func (s *BuyAndHold) Name() string { return "buy_and_hold" }

// Run simulates the buy-and-hold policy over the series.
func (s *BuyAndHold) Run(_ context.Context, series *domain.BarSeries, p Params) (*domain.EquityTrace, error) {
	if err := requireCapital(p); err != nil {
		return nil, err
	}

	acct := strategy.NewAccount(p.InitialCapital, p.CostRate)
	trace := newTrace(series, p)

	for _, bar := range series.Bars {
		if !acct.Long() && !bar.Date.Before(p.BuyDate) {
			acct.Buy(bar.Close)
		}
		trace.States = append(trace.States, acct.State(bar.Date, bar.Close))
	}
	return trace, nil
}

// Params is re-exported for readability in this package.
type Params = strategy.Params

func newTrace(series *domain.BarSeries, p Params) *domain.EquityTrace {
	return &domain.EquityTrace{
		Ticker:         series.Ticker,
		InitialCapital: p.InitialCapital,
		States:         make([]domain.PositionState, 0, series.Len()),
	}
}

func requireCapital(p Params) error {
	if p.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %v", domain.ErrInvalidConfig, p.InitialCapital)
	}
	if p.CostRate < 0 {
		return fmt.Errorf("%w: transaction cost rate must be non-negative, got %v", domain.ErrInvalidConfig, p.CostRate)
	}
	return nil
}
