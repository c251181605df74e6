package builtins

import (
	"context"
	"fmt"

	"stratlab/internal/domain"
	"stratlab/internal/strategy"
)

// MACrossover trades a classic moving-average crossover: enter when the
// short-window mean crosses above the long-window mean, exit when it crosses
// back below. Fills are at the close of the bar the crossing is observed on.
// Bars before the long window fills are warm-up and stay all-cash.
type MACrossover struct{}

// Name returns "ma_crossover".
func (s *MACrossover) Name() string { return "ma_crossover" }

// Run simulates the crossover policy over the series.
func (s *MACrossover) Run(_ context.Context, series *domain.BarSeries, p Params) (*domain.EquityTrace, error) {
	if err := requireCapital(p); err != nil {
		return nil, err
	}
	if p.ShortWindow <= 0 || p.LongWindow <= 0 || p.ShortWindow >= p.LongWindow {
		return nil, fmt.Errorf("%w: crossover windows must satisfy 0 < short < long, got short=%d long=%d",
			domain.ErrInvalidConfig, p.ShortWindow, p.LongWindow)
	}

	closes := series.Closes()
	shortMA := rollingMean(closes, p.ShortWindow)
	longMA := rollingMean(closes, p.LongWindow)

	acct := strategy.NewAccount(p.InitialCapital, p.CostRate)
	trace := newTrace(series, p)

	for i, bar := range series.Bars {
		// Both means defined from index LongWindow-1; a crossing needs the
		// previous bar's means too, so the first defined bar never trades.
		if i >= p.LongWindow {
			crossedUp := shortMA[i-1] <= longMA[i-1] && shortMA[i] > longMA[i]
			crossedDown := shortMA[i-1] > longMA[i-1] && shortMA[i] <= longMA[i]

			switch {
			case crossedUp && !acct.Long():
				acct.Buy(bar.Close)
			case crossedDown && acct.Long():
				acct.Sell(bar.Close)
			}
		}
		trace.States = append(trace.States, acct.State(bar.Date, bar.Close))
	}
	return trace, nil
}

// rollingMean computes the simple moving average with the given window.
// Indices before window-1 are zero and must not be read; callers gate on
// index instead.
func rollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}
