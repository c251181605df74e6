// Package analytics computes performance metrics from equity traces.
package analytics

import (
	"fmt"
	"math"

	"stratlab/internal/domain"
)

// Analyze reduces an equity trace to its performance metrics. It is a pure
// function of the trace: analyzing the same trace twice yields the same
// record, and the trace is never modified.
//
// Metrics that need more history than the trace provides are left nil rather
// than forced to zero: annualized return needs at least two bars spanning a
// positive number of days, annualized volatility needs at least two daily
// returns, and the Sharpe-like ratio needs both plus a non-zero volatility.
func Analyze(trace *domain.EquityTrace, tradingDaysPerYear int) (*domain.MetricRecord, error) {
	if trace == nil || len(trace.States) == 0 {
		return nil, fmt.Errorf("%w: empty trace", domain.ErrStrategyContract)
	}
	if tradingDaysPerYear <= 0 {
		return nil, fmt.Errorf("%w: trading days per year must be positive, got %d",
			domain.ErrInvalidConfig, tradingDaysPerYear)
	}

	states := trace.States
	final := states[len(states)-1].PortfolioValue
	totalReturn := final/trace.InitialCapital - 1

	rec := &domain.MetricRecord{
		FinalValue:  final,
		TotalReturn: totalReturn,
	}

	rec.AnnualizedReturn = annualizedReturn(trace, totalReturn)
	rec.AnnualizedVol = annualizedVol(states, tradingDaysPerYear)
	if rec.AnnualizedReturn != nil && rec.AnnualizedVol != nil && *rec.AnnualizedVol != 0 {
		sharpe := *rec.AnnualizedReturn / *rec.AnnualizedVol
		rec.SharpeLike = &sharpe
	}

	rec.MaxDrawdown, rec.MaxDrawdownDurationDays = drawdown(states)
	return rec, nil
}

// annualizedReturn compounds the total return over the trace's calendar span.
func annualizedReturn(trace *domain.EquityTrace, totalReturn float64) *float64 {
	states := trace.States
	if len(states) < 2 {
		return nil
	}
	spanDays := states[len(states)-1].Date.Sub(states[0].Date).Hours() / 24
	if spanDays <= 0 {
		return nil
	}
	base := 1 + totalReturn
	if base <= 0 {
		// Total loss or worse; compounding is undefined.
		return nil
	}
	r := math.Pow(base, 365/spanDays) - 1
	if !domain.IsFinite(r) {
		return nil
	}
	return &r
}

// annualizedVol scales the sample standard deviation of daily portfolio
// returns by the square root of the trading year.
func annualizedVol(states []domain.PositionState, tradingDaysPerYear int) *float64 {
	var returns []float64
	for i := 1; i < len(states); i++ {
		prev := states[i-1].PortfolioValue
		if prev <= 0 {
			continue
		}
		r := states[i].PortfolioValue/prev - 1
		if domain.IsFinite(r) {
			returns = append(returns, r)
		}
	}
	if len(returns) < 2 {
		return nil
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(returns)-1))

	vol := std * math.Sqrt(float64(tradingDaysPerYear))
	return &vol
}

// drawdown returns the deepest peak-to-trough decline, a fraction in [-1, 0],
// and the longest drawdown duration in calendar days. Duration is measured
// from a running peak to the last date still below it, whether or not the
// trace recovers by the end.
func drawdown(states []domain.PositionState) (float64, int) {
	peak := states[0].PortfolioValue
	peakDate := states[0].Date

	var maxDD float64
	var maxDuration float64
	for _, st := range states[1:] {
		if st.PortfolioValue >= peak {
			peak = st.PortfolioValue
			peakDate = st.Date
			continue
		}
		if peak > 0 {
			if dd := st.PortfolioValue/peak - 1; dd < maxDD {
				maxDD = dd
			}
		}
		if d := st.Date.Sub(peakDate).Hours() / 24; d > maxDuration {
			maxDuration = d
		}
	}

	if maxDD < -1 {
		maxDD = -1
	}
	return maxDD, int(math.Round(maxDuration))
}
