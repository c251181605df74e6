// Package domain defines the core data model shared across the stratlab
// backtesting engine: bars, bar series, equity traces, and performance
// metric records.
package domain

import (
	"math"
	"time"
)

// Bar is one day's aggregated OHLCV price record. Close is always finite
// for bars held in a BarSeries; the remaining fields may be NaN when the
// source data did not provide them.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarSeries is the canonical, validated price history for one ticker.
// Invariants: at least one bar, dates strictly increasing, every Close
// finite.
type BarSeries struct {
	Ticker string
	Bars   []Bar
}

// Len returns the number of bars in the series.
func (s *BarSeries) Len() int { return len(s.Bars) }

// First returns the earliest bar in the series.
func (s *BarSeries) First() Bar { return s.Bars[0] }

// Last returns the latest bar in the series.
func (s *BarSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes returns the close prices in series order.
func (s *BarSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i := range s.Bars {
		closes[i] = s.Bars[i].Close
	}
	return closes
}

// PositionState is the simulated portfolio state at the close of a single
// bar. Once emitted by a strategy it is never mutated.
type PositionState struct {
	Date           time.Time `json:"date"`
	Price          float64   `json:"price"`
	Shares         int64     `json:"shares"`
	Cash           float64   `json:"cash"`
	PortfolioValue float64   `json:"portfolio_value"`
	ReturnsFactor  float64   `json:"returns_factor"`
}

// EquityTrace is the day-by-day portfolio state produced by simulating a
// strategy over a BarSeries: exactly one PositionState per input bar, in
// input order.
type EquityTrace struct {
	Ticker         string
	InitialCapital float64
	States         []PositionState
}

// Len returns the number of states in the trace.
func (t *EquityTrace) Len() int { return len(t.States) }

// FinalValue returns the portfolio value at the last state, or the initial
// capital for an empty trace.
func (t *EquityTrace) FinalValue() float64 {
	if len(t.States) == 0 {
		return t.InitialCapital
	}
	return t.States[len(t.States)-1].PortfolioValue
}

// MetricRecord is the standardized risk/return metric set derived from an
// equity trace. Pointer fields are nil when the metric is undefined for the
// given trace (for example too little history for volatility); they render
// as JSON null.
type MetricRecord struct {
	FinalValue              float64  `json:"final_value"`
	TotalReturn             float64  `json:"total_return"`
	AnnualizedReturn        *float64 `json:"annualized_return"`
	AnnualizedVol           *float64 `json:"annualized_vol"`
	SharpeLike              *float64 `json:"sharpe_like"`
	MaxDrawdown             float64  `json:"max_drawdown"`
	MaxDrawdownDurationDays int      `json:"max_drawdown_duration_days"`
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
