// Package strategy defines the Strategy interface for backtesting strategies
// and provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"stratlab/internal/domain"
)

// Params carries the per-run inputs a strategy needs. Strategies read only
// the fields relevant to them and ignore the rest.
type Params struct {
	// BuyDate is the earliest date a position may be opened. Zero means the
	// first bar of the series.
	BuyDate time.Time

	InitialCapital float64

	// CostRate is the proportional transaction cost charged on the notional
	// of every buy and sell.
	CostRate float64

	// Moving-average crossover windows, in bars.
	ShortWindow int
	LongWindow  int

	// Volatility-trigger parameters. Thresholds are fractional returns;
	// a zero TakeProfit or StopLoss leaves that exit disabled.
	VolThreshold float64
	TakeProfit   float64
	StopLoss     float64

	// Source is the script body for script-defined strategies.
	Source string
}

// Strategy simulates one trading policy over a bar series and returns the
// resulting per-bar equity trace.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Run replays the series through the strategy. The returned trace has
	// exactly one state per input bar, in bar order.
	Run(ctx context.Context, series *domain.BarSeries, p Params) (*domain.EquityTrace, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Simulation account
// ---------------------------------------------------------------------------

// Account tracks cash and a whole-share position through a simulation.
// Execution is at the supplied price; a proportional cost applies to the
// notional of every fill, and cash never goes negative.
type Account struct {
	InitialCapital float64
	CostRate       float64

	Cash   float64
	Shares int64
}

// NewAccount creates an all-cash account.
func NewAccount(initialCapital, costRate float64) *Account {
	return &Account{
		InitialCapital: initialCapital,
		CostRate:       costRate,
		Cash:           initialCapital,
	}
}

// Buy invests all available cash at the given price, net of transaction
// costs, buying the largest whole-share quantity affordable. A price that
// cannot fund a single share leaves the account unchanged.
func (a *Account) Buy(price float64) {
	if price <= 0 || a.Shares > 0 {
		return
	}
	shares := int64(math.Floor(a.Cash / (price * (1 + a.CostRate))))
	if shares <= 0 {
		return
	}
	notional := float64(shares) * price
	a.Cash -= notional + a.CostRate*notional
	a.Shares = shares
}

// Sell liquidates the whole position at the given price, net of transaction
// costs. A flat account is unchanged.
func (a *Account) Sell(price float64) {
	if a.Shares == 0 {
		return
	}
	notional := float64(a.Shares) * price
	a.Cash += notional - a.CostRate*notional
	a.Shares = 0
}

// Long reports whether the account holds a position.
func (a *Account) Long() bool { return a.Shares > 0 }

// Value is the mark-to-market portfolio value at the given price.
func (a *Account) Value(price float64) float64 {
	return a.Cash + float64(a.Shares)*price
}

// State snapshots the account as a per-bar position state.
func (a *Account) State(date time.Time, price float64) domain.PositionState {
	value := a.Value(price)
	return domain.PositionState{
		Date:           date,
		Price:          price,
		Shares:         a.Shares,
		Cash:           a.Cash,
		PortfolioValue: value,
		ReturnsFactor:  value / a.InitialCapital,
	}
}

// ---------------------------------------------------------------------------
// Trace contract
// ---------------------------------------------------------------------------

// ValidateTrace checks a trace against its source series: one state per bar,
// dates aligned in order, finite non-negative portfolio values and cash, and
// non-negative shares. Failures wrap domain.ErrStrategyContract.
func ValidateTrace(series *domain.BarSeries, trace *domain.EquityTrace) error {
	if trace == nil {
		return fmt.Errorf("%w: nil trace", domain.ErrStrategyContract)
	}
	if got, want := len(trace.States), series.Len(); got != want {
		return fmt.Errorf("%w: trace has %d states for %d bars", domain.ErrStrategyContract, got, want)
	}
	for i, st := range trace.States {
		if !st.Date.Equal(series.Bars[i].Date) {
			return fmt.Errorf("%w: state %d dated %s, bar dated %s",
				domain.ErrStrategyContract, i,
				st.Date.Format("2006-01-02"), series.Bars[i].Date.Format("2006-01-02"))
		}
		if !domain.IsFinite(st.PortfolioValue) || st.PortfolioValue < 0 {
			return fmt.Errorf("%w: state %d has portfolio value %v", domain.ErrStrategyContract, i, st.PortfolioValue)
		}
		if st.Shares < 0 || !domain.IsFinite(st.Cash) || st.Cash < 0 {
			return fmt.Errorf("%w: state %d has shares %d cash %v", domain.ErrStrategyContract, i, st.Shares, st.Cash)
		}
	}
	return nil
}
