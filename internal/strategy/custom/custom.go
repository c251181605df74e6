// Package custom runs user-supplied strategy scripts in a sandboxed Tengo VM.
//
// A script receives the bar series and run parameters as globals and must
// assign its per-bar equity trace to the global `trace` before finishing:
//
//	bars            array of {date, open, high, low, close, volume}
//	initial_capital float
//	cost_rate       float
//	trace           array of {date, price, shares, cash, portfolio_value}
//
// Scripts may import the Tengo "math" stdlib module and a "ta" module with
// sma(values, window) and ema(values, window) helpers. File imports and the
// rest of the stdlib are not available.
package custom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"stratlab/internal/domain"
	"stratlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*ScriptStrategy)(nil)

// DefaultTimeout bounds script execution when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ScriptStrategy executes the script in Params.Source.
type ScriptStrategy struct {
	// Timeout bounds a single script run. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Name returns "custom".
func (s *ScriptStrategy) Name() string { return "custom" }

// Run compiles and executes the script against the series, then decodes and
// validates the trace the script produced. Compile and runtime faults,
// including timeouts, wrap domain.ErrStrategyExecution; a structurally bad
// trace wraps domain.ErrStrategyContract.
func (s *ScriptStrategy) Run(ctx context.Context, series *domain.BarSeries, p Params) (*domain.EquityTrace, error) {
	if p.Source == "" {
		return nil, fmt.Errorf("%w: custom strategy requires a script source", domain.ErrInvalidConfig)
	}
	if p.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v", domain.ErrInvalidConfig, p.InitialCapital)
	}

	script := tengo.NewScript([]byte(p.Source))
	script.SetImports(moduleMap())

	if err := script.Add("bars", encodeBars(series)); err != nil {
		return nil, fmt.Errorf("%w: binding bars: %v", domain.ErrStrategyExecution, err)
	}
	if err := script.Add("initial_capital", p.InitialCapital); err != nil {
		return nil, fmt.Errorf("%w: binding initial_capital: %v", domain.ErrStrategyExecution, err)
	}
	if err := script.Add("cost_rate", p.CostRate); err != nil {
		return nil, fmt.Errorf("%w: binding cost_rate: %v", domain.ErrStrategyExecution, err)
	}
	if err := script.Add("trace", nil); err != nil {
		return nil, fmt.Errorf("%w: binding trace: %v", domain.ErrStrategyExecution, err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %v", domain.ErrStrategyExecution, err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := compiled.RunContext(runCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: script exceeded %s timeout", domain.ErrStrategyExecution, timeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStrategyExecution, err)
	}

	trace, err := decodeTrace(series, p, compiled.Get("trace"))
	if err != nil {
		return nil, err
	}
	if err := strategy.ValidateTrace(series, trace); err != nil {
		return nil, err
	}
	return trace, nil
}

// Params is re-exported for readability in this package.
type Params = strategy.Params

// moduleMap builds the restricted import surface for scripts.
func moduleMap() *tengo.ModuleMap {
	mods := stdlib.GetModuleMap("math")
	mods.AddBuiltinModule("ta", taModule)
	return mods
}

// encodeBars renders the series as script-native values.
func encodeBars(series *domain.BarSeries) []interface{} {
	bars := make([]interface{}, series.Len())
	for i, b := range series.Bars {
		bars[i] = map[string]interface{}{
			"date":   b.Date.Format("2006-01-02"),
			"open":   b.Open,
			"high":   b.High,
			"low":    b.Low,
			"close":  b.Close,
			"volume": b.Volume,
		}
	}
	return bars
}

// decodeTrace converts the script's `trace` global back into an equity trace.
func decodeTrace(series *domain.BarSeries, p Params, v *tengo.Variable) (*domain.EquityTrace, error) {
	rows := v.Array()
	if rows == nil {
		return nil, fmt.Errorf("%w: script did not assign a trace array", domain.ErrStrategyContract)
	}

	trace := &domain.EquityTrace{
		Ticker:         series.Ticker,
		InitialCapital: p.InitialCapital,
		States:         make([]domain.PositionState, 0, len(rows)),
	}
	for i, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: trace row %d is %T, want map", domain.ErrStrategyContract, i, raw)
		}

		dateStr, ok := row["date"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: trace row %d missing date", domain.ErrStrategyContract, i)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("%w: trace row %d date %q: %v", domain.ErrStrategyContract, i, dateStr, err)
		}

		price, err := numberField(row, i, "price")
		if err != nil {
			return nil, err
		}
		shares, err := numberField(row, i, "shares")
		if err != nil {
			return nil, err
		}
		cash, err := numberField(row, i, "cash")
		if err != nil {
			return nil, err
		}
		value, err := numberField(row, i, "portfolio_value")
		if err != nil {
			return nil, err
		}

		factor := value / p.InitialCapital
		if rf, ok := toFloat(row["returns_factor"]); ok {
			factor = rf
		}

		trace.States = append(trace.States, domain.PositionState{
			Date:           date.UTC(),
			Price:          price,
			Shares:         int64(shares),
			Cash:           cash,
			PortfolioValue: value,
			ReturnsFactor:  factor,
		})
	}
	return trace, nil
}

func numberField(row map[string]interface{}, i int, key string) (float64, error) {
	v, ok := toFloat(row[key])
	if !ok {
		return 0, fmt.Errorf("%w: trace row %d missing numeric %s", domain.ErrStrategyContract, i, key)
	}
	return v, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
