package domain

import "errors"

// Error taxonomy for the backtesting engine. All of these are local to a
// single ticker run; the comparison orchestrator captures them per ticker
// and never lets one ticker's failure abort a batch. Callers classify with
// errors.Is.
var (
	// ErrDataUnavailable means no usable bars exist for a ticker or range.
	ErrDataUnavailable = errors.New("no price data available")

	// ErrDataMalformed means records exist but no close-price column could
	// be coerced to numeric values.
	ErrDataMalformed = errors.New("price data malformed")

	// ErrInvalidConfig means the experiment configuration is unusable:
	// empty or inverted date range, non-positive capital, or an unknown
	// strategy identifier. Raised before any simulation starts.
	ErrInvalidConfig = errors.New("invalid experiment config")

	// ErrStrategyContract means a strategy returned an equity trace that
	// does not conform to the trace contract (missing fields or a row
	// count differing from the input series).
	ErrStrategyContract = errors.New("strategy violated trace contract")

	// ErrStrategyExecution means custom strategy logic raised a fault or
	// exceeded its wall-clock budget. The cause is sanitized before being
	// surfaced.
	ErrStrategyExecution = errors.New("strategy execution failed")
)
