// Package store persists and retrieves daily price bars. Two backends are
// provided: a SQLite prices table and Parquet files laid out per ticker and
// year.
package store

import (
	"context"
	"time"

	"stratlab/internal/domain"
)

// PriceStore persists and retrieves daily OHLCV bars keyed by ticker.
type PriceStore interface {
	// WriteBars persists a batch of bars for one ticker. A write replaces
	// any bars previously stored for the same ticker/date.
	WriteBars(ctx context.Context, ticker string, bars []domain.Bar) error

	// ReadBars returns bars for the ticker within [start, end], inclusive,
	// ordered by date ascending. A zero start or end leaves that side of
	// the range unbounded. A ticker with no bars yields an empty slice,
	// not an error.
	ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)

	// ListTickers returns all distinct tickers with stored bars, sorted.
	ListTickers(ctx context.Context) ([]string, error)
}
