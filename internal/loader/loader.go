package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"stratlab/internal/domain"
)

// Loader produces canonical bar series from a raw Source and caches the
// normalized series per ticker for the process lifetime. Concurrent first
// loads of the same ticker perform at most one normalization; later callers
// wait for and share the result.
type Loader struct {
	src Source

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	once   sync.Once
	series *domain.BarSeries
	err    error
}

// New creates a Loader over the given source.
func New(src Source) *Loader {
	return &Loader{
		src:   src,
		cache: make(map[string]*cacheEntry),
	}
}

// Load returns the bar series for a ticker, restricted to [start, end]
// inclusive. A zero start or end leaves that side unbounded. The full
// normalized series is cached on first load; range filtering applies to a
// copy so the cache stays read-only. Data errors are cached like series, but
// a load aborted by context cancellation or timeout is forgotten so a later
// call retries the fetch.
func (l *Loader) Load(ctx context.Context, ticker string, start, end time.Time) (*domain.BarSeries, error) {
	key := strings.ToUpper(ticker)

	l.mu.Lock()
	entry, ok := l.cache[key]
	if !ok {
		entry = &cacheEntry{}
		l.cache[key] = entry
	}
	l.mu.Unlock()

	entry.once.Do(func() {
		table, err := l.src.Fetch(ctx, key)
		if err != nil {
			entry.err = err
			return
		}
		entry.series, entry.err = Normalize(key, table)
	})
	if err := entry.err; err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.mu.Lock()
			if l.cache[key] == entry {
				delete(l.cache, key)
			}
			l.mu.Unlock()
		}
		return nil, err
	}

	return filterRange(entry.series, start, end)
}

// Tickers lists the tickers the underlying source can serve.
func (l *Loader) Tickers(ctx context.Context) ([]string, error) {
	return l.src.Tickers(ctx)
}

// filterRange copies the bars within [start, end] into a fresh series.
// A single remaining bar is legal (buy-only simulation); zero bars is
// domain.ErrDataUnavailable.
func filterRange(s *domain.BarSeries, start, end time.Time) (*domain.BarSeries, error) {
	var bars []domain.Bar
	for _, b := range s.Bars {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s in requested range", domain.ErrDataUnavailable, s.Ticker)
	}
	return &domain.BarSeries{Ticker: s.Ticker, Bars: bars}, nil
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

// dateColumns are recognized names for the date axis, checked after
// case-folding. When none matches, the first column is the date axis.
var dateColumns = map[string]bool{
	"date": true, "ts": true, "timestamp": true, "time": true, "day": true,
}

// closeColumns is the fallback priority for deriving the canonical close:
// an explicit close field, then adjusted close, then a generic price.
var closeColumns = [][]string{
	{"close"},
	{"adj close", "adj_close", "adjclose", "adjusted close", "adjusted_close"},
	{"price"},
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Normalize converts a raw table into a canonical bar series: column names
// are case-folded, the close field is derived by fallback priority, rows
// with unparseable dates or non-finite closes are dropped, dates are sorted
// ascending, and duplicate dates collapse to the last record.
func Normalize(ticker string, t Table) (*domain.BarSeries, error) {
	if len(t.Columns) == 0 || len(t.Rows) == 0 {
		return nil, fmt.Errorf("%w: no records for %s", domain.ErrDataUnavailable, ticker)
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}

	dateIdx := 0
	for i, c := range cols {
		if dateColumns[c] {
			dateIdx = i
			break
		}
	}

	closeIdx := -1
	for _, candidates := range closeColumns {
		for _, name := range candidates {
			if idx := indexOf(cols, name); idx >= 0 {
				closeIdx = idx
				break
			}
		}
		if closeIdx >= 0 {
			break
		}
	}
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: no close-price column for %s (columns: %s)",
			domain.ErrDataMalformed, ticker, strings.Join(cols, ", "))
	}

	openIdx := indexOf(cols, "open")
	highIdx := indexOf(cols, "high")
	lowIdx := indexOf(cols, "low")
	volumeIdx := indexOf(cols, "volume")

	byDate := make(map[time.Time]domain.Bar)
	coercedClose := false
	for _, row := range t.Rows {
		date, ok := parseDate(cell(row, dateIdx))
		closePx, closeOK := parseFloat(cell(row, closeIdx))
		if closeOK {
			coercedClose = true
		}
		if !ok || !closeOK {
			continue
		}
		// Last record for a date wins, matching store merge semantics.
		byDate[date] = domain.Bar{
			Date:   date,
			Open:   floatOr(cell(row, openIdx)),
			High:   floatOr(cell(row, highIdx)),
			Low:    floatOr(cell(row, lowIdx)),
			Close:  closePx,
			Volume: floatOr(cell(row, volumeIdx)),
		}
	}

	if !coercedClose {
		return nil, fmt.Errorf("%w: close column for %s has no numeric values", domain.ErrDataMalformed, ticker)
	}
	if len(byDate) == 0 {
		return nil, fmt.Errorf("%w: all records for %s dropped during normalization", domain.ErrDataUnavailable, ticker)
	}

	bars := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return &domain.BarSeries{Ticker: ticker, Bars: bars}, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseDate tries the known layouts and truncates to a UTC calendar date.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseFloat coerces a cell to a finite float.
func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !domain.IsFinite(v) {
		return 0, false
	}
	return v, true
}

// floatOr coerces an optional cell, yielding NaN when absent or malformed.
func floatOr(s string) float64 {
	if v, ok := parseFloat(s); ok {
		return v
	}
	return math.NaN()
}
