// Package loader normalizes heterogeneous per-ticker price history into
// canonical, validated bar series and caches the result per ticker for the
// process lifetime.
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/store"
)

// Table is raw tabular price history for one ticker: ordered column names
// and string-valued cells. Sources make no promise about column naming or
// casing; normalization happens in the Loader.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Source supplies raw price history tables keyed by ticker.
type Source interface {
	// Fetch returns the raw table for a ticker. A ticker with no records
	// fails with domain.ErrDataUnavailable.
	Fetch(ctx context.Context, ticker string) (Table, error)

	// Tickers returns the tickers the source can serve, sorted.
	Tickers(ctx context.Context) ([]string, error)
}

// ---------------------------------------------------------------------------
// CSV source
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var _ Source = (*CSVSource)(nil)
var _ Source = (*StoreSource)(nil)

// CSVSource reads per-ticker CSV files from a directory, one file per
// ticker: <Dir>/<TICKER>.csv with a header row.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a CSVSource rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Fetch reads and parses the CSV file for the ticker.
func (s *CSVSource) Fetch(_ context.Context, ticker string) (Table, error) {
	path := filepath.Join(s.Dir, strings.ToUpper(ticker)+".csv")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, fmt.Errorf("%w: no file for %s at %s", domain.ErrDataUnavailable, ticker, path)
		}
		return Table{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; normalization drops bad ones
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("%w: reading %s: %v", domain.ErrDataMalformed, path, err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("%w: %s is empty", domain.ErrDataUnavailable, path)
	}

	return Table{Columns: records[0], Rows: records[1:]}, nil
}

// Tickers lists tickers by scanning for *.csv files.
func (s *CSVSource) Tickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		tickers = append(tickers, strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ---------------------------------------------------------------------------
// Store-backed source
// ---------------------------------------------------------------------------

// StoreSource adapts a store.PriceStore (SQLite or Parquet) into a raw
// table source so all backends share one normalization path.
type StoreSource struct {
	Store store.PriceStore
}

// NewStoreSource creates a StoreSource over the given price store.
func NewStoreSource(ps store.PriceStore) *StoreSource {
	return &StoreSource{Store: ps}
}

var storeColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Fetch reads all stored bars for the ticker and renders them as a table.
func (s *StoreSource) Fetch(ctx context.Context, ticker string) (Table, error) {
	bars, err := s.Store.ReadBars(ctx, ticker, time.Time{}, time.Time{})
	if err != nil {
		return Table{}, err
	}
	if len(bars) == 0 {
		return Table{}, fmt.Errorf("%w: no stored bars for %s", domain.ErrDataUnavailable, ticker)
	}

	rows := make([][]string, len(bars))
	for i, b := range bars {
		rows[i] = []string{
			b.Date.Format("2006-01-02"),
			formatCell(b.Open),
			formatCell(b.High),
			formatCell(b.Low),
			formatCell(b.Close),
			formatCell(b.Volume),
		}
	}
	return Table{Columns: storeColumns, Rows: rows}, nil
}

// Tickers delegates to the underlying store.
func (s *StoreSource) Tickers(ctx context.Context) ([]string, error) {
	return s.Store.ListTickers(ctx)
}

// formatCell renders a float as a cell; NaN becomes an empty cell that
// fails numeric coercion downstream, same as absent source data.
func formatCell(v float64) string {
	if !domain.IsFinite(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
