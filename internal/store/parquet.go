package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stratlab/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore using Parquet files on disk, one file
// per ticker and year:
//
//	<DataDir>/daily/<TICKER>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteBars writes bars grouped by year, merging with any existing records
// for the same ticker. Records with the same date are replaced by the
// incoming ones.
func (s *ParquetStore) WriteBars(_ context.Context, ticker string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	ticker = strings.ToUpper(ticker)

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		groups[b.Date.Year()] = append(groups[b.Date.Year()], BarRecord{
			Ticker:    ticker,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for year, records := range groups {
		path := s.barPath(ticker, year)

		// Merge with existing records, incoming wins on date collision.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", ticker, year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the ticker within [start, end], inclusive. A zero
// start or end leaves that side unbounded.
func (s *ParquetStore) ReadBars(_ context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	ticker = strings.ToUpper(ticker)

	years, err := s.yearFiles(ticker)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if !start.IsZero() && year < start.Year() {
			continue
		}
		if !end.IsZero() && year > end.Year() {
			continue
		}

		records, err := readParquetFile[BarRecord](s.barPath(ticker, year))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !start.IsZero() && ts.Before(start) {
				continue
			}
			if !end.IsZero() && ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Date:   ts,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			})
		}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// ListTickers lists all tickers that have bar files, sorted.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// barPath returns the filesystem path for a bar Parquet file.
func (s *ParquetStore) barPath(ticker string, year int) string {
	return filepath.Join(s.DataDir, "daily", ticker, fmt.Sprintf("%d.parquet", year))
}

// yearFiles returns the years for which the ticker has bar files, ascending.
func (s *ParquetStore) yearFiles(ticker string) ([]int, error) {
	dir := filepath.Join(s.DataDir, "daily", ticker)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var years []int
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".parquet")
		var year int
		if _, err := fmt.Sscanf(name, "%d", &year); err == nil {
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years, nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by timestamp, preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
