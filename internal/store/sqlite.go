package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"stratlab/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*SQLiteStore)(nil)

const createPricesTable = `
CREATE TABLE IF NOT EXISTS prices (
	ticker TEXT NOT NULL,
	ts     TEXT NOT NULL,
	open   REAL,
	high   REAL,
	low    REAL,
	close  REAL,
	volume REAL,
	PRIMARY KEY (ticker, ts)
)`

// SQLiteStore implements PriceStore backed by a SQLite database with a
// single prices table keyed by (ticker, ts).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createPricesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating prices table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars replaces all stored rows for the ticker with the given bars.
// Each write is treated as the source of truth for that ticker.
func (s *SQLiteStore) WriteBars(ctx context.Context, ticker string, bars []domain.Bar) error {
	ticker = strings.ToUpper(ticker)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("deleting existing rows for %s: %w", ticker, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prices (ticker, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, ticker, b.Date.Format("2006-01-02"),
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), nullable(b.Volume))
		if err != nil {
			return fmt.Errorf("inserting bar %s %s: %w", ticker, b.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// ReadBars returns bars for the ticker within [start, end], inclusive,
// ordered by date ascending.
func (s *SQLiteStore) ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	query := `SELECT ts, open, high, low, close, volume FROM prices WHERE ticker = ?`
	args := []any{strings.ToUpper(ticker)}

	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.Format("2006-01-02"))
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var ts string
		var open, high, low, closePx, volume sql.NullFloat64
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, err
		}
		date, err := time.Parse("2006-01-02", ts)
		if err != nil {
			return nil, fmt.Errorf("parsing stored date %q: %w", ts, err)
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   floatOrNaN(open),
			High:   floatOrNaN(high),
			Low:    floatOrNaN(low),
			Close:  floatOrNaN(closePx),
			Volume: floatOrNaN(volume),
		})
	}
	return bars, rows.Err()
}

// ListTickers returns all distinct tickers in the prices table, sorted.
func (s *SQLiteStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM prices ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// nullable converts NaN to a SQL NULL so absent fields round-trip.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// floatOrNaN converts a SQL NULL back to NaN.
func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
