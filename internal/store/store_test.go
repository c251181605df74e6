package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"stratlab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleBars() []domain.Bar {
	return []domain.Bar{
		{Date: day(2024, 1, 2), Open: 185.0, High: 186.5, Low: 184.0, Close: 185.5, Volume: 50_000_000},
		{Date: day(2024, 1, 3), Open: 185.5, High: 187.0, Low: 185.0, Close: 186.0, Volume: 45_000_000},
		{Date: day(2024, 1, 4), Open: 186.0, High: 188.0, Low: 185.5, Close: 187.5, Volume: 40_000_000},
	}
}

func runPriceStoreTests(t *testing.T, newStore func(t *testing.T) PriceStore) {
	ctx := context.Background()

	t.Run("write and read", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteBars(ctx, "aapl", sampleBars()); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}

		got, err := s.ReadBars(ctx, "AAPL", time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("ReadBars: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("ReadBars returned %d bars, want 3", len(got))
		}
		if got[0].Close != 185.5 || got[2].Close != 187.5 {
			t.Errorf("closes = [%v ... %v], want [185.5 ... 187.5]", got[0].Close, got[2].Close)
		}
	})

	t.Run("inclusive range", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteBars(ctx, "AAPL", sampleBars()); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}

		got, err := s.ReadBars(ctx, "AAPL", day(2024, 1, 3), day(2024, 1, 4))
		if err != nil {
			t.Fatalf("ReadBars: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ReadBars returned %d bars, want 2 (range inclusive on both ends)", len(got))
		}
		if !got[0].Date.Equal(day(2024, 1, 3)) || !got[1].Date.Equal(day(2024, 1, 4)) {
			t.Errorf("dates = %v, %v", got[0].Date, got[1].Date)
		}
	})

	t.Run("rewrite replaces", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteBars(ctx, "MSFT", sampleBars()); err != nil {
			t.Fatalf("WriteBars (first): %v", err)
		}
		replacement := []domain.Bar{
			{Date: day(2024, 1, 2), Open: 400, High: 405, Low: 399, Close: 403, Volume: 30_000_000},
		}
		if err := s.WriteBars(ctx, "MSFT", replacement); err != nil {
			t.Fatalf("WriteBars (second): %v", err)
		}

		got, err := s.ReadBars(ctx, "MSFT", day(2024, 1, 2), day(2024, 1, 2))
		if err != nil {
			t.Fatalf("ReadBars: %v", err)
		}
		if len(got) != 1 || got[0].Close != 403 {
			t.Errorf("after rewrite got %+v, want one bar with close 403", got)
		}
	})

	t.Run("missing ticker", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ReadBars(ctx, "NOPE", time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("ReadBars: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("ReadBars for missing ticker returned %d bars, want 0", len(got))
		}
	})

	t.Run("list tickers", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteBars(ctx, "AAPL", sampleBars()); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}
		if err := s.WriteBars(ctx, "GOOGL", sampleBars()); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}

		tickers, err := s.ListTickers(ctx)
		if err != nil {
			t.Fatalf("ListTickers: %v", err)
		}
		if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "GOOGL" {
			t.Errorf("ListTickers = %v, want [AAPL GOOGL]", tickers)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	runPriceStoreTests(t, func(t *testing.T) PriceStore {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestParquetStore(t *testing.T) {
	runPriceStoreTests(t, func(t *testing.T) PriceStore {
		return NewParquetStore(t.TempDir())
	})
}

func TestSQLiteStoreNaNRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	bars := []domain.Bar{
		{Date: day(2024, 2, 1), Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: 50.0, Volume: math.NaN()},
	}
	if err := s.WriteBars(ctx, "XYZ", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "XYZ", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bars, want 1", len(got))
	}
	if !math.IsNaN(got[0].Open) {
		t.Errorf("Open = %v, want NaN round-trip", got[0].Open)
	}
	if got[0].Close != 50.0 {
		t.Errorf("Close = %v, want 50.0", got[0].Close)
	}
}

func TestParquetStoreMergesAcrossWrites(t *testing.T) {
	// Parquet writes merge per year file rather than deleting the ticker,
	// so two writes covering different dates both survive.
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{{Date: day(2024, 3, 1), Close: 100}}
	second := []domain.Bar{{Date: day(2024, 3, 4), Close: 101}}
	if err := s.WriteBars(ctx, "TSLA", first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	if err := s.WriteBars(ctx, "TSLA", second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := s.ReadBars(ctx, "TSLA", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars after merge, want 2", len(got))
	}
}
