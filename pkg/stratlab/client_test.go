package stratlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /api/stocks", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(StocksResponse{
			Success: true,
			Stocks:  []string{"AAPL", "MSFT"},
			Count:   2,
		})
	})
	mux.HandleFunc("POST /api/backtest", func(w http.ResponseWriter, r *http.Request) {
		var req BacktestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticker == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(BacktestResponse{Error: "ticker is required"})
			return
		}
		json.NewEncoder(w).Encode(BacktestResponse{
			Success: true,
			Results: []ResultPoint{{Date: "2024-01-02", PortfolioValue: 1000, Price: 100, ReturnsFactor: 1}},
			Metrics: &Metrics{FinalValue: 1000, InitialCapital: 1000, MaxDrawdown: -0.1},
		})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientHealth(t *testing.T) {
	ts := newFakeServer(t)
	c := NewClient(ts.URL)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestClientStocks(t *testing.T) {
	ts := newFakeServer(t)
	c := NewClient(ts.URL)

	stocks, err := c.Stocks(context.Background())
	if err != nil {
		t.Fatalf("Stocks: %v", err)
	}
	if len(stocks) != 2 || stocks[0] != "AAPL" {
		t.Errorf("Stocks = %v, want [AAPL MSFT]", stocks)
	}
}

func TestClientBacktest(t *testing.T) {
	ts := newFakeServer(t)
	c := NewClient(ts.URL)

	resp, err := c.Backtest(context.Background(), BacktestRequest{
		Ticker:    "AAPL",
		StartDate: "2024-01-02",
		EndDate:   "2024-01-04",
	})
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}
	if resp.Metrics == nil || resp.Metrics.InitialCapital != 1000 {
		t.Errorf("metrics = %+v, want initial capital 1000", resp.Metrics)
	}
	if resp.Metrics != nil && resp.Metrics.AnnualizedVol != nil {
		t.Errorf("annualized vol = %v, want null for single-bar run", *resp.Metrics.AnnualizedVol)
	}
}

func TestClientBacktestErrorEnvelope(t *testing.T) {
	ts := newFakeServer(t)
	c := NewClient(ts.URL)

	_, err := c.Backtest(context.Background(), BacktestRequest{})
	if err == nil {
		t.Fatal("Backtest succeeded without ticker, want error")
	}
}
