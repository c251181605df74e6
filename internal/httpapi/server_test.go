package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stratlab/internal/compare"
	"stratlab/internal/domain"
	"stratlab/internal/loader"
	"stratlab/internal/strategy"
	"stratlab/internal/strategy/builtins"
	"stratlab/internal/strategy/custom"
	api "stratlab/pkg/stratlab"
)

type tableSource struct {
	tables map[string]loader.Table
}

func (s *tableSource) Fetch(_ context.Context, ticker string) (loader.Table, error) {
	t, ok := s.tables[ticker]
	if !ok {
		return loader.Table{}, fmt.Errorf("%w: %s", domain.ErrDataUnavailable, ticker)
	}
	return t, nil
}

func (s *tableSource) Tickers(_ context.Context) ([]string, error) {
	return []string{"AAPL", "MSFT"}, nil
}

func priceTable(closes ...float64) loader.Table {
	rows := make([][]string, len(closes))
	for i, c := range closes {
		rows[i] = []string{fmt.Sprintf("2024-01-%02d", i+2), fmt.Sprintf("%v", c)}
	}
	return loader.Table{Columns: []string{"date", "close"}, Rows: rows}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	l := loader.New(&tableSource{tables: map[string]loader.Table{
		"AAPL": priceTable(100, 110, 90),
		"MSFT": priceTable(400, 410, 430),
	}})

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)
	registry.Register(&custom.ScriptStrategy{})

	runner := &compare.Runner{
		Loader:             l,
		Registry:           registry,
		TradingDaysPerYear: 252,
		MaxWorkers:         2,
	}

	ts := httptest.NewServer(NewServer(l, runner, 10_000, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
}

func postJSON(t *testing.T, url, body string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	getJSON(t, ts.URL+"/api/health", http.StatusOK, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestStocks(t *testing.T) {
	ts := newTestServer(t)

	var body api.StocksResponse
	getJSON(t, ts.URL+"/api/stocks", http.StatusOK, &body)
	if !body.Success || body.Count != 2 {
		t.Errorf("response = %+v, want 2 stocks", body)
	}
}

func TestStockData(t *testing.T) {
	ts := newTestServer(t)

	var body api.StockDataResponse
	getJSON(t, ts.URL+"/api/stock/aapl?start=2024-01-03&end=2024-01-04", http.StatusOK, &body)
	if !body.Success || body.Ticker != "AAPL" {
		t.Fatalf("response = %+v", body)
	}
	if body.Count != 2 || len(body.Data) != 2 {
		t.Fatalf("count = %d, want 2 bars in range", body.Count)
	}
	if body.Data[0].Close != 110 {
		t.Errorf("first close = %v, want 110", body.Data[0].Close)
	}
}

func TestStockDataNotFound(t *testing.T) {
	ts := newTestServer(t)

	var body api.StockDataResponse
	getJSON(t, ts.URL+"/api/stock/NOPE", http.StatusNotFound, &body)
	if body.Success || body.Error == "" {
		t.Errorf("response = %+v, want failure envelope", body)
	}
}

func TestBacktest(t *testing.T) {
	ts := newTestServer(t)

	var body api.BacktestResponse
	postJSON(t, ts.URL+"/api/backtest", `{
		"ticker": "AAPL",
		"start_date": "2024-01-02",
		"end_date": "2024-01-04",
		"initial_capital": 1000
	}`, http.StatusOK, &body)

	if !body.Success {
		t.Fatalf("response = %+v", body)
	}
	if len(body.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(body.Results))
	}
	if body.Metrics == nil {
		t.Fatal("metrics missing")
	}
	if math.Abs(body.Metrics.TotalReturn-(-0.1)) > 1e-9 {
		t.Errorf("total return = %v, want -0.1", body.Metrics.TotalReturn)
	}
	if body.Metrics.InitialCapital != 1000 {
		t.Errorf("initial capital = %v, want 1000", body.Metrics.InitialCapital)
	}
	if body.PlotImage == nil || *body.PlotImage == "" {
		t.Error("plot image missing")
	}
}

func TestBacktestValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []string{
		`{"start_date": "2024-01-02", "end_date": "2024-01-04"}`,
		`{"ticker": "AAPL"}`,
		`not json`,
	}
	for _, body := range cases {
		var resp api.BacktestResponse
		postJSON(t, ts.URL+"/api/backtest", body, http.StatusBadRequest, &resp)
		if resp.Success || resp.Error == "" {
			t.Errorf("body %q: response = %+v, want failure envelope", body, resp)
		}
	}
}

func TestBacktestUnknownTicker(t *testing.T) {
	ts := newTestServer(t)

	var body api.BacktestResponse
	postJSON(t, ts.URL+"/api/backtest", `{
		"ticker": "NOPE",
		"start_date": "2024-01-02",
		"end_date": "2024-01-04"
	}`, http.StatusNotFound, &body)
	if body.Success {
		t.Errorf("response = %+v, want failure", body)
	}
}

func TestBacktestCustomScript(t *testing.T) {
	ts := newTestServer(t)

	script := `
trace = []
for i := 0; i < len(bars); i++ {
	trace = append(trace, {
		date: bars[i].date,
		price: bars[i].close,
		shares: 0,
		cash: initial_capital,
		portfolio_value: initial_capital
	})
}
`
	payload, _ := json.Marshal(api.BacktestRequest{
		Ticker:         "AAPL",
		StrategyCode:   script,
		StartDate:      "2024-01-02",
		EndDate:        "2024-01-04",
		InitialCapital: 1000,
	})

	var body api.BacktestResponse
	postJSON(t, ts.URL+"/api/backtest", string(payload), http.StatusOK, &body)
	if !body.Success || body.Metrics == nil {
		t.Fatalf("response = %+v", body)
	}
	if body.Metrics.TotalReturn != 0 {
		t.Errorf("total return = %v, want 0 for all-cash script", body.Metrics.TotalReturn)
	}
}

func TestCompareIsolatesFailures(t *testing.T) {
	ts := newTestServer(t)

	var body api.CompareResponse
	postJSON(t, ts.URL+"/api/backtest/compare", `{
		"tickers": ["AAPL", "MSFT", "GOOGL"],
		"start_date": "2024-01-02",
		"end_date": "2024-01-04",
		"initial_capital": 1000
	}`, http.StatusOK, &body)

	if !body.Success {
		t.Fatalf("response = %+v", body)
	}
	if len(body.Comparison) != 3 {
		t.Fatalf("comparison entries = %d, want 3", len(body.Comparison))
	}
	for _, ticker := range []string{"AAPL", "MSFT"} {
		entry := body.Comparison[ticker]
		if entry.Error != "" || entry.Metrics == nil || len(entry.Results) != 3 {
			t.Errorf("%s entry = %+v, want results and metrics", ticker, entry)
		}
	}
	if body.Comparison["GOOGL"].Error == "" {
		t.Error("GOOGL entry missing error")
	}
	if body.Comparison["GOOGL"].Metrics != nil {
		t.Error("GOOGL entry has metrics")
	}

	if len(body.NormalizedResults) != 3 {
		t.Fatalf("normalized results = %d, want 3 dates", len(body.NormalizedResults))
	}
	first := body.NormalizedResults[0]
	if first["date"] != "2024-01-02" {
		t.Errorf("first normalized date = %v, want 2024-01-02", first["date"])
	}
	if v, ok := first["AAPL"].(float64); !ok || math.Abs(v-1.0) > 1e-9 {
		t.Errorf("AAPL normalized start = %v, want 1.0", first["AAPL"])
	}
	if _, ok := first["GOOGL"]; ok {
		t.Error("failed ticker present in normalized results")
	}
	if body.PlotImage == nil || *body.PlotImage == "" {
		t.Error("plot image missing")
	}
}

func TestCompareValidation(t *testing.T) {
	ts := newTestServer(t)

	var body api.CompareResponse
	postJSON(t, ts.URL+"/api/backtest/compare", `{
		"tickers": [],
		"start_date": "2024-01-02",
		"end_date": "2024-01-04"
	}`, http.StatusBadRequest, &body)
	if body.Success || body.Error == "" {
		t.Errorf("response = %+v, want failure envelope", body)
	}
}
