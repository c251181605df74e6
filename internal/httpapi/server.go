// Package httpapi provides the JSON REST API for browsing price data and
// running backtests over HTTP. The wire types live in pkg/stratlab so the
// client SDK and the server share one contract.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"stratlab/internal/charts"
	"stratlab/internal/compare"
	"stratlab/internal/config"
	"stratlab/internal/domain"
	"stratlab/internal/loader"
	api "stratlab/pkg/stratlab"
)

// Server serves the backtest REST API.
type Server struct {
	loader         *loader.Loader
	runner         *compare.Runner
	defaultCapital float64
	log            *slog.Logger
}

// NewServer creates an API server over the given loader and runner.
func NewServer(l *loader.Loader, r *compare.Runner, defaultCapital float64, log *slog.Logger) *Server {
	if defaultCapital <= 0 {
		defaultCapital = 10_000
	}
	return &Server{
		loader:         l,
		runner:         r,
		defaultCapital: defaultCapital,
		log:            log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stocks", s.handleStocks)
	mux.HandleFunc("GET /api/stock/{ticker}", s.handleStockData)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/backtest/compare", s.handleCompare)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"message": "API server is running",
	})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.loader.Tickers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	writeJSON(w, api.StocksResponse{Success: true, Stocks: tickers, Count: len(tickers)})
}

func (s *Server) handleStockData(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")

	start, err := parseDateParam(r, "start")
	if err != nil {
		s.writeError(w, err)
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil {
		s.writeError(w, err)
		return
	}

	series, err := s.loader.Load(r.Context(), ticker, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data := make([]api.ChartPoint, series.Len())
	for i, b := range series.Bars {
		data[i] = api.ChartPoint{
			Date:   b.Date.Format("2006-01-02"),
			Open:   finitePtr(b.Open),
			High:   finitePtr(b.High),
			Low:    finitePtr(b.Low),
			Close:  b.Close,
			Volume: finitePtr(b.Volume),
		}
	}
	writeJSON(w, api.StockDataResponse{
		Success: true,
		Ticker:  strings.ToUpper(ticker),
		Data:    data,
		Count:   len(data),
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Ticker == "" {
		s.writeError(w, invalid("ticker is required"))
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		s.writeError(w, invalid("start_date and end_date are required"))
		return
	}

	out := s.runner.Run(r.Context(), s.experimentFrom(req, req.Ticker))
	if out.Err != nil {
		s.writeError(w, out.Err)
		return
	}

	resp := api.BacktestResponse{
		Success: true,
		Results: resultPoints(out.Trace),
		Metrics: metricsJSON(out),
	}
	if img, err := charts.RenderEquity(out.Trace); err == nil {
		resp.PlotImage = base64Ptr(img)
	} else if s.log != nil {
		s.log.Warn("rendering equity chart", "ticker", req.Ticker, "err", err)
	}
	writeJSON(w, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Tickers) == 0 {
		s.writeError(w, invalid("tickers must be a non-empty list"))
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		s.writeError(w, invalid("start_date and end_date are required"))
		return
	}

	outcomes := s.runner.Compare(r.Context(), req.Tickers, s.experimentFrom(req, ""))

	comparison := make(map[string]api.TickerComparison, len(outcomes))
	traces := make(map[string]*domain.EquityTrace)
	for ticker, out := range outcomes {
		if out.Err != nil {
			comparison[ticker] = api.TickerComparison{Error: out.Err.Error()}
			continue
		}
		comparison[ticker] = api.TickerComparison{
			Results: resultPoints(out.Trace),
			Metrics: metricsJSON(out),
		}
		traces[ticker] = out.Trace
	}

	resp := api.CompareResponse{
		Success:           true,
		Comparison:        comparison,
		NormalizedResults: normalizedResults(req.Tickers, traces),
	}
	if len(traces) > 0 {
		if img, err := charts.RenderComparison(traces); err == nil {
			resp.PlotImage = base64Ptr(img)
		} else if s.log != nil {
			s.log.Warn("rendering comparison chart", "err", err)
		}
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeRequest(r *http.Request) (api.BacktestRequest, error) {
	var req api.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, invalid("invalid request body: " + err.Error())
	}
	return req, nil
}

// experimentFrom maps an API request onto an experiment. The strategy
// defaults to buy-and-hold, or to the script strategy when code is supplied.
func (s *Server) experimentFrom(req api.BacktestRequest, ticker string) config.Experiment {
	strategyID := req.Strategy
	if strategyID == "" {
		strategyID = config.StrategyBuyAndHold
		if req.StrategyCode != "" {
			strategyID = config.StrategyCustom
		}
	}
	capital := req.InitialCapital
	if capital == 0 {
		capital = s.defaultCapital
	}
	return config.Experiment{
		Ticker:             ticker,
		Strategy:           strategyID,
		BuyDate:            req.StartDate,
		EndDate:            req.EndDate,
		InitialCapital:     capital,
		TransactionCostPct: req.TransactionCostPct,
		ShortWindow:        req.ShortWindow,
		LongWindow:         req.LongWindow,
		VolThreshold:       req.VolThreshold,
		TakeProfit:         req.TakeProfit,
		StopLoss:           req.StopLoss,
		CustomSource:       req.StrategyCode,
	}
}

func resultPoints(trace *domain.EquityTrace) []api.ResultPoint {
	points := make([]api.ResultPoint, len(trace.States))
	for i, st := range trace.States {
		points[i] = api.ResultPoint{
			Date:           st.Date.Format("2006-01-02"),
			PortfolioValue: st.PortfolioValue,
			Price:          st.Price,
			ReturnsFactor:  st.ReturnsFactor,
		}
	}
	return points
}

func metricsJSON(out compare.Outcome) *api.Metrics {
	m := out.Metrics
	return &api.Metrics{
		FinalValue:              m.FinalValue,
		TotalReturn:             m.TotalReturn,
		AnnualizedReturn:        m.AnnualizedReturn,
		AnnualizedVol:           m.AnnualizedVol,
		SharpeLike:              m.SharpeLike,
		MaxDrawdown:             m.MaxDrawdown,
		MaxDrawdownDurationDays: m.MaxDrawdownDurationDays,
		InitialCapital:          out.Trace.InitialCapital,
	}
}

// normalizedResults merges the successful traces into one date-keyed series
// of returns factors. Dates are the union across tickers, sorted; a ticker
// without a bar on a date is simply absent from that point.
func normalizedResults(tickers []string, traces map[string]*domain.EquityTrace) []map[string]any {
	factors := make(map[string]map[string]float64)
	dateSet := make(map[string]struct{})
	for ticker, trace := range traces {
		byDate := make(map[string]float64, len(trace.States))
		for _, st := range trace.States {
			date := st.Date.Format("2006-01-02")
			byDate[date] = st.ReturnsFactor
			dateSet[date] = struct{}{}
		}
		factors[ticker] = byDate
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	points := make([]map[string]any, 0, len(dates))
	for _, date := range dates {
		point := map[string]any{"date": date}
		for _, ticker := range tickers {
			if f, ok := factors[ticker][date]; ok {
				point[ticker] = f
			}
		}
		if len(point) > 1 {
			points = append(points, point)
		}
	}
	return points
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, invalid("bad " + name + " date " + raw)
	}
	return t, nil
}

func finitePtr(v float64) *float64 {
	if !domain.IsFinite(v) {
		return nil
	}
	return &v
}

func base64Ptr(img []byte) *string {
	s := base64.StdEncoding.EncodeToString(img)
	return &s
}

func invalid(msg string) error {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses: bad parameters are 400,
// missing data is 404, everything else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.status
	case errors.Is(err, domain.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusNotFound
	}

	if s.log != nil && status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
