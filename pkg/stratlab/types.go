package stratlab

// BacktestRequest is the body of POST /api/backtest and, with Tickers instead
// of Ticker, POST /api/backtest/compare.
type BacktestRequest struct {
	Ticker  string   `json:"ticker"`
	Tickers []string `json:"tickers"`

	// Strategy selects a registered strategy. Empty defaults to buy_and_hold,
	// or to custom when StrategyCode is present.
	Strategy     string `json:"strategy"`
	StrategyCode string `json:"strategy_code"`

	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	InitialCapital     float64 `json:"initial_capital"`
	TransactionCostPct float64 `json:"transaction_cost_pct"`

	ShortWindow  int     `json:"short_window"`
	LongWindow   int     `json:"long_window"`
	VolThreshold float64 `json:"vol_threshold"`
	TakeProfit   float64 `json:"take_profit"`
	StopLoss     float64 `json:"stop_loss"`
}

// ResultPoint is one bar of a backtest result series.
type ResultPoint struct {
	Date           string  `json:"date"`
	PortfolioValue float64 `json:"portfolio_value"`
	Price          float64 `json:"price"`
	ReturnsFactor  float64 `json:"returns_factor"`
}

// Metrics is the performance summary of one backtest run. Pointer fields are
// null when the run's history is too short to define the metric.
type Metrics struct {
	FinalValue              float64  `json:"final_value"`
	TotalReturn             float64  `json:"total_return"`
	AnnualizedReturn        *float64 `json:"annualized_return"`
	AnnualizedVol           *float64 `json:"annualized_vol"`
	SharpeLike              *float64 `json:"sharpe_like"`
	MaxDrawdown             float64  `json:"max_drawdown"`
	MaxDrawdownDurationDays int      `json:"max_drawdown_duration_days"`
	InitialCapital          float64  `json:"initial_capital"`
}

// BacktestResponse is the body of a POST /api/backtest reply.
type BacktestResponse struct {
	Success   bool          `json:"success"`
	Results   []ResultPoint `json:"results,omitempty"`
	Metrics   *Metrics      `json:"metrics,omitempty"`
	PlotImage *string       `json:"plot_image"`
	Error     string        `json:"error,omitempty"`
}

// TickerComparison is one ticker's slot in a comparison reply. Either Results
// and Metrics are present or Error is.
type TickerComparison struct {
	Results []ResultPoint `json:"results,omitempty"`
	Metrics *Metrics      `json:"metrics,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// CompareResponse is the body of a POST /api/backtest/compare reply.
// NormalizedResults aligns every successful ticker's returns factor by date
// so the series are directly comparable from a shared 1.0 start.
type CompareResponse struct {
	Success           bool                        `json:"success"`
	Comparison        map[string]TickerComparison `json:"comparison,omitempty"`
	NormalizedResults []map[string]any            `json:"normalized_results,omitempty"`
	PlotImage         *string                     `json:"plot_image"`
	Error             string                      `json:"error,omitempty"`
}

// ChartPoint is one bar in a GET /api/stock reply. Fields that were absent or
// unparseable in the source data are null.
type ChartPoint struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume"`
}

// StockDataResponse is the body of a GET /api/stock/{ticker} reply.
type StockDataResponse struct {
	Success bool         `json:"success"`
	Ticker  string       `json:"ticker,omitempty"`
	Data    []ChartPoint `json:"data,omitempty"`
	Count   int          `json:"count"`
	Error   string       `json:"error,omitempty"`
}

// StocksResponse is the body of a GET /api/stocks reply.
type StocksResponse struct {
	Success bool     `json:"success"`
	Stocks  []string `json:"stocks"`
	Count   int      `json:"count"`
	Error   string   `json:"error,omitempty"`
}
