package analytics

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"stratlab/internal/domain"
)

func traceOf(initial float64, values ...float64) *domain.EquityTrace {
	states := make([]domain.PositionState, len(values))
	for i, v := range values {
		states[i] = domain.PositionState{
			Date:           time.Date(2024, 1, i+2, 0, 0, 0, 0, time.UTC),
			PortfolioValue: v,
			ReturnsFactor:  v / initial,
		}
	}
	return &domain.EquityTrace{Ticker: "TEST", InitialCapital: initial, States: states}
}

func TestAnalyzeSweep(t *testing.T) {
	trace := traceOf(1000, 1000, 1100, 900)

	rec, err := Analyze(trace, 252)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if rec.FinalValue != 900 {
		t.Errorf("FinalValue = %v, want 900", rec.FinalValue)
	}
	if math.Abs(rec.TotalReturn-(-0.1)) > 1e-9 {
		t.Errorf("TotalReturn = %v, want -0.1", rec.TotalReturn)
	}
	if math.Abs(rec.MaxDrawdown-(-0.18181818181818182)) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want -0.1818...", rec.MaxDrawdown)
	}
	if rec.MaxDrawdownDurationDays != 1 {
		t.Errorf("MaxDrawdownDurationDays = %d, want 1", rec.MaxDrawdownDurationDays)
	}
	if rec.AnnualizedReturn == nil || !domain.IsFinite(*rec.AnnualizedReturn) {
		t.Error("AnnualizedReturn nil or non-finite for multi-day trace")
	}
	if rec.AnnualizedVol == nil || *rec.AnnualizedVol <= 0 {
		t.Error("AnnualizedVol nil or non-positive for varying trace")
	}
	if rec.SharpeLike == nil {
		t.Error("SharpeLike nil with defined return and non-zero vol")
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	trace := traceOf(1000, 1000, 1100, 900, 950, 1200)

	first, err := Analyze(trace, 252)
	if err != nil {
		t.Fatalf("Analyze (first): %v", err)
	}
	second, err := Analyze(trace, 252)
	if err != nil {
		t.Fatalf("Analyze (second): %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Analyze differs: %+v vs %+v", first, second)
	}
}

func TestAnalyzeSingleBar(t *testing.T) {
	rec, err := Analyze(traceOf(1000, 1000), 252)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if rec.TotalReturn != 0 {
		t.Errorf("TotalReturn = %v, want 0", rec.TotalReturn)
	}
	if rec.AnnualizedReturn != nil || rec.AnnualizedVol != nil || rec.SharpeLike != nil {
		t.Error("annualized metrics should be nil for a single-bar trace")
	}
	if rec.MaxDrawdown != 0 || rec.MaxDrawdownDurationDays != 0 {
		t.Errorf("drawdown = %v/%d, want 0/0", rec.MaxDrawdown, rec.MaxDrawdownDurationDays)
	}
}

func TestAnalyzeFlatTraceVolZeroSharpeNil(t *testing.T) {
	rec, err := Analyze(traceOf(1000, 1000, 1000, 1000), 252)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.AnnualizedVol == nil || *rec.AnnualizedVol != 0 {
		t.Errorf("AnnualizedVol = %v, want 0 for flat trace", rec.AnnualizedVol)
	}
	if rec.SharpeLike != nil {
		t.Errorf("SharpeLike = %v, want nil when volatility is zero", *rec.SharpeLike)
	}
}

func TestAnalyzeDrawdownBounds(t *testing.T) {
	cases := [][]float64{
		{1000, 1100, 1200, 1300},     // monotonic up
		{1000, 900, 800, 700},        // monotonic down
		{1000, 500, 1500, 200, 1800}, // whipsaw
		{1000, 1, 1000},              // near-total loss and recovery
	}
	for _, values := range cases {
		rec, err := Analyze(traceOf(1000, values...), 252)
		if err != nil {
			t.Fatalf("Analyze(%v): %v", values, err)
		}
		if rec.MaxDrawdown < -1 || rec.MaxDrawdown > 0 {
			t.Errorf("MaxDrawdown(%v) = %v, outside [-1, 0]", values, rec.MaxDrawdown)
		}
		if rec.MaxDrawdownDurationDays < 0 {
			t.Errorf("MaxDrawdownDurationDays(%v) = %d, negative", values, rec.MaxDrawdownDurationDays)
		}
	}
}

func TestAnalyzeMonotonicUpNoDrawdown(t *testing.T) {
	rec, err := Analyze(traceOf(1000, 1000, 1100, 1200), 252)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.MaxDrawdown != 0 || rec.MaxDrawdownDurationDays != 0 {
		t.Errorf("drawdown = %v/%d, want 0/0 for monotonic gains", rec.MaxDrawdown, rec.MaxDrawdownDurationDays)
	}
}

func TestAnalyzeUnrecoveredDrawdownDuration(t *testing.T) {
	// Peak on day one, below it for the remaining four days.
	rec, err := Analyze(traceOf(1000, 1000, 900, 950, 920, 930), 252)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.MaxDrawdownDurationDays != 4 {
		t.Errorf("MaxDrawdownDurationDays = %d, want 4", rec.MaxDrawdownDurationDays)
	}
}

func TestAnalyzeEmptyTrace(t *testing.T) {
	_, err := Analyze(&domain.EquityTrace{InitialCapital: 1000}, 252)
	if !errors.Is(err, domain.ErrStrategyContract) {
		t.Errorf("err = %v, want ErrStrategyContract", err)
	}
	_, err = Analyze(nil, 252)
	if !errors.Is(err, domain.ErrStrategyContract) {
		t.Errorf("nil trace err = %v, want ErrStrategyContract", err)
	}
}

func TestAnalyzeInvalidTradingDays(t *testing.T) {
	_, err := Analyze(traceOf(1000, 1000), 0)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
