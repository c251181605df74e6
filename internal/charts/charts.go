// Package charts renders equity traces as PNG line charts.
package charts

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vicanso/go-charts/v2"

	"stratlab/internal/domain"
)

// RenderEquity renders one trace's portfolio value over time.
func RenderEquity(trace *domain.EquityTrace) ([]byte, error) {
	if trace == nil || len(trace.States) == 0 {
		return nil, errors.New("empty trace")
	}

	labels := make([]string, len(trace.States))
	values := make([]float64, len(trace.States))
	for i, st := range trace.States {
		labels[i] = st.Date.Format("2006-01-02")
		values[i] = st.PortfolioValue
	}

	return renderLines(
		fmt.Sprintf("%s equity", trace.Ticker),
		labels,
		[][]float64{values},
		[]string{trace.Ticker},
	)
}

// RenderComparison renders the normalized returns factor of several traces on
// one chart so tickers with different capital bases share an axis. Traces
// must cover the same dates; the first trace supplies the x axis.
func RenderComparison(traces map[string]*domain.EquityTrace) ([]byte, error) {
	if len(traces) == 0 {
		return nil, errors.New("no traces")
	}

	tickers := make([]string, 0, len(traces))
	for ticker := range traces {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var labels []string
	series := make([][]float64, 0, len(tickers))
	for _, ticker := range tickers {
		trace := traces[ticker]
		if trace == nil || len(trace.States) == 0 {
			return nil, fmt.Errorf("empty trace for %s", ticker)
		}
		if labels == nil {
			labels = make([]string, len(trace.States))
			for i, st := range trace.States {
				labels[i] = st.Date.Format("2006-01-02")
			}
		}
		values := make([]float64, len(trace.States))
		for i, st := range trace.States {
			values[i] = st.ReturnsFactor
		}
		series = append(series, values)
	}

	return renderLines("Normalized returns", labels, series, tickers)
}

func renderLines(title string, labels []string, series [][]float64, names []string) ([]byte, error) {
	split := 10
	if len(labels) < split {
		split = len(labels)
	}

	painter, err := charts.LineRender(series,
		charts.TitleTextOptionFunc(title),
		charts.LegendLabelsOptionFunc(names),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			BoundaryGap: charts.FalseFlag(),
			SplitNumber: split,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}
