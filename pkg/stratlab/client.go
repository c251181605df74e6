// Package stratlab provides a Go SDK for the stratlab-server API.
package stratlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a running stratlab-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stratlab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.get(ctx, "/api/health", nil, &body); err != nil {
		return err
	}
	if body["status"] != "healthy" {
		return fmt.Errorf("server unhealthy: %v", body)
	}
	return nil
}

// Stocks lists the tickers the server can serve.
func (c *Client) Stocks(ctx context.Context) ([]string, error) {
	var body StocksResponse
	if err := c.get(ctx, "/api/stocks", nil, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("listing stocks: %s", body.Error)
	}
	return body.Stocks, nil
}

// StockData retrieves bars for a ticker. Empty start or end leaves that side
// of the range unbounded.
func (c *Client) StockData(ctx context.Context, ticker, start, end string) (*StockDataResponse, error) {
	params := url.Values{}
	if start != "" {
		params.Set("start", start)
	}
	if end != "" {
		params.Set("end", end)
	}

	var body StockDataResponse
	if err := c.get(ctx, "/api/stock/"+url.PathEscape(ticker), params, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("loading %s: %s", ticker, body.Error)
	}
	return &body, nil
}

// Backtest runs one backtest.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	var body BacktestResponse
	if err := c.post(ctx, "/api/backtest", req, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("backtest: %s", body.Error)
	}
	return &body, nil
}

// Compare runs one experiment across the request's tickers.
func (c *Client) Compare(ctx context.Context, req BacktestRequest) (*CompareResponse, error) {
	var body CompareResponse
	if err := c.post(ctx, "/api/backtest/compare", req, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("comparison: %s", body.Error)
	}
	return &body, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the body regardless of status so the
// caller sees the server's error envelope, not just a status code.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", req.Method, req.URL.Path, resp.StatusCode, err)
	}
	return nil
}
