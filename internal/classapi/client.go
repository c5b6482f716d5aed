// Package classapi talks to the classification REST API.
package classapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/stockclass/internal/classification"
)

// maxBodyBytes caps how much of any response is read.
const maxBodyBytes = 32 << 20

// Client communicates with the classification HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stats      *Stats
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		stats: NewStats(0),
	}
}

// Stats returns request latency figures for the recent window.
func (c *Client) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// StocksPage is the response of GET /classification/stocks. Count is nil
// when the server did not send a numeric count.
type StocksPage struct {
	Rows  []classification.StockRow
	Count *int
}

// UpdateRequest is the body for PUT /classification/stocks/{id}.
type UpdateRequest struct {
	CompanyName       string `json:"company_name"`
	BasicIndCode      string `json:"basic_ind_code"`
	MarketCapCategory string `json:"market_cap_category"`
}

// DropdownData fetches the raw classification payload. The body is returned
// undecoded; classification.Normalize decides its shape.
func (c *Client) DropdownData(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "dropdown data", "/classification/dropdown-data", nil)
}

// BasicIndustries fetches the basic-industry catalog used by the edit form.
func (c *Client) BasicIndustries(ctx context.Context) ([]classification.BasicOption, error) {
	body, err := c.get(ctx, "basic industries", "/classification/basic-industries", nil)
	if err != nil {
		return nil, err
	}
	return classification.ParseCatalog(body), nil
}

// Stocks lists the companies classified under basicCode.
func (c *Client) Stocks(ctx context.Context, basicCode string) (StocksPage, error) {
	q := url.Values{"basic_ind_code": {basicCode}}
	body, err := c.get(ctx, "stocks", "/classification/stocks", q)
	if err != nil {
		return StocksPage{}, err
	}

	var result struct {
		Data  json.RawMessage `json:"data"`
		Count json.RawMessage `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		// Some deployments answer with a bare array.
		var rows []classification.StockRow
		if err2 := json.Unmarshal(body, &rows); err2 != nil {
			return StocksPage{}, fmt.Errorf("decode stocks: %w", err)
		}
		return StocksPage{Rows: rows}, nil
	}

	page := StocksPage{Rows: []classification.StockRow{}}
	if len(result.Data) > 0 {
		var rows []classification.StockRow
		if err := json.Unmarshal(result.Data, &rows); err == nil && rows != nil {
			page.Rows = rows
		}
	}
	var count float64
	if len(result.Count) > 0 && result.Count[0] != 'n' && json.Unmarshal(result.Count, &count) == nil {
		n := int(count)
		page.Count = &n
	}
	return page, nil
}

// UpdateStock changes a company's name, basic industry and market cap and
// returns the server-confirmed row.
func (c *Client) UpdateStock(ctx context.Context, companyID int64, req UpdateRequest) (classification.StockRow, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return classification.StockRow{}, fmt.Errorf("marshal update: %w", err)
	}
	path := "/classification/stocks/" + strconv.FormatInt(companyID, 10)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return classification.StockRow{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	respBody, err := c.do(httpReq, "update stock")
	if err != nil {
		return classification.StockRow{}, err
	}

	var wrapped struct {
		Data *classification.StockRow `json:"data"`
	}
	if err := json.Unmarshal(respBody, &wrapped); err == nil && wrapped.Data != nil {
		return *wrapped.Data, nil
	}
	var row classification.StockRow
	if err := json.Unmarshal(respBody, &row); err != nil {
		return classification.StockRow{}, fmt.Errorf("decode updated stock: %w", err)
	}
	return row, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	return c.do(httpReq, op)
}

func (c *Client) do(httpReq *http.Request, op string) ([]byte, error) {
	start := time.Now()
	body, err := c.roundTrip(httpReq, op)
	if !errors.Is(err, context.Canceled) {
		c.stats.Record(op, time.Since(start), err != nil)
	}
	return body, err
}

func (c *Client) roundTrip(httpReq *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, newAPIError(op, resp.StatusCode, respBody)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
