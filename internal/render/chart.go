// Package render produces chart images for live price graph jobs. The
// rendering itself happens in an external service; this package only shapes
// the request and carries the opaque PNG back.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"cryptotracker/internal/prices"
)

// Point is one observed price at a moment in time.
type Point struct {
	At    time.Time
	Price decimal.Decimal
}

// Charter renders a PNG line chart for a symbol's recent price series.
type Charter interface {
	Render(ctx context.Context, symbol string, series []Point) ([]byte, error)
}

const defaultBaseURL = "https://quickchart.io"

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// QuickChart implements Charter against the quickchart.io chart API.
type QuickChart struct {
	base string
	http *http.Client
}

func NewQuickChart(cfg Config) *QuickChart {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &QuickChart{base: base, http: &http.Client{Timeout: timeout}}
}

func (q *QuickChart) Render(ctx context.Context, symbol string, series []Point) ([]byte, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: empty series for %s", prices.ErrUnavailable, symbol)
	}

	labels := make([]string, len(series))
	values := make([]string, len(series))
	for i, p := range series {
		labels[i] = p.At.Format("15:04")
		values[i] = p.Price.String()
	}

	payload := map[string]any{
		"format":          "png",
		"width":           700,
		"height":          400,
		"backgroundColor": "white",
		"chart": map[string]any{
			"type": "line",
			"data": map[string]any{
				"labels": labels,
				"datasets": []map[string]any{{
					"label": symbol + " (USD)",
					"data":  values,
					"fill":  false,
				}},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.base+"/chart", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prices.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prices.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chart render status %d", prices.ErrUnavailable, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
