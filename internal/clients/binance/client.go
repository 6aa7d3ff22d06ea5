// Package binance provides a client for Binance spot market data.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.binance.com"

// Client fetches spot prices and daily klines from the Binance public API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Binance client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "binance").Logger(),
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// SpotPrices fetches current spot prices for the requested symbols. Symbols
// missing from the exchange response are absent from the result map.
func (c *Client) SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	body, err := c.get(ctx, "/api/v3/ticker/price", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot prices: %w", err)
	}

	var tickers []tickerPrice
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	prices := make(map[string]float64, len(symbols))
	for _, t := range tickers {
		if !wanted[t.Symbol] {
			continue
		}
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			c.log.Warn().Str("symbol", t.Symbol).Str("price", t.Price).Msg("Unparseable ticker price")
			continue
		}
		prices[t.Symbol] = p
	}

	c.log.Debug().Int("count", len(prices)).Msg("Fetched spot prices")
	return prices, nil
}

// Kline is one daily candle reduced to what the engine keeps: the open
// time and the close.
type Kline struct {
	Date  time.Time
	Close float64
}

// DailyKlines fetches the last limit daily candles for a symbol, oldest
// first. Malformed rows are dropped rather than failing the batch.
func (c *Client) DailyKlines(ctx context.Context, symbol string, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = 30
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1d")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	// Klines arrive as arrays: [openTime, open, high, low, close, volume, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse klines for %s: %w", symbol, err)
	}

	klines := make([]Kline, 0, len(rows))
	for _, k := range rows {
		if len(k) < 5 {
			continue
		}
		var openMillis int64
		if err := json.Unmarshal(k[0], &openMillis); err != nil {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			continue
		}
		v, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			continue
		}
		klines = append(klines, Kline{Date: time.UnixMilli(openMillis).UTC(), Close: v})
	}

	return klines, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
