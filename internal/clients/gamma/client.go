// Package gamma provides a client for the Polymarket Gamma markets API.
package gamma

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

	"github.com/aristath/foresight/internal/domain"
)

const (
	defaultBaseURL = "https://gamma-api.polymarket.com"
	maxRetries     = 3
	retryBaseDelay = 1 * time.Second
	scanLimit      = 500
)

// Client fetches market data from the Gamma API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Gamma API client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log.With().Str("client", "gamma").Logger(),
	}
}

// ActiveMarkets fetches the active market list ordered by 24h volume and
// filters it to markets at or above minLiquidity. The API is asked for
// liquid markets already; the filter re-applies the floor because the
// endpoint occasionally returns thin markets regardless.
func (c *Client) ActiveMarkets(ctx context.Context, minLiquidity float64) ([]domain.Snapshot, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(scanLimit))
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")

	raw, err := c.fetchMarkets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active markets: %w", err)
	}

	snapshots := make([]domain.Snapshot, 0, len(raw))
	for i := range raw {
		m := &raw[i]
		if m.ConditionID == "" {
			continue
		}
		if float64(m.Liquidity) < minLiquidity {
			continue
		}
		snapshots = append(snapshots, m.toSnapshot())
	}

	c.log.Debug().
		Int("fetched", len(raw)).
		Int("liquid", len(snapshots)).
		Float64("min_liquidity", minLiquidity).
		Msg("Fetched active markets")

	return snapshots, nil
}

// MarketPrice returns the current YES ask for a market, or nil when the
// market is not in the active list or carries no ask. Nil rather than zero
// keeps a vanished market from reading as a crash and tripping stops.
func (c *Client) MarketPrice(ctx context.Context, conditionID string) (*float64, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(scanLimit))
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")

	raw, err := c.fetchMarkets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market price: %w", err)
	}

	for i := range raw {
		if raw[i].ConditionID != conditionID {
			continue
		}
		if raw[i].BestAsk == nil {
			return nil, nil
		}
		price := float64(*raw[i].BestAsk)
		return &price, nil
	}
	return nil, nil
}

// ResolutionPrice returns the YES settlement price for a resolved market:
// 1.0 when YES won, 0.0 when NO won, nil when the market has not resolved
// or is unknown to the closed-markets endpoint.
func (c *Client) ResolutionPrice(ctx context.Context, conditionID string) (*float64, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	params.Set("closed", "true")
	params.Set("limit", "5")

	raw, err := c.fetchMarkets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resolution price: %w", err)
	}

	for i := range raw {
		m := &raw[i]
		if m.ConditionID != conditionID {
			continue
		}
		if len(m.OutcomePrices) == 0 {
			continue
		}
		yes, err := strconv.ParseFloat(m.OutcomePrices[0], 64)
		if err != nil {
			c.log.Warn().
				Str("condition_id", conditionID).
				Str("outcome", m.OutcomePrices[0]).
				Msg("Unparseable outcome price on resolved market")
			continue
		}
		return &yes, nil
	}
	return nil, nil
}

func (c *Client) fetchMarkets(ctx context.Context, params url.Values) ([]rawMarket, error) {
	body, err := c.fetchWithRetry(ctx, "/markets", params)
	if err != nil {
		return nil, err
	}
	var raw []rawMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse markets response: %w", err)
	}
	return raw, nil
}

// fetchWithRetry issues a GET with exponential backoff. Rate limiting and
// gateway errors (429, 502, 503) retry; other HTTP errors fail immediately.
func (c *Client) fetchWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.log.Warn().
				Err(lastErr).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("wait", delay).
				Msg("Retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
				continue
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable:
			lastErr = fmt.Errorf("API returned status %d", resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", maxRetries, lastErr)
}
