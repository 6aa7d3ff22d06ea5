// Package sentiment provides a client for the news sentiment sidecar.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Directions returned by the sidecar.
const (
	DirectionBullish = "BULLISH"
	DirectionBearish = "BEARISH"
	DirectionNeutral = "NEUTRAL"
)

// Verdict is the sidecar's read on recent news for a market question.
type Verdict struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Headline   string  `json:"headline,omitempty"`
}

// Client talks to the sentiment sidecar. A nil client or empty base URL
// disables sentiment checks; callers treat a nil verdict as no signal.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a sentiment client. Returns nil when baseURL is empty
// so wiring can pass the disabled state through directly.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "sentiment").Logger(),
	}
}

type analyzeRequest struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
}

// Analyze asks the sidecar for a sentiment verdict on a market question.
// Returns nil without error when the sidecar has no signal; the admission
// gate treats a missing verdict as no confirmation.
func (c *Client) Analyze(ctx context.Context, question string) (*Verdict, error) {
	if c == nil {
		return nil, nil
	}

	reqBody, err := json.Marshal(analyzeRequest{
		Question: question,
		Keywords: ExtractKeywords(question),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sentiment sidecar returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	if verdict.Direction == "" {
		verdict.Direction = DirectionNeutral
	}

	c.log.Debug().
		Str("direction", verdict.Direction).
		Float64("confidence", verdict.Confidence).
		Msg("Sentiment verdict")

	return &verdict, nil
}

var stopwords = map[string]bool{
	"will": true, "the": true, "be": true, "a": true, "an": true,
	"in": true, "on": true, "by": true, "to": true, "of": true,
	"what": true, "how": true,
}

// ExtractKeywords pulls up to three search terms from a market question,
// dropping stopwords and short tokens.
func ExtractKeywords(question string) []string {
	cleaned := strings.ToLower(strings.ReplaceAll(question, "?", ""))
	words := strings.Fields(cleaned)

	keywords := make([]string, 0, 3)
	for _, w := range words {
		if stopwords[w] || len(w) <= 2 {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == 3 {
			break
		}
	}
	return keywords
}
