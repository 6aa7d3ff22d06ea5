package gamma

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/foresight/internal/domain"
)

// flexFloat decodes numbers the API returns either as JSON numbers or as
// quoted strings ("0.97"). Empty strings and null decode to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexStrings decodes string arrays the API returns either as real JSON
// arrays or as a quoted string containing a JSON array ("[\"1\",\"0\"]").
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = nil
		return nil
	}
	if len(s) >= 1 && s[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*f = arr
		return nil
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}
	inner = strings.TrimSpace(inner)
	if inner == "" {
		*f = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(inner), &arr); err != nil {
		// Malformed embedded array is treated as absent, not fatal
		*f = nil
		return nil
	}
	*f = arr
	return nil
}

// rawMarket mirrors the Gamma API market record. Numeric fields arrive as
// strings or numbers depending on the endpoint, hence the flex types.
type rawMarket struct {
	ConditionID    string      `json:"conditionId"`
	Question       string      `json:"question"`
	BestBid        *flexFloat  `json:"bestBid"`
	BestAsk        *flexFloat  `json:"bestAsk"`
	Volume24h      flexFloat   `json:"volume24hr"`
	PriceChange1h  flexFloat   `json:"oneHourPriceChange"`
	PriceChange24h flexFloat   `json:"oneDayPriceChange"`
	Liquidity      flexFloat   `json:"liquidityNum"`
	EndDate        string      `json:"endDate"`
	Category       string      `json:"category"`
	OutcomePrices  flexStrings `json:"outcomePrices"`
	ClobTokenIDs   flexStrings `json:"clobTokenIds"`
}

func floatVal(f *flexFloat) float64 {
	if f == nil {
		return 0
	}
	return float64(*f)
}

// toSnapshot converts a raw market record into the domain snapshot the
// detectors consume.
func (m *rawMarket) toSnapshot() domain.Snapshot {
	snap := domain.Snapshot{
		ConditionID:    m.ConditionID,
		Question:       m.Question,
		BestBid:        floatVal(m.BestBid),
		BestAsk:        floatVal(m.BestAsk),
		Volume24h:      float64(m.Volume24h),
		PriceChange1h:  float64(m.PriceChange1h),
		PriceChange24h: float64(m.PriceChange24h),
		Liquidity:      float64(m.Liquidity),
		Category:       normalizeCategory(m.Category),
	}
	if len(m.ClobTokenIDs) > 0 {
		snap.TokenIDYes = m.ClobTokenIDs[0]
	}
	if len(m.ClobTokenIDs) > 1 {
		snap.TokenIDNo = m.ClobTokenIDs[1]
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			snap.EndDate = t
		}
	}
	return snap
}

func normalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "other"
	}
	return c
}
