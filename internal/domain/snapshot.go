package domain

import "time"

// Snapshot is one market's externally supplied state at scan time. It is
// read-only input: the engine never mutates or persists snapshots beyond the
// cycle archive.
type Snapshot struct {
	ConditionID    string    `json:"condition_id" msgpack:"cid"`
	Question       string    `json:"question" msgpack:"q"`
	BestBid        float64   `json:"best_bid" msgpack:"bb"`
	BestAsk        float64   `json:"best_ask" msgpack:"ba"`
	Volume24h      float64   `json:"volume_24h" msgpack:"v24"`
	PriceChange1h  float64   `json:"price_change_1h" msgpack:"c1"`
	PriceChange24h float64   `json:"price_change_24h" msgpack:"c24"`
	Liquidity      float64   `json:"liquidity" msgpack:"liq"`
	EndDate        time.Time `json:"end_date" msgpack:"end"`
	Category       string    `json:"category,omitempty" msgpack:"cat"`
	TokenIDYes     string    `json:"token_id_yes,omitempty" msgpack:"ty"`
	TokenIDNo      string    `json:"token_id_no,omitempty" msgpack:"tn"`
}

// TokenID returns the CLOB token for the given side, empty when unknown.
func (s Snapshot) TokenID(side Side) string {
	if side == SideNo {
		return s.TokenIDNo
	}
	return s.TokenIDYes
}

// DaysToResolve returns the whole days until resolution, at least 1.
// Markets without a resolution date report 365 so the annualized-return
// floor prices their capital lockup pessimistically.
func (s Snapshot) DaysToResolve(now time.Time) int {
	if s.EndDate.IsZero() {
		return 365
	}
	days := int(s.EndDate.Sub(now).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// NoCost returns the cost of buying the NO side: the complement of the YES
// bid, falling back to the complement of the ask on a one-sided book.
func (s Snapshot) NoCost() float64 {
	if s.BestBid > 0 {
		return 1.0 - s.BestBid
	}
	return 1.0 - s.BestAsk
}
