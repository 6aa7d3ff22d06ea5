package domain

import "time"

// Position is the durable unit of committed capital in one market. At most
// one open position exists per condition id per capital pool. Positions are
// created and mutated only by the lifecycle manager.
type Position struct {
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Strategy    Strategy  `json:"strategy"`
	Side        Side      `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	Shares      float64   `json:"shares"`
	CostBasis   float64   `json:"cost_basis"`
	EntryFee    float64   `json:"entry_fee,omitempty"`
	EntryTime   time.Time `json:"entry_time"`
	Liquidity   float64   `json:"liquidity,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`

	// Spread-capture state: the synthetic quotes posted at entry. The ask is
	// the fill target; crossing it closes the position as filled-profit.
	MMBid float64 `json:"mm_bid,omitempty"`
	MMAsk float64 `json:"mm_ask,omitempty"`
}

// HoldDuration is the time the position has been open.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// CurrentValue converts a YES-side market price into this position's
// per-share value: NO positions are worth the complement.
func (p *Position) CurrentValue(yesPrice float64) float64 {
	if p.Side == SideNo {
		return 1.0 - yesPrice
	}
	return yesPrice
}

// PnLPct is the fractional profit of selling all shares at the given
// per-share value, measured against full cost basis (entry fee included).
func (p *Position) PnLPct(currentValue float64) float64 {
	if p.CostBasis <= 0 {
		return 0
	}
	return (p.Shares*currentValue - p.CostBasis) / p.CostBasis
}
