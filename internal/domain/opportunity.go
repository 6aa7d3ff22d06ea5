package domain

// Opportunity is a candidate trade produced by exactly one strategy detector
// from one snapshot. Opportunities live for a single cycle and are never
// persisted; the cycle archive stores a summary row for reporting only.
type Opportunity struct {
	Strategy         Strategy `json:"strategy"`
	Side             Side     `json:"side"`
	ConditionID      string   `json:"condition_id"`
	Question         string   `json:"question"`
	Price            float64  `json:"price"`
	RawReturn        float64  `json:"expected_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	DaysToResolve    int      `json:"days_to_resolve"`
	Liquidity        float64  `json:"liquidity"`
	Volume24h        float64  `json:"volume_24h,omitempty"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason"`

	// Stamped by the detection registry after the detector returns: the
	// YES-side CLOB token for the price stream and the market category,
	// so sizing and execution do not need the snapshot again.
	TokenID  string `json:"token_id,omitempty"`
	Category string `json:"category,omitempty"`

	// Dual-side legs: the individual YES/NO costs behind a BOTH entry.
	YesPrice float64 `json:"yes_price,omitempty"`
	NoPrice  float64 `json:"no_price,omitempty"`

	// Spread-capture synthetic quotes, offset from the observed midpoint.
	MMBid float64 `json:"mm_bid,omitempty"`
	MMAsk float64 `json:"mm_ask,omitempty"`

	// Cross-reference metadata: the reference spot, the parsed target, the
	// implied probability and the implied-vs-quoted gap that admitted the
	// trade. RefProb doubles as the sizing model's probability estimate.
	RefPrice  float64 `json:"ref_price,omitempty"`
	RefTarget float64 `json:"ref_target,omitempty"`
	RefProb   float64 `json:"ref_prob,omitempty"`
	Edge      float64 `json:"edge,omitempty"`
}
