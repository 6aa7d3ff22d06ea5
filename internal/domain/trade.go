package domain

import "time"

// ExitReason records why a position left the book. Stored on the closing
// trade in the ledger history.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTimeout    ExitReason = "TIMEOUT"
	ExitResolved   ExitReason = "RESOLVED"
	ExitMMFilled   ExitReason = "MM_FILLED"
	ExitMMStop     ExitReason = "MM_STOP"
	ExitMMTimeout  ExitReason = "MM_TIMEOUT"
	ExitMMResolved ExitReason = "MM_RESOLVED"
	ExitMMDelisted ExitReason = "MM_DELISTED"
)

// Trade is one completed round trip, appended to the ledger history at exit.
type Trade struct {
	ID          string     `json:"id"`
	ConditionID string     `json:"condition_id"`
	Question    string     `json:"question"`
	Strategy    Strategy   `json:"strategy"`
	Side        Side       `json:"side"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Shares      float64    `json:"shares"`
	CostBasis   float64    `json:"cost_basis"`
	PnL         float64    `json:"pnl"`
	PnLPct      float64    `json:"pnl_pct"`
	EntryFee    float64    `json:"entry_fee,omitempty"`
	ExitFee     float64    `json:"exit_fee,omitempty"`
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    time.Time  `json:"exit_time"`
	ExitReason  ExitReason `json:"exit_reason"`
}
