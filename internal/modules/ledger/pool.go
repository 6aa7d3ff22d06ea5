// Package ledger is the capital accounting for one pool: cash balance,
// open positions, the append-only trade history and per-strategy
// performance counters. The lifecycle manager is the only writer; the
// API reads concurrent snapshots.
package ledger

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrPositionExists      = errors.New("ledger: position already open for market")
	ErrPositionNotFound    = errors.New("ledger: position not found")
	ErrBadOrder            = errors.New("ledger: non-positive amount or price")
)

const questionMaxLen = 80

// Metrics are the pool-wide counters, updated on every close.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	PeakBalance   float64 `json:"peak_balance"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// StrategyMetrics split performance by detector so strategies can be
// compared against each other over the same period.
type StrategyMetrics struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
	Fees   float64 `json:"fees"`
}

// Summary is the read-only pool overview served by the API.
type Summary struct {
	Pool           string                               `json:"pool"`
	Balance        float64                              `json:"balance"`
	TotalValue     float64                              `json:"total_value"`
	InitialBalance float64                              `json:"initial_balance"`
	ROIPct         float64                              `json:"roi_pct"`
	OpenPositions  int                                  `json:"open_positions"`
	TotalTrades    int                                  `json:"total_trades"`
	WinRatePct     float64                              `json:"win_rate_pct"`
	TotalPnL       float64                              `json:"total_pnl"`
	MaxDrawdownPct float64                              `json:"max_drawdown_pct"`
	Strategies     map[domain.Strategy]*StrategyMetrics `json:"strategy_metrics"`
}

// state is the persisted form of a pool.
type state struct {
	Balance        float64                              `json:"balance"`
	InitialBalance float64                              `json:"initial_balance"`
	Positions      map[string]domain.Position           `json:"positions"`
	History        []domain.Trade                       `json:"trade_history"`
	Metrics        Metrics                              `json:"metrics"`
	Strategies     map[domain.Strategy]*StrategyMetrics `json:"strategy_metrics"`
	LastUpdated    time.Time                            `json:"last_updated"`
}

// Pool is one isolated capital pool.
type Pool struct {
	mu         sync.RWMutex
	name       string
	balance    float64
	initial    float64
	positions  map[string]domain.Position
	history    []domain.Trade
	metrics    Metrics
	strategies map[domain.Strategy]*StrategyMetrics
	log        zerolog.Logger
}

// NewPool creates an empty pool holding initialBalance in cash.
func NewPool(name string, initialBalance float64, log zerolog.Logger) *Pool {
	return &Pool{
		name:       name,
		balance:    initialBalance,
		initial:    initialBalance,
		positions:  make(map[string]domain.Position),
		metrics:    Metrics{PeakBalance: initialBalance},
		strategies: emptyStrategyMetrics(),
		log:        log.With().Str("component", "ledger").Str("pool", name).Logger(),
	}
}

func emptyStrategyMetrics() map[domain.Strategy]*StrategyMetrics {
	m := make(map[domain.Strategy]*StrategyMetrics, len(domain.Strategies()))
	for _, s := range domain.Strategies() {
		m[s] = &StrategyMetrics{}
	}
	return m
}

// Open debits amount from the balance and books a position for opp at the
// given fill price. feePct is the taker fee fraction, zero for maker
// entries; the fee is paid out of amount and reduces shares received.
func (p *Pool) Open(opp domain.Opportunity, fillPrice, amount, feePct float64, now time.Time) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount <= 0 || fillPrice <= 0 {
		return domain.Position{}, ErrBadOrder
	}
	if amount > p.balance {
		return domain.Position{}, ErrInsufficientBalance
	}
	if _, held := p.positions[opp.ConditionID]; held {
		return domain.Position{}, ErrPositionExists
	}

	fee := amount * feePct
	pos := domain.Position{
		ConditionID: opp.ConditionID,
		Question:    truncate(opp.Question, questionMaxLen),
		Strategy:    opp.Strategy,
		Side:        opp.Side,
		EntryPrice:  fillPrice,
		Shares:      (amount - fee) / fillPrice,
		CostBasis:   amount,
		EntryFee:    round(fee, 4),
		EntryTime:   now,
		Liquidity:   opp.Liquidity,
		Reason:      opp.Reason,
		TokenID:     opp.TokenID,
		MMBid:       opp.MMBid,
		MMAsk:       opp.MMAsk,
	}

	p.positions[opp.ConditionID] = pos
	p.balance -= amount
	p.strategies[opp.Strategy].Fees += fee

	p.log.Info().
		Str("market", opp.ConditionID).
		Str("strategy", opp.Strategy.String()).
		Str("side", opp.Side.String()).
		Float64("price", fillPrice).
		Float64("amount", amount).
		Float64("fee", fee).
		Msg("position opened")
	return pos, nil
}

// Close sells the position at exitValue per share, credits the proceeds
// and appends the completed trade to history. feePct is applied to gross
// proceeds; fee-free exit reasons pass zero.
func (p *Pool) Close(conditionID string, exitValue, feePct float64, reason domain.ExitReason, now time.Time) (domain.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, held := p.positions[conditionID]
	if !held {
		return domain.Trade{}, ErrPositionNotFound
	}

	gross := pos.Shares * exitValue
	exitFee := gross * feePct
	proceeds := gross - exitFee
	pnl := proceeds - pos.CostBasis
	pnlPct := 0.0
	if pos.CostBasis > 0 {
		pnlPct = pnl / pos.CostBasis * 100
	}

	trade := domain.Trade{
		ID:          uuid.NewString(),
		ConditionID: conditionID,
		Question:    pos.Question,
		Strategy:    pos.Strategy,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitValue,
		Shares:      pos.Shares,
		CostBasis:   pos.CostBasis,
		PnL:         round(pnl, 2),
		PnLPct:      round(pnlPct, 2),
		EntryFee:    pos.EntryFee,
		ExitFee:     round(exitFee, 4),
		EntryTime:   pos.EntryTime,
		ExitTime:    now,
		ExitReason:  reason,
	}
	p.history = append(p.history, trade)

	stats := p.strategies[pos.Strategy]
	stats.Trades++
	stats.PnL += pnl
	stats.Fees += exitFee
	if pnl > 0 {
		stats.Wins++
	}

	p.balance += proceeds
	p.metrics.TotalTrades++
	p.metrics.TotalPnL += pnl
	if pnl > 0 {
		p.metrics.WinningTrades++
	} else {
		p.metrics.LosingTrades++
	}
	if p.balance > p.metrics.PeakBalance {
		p.metrics.PeakBalance = p.balance
	}
	if dd := (p.metrics.PeakBalance - p.balance) / p.metrics.PeakBalance; dd > p.metrics.MaxDrawdown {
		p.metrics.MaxDrawdown = dd
	}

	delete(p.positions, conditionID)

	p.log.Info().
		Str("market", conditionID).
		Str("strategy", pos.Strategy.String()).
		Str("reason", string(reason)).
		Float64("exit_value", exitValue).
		Float64("pnl", trade.PnL).
		Float64("pnl_pct", trade.PnLPct).
		Msg("position closed")
	return trade, nil
}

func (p *Pool) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Pool) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

func (p *Pool) InitialBalance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initial
}

// TotalValue is cash plus the cost bases of all open positions.
func (p *Pool) TotalValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance + p.openCostLocked()
}

func (p *Pool) openCostLocked() float64 {
	total := 0.0
	for _, pos := range p.positions {
		total += pos.CostBasis
	}
	return total
}

// Has reports whether the market is already held.
func (p *Pool) Has(conditionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, held := p.positions[conditionID]
	return held
}

// Get returns a copy of the open position for the market.
func (p *Pool) Get(conditionID string) (domain.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, held := p.positions[conditionID]
	return pos, held
}

// Positions returns the open book ordered by entry time.
func (p *Pool) Positions() []domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ConditionID < out[j].ConditionID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

func (p *Pool) OpenCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// History returns a copy of the completed trades in close order.
func (p *Pool) History() []domain.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Trade, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Pool) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// StrategyMetrics returns copies of the per-strategy counters.
func (p *Pool) StrategyMetrics() map[domain.Strategy]StrategyMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.Strategy]StrategyMetrics, len(p.strategies))
	for s, m := range p.strategies {
		out[s] = *m
	}
	return out
}

// Exposure sums the open cost bases of the given strategies.
func (p *Pool) Exposure(strategies ...domain.Strategy) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0.0
	for _, pos := range p.positions {
		for _, s := range strategies {
			if pos.Strategy == s {
				total += pos.CostBasis
				break
			}
		}
	}
	return total
}

// UnrealizedPnL marks open positions against the given YES prices.
// Markets without a price are skipped.
func (p *Pool) UnrealizedPnL(prices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0.0
	for cid, pos := range p.positions {
		price, ok := prices[cid]
		if !ok {
			continue
		}
		total += pos.Shares*pos.CurrentValue(price) - pos.CostBasis
	}
	return total
}

// Summary builds the API overview of the pool.
func (p *Pool) Summary() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	totalValue := p.balance + p.openCostLocked()
	winRate := 0.0
	if p.metrics.TotalTrades > 0 {
		winRate = float64(p.metrics.WinningTrades) / float64(p.metrics.TotalTrades) * 100
	}
	strategies := make(map[domain.Strategy]*StrategyMetrics, len(p.strategies))
	for s, m := range p.strategies {
		c := *m
		strategies[s] = &c
	}
	return Summary{
		Pool:           p.name,
		Balance:        round(p.balance, 2),
		TotalValue:     round(totalValue, 2),
		InitialBalance: p.initial,
		ROIPct:         round((totalValue-p.initial)/p.initial*100, 2),
		OpenPositions:  len(p.positions),
		TotalTrades:    p.metrics.TotalTrades,
		WinRatePct:     round(winRate, 1),
		TotalPnL:       round(p.metrics.TotalPnL, 2),
		MaxDrawdownPct: round(p.metrics.MaxDrawdown*100, 2),
		Strategies:     strategies,
	}
}

// snapshot copies the pool into its persisted form.
func (p *Pool) snapshot() state {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := state{
		Balance:        p.balance,
		InitialBalance: p.initial,
		Positions:      make(map[string]domain.Position, len(p.positions)),
		History:        make([]domain.Trade, len(p.history)),
		Metrics:        p.metrics,
		Strategies:     make(map[domain.Strategy]*StrategyMetrics, len(p.strategies)),
	}
	for cid, pos := range p.positions {
		st.Positions[cid] = pos
	}
	copy(st.History, p.history)
	for s, m := range p.strategies {
		c := *m
		st.Strategies[s] = &c
	}
	return st
}

// restorePool rebuilds a pool from a loaded state.
func restorePool(name string, st state, log zerolog.Logger) *Pool {
	p := NewPool(name, st.InitialBalance, log)
	p.balance = st.Balance
	p.history = st.History
	p.metrics = st.Metrics
	if p.metrics.PeakBalance <= 0 {
		p.metrics.PeakBalance = st.InitialBalance
	}
	for cid, pos := range st.Positions {
		p.positions[cid] = pos
	}
	// Older files may predate a strategy; keep every counter present.
	for s, m := range st.Strategies {
		p.strategies[s] = m
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
