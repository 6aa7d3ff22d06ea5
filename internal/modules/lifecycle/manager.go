// Package lifecycle drives open positions to their exits. Each cycle the
// manager walks the book and dispatches per position family: locked-profit
// dual-side entries, spread-capture quotes, and standard take-profit/
// stop-loss positions. It is the single writer of the pool, the cooldown
// arena and the stop tracker.
package lifecycle

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/pkg/formulas"
)

// Base slippage for taker exits; the liquidity tiers in
// formulas.TakerSlippage scale it up on thin books.
const exitSlippageBaseBps = 20

// mmDelistGrace is how long a vanished spread-capture market is held
// before it is written off at entry price.
const mmDelistGrace = time.Hour

// MarketData is the market-client surface exits need: the current ask and
// the settled outcome. Nil results mean "not listed" and "not resolved".
type MarketData interface {
	MarketPrice(ctx context.Context, conditionID string) (*float64, error)
	ResolutionPrice(ctx context.Context, conditionID string) (*float64, error)
}

// StreamPrices is a real-time YES-price cache keyed by CLOB token.
// Implementations withhold stale entries. Nil disables streaming reads.
type StreamPrices interface {
	Price(tokenID string) (float64, bool)
}

// Manager owns position exits for one pool.
type Manager struct {
	pool      *ledger.Pool
	store     *ledger.Store
	market    MarketData
	stream    StreamPrices
	cooldowns *Cooldowns
	stops     *StopTracker
	rand      func() float64
	log       zerolog.Logger
}

func NewManager(pool *ledger.Pool, store *ledger.Store, market MarketData, stream StreamPrices, cooldowns *Cooldowns, stops *StopTracker, log zerolog.Logger) *Manager {
	return &Manager{
		pool:      pool,
		store:     store,
		market:    market,
		stream:    stream,
		cooldowns: cooldowns,
		stops:     stops,
		rand:      rand.Float64,
		log:       log.With().Str("component", "lifecycle").Str("pool", pool.Name()).Logger(),
	}
}

// Cooldowns exposes the arena so detection can take its read-only view.
func (m *Manager) Cooldowns() *Cooldowns { return m.cooldowns }

// Stops exposes the stop tracker for the admission circuit breaker.
func (m *Manager) Stops() *StopTracker { return m.stops }

// CheckExits runs one exit pass over the open book. A position whose
// price cannot be established is skipped until the next pass; the pass
// itself always completes.
func (m *Manager) CheckExits(ctx context.Context, params config.Params, now time.Time) {
	for _, pos := range m.pool.Positions() {
		switch pos.Side {
		case domain.SideBoth:
			m.checkLocked(ctx, pos, params, now)
		case domain.SideMM:
			m.checkSpread(ctx, pos, params, now)
		default:
			m.checkStandard(ctx, pos, params, now)
		}
	}
}

// checkLocked handles dual-side positions. Profit is locked at entry, so
// there is no TP/SL: resolution pays both legs $1 per pair, and a maximum
// hold liquidates at cost to free the capital.
func (m *Manager) checkLocked(ctx context.Context, pos domain.Position, params config.Params, now time.Time) {
	_, found, err := m.currentYesPrice(ctx, pos)
	if err != nil {
		m.log.Warn().Err(err).Str("market", pos.ConditionID).Msg("price lookup failed, holding")
		return
	}

	if !found {
		res, err := m.market.ResolutionPrice(ctx, pos.ConditionID)
		if err != nil || res == nil {
			return
		}
		m.close(pos, 1.0, 0, domain.ExitResolved, now)
		return
	}

	maxHold := time.Duration(params.DualSideMaxHoldDays) * 24 * time.Hour
	if pos.HoldDuration(now) >= maxHold {
		m.close(pos, pos.EntryPrice, 0, domain.ExitTimeout, now)
	}
}

// checkSpread handles spread-capture positions: fill at the posted ask,
// stop on an adverse move, or timeout out of the quote. Exactly one
// condition fires per pass, in that order.
func (m *Manager) checkSpread(ctx context.Context, pos domain.Position, params config.Params, now time.Time) {
	hold := pos.HoldDuration(now)

	price, found, err := m.currentYesPrice(ctx, pos)
	if err != nil {
		m.log.Warn().Err(err).Str("market", pos.ConditionID).Msg("price lookup failed, holding")
		return
	}

	if !found {
		res, err := m.market.ResolutionPrice(ctx, pos.ConditionID)
		if err != nil {
			return
		}
		if res != nil {
			m.close(pos, *res, 0, domain.ExitMMResolved, now)
		} else if hold >= mmDelistGrace {
			m.close(pos, pos.EntryPrice, 0, domain.ExitMMDelisted, now)
		}
		return
	}

	// Fill: the market traded through the posted ask. Maker exit, no
	// fee. A touch is not a guaranteed fill, so a probability gate
	// models partial fills and queue position.
	if pos.MMAsk > 0 && price >= pos.MMAsk {
		if m.rand() > params.MMFillProbability {
			return
		}
		m.close(pos, pos.MMAsk, 0, domain.ExitMMFilled, now)
		return
	}

	slip := params.MMSlippageBps / 10000
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice

	// Stop: crossing the spread to get out, taker costs apply.
	if pnlPct <= params.MMStopLossPct {
		exit := price * (1 - slip)
		if m.close(pos, exit, formulas.TakerFee(exit), domain.ExitMMStop, now) {
			m.recordStop(pos.ConditionID, now)
		}
		return
	}

	// Timeout: the quote never filled. Exiting at market only makes
	// sense when the profit covers taker costs; below that the ask
	// stays posted.
	maxHold := time.Duration(params.MMMaxHoldHours * float64(time.Hour))
	if hold >= maxHold {
		if pnlPct < params.MMTimeoutMinProfit {
			if hold < maxHold+time.Hour {
				m.log.Info().
					Str("market", pos.ConditionID).
					Float64("pnl_pct", pnlPct*100).
					Msg("timeout reached below minimum profit, keeping ask posted")
			}
			return
		}
		exit := price * (1 - slip)
		m.close(pos, exit, formulas.TakerFee(exit), domain.ExitMMTimeout, now)
	}
}

// checkStandard handles everything else: side-adjusted value against
// take-profit and stop-loss, with resolution settling vanished markets.
func (m *Manager) checkStandard(ctx context.Context, pos domain.Position, params config.Params, now time.Time) {
	price, found, err := m.currentYesPrice(ctx, pos)
	if err != nil {
		m.log.Warn().Err(err).Str("market", pos.ConditionID).Msg("price lookup failed, holding")
		return
	}

	if !found {
		res, err := m.market.ResolutionPrice(ctx, pos.ConditionID)
		if err != nil || res == nil {
			// Not in the closed set either: API lag or a true delist,
			// revisit next pass.
			return
		}
		if m.close(pos, pos.CurrentValue(*res), 0, domain.ExitResolved, now) {
			m.recordMeanReversionExit(pos, now)
		}
		return
	}

	current := pos.CurrentValue(price)
	pnlPct := pos.PnLPct(current)

	if pnlPct >= params.TakeProfitPct {
		exit := m.takerExitValue(current, pos.Liquidity)
		if m.close(pos, exit, formulas.TakerFee(exit), domain.ExitTakeProfit, now) {
			m.recordMeanReversionExit(pos, now)
		}
		return
	}

	// The resolution-extreme pair pays out at $1 or $0, never at the
	// intraday price, so a stop-loss only converts noise into losses.
	if pnlPct <= params.StopLossPct && !holdsToResolution(pos.Strategy) {
		exit := m.takerExitValue(current, pos.Liquidity)
		if m.close(pos, exit, formulas.TakerFee(exit), domain.ExitStopLoss, now) {
			m.recordMeanReversionExit(pos, now)
			if tracksStops(pos.Strategy) {
				m.recordStop(pos.ConditionID, now)
			}
		}
	}
}

// currentYesPrice prefers a fresh stream price for the position's token
// and falls back to REST. found=false means the market left the feed.
func (m *Manager) currentYesPrice(ctx context.Context, pos domain.Position) (float64, bool, error) {
	if m.stream != nil && pos.TokenID != "" {
		if p, ok := m.stream.Price(pos.TokenID); ok {
			return p, true, nil
		}
	}
	p, err := m.market.MarketPrice(ctx, pos.ConditionID)
	if err != nil {
		return 0, false, err
	}
	if p == nil {
		return 0, false, nil
	}
	return *p, true, nil
}

// takerExitValue applies sell-side slippage to the current value.
func (m *Manager) takerExitValue(current, liquidity float64) float64 {
	return current * (1 - formulas.TakerSlippage(liquidity, exitSlippageBaseBps))
}

// close settles the position in the ledger and persists. Returns false
// when the ledger rejected the close.
func (m *Manager) close(pos domain.Position, exitValue, feePct float64, reason domain.ExitReason, now time.Time) bool {
	_, err := m.pool.Close(pos.ConditionID, exitValue, feePct, reason, now)
	if err != nil {
		m.log.Error().Err(err).Str("market", pos.ConditionID).Str("reason", string(reason)).Msg("close failed")
		return false
	}
	if err := m.store.Save(m.pool); err != nil {
		m.log.Warn().Err(err).Msg("ledger save failed, continuing with in-memory state")
	}
	return true
}

func (m *Manager) recordMeanReversionExit(pos domain.Position, now time.Time) {
	if pos.Strategy == domain.StrategyMeanReversion && m.cooldowns != nil {
		m.cooldowns.RecordExit(pos.ConditionID, now)
	}
}

func (m *Manager) recordStop(conditionID string, now time.Time) {
	if m.stops == nil {
		return
	}
	m.stops.Record(conditionID, now)
	m.log.Info().
		Str("market", conditionID).
		Int("recent_stops", m.stops.RecentCount(conditionID, now)).
		Msg("stop-loss recorded")
}

// holdsToResolution reports whether the strategy is exempt from the
// stop-loss leg.
func holdsToResolution(s domain.Strategy) bool {
	return s == domain.StrategyNearCertain || s == domain.StrategyNearZero
}

// tracksStops reports whether a stop-loss on this strategy counts toward
// the circuit breaker.
func tracksStops(s domain.Strategy) bool {
	switch s {
	case domain.StrategyDipBuy, domain.StrategyVolumeSurge, domain.StrategyMidRange:
		return true
	}
	return false
}
