// Package admit decides whether a ranked opportunity may reach sizing and
// execution. Gates run in a fixed order and the first failure wins; every
// rejection carries a reason string for the cycle log.
package admit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/clients/sentiment"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/ledger"
)

// StopCounter reports recent stop-losses per market for the circuit
// breaker.
type StopCounter interface {
	RecentCount(conditionID string, now time.Time) int
}

// Screen is the news sentiment check consulted for the two gated
// strategies. The call is the one point where admission waits on an
// external service mid-cycle.
type Screen interface {
	Analyze(ctx context.Context, question string) (*sentiment.Verdict, error)
}

// holdStrategies park capital until resolution or a slow revert. Jointly
// capped so spread-capture always has something left to quote with.
var holdStrategies = []domain.Strategy{
	domain.StrategyNearCertain,
	domain.StrategyNearZero,
	domain.StrategyMidRange,
	domain.StrategyMeanReversion,
}

// Filter applies the admission gates for one capital pool.
type Filter struct {
	pool   *ledger.Pool
	stops  StopCounter
	screen Screen
	log    zerolog.Logger
}

// NewFilter creates the admission filter. A nil screen disables the
// sentiment gate entirely; a nil stops disables the circuit breaker.
func NewFilter(pool *ledger.Pool, stops StopCounter, screen Screen, log zerolog.Logger) *Filter {
	return &Filter{
		pool:   pool,
		stops:  stops,
		screen: screen,
		log:    log.With().Str("component", "admit").Str("pool", pool.Name()).Logger(),
	}
}

// Admit runs the gates against one opportunity. Returns the verdict and,
// on rejection, the failing gate's reason.
func (f *Filter) Admit(ctx context.Context, opp domain.Opportunity, params config.Params, now time.Time) (bool, string) {
	ok, reason := f.evaluate(ctx, opp, params, now)
	if !ok {
		f.log.Debug().
			Str("market", opp.ConditionID).
			Str("strategy", opp.Strategy.String()).
			Str("reason", reason).
			Msg("opportunity rejected")
	}
	return ok, reason
}

func (f *Filter) evaluate(ctx context.Context, opp domain.Opportunity, params config.Params, now time.Time) (bool, string) {
	if f.pool.Has(opp.ConditionID) {
		return false, "already holding this market"
	}

	if open := f.pool.OpenCount(); open >= params.MaxPositions {
		return false, fmt.Sprintf("position ceiling reached (%d/%d)", open, params.MaxPositions)
	}

	if opp.Confidence < params.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below floor %.2f", opp.Confidence, params.MinConfidence)
	}

	if f.stops != nil && breakerGuarded(opp.Strategy) {
		if n := f.stops.RecentCount(opp.ConditionID, now); n >= params.MaxStopsPerDay {
			return false, fmt.Sprintf("circuit breaker: %d stops in %dh", n, params.StopWindowHours)
		}
	}

	if holdStrategy(opp.Strategy) {
		limit := params.HoldCapPct * f.pool.InitialBalance()
		if held := f.pool.Exposure(holdStrategies...); held >= limit {
			return false, fmt.Sprintf("hold strategies at cap ($%.0f/$%.0f)", held, limit)
		}
	}

	// The sentiment call suspends the cycle on the network, so it runs
	// after every local gate has passed.
	if ok, reason := f.sentimentGate(ctx, opp, params); !ok {
		return false, reason
	}

	return true, ""
}

// sentimentGate screens dip buys and volume surges against recent news.
// No screen configured means no gate; a configured screen that yields no
// verdict is a rejection, because these two strategies trade into moves
// that news can explain away.
func (f *Filter) sentimentGate(ctx context.Context, opp domain.Opportunity, params config.Params) (bool, string) {
	if f.screen == nil || !sentimentGated(opp.Strategy) {
		return true, ""
	}

	verdict, err := f.screen.Analyze(ctx, opp.Question)
	if err != nil {
		f.log.Warn().Err(err).Str("market", opp.ConditionID).Msg("sentiment check failed")
		return false, "sentiment check failed"
	}
	if verdict == nil {
		return false, "no sentiment verdict"
	}

	switch opp.Strategy {
	case domain.StrategyDipBuy:
		if verdict.Direction == sentiment.DirectionBearish && verdict.Confidence >= params.SentimentBearishBlock {
			return false, fmt.Sprintf("bearish news confirms the dip (%.0f%%)", verdict.Confidence*100)
		}
	case domain.StrategyVolumeSurge:
		expected := sentiment.DirectionBullish
		if opp.Side == domain.SideNo {
			expected = sentiment.DirectionBearish
		}
		if verdict.Direction != expected || verdict.Confidence < params.SentimentMatchMin {
			return false, fmt.Sprintf("news %s does not support the %s surge", verdict.Direction, opp.Side)
		}
	}
	return true, ""
}

// breakerGuarded reports whether the strategy re-enters markets fast
// enough to need the stop-loss circuit breaker. Arbitrage has no stops,
// resolution extremes never stop out, and mean reversion carries its own
// cooldown.
func breakerGuarded(s domain.Strategy) bool {
	switch s {
	case domain.StrategyMarketMaker, domain.StrategyDipBuy, domain.StrategyVolumeSurge, domain.StrategyMidRange:
		return true
	}
	return false
}

// sentimentGated reports whether the strategy's admission consults news.
func sentimentGated(s domain.Strategy) bool {
	return s == domain.StrategyDipBuy || s == domain.StrategyVolumeSurge
}

func holdStrategy(s domain.Strategy) bool {
	for _, h := range holdStrategies {
		if s == h {
			return true
		}
	}
	return false
}
