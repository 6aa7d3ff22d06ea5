// Package sizing converts a detected opportunity into a dollar amount.
//
// Most strategies size with fractional Kelly on an empirically estimated
// probability. Structural strategies whose edge does not come from a
// probability estimate (market making, dual-side arbitrage, mean
// reversion) bypass Kelly and take a fixed fraction of the pool instead.
package sizing

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
)

// liquidityShare caps a single entry at this fraction of the market's
// posted liquidity so fills stay near the quoted price.
const liquidityShare = 0.01

// Risk buckets by final position fraction, used for logging only.
const (
	RiskLow     = "LOW"
	RiskMedium  = "MEDIUM"
	RiskHigh    = "HIGH"
	RiskExtreme = "EXTREME"
)

// Recommendation is the sizing verdict for one opportunity. A nil
// Recommendation means no trade: the edge was below the minimum, the
// Kelly fraction degenerated, or the dollar amount fell under the floor.
type Recommendation struct {
	Amount        float64 // dollars to commit
	Fraction      float64 // final fraction of balance after all caps
	RawKelly      float64 // unscaled Kelly fraction, zero for bypass strategies
	Edge          float64 // estimated probability minus cost
	EstimatedProb float64 // probability fed into Kelly, zero for bypass strategies
	Empirical     bool    // estimate came from the resolved-market zone table
	Bypass        bool    // fixed-fraction strategy, Kelly not consulted
	RiskLevel     string
}

// Model sizes positions. It is stateless; per-cycle parameters arrive
// with each call so mid-run PATCHes take effect immediately.
type Model struct {
	log zerolog.Logger
}

func NewModel(log zerolog.Logger) *Model {
	return &Model{log: log.With().Str("component", "sizing").Logger()}
}

// Recommend sizes opp against the pool balance. category is the market's
// category slug used for the empirical adjustment. Returns nil when the
// opportunity should not be traded at any size.
func (m *Model) Recommend(opp domain.Opportunity, category string, balance float64, params config.Params) *Recommendation {
	if balance <= 0 {
		return nil
	}

	rec := &Recommendation{}
	if bypassesKelly(opp.Strategy) {
		rec.Bypass = true
		rec.Fraction = params.MaxPositionPct
	} else if !m.kelly(opp, category, params, rec) {
		return nil
	}

	amount := rec.Fraction * balance
	if opp.Liquidity > 0 {
		amount = math.Min(amount, opp.Liquidity*liquidityShare)
	}
	amount = math.Min(amount, params.MaxTradeUSD)
	if amount < params.MinTradeUSD {
		m.log.Debug().
			Str("market", opp.ConditionID).
			Str("strategy", opp.Strategy.String()).
			Float64("amount", amount).
			Float64("floor", params.MinTradeUSD).
			Msg("sized below minimum trade, skipping")
		return nil
	}

	rec.Amount = math.Round(amount*100) / 100
	rec.RiskLevel = classifyRisk(rec.Fraction)
	return rec
}

// bypassesKelly reports whether the strategy sizes at a fixed fraction.
func bypassesKelly(s domain.Strategy) bool {
	switch s {
	case domain.StrategyMarketMaker, domain.StrategyDualSideArb, domain.StrategyMeanReversion:
		return true
	}
	return false
}

// kelly fills rec with the fractional Kelly sizing for opp. Returns false
// when the position should be skipped.
func (m *Model) kelly(opp domain.Opportunity, category string, params config.Params, rec *Recommendation) bool {
	prob, empirical := estimateProbability(opp, category)
	rec.EstimatedProb = prob
	rec.Empirical = empirical

	// The estimate and the entry price are both quoted on the priced
	// side; a NO position wins when that outcome fails, so both flip.
	p, cost := prob, opp.Price
	if opp.Side == domain.SideNo {
		p = 1 - prob
		cost = 1 - opp.Price
	}
	if cost <= 0 || cost >= 1 {
		return false
	}

	rec.Edge = p - cost
	if rec.Edge < params.KellyMinEdge {
		m.log.Debug().
			Str("market", opp.ConditionID).
			Str("strategy", opp.Strategy.String()).
			Float64("edge", rec.Edge).
			Msg("edge below minimum, skipping")
		return false
	}

	raw := (p - cost) / (1 - cost)
	raw = math.Max(0, math.Min(1, raw))
	rec.RawKelly = raw

	fraction := raw * params.KellyFraction * opp.Confidence
	rec.Fraction = math.Min(fraction, params.KellyMaxFraction)
	return rec.Fraction > 0
}

func classifyRisk(fraction float64) string {
	switch {
	case fraction < 0.05:
		return RiskLow
	case fraction < 0.15:
		return RiskMedium
	case fraction < 0.25:
		return RiskHigh
	default:
		return RiskExtreme
	}
}
