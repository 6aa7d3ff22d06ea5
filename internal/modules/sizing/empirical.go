package sizing

import (
	"math"
	"strings"

	"github.com/aristath/foresight/internal/domain"
)

// priceZone maps an entry-price band to its average historical mispricing
// in probability points. Positive means the market underprices the outcome.
type priceZone struct {
	low, high  float64
	mispricing float64
}

// Derived from resolved-market analysis: the death zone (0.35-0.45) and
// the trap zone (0.70-0.75) overprice, the sweet spot (0.55-0.65) and the
// high band (0.80-0.95) underprice.
var empiricalEdges = []priceZone{
	{0.01, 0.10, -0.25},
	{0.10, 0.35, -0.08},
	{0.35, 0.45, -0.15},
	{0.45, 0.55, 0.00},
	{0.55, 0.65, +0.15},
	{0.65, 0.70, +0.05},
	{0.70, 0.75, -0.08},
	{0.75, 0.80, +0.01},
	{0.80, 0.95, +0.02},
	{0.95, 0.99, +0.01},
}

// categoryAdjustments shift the estimate by market category: economics and
// politics markets resolve in the buyer's favor more often, crypto less.
var categoryAdjustments = map[string]float64{
	"economics":     +0.02,
	"politics":      +0.015,
	"crypto":        -0.015,
	"sports":        0,
	"entertainment": 0,
	"science":       0,
	"other":         0,
}

// EmpiricalProbability estimates the true outcome probability from the
// entry price using the zone mispricing table plus the category shift,
// clamped to [0.01, 0.99].
func EmpiricalProbability(marketPrice float64, category string) float64 {
	mispricing := 0.0
	for _, z := range empiricalEdges {
		if marketPrice >= z.low && marketPrice < z.high {
			mispricing = z.mispricing
			break
		}
	}
	adj := categoryAdjustments[strings.ToLower(category)]
	return math.Min(0.99, math.Max(0.01, marketPrice+mispricing+adj))
}

// estimateProbability produces the sizing model's probability input for a
// Kelly-sized opportunity. Cross-reference trades carry their own implied
// probability; everything else starts from the empirical table with a
// strategy-specific nudge. The boolean reports whether the table was used.
func estimateProbability(opp domain.Opportunity, category string) (float64, bool) {
	if opp.Strategy == domain.StrategyCrossRef {
		if opp.RefProb > 0 {
			return opp.RefProb, false
		}
		return opp.Price, false
	}

	prob := EmpiricalProbability(opp.Price, category)
	switch opp.Strategy {
	case domain.StrategyNearCertain:
		prob = math.Min(0.99, prob+(1-prob)*0.15)
	case domain.StrategyNearZero:
		prob = math.Max(0.01, prob-prob*0.15)
	case domain.StrategyDipBuy:
		prob = math.Min(0.99, prob+0.02)
	case domain.StrategyVolumeSurge:
		prob = math.Min(0.99, prob+0.015)
	}
	return prob, true
}
