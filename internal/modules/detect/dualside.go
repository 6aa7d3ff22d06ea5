package detect

import (
	"fmt"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// DualSideArbDetector finds markets where buying both outcomes costs less
// than the guaranteed $1 payout. The position carries both legs under one
// BOTH-side entry, so Price is the combined cost and the legs travel as
// metadata.
type DualSideArbDetector struct{}

func (d *DualSideArbDetector) Strategy() domain.Strategy { return domain.StrategyDualSideArb }

func (d *DualSideArbDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	if snap.BestAsk <= 0 || snap.BestBid <= 0 {
		return nil
	}
	if snap.Liquidity < params.DualSideMinLiquidity {
		return nil
	}

	yesPrice := snap.BestAsk
	noPrice := 1.0 - snap.BestBid
	totalCost := yesPrice + noPrice
	if totalCost >= 1.0-params.DualSideMinProfit {
		return nil
	}

	profitPct := (1.0 - totalCost) / totalCost
	annualized := formulas.AnnualizedReturnCapped(profitPct, 1, annualizedCap)

	return []domain.Opportunity{{
		Strategy:         domain.StrategyDualSideArb,
		Side:             domain.SideBoth,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            totalCost,
		YesPrice:         yesPrice,
		NoPrice:          noPrice,
		RawReturn:        profitPct,
		AnnualizedReturn: annualized,
		DaysToResolve:    1,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       0.99,
		Reason:           fmt.Sprintf("DUAL ARB: YES $%.3f + NO $%.3f = $%.3f (profit %.1f%%)", yesPrice, noPrice, totalCost, profitPct*100),
	}}
}
