package detect

import (
	"fmt"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// MidRangeDetector rides short momentum in busy markets for the fastest
// capital turnover of the book: the take-profit target over roughly five
// days, long YES on upward momentum and NO on downward.
type MidRangeDetector struct{}

func (d *MidRangeDetector) Strategy() domain.Strategy { return domain.StrategyMidRange }

func (d *MidRangeDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	if snap.Volume24h < params.Min24hVolume {
		return nil
	}

	raw := params.TakeProfitPct
	annualized := formulas.AnnualizedReturnCapped(raw, 5, annualizedCap)

	switch {
	case snap.PriceChange24h > params.MidRangeMinMove:
		if !params.InEdgeZone(snap.BestAsk) {
			return nil
		}
		return []domain.Opportunity{{
			Strategy:         domain.StrategyMidRange,
			Side:             domain.SideYes,
			ConditionID:      snap.ConditionID,
			Question:         snap.Question,
			Price:            snap.BestAsk,
			RawReturn:        raw,
			AnnualizedReturn: annualized,
			DaysToResolve:    5,
			Liquidity:        snap.Liquidity,
			Volume24h:        snap.Volume24h,
			Confidence:       0.55,
			Reason:           fmt.Sprintf("MID UP %+.1f%%, %.0f%% APY target", snap.PriceChange24h*100, annualized*100),
		}}
	case snap.PriceChange24h < -params.MidRangeMinMove:
		noPrice := snap.NoCost()
		if !params.InEdgeZone(noPrice) {
			return nil
		}
		return []domain.Opportunity{{
			Strategy:         domain.StrategyMidRange,
			Side:             domain.SideNo,
			ConditionID:      snap.ConditionID,
			Question:         snap.Question,
			Price:            noPrice,
			RawReturn:        raw,
			AnnualizedReturn: annualized,
			DaysToResolve:    5,
			Liquidity:        snap.Liquidity,
			Volume24h:        snap.Volume24h,
			Confidence:       0.55,
			Reason:           fmt.Sprintf("MID DOWN %+.1f%%, %.0f%% APY target", snap.PriceChange24h*100, annualized*100),
		}}
	}
	return nil
}
