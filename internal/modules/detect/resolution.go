package detect

import (
	"fmt"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// NearCertainDetector buys YES on markets priced at or above the
// near-certain floor, harvesting the last few cents before resolution.
// Long-dated markets are skipped: the annualized-return floor is the
// gate that makes capital lockup pay.
type NearCertainDetector struct{}

func (d *NearCertainDetector) Strategy() domain.Strategy { return domain.StrategyNearCertain }

func (d *NearCertainDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	days := snap.DaysToResolve(dctx.Now)
	if days > params.MaxDaysToResolve {
		return nil
	}
	if snap.BestAsk < params.NearCertainMin {
		return nil
	}

	raw := (1.0 - snap.BestAsk) / snap.BestAsk
	annualized := formulas.AnnualizedReturnCapped(raw, days, annualizedCap)
	if annualized < params.MinAnnualizedReturn {
		return nil
	}

	return []domain.Opportunity{{
		Strategy:         domain.StrategyNearCertain,
		Side:             domain.SideYes,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            snap.BestAsk,
		RawReturn:        raw,
		AnnualizedReturn: annualized,
		DaysToResolve:    days,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       0.95,
		Reason:           fmt.Sprintf("Near-certain %.0f%%, %dd, %.0f%% APY", snap.BestAsk*100, days, annualized*100),
	}}
}

// NearZeroDetector buys NO on markets where YES trades at a few cents,
// the mirror of near-certain. NO priced at 0.98 or above is skipped;
// there is nothing left to harvest.
type NearZeroDetector struct{}

func (d *NearZeroDetector) Strategy() domain.Strategy { return domain.StrategyNearZero }

func (d *NearZeroDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	days := snap.DaysToResolve(dctx.Now)
	if days > params.MaxDaysToResolve {
		return nil
	}
	if snap.BestAsk <= 0 || snap.BestAsk > params.NearZeroMax {
		return nil
	}

	noPrice := snap.NoCost()
	if noPrice >= 0.98 {
		return nil
	}

	raw := (1.0 - noPrice) / noPrice
	annualized := formulas.AnnualizedReturnCapped(raw, days, annualizedCap)
	if annualized < params.MinAnnualizedReturn {
		return nil
	}

	return []domain.Opportunity{{
		Strategy:         domain.StrategyNearZero,
		Side:             domain.SideNo,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            noPrice,
		RawReturn:        raw,
		AnnualizedReturn: annualized,
		DaysToResolve:    days,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       0.95,
		Reason:           fmt.Sprintf("Near-zero YES %.0f%%, %dd, %.0f%% APY", snap.BestAsk*100, days, annualized*100),
	}}
}
