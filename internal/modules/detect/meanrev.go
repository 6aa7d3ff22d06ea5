package detect

import (
	"fmt"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// MeanReversionDetector fades extremes: YES below the low band expecting a
// drift back toward 50%, NO above the high band. Re-entry into a market is
// rate limited through the cooldown view so one choppy market cannot churn
// the pool.
type MeanReversionDetector struct{}

func (d *MeanReversionDetector) Strategy() domain.Strategy { return domain.StrategyMeanReversion }

func (d *MeanReversionDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	if snap.Volume24h < params.Min24hVolume {
		return nil
	}
	if dctx.Cooldowns != nil {
		if dctx.Cooldowns.OnCooldown(snap.ConditionID, dctx.Now) {
			return nil
		}
		if dctx.Cooldowns.EntryCount(snap.ConditionID) >= params.MRMaxEntries {
			return nil
		}
	}

	raw := 0.10
	annualized := formulas.AnnualizedReturnCapped(raw, 7, annualizedCap)

	switch {
	case snap.BestAsk > 0.05 && snap.BestAsk < params.MeanReversionLow:
		return []domain.Opportunity{{
			Strategy:         domain.StrategyMeanReversion,
			Side:             domain.SideYes,
			ConditionID:      snap.ConditionID,
			Question:         snap.Question,
			Price:            snap.BestAsk,
			RawReturn:        raw,
			AnnualizedReturn: annualized,
			DaysToResolve:    7,
			Liquidity:        snap.Liquidity,
			Volume24h:        snap.Volume24h,
			Confidence:       0.60,
			Reason:           fmt.Sprintf("MEAN_REV: Price %.0f%% < %.0f%%, expect reversion", snap.BestAsk*100, params.MeanReversionLow*100),
		}}
	case snap.BestAsk > params.MeanReversionHigh && snap.BestAsk < 0.95:
		return []domain.Opportunity{{
			Strategy:         domain.StrategyMeanReversion,
			Side:             domain.SideNo,
			ConditionID:      snap.ConditionID,
			Question:         snap.Question,
			Price:            snap.NoCost(),
			RawReturn:        raw,
			AnnualizedReturn: annualized,
			DaysToResolve:    7,
			Liquidity:        snap.Liquidity,
			Volume24h:        snap.Volume24h,
			Confidence:       0.60,
			Reason:           fmt.Sprintf("MEAN_REV: Price %.0f%% > %.0f%%, expect reversion", snap.BestAsk*100, params.MeanReversionHigh*100),
		}}
	}
	return nil
}
