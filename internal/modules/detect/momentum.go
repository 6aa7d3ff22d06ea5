package detect

import (
	"fmt"
	"math"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// DipBuyDetector buys YES after a sharp 24h drop in a liquid market,
// betting on a bounce over a one-week horizon. Entries are restricted to
// the empirically profitable price zones.
type DipBuyDetector struct{}

func (d *DipBuyDetector) Strategy() domain.Strategy { return domain.StrategyDipBuy }

func (d *DipBuyDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	if snap.PriceChange24h >= params.DipThreshold {
		return nil
	}
	if snap.Volume24h <= params.DipMinVolume {
		return nil
	}
	if !params.InEdgeZone(snap.BestAsk) {
		return nil
	}

	raw := math.Abs(snap.PriceChange24h)
	annualized := formulas.AnnualizedReturnCapped(raw, 7, annualizedCap)

	return []domain.Opportunity{{
		Strategy:         domain.StrategyDipBuy,
		Side:             domain.SideYes,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            snap.BestAsk,
		RawReturn:        raw,
		AnnualizedReturn: annualized,
		DaysToResolve:    7,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       0.65,
		Reason:           fmt.Sprintf("Dip %.0f%%, %.0f%% APY target", snap.PriceChange24h*100, annualized*100),
	}}
}

// VolumeSurgeDetector follows unusual short-term activity. The feed has no
// hourly volume field, so a large 1h price move doubles as the activity
// proxy; the 24h change must still be small (the move is fresh, not a
// day-long trend) and the entry side rides the move's direction.
type VolumeSurgeDetector struct{}

func (d *VolumeSurgeDetector) Strategy() domain.Strategy { return domain.StrategyVolumeSurge }

func (d *VolumeSurgeDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	change1h := math.Abs(snap.PriceChange1h)
	if change1h < params.SurgeMinChange1h {
		return nil
	}
	if snap.Volume24h < params.SurgeMinVolume {
		return nil
	}
	if math.Abs(snap.PriceChange24h) >= params.SurgeMaxChange24h {
		return nil
	}

	side := domain.SideYes
	price := snap.BestAsk
	if snap.PriceChange24h < 0 {
		side = domain.SideNo
		price = snap.NoCost()
	}
	if !params.InEdgeZone(price) {
		return nil
	}

	surgeRatio := change1h / params.SurgeMinChange1h
	raw := 0.10
	annualized := formulas.AnnualizedReturnCapped(raw, 7, annualizedCap)

	return []domain.Opportunity{{
		Strategy:         domain.StrategyVolumeSurge,
		Side:             side,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            price,
		RawReturn:        raw,
		AnnualizedReturn: annualized,
		DaysToResolve:    7,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       0.60,
		Reason:           fmt.Sprintf("1h surge %.1f%% (%.1fx), %.0f%% APY target", change1h*100, surgeRatio, annualized*100),
	}}
}
