package detect

import (
	"fmt"
	"math"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/reference"
)

// CrossRefDetector compares a crypto market's quoted odds against the
// probability implied by the reference spot price. The market question
// must parse into a symbol, a target price and a direction; the implied
// probability comes from a distance-over-expected-move model fed with the
// symbol's realized volatility when available.
type CrossRefDetector struct{}

func (d *CrossRefDetector) Strategy() domain.Strategy { return domain.StrategyCrossRef }

func (d *CrossRefDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	if len(dctx.RefPrices) == 0 {
		return nil
	}
	if snap.Liquidity < params.CrossRefMinLiquidity {
		return nil
	}

	target := reference.ParseTarget(snap.Question)
	if target == nil {
		return nil
	}
	spot := dctx.RefPrices[target.Symbol]
	if spot <= 0 {
		return nil
	}

	vol := dctx.RefVols[target.Symbol]
	if vol <= 0 {
		vol = params.CrossRefDailyVol
	}
	implied := reference.ImpliedProbability(spot, target.Price, target.Direction, params.CrossRefDefaultDays, vol)

	edge := implied - snap.BestAsk
	if math.Abs(edge) < params.CrossRefMinEdge {
		return nil
	}

	side := domain.SideYes
	price := snap.BestAsk
	if edge < 0 {
		side = domain.SideNo
		price = 1.0 - snap.BestBid
	}

	raw := math.Abs(edge)
	annualized := math.Min(raw*12, annualizedCap)

	return []domain.Opportunity{{
		Strategy:         domain.StrategyCrossRef,
		Side:             side,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            price,
		RefPrice:         spot,
		RefTarget:        target.Price,
		RefProb:          implied,
		Edge:             edge,
		RawReturn:        raw,
		AnnualizedReturn: annualized,
		DaysToResolve:    7,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       math.Min(0.95, 0.70+raw),
		Reason:           fmt.Sprintf("CROSS_REF: %s $%.0f -> $%.0f | Edge: %+.1f%%", target.Symbol, spot, target.Price, edge*100),
	}}
}
