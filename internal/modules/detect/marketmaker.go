package detect

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// MarketMakerDetector selects markets suitable for passive spread capture:
// liquid, busy, inside one of two entry price zones, resolving in a 2-30
// day window, and free of meme and sports topics. Sports dips carry real
// information rather than mispricing, so those markets are excluded by a
// word-boundary match that avoids false hits like "inflation" on "nfl".
// The emitted opportunity carries synthetic bid/ask quotes offset from the
// midpoint by the target profit.
type MarketMakerDetector struct{}

func (d *MarketMakerDetector) Strategy() domain.Strategy { return domain.StrategyMarketMaker }

func (d *MarketMakerDetector) Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	days := snap.DaysToResolve(dctx.Now)
	if days < params.MMMinDays || days > params.MMMaxDays {
		return nil
	}

	question := strings.ToLower(snap.Question)
	if containsAny(question, params.MMBlockedTopics) {
		return nil
	}
	if isSportsQuestion(question, params) {
		return nil
	}

	inSweet := snap.BestAsk >= params.MMSweetZone[0] && snap.BestAsk <= params.MMSweetZone[1]
	inFallback := snap.BestAsk >= params.MMFallbackZone[0] && snap.BestAsk <= params.MMFallbackZone[1]
	if !inSweet && !inFallback {
		return nil
	}
	if snap.BestBid <= 0 {
		return nil
	}
	if snap.Volume24h < params.MMMinVolume || snap.Liquidity < params.MMMinLiquidity {
		return nil
	}

	mid := (snap.BestAsk + snap.BestBid) / 2
	if mid <= 0 {
		return nil
	}
	spreadPct := (snap.BestAsk - snap.BestBid) / mid
	if spreadPct < params.MMMinSpread || spreadPct > params.MMMaxSpread {
		return nil
	}

	// Fill horizon expressed in whole days for the annualizer; a 4h target
	// lands on 1 day, which pins the annualized figure at the cap.
	fillDays := int(params.MMMaxHoldHours / 24 * 10)
	if fillDays < 1 {
		fillDays = 1
	}
	annualized := formulas.AnnualizedReturnCapped(params.MMTargetProfit, fillDays, annualizedCap)

	isPreferred := containsAny(question, params.MMPreferredTopics)
	confidence := 0.55
	switch {
	case inSweet && isPreferred:
		confidence = 0.85
	case inSweet:
		confidence = 0.75
	case inFallback && isPreferred:
		confidence = 0.65
	}
	if containsAny(question, params.MMNegativeTopics) {
		confidence -= 0.10
	}

	zone := "fallback"
	if inSweet {
		zone = "sweet"
	}

	offset := math.Max(mid*params.MMTargetProfit, 0.01)

	return []domain.Opportunity{{
		Strategy:         domain.StrategyMarketMaker,
		Side:             domain.SideMM,
		ConditionID:      snap.ConditionID,
		Question:         snap.Question,
		Price:            mid,
		MMBid:            round3(mid - offset),
		MMAsk:            round3(mid + offset),
		RawReturn:        params.MMTargetProfit,
		AnnualizedReturn: annualized,
		DaysToResolve:    days,
		Liquidity:        snap.Liquidity,
		Volume24h:        snap.Volume24h,
		Confidence:       confidence,
		Reason:           fmt.Sprintf("MM[%s]: Spread %.1f%%, Vol $%.0fk, %dd, conf=%.2f", zone, spreadPct*100, snap.Volume24h/1000, days, confidence),
	}}
}

func containsAny(text string, topics []string) bool {
	for _, t := range topics {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func isSportsQuestion(question string, params config.Params) bool {
	words := wordRe.FindAllString(question, -1)
	for _, w := range words {
		for _, sport := range params.MMSportsWords {
			if w == sport {
				return true
			}
		}
	}
	return containsAny(question, params.MMSportsPhrases)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
