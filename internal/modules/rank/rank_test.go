package rank

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
)

func opp(strategy domain.Strategy, conditionID string, annualized float64) domain.Opportunity {
	return domain.Opportunity{
		Strategy:         strategy,
		ConditionID:      conditionID,
		AnnualizedReturn: annualized,
		Confidence:       0.6,
	}
}

func TestRank_QuotaPerStrategy(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	// Six mid-range candidates; the default quota admits two.
	var opps []domain.Opportunity
	for i := 0; i < 6; i++ {
		opps = append(opps, opp(domain.StrategyMidRange, fmt.Sprintf("0x%d", i), float64(i)))
	}

	ranked := r.Rank(opps, params, nil)

	require.Len(t, ranked, 2)
	assert.Equal(t, "0x5", ranked[0].ConditionID, "best annualized return first")
	assert.Equal(t, "0x4", ranked[1].ConditionID)
}

func TestRank_ExpandedQuotas(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	var opps []domain.Opportunity
	for i := 0; i < 6; i++ {
		opps = append(opps, opp(domain.StrategyMarketMaker, fmt.Sprintf("0xmm%d", i), 10))
		opps = append(opps, opp(domain.StrategyNearCertain, fmt.Sprintf("0xnc%d", i), 1))
	}

	ranked := r.Rank(opps, params, nil)

	counts := map[domain.Strategy]int{}
	for _, o := range ranked {
		counts[o.Strategy]++
	}
	assert.Equal(t, 4, counts[domain.StrategyMarketMaker], "spread capture gets four slots")
	assert.Equal(t, 3, counts[domain.StrategyNearCertain], "near-certain gets three slots")
}

func TestRank_DuplicateMarketKeepsHigherPriority(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	// Same market flagged by mean-reversion (priority 3) and dip-buy
	// (priority 8): the mean-reversion candidate must survive even though
	// the dip-buy one annualizes higher.
	opps := []domain.Opportunity{
		opp(domain.StrategyDipBuy, "0xdup", 9.0),
		opp(domain.StrategyMeanReversion, "0xdup", 2.0),
	}

	ranked := r.Rank(opps, params, nil)

	require.Len(t, ranked, 1)
	assert.Equal(t, domain.StrategyMeanReversion, ranked[0].Strategy)
}

func TestRank_FinalOrderIsAnnualizedDescending(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	opps := []domain.Opportunity{
		opp(domain.StrategyNearCertain, "0xa", 0.5),
		opp(domain.StrategyDipBuy, "0xb", 10.0),
		opp(domain.StrategyMidRange, "0xc", 3.0),
	}

	ranked := r.Rank(opps, params, nil)

	require.Len(t, ranked, 3)
	assert.Equal(t, "0xb", ranked[0].ConditionID)
	assert.Equal(t, "0xc", ranked[1].ConditionID)
	assert.Equal(t, "0xa", ranked[2].ConditionID)
}

func TestRank_GlobalCap(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	// Fill every quota: 4 MM + 3 NC + 3 NZ + 2 each of the rest exceeds
	// the global cap of ten.
	var opps []domain.Opportunity
	i := 0
	for _, s := range params.Priority {
		for n := 0; n < params.Quota(s)+1; n++ {
			opps = append(opps, opp(s, fmt.Sprintf("0x%d", i), float64(i)))
			i++
		}
	}

	ranked := r.Rank(opps, params, nil)

	assert.Len(t, ranked, params.GlobalCap)
}

func TestRank_StrategyFilter(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()

	opps := []domain.Opportunity{
		opp(domain.StrategyMarketMaker, "0xmm", 10),
		opp(domain.StrategyNearCertain, "0xnc", 5),
		opp(domain.StrategyDipBuy, "0xdip", 8),
	}

	filter := domain.StrategyNearCertain
	ranked := r.Rank(opps, params, &filter)

	require.Len(t, ranked, 1)
	assert.Equal(t, domain.StrategyNearCertain, ranked[0].Strategy)
}

func TestRank_FilterOutsidePriorityYieldsNothing(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	params := config.DefaultParams()
	params.Priority = []domain.Strategy{domain.StrategyMarketMaker}

	opps := []domain.Opportunity{opp(domain.StrategyDipBuy, "0xdip", 8)}

	filter := domain.StrategyDipBuy
	assert.Empty(t, r.Rank(opps, params, &filter))
}

func TestRank_EmptyInput(t *testing.T) {
	r := NewRanker(zerolog.Nop())
	assert.Empty(t, r.Rank(nil, config.DefaultParams(), nil))
}
