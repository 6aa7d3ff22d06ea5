// Package rank turns the raw candidate list into the cycle's shortlist:
// per-strategy quotas in a fixed priority order, one candidate per market,
// capped and ordered by capital efficiency.
package rank

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
)

type Ranker struct {
	log zerolog.Logger
}

func NewRanker(log zerolog.Logger) *Ranker {
	return &Ranker{log: log.With().Str("component", "rank").Logger()}
}

// Rank selects the cycle shortlist. Each strategy's candidates are ordered
// by annualized return and truncated to the strategy's quota; strategies
// are visited in the configured priority order, so when two strategies
// flag the same market the higher-priority one keeps it. The combined list
// is deduplicated by market, re-sorted by annualized return and capped.
// A non-nil filter restricts the pass to that single strategy.
func (r *Ranker) Rank(opps []domain.Opportunity, params config.Params, filter *domain.Strategy) []domain.Opportunity {
	byStrategy := make(map[domain.Strategy][]domain.Opportunity)
	for _, o := range opps {
		byStrategy[o.Strategy] = append(byStrategy[o.Strategy], o)
	}
	for s := range byStrategy {
		group := byStrategy[s]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AnnualizedReturn > group[j].AnnualizedReturn
		})
	}

	priority := params.Priority
	if filter != nil {
		priority = nil
		for _, s := range params.Priority {
			if s == *filter {
				priority = []domain.Strategy{s}
				break
			}
		}
	}

	var shortlist []domain.Opportunity
	for _, s := range priority {
		group := byStrategy[s]
		if quota := params.Quota(s); len(group) > quota {
			group = group[:quota]
		}
		shortlist = append(shortlist, group...)
	}

	seen := make(map[string]struct{}, len(shortlist))
	deduped := make([]domain.Opportunity, 0, len(shortlist))
	for _, o := range shortlist {
		if _, dup := seen[o.ConditionID]; dup {
			continue
		}
		seen[o.ConditionID] = struct{}{}
		deduped = append(deduped, o)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].AnnualizedReturn > deduped[j].AnnualizedReturn
	})

	if len(deduped) > params.GlobalCap {
		deduped = deduped[:params.GlobalCap]
	}

	evt := r.log.Debug().Int("candidates", len(opps)).Int("ranked", len(deduped))
	for _, s := range priority {
		evt = evt.Int(s.String(), len(byStrategy[s]))
	}
	evt.Msg("Ranking pass complete")

	return deduped
}
