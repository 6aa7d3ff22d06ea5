// Package detect holds the strategy detectors. Each detector inspects one
// market snapshot against the current parameters and emits zero or more
// opportunities; detectors never touch positions or capital.
package detect

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
)

// annualizedCap bounds compounded return figures; sub-day horizons
// otherwise annualize to absurdities.
const annualizedCap = 10.0

// CooldownView is the read side of the mean-reversion arena. The lifecycle
// manager owns the writes; detection only ever asks.
type CooldownView interface {
	OnCooldown(conditionID string, now time.Time) bool
	EntryCount(conditionID string) int
}

// Context carries per-cycle inputs shared across detectors.
type Context struct {
	Now time.Time

	// Reference spot prices and realized daily vols by exchange symbol,
	// for the cross-reference detector. Missing symbols disable it.
	RefPrices map[string]float64
	RefVols   map[string]float64

	// Mean-reversion cooldown state. Nil disables the cooldown gate.
	Cooldowns CooldownView
}

// Detector turns one snapshot into candidate trades for one strategy.
type Detector interface {
	Strategy() domain.Strategy
	Detect(snap domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity
}

// Registry holds every detector in fixed order.
type Registry struct {
	detectors []Detector
	log       zerolog.Logger
}

// NewRegistry creates a registry with all nine detectors registered.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		detectors: []Detector{
			&NearCertainDetector{},
			&NearZeroDetector{},
			&DipBuyDetector{},
			&VolumeSurgeDetector{},
			&MidRangeDetector{},
			&MeanReversionDetector{},
			&DualSideArbDetector{},
			&MarketMakerDetector{},
			&CrossRefDetector{},
		},
		log: log.With().Str("component", "detect").Logger(),
	}
}

// Detectors returns the registered detectors in order.
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// Detect runs every detector over every snapshot and returns the combined
// candidate list, unranked.
func (r *Registry) Detect(snaps []domain.Snapshot, params config.Params, dctx Context) []domain.Opportunity {
	var all []domain.Opportunity
	counts := make(map[domain.Strategy]int, len(r.detectors))

	for i := range snaps {
		for _, d := range r.detectors {
			opps := d.Detect(snaps[i], params, dctx)
			for j := range opps {
				// Always the YES token: the price stream quotes YES and
				// exit checks derive NO values from the complement.
				opps[j].TokenID = snaps[i].TokenIDYes
				opps[j].Category = snaps[i].Category
			}
			if len(opps) > 0 {
				counts[d.Strategy()] += len(opps)
				all = append(all, opps...)
			}
		}
	}

	evt := r.log.Debug().Int("markets", len(snaps)).Int("candidates", len(all))
	for _, d := range r.detectors {
		evt = evt.Int(d.Strategy().String(), counts[d.Strategy()])
	}
	evt.Msg("Detection pass complete")

	return all
}
