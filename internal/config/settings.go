package config

import (
	"fmt"
	"sync"

	"github.com/aristath/foresight/internal/domain"
)

// Settings guards the runtime-adjustable parameter set. Cycle code takes a
// Snapshot once per iteration; the API applies partial updates through Patch.
type Settings struct {
	mu     sync.RWMutex
	params Params
}

// NewSettings creates a Settings holder seeded with the given parameters.
func NewSettings(p Params) *Settings {
	return &Settings{params: p}
}

// Snapshot returns a copy of the current parameters. Reference fields are
// copied so later patches never race with a cycle in flight.
func (s *Settings) Snapshot() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyParams(s.params)
}

// Patch carries a partial parameter update. Nil fields are left unchanged.
type Patch struct {
	TakeProfitPct       *float64       `json:"take_profit_pct,omitempty"`
	StopLossPct         *float64       `json:"stop_loss_pct,omitempty"`
	MinConfidence       *float64       `json:"min_confidence,omitempty"`
	MaxPositions        *int           `json:"max_positions,omitempty"`
	MinTradeUSD         *float64       `json:"min_trade_usd,omitempty"`
	MaxTradeUSD         *float64       `json:"max_trade_usd,omitempty"`
	GlobalCap           *int           `json:"global_cap,omitempty"`
	DefaultQuota        *int           `json:"default_quota,omitempty"`
	Quotas              map[string]int `json:"quotas,omitempty"`
	KellyFraction       *float64       `json:"kelly_fraction,omitempty"`
	KellyMaxFraction    *float64       `json:"kelly_max_fraction,omitempty"`
	MinAnnualizedReturn *float64       `json:"min_annualized_return,omitempty"`
}

// Validate rejects values that would wedge the engine.
func (p Patch) Validate() error {
	if p.TakeProfitPct != nil && *p.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct must be positive")
	}
	if p.StopLossPct != nil && *p.StopLossPct >= 0 {
		return fmt.Errorf("stop_loss_pct must be negative")
	}
	if p.MinConfidence != nil && (*p.MinConfidence < 0 || *p.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be in [0,1]")
	}
	if p.MaxPositions != nil && *p.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1")
	}
	if p.MinTradeUSD != nil && *p.MinTradeUSD < 0 {
		return fmt.Errorf("min_trade_usd must not be negative")
	}
	if p.MaxTradeUSD != nil && *p.MaxTradeUSD <= 0 {
		return fmt.Errorf("max_trade_usd must be positive")
	}
	if p.GlobalCap != nil && *p.GlobalCap < 1 {
		return fmt.Errorf("global_cap must be at least 1")
	}
	if p.DefaultQuota != nil && *p.DefaultQuota < 1 {
		return fmt.Errorf("default_quota must be at least 1")
	}
	if p.KellyFraction != nil && (*p.KellyFraction <= 0 || *p.KellyFraction > 1) {
		return fmt.Errorf("kelly_fraction must be in (0,1]")
	}
	if p.KellyMaxFraction != nil && (*p.KellyMaxFraction <= 0 || *p.KellyMaxFraction > 1) {
		return fmt.Errorf("kelly_max_fraction must be in (0,1]")
	}
	for name, quota := range p.Quotas {
		if _, err := domain.ParseStrategy(name); err != nil {
			return fmt.Errorf("quotas: %w", err)
		}
		if quota < 0 {
			return fmt.Errorf("quotas: %s must not be negative", name)
		}
	}
	return nil
}

// Apply merges the patch into the current parameters and returns the
// resulting snapshot.
func (s *Settings) Apply(patch Patch) (Params, error) {
	if err := patch.Validate(); err != nil {
		return Params{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyParams(s.params)
	if patch.TakeProfitPct != nil {
		next.TakeProfitPct = *patch.TakeProfitPct
	}
	if patch.StopLossPct != nil {
		next.StopLossPct = *patch.StopLossPct
	}
	if patch.MinConfidence != nil {
		next.MinConfidence = *patch.MinConfidence
	}
	if patch.MaxPositions != nil {
		next.MaxPositions = *patch.MaxPositions
	}
	if patch.MinTradeUSD != nil {
		next.MinTradeUSD = *patch.MinTradeUSD
	}
	if patch.MaxTradeUSD != nil {
		next.MaxTradeUSD = *patch.MaxTradeUSD
	}
	if patch.GlobalCap != nil {
		next.GlobalCap = *patch.GlobalCap
	}
	if patch.DefaultQuota != nil {
		next.DefaultQuota = *patch.DefaultQuota
	}
	if patch.KellyFraction != nil {
		next.KellyFraction = *patch.KellyFraction
	}
	if patch.KellyMaxFraction != nil {
		next.KellyMaxFraction = *patch.KellyMaxFraction
	}
	if patch.MinAnnualizedReturn != nil {
		next.MinAnnualizedReturn = *patch.MinAnnualizedReturn
	}
	for name, quota := range patch.Quotas {
		strat, err := domain.ParseStrategy(name)
		if err != nil {
			return Params{}, fmt.Errorf("quotas: %w", err)
		}
		next.Quotas[strat] = quota
	}

	s.params = next
	return copyParams(next), nil
}

func copyParams(p Params) Params {
	out := p

	out.Quotas = make(map[domain.Strategy]int, len(p.Quotas))
	for k, v := range p.Quotas {
		out.Quotas[k] = v
	}
	out.Priority = append([]domain.Strategy(nil), p.Priority...)
	out.EdgeZones = append([][2]float64(nil), p.EdgeZones...)
	out.MMBlockedTopics = append([]string(nil), p.MMBlockedTopics...)
	out.MMPreferredTopics = append([]string(nil), p.MMPreferredTopics...)
	out.MMNegativeTopics = append([]string(nil), p.MMNegativeTopics...)
	out.MMSportsWords = append([]string(nil), p.MMSportsWords...)
	out.MMSportsPhrases = append([]string(nil), p.MMSportsPhrases...)
	out.CrossRefSymbols = append([]string(nil), p.CrossRefSymbols...)

	return out
}
