package config

import (
	"github.com/aristath/foresight/internal/domain"
)

// Params are the engine's tunable thresholds. A copy is taken at the start
// of each cycle so a mid-cycle update never splits one decision across two
// parameter sets. All defaults come from the live-tuned values.
type Params struct {
	// Position limits and exits
	MaxPositionPct float64 `json:"max_position_pct"`
	MaxPositions   int     `json:"max_positions"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	MinConfidence  float64 `json:"min_confidence"`
	MinTradeUSD    float64 `json:"min_trade_usd"`
	MaxTradeUSD    float64 `json:"max_trade_usd"`

	// Hold-to-resolution strategies are jointly capped at this fraction of
	// initial balance so fast-turnover strategies always retain capital.
	HoldCapPct float64 `json:"hold_cap_pct"`

	// Stop-loss circuit breaker
	MaxStopsPerDay  int `json:"max_stops_per_day"`
	StopWindowHours int `json:"stop_window_hours"`

	// Scan
	MinLiquidity    float64 `json:"min_liquidity"`
	ScanIntervalSec int     `json:"scan_interval_sec"`
	ExitIntervalSec int     `json:"exit_interval_sec"`

	// Fractional Kelly sizing
	KellyFraction    float64 `json:"kelly_fraction"`
	KellyMinEdge     float64 `json:"kelly_min_edge"`
	KellyMaxFraction float64 `json:"kelly_max_fraction"`

	// Ranker: per-strategy quotas, fixed priority order, global cap
	GlobalCap    int                     `json:"global_cap"`
	DefaultQuota int                     `json:"default_quota"`
	Quotas       map[domain.Strategy]int `json:"quotas"`
	Priority     []domain.Strategy       `json:"priority"`

	// Resolution-extreme pair
	NearCertainMin      float64 `json:"near_certain_min"`
	NearZeroMax         float64 `json:"near_zero_max"`
	MaxDaysToResolve    int     `json:"max_days_to_resolve"`
	MinAnnualizedReturn float64 `json:"min_annualized_return"`

	// Momentum pair
	DipThreshold      float64 `json:"dip_threshold"`
	DipMinVolume      float64 `json:"dip_min_volume"`
	SurgeMinChange1h  float64 `json:"surge_min_change_1h"`
	SurgeMinVolume    float64 `json:"surge_min_volume"`
	SurgeMaxChange24h float64 `json:"surge_max_change_24h"`

	// Mid-range momentum
	MidRangeMinMove float64 `json:"mid_range_min_move"`
	Min24hVolume    float64 `json:"min_24h_volume"`

	// Empirically profitable entry-price zones shared by the active
	// trading detectors.
	EdgeZones [][2]float64 `json:"edge_zones"`

	// Mean reversion
	MeanReversionLow  float64 `json:"mean_reversion_low"`
	MeanReversionHigh float64 `json:"mean_reversion_high"`
	MRCooldownHours   int     `json:"mr_cooldown_hours"`
	MRMaxEntries      int     `json:"mr_max_entries"`

	// Dual-side arbitrage
	DualSideMinProfit    float64 `json:"dual_side_min_profit"`
	DualSideMinLiquidity float64 `json:"dual_side_min_liquidity"`
	DualSideMaxHoldDays  int     `json:"dual_side_max_hold_days"`

	// Spread capture
	MMMinSpread        float64    `json:"mm_min_spread"`
	MMMaxSpread        float64    `json:"mm_max_spread"`
	MMMinVolume        float64    `json:"mm_min_volume"`
	MMMinLiquidity     float64    `json:"mm_min_liquidity"`
	MMTargetProfit     float64    `json:"mm_target_profit"`
	MMMaxHoldHours     float64    `json:"mm_max_hold_hours"`
	MMTimeoutMinProfit float64    `json:"mm_timeout_min_profit"`
	MMStopLossPct      float64    `json:"mm_stop_loss_pct"`
	MMSweetZone        [2]float64 `json:"mm_sweet_zone"`
	MMFallbackZone     [2]float64 `json:"mm_fallback_zone"`
	MMMinDays          int        `json:"mm_min_days"`
	MMMaxDays          int        `json:"mm_max_days"`
	MMFillProbability  float64    `json:"mm_fill_probability"`
	MMSlippageBps      float64    `json:"mm_slippage_bps"`
	MMBlockedTopics    []string   `json:"mm_blocked_topics"`
	MMPreferredTopics  []string   `json:"mm_preferred_topics"`
	MMNegativeTopics   []string   `json:"mm_negative_topics"`
	MMSportsWords      []string   `json:"mm_sports_words"`
	MMSportsPhrases    []string   `json:"mm_sports_phrases"`

	// Cross-reference arbitrage. The probability model is a hand-tuned
	// heuristic, so every constant lives here rather than in code.
	CrossRefMinEdge      float64  `json:"cross_ref_min_edge"`
	CrossRefMinLiquidity float64  `json:"cross_ref_min_liquidity"`
	CrossRefDailyVol     float64  `json:"cross_ref_daily_vol"`
	CrossRefDefaultDays  int      `json:"cross_ref_default_days"`
	CrossRefSymbols      []string `json:"cross_ref_symbols"`
	CrossRefEMAPeriod    int      `json:"cross_ref_ema_period"`

	// Sentiment gates
	SentimentBearishBlock float64 `json:"sentiment_bearish_block"`
	SentimentMatchMin     float64 `json:"sentiment_match_min"`
}

// DefaultParams returns the tuned default parameter set.
func DefaultParams() Params {
	return Params{
		MaxPositionPct: 0.20,
		MaxPositions:   10,
		TakeProfitPct:  0.10,
		StopLossPct:    -0.05,
		MinConfidence:  0.55,
		MinTradeUSD:    50,
		MaxTradeUSD:    200,

		HoldCapPct: 0.50,

		MaxStopsPerDay:  2,
		StopWindowHours: 24,

		MinLiquidity:    5000,
		ScanIntervalSec: 120,
		ExitIntervalSec: 30,

		KellyFraction:    0.50,
		KellyMinEdge:     0.02,
		KellyMaxFraction: 0.30,

		GlobalCap:    10,
		DefaultQuota: 2,
		Quotas: map[domain.Strategy]int{
			domain.StrategyMarketMaker: 4,
			domain.StrategyNearCertain: 3,
			domain.StrategyNearZero:    3,
		},
		Priority: []domain.Strategy{
			domain.StrategyDualSideArb,
			domain.StrategyMarketMaker,
			domain.StrategyMeanReversion,
			domain.StrategyNearCertain,
			domain.StrategyNearZero,
			domain.StrategyMidRange,
			domain.StrategyVolumeSurge,
			domain.StrategyDipBuy,
			domain.StrategyCrossRef,
		},

		NearCertainMin:      0.95,
		NearZeroMax:         0.05,
		MaxDaysToResolve:    90,
		MinAnnualizedReturn: 0.15,

		DipThreshold:      -0.03,
		DipMinVolume:      30000,
		SurgeMinChange1h:  0.02,
		SurgeMinVolume:    30000,
		SurgeMaxChange24h: 0.05,

		MidRangeMinMove: 0.005,
		Min24hVolume:    10000,

		EdgeZones: [][2]float64{{0.55, 0.65}, {0.80, 0.95}},

		MeanReversionLow:  0.30,
		MeanReversionHigh: 0.70,
		MRCooldownHours:   48,
		MRMaxEntries:      2,

		DualSideMinProfit:    0.02,
		DualSideMinLiquidity: 10000,
		DualSideMaxHoldDays:  30,

		MMMinSpread:        0.01,
		MMMaxSpread:        0.15,
		MMMinVolume:        5000,
		MMMinLiquidity:     10000,
		MMTargetProfit:     0.015,
		MMMaxHoldHours:     4,
		MMTimeoutMinProfit: 0.03,
		MMStopLossPct:      -0.03,
		MMSweetZone:        [2]float64{0.50, 0.70},
		MMFallbackZone:     [2]float64{0.80, 0.95},
		MMMinDays:          2,
		MMMaxDays:          30,
		MMFillProbability:  0.60,
		MMSlippageBps:      20,
		MMBlockedTopics: []string{
			"jesus", "christ", "god return", "rapture", "second coming",
			"alien contact", "extraterrestrial", "supernatural",
			"flat earth", "illuminati", "$1m", "$1,000,000",
			"million dollars", "billion dollar",
		},
		MMPreferredTopics: []string{
			"trump", "biden", "election", "president", "congress",
			"fed", "interest rate", "inflation", "tariff", "economy",
			"gdp", "unemployment", "recession", "jobs",
		},
		MMNegativeTopics: []string{
			"bitcoin", "btc", "ethereum", "eth", "crypto", "solana",
		},
		MMSportsWords: []string{
			"tennis", "atp", "wta", "soccer", "football",
			"nba", "nfl", "nhl", "mlb", "cricket", "ipl",
			"mls", "esports", "csgo", "dota", "lol",
		},
		MMSportsPhrases: []string{
			"grand slam", "premier league", "champions league",
			"la liga", "serie a", "bundesliga", "ligue 1",
			"league of legends", " vs ",
			"game 1", "game 2", "game 3",
		},

		CrossRefMinEdge:      0.03,
		CrossRefMinLiquidity: 10000,
		CrossRefDailyVol:     0.03,
		CrossRefDefaultDays:  30,
		CrossRefSymbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		CrossRefEMAPeriod:    5,

		SentimentBearishBlock: 0.6,
		SentimentMatchMin:     0.5,
	}
}

// Quota returns the ranked-list quota for a strategy.
func (p Params) Quota(s domain.Strategy) int {
	if q, ok := p.Quotas[s]; ok {
		return q
	}
	return p.DefaultQuota
}

// InEdgeZone reports whether an entry price sits inside one of the
// empirically profitable zones.
func (p Params) InEdgeZone(price float64) bool {
	for _, z := range p.EdgeZones {
		if price >= z[0] && price <= z[1] {
			return true
		}
	}
	return false
}
