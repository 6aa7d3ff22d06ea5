// Package domain holds the core types shared across the engine modules:
// market snapshots, opportunities, positions, trades and the closed strategy
// and side enumerations.
package domain

import "fmt"

// Strategy identifies one of the nine opportunity detectors. It is a closed
// enumeration: the ranker, the sizing model and the exit dispatch all switch
// exhaustively over these values.
type Strategy uint8

const (
	// StrategyNearCertain buys YES in the upper resolution tail.
	StrategyNearCertain Strategy = iota
	// StrategyNearZero buys NO in the lower resolution tail.
	StrategyNearZero
	// StrategyDipBuy buys adverse 24h moves in the empirical edge zones.
	StrategyDipBuy
	// StrategyVolumeSurge follows anomalous 1h activity.
	StrategyVolumeSurge
	// StrategyMidRange trades short-term momentum inside the mid band.
	StrategyMidRange
	// StrategyMeanReversion fades prices outside the central band.
	StrategyMeanReversion
	// StrategyDualSideArb buys both sides when their combined cost is below $1.
	StrategyDualSideArb
	// StrategyMarketMaker captures the quoted spread with synthetic quotes.
	StrategyMarketMaker
	// StrategyCrossRef trades gaps between quoted and reference-implied odds.
	StrategyCrossRef

	strategyCount = int(StrategyCrossRef) + 1
)

var strategyNames = [strategyCount]string{
	StrategyNearCertain:   "NEAR_CERTAIN",
	StrategyNearZero:      "NEAR_ZERO",
	StrategyDipBuy:        "DIP_BUY",
	StrategyVolumeSurge:   "VOLUME_SURGE",
	StrategyMidRange:      "MID_RANGE",
	StrategyMeanReversion: "MEAN_REVERSION",
	StrategyDualSideArb:   "DUAL_SIDE_ARB",
	StrategyMarketMaker:   "MARKET_MAKER",
	StrategyCrossRef:      "CROSS_REF_ARB",
}

// Strategies lists all strategy identities in declaration order.
func Strategies() []Strategy {
	out := make([]Strategy, strategyCount)
	for i := range out {
		out[i] = Strategy(i)
	}
	return out
}

// ParseStrategy converts a wire/config name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if name == s {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

func (s Strategy) String() string {
	if int(s) < strategyCount {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler so strategies serialize as
// their names, including as JSON map keys in the ledger file.
func (s Strategy) MarshalText() ([]byte, error) {
	if int(s) >= strategyCount {
		return nil, fmt.Errorf("invalid strategy value %d", uint8(s))
	}
	return []byte(strategyNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Side is the position side on a binary market. BOTH is the dual-side
// arbitrage special case; MM marks a synthetic-quote spread position.
type Side uint8

const (
	SideYes Side = iota
	SideNo
	SideBoth
	SideMM
)

var sideNames = [...]string{
	SideYes:  "YES",
	SideNo:   "NO",
	SideBoth: "BOTH",
	SideMM:   "MM",
}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	if int(s) >= len(sideNames) {
		return nil, fmt.Errorf("invalid side value %d", uint8(s))
	}
	return []byte(sideNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	for i, name := range sideNames {
		if name == string(text) {
			*s = Side(i)
			return nil
		}
	}
	return fmt.Errorf("unknown side %q", string(text))
}
