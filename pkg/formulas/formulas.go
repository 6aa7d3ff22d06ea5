// Package formulas provides the financial math shared across the engine:
// horizon-adjusted returns, realized volatility and price smoothing.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// AnnualizedReturn compounds a raw return over days-to-resolution to a
// 365-day basis: (1+raw)^(365/days) - 1. Used to compare opportunities
// with different capital-lockup horizons.
func AnnualizedReturn(rawReturn float64, daysToResolve int) float64 {
	if daysToResolve < 1 {
		daysToResolve = 1
	}
	if rawReturn <= -1 {
		return -1
	}
	return math.Pow(1+rawReturn, 365/float64(daysToResolve)) - 1
}

// AnnualizedReturnCapped is AnnualizedReturn clamped to an upper bound.
// Short-horizon opportunities otherwise produce absurd compounded figures.
func AnnualizedReturnCapped(rawReturn float64, daysToResolve int, cap float64) float64 {
	ann := AnnualizedReturn(rawReturn, daysToResolve)
	if ann > cap {
		return cap
	}
	return ann
}

// RealizedDailyVol estimates daily volatility as the standard deviation of
// log returns over the given close series. Returns 0 when the series is
// too short to produce a return.
func RealizedDailyVol(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

// SmoothedClose returns the last EMA value of the close series, used to
// damp single-print noise in reference spot prices. Falls back to the raw
// last close when the series is shorter than the EMA period.
func SmoothedClose(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if period < 2 || len(closes) < period {
		return closes[len(closes)-1]
	}
	ema := talib.Ema(closes, period)
	return ema[len(ema)-1]
}
