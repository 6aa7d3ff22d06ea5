package reference

import "math"

// ImpliedProbability estimates the chance that spot reaches the target
// within the given horizon, from the distance between spot and target
// scaled by the expected move (daily vol times sqrt of days).
//
// When spot is already past the target the probability starts at 0.85 and
// grows with the overshoot. Otherwise it decays linearly from 0.50 with
// distance. The result is clamped to [0.05, 0.95]: a heuristic never gets
// to claim certainty.
func ImpliedProbability(spot, target float64, direction Direction, days int, dailyVol float64) float64 {
	if spot <= 0 || target <= 0 {
		return 0.5
	}
	if days < 1 {
		days = 1
	}
	if dailyVol <= 0 {
		dailyVol = 0.03
	}

	expectedMove := dailyVol * math.Sqrt(float64(days))

	var prob float64
	if direction == DirectionAbove {
		if spot >= target {
			prob = 0.85 + math.Min(0.10, (spot-target)/target*0.1)
		} else {
			distance := (target - spot) / spot
			prob = math.Max(0.05, 0.5-distance/expectedMove*0.5)
		}
	} else {
		if spot <= target {
			prob = 0.85 + math.Min(0.10, (target-spot)/spot*0.1)
		} else {
			distance := (spot - target) / spot
			prob = math.Max(0.05, 0.5-distance/expectedMove*0.5)
		}
	}

	return math.Min(0.95, math.Max(0.05, prob))
}
