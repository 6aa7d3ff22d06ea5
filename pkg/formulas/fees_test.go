package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTakerFee(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		expected float64
	}{
		{name: "Peak at midpoint", price: 0.50, expected: 0.015625},
		{name: "Sweet spot", price: 0.60, expected: 0.0144},
		{name: "Near certain", price: 0.97, expected: 0.25 * 0.0291 * 0.0291},
		{name: "At zero", price: 0.0, expected: 0},
		{name: "At one", price: 1.0, expected: 0},
		{name: "Below zero", price: -0.1, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TakerFee(tt.price), 1e-9)
		})
	}
}

func TestTakerFeeSymmetric(t *testing.T) {
	// p and 1-p carry the same fee
	for _, p := range []float64{0.1, 0.25, 0.4, 0.45} {
		assert.InDelta(t, TakerFee(p), TakerFee(1-p), 1e-12)
	}
}

func TestTakerSlippage(t *testing.T) {
	tests := []struct {
		name      string
		liquidity float64
		expected  float64
	}{
		{name: "Thin market", liquidity: 5000, expected: 0.006},
		{name: "Just under thin boundary", liquidity: 9999, expected: 0.006},
		{name: "Medium market", liquidity: 15000, expected: 0.003},
		{name: "Deep market", liquidity: 50000, expected: 0.002},
		{name: "Boundary at 25k", liquidity: 25000, expected: 0.002},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TakerSlippage(tt.liquidity, 20), 1e-9)
		})
	}
}
