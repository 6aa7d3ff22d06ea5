package formulas

// TakerFee returns the taker fee as a fraction of trade value for a fill
// at the given price. The schedule peaks near 1.56% at p=0.50 and falls to
// zero at the extremes. Maker (post-only) fills pay nothing.
func TakerFee(price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0.0
	}
	pq := price * (1 - price)
	return 0.25 * pq * pq
}

// TakerSlippage estimates the slippage fraction a taker order pays given
// market liquidity in USD. Thin books eat through depth and fill worse:
// under $10k liquidity costs 3x the base rate, under $25k costs 1.5x.
// Callers apply direction: buys pay price*(1+slip), sells receive
// price*(1-slip).
func TakerSlippage(liquidity float64, baseBps int) float64 {
	base := float64(baseBps) / 10000

	switch {
	case liquidity < 10_000:
		return base * 3.0
	case liquidity < 25_000:
		return base * 1.5
	default:
		return base
	}
}
