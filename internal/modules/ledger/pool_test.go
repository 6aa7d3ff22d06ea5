package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
)

var ledgerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ledgerOpp(cid string, s domain.Strategy, price float64) domain.Opportunity {
	return domain.Opportunity{
		ConditionID: cid,
		Question:    "Will the CPI print above 3%?",
		Strategy:    s,
		Side:        domain.SideYes,
		Price:       price,
		Liquidity:   50000,
		Reason:      "test entry",
	}
}

func TestOpen_DebitsBalanceAndBooksPosition(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	pos, err := p.Open(ledgerOpp("0xa", domain.StrategyNearCertain, 0.96), 0.96, 100, 0.02, ledgerNow)
	require.NoError(t, err)

	assert.InDelta(t, 900, p.Balance(), 1e-9)
	assert.InDelta(t, 100, pos.CostBasis, 1e-9, "cost basis is the full debit, fee included")
	assert.InDelta(t, 2.0, pos.EntryFee, 1e-9)
	assert.InDelta(t, 98.0/0.96, pos.Shares, 1e-9, "fee reduces shares received")
	assert.True(t, p.Has("0xa"))
	assert.Equal(t, 1, p.OpenCount())

	stats := p.StrategyMetrics()[domain.StrategyNearCertain]
	assert.InDelta(t, 2.0, stats.Fees, 1e-9, "entry fee tracked at open")
	assert.Zero(t, stats.Trades, "trades only count at close")
}

func TestOpen_RejectsOverdraft(t *testing.T) {
	p := NewPool("main", 100, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 150, 0, ledgerNow)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.InDelta(t, 100, p.Balance(), 1e-9, "no mutation on rejection")
	assert.Zero(t, p.OpenCount())
}

func TestOpen_RejectsDoubleOpen(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)

	_, err = p.Open(ledgerOpp("0xa", domain.StrategyDipBuy, 0.48), 0.48, 100, 0, ledgerNow)
	assert.ErrorIs(t, err, ErrPositionExists)
	assert.InDelta(t, 900, p.Balance(), 1e-9)

	pos, _ := p.Get("0xa")
	assert.Equal(t, domain.StrategyMidRange, pos.Strategy, "first entry wins")
}

func TestOpen_RejectsBadOrder(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0, 100, 0, ledgerNow)
	assert.ErrorIs(t, err, ErrBadOrder)

	_, err = p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, -5, 0, ledgerNow)
	assert.ErrorIs(t, err, ErrBadOrder)
}

func TestOpen_TruncatesLongQuestions(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	opp := ledgerOpp("0xa", domain.StrategyMidRange, 0.50)
	opp.Question = strings.Repeat("x", 200)
	pos, err := p.Open(opp, 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)
	assert.Len(t, pos.Question, 80)
}

func TestClose_SettlesAndRecordsTrade(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())
	_, err := p.Open(ledgerOpp("0xa", domain.StrategyNearCertain, 0.96), 0.96, 100, 0.02, ledgerNow)
	require.NoError(t, err)

	exitTime := ledgerNow.Add(48 * time.Hour)
	trade, err := p.Close("0xa", 1.0, 0, domain.ExitResolved, exitTime)
	require.NoError(t, err)

	shares := 98.0 / 0.96
	assert.NotEmpty(t, trade.ID)
	assert.InDelta(t, shares-100, trade.PnL, 0.01)
	assert.InDelta(t, (shares-100)/100*100, trade.PnLPct, 0.01)
	assert.Equal(t, domain.ExitResolved, trade.ExitReason)
	assert.Equal(t, exitTime, trade.ExitTime)
	assert.InDelta(t, 900+shares, p.Balance(), 1e-9)
	assert.False(t, p.Has("0xa"))
	require.Len(t, p.History(), 1)

	m := p.Metrics()
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Zero(t, m.LosingTrades)

	stats := p.StrategyMetrics()[domain.StrategyNearCertain]
	assert.Equal(t, 1, stats.Trades)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, shares-100, stats.PnL, 1e-9)
}

func TestClose_ExitFeeComesOffProceeds(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())
	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)

	trade, err := p.Close("0xa", 0.60, 0.01, domain.ExitTakeProfit, ledgerNow.Add(time.Hour))
	require.NoError(t, err)

	// 200 shares at 0.60 gross $120, 1% fee $1.20, pnl $18.80.
	assert.InDelta(t, 1.20, trade.ExitFee, 1e-9)
	assert.InDelta(t, 18.80, trade.PnL, 1e-9)
	assert.InDelta(t, 1018.80, p.Balance(), 1e-9)
}

func TestClose_UnknownPositionFails(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())
	_, err := p.Close("0xmissing", 0.5, 0, domain.ExitTimeout, ledgerNow)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestPool_ConservationHoldsAcrossTrades(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	seq := []struct {
		cid    string
		s      domain.Strategy
		price  float64
		amount float64
		feePct float64
		exit   float64
	}{
		{"0xa", domain.StrategyNearCertain, 0.96, 120, 0.0022, 1.0},
		{"0xb", domain.StrategyMidRange, 0.55, 80, 0.015, 0.48},
		{"0xc", domain.StrategyDipBuy, 0.40, 60, 0.02, 0.52},
		{"0xd", domain.StrategyMeanReversion, 0.20, 55, 0.01, 0.17},
	}
	for _, tr := range seq {
		_, err := p.Open(ledgerOpp(tr.cid, tr.s, tr.price), tr.price, tr.amount, tr.feePct, ledgerNow)
		require.NoError(t, err)
	}
	for _, tr := range seq {
		_, err := p.Close(tr.cid, tr.exit, 0.01, domain.ExitTimeout, ledgerNow.Add(time.Hour))
		require.NoError(t, err)
	}

	realized := 0.0
	for _, trade := range p.History() {
		realized += trade.PnL
	}
	openCost := 0.0
	for _, pos := range p.Positions() {
		openCost += pos.CostBasis
	}
	assert.InDelta(t, 1000, p.Balance()+openCost-realized, 0.05,
		"cash plus cost bases minus realized pnl equals initial")
}

func TestPool_DrawdownTracksCashTrough(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 200, 0, ledgerNow)
	require.NoError(t, err)
	_, err = p.Close("0xa", 0.40, 0, domain.ExitStopLoss, ledgerNow.Add(time.Hour))
	require.NoError(t, err)

	m := p.Metrics()
	assert.InDelta(t, 0.04, m.MaxDrawdown, 1e-9, "$40 loss against the $1,000 peak")
	assert.Equal(t, 1, m.LosingTrades)

	_, err = p.Open(ledgerOpp("0xb", domain.StrategyMidRange, 0.50), 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)
	_, err = p.Close("0xb", 0.80, 0, domain.ExitTakeProfit, ledgerNow.Add(2*time.Hour))
	require.NoError(t, err)

	m = p.Metrics()
	assert.InDelta(t, 1020, m.PeakBalance, 1e-9, "new peak after the winner")
	assert.InDelta(t, 0.04, m.MaxDrawdown, 1e-9, "drawdown is a high-water mark")
}

func TestPool_ExposureFiltersByStrategy(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyNearCertain, 0.96), 0.96, 100, 0, ledgerNow)
	require.NoError(t, err)
	_, err = p.Open(ledgerOpp("0xb", domain.StrategyMidRange, 0.55), 0.55, 80, 0, ledgerNow)
	require.NoError(t, err)
	_, err = p.Open(ledgerOpp("0xc", domain.StrategyDipBuy, 0.40), 0.40, 60, 0, ledgerNow)
	require.NoError(t, err)

	got := p.Exposure(domain.StrategyNearCertain, domain.StrategyMidRange)
	assert.InDelta(t, 180, got, 1e-9)
	assert.InDelta(t, 240, p.Exposure(domain.Strategies()...), 1e-9)
	assert.Zero(t, p.Exposure(domain.StrategyMarketMaker))
}

func TestPool_UnrealizedPnLSkipsUnpricedMarkets(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)
	no := ledgerOpp("0xb", domain.StrategyMidRange, 0.40)
	no.Side = domain.SideNo
	_, err = p.Open(no, 0.40, 100, 0, ledgerNow)
	require.NoError(t, err)

	// 0xa: 200 shares at 0.55 = +$10. 0xb: NO shares valued at 1-price.
	// 250 shares at (1-0.70) = $75, -$25. 0xc is absent: skipped.
	got := p.UnrealizedPnL(map[string]float64{"0xa": 0.55, "0xb": 0.70, "0xc": 0.99})
	assert.InDelta(t, -15, got, 1e-9)
}

func TestSummary_Figures(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xa", domain.StrategyMidRange, 0.50), 0.50, 100, 0, ledgerNow)
	require.NoError(t, err)
	_, err = p.Close("0xa", 0.60, 0, domain.ExitTakeProfit, ledgerNow.Add(time.Hour))
	require.NoError(t, err)
	_, err = p.Open(ledgerOpp("0xb", domain.StrategyNearCertain, 0.96), 0.96, 150, 0, ledgerNow)
	require.NoError(t, err)

	sum := p.Summary()
	assert.Equal(t, "main", sum.Pool)
	assert.InDelta(t, 870, sum.Balance, 1e-9)
	assert.InDelta(t, 1020, sum.TotalValue, 1e-9, "cash plus open cost basis")
	assert.InDelta(t, 2.0, sum.ROIPct, 1e-9)
	assert.Equal(t, 1, sum.OpenPositions)
	assert.Equal(t, 1, sum.TotalTrades)
	assert.InDelta(t, 100.0, sum.WinRatePct, 1e-9)
	assert.InDelta(t, 20.0, sum.TotalPnL, 1e-9)
	require.Contains(t, sum.Strategies, domain.StrategyMidRange)
	assert.Equal(t, 1, sum.Strategies[domain.StrategyMidRange].Trades)
}

func TestPositions_OrderedByEntryTime(t *testing.T) {
	p := NewPool("main", 1000, zerolog.Nop())

	_, err := p.Open(ledgerOpp("0xb", domain.StrategyMidRange, 0.50), 0.50, 60, 0, ledgerNow.Add(time.Minute))
	require.NoError(t, err)
	_, err = p.Open(ledgerOpp("0xa", domain.StrategyDipBuy, 0.40), 0.40, 60, 0, ledgerNow)
	require.NoError(t, err)

	got := p.Positions()
	require.Len(t, got, 2)
	assert.Equal(t, "0xa", got[0].ConditionID)
	assert.Equal(t, "0xb", got[1].ConditionID)
}
