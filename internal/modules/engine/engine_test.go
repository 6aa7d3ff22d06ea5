package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/clients/executor"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/admit"
	"github.com/aristath/foresight/internal/modules/detect"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/internal/modules/lifecycle"
	"github.com/aristath/foresight/internal/modules/rank"
	"github.com/aristath/foresight/internal/modules/sizing"
)

var engNow = time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)

type fakeScanner struct {
	snaps []domain.Snapshot
	err   error
	calls int
}

func (f *fakeScanner) ActiveMarkets(_ context.Context, _ float64) ([]domain.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps, nil
}

type fakeMarket struct {
	prices   map[string]float64
	resolved map[string]float64
}

func (f *fakeMarket) MarketPrice(_ context.Context, cid string) (*float64, error) {
	if p, ok := f.prices[cid]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeMarket) ResolutionPrice(_ context.Context, cid string) (*float64, error) {
	if p, ok := f.resolved[cid]; ok {
		return &p, nil
	}
	return nil, nil
}

type fakeStream struct {
	tokens []string
}

func (f *fakeStream) Subscribe(tokenIDs ...string) error {
	f.tokens = append(f.tokens, tokenIDs...)
	return nil
}

type harness struct {
	engine  *Engine
	pool    *ledger.Pool
	archive *history.Archive
	market  *fakeMarket
	stream  *fakeStream
}

func newHarness(t *testing.T, scanner *fakeScanner, opts ...func(*Deps)) *harness {
	t.Helper()
	dir := t.TempDir()
	nop := zerolog.Nop()

	pool := ledger.NewPool("scan-test", 1000, nop)
	store := ledger.NewStore(filepath.Join(dir, "ledger.json"), nop)
	stops := lifecycle.NewStopTracker(filepath.Join(dir, "stops.json"), 24*time.Hour, nop)
	cooldowns := lifecycle.NewCooldowns(48 * time.Hour)
	market := &fakeMarket{prices: map[string]float64{}, resolved: map[string]float64{}}
	exits := lifecycle.NewManager(pool, store, market, nil, cooldowns, stops, nop)

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "cycles.db"),
		Profile: database.ProfileArchive,
		Name:    "cycles",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	archive, err := history.NewArchive(db, nop)
	require.NoError(t, err)

	stream := &fakeStream{}
	deps := Deps{
		Pool:     pool,
		Store:    store,
		Scanner:  scanner,
		Registry: detect.NewRegistry(nop),
		Ranker:   rank.NewRanker(nop),
		Filter:   admit.NewFilter(pool, stops, nil, nop),
		Sizer:    sizing.NewModel(nop),
		Venue:    executor.NewPaper(20, nop),
		Exits:    exits,
		Archive:  archive,
		Settings: config.NewSettings(config.DefaultParams()),
		Stream:   stream,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	eng := New(deps, nop)
	eng.pause = 0
	eng.clock = func() time.Time { return engNow }

	return &harness{engine: eng, pool: pool, archive: archive, market: market, stream: stream}
}

// mmSnapshot sits at a 50 cent mid with an 8% spread inside the sweet
// zone: only the spread-capture detector fires on it.
func mmSnapshot(cid, token string) domain.Snapshot {
	return domain.Snapshot{
		ConditionID: cid,
		Question:    "Will the incumbent win the runoff?",
		BestBid:     0.48,
		BestAsk:     0.52,
		Volume24h:   50000,
		Liquidity:   60000,
		EndDate:     engNow.Add(10 * 24 * time.Hour),
		TokenIDYes:  token,
	}
}

// dipSnapshot dropped 4% into the profitable zone on a book too thin for
// spread capture: only the dip detector fires, and the 1% liquidity cap
// pins its sizing at $60.
func dipSnapshot(cid, token string) domain.Snapshot {
	return domain.Snapshot{
		ConditionID:    cid,
		Question:       "Will the incumbent concede the recount?",
		BestBid:        0.56,
		BestAsk:        0.58,
		PriceChange24h: -0.04,
		Volume24h:      40000,
		Liquidity:      6000,
		EndDate:        engNow.Add(14 * 24 * time.Hour),
		TokenIDYes:     token,
	}
}

// ncSnapshot is a near-certain market at 96 cents: it detects, ranks and
// admits, but the empirical edge is under the Kelly floor so sizing
// rejects it.
func ncSnapshot(cid, token string) domain.Snapshot {
	return domain.Snapshot{
		ConditionID: cid,
		Question:    "Will the treaty be ratified this year?",
		BestBid:     0.95,
		BestAsk:     0.96,
		Volume24h:   20000,
		Liquidity:   100000,
		EndDate:     engNow.Add(7 * 24 * time.Hour),
		TokenIDYes:  token,
	}
}

// crossedSnapshot quotes both outcomes for a combined 93 cents: only the
// dual-side arbitrage detector fires.
func crossedSnapshot(cid, token string) domain.Snapshot {
	return domain.Snapshot{
		ConditionID: cid,
		Question:    "Will the coalition hold through autumn?",
		BestBid:     0.52,
		BestAsk:     0.45,
		Volume24h:   30000,
		Liquidity:   20000,
		EndDate:     engNow.Add(5 * 24 * time.Hour),
		TokenIDYes:  token,
	}
}

func TestCycleOpensSpreadCapturePosition(t *testing.T) {
	h := newHarness(t, &fakeScanner{snaps: []domain.Snapshot{mmSnapshot("0xmm1", "tok-mm1")}})

	require.NoError(t, h.engine.Cycle(context.Background()))

	require.Equal(t, 1, h.pool.OpenCount())
	pos, ok := h.pool.Get("0xmm1")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyMarketMaker, pos.Strategy)
	assert.Equal(t, domain.SideMM, pos.Side)
	assert.InDelta(t, 0.49*1.002, pos.EntryPrice, 1e-9, "posts at the synthetic bid plus queue slip")
	assert.Zero(t, pos.EntryFee, "post-only entries pay no fee")
	assert.InDelta(t, 200.0, pos.CostBasis, 1e-9, "fixed fraction of the starting balance")
	assert.Equal(t, []string{"tok-mm1"}, h.stream.tokens, "fill subscribes the YES token")

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec, "cycle should be archived")
	assert.Equal(t, 1, rec.Scanned)
	assert.Equal(t, 1, rec.Detected)
	assert.Equal(t, 1, rec.Ranked)
	assert.Equal(t, 1, rec.Admitted)
	assert.Equal(t, 1, rec.Executed)
	assert.Zero(t, rec.Exits)
	assert.Equal(t, 1, rec.Positions)
	assert.InDelta(t, 800.0, rec.Balance, 1e-9)
	assert.InDelta(t, 200.0, rec.Exposure, 1e-9)

	rows, err := h.archive.LatestOpportunities("scan-test")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StrategyMarketMaker, rows[0].Strategy)
	assert.True(t, rows[0].Executed)

	book, err := h.archive.Markets(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Len(t, book.Markets, 1)
	assert.Equal(t, "0xmm1", book.Markets[0].ConditionID)
}

func TestCycleArchivesRankedButUnsizedCandidate(t *testing.T) {
	h := newHarness(t, &fakeScanner{snaps: []domain.Snapshot{ncSnapshot("0xnc1", "tok-nc1")}})

	require.NoError(t, h.engine.Cycle(context.Background()))

	assert.Zero(t, h.pool.OpenCount(), "thin edge should not trade")

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Detected)
	assert.Equal(t, 1, rec.Ranked)
	assert.Equal(t, 1, rec.Admitted, "candidate clears admission")
	assert.Zero(t, rec.Executed, "kelly floor rejects the margin-thin entry")

	rows, err := h.archive.LatestOpportunities("scan-test")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StrategyNearCertain, rows[0].Strategy)
	assert.False(t, rows[0].Executed)
}

func TestCycleBooksDualSidePairAtCombinedCost(t *testing.T) {
	h := newHarness(t, &fakeScanner{snaps: []domain.Snapshot{crossedSnapshot("0xarb1", "tok-a1")}})

	require.NoError(t, h.engine.Cycle(context.Background()))

	pos, ok := h.pool.Get("0xarb1")
	require.True(t, ok, "dual-side pair should book")
	assert.Equal(t, domain.StrategyDualSideArb, pos.Strategy)
	assert.Equal(t, domain.SideBoth, pos.Side)
	assert.InDelta(t, 0.93, pos.EntryPrice, 1e-9, "pair fills at combined quoted cost, no slippage")
	assert.Positive(t, pos.EntryFee, "taker fee applies to the pair")
	assert.InDelta(t, 200.0, pos.CostBasis, 1e-9)
}

func TestCycleEntryBudgetFavorsFastTurnover(t *testing.T) {
	scanner := &fakeScanner{snaps: []domain.Snapshot{
		dipSnapshot("0xdip1", "tok-d1"),
		dipSnapshot("0xdip2", "tok-d2"),
		dipSnapshot("0xdip3", "tok-d3"),
		mmSnapshot("0xmm1", "tok-m1"),
		mmSnapshot("0xmm2", "tok-m2"),
	}}
	h := newHarness(t, scanner)

	require.NoError(t, h.engine.Cycle(context.Background()))

	assert.Equal(t, 3, h.pool.OpenCount(), "per-cycle entry budget is three")
	assert.True(t, h.pool.Has("0xmm1"), "spread capture claims the budget first")
	assert.True(t, h.pool.Has("0xmm2"), "spread capture claims the budget first")

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Scanned)
	assert.Equal(t, 5, rec.Detected)
	assert.Equal(t, 4, rec.Ranked, "dip quota keeps two of three")
	assert.Equal(t, 3, rec.Executed)
	assert.Equal(t, 3, rec.Positions)
	assert.InDelta(t, 580.0, rec.Balance, 1e-9, "200 and 160 at the fixed fraction, then a liquidity-capped 60")
}

func TestCycleScanFailureStillRunsExitsAndArchives(t *testing.T) {
	h := newHarness(t, &fakeScanner{err: errors.New("gamma timeout")})

	opp := domain.Opportunity{
		Strategy:    domain.StrategyDipBuy,
		Side:        domain.SideYes,
		ConditionID: "0xheld",
		Question:    "Will the measure pass?",
		Price:       0.50,
		Liquidity:   50000,
	}
	_, err := h.pool.Open(opp, 0.50, 100, 0, engNow.Add(-24*time.Hour))
	require.NoError(t, err)
	h.market.prices["0xheld"] = 0.61

	err = h.engine.Cycle(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "scan markets")

	assert.Zero(t, h.pool.OpenCount(), "take profit fires before the failed scan")
	require.Len(t, h.pool.History(), 1)
	assert.Equal(t, domain.ExitTakeProfit, h.pool.History()[0].ExitReason)

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec, "failed scans archive a summary row")
	assert.Zero(t, rec.Scanned)
	assert.Equal(t, 1, rec.Exits)

	book, err := h.archive.Markets(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, book, "no market book on a failed scan")
}

func TestCycleStrategyFilterNarrowsShortlist(t *testing.T) {
	only := domain.StrategyNearCertain
	scanner := &fakeScanner{snaps: []domain.Snapshot{
		mmSnapshot("0xmm1", "tok-m1"),
		ncSnapshot("0xnc1", "tok-n1"),
	}}
	h := newHarness(t, scanner, func(d *Deps) { d.Only = &only })

	require.NoError(t, h.engine.Cycle(context.Background()))

	assert.Zero(t, h.pool.OpenCount())

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Detected)
	assert.Equal(t, 1, rec.Ranked, "filter keeps the single strategy")

	rows, err := h.archive.LatestOpportunities("scan-test")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StrategyNearCertain, rows[0].Strategy)
}

func TestCycleCancelledContextStopsAdmissions(t *testing.T) {
	h := newHarness(t, &fakeScanner{snaps: []domain.Snapshot{mmSnapshot("0xmm1", "tok-m1")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.engine.Cycle(ctx))

	assert.Zero(t, h.pool.OpenCount(), "no entries after cancellation")

	rec, err := h.archive.Latest("scan-test")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Ranked)
	assert.Zero(t, rec.Admitted)
	assert.Zero(t, rec.Executed)
}

func TestSupervisorStopHaltsScansButNotExits(t *testing.T) {
	scanner := &fakeScanner{}
	h := newHarness(t, scanner)
	sup := NewSupervisor([]*Engine{h.engine}, zerolog.Nop())

	require.True(t, sup.Running(), "trading starts enabled")
	require.True(t, sup.Stop())
	assert.False(t, sup.Stop(), "second stop is a no-op")
	assert.False(t, sup.Running())

	require.NoError(t, sup.Scan(context.Background()))
	assert.Zero(t, scanner.calls, "stopped supervisor skips scans")

	opp := domain.Opportunity{
		Strategy:    domain.StrategyDipBuy,
		Side:        domain.SideYes,
		ConditionID: "0xheld",
		Question:    "Will the measure pass?",
		Price:       0.50,
		Liquidity:   50000,
	}
	_, err := h.pool.Open(opp, 0.50, 100, 0, engNow.Add(-time.Hour))
	require.NoError(t, err)
	h.market.prices["0xheld"] = 0.61

	sup.CheckExits(context.Background())
	assert.Zero(t, h.pool.OpenCount(), "exit management continues while stopped")

	require.True(t, sup.Start())
	assert.False(t, sup.Start(), "second start is a no-op")
	require.NoError(t, sup.Scan(context.Background()))
	assert.Equal(t, 1, scanner.calls)
}
