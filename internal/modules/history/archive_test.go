package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
)

var histNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cycles.db"),
		Profile: database.ProfileArchive,
		Name:    "cycles",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	arc, err := NewArchive(db, zerolog.Nop())
	require.NoError(t, err)
	return arc
}

func sampleStats(pool string, startedAt time.Time) CycleStats {
	return CycleStats{
		Pool:      pool,
		StartedAt: startedAt,
		Duration:  1500 * time.Millisecond,
		Scanned:   120,
		Detected:  14,
		Ranked:    9,
		Admitted:  5,
		Executed:  3,
		Exits:     1,
		Balance:   987.50,
		Exposure:  310.25,
		Positions: 4,
	}
}

func sampleOpportunities() []OpportunityRow {
	return []OpportunityRow{
		{
			Strategy:    domain.StrategyMarketMaker,
			ConditionID: "0xmm",
			Question:    "Will the spread hold?",
			Side:        domain.SideMM,
			Price:       0.50,
			Annualized:  2.4,
			Confidence:  0.70,
			Executed:    true,
			Reason:      "spread 3.8% of mid",
		},
		{
			Strategy:    domain.StrategyNearCertain,
			ConditionID: "0xnc",
			Question:    "Will the favorite win?",
			Side:        domain.SideYes,
			Price:       0.97,
			Annualized:  0.45,
			Confidence:  0.90,
			Reason:      "ask in the resolution tail",
		},
	}
}

func TestArchiveRecordRoundTrip(t *testing.T) {
	arc := newArchive(t)

	book := &MarketBook{
		Reference: map[string]float64{"BTCUSDT": 104_000},
		Markets: []domain.Snapshot{
			{ConditionID: "0xmm", Question: "Will the spread hold?", BestBid: 0.48, BestAsk: 0.52, Liquidity: 60_000, EndDate: histNow.AddDate(0, 0, 30)},
			{ConditionID: "0xnc", Question: "Will the favorite win?", BestBid: 0.96, BestAsk: 0.97, Liquidity: 120_000},
		},
	}

	cycleID, err := arc.Record(sampleStats("combined", histNow), book, sampleOpportunities())
	require.NoError(t, err)
	assert.Greater(t, cycleID, int64(0))

	latest, err := arc.Latest("")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, cycleID, latest.ID)
	assert.Equal(t, "combined", latest.Pool)
	assert.Equal(t, histNow.Unix(), latest.StartedAt.Unix())
	assert.Equal(t, int64(1500), latest.DurationMs)
	assert.Equal(t, 120, latest.Scanned)
	assert.Equal(t, 3, latest.Executed)
	assert.InDelta(t, 987.50, latest.Balance, 1e-9)
}

func TestArchiveOpportunitiesKeepRankedOrder(t *testing.T) {
	arc := newArchive(t)

	cycleID, err := arc.Record(sampleStats("combined", histNow), nil, sampleOpportunities())
	require.NoError(t, err)

	opps, err := arc.Opportunities(cycleID)
	require.NoError(t, err)
	require.Len(t, opps, 2)

	assert.Equal(t, domain.StrategyMarketMaker, opps[0].Strategy, "rows come back in the order they were ranked")
	assert.Equal(t, domain.SideMM, opps[0].Side)
	assert.True(t, opps[0].Executed)
	assert.Equal(t, domain.StrategyNearCertain, opps[1].Strategy)
	assert.False(t, opps[1].Executed)
	assert.Equal(t, cycleID, opps[1].CycleID)
}

func TestArchiveMarketBookRoundTrip(t *testing.T) {
	arc := newArchive(t)

	endDate := histNow.AddDate(0, 0, 14)
	book := &MarketBook{
		Reference: map[string]float64{"ETHUSDT": 3_200},
		Markets: []domain.Snapshot{
			{ConditionID: "0xabc", Question: "Will Ethereum reach $4,000?", BestAsk: 0.31, Volume24h: 80_000, EndDate: endDate},
		},
	}

	cycleID, err := arc.Record(sampleStats("combined", histNow), book, nil)
	require.NoError(t, err)

	decoded, err := arc.Markets(cycleID)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.InDelta(t, 3_200, decoded.Reference["ETHUSDT"], 1e-9)
	require.Len(t, decoded.Markets, 1)
	assert.Equal(t, "0xabc", decoded.Markets[0].ConditionID)
	assert.InDelta(t, 0.31, decoded.Markets[0].BestAsk, 1e-9)
	assert.Equal(t, endDate.Unix(), decoded.Markets[0].EndDate.Unix())
}

func TestArchiveRecordWithoutBook(t *testing.T) {
	arc := newArchive(t)

	cycleID, err := arc.Record(sampleStats("combined", histNow), nil, nil)
	require.NoError(t, err)

	book, err := arc.Markets(cycleID)
	require.NoError(t, err)
	assert.Nil(t, book, "a summary-only cycle archives no blob")
}

func TestArchiveMarketsUnknownCycle(t *testing.T) {
	arc := newArchive(t)

	_, err := arc.Markets(999)
	assert.Error(t, err)
}

func TestArchiveLatestScopedToPool(t *testing.T) {
	arc := newArchive(t)

	_, err := arc.Record(sampleStats("alpha", histNow.Add(-2*time.Minute)), nil, nil)
	require.NoError(t, err)
	_, err = arc.Record(sampleStats("beta", histNow.Add(-time.Minute)), nil, nil)
	require.NoError(t, err)
	alphaID, err := arc.Record(sampleStats("alpha", histNow), nil, nil)
	require.NoError(t, err)

	latest, err := arc.Latest("alpha")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, alphaID, latest.ID)

	global, err := arc.Latest("")
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, alphaID, global.ID, "the unscoped latest is the newest row overall")
}

func TestArchiveRecentNewestFirst(t *testing.T) {
	arc := newArchive(t)

	for i := 0; i < 3; i++ {
		_, err := arc.Record(sampleStats("combined", histNow.Add(time.Duration(i)*time.Minute)), nil, nil)
		require.NoError(t, err)
	}

	recent, err := arc.Recent("", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Greater(t, recent[0].ID, recent[1].ID)
}

func TestArchiveEmptyReads(t *testing.T) {
	arc := newArchive(t)

	latest, err := arc.Latest("")
	require.NoError(t, err)
	assert.Nil(t, latest)

	opps, err := arc.LatestOpportunities("")
	require.NoError(t, err)
	assert.Nil(t, opps)
}

func TestArchivePruneCascades(t *testing.T) {
	arc := newArchive(t)

	oldID, err := arc.Record(sampleStats("combined", histNow.AddDate(0, 0, -40)), nil, sampleOpportunities())
	require.NoError(t, err)
	newID, err := arc.Record(sampleStats("combined", histNow), nil, sampleOpportunities())
	require.NoError(t, err)

	n, err := arc.Prune(histNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	latest, err := arc.Latest("")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newID, latest.ID)

	opps, err := arc.Opportunities(oldID)
	require.NoError(t, err)
	assert.Empty(t, opps, "opportunity rows cascade with their cycle")
}
