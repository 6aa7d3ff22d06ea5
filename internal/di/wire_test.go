package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
)

var diNow = time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:        t.TempDir(),
		GammaBaseURL:   "http://gamma.test",
		BinanceBaseURL: "http://binance.test",
		PoolMode:       "combined",
		InitialBalance: 1000,
		Engine:         config.DefaultParams(),
	}
}

func TestWireCombinedModeBuildsOnePool(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.Len(t, container.Pools, 1)
	require.Len(t, container.Stores, 1)
	require.Len(t, container.Engines, 1)
	assert.Equal(t, "combined", container.Pools[0].Name())
	assert.InDelta(t, 1000, container.Pools[0].Balance(), 1e-9)

	assert.NotNil(t, container.Supervisor)
	assert.True(t, container.Supervisor.Running(), "supervisor starts running")
	assert.NotNil(t, container.Archive)
	assert.NotNil(t, container.Reference)
	assert.Nil(t, container.Sentiment, "no sentiment URL means no screen")
	assert.Nil(t, container.Stream, "websocket feed is off by default")
	assert.Nil(t, container.Backups, "backups are off by default")

	assert.FileExists(t, filepath.Join(cfg.DataDir, "cycles.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "klines.db"))
}

func TestWireIsolatedModeBuildsPoolPerStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.PoolMode = "isolated"

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.Len(t, container.Pools, len(domain.Strategies()))
	require.Len(t, container.Engines, len(domain.Strategies()))

	names := make(map[string]bool, len(container.Pools))
	for _, pool := range container.Pools {
		names[pool.Name()] = true
		assert.InDelta(t, 1000, pool.Balance(), 1e-9, "each pool gets the same seed")
	}
	assert.True(t, names["dip_buy"])
	assert.True(t, names["market_maker"])
	assert.True(t, names["dual_side_arb"])
}

func TestWireStrategyFilterNarrowsToOnePool(t *testing.T) {
	cfg := testConfig(t)
	cfg.PoolMode = "isolated"
	cfg.StrategyFilter = "DIP_BUY"

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.Len(t, container.Pools, 1)
	assert.Equal(t, "dip_buy", container.Pools[0].Name())
}

func TestWireRejectsUnknownStrategyFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrategyFilter = "MARTINGALE"

	_, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRATEGY_FILTER")
}

func TestWireRestoresLedgerAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	pool := container.Pools[0]
	_, err = pool.Open(domain.Opportunity{
		Strategy:    domain.StrategyDipBuy,
		Side:        domain.SideYes,
		ConditionID: "cond-restart",
		Question:    "Will the levy pass?",
		Price:       0.50,
		Liquidity:   50000,
		Confidence:  0.8,
	}, 0.50, 100, 0, diNow)
	require.NoError(t, err, "position should open")
	require.NoError(t, container.Stores[0].Save(pool), "ledger should persist")
	container.Close()

	restarted, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer restarted.Close()

	restored := restarted.Pools[0]
	assert.InDelta(t, 900, restored.Balance(), 1e-9, "balance should survive restart")
	assert.Equal(t, 1, restored.OpenCount())
	assert.True(t, restored.Has("cond-restart"))
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close()

	assert.NotNil(t, container.ArchiveDB)
	assert.NotNil(t, container.Klines)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cycles.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "klines.db"))
}
