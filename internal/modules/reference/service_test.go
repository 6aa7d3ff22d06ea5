package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/clients/binance"
)

type fakeFeed struct {
	spots   map[string]float64
	spotErr error
	klines  map[string][]binance.Kline
	errOn   string
}

func (f *fakeFeed) SpotPrices(_ context.Context, _ []string) (map[string]float64, error) {
	if f.spotErr != nil {
		return nil, f.spotErr
	}
	return f.spots, nil
}

func (f *fakeFeed) DailyKlines(_ context.Context, symbol string, _ int) ([]binance.Kline, error) {
	if symbol == f.errOn {
		return nil, errors.New("binance: 500 internal error")
	}
	return f.klines[symbol], nil
}

func newRefService(t *testing.T, feed *fakeFeed) (*Service, *KlineStore) {
	t.Helper()
	store := newKlineStore(t)
	return NewService(feed, store, zerolog.Nop()), store
}

func TestServiceSyncArchivesTrackedSymbols(t *testing.T) {
	feed := &fakeFeed{klines: map[string][]binance.Kline{
		"BTCUSDT": {{Date: daysAgo(2), Close: 101_000}, {Date: daysAgo(1), Close: 102_000}},
		"ETHUSDT": {{Date: daysAgo(2), Close: 3_100}, {Date: daysAgo(1), Close: 3_150}},
		"SOLUSDT": {{Date: daysAgo(2), Close: 140}, {Date: daysAgo(1), Close: 145}},
	}}
	svc, store := newRefService(t, feed)

	require.NoError(t, svc.Sync(context.Background()))

	for _, symbol := range TrackedSymbols {
		closes, err := store.RecentCloses(symbol, 30, refNow)
		require.NoError(t, err)
		assert.Len(t, closes, 2, "expected %s to be archived", symbol)
	}
}

func TestServiceSyncContinuesPastFailedSymbol(t *testing.T) {
	feed := &fakeFeed{
		errOn: "ETHUSDT",
		klines: map[string][]binance.Kline{
			"BTCUSDT": {{Date: daysAgo(1), Close: 102_000}},
			"SOLUSDT": {{Date: daysAgo(1), Close: 145}},
		},
	}
	svc, store := newRefService(t, feed)

	err := svc.Sync(context.Background())
	assert.Error(t, err, "the failed symbol surfaces after the others sync")

	btc, err := store.RecentCloses("BTCUSDT", 30, refNow)
	require.NoError(t, err)
	assert.Len(t, btc, 1)
	sol, err := store.RecentCloses("SOLUSDT", 30, refNow)
	require.NoError(t, err)
	assert.Len(t, sol, 1)
}

func TestServiceSnapshotSmoothsSpotAgainstHistory(t *testing.T) {
	feed := &fakeFeed{spots: map[string]float64{"BTCUSDT": 110}}
	svc, store := newRefService(t, feed)

	require.NoError(t, store.Upsert("BTCUSDT", []Kline{
		{Date: daysAgo(4), Close: 100},
		{Date: daysAgo(3), Close: 100},
		{Date: daysAgo(2), Close: 100},
		{Date: daysAgo(1), Close: 100},
	}))

	prices, vols := svc.Snapshot(context.Background(), refNow)

	assert.InDelta(t, 102, prices["BTCUSDT"], 1e-9, "a 10% spot print is damped by four flat closes")
	_, ok := vols["BTCUSDT"]
	assert.False(t, ok, "flat closes carry no realized vol")
}

func TestServiceSnapshotComputesRealizedVol(t *testing.T) {
	feed := &fakeFeed{spots: map[string]float64{"ETHUSDT": 3_200}}
	svc, store := newRefService(t, feed)

	require.NoError(t, store.Upsert("ETHUSDT", []Kline{
		{Date: daysAgo(4), Close: 3_000},
		{Date: daysAgo(3), Close: 3_300},
		{Date: daysAgo(2), Close: 2_970},
		{Date: daysAgo(1), Close: 3_600},
	}))

	prices, vols := svc.Snapshot(context.Background(), refNow)

	assert.Greater(t, prices["ETHUSDT"], 0.0)
	assert.Greater(t, vols["ETHUSDT"], 0.0, "varied closes produce a realized vol")
}

func TestServiceSnapshotFallsBackToSpotWithoutHistory(t *testing.T) {
	feed := &fakeFeed{spots: map[string]float64{"SOLUSDT": 150}}
	svc, _ := newRefService(t, feed)

	prices, vols := svc.Snapshot(context.Background(), refNow)

	assert.InDelta(t, 150, prices["SOLUSDT"], 1e-9, "too little history to smooth, the raw spot stands")
	assert.Empty(t, vols)
}

func TestServiceSnapshotSkipsCycleOnSpotError(t *testing.T) {
	feed := &fakeFeed{spotErr: errors.New("binance: timeout")}
	svc, _ := newRefService(t, feed)

	prices, vols := svc.Snapshot(context.Background(), refNow)

	assert.Nil(t, prices)
	assert.Nil(t, vols)
}

func TestServiceSnapshotIgnoresNonPositiveSpot(t *testing.T) {
	feed := &fakeFeed{spots: map[string]float64{"BTCUSDT": 0, "ETHUSDT": 3_200}}
	svc, _ := newRefService(t, feed)

	prices, _ := svc.Snapshot(context.Background(), refNow)

	_, ok := prices["BTCUSDT"]
	assert.False(t, ok)
	assert.Contains(t, prices, "ETHUSDT")
}

func TestServicePruneDropsRowsPastRetention(t *testing.T) {
	feed := &fakeFeed{}
	svc, store := newRefService(t, feed)

	require.NoError(t, store.Upsert("BTCUSDT", []Kline{
		{Date: daysAgo(120), Close: 80_000},
		{Date: daysAgo(5), Close: 100_000},
	}))

	require.NoError(t, svc.Prune(refNow))

	closes, err := store.RecentCloses("BTCUSDT", 365, refNow)
	require.NoError(t, err)
	assert.Equal(t, []float64{100_000}, closes)
}
