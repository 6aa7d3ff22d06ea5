package reference

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/clients/binance"
	"github.com/aristath/foresight/pkg/formulas"
)

// TrackedSymbols are the exchange symbols the cross-reference detector
// prices against. ParseTarget maps question text onto this set.
var TrackedSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

const (
	// volWindowDays is how many archived closes feed the realized-vol
	// estimate.
	volWindowDays = 30
	// emaPeriod smooths the live spot against recent closes.
	emaPeriod = 5
	// backfillDays covers the vol window with margin on each sync.
	backfillDays = 35
	// retentionDays bounds the archive.
	retentionDays = 90
)

// SpotFeed is the exchange surface the service consumes.
type SpotFeed interface {
	SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	DailyKlines(ctx context.Context, symbol string, limit int) ([]binance.Kline, error)
}

// Service assembles the reference inputs for detection: smoothed spot
// prices and realized volatility from the kline archive.
type Service struct {
	feed  SpotFeed
	store *KlineStore
	log   zerolog.Logger
}

func NewService(feed SpotFeed, store *KlineStore, log zerolog.Logger) *Service {
	return &Service{
		feed:  feed,
		store: store,
		log:   log.With().Str("component", "reference").Logger(),
	}
}

// Sync refreshes the kline archive for every tracked symbol. A symbol
// that fails to fetch is skipped; the first error is returned after the
// rest have synced.
func (s *Service) Sync(ctx context.Context) error {
	var firstErr error
	for _, symbol := range TrackedSymbols {
		klines, err := s.feed.DailyKlines(ctx, symbol, backfillDays)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("kline fetch failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		archived := make([]Kline, 0, len(klines))
		for _, k := range klines {
			archived = append(archived, Kline{Date: k.Date, Close: k.Close})
		}
		if err := s.store.Upsert(symbol, archived); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("kline archive write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Snapshot produces the per-symbol reference prices and realized daily
// vols for one detection pass. The live spot is smoothed against recent
// closes to damp single-print noise; symbols without enough archived
// history get a price but no vol, and the detector falls back to its
// configured default. A failed spot fetch yields empty maps, which
// disables cross-reference detection for the cycle.
func (s *Service) Snapshot(ctx context.Context, now time.Time) (map[string]float64, map[string]float64) {
	spots, err := s.feed.SpotPrices(ctx, TrackedSymbols)
	if err != nil {
		s.log.Warn().Err(err).Msg("spot fetch failed, skipping cross-reference this cycle")
		return nil, nil
	}

	prices := make(map[string]float64, len(spots))
	vols := make(map[string]float64, len(spots))
	for symbol, spot := range spots {
		if spot <= 0 {
			continue
		}

		closes, err := s.store.RecentCloses(symbol, volWindowDays, now)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("close history unavailable")
			closes = nil
		}

		prices[symbol] = formulas.SmoothedClose(append(closes, spot), emaPeriod)
		if vol := formulas.RealizedDailyVol(closes); vol > 0 {
			vols[symbol] = vol
		}
	}
	return prices, vols
}

// Prune drops archive rows past retention. Run daily.
func (s *Service) Prune(now time.Time) error {
	return s.store.DeleteOlderThan(now.AddDate(0, 0, -retentionDays))
}
