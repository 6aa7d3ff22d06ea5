// Package engine drives the trade loop for one capital pool. A cycle
// checks exits first so freed capital is available, scans the market
// feed, runs the detector suite over the snapshots, ranks the candidates,
// then admits, sizes and executes entries against the venue under a
// per-cycle budget. Every pass is archived for the API and post-run
// analysis; archiving failures never fail the cycle.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/clients/executor"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/admit"
	"github.com/aristath/foresight/internal/modules/detect"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/internal/modules/lifecycle"
	"github.com/aristath/foresight/internal/modules/rank"
	"github.com/aristath/foresight/internal/modules/sizing"
)

// maxEntriesPerCycle caps new positions per scan pass. Entries pause the
// cycle between fills, so the cap also bounds cycle duration.
const maxEntriesPerCycle = 3

// Scanner supplies tradeable market snapshots.
type Scanner interface {
	ActiveMarkets(ctx context.Context, minLiquidity float64) ([]domain.Snapshot, error)
}

// ReferenceFeed supplies exchange spot prices and realized vols for the
// cross-reference detector. Empty maps disable it for the cycle.
type ReferenceFeed interface {
	Snapshot(ctx context.Context, now time.Time) (map[string]float64, map[string]float64)
}

// Subscriber registers CLOB tokens with the real-time price stream.
type Subscriber interface {
	Subscribe(tokenIDs ...string) error
}

// Deps bundles everything one pool engine needs. Reference, Archive and
// Stream are optional; Only restricts the engine to a single strategy.
type Deps struct {
	Pool      *ledger.Pool
	Store     *ledger.Store
	Scanner   Scanner
	Reference ReferenceFeed
	Registry  *detect.Registry
	Ranker    *rank.Ranker
	Filter    *admit.Filter
	Sizer     *sizing.Model
	Venue     executor.Venue
	Exits     *lifecycle.Manager
	Archive   *history.Archive
	Settings  *config.Settings
	Stream    Subscriber
	Only      *domain.Strategy
}

// Engine runs scan cycles for one pool.
type Engine struct {
	pool      *ledger.Pool
	store     *ledger.Store
	scanner   Scanner
	reference ReferenceFeed
	registry  *detect.Registry
	ranker    *rank.Ranker
	filter    *admit.Filter
	sizer     *sizing.Model
	venue     executor.Venue
	exits     *lifecycle.Manager
	archive   *history.Archive
	settings  *config.Settings
	stream    Subscriber
	only      *domain.Strategy

	pause time.Duration
	clock func() time.Time
	log   zerolog.Logger
}

func New(deps Deps, log zerolog.Logger) *Engine {
	return &Engine{
		pool:      deps.Pool,
		store:     deps.Store,
		scanner:   deps.Scanner,
		reference: deps.Reference,
		registry:  deps.Registry,
		ranker:    deps.Ranker,
		filter:    deps.Filter,
		sizer:     deps.Sizer,
		venue:     deps.Venue,
		exits:     deps.Exits,
		archive:   deps.Archive,
		settings:  deps.Settings,
		stream:    deps.Stream,
		only:      deps.Only,
		pause:     time.Second,
		clock:     time.Now,
		log: log.With().
			Str("component", "engine").
			Str("pool", deps.Pool.Name()).
			Logger(),
	}
}

// Pool exposes the engine's ledger for the API layer.
func (e *Engine) Pool() *ledger.Pool { return e.pool }

// Exits exposes the lifecycle manager for the API layer.
func (e *Engine) Exits() *lifecycle.Manager { return e.exits }

// Cycle runs one full scan pass. A scan failure skips the pass but still
// archives a summary row; exits have already run by then.
func (e *Engine) Cycle(ctx context.Context) error {
	now := e.clock()
	wall := time.Now()
	params := e.settings.Snapshot()

	stats := history.CycleStats{Pool: e.pool.Name(), StartedAt: now}

	// Exits first: freed capital and cleared quota slots are usable by
	// this cycle's admissions.
	before := len(e.pool.History())
	e.exits.CheckExits(ctx, params, now)
	stats.Exits = len(e.pool.History()) - before

	snaps, err := e.scanner.ActiveMarkets(ctx, params.MinLiquidity)
	if err != nil {
		e.log.Warn().Err(err).Msg("Market scan failed, skipping cycle")
		e.finish(&stats, wall)
		e.archiveCycle(&stats, nil, nil)
		return fmt.Errorf("scan markets: %w", err)
	}
	stats.Scanned = len(snaps)

	dctx := detect.Context{Now: now}
	if e.reference != nil {
		dctx.RefPrices, dctx.RefVols = e.reference.Snapshot(ctx, now)
	}
	if cds := e.exits.Cooldowns(); cds != nil {
		dctx.Cooldowns = cds
	}

	candidates := e.registry.Detect(snaps, params, dctx)
	stats.Detected = len(candidates)

	ranked := e.ranker.Rank(candidates, params, e.only)
	stats.Ranked = len(ranked)

	executed := e.executeRanked(ctx, ranked, params, now, &stats)

	e.finish(&stats, wall)
	e.archiveCycle(&stats, &history.MarketBook{Reference: dctx.RefPrices, Markets: snaps}, opportunityRows(ranked, executed))

	e.log.Info().
		Int("scanned", stats.Scanned).
		Int("detected", stats.Detected).
		Int("ranked", stats.Ranked).
		Int("executed", stats.Executed).
		Int("exits", stats.Exits).
		Int("positions", stats.Positions).
		Float64("balance", stats.Balance).
		Dur("took", stats.Duration).
		Msg("Cycle complete")
	return nil
}

// CheckExits runs one exit sweep outside the scan cycle. The fast exit
// job calls it between scans so stream-priced take-profits and stops
// fire without waiting for the next full pass.
func (e *Engine) CheckExits(ctx context.Context) {
	e.exits.CheckExits(ctx, e.settings.Snapshot(), e.clock())
}

// executeRanked walks the ranked list and opens positions until the entry
// budget is spent. Spread-capture and dual-side candidates go first: they
// deploy and recycle capital fast, so they claim the budget before the
// hold strategies. A cancelled context stops admissions; positions
// already opened stay open.
func (e *Engine) executeRanked(ctx context.Context, ranked []domain.Opportunity, params config.Params, now time.Time, stats *history.CycleStats) map[string]bool {
	executed := make(map[string]bool, maxEntriesPerCycle)
	if len(ranked) == 0 {
		return executed
	}

	queue := make([]domain.Opportunity, 0, len(ranked))
	for _, opp := range ranked {
		if activeStrategy(opp.Strategy) {
			queue = append(queue, opp)
		}
	}
	for _, opp := range ranked {
		if !activeStrategy(opp.Strategy) {
			queue = append(queue, opp)
		}
	}

	for _, opp := range queue {
		if len(executed) >= maxEntriesPerCycle {
			break
		}
		if ctx.Err() != nil {
			break
		}

		ok, reason := e.filter.Admit(ctx, opp, params, now)
		if !ok {
			e.log.Debug().
				Str("strategy", opp.Strategy.String()).
				Str("market", opp.ConditionID).
				Str("reason", reason).
				Msg("Candidate rejected")
			continue
		}
		stats.Admitted++

		rec := e.sizer.Recommend(opp, opp.Category, e.pool.Balance(), params)
		if rec == nil {
			continue
		}

		if err := e.execute(ctx, opp, rec, params, now); err != nil {
			e.log.Warn().Err(err).
				Str("strategy", opp.Strategy.String()).
				Str("market", opp.ConditionID).
				Msg("Entry failed")
			continue
		}
		executed[entryKey(opp)] = true
		stats.Executed++
		e.sleep(ctx)
	}
	return executed
}

// execute fills one sized candidate and books it into the pool.
func (e *Engine) execute(ctx context.Context, opp domain.Opportunity, rec *sizing.Recommendation, params config.Params, now time.Time) error {
	fill, err := e.venue.Buy(ctx, entryOrder(opp, rec, params))
	if err != nil {
		return fmt.Errorf("buy %s: %w", opp.ConditionID, err)
	}

	pos, err := e.pool.Open(opp, fill.Price, fill.Amount, fill.FeePct, now)
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}

	if err := e.store.Save(e.pool); err != nil {
		e.log.Warn().Err(err).Msg("Ledger save failed")
	}
	if e.stream != nil && pos.TokenID != "" {
		if err := e.stream.Subscribe(pos.TokenID); err != nil {
			e.log.Warn().Err(err).Str("token", pos.TokenID).Msg("Stream subscribe failed")
		}
	}

	e.log.Info().
		Str("strategy", opp.Strategy.String()).
		Str("side", opp.Side.String()).
		Str("market", opp.ConditionID).
		Float64("price", fill.Price).
		Float64("amount", fill.Amount).
		Str("risk", rec.RiskLevel).
		Msg("Position opened")
	return nil
}

// entryOrder shapes the venue order for one sized candidate. Spread
// capture posts at its synthetic bid, marked up by the configured slip
// for not resting at the touch; everything else lifts the quote as a
// taker. Dual-side pairs carry their combined cost as the price and the
// venue fills the pair at quote.
func entryOrder(opp domain.Opportunity, rec *sizing.Recommendation, params config.Params) executor.Order {
	order := executor.Order{
		ConditionID: opp.ConditionID,
		Question:    opp.Question,
		Side:        opp.Side,
		Price:       opp.Price,
		Amount:      rec.Amount,
		Liquidity:   opp.Liquidity,
	}
	if opp.Strategy == domain.StrategyMarketMaker {
		order.Price = opp.MMBid * (1 + params.MMSlippageBps/10000)
		order.PostOnly = true
	}
	return order
}

// activeStrategy marks the fast-turnover families that get first claim
// on the entry budget.
func activeStrategy(s domain.Strategy) bool {
	return s == domain.StrategyMarketMaker || s == domain.StrategyDualSideArb
}

// entryKey disambiguates archive rows when two strategies fire on the
// same market in one cycle.
func entryKey(opp domain.Opportunity) string {
	return opp.Strategy.String() + ":" + opp.ConditionID
}

func opportunityRows(ranked []domain.Opportunity, executed map[string]bool) []history.OpportunityRow {
	rows := make([]history.OpportunityRow, 0, len(ranked))
	for _, opp := range ranked {
		rows = append(rows, history.OpportunityRow{
			Strategy:    opp.Strategy,
			ConditionID: opp.ConditionID,
			Question:    opp.Question,
			Side:        opp.Side,
			Price:       opp.Price,
			Annualized:  opp.AnnualizedReturn,
			Confidence:  opp.Confidence,
			Executed:    executed[entryKey(opp)],
			Reason:      opp.Reason,
		})
	}
	return rows
}

func (e *Engine) finish(stats *history.CycleStats, wall time.Time) {
	stats.Balance = e.pool.Balance()
	stats.Exposure = e.pool.TotalValue() - e.pool.Balance()
	stats.Positions = e.pool.OpenCount()
	stats.Duration = time.Since(wall)
}

func (e *Engine) archiveCycle(stats *history.CycleStats, book *history.MarketBook, rows []history.OpportunityRow) {
	if e.archive == nil {
		return
	}
	if _, err := e.archive.Record(*stats, book, rows); err != nil {
		e.log.Warn().Err(err).Msg("Cycle archive failed")
	}
}

// sleep pauses between entries so a burst of fills does not hammer the
// venue. Cancelled contexts cut it short.
func (e *Engine) sleep(ctx context.Context) {
	if e.pause <= 0 {
		return
	}
	t := time.NewTimer(e.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
