// Package di wires the application together: storage, clients, the
// per-pool trading stacks and the shared pipeline stages. The Container is
// created by Wire() and handed to the server and the scheduler jobs.
package di

import (
	"github.com/aristath/foresight/internal/clients/binance"
	"github.com/aristath/foresight/internal/clients/executor"
	"github.com/aristath/foresight/internal/clients/gamma"
	"github.com/aristath/foresight/internal/clients/marketws"
	"github.com/aristath/foresight/internal/clients/sentiment"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/modules/admit"
	"github.com/aristath/foresight/internal/modules/detect"
	"github.com/aristath/foresight/internal/modules/engine"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/internal/modules/rank"
	"github.com/aristath/foresight/internal/modules/reference"
	"github.com/aristath/foresight/internal/modules/sizing"
	"github.com/aristath/foresight/internal/reliability"
)

// Container holds every long-lived dependency.
//
// Pools, Stores and Engines are parallel slices: index i is one capital
// pool with its persistence and its decision loop. Combined mode has one
// entry; isolated mode has one per strategy.
type Container struct {
	// Storage
	ArchiveDB *database.DB         // cycle archive (summaries, shortlists, market books)
	Klines    *reference.KlineStore // daily closes for realized-vol estimation

	// External clients
	Gamma     *gamma.Client
	Binance   *binance.Client
	Sentiment *sentiment.Client   // nil when no sentiment service is configured
	Venue     executor.Venue      // paper execution
	Stream    *marketws.PriceFeed // nil unless the websocket feed is enabled

	// Shared pipeline stages
	Settings  *config.Settings
	Registry  *detect.Registry
	Ranker    *rank.Ranker
	Sizer     *sizing.Model
	Reference *reference.Service
	Archive   *history.Archive

	// Per-pool trading stacks
	Pools      []*ledger.Pool
	Stores     []*ledger.Store
	Filters    []*admit.Filter
	Engines    []*engine.Engine
	Supervisor *engine.Supervisor

	// StateFiles are the flat files registered for backup: ledger and
	// stop-tracker JSON per pool.
	StateFiles []string

	// Backups is nil when backups are disabled.
	Backups *reliability.BackupService
}

// Close releases storage handles and stops the price stream. Safe to call
// on a partially initialized container.
func (c *Container) Close() {
	if c.Stream != nil {
		_ = c.Stream.Stop()
	}
	if c.Klines != nil {
		_ = c.Klines.Close()
	}
	if c.ArchiveDB != nil {
		_ = c.ArchiveDB.Close()
	}
}
