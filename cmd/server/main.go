// Command server runs the opportunity engine: it wires the capital
// pools, detectors and market clients, starts the scan and exit
// schedules, and serves the HTTP control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/di"
	"github.com/aristath/foresight/internal/reliability"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/server"
	"github.com/aristath/foresight/pkg/logger"
)

// main runs the startup sequence: configuration, logging, dependency
// wiring, the price stream, the job scheduler and the HTTP API, then
// blocks until a shutdown signal arrives and unwinds in reverse order.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still reported.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().
		Str("pool_mode", cfg.PoolMode).
		Str("data_dir", cfg.DataDir).
		Msg("Starting Foresight")

	// The root context governs every background fetch. Cancelling it
	// aborts in-flight scan cycles during shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Positions restored from the ledger need their price streams back
	// before the first exit sweep. The feed records subscriptions made
	// while disconnected and replays them once the socket is up.
	if container.Stream != nil {
		resubscribeOpenPositions(container, log)
		if err := container.Stream.Start(); err != nil {
			log.Warn().Err(err).Msg("Price feed unavailable, exits fall back to REST quotes")
		}
	}

	// Background cadence: scans and exit sweeps at their configured
	// intervals, reference syncs hourly, archive pruning nightly,
	// store maintenance weekly, and backup shipping hourly when an
	// object store is configured.
	sched := scheduler.New(log)
	scanJob := scheduler.NewScanJob(ctx, container.Supervisor, log)
	exitJob := scheduler.NewExitJob(ctx, container.Supervisor, log)
	refJob := scheduler.NewReferenceSyncJob(ctx, container.Reference, log)

	mustSchedule(sched, fmt.Sprintf("@every %s", cfg.ScanInterval), scanJob, log)
	mustSchedule(sched, fmt.Sprintf("@every %s", cfg.ExitInterval), exitJob, log)
	mustSchedule(sched, "@every 1h", refJob, log)
	mustSchedule(sched, "0 0 3 * * *", scheduler.NewArchivePruneJob(container.Archive, cfg.HistoryRetentionDays, log), log)
	mustSchedule(sched, "0 0 4 * * 0", reliability.NewMaintenanceJob(map[string]reliability.Database{
		"cycles": container.ArchiveDB,
		"klines": container.Klines,
	}, cfg.DataDir, log), log)
	if container.Backups != nil {
		mustSchedule(sched, "@every 1h", scheduler.NewBackupJob(ctx, container.Backups, cfg.BackupRetentionDays, log), log)
	}
	sched.Start()

	srvCfg := server.Config{
		Log:        log,
		Cfg:        cfg,
		Controller: container.Supervisor,
		Pools:      container.Pools,
		Settings:   container.Settings,
		Archive:    container.Archive,
	}
	// Backups stays a nil interface when shipping is disabled so the
	// handler can report it as not configured.
	if container.Backups != nil {
		srvCfg.Backups = container.Backups
	}
	srv := server.New(srvCfg)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// First sync and scan run immediately so the engine does not idle
	// for a full interval after boot.
	go func() {
		if err := sched.RunNow(refJob); err != nil {
			log.Warn().Err(err).Msg("Initial reference sync failed")
		}
		if err := sched.RunNow(scanJob); err != nil {
			log.Warn().Err(err).Msg("Initial scan failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop admitting new cycles, abort in-flight fetches, then wait
	// for running jobs to drain before closing connections.
	container.Supervisor.Stop()
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// mustSchedule registers a job or aborts startup. A rejected schedule
// is a programming error, not a runtime condition.
func mustSchedule(sched *scheduler.Scheduler, spec string, job scheduler.Job, log zerolog.Logger) {
	if err := sched.AddJob(spec, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}

// resubscribeOpenPositions replays price feed subscriptions for
// positions that survived a restart, so the first exit sweep sees
// streaming prices instead of waiting for the next scan to subscribe.
func resubscribeOpenPositions(container *di.Container, log zerolog.Logger) {
	var tokens []string
	for _, pool := range container.Pools {
		for _, pos := range pool.Positions() {
			if pos.TokenID != "" {
				tokens = append(tokens, pos.TokenID)
			}
		}
	}
	if len(tokens) == 0 {
		return
	}
	if err := container.Stream.Subscribe(tokens...); err != nil {
		log.Warn().Err(err).Int("tokens", len(tokens)).Msg("Failed to resubscribe restored positions")
		return
	}
	log.Info().Int("tokens", len(tokens)).Msg("Resubscribed restored positions to price feed")
}
