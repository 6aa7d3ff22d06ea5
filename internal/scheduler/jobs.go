package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Trader is the supervisor surface the cadence jobs drive.
type Trader interface {
	Scan(ctx context.Context) error
	CheckExits(ctx context.Context)
}

// Syncer maintains the exchange reference archive.
type Syncer interface {
	Sync(ctx context.Context) error
	Prune(now time.Time) error
}

// Shipper creates and rotates backup bundles.
type Shipper interface {
	CreateAndUpload(ctx context.Context) error
	Rotate(ctx context.Context, retentionDays int) error
}

// Pruner bounds the cycle archive.
type Pruner interface {
	Prune(olderThan time.Time) (int64, error)
}

// ScanJob drives one full scan pass across the pool engines. A pass that
// outlives its interval is not stacked; the tick is skipped instead.
type ScanJob struct {
	ctx    context.Context
	trader Trader
	busy   sync.Mutex
	log    zerolog.Logger
}

func NewScanJob(ctx context.Context, trader Trader, log zerolog.Logger) *ScanJob {
	return &ScanJob{ctx: ctx, trader: trader, log: log.With().Str("job", "scan").Logger()}
}

func (j *ScanJob) Name() string { return "scan" }

func (j *ScanJob) Run() error {
	if !j.busy.TryLock() {
		j.log.Warn().Msg("Previous scan still running, skipping tick")
		return nil
	}
	defer j.busy.Unlock()
	return j.trader.Scan(j.ctx)
}

// ExitJob sweeps open positions between scans so stream-priced exits
// fire without waiting for the next full pass. Runs even while trading
// is stopped.
type ExitJob struct {
	ctx    context.Context
	trader Trader
	busy   sync.Mutex
	log    zerolog.Logger
}

func NewExitJob(ctx context.Context, trader Trader, log zerolog.Logger) *ExitJob {
	return &ExitJob{ctx: ctx, trader: trader, log: log.With().Str("job", "exits").Logger()}
}

func (j *ExitJob) Name() string { return "exits" }

func (j *ExitJob) Run() error {
	if !j.busy.TryLock() {
		return nil
	}
	defer j.busy.Unlock()
	j.trader.CheckExits(j.ctx)
	return nil
}

// ReferenceSyncJob refreshes the exchange kline archive and prunes rows
// past its retention.
type ReferenceSyncJob struct {
	ctx context.Context
	ref Syncer
	log zerolog.Logger
}

func NewReferenceSyncJob(ctx context.Context, ref Syncer, log zerolog.Logger) *ReferenceSyncJob {
	return &ReferenceSyncJob{ctx: ctx, ref: ref, log: log.With().Str("job", "reference_sync").Logger()}
}

func (j *ReferenceSyncJob) Name() string { return "reference_sync" }

func (j *ReferenceSyncJob) Run() error {
	if err := j.ref.Sync(j.ctx); err != nil {
		return err
	}
	return j.ref.Prune(time.Now())
}

// BackupJob ships one state bundle and rotates aged bundles out.
type BackupJob struct {
	ctx       context.Context
	shipper   Shipper
	retention int
	busy      sync.Mutex
	log       zerolog.Logger
}

func NewBackupJob(ctx context.Context, shipper Shipper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		ctx:       ctx,
		shipper:   shipper,
		retention: retentionDays,
		log:       log.With().Str("job", "backup").Logger(),
	}
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run() error {
	if !j.busy.TryLock() {
		j.log.Warn().Msg("Previous backup still running, skipping tick")
		return nil
	}
	defer j.busy.Unlock()

	if err := j.shipper.CreateAndUpload(j.ctx); err != nil {
		return err
	}
	return j.shipper.Rotate(j.ctx, j.retention)
}

// ArchivePruneJob bounds the cycle archive to its retention window.
type ArchivePruneJob struct {
	archive   Pruner
	retention int
	log       zerolog.Logger
}

func NewArchivePruneJob(archive Pruner, retentionDays int, log zerolog.Logger) *ArchivePruneJob {
	return &ArchivePruneJob{
		archive:   archive,
		retention: retentionDays,
		log:       log.With().Str("job", "archive_prune").Logger(),
	}
}

func (j *ArchivePruneJob) Name() string { return "archive_prune" }

func (j *ArchivePruneJob) Run() error {
	n, err := j.archive.Prune(time.Now().AddDate(0, 0, -j.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int64("cycles", n).Msg("Cycle archive pruned")
	}
	return nil
}
