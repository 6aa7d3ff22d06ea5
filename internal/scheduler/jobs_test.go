package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingTrader struct {
	started chan struct{}
	release chan struct{}
	scans   atomic.Int32
	exits   atomic.Int32
	scanErr error
}

func (f *blockingTrader) Scan(context.Context) error {
	f.scans.Add(1)
	if f.started != nil {
		close(f.started)
		f.started = nil
		<-f.release
	}
	return f.scanErr
}

func (f *blockingTrader) CheckExits(context.Context) {
	f.exits.Add(1)
}

type recordingSyncer struct {
	calls   []string
	syncErr error
}

func (f *recordingSyncer) Sync(context.Context) error {
	f.calls = append(f.calls, "sync")
	return f.syncErr
}

func (f *recordingSyncer) Prune(time.Time) error {
	f.calls = append(f.calls, "prune")
	return nil
}

type recordingShipper struct {
	calls     []string
	retention int
	uploadErr error
}

func (f *recordingShipper) CreateAndUpload(context.Context) error {
	f.calls = append(f.calls, "upload")
	return f.uploadErr
}

func (f *recordingShipper) Rotate(_ context.Context, retentionDays int) error {
	f.calls = append(f.calls, "rotate")
	f.retention = retentionDays
	return nil
}

type capturingPruner struct {
	olderThan time.Time
	pruned    int64
	err       error
}

func (f *capturingPruner) Prune(olderThan time.Time) (int64, error) {
	f.olderThan = olderThan
	return f.pruned, f.err
}

func TestScanJobSkipsTickWhileRunning(t *testing.T) {
	trader := &blockingTrader{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	job := NewScanJob(context.Background(), trader, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- job.Run() }()
	<-trader.started

	require.NoError(t, job.Run(), "overlapping tick is skipped, not queued")
	assert.Equal(t, int32(1), trader.scans.Load())

	close(trader.release)
	require.NoError(t, <-done)

	require.NoError(t, job.Run(), "next tick runs once the scan is free")
	assert.Equal(t, int32(2), trader.scans.Load())
}

func TestScanJobPropagatesScanError(t *testing.T) {
	trader := &blockingTrader{scanErr: errors.New("feed down")}
	job := NewScanJob(context.Background(), trader, zerolog.Nop())

	assert.ErrorContains(t, job.Run(), "feed down")
}

func TestExitJobSweepsPositions(t *testing.T) {
	trader := &blockingTrader{}
	job := NewExitJob(context.Background(), trader, zerolog.Nop())

	require.NoError(t, job.Run())
	require.NoError(t, job.Run())
	assert.Equal(t, int32(2), trader.exits.Load())
}

func TestReferenceSyncJobSyncsThenPrunes(t *testing.T) {
	ref := &recordingSyncer{}
	job := NewReferenceSyncJob(context.Background(), ref, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"sync", "prune"}, ref.calls)
}

func TestReferenceSyncJobSkipsPruneOnSyncFailure(t *testing.T) {
	ref := &recordingSyncer{syncErr: errors.New("exchange down")}
	job := NewReferenceSyncJob(context.Background(), ref, zerolog.Nop())

	require.Error(t, job.Run())
	assert.Equal(t, []string{"sync"}, ref.calls)
}

func TestBackupJobUploadsThenRotates(t *testing.T) {
	shipper := &recordingShipper{}
	job := NewBackupJob(context.Background(), shipper, 30, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"upload", "rotate"}, shipper.calls)
	assert.Equal(t, 30, shipper.retention)
}

func TestBackupJobSkipsRotateOnUploadFailure(t *testing.T) {
	shipper := &recordingShipper{uploadErr: errors.New("bucket unreachable")}
	job := NewBackupJob(context.Background(), shipper, 30, zerolog.Nop())

	require.Error(t, job.Run())
	assert.Equal(t, []string{"upload"}, shipper.calls)
}

func TestArchivePruneJobAppliesRetentionWindow(t *testing.T) {
	pruner := &capturingPruner{pruned: 4}
	job := NewArchivePruneJob(pruner, 90, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -90), pruner.olderThan, time.Minute)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := NewArchivePruneJob(&capturingPruner{}, 90, zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", job))
	assert.NoError(t, s.AddJob("@every 30s", job))
}
