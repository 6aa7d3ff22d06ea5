package reliability

import (
	"database/sql"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Database is one sqlite store under maintenance. Both the cycle
// archive and the kline store satisfy it.
type Database interface {
	Conn() *sql.DB
}

// MaintenanceJob sweeps the sqlite stores on a weekly schedule: a WAL
// checkpoint to stop journal bloat, an integrity check, a VACUUM to
// reclaim pruned pages, and a disk headroom check so a full volume is
// caught before writes start failing.
type MaintenanceJob struct {
	databases map[string]Database
	dataDir   string
	log       zerolog.Logger
}

func NewMaintenanceJob(databases map[string]Database, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the scheduler identifier.
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run executes one sweep. A failed integrity check is returned after
// the remaining stores have been swept; checkpoint and VACUUM failures
// only log, the next sweep retries them.
func (j *MaintenanceJob) Run() error {
	start := time.Now()
	j.log.Info().Msg("Starting maintenance sweep")

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	var firstErr error
	for _, name := range sortedDatabaseNames(j.databases) {
		db := j.databases[name]

		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}

		if err := verifyIntegrity(db, name); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Integrity check failed")
			if firstErr == nil {
				firstErr = err
			}
			// Do not VACUUM a damaged file.
			continue
		}

		if err := j.vacuum(db, name); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("VACUUM failed")
		}
	}

	j.log.Info().Dur("took", time.Since(start)).Msg("Maintenance sweep finished")
	return firstErr
}

// checkDiskSpace fails the sweep when the data volume is nearly full.
// Ledger saves stage a copy before renaming and need the headroom.
func (j *MaintenanceJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat data volume: %w", err)
	}

	freeGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	switch {
	case freeGB < 0.5:
		return fmt.Errorf("data volume nearly full: %.2f GB free", freeGB)
	case freeGB < 2.0:
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space check")
	}
	return nil
}

func (j *MaintenanceJob) vacuum(db Database, name string) error {
	sizeBefore := databaseSizeMB(db)
	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return err
	}

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", databaseSizeMB(db)).
		Msg("VACUUM completed")
	return nil
}

func verifyIntegrity(db Database, name string) error {
	var result string
	if err := db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%s failed integrity check: %s", name, result)
	}
	return nil
}

func databaseSizeMB(db Database) float64 {
	var pageCount, pageSize int
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}

func sortedDatabaseNames(m map[string]Database) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
