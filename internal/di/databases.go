package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/modules/reference"
)

// InitializeDatabases opens the SQLite stores and applies their schemas.
//
// cycles.db holds the cycle archive on the durable profile. klines.db holds
// reference daily closes; it is rebuilt from the feed's backfill window, so
// it stays out of backups.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	archiveDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cycles.db"),
		Profile: database.ProfileArchive,
		Name:    "cycles",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cycle archive database: %w", err)
	}
	container.ArchiveDB = archiveDB

	klines, err := reference.OpenKlineStore(filepath.Join(cfg.DataDir, "klines.db"), log)
	if err != nil {
		archiveDB.Close()
		return nil, fmt.Errorf("failed to initialize kline store: %w", err)
	}
	container.Klines = klines

	return container, nil
}
