package reference

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

// Kline is one archived daily close for a tracked symbol.
type Kline struct {
	Date  time.Time
	Close float64
}

const klineSchema = `
CREATE TABLE IF NOT EXISTS daily_closes (
	symbol TEXT NOT NULL,
	date INTEGER NOT NULL,
	close REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_closes_date ON daily_closes(date);
`

// KlineStore archives daily closes per tracked symbol for realized-vol
// estimation. Dates are stored as Unix seconds, truncated to midnight UTC
// so one row exists per symbol per day.
type KlineStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenKlineStore opens (creating when missing) the kline archive at path.
func OpenKlineStore(path string, log zerolog.Logger) (*KlineStore, error) {
	if !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create kline store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open kline store: %w", err)
	}
	if _, err := db.Exec(klineSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply kline schema: %w", err)
	}

	return &KlineStore{
		db:  db,
		log: log.With().Str("component", "kline_store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *KlineStore) Close() error {
	return s.db.Close()
}

// Conn exposes the underlying handle for maintenance sweeps.
func (s *KlineStore) Conn() *sql.DB {
	return s.db
}

// Upsert writes the klines for a symbol, replacing rows for days already
// archived. A refetch of the same window is idempotent.
func (s *KlineStore) Upsert(symbol string, klines []Kline) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_closes (symbol, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range klines {
		if k.Close <= 0 {
			continue
		}
		if _, err := stmt.Exec(symbol, dayUnix(k.Date), k.Close); err != nil {
			return fmt.Errorf("failed to insert close for %s: %w", k.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug().
		Str("symbol", symbol).
		Int("count", len(klines)).
		Msg("archived daily closes")
	return nil
}

// RecentCloses returns the closes for the last days, oldest first, ready
// for log-return and EMA computation.
func (s *KlineStore) RecentCloses(symbol string, days int, now time.Time) ([]float64, error) {
	if days <= 0 {
		return nil, nil
	}
	cutoff := dayUnix(now.AddDate(0, 0, -days))

	rows, err := s.db.Query(`
		SELECT close
		FROM daily_closes
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC
	`, symbol, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes: %w", err)
	}
	return closes, nil
}

// DeleteOlderThan removes archived closes before the cutoff. Used by the
// daily prune job to keep the archive bounded.
func (s *KlineStore) DeleteOlderThan(cutoff time.Time) error {
	result, err := s.db.Exec("DELETE FROM daily_closes WHERE date < ?", dayUnix(cutoff))
	if err != nil {
		return fmt.Errorf("failed to delete stale closes: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.log.Info().
			Int64("rows_deleted", n).
			Time("older_than", cutoff).
			Msg("pruned kline archive")
	}
	return nil
}

func dayUnix(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix()
}
