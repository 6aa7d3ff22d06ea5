// Package history archives completed decision cycles: one summary row per
// cycle, the ranked opportunity set it produced, and the scanned market book
// as a compact blob. The archive is a reporting and backtesting surface; the
// engine writes it after the fact and never reads it back into a decision.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	scanned INTEGER NOT NULL DEFAULT 0,
	detected INTEGER NOT NULL DEFAULT 0,
	ranked INTEGER NOT NULL DEFAULT 0,
	admitted INTEGER NOT NULL DEFAULT 0,
	executed INTEGER NOT NULL DEFAULT 0,
	exits INTEGER NOT NULL DEFAULT 0,
	balance REAL NOT NULL DEFAULT 0,
	exposure REAL NOT NULL DEFAULT 0,
	positions INTEGER NOT NULL DEFAULT 0,
	book BLOB
);
CREATE INDEX IF NOT EXISTS idx_cycles_pool_started ON cycles(pool, started_at);

CREATE TABLE IF NOT EXISTS cycle_opportunities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
	strategy TEXT NOT NULL,
	condition_id TEXT NOT NULL,
	question TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	annualized REAL NOT NULL,
	confidence REAL NOT NULL,
	executed INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycle_opps_cycle ON cycle_opportunities(cycle_id);
`

// ErrCycleNotFound is returned when a cycle ID has no archived row.
var ErrCycleNotFound = errors.New("cycle not archived")

// CycleStats summarizes one decision cycle as it moved through the pipeline
// stages, plus the pool state at the end of it.
type CycleStats struct {
	Pool      string        `json:"pool"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	Scanned   int           `json:"scanned"`
	Detected  int           `json:"detected"`
	Ranked    int           `json:"ranked"`
	Admitted  int           `json:"admitted"`
	Executed  int           `json:"executed"`
	Exits     int           `json:"exits"`
	Balance   float64       `json:"balance"`
	Exposure  float64       `json:"exposure"`
	Positions int           `json:"positions"`
}

// CycleRecord is an archived cycle row.
type CycleRecord struct {
	ID int64 `json:"id"`
	CycleStats
	DurationMs int64 `json:"duration_ms"`
}

// MarketBook is the archived market state for one cycle: every snapshot the
// scanner returned and the reference prices in effect when it ran.
type MarketBook struct {
	Reference map[string]float64 `msgpack:"ref,omitempty" json:"reference,omitempty"`
	Markets   []domain.Snapshot  `msgpack:"mkts" json:"markets"`
}

// OpportunityRow is one ranked opportunity as archived with its cycle.
// Executed marks the ones that became positions.
type OpportunityRow struct {
	CycleID     int64           `json:"cycle_id"`
	Strategy    domain.Strategy `json:"strategy"`
	ConditionID string          `json:"condition_id"`
	Question    string          `json:"question"`
	Side        domain.Side     `json:"side"`
	Price       float64         `json:"price"`
	Annualized  float64         `json:"annualized_return"`
	Confidence  float64         `json:"confidence"`
	Executed    bool            `json:"executed"`
	Reason      string          `json:"reason"`
}

// Archive is the SQLite-backed cycle archive.
type Archive struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewArchive applies the schema and returns the archive over the given
// database handle.
func NewArchive(db *database.DB, log zerolog.Logger) (*Archive, error) {
	if err := db.ApplySchema(schema); err != nil {
		return nil, fmt.Errorf("failed to apply cycle archive schema: %w", err)
	}
	return &Archive{
		db:  db.Conn(),
		log: log.With().Str("component", "history").Logger(),
	}, nil
}

// Record archives one completed cycle with its opportunity set and market
// book. A nil book (exit-only pass, failed scan) archives the summary row
// without a blob. Returns the new cycle id.
func (a *Archive) Record(stats CycleStats, book *MarketBook, opps []OpportunityRow) (int64, error) {
	var blob []byte
	if book != nil {
		var err error
		blob, err = msgpack.Marshal(book)
		if err != nil {
			return 0, fmt.Errorf("failed to encode market book: %w", err)
		}
	}

	var cycleID int64
	err := database.WithTransaction(a.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO cycles (
				pool, started_at, duration_ms, scanned, detected, ranked,
				admitted, executed, exits, balance, exposure, positions, book
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			stats.Pool,
			stats.StartedAt.Unix(),
			stats.Duration.Milliseconds(),
			stats.Scanned,
			stats.Detected,
			stats.Ranked,
			stats.Admitted,
			stats.Executed,
			stats.Exits,
			stats.Balance,
			stats.Exposure,
			stats.Positions,
			blob,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cycle: %w", err)
		}
		cycleID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read cycle id: %w", err)
		}

		if len(opps) == 0 {
			return nil
		}
		stmt, err := tx.Prepare(`
			INSERT INTO cycle_opportunities (
				cycle_id, strategy, condition_id, question, side,
				price, annualized, confidence, executed, reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare opportunity insert: %w", err)
		}
		defer stmt.Close()

		for _, opp := range opps {
			if _, err := stmt.Exec(
				cycleID,
				opp.Strategy.String(),
				opp.ConditionID,
				opp.Question,
				opp.Side.String(),
				opp.Price,
				opp.Annualized,
				opp.Confidence,
				opp.Executed,
				opp.Reason,
			); err != nil {
				return fmt.Errorf("failed to insert opportunity %s: %w", opp.ConditionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	a.log.Debug().
		Int64("cycle_id", cycleID).
		Str("pool", stats.Pool).
		Int("opportunities", len(opps)).
		Msg("cycle archived")
	return cycleID, nil
}

const cycleCols = `id, pool, started_at, duration_ms, scanned, detected, ranked,
	admitted, executed, exits, balance, exposure, positions`

// Latest returns the most recent archived cycle, scoped to a pool when the
// name is non-empty. Returns nil when the archive is empty.
func (a *Archive) Latest(pool string) (*CycleRecord, error) {
	query := `SELECT ` + cycleCols + ` FROM cycles`
	var args []any
	if pool != "" {
		query += ` WHERE pool = ?`
		args = append(args, pool)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	rec, err := scanCycle(a.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest cycle: %w", err)
	}
	return rec, nil
}

// Cycle returns a single archived cycle by ID.
func (a *Archive) Cycle(cycleID int64) (*CycleRecord, error) {
	query := `SELECT ` + cycleCols + ` FROM cycles WHERE id = ?`
	rec, err := scanCycle(a.db.QueryRow(query, cycleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %d: %w", cycleID, ErrCycleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit archived cycles, newest first, scoped to a pool
// when the name is non-empty.
func (a *Archive) Recent(pool string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + cycleCols + ` FROM cycles`
	var args []any
	if pool != "" {
		query += ` WHERE pool = ?`
		args = append(args, pool)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}
	return records, nil
}

// Opportunities returns the archived opportunity set for a cycle in ranked
// order.
func (a *Archive) Opportunities(cycleID int64) ([]OpportunityRow, error) {
	rows, err := a.db.Query(`
		SELECT cycle_id, strategy, condition_id, question, side,
			price, annualized, confidence, executed, reason
		FROM cycle_opportunities
		WHERE cycle_id = ?
		ORDER BY id ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []OpportunityRow
	for rows.Next() {
		var opp OpportunityRow
		var strategy, side string
		if err := rows.Scan(
			&opp.CycleID, &strategy, &opp.ConditionID, &opp.Question, &side,
			&opp.Price, &opp.Annualized, &opp.Confidence, &opp.Executed, &opp.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		if err := opp.Strategy.UnmarshalText([]byte(strategy)); err != nil {
			return nil, fmt.Errorf("corrupt strategy in archive: %w", err)
		}
		if err := opp.Side.UnmarshalText([]byte(side)); err != nil {
			return nil, fmt.Errorf("corrupt side in archive: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}
	return opps, nil
}

// LatestOpportunities returns the opportunity set of the most recent cycle,
// or nil when the archive is empty.
func (a *Archive) LatestOpportunities(pool string) ([]OpportunityRow, error) {
	latest, err := a.Latest(pool)
	if err != nil || latest == nil {
		return nil, err
	}
	return a.Opportunities(latest.ID)
}

// Markets decodes the archived market book for a cycle. Returns nil when
// the cycle carried no blob.
func (a *Archive) Markets(cycleID int64) (*MarketBook, error) {
	var blob []byte
	err := a.db.QueryRow(`SELECT book FROM cycles WHERE id = ?`, cycleID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %d: %w", cycleID, ErrCycleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query market book: %w", err)
	}
	if len(blob) == 0 {
		return nil, nil
	}

	var book MarketBook
	if err := msgpack.Unmarshal(blob, &book); err != nil {
		return nil, fmt.Errorf("failed to decode market book: %w", err)
	}
	return &book, nil
}

// Prune deletes cycles started before the cutoff; their opportunity rows
// cascade. Returns the number of cycles removed.
func (a *Archive) Prune(olderThan time.Time) (int64, error) {
	result, err := a.db.Exec(`DELETE FROM cycles WHERE started_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycle archive: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		a.log.Info().
			Int64("cycles_deleted", n).
			Time("older_than", olderThan).
			Msg("pruned cycle archive")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*CycleRecord, error) {
	var (
		rec       CycleRecord
		startedAt int64
	)
	if err := row.Scan(
		&rec.ID, &rec.Pool, &startedAt, &rec.DurationMs, &rec.Scanned,
		&rec.Detected, &rec.Ranked, &rec.Admitted, &rec.Executed, &rec.Exits,
		&rec.Balance, &rec.Exposure, &rec.Positions,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan cycle: %w", err)
	}
	rec.StartedAt = time.Unix(startedAt, 0).UTC()
	rec.Duration = time.Duration(rec.DurationMs) * time.Millisecond
	return &rec, nil
}
