package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
)

// ErrCorrupted marks an unreadable ledger with no usable staged copy.
// Callers must halt the pool rather than reinitialize over real history.
var ErrCorrupted = errors.New("ledger: corrupted state file")

// Store persists one pool to a JSON file. Writes go to a staged .tmp
// sibling first, fsync, then rename over the live file, so a crash leaves
// either the old file or the staged copy intact.
type Store struct {
	path string
	log  zerolog.Logger
}

func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "ledger_store").Str("file", filepath.Base(path)).Logger(),
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) stagedPath() string { return s.path + ".tmp" }

// Save writes the pool's current state to disk.
func (s *Store) Save(p *Pool) error {
	st := p.snapshot()
	st.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := writeFileSync(s.stagedPath(), data); err != nil {
		return fmt.Errorf("stage ledger: %w", err)
	}
	if err := os.Rename(s.stagedPath(), s.path); err != nil {
		return fmt.Errorf("finalize ledger: %w", err)
	}
	return nil
}

// Load reads the persisted pool, recovering from the staged copy when the
// live file is missing or unreadable. A missing ledger with no staged copy
// starts a fresh pool; corruption of both is returned as an error.
func (s *Store) Load(name string, initialBalance float64) (*Pool, error) {
	st, err := readState(s.path)
	if err == nil {
		s.log.Info().Float64("balance", st.Balance).Int("positions", len(st.Positions)).Msg("ledger loaded")
		return restorePool(name, st, s.log), nil
	}

	if errors.Is(err, os.ErrNotExist) {
		staged, stagedErr := readState(s.stagedPath())
		if stagedErr == nil {
			s.log.Warn().Msg("ledger missing, recovered from staged copy")
			return s.heal(name, staged)
		}
		s.log.Info().Float64("initial_balance", initialBalance).Msg("no ledger on disk, starting fresh")
		return NewPool(name, initialBalance, s.log), nil
	}

	staged, stagedErr := readState(s.stagedPath())
	if stagedErr == nil {
		s.log.Warn().Err(err).Msg("ledger corrupted, recovered from staged copy")
		return s.heal(name, staged)
	}
	return nil, fmt.Errorf("%w: %s unreadable (%v), staged copy unusable (%v)", ErrCorrupted, s.path, err, stagedErr)
}

// heal restores from a staged state and immediately rewrites the live file
// so the recovery survives the next crash.
func (s *Store) heal(name string, st state) (*Pool, error) {
	p := restorePool(name, st, s.log)
	if err := s.Save(p); err != nil {
		return nil, fmt.Errorf("rewrite recovered ledger: %w", err)
	}
	return p, nil
}

func readState(path string) (state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return state{}, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return state{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if st.InitialBalance <= 0 || st.Balance < 0 {
		return state{}, fmt.Errorf("%s: implausible balances (initial=%.2f, balance=%.2f)",
			filepath.Base(path), st.InitialBalance, st.Balance)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]domain.Position)
	}
	return st, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
