package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StopTracker counts recent stop-losses per market for the circuit
// breaker. It persists across restarts so a thrashing market stays locked
// out through a crash. Load failures start empty rather than blocking:
// unlike the ledger, losing this state costs at worst one bad re-entry.
type StopTracker struct {
	mu     sync.Mutex
	path   string
	window time.Duration
	stops  map[string][]time.Time
	log    zerolog.Logger
}

// NewStopTracker loads the tracker from path, starting empty when the
// file is missing or unreadable.
func NewStopTracker(path string, window time.Duration, log zerolog.Logger) *StopTracker {
	t := &StopTracker{
		path:   path,
		window: window,
		stops:  make(map[string][]time.Time),
		log:    log.With().Str("component", "stop_tracker").Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warn().Err(err).Msg("could not read stop tracker, starting empty")
		}
		return t
	}
	if err := json.Unmarshal(data, &t.stops); err != nil {
		t.log.Warn().Err(err).Msg("could not decode stop tracker, starting empty")
		t.stops = make(map[string][]time.Time)
		return t
	}
	t.log.Info().Int("markets", len(t.stops)).Msg("stop tracker loaded")
	return t
}

// Record appends a stop-loss timestamp for the market and persists.
func (t *StopTracker) Record(conditionID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops[conditionID] = append(t.stops[conditionID], now)
	if err := t.save(); err != nil {
		t.log.Warn().Err(err).Msg("could not save stop tracker")
	}
}

// RecentCount returns the number of stops inside the window, pruning
// older entries as it goes.
func (t *StopTracker) RecentCount(conditionID string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	all, ok := t.stops[conditionID]
	if !ok {
		return 0
	}
	cutoff := now.Add(-t.window)
	recent := all[:0]
	for _, ts := range all {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(t.stops, conditionID)
		return 0
	}
	t.stops[conditionID] = recent
	return len(recent)
}

func (t *StopTracker) save() error {
	data, err := json.MarshalIndent(t.stops, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stop tracker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create stop tracker directory: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("stage stop tracker: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("finalize stop tracker: %w", err)
	}
	return nil
}
