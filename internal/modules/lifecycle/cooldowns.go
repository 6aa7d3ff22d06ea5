package lifecycle

import (
	"sync"
	"time"
)

// Cooldowns is the mean-reversion arena: last exit time and lifetime entry
// count per market. Reverting markets that keep not reverting would
// otherwise be re-entered every cycle until the capital is gone. The
// manager records exits; the detector holds a read-only view.
type Cooldowns struct {
	mu       sync.RWMutex
	window   time.Duration
	lastExit map[string]time.Time
	entries  map[string]int
}

// NewCooldowns creates an empty arena with the given re-entry window.
func NewCooldowns(window time.Duration) *Cooldowns {
	return &Cooldowns{
		window:   window,
		lastExit: make(map[string]time.Time),
		entries:  make(map[string]int),
	}
}

// OnCooldown reports whether the market exited within the window.
func (c *Cooldowns) OnCooldown(conditionID string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exit, ok := c.lastExit[conditionID]
	return ok && now.Sub(exit) < c.window
}

// EntryCount returns how many times the market has been entered.
func (c *Cooldowns) EntryCount(conditionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[conditionID]
}

// RecordExit stamps the exit time and bumps the entry counter. Called on
// every close of a mean-reversion position, whatever the reason.
func (c *Cooldowns) RecordExit(conditionID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastExit[conditionID] = now
	c.entries[conditionID]++
}
