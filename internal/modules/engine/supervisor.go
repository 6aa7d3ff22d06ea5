package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Supervisor fans one scan tick out to every pool engine and carries the
// global trading switch. Stopping halts scans and new entries; exit
// sweeps keep running so open positions are still managed to their exits.
type Supervisor struct {
	engines []*Engine
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewSupervisor wraps the pool engines. Trading starts enabled.
func NewSupervisor(engines []*Engine, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		engines: engines,
		running: true,
		log:     log.With().Str("component", "supervisor").Logger(),
	}
}

// Start enables scanning. Reports false when already running.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.log.Info().Msg("Trading started")
	return true
}

// Stop disables scanning and new entries. Reports false when already
// stopped. Open positions keep being managed.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.running = false
	s.log.Info().Msg("Trading stopped, exit management continues")
	return true
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Scan runs one cycle on every engine, skipped entirely while stopped.
// All engines get their pass; the first failure is reported.
func (s *Supervisor) Scan(ctx context.Context) error {
	if !s.Running() {
		return nil
	}
	var firstErr error
	for _, e := range s.engines {
		if err := e.Cycle(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckExits sweeps every pool for exits regardless of the trading
// switch.
func (s *Supervisor) CheckExits(ctx context.Context) {
	for _, e := range s.engines {
		e.CheckExits(ctx)
	}
}

// Engines exposes the pool engines for the API layer.
func (s *Supervisor) Engines() []*Engine { return s.engines }
