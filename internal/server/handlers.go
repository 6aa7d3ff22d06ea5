package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
)

// poolPosition tags an open position with the pool that holds it.
type poolPosition struct {
	Pool string `json:"pool"`
	domain.Position
}

// poolTrade tags a closed trade with the pool that booked it.
type poolTrade struct {
	Pool string `json:"pool"`
	domain.Trade
}

type poolMetrics struct {
	Pool       string                                     `json:"pool"`
	Metrics    ledger.Metrics                             `json:"metrics"`
	Strategies map[domain.Strategy]ledger.StrategyMetrics `json:"strategies"`
}

type poolOpportunities struct {
	Pool          string                   `json:"pool"`
	Opportunities []history.OpportunityRow `json:"opportunities"`
}

// handleEngineStart resumes scanning. Exit sweeps run regardless, so this
// only gates new entries.
// POST /api/engine/start
func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	status := "already_running"
	if s.controller.Start() {
		status = "started"
		s.log.Info().Msg("Engine started via API")
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"running": s.controller.Running(),
	})
}

// handleEngineStop halts scanning and new entries. Open positions keep
// being managed until they exit.
// POST /api/engine/stop
func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	status := "already_stopped"
	if s.controller.Stop() {
		status = "stopped"
		s.log.Info().Msg("Engine stopped via API")
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"running": s.controller.Running(),
	})
}

// handleGetParams returns the current runtime parameters.
// GET /api/params
func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

// handlePatchParams applies a partial parameter update. Nil fields are left
// unchanged; the next cycle picks up the new snapshot.
// PATCH /api/params
func (s *Server) handlePatchParams(w http.ResponseWriter, r *http.Request) {
	var patch config.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.settings.Apply(patch)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info().Msg("Runtime parameters updated via API")
	s.writeJSON(w, http.StatusOK, updated)
}

// handleLedger returns a summary per capital pool.
// GET /api/ledger
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	summaries := make([]ledger.Summary, 0, len(s.pools))
	for _, pool := range s.pools {
		summaries = append(summaries, pool.Summary())
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.controller.Running(),
		"pools":   summaries,
	})
}

// handlePositions returns every open position across all pools.
// GET /api/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := make([]poolPosition, 0)
	for _, pool := range s.pools {
		for _, pos := range pool.Positions() {
			positions = append(positions, poolPosition{Pool: pool.Name(), Position: pos})
		}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

// handleHistory returns closed trades across all pools, newest first.
// GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	trades := make([]poolTrade, 0)
	for _, pool := range s.pools {
		for _, trade := range pool.History() {
			trades = append(trades, poolTrade{Pool: pool.Name(), Trade: trade})
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].ExitTime.After(trades[j].ExitTime)
	})
	if len(trades) > limit {
		trades = trades[:limit]
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleMetrics returns aggregate and per-strategy performance per pool.
// GET /api/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := make([]poolMetrics, 0, len(s.pools))
	for _, pool := range s.pools {
		metrics = append(metrics, poolMetrics{
			Pool:       pool.Name(),
			Metrics:    pool.Metrics(),
			Strategies: pool.StrategyMetrics(),
		})
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

// handleOpportunities returns the ranked opportunity set from each pool's
// most recent cycle, executed entries marked.
// GET /api/opportunities
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	result := make([]poolOpportunities, 0, len(s.pools))
	for _, pool := range s.pools {
		rows, err := s.archive.LatestOpportunities(pool.Name())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows == nil {
			rows = []history.OpportunityRow{}
		}
		result = append(result, poolOpportunities{Pool: pool.Name(), Opportunities: rows})
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCycles returns recent archived cycles, newest first. Scope to one
// pool with ?pool=.
// GET /api/cycles?pool=&limit=N
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	pool := r.URL.Query().Get("pool")
	if pool != "" && !s.knownPool(pool) {
		s.writeError(w, http.StatusNotFound, "Unknown pool: "+pool)
		return
	}

	records, err := s.archive.Recent(pool, queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.CycleRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleCycleDetail returns one archived cycle with its opportunity set and
// the market book the scanner saw.
// GET /api/cycles/{cycleID}
func (s *Server) handleCycleDetail(w http.ResponseWriter, r *http.Request) {
	cycleID, err := strconv.ParseInt(chi.URLParam(r, "cycleID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	record, err := s.archive.Cycle(cycleID)
	if err != nil {
		if errors.Is(err, history.ErrCycleNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opps, err := s.archive.Opportunities(cycleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// nil book means the cycle was archived summary-only
	book, err := s.archive.Markets(cycleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":         record,
		"opportunities": opps,
		"markets":       book,
	})
}

// handleBackups lists shipped backup bundles, newest first.
// GET /api/backups
func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, http.StatusNotFound, "Backups are not configured")
		return
	}

	backups, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, backups)
}

func (s *Server) knownPool(name string) bool {
	for _, pool := range s.pools {
		if pool.Name() == name {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
