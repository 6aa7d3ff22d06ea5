package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is the /api/health payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Goroutines    int    `json:"goroutines"`
}

// SystemResponse is the /api/system payload.
type SystemResponse struct {
	CPUPct        float64 `json:"cpu_pct"`
	MemoryPct     float64 `json:"memory_pct"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	DataDirMB     float64 `json:"data_dir_mb"`
}

// SystemHandlers serve process and host health for the dashboard.
type SystemHandlers struct {
	log     zerolog.Logger
	dataDir string
	started time.Time
}

// NewSystemHandlers creates system handlers rooted at the data directory.
func NewSystemHandlers(log zerolog.Logger, dataDir string) *SystemHandlers {
	return &SystemHandlers{
		log:     log.With().Str("component", "system").Logger(),
		dataDir: dataDir,
		started: time.Now(),
	}
}

// HandleHealth reports process liveness and uptime.
// GET /api/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, HealthResponse{
		Status:        "healthy",
		Service:       "foresight",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	})
}

// HandleSystem reports host resource usage and data directory size.
// GET /api/system
func (h *SystemHandlers) HandleSystem(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct, memUsedMB := h.systemStats()

	h.writeJSON(w, SystemResponse{
		CPUPct:        cpuPct,
		MemoryPct:     memPct,
		MemoryUsedMB:  memUsedMB,
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		DataDirMB:     h.dirSizeMB(h.dataDir),
	})
}

// systemStats samples CPU over 100ms so the handler stays fast.
func (h *SystemHandlers) systemStats() (cpuPct, memPct, memUsedMB float64) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to sample CPU usage")
	} else if len(percents) > 0 {
		cpuPct = percents[0]
	}

	stat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read memory statistics")
		return cpuPct, 0, 0
	}
	return cpuPct, stat.UsedPercent, float64(stat.Used) / 1024 / 1024
}

// dirSizeMB totals the files under a directory. Unreadable entries are
// skipped.
func (h *SystemHandlers) dirSizeMB(dir string) float64 {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dir).Msg("Failed to size directory")
		return 0
	}
	return float64(total) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
