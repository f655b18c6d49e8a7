package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"material-search/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	storeProbeTimeout = 3 * time.Second
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Scanning bool   `json:"scanning"`
	LastScan string `json:"lastScan,omitempty"`
	Error    string `json:"error,omitempty"`

	// Library
	Images      int64 `json:"images"`
	Videos      int64 `json:"videos"`
	VideoFrames int64 `json:"videoFrames"`

	FileWatchRunning bool `json:"fileWatchRunning"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. The database is
// probed so a lost connection reports degraded with 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Scanning:     snap.Scanning,
		Images:       snap.Images,
		Videos:       snap.Videos,
		VideoFrames:  snap.VideoFrames,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if !snap.LastScan.IsZero() {
		response.LastScan = snap.LastScan.Format(time.RFC3339)
	}
	if h.watcher != nil {
		response.FileWatchRunning = h.watcher.Running()
	}

	if err := h.probeStore(r.Context()); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the database answers
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.probeStore(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}

func (h *Handlers) probeStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()
	_, err := h.store.ImageCount(ctx)
	return err
}
