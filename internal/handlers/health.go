package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"snapconvert/internal/startup"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"

	toolAvailable = "available"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	MaxFileSize string            `json:"maxFileSize"`
	MaxFiles    int               `json:"maxFiles"`
	TmpDir      string            `json:"tmpDir"`
	Tools       map[string]string `json:"tools"`
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`

	Results          int `json:"results"`
	PendingDeletions int `json:"pendingDeletions"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports service status and per-tool availability. Missing
// tools degrade the status but the endpoint still answers 200, since the
// remaining conversion routes keep working.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:           statusOK,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		MaxFileSize:      fmt.Sprintf("%dMB", h.config.MaxFileSize/(1024*1024)),
		MaxFiles:         h.config.MaxFiles,
		TmpDir:           h.config.WorkDir,
		Tools:            map[string]string{},
		Version:          startup.Version,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		Results:          h.results.Len(),
		PendingDeletions: h.PendingDeletions(),
		GoVersion:        runtime.Version(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	for name, err := range h.tools.get(ctx) {
		if err != nil {
			response.Tools[name] = err.Error()
			response.Status = statusDegraded
			continue
		}
		response.Tools[name] = toolAvailable
	}

	writeJSONStatus(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the registry answers and the work
// directory exists.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.results.Ping(ctx); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "result registry unavailable",
		})
		return
	}

	if info, err := os.Stat(h.config.WorkDir); err != nil || !info.IsDir() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "work directory unavailable",
		})
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
