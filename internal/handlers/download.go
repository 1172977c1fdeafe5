package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
	"snapconvert/internal/registry"
	"snapconvert/internal/streaming"
	"snapconvert/internal/workdir"
)

// DownloadResult handles GET /api/download/{id}. The result is deleted
// DownloadDeleteDelay after its bytes have all reached the client; an
// interrupted download leaves it for a retry or the sweeper.
func (h *Handlers) DownloadResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !registry.ValidID(id) {
		metrics.DownloadsTotal.WithLabelValues("invalid_id").Inc()
		writeJSONError(w, "Invalid file ID", http.StatusBadRequest)
		return
	}

	res, err := h.results.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "File not found or expired", http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to look up result %s: %v", id, err)
		writeJSONError(w, "Download failed", http.StatusInternalServerError)
		return
	}

	f, err := workdir.OpenWithRetry(res.FilePath, h.config.Retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Swept between lookup and open.
			if _, rmErr := h.results.Remove(r.Context(), id); rmErr != nil {
				logging.Warn("Failed to remove stale result %s: %v", id, rmErr)
			}
			metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
			writeJSONError(w, "File not found or expired", http.StatusNotFound)
			return
		}
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to open result %s: %v", id, err)
		writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	size := res.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	result, err := streaming.ServeDownload(r.Context(), w, f, streaming.Download{
		Name:        res.ConvertedName,
		ContentType: res.ContentType,
		Size:        size,
	}, h.config.Streaming)
	metrics.DownloadBytes.Add(float64(result.Bytes))

	if err != nil || !result.Complete {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		logging.Warn("Download of result %s interrupted after %d bytes: %v", id, result.Bytes, err)
		return
	}

	metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	h.scheduleRelease(id)
}
