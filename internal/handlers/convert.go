package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"snapconvert/internal/dispatcher"
	"snapconvert/internal/logging"
	"snapconvert/internal/middleware"
)

const (
	// multipartMemory is the part of an upload kept in memory; the rest
	// spills to temporary files owned by the multipart reader.
	multipartMemory = 32 << 20
	// formOverhead allows for boundaries and text fields on top of file data.
	formOverhead = 1 << 20
)

// ConvertFiles handles POST /api/convert. The multipart form carries one
// or more "files" parts, a "targetFormat" field and an optional "merge" flag.
func (h *Handlers) ConvertFiles(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}

	limit := int64(h.config.MaxFiles)*h.config.MaxFileSize + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "File too large", http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds %d files of %dMB", h.config.MaxFiles, h.config.MaxFileSize/(1024*1024)))
			return
		}
		writeJSONError(w, "Invalid upload", http.StatusBadRequest, err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Warn("Failed to remove multipart temp files: %v", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) > h.config.MaxFiles {
		writeJSONError(w, "Too many files", http.StatusBadRequest,
			fmt.Sprintf("maximum is %d files per request", h.config.MaxFiles))
		return
	}

	files := make([]dispatcher.File, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readUpload(fh)
		if err != nil {
			logging.Error("Failed to read upload %s: %v", sanitizeName(fh.Filename), err)
			writeJSONError(w, "Failed to read upload", http.StatusBadRequest, fh.Filename)
			return
		}
		files = append(files, dispatcher.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	merge, _ := strconv.ParseBool(r.FormValue("merge"))
	req := dispatcher.Request{
		Files:  files,
		Target: r.FormValue("targetFormat"),
		Merge:  merge,
	}

	batch, err := h.converter.HandleBatch(r.Context(), req)
	switch {
	case errors.Is(err, dispatcher.ErrNoFiles):
		writeJSONError(w, "No files provided", http.StatusBadRequest)
		return
	case errors.Is(err, dispatcher.ErrNoTarget):
		writeJSONError(w, "Target format is required", http.StatusBadRequest)
		return
	case errors.Is(err, dispatcher.ErrMergeTarget):
		writeJSONError(w, "Validation failed", http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.Error("Conversion batch failed: %v", err)
		writeJSONError(w, "Conversion failed", http.StatusInternalServerError)
		return
	}

	logging.Info("Converted %d of %d files to %s", batch.Converted, len(files), sanitizeName(req.Target))
	writeJSONStatus(w, http.StatusOK, batch)
}

// admit waits on the admission gate before the upload is read.
func (h *Handlers) admit(w http.ResponseWriter, r *http.Request) bool {
	if h.config.Admission == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.config.AdmissionWait)
	defer cancel()

	if err := h.config.Admission.Wait(ctx); err != nil {
		logging.Warn("Conversion request from %s not admitted: %v", middleware.ClientIP(r), err)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.config.AdmissionWait.Seconds())))
		writeJSONError(w, "Server busy, please retry", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// readUpload reads at most MaxFileSize+1 bytes so oversize files are
// detected without buffering them whole.
func (h *Handlers) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	limit := fh.Size
	if h.config.MaxFileSize > 0 && limit > h.config.MaxFileSize {
		limit = h.config.MaxFileSize + 1
	}
	return io.ReadAll(io.LimitReader(f, limit))
}

// sanitizeName strips line breaks from client-supplied values before logging.
func sanitizeName(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
