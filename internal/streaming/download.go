package streaming

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"snapconvert/internal/logging"
)

// Download describes the file being served.
type Download struct {
	Name        string
	ContentType string
	Size        int64
}

// Result reports how a download ended.
type Result struct {
	Bytes    int64
	Duration time.Duration
	// Complete is true when every byte of the file reached the client.
	Complete bool
}

// ServeDownload writes the attachment headers and copies r to w under the
// per-chunk write deadline in config.
func ServeDownload(ctx context.Context, w http.ResponseWriter, r io.Reader, d Download, config Config) (Result, error) {
	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Disposition", contentDisposition(d.Name))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	if d.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	bytes, err := copyChunks(ctx, w, r, config)
	duration := time.Since(start)

	res := Result{
		Bytes:    bytes,
		Duration: duration,
		Complete: err == nil && (d.Size < 0 || bytes == d.Size),
	}
	if err == nil && !res.Complete {
		err = fmt.Errorf("short download: sent %d of %d bytes", bytes, d.Size)
	}

	logging.Debug("Download of %s finished: %d bytes in %v (complete=%v)", d.Name, bytes, duration, res.Complete)
	return res, err
}

// contentDisposition builds an attachment header that survives
// non-ASCII names.
func contentDisposition(name string) string {
	if name == "" {
		name = "download"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return `attachment; filename="download"`
}
