package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// ErrWriteTimeout means one chunk could not be delivered within
	// Config.WriteTimeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the request context ended before the file did.
	ErrClientGone = errors.New("client disconnected")
)

const defaultChunkSize = 256 * 1024

// Config bounds how a download is pushed to the client.
type Config struct {
	// WriteTimeout is the connection write deadline armed before every
	// chunk; 0 disables it.
	WriteTimeout time.Duration
	// ChunkSize is the read and flush unit; 0 means 256 KiB.
	ChunkSize int
}

// DefaultConfig returns limits suited to file downloads.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    defaultChunkSize,
	}
}

// copyChunks sends src to w one chunk at a time, flushing after each.
// The API server has no global write timeout; the per-chunk deadline
// bounds a client that stopped reading. Writers that cannot take
// deadlines are served without one.
func copyChunks(ctx context.Context, w http.ResponseWriter, src io.Reader, config Config) (int64, error) {
	rc := http.NewResponseController(w)
	deadlines := config.WriteTimeout > 0
	defer func() {
		if deadlines {
			_ = rc.SetWriteDeadline(time.Time{})
		}
	}()

	size := config.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	buf := make([]byte, size)

	var sent int64
	for {
		if ctx.Err() != nil {
			return sent, ErrClientGone
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if deadlines {
				err := rc.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
				if errors.Is(err, http.ErrNotSupported) {
					deadlines = false
				}
			}
			written, err := w.Write(buf[:n])
			sent += int64(written)
			if err != nil {
				return sent, writeError(ctx, err)
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return sent, writeError(ctx, err)
			}
		}

		switch {
		case readErr == io.EOF:
			return sent, nil
		case readErr != nil:
			return sent, fmt.Errorf("read download: %w", readErr)
		}
	}
}

func writeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrClientGone
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrWriteTimeout, err)
	}
	return err
}
