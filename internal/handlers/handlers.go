package handlers

import (
	"context"
	"sync"
	"time"

	"snapconvert/internal/dispatcher"
	"snapconvert/internal/logging"
	"snapconvert/internal/registry"
	"snapconvert/internal/streaming"
	"snapconvert/internal/workdir"
)

// BatchConverter runs a conversion batch.
type BatchConverter interface {
	HandleBatch(ctx context.Context, req dispatcher.Request) (dispatcher.Batch, error)
}

// ResultStore is the part of the result registry the handlers use.
type ResultStore interface {
	Get(ctx context.Context, id string) (registry.Result, error)
	Release(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Len() int
}

// ToolChecker reports converter tool availability keyed by tool name.
type ToolChecker interface {
	Check(ctx context.Context) map[string]error
}

// AdmissionGate holds new conversions back while the server is short of
// memory. Wait returns nil once the conversion may start.
type AdmissionGate interface {
	Wait(ctx context.Context) error
}

// Config holds the request limits and timings used by the handlers.
type Config struct {
	MaxFileSize int64
	MaxFiles    int
	WorkDir     string
	// DownloadDeleteDelay is how long a fully downloaded result stays on disk.
	DownloadDeleteDelay time.Duration
	Streaming           streaming.Config
	Retry               workdir.RetryConfig
	// ToolCheckTTL caches tool checks for the health endpoint.
	ToolCheckTTL time.Duration
	// Admission is optional. AdmissionWait bounds how long a request waits on it.
	Admission     AdmissionGate
	AdmissionWait time.Duration
}

// Handlers serves the SnapConvert HTTP API.
type Handlers struct {
	converter BatchConverter
	results   ResultStore
	tools     *toolCache
	config    Config
	startTime time.Time

	// pending holds post-download deletions that have not fired yet.
	mu       sync.Mutex
	pending  map[string]*time.Timer
	draining bool
	inflight sync.WaitGroup
}

// New creates the handlers.
func New(conv BatchConverter, results ResultStore, tools ToolChecker, config Config) *Handlers {
	if config.ToolCheckTTL <= 0 {
		config.ToolCheckTTL = time.Minute
	}
	if config.AdmissionWait <= 0 {
		config.AdmissionWait = 30 * time.Second
	}
	if config.Streaming == (streaming.Config{}) {
		config.Streaming = streaming.DefaultConfig()
	}
	if config.Retry == (workdir.RetryConfig{}) {
		config.Retry = workdir.DefaultRetryConfig()
	}
	return &Handlers{
		converter: conv,
		results:   results,
		tools:     newToolCache(tools, config.ToolCheckTTL),
		config:    config,
		startTime: time.Now(),
		pending:   make(map[string]*time.Timer),
	}
}

// scheduleRelease deletes the result after DownloadDeleteDelay. A second
// download of the same id before the timer fires does not reschedule it.
func (h *Handlers) scheduleRelease(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.draining {
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			h.release(id)
		}()
		return
	}
	if _, ok := h.pending[id]; ok {
		return
	}

	h.inflight.Add(1)
	h.pending[id] = time.AfterFunc(h.config.DownloadDeleteDelay, func() {
		defer h.inflight.Done()
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		h.release(id)
	})
}

func (h *Handlers) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.results.Release(ctx, id); err != nil {
		logging.Warn("Failed to release result %s: %v", id, err)
	}
}

// PendingDeletions returns the number of scheduled deletions.
func (h *Handlers) PendingDeletions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Drain runs every scheduled deletion now and waits for them, or for ctx.
func (h *Handlers) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	ids := make([]string, 0, len(h.pending))
	for id, timer := range h.pending {
		if timer.Stop() {
			ids = append(ids, id)
			delete(h.pending, id)
			h.inflight.Done()
		}
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.release(id)
	}

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Drained %d pending deletions", len(ids))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toolCache remembers the last tool check for ttl.
type toolCache struct {
	checker ToolChecker
	ttl     time.Duration

	mu      sync.Mutex
	status  map[string]error
	checked time.Time
}

func newToolCache(checker ToolChecker, ttl time.Duration) *toolCache {
	return &toolCache{checker: checker, ttl: ttl}
}

func (c *toolCache) get(ctx context.Context) map[string]error {
	if c.checker == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == nil || time.Since(c.checked) > c.ttl {
		c.status = c.checker.Check(ctx)
		c.checked = time.Now()
	}
	out := make(map[string]error, len(c.status))
	for k, v := range c.status {
		out[k] = v
	}
	return out
}
