package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
	"snapconvert/internal/workdir"
)

// ErrNotFound is returned for unknown or expired identifiers.
var ErrNotFound = errors.New("result not found")

const defaultTimeout = 5 * time.Second

// Result is the metadata of one converted file.
type Result struct {
	ID            string    `json:"id"`
	FilePath      string    `json:"filePath"`
	OriginalName  string    `json:"originalName"`
	ConvertedName string    `json:"convertedName"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store is a backend for result metadata. Implementations must make each
// call atomic with respect to concurrent callers.
type Store interface {
	Put(ctx context.Context, res Result) error
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id string) (Result, error)
	// Delete reports whether an entry was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// NewID returns a fresh result identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a canonical UUIDv4 string.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

// Registry is the shared result table used by the dispatcher and the
// download handler.
type Registry struct {
	store   Store
	backend string
	retry   workdir.RetryConfig
}

// New wraps store. backend labels metrics.
func New(store Store, backend string) *Registry {
	return &Registry{
		store:   store,
		backend: backend,
		retry:   workdir.DefaultRetryConfig(),
	}
}

// Backend returns the backend name.
func (r *Registry) Backend() string { return r.backend }

// Put stores res under res.ID, filling CreatedAt when unset.
func (r *Registry) Put(ctx context.Context, res Result) error {
	if res.ID == "" {
		return fmt.Errorf("put result: empty id")
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}

	err := r.store.Put(ctx, res)
	r.observe("put", err)
	if err != nil {
		return fmt.Errorf("put result %s: %w", res.ID, err)
	}
	return nil
}

// Get returns the result for id. A registered result whose file no longer
// exists is removed and reported as ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (Result, error) {
	res, err := r.store.Get(ctx, id)
	r.observe("get", err)
	if err != nil {
		return Result{}, err
	}

	if _, err := workdir.StatWithRetry(res.FilePath, r.retry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Result %s points at a deleted file, dropping entry", id)
			if _, derr := r.store.Delete(ctx, id); derr != nil {
				logging.Warn("Failed to drop stale result %s: %v", id, derr)
			}
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("stat result %s: %w", id, err)
	}

	return res, nil
}

// Remove deletes the entry for id and reports whether it existed. The file
// is left alone.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := r.store.Delete(ctx, id)
	r.observe("delete", err)
	return removed, err
}

// Release removes the entry for id and deletes its file. Both steps are
// idempotent, so racing with the sweeper or a second download is harmless.
func (r *Registry) Release(ctx context.Context, id string) error {
	res, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := r.Remove(ctx, id); err != nil {
		return err
	}
	if err := workdir.Remove(res.FilePath); err != nil {
		logging.Warn("Failed to delete %s for result %s: %v", res.FilePath, id, err)
		return err
	}
	logging.Debug("Released result %s", id)
	return nil
}

// Len returns the number of registered results, or 0 when the backend
// cannot be read.
func (r *Registry) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	n, err := r.store.Len(ctx)
	if err != nil {
		logging.Warn("Failed to count results: %v", err)
		return 0
	}
	return n
}

// Ping checks that the backend answers.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.store.Len(ctx)
	return err
}

// Close releases the backend.
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) observe(op string, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.RegistryOperationsTotal.WithLabelValues(r.backend, op, status).Inc()
}
