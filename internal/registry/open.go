package registry

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the SQLite database file.
	Path  string
	Redis RedisOptions
}

// Open builds a Registry on the configured backend.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	var store Store
	var err error

	switch opts.Backend {
	case "", BackendMemory:
		opts.Backend = BackendMemory
		store = NewMemoryStore()
	case BackendSQLite:
		store, err = NewSQLiteStore(ctx, opts.Path)
	case BackendRedis:
		store, err = NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	return New(store, opts.Backend), nil
}
