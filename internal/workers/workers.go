package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
)

// EnvOverride names the environment variable that fixes the worker count.
const EnvOverride = "CONVERSION_WORKERS"

// Count returns multiplier × GOMAXPROCS workers, at least 1 and at most
// limit (0 means no limit). CONVERSION_WORKERS takes precedence.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU sizes CPU-bound work.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes work that mostly waits.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed sizes work that alternates between the two.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Each calls fn(ctx, i) for i in [0, n) with at most size calls running at
// once, and returns when every call has returned. Indexes not yet started
// when ctx is canceled are still passed to fn, which is expected to check
// ctx itself. A panic in fn is not recovered; fn must recover its own.
func Each(ctx context.Context, n, size int, fn func(ctx context.Context, i int)) {
	if n <= 0 {
		return
	}
	if size < 1 {
		size = 1
	}
	if size > n {
		size = n
	}

	sem := make(chan struct{}, size)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(ctx, i)
		}(i)
	}

	wg.Wait()
}
