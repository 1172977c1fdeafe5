package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
)

// rateLimitMessage is returned to clients that exceed their allowance.
const rateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimitConfig holds configuration for the per-client rate limiter
type RateLimitConfig struct {
	// Requests is the number of requests allowed per Window. Zero disables limiting.
	Requests int
	// Window is the period over which Requests are refilled
	Window time.Duration
	// PathPrefix restricts limiting to matching paths; empty limits everything
	PathPrefix string
	// IdleTTL is how long an idle client entry is kept before being evicted
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows 100 requests per 15 minutes on /api.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests:   100,
		Window:     15 * time.Minute,
		PathPrefix: "/api/",
		IdleTTL:    15 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP. The bucket holds Requests
// tokens and refills at Requests per Window.
type RateLimiter struct {
	config   RateLimitConfig
	limit    rate.Limit
	interval time.Duration
	burst    int
	now      func() time.Time
	mu       sync.Mutex
	clients  map[string]*clientLimiter

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRateLimiter creates a rate limiter. Call Start to begin evicting idle clients.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = config.Window
	}
	rl := &RateLimiter{
		config:  config,
		burst:   config.Requests,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if config.Requests > 0 && config.Window > 0 {
		rl.interval = config.Window / time.Duration(config.Requests)
		rl.limit = rate.Every(rl.interval)
	}
	return rl
}

// Enabled reports whether the limiter rejects anything at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.burst > 0 && rl.limit > 0
}

// Allow consumes one token for key and reports whether the request may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Evict removes clients idle for longer than IdleTTL and returns how many were dropped.
func (rl *RateLimiter) Evict() int {
	cutoff := rl.now().Add(-rl.config.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Start evicts idle clients every interval until Stop is called.
func (rl *RateLimiter) Start(interval time.Duration) {
	if !rl.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(rl.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := rl.Evict(); n > 0 {
					logging.Debug("Rate limiter evicted %d idle clients", n)
				}
			case <-rl.stop:
				return
			}
		}
	}()
}

// Stop halts the eviction loop started by Start.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
	if rl.started.Load() {
		<-rl.done
	}
}

// retryAfter is the number of seconds until one token is refilled.
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(rl.interval.Seconds()))
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, rl.config.PathPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		ip := ClientIP(r)
		if rl.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RateLimitedTotal.Inc()
		logging.Debug("Rate limit exceeded for %s", sanitizeLogField(ip))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
		w.WriteHeader(http.StatusTooManyRequests)
		if err := json.NewEncoder(w).Encode(map[string]string{"error": rateLimitMessage}); err != nil {
			logging.Debug("Failed to write rate limit response: %v", err)
		}
	})
}
