package sweeper

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
)

// Defaults for the sweep schedule.
const (
	DefaultInterval = 10 * time.Minute
	DefaultMaxAge   = 30 * time.Minute
)

// Config controls a Sweeper.
type Config struct {
	// Dirs are scanned one level deep.
	Dirs     []string
	Interval time.Duration
	MaxAge   time.Duration
	// Clock defaults to the wall clock.
	Clock Clock
}

// Sweeper periodically deletes entries older than MaxAge.
type Sweeper struct {
	dirs     []string
	interval time.Duration
	maxAge   time.Duration
	clock    Clock

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// sweepMu serializes sweeps between the loop and SweepNow.
	sweepMu sync.Mutex
}

// New creates a stopped Sweeper.
func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Sweeper{
		dirs:     cfg.Dirs,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		clock:    cfg.Clock,
	}
}

// Start runs a sweep immediately and schedules one every interval. It is a
// no-op when already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logging.Debug("Sweeper already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	logging.Info("Sweeper started: interval=%v max age=%v dirs=%v", s.interval, s.maxAge, s.dirs)

	s.SweepNow()

	ticker := s.clock.NewTicker(s.interval)
	go s.loop(ticker, stop, done)
}

func (s *Sweeper) loop(ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			s.SweepNow()
		case <-stop:
			return
		}
	}
}

// Stop cancels the schedule and waits for a running sweep to finish. It is
// a no-op when stopped.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	logging.Info("Sweeper stopped")
}

// Running reports whether the schedule is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SweepNow runs one sweep over every directory and returns the number of
// entries removed.
func (s *Sweeper) SweepNow() int {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	removed := 0
	for _, dir := range s.dirs {
		removed += Sweep(dir, s.maxAge, s.clock.Now())
	}

	metrics.SweepRunsTotal.Inc()
	metrics.SweepLastRunTimestamp.Set(float64(time.Now().Unix()))
	if removed > 0 {
		logging.Info("Sweep removed %d expired entries in %v", removed, time.Since(start))
	}
	return removed
}

// Sweep deletes every entry directly under dir whose modification time is
// more than maxAge before now. Failures are logged and skipped. It returns
// the number of entries removed.
func Sweep(dir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			metrics.SweepErrors.Inc()
			logging.Error("Sweep: cannot read %s: %v", dir, err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				metrics.SweepErrors.Inc()
				logging.Warn("Sweep: cannot stat %s: %v", path, err)
			}
			continue
		}

		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}

		if entry.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			metrics.SweepErrors.Inc()
			logging.Warn("Sweep: failed to delete %s: %v", path, err)
			continue
		}

		removed++
		logging.Debug("Sweep: deleted expired %s", entry.Name())
	}

	metrics.SweepFilesRemoved.Add(float64(removed))
	return removed
}
