package metrics

import (
	"os"
	"sync"
	"time"

	"snapconvert/internal/logging"
)

// StatsProvider reports the number of registered results.
type StatsProvider interface {
	Len() int
}

// Collector periodically samples the result registry and the output
// directory into gauges.
type Collector struct {
	statsProvider StatsProvider
	outputDir     string
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, outputDir string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		outputDir:     outputDir,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider != nil {
		RegistryEntries.Set(float64(c.statsProvider.Len()))
	}

	if c.outputDir == "" {
		return
	}

	entries, err := os.ReadDir(c.outputDir)
	if err != nil {
		logging.Debug("Metrics: cannot read output directory %s: %v", c.outputDir, err)
		return
	}

	var total int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}

	TempDirFiles.Set(float64(len(entries)))
	TempDirBytes.Set(float64(total))

	logging.Debug("Metrics collected: output entries=%d, bytes=%d", len(entries), total)
}
