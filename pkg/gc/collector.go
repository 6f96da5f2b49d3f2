// Package gc sweeps abandoned staging directories.
//
// Every gateway connection stages its transfers in a private session
// directory that is removed when the connection ends. Directories survive
// when that removal fails or the process dies mid-transfer:
//   - Gateway crashes with connections open
//   - Removal errors during session teardown
//   - Partial uploads on a disk that was full at the time
//
// The collector runs once at startup, when no session is open and every
// directory is a leftover, and then periodically for entries older than
// MaxAge.
package gc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
)

// Sweepable is an area whose stale entries can be listed and removed.
// *staging.Area implements it.
type Sweepable interface {
	// Stale returns entries not in use and last modified before cutoff, or
	// every unused entry for a zero cutoff.
	Stale(cutoff time.Time) ([]string, error)

	// Remove deletes one entry. It refuses entries still in use.
	Remove(name string) error
}

// Collector performs periodic sweeps of a staging area.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	area   Sweepable
	config Config

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether periodic sweeps run (default: false)
	Enabled bool

	// Interval is how often to sweep (default: 1h)
	Interval time.Duration

	// MaxAge is how long an unused entry is left alone (default: 24h)
	MaxAge time.Duration

	// DryRun logs what would be removed without removing it
	DryRun bool
}

// NewCollector creates a collector for area. Call Start to begin periodic
// sweeps.
func NewCollector(area Sweepable, config Config) *Collector {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.MaxAge == 0 {
		config.MaxAge = 24 * time.Hour
	}

	return &Collector{
		area:   area,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background sweeping. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Debug("Staging collector disabled")
		return
	}

	c.startOnce.Do(func() {
		c.started.Store(true)
		logger.Info("Starting staging collector: interval=%s max_age=%s dry_run=%v",
			c.config.Interval, c.config.MaxAge, c.config.DryRun)
		go c.worker()
	})
}

// Stop stops the collector and waits for an in-progress sweep, bounded by
// ctx. Safe to call more than once, and before Start.
func (c *Collector) Stop(ctx context.Context) error {
	var wait bool
	c.stopOnce.Do(func() {
		close(c.stopCh)
		wait = c.started.Load()
	})
	if !wait {
		return nil
	}

	select {
	case <-c.doneCh:
		logger.Debug("Staging collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Staging collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow sweeps every unused entry regardless of age. It is meant for
// startup, before any session can exist.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx, time.Time{})
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx, time.Now().Add(-c.config.MaxAge))
			cancel()

			if err != nil {
				logger.Error("Staging sweep failed: %v", err)
			} else if stats.FoundCount > 0 {
				logger.Info("Staging sweep completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect removes unused entries last modified before cutoff; a zero
// cutoff matches every unused entry.
func (c *Collector) collect(ctx context.Context, cutoff time.Time) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	stale, err := c.area.Stale(cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to list staging entries: %w", err)
	}
	stats.FoundCount = uint64(len(stale))

	if len(stale) == 0 {
		stats.EndTime = time.Now()
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("Staging sweep: DRY RUN - would remove %d entries", len(stale))
		for i, name := range stale {
			if i == 10 {
				logger.Info("  ... and %d more", len(stale)-10)
				break
			}
			logger.Info("  - %s", name)
		}
		stats.EndTime = time.Now()
		return stats, nil
	}

	for _, name := range stale {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}
		if err := c.area.Remove(name); err != nil {
			logger.Debug("Staging sweep: failed to remove %s: %v", name, err)
			stats.FailedCount++
			continue
		}
		stats.RemovedCount++
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// Stats contains statistics from one sweep.
type Stats struct {
	StartTime    time.Time
	EndTime      time.Time
	FoundCount   uint64 // Stale entries found
	RemovedCount uint64 // Entries removed
	FailedCount  uint64 // Entries that could not be removed
}

// Duration returns the sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	return fmt.Sprintf("found=%d removed=%d failed=%d duration=%s",
		s.FoundCount, s.RemovedCount, s.FailedCount, s.Duration())
}
