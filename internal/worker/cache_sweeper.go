package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"
)

const defaultSweepInterval = time.Minute

// CacheSweeper periodically removes expired entries from caches that are
// otherwise only expired on read.
type CacheSweeper struct {
	caches   []Sweeper
	interval time.Duration
	clock    clock.Clock
}

// NewCacheSweeper creates a sweeper over caches. A zero interval selects one
// minute; a nil clk selects the wall clock.
func NewCacheSweeper(interval time.Duration, clk clock.Clock, caches ...Sweeper) *CacheSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &CacheSweeper{caches: caches, interval: interval, clock: clk}
}

// Name returns the worker identifier.
func (w *CacheSweeper) Name() string { return "cache_sweeper" }

// Run sweeps every interval until ctx is cancelled.
func (w *CacheSweeper) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.interval):
			w.sweep(ctx)
		}
	}
}

func (w *CacheSweeper) sweep(ctx context.Context) {
	for _, c := range w.caches {
		if n := c.Sweep(); n > 0 {
			slog.LogAttrs(ctx, slog.LevelDebug, "cache swept",
				slog.String("cache", c.Name()),
				slog.Int("removed", n),
			)
		}
	}
}
