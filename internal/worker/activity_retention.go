package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"
)

const defaultRetentionInterval = time.Hour

// ActivityPruner is the persistence interface consumed by ActivityRetention.
type ActivityPruner interface {
	PruneActivities(ctx context.Context, before time.Time) (int64, error)
}

// ActivityRetention periodically deletes activity events older than the
// retention window.
type ActivityRetention struct {
	store     ActivityPruner
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
}

// NewActivityRetention creates a retention worker. A zero interval selects
// one hour; a nil clk selects the wall clock.
func NewActivityRetention(store ActivityPruner, retention, interval time.Duration, clk clock.Clock) *ActivityRetention {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &ActivityRetention{store: store, retention: retention, interval: interval, clock: clk}
}

// Name returns the worker identifier.
func (w *ActivityRetention) Name() string { return "activity_retention" }

// Run prunes once at start, then on every interval until ctx is cancelled.
func (w *ActivityRetention) Run(ctx context.Context) error {
	for {
		w.prune(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.interval):
		}
	}
}

func (w *ActivityRetention) prune(ctx context.Context) {
	cutoff := w.clock.Now().Add(-w.retention)
	n, err := w.store.PruneActivities(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelError, "activity prune failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if n > 0 {
		slog.Info("activity pruned", "deleted", n, "before", cutoff.Format(time.RFC3339))
	}
}
