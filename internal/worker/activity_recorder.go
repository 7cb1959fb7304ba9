package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/telemetry"
)

const (
	activityChanSize   = 1000
	activityBatchSize  = 100
	activityFlushEvery = 5 * time.Second
	activityDrainTime  = 30 * time.Second
)

// ActivityInserter is the persistence interface consumed by ActivityRecorder.
type ActivityInserter interface {
	InsertActivities(ctx context.Context, events []campus.Activity) error
}

// ActivityRecorder buffers activity events and batch-flushes them to the store.
// Events are dropped if the channel is full (back-pressure on slow DB).
type ActivityRecorder struct {
	ch      chan campus.Activity
	store   ActivityInserter
	metrics *telemetry.Metrics // nil = no metrics
	clock   clock.Clock
}

// NewActivityRecorder creates an ActivityRecorder backed by store.
// metrics may be nil; a nil clk selects the wall clock.
func NewActivityRecorder(store ActivityInserter, metrics *telemetry.Metrics, clk clock.Clock) *ActivityRecorder {
	if clk == nil {
		clk = clock.WallClock
	}
	return &ActivityRecorder{
		ch:      make(chan campus.Activity, activityChanSize),
		store:   store,
		metrics: metrics,
		clock:   clk,
	}
}

// Name returns the worker identifier.
func (a *ActivityRecorder) Name() string { return "activity_recorder" }

// Record enqueues an event. It never blocks; drops on full channel.
func (a *ActivityRecorder) Record(e campus.Activity) {
	select {
	case a.ch <- e:
	default:
		if a.metrics != nil {
			a.metrics.ActivityDropped.Inc()
		}
		slog.Warn("activity event dropped, channel full",
			slog.String("kind", string(e.Kind)),
			slog.String("request_id", e.RequestID),
		)
	}
}

// Run processes events until ctx is cancelled, then drains remaining events.
func (a *ActivityRecorder) Run(ctx context.Context) error {
	tick := a.clock.After(activityFlushEvery)
	buf := make([]campus.Activity, 0, activityBatchSize)

	for {
		select {
		case e := <-a.ch:
			buf = append(buf, e)
			if len(buf) >= activityBatchSize {
				a.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-tick:
			tick = a.clock.After(activityFlushEvery)
			a.observeQueue()
			if len(buf) > 0 {
				a.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			a.drain(buf)
			return nil
		}
	}
}

func (a *ActivityRecorder) drain(buf []campus.Activity) {
	ctx, cancel := context.WithTimeout(context.Background(), activityDrainTime)
	defer cancel()

	for {
		select {
		case e := <-a.ch:
			buf = append(buf, e)
			if len(buf) >= activityBatchSize {
				a.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			if len(buf) > 0 {
				a.flush(ctx, buf)
			}
			a.observeQueue()
			return
		}
	}
}

func (a *ActivityRecorder) flush(ctx context.Context, buf []campus.Activity) {
	batch := make([]campus.Activity, len(buf))
	copy(batch, buf)

	if err := a.store.InsertActivities(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "activity flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}

func (a *ActivityRecorder) observeQueue() {
	if a.metrics != nil {
		a.metrics.ActivityQueueLength.Set(float64(len(a.ch)))
	}
}
