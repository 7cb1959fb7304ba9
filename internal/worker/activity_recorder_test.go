package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/telemetry"
)

type fakeActivityStore struct {
	mu      sync.Mutex
	batches [][]campus.Activity
	fail    atomic.Bool
	flushed chan struct{}
}

func newFakeActivityStore() *fakeActivityStore {
	return &fakeActivityStore{flushed: make(chan struct{}, 16)}
}

func (s *fakeActivityStore) InsertActivities(_ context.Context, events []campus.Activity) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	s.mu.Lock()
	s.batches = append(s.batches, events)
	s.mu.Unlock()
	select {
	case s.flushed <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeActivityStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

// consumed waits until Run has taken every queued event off the channel.
func consumed(t *testing.T, rec *ActivityRecorder) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(rec.ch) > 0 {
		select {
		case <-deadline:
			t.Fatalf("%d events still queued", len(rec.ch))
		default:
			runtime.Gosched()
		}
	}
}

func TestActivityRecorder_BatchOnSize(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(epoch)
	store := newFakeActivityStore()
	rec := NewActivityRecorder(store, nil, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for i := range activityBatchSize {
		rec.Record(campus.Activity{ID: string(rune('a' + i%26)), Kind: campus.ActivityReact})
	}
	// No clock advance: only the batch size can trigger this flush.
	receive(t, store.flushed, "batch flush")
	if n := store.total(); n != activityBatchSize {
		t.Errorf("flushed = %d, want %d", n, activityBatchSize)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestActivityRecorder_FlushOnTick(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(epoch)
	store := newFakeActivityStore()
	rec := NewActivityRecorder(store, nil, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.Record(campus.Activity{ID: "tick-1"})
	rec.Record(campus.Activity{ID: "tick-2"})
	consumed(t, rec)
	if n := store.total(); n != 0 {
		t.Fatalf("flushed %d before the tick", n)
	}

	if err := clk.WaitAdvance(activityFlushEvery, 5*time.Second, 1); err != nil {
		t.Fatal(err)
	}
	receive(t, store.flushed, "ticker flush")
	if n := store.total(); n != 2 {
		t.Errorf("flushed = %d, want 2", n)
	}

	// The next tick is rearmed.
	rec.Record(campus.Activity{ID: "tick-3"})
	consumed(t, rec)
	if err := clk.WaitAdvance(activityFlushEvery, 5*time.Second, 1); err != nil {
		t.Fatal(err)
	}
	receive(t, store.flushed, "second ticker flush")
	if n := store.total(); n != 3 {
		t.Errorf("flushed = %d, want 3", n)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestActivityRecorder_DropOnFull(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewPedanticRegistry()
	m := telemetry.NewMetrics(reg)
	rec := &ActivityRecorder{
		ch:      make(chan campus.Activity, 2), // tiny buffer
		store:   newFakeActivityStore(),
		metrics: m,
	}

	rec.Record(campus.Activity{ID: "1"})
	rec.Record(campus.Activity{ID: "2"})
	rec.Record(campus.Activity{ID: "3"}) // dropped

	if len(rec.ch) != 2 {
		t.Errorf("channel len = %d, want 2", len(rec.ch))
	}
	if got := counterValue(t, reg, "campus_activity_dropped_total"); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestActivityRecorder_DrainOnShutdown(t *testing.T) {
	t.Parallel()
	store := newFakeActivityStore()
	rec := NewActivityRecorder(store, nil, nil)

	rec.Record(campus.Activity{ID: "drain-1"})
	rec.Record(campus.Activity{ID: "drain-2"})

	// Already-cancelled context: Run goes straight to drain.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if store.total() != 2 {
		t.Errorf("drained = %d, want 2", store.total())
	}
}

func TestActivityRecorder_FlushErrorContinues(t *testing.T) {
	t.Parallel()
	store := newFakeActivityStore()
	store.fail.Store(true)
	rec := NewActivityRecorder(store, nil, nil)

	rec.flush(context.Background(), []campus.Activity{{ID: "lost"}})
	store.fail.Store(false)
	rec.flush(context.Background(), []campus.Activity{{ID: "kept"}})
	if store.total() != 1 {
		t.Errorf("stored = %d, want 1", store.total())
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
		return sum
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
