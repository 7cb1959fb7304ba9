package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/storage"
)

// FakeActivity is a campus.ActivityRecorder that collects events.
type FakeActivity struct {
	mu     sync.Mutex
	events []campus.Activity
}

// Record appends the event.
func (f *FakeActivity) Record(a campus.Activity) {
	f.mu.Lock()
	f.events = append(f.events, a)
	f.mu.Unlock()
}

// Events returns a copy of the recorded events in order.
func (f *FakeActivity) Events() []campus.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

// FakeStore is an in-memory implementation of storage.Store for testing.
type FakeStore struct {
	mu       sync.Mutex
	events   []campus.Activity
	PingErr  error
	InsertFn func([]campus.Activity) error
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore { return &FakeStore{} }

// InsertActivities appends events, or delegates to InsertFn when set.
func (s *FakeStore) InsertActivities(_ context.Context, events []campus.Activity) error {
	if s.InsertFn != nil {
		if err := s.InsertFn(events); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

// ListActivities returns matching events newest first.
func (s *FakeStore) ListActivities(_ context.Context, f storage.ActivityFilter) ([]campus.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []campus.Activity{}
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if (f.UserID == "" || e.UserID == f.UserID) &&
			(f.TenantID == "" || e.TenantID == f.TenantID) &&
			(f.Kind == "" || e.Kind == f.Kind) {
			out = append(out, e)
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(max(f.Offset, 0), len(out))
	return out[start:min(start+limit, len(out))], nil
}

// PruneActivities removes events created before the cutoff.
func (s *FakeStore) PruneActivities(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e campus.Activity) bool {
		return e.CreatedAt.Before(before)
	})
	return int64(n - len(s.events)), nil
}

// Events returns a copy of the stored events in insertion order.
func (s *FakeStore) Events() []campus.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Ping returns PingErr.
func (s *FakeStore) Ping(context.Context) error { return s.PingErr }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }
