package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	campus "github.com/campushq/campus/internal"
)

// FakeRanking serves a fixed leaderboard.
type FakeRanking struct {
	Entries []campus.LeaderboardEntry
	Err     error
}

// Leaderboard returns one page of Entries.
func (f *FakeRanking) Leaderboard(_ context.Context, page, pageSize int) ([]campus.LeaderboardEntry, int64, error) {
	if f.Err != nil {
		return nil, 0, f.Err
	}
	start := (page - 1) * pageSize
	if start >= len(f.Entries) {
		return nil, int64(len(f.Entries)), nil
	}
	end := min(start+pageSize, len(f.Entries))
	out := make([]campus.LeaderboardEntry, end-start)
	copy(out, f.Entries[start:end])
	return out, int64(len(f.Entries)), nil
}

// UserRank returns the entry of userID or ErrNotFound.
func (f *FakeRanking) UserRank(_ context.Context, userID string) (*campus.LeaderboardEntry, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	for _, e := range f.Entries {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, campus.ErrNotFound
}

// FakeProfiles serves profiles from a map. Unknown users yield ErrNotFound.
type FakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]campus.Profile
	errs     map[string]error
	calls    atomic.Int64
}

// NewFakeProfiles returns a FakeProfiles seeded with the given profiles.
func NewFakeProfiles(profiles ...campus.Profile) *FakeProfiles {
	f := &FakeProfiles{
		profiles: make(map[string]campus.Profile, len(profiles)),
		errs:     make(map[string]error),
	}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

// SetError makes lookups of userID fail with err.
func (f *FakeProfiles) SetError(userID string, err error) {
	f.mu.Lock()
	f.errs[userID] = err
	f.mu.Unlock()
}

// Calls returns the number of Profile calls.
func (f *FakeProfiles) Calls() int { return int(f.calls.Load()) }

// Profile returns the profile of userID.
func (f *FakeProfiles) Profile(_ context.Context, userID string) (*campus.Profile, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, campus.ErrNotFound
	}
	return &p, nil
}
