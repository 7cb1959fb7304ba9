package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	campus "github.com/campushq/campus/internal"
)

// RankingBackend is the competitive-service surface.
type RankingBackend interface {
	Leaderboard(ctx context.Context, page, pageSize int) ([]campus.LeaderboardEntry, int64, error)
	UserRank(ctx context.Context, userID string) (*campus.LeaderboardEntry, error)
}

// ProfileBackend is the profiles-service surface.
type ProfileBackend interface {
	Profile(ctx context.Context, userID string) (*campus.Profile, error)
}

// LeaderboardOptions tunes the leaderboard service. Zero values select defaults.
type LeaderboardOptions struct {
	MaxPageSize      int
	FanoutLimit      int // concurrent profile lookups per page
	ProfileCacheSize int
	ProfileCacheTTL  time.Duration
}

func (o *LeaderboardOptions) setDefaults() {
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.FanoutLimit <= 0 {
		o.FanoutLimit = 8
	}
	if o.ProfileCacheSize <= 0 {
		o.ProfileCacheSize = 2048
	}
	if o.ProfileCacheTTL <= 0 {
		o.ProfileCacheTTL = 10 * time.Minute
	}
}

// LeaderboardService joins leaderboard rows with user profiles.
type LeaderboardService struct {
	ranking  RankingBackend
	profiles ProfileBackend
	opts     LeaderboardOptions
	// nil value = profile known to be missing
	cache *expirable.LRU[string, *campus.Profile]
}

// NewLeaderboardService returns a LeaderboardService.
func NewLeaderboardService(ranking RankingBackend, profiles ProfileBackend, opts LeaderboardOptions) *LeaderboardService {
	opts.setDefaults()
	return &LeaderboardService{
		ranking:  ranking,
		profiles: profiles,
		opts:     opts,
		cache:    expirable.NewLRU[string, *campus.Profile](opts.ProfileCacheSize, nil, opts.ProfileCacheTTL),
	}
}

// MaxPageSize returns the largest page size served.
func (l *LeaderboardService) MaxPageSize() int { return l.opts.MaxPageSize }

// Page returns one page of the leaderboard with profiles attached.
// page is clamped to >= 1 and pageSize to [1, MaxPageSize].
func (l *LeaderboardService) Page(ctx context.Context, page, pageSize int) (*campus.LeaderboardPage, error) {
	page = max(page, 1)
	pageSize = min(max(pageSize, 1), l.opts.MaxPageSize)

	entries, total, err := l.ranking.Leaderboard(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if entries == nil {
		entries = []campus.LeaderboardEntry{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.FanoutLimit)
	for i := range entries {
		g.Go(func() error {
			p, err := l.profile(gctx, entries[i].UserID)
			if err != nil {
				return err
			}
			entries[i].Profile = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("leaderboard profiles: %w", err)
	}

	return &campus.LeaderboardPage{
		Entries:  entries,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// UserRank returns the caller's leaderboard row with profile attached.
func (l *LeaderboardService) UserRank(ctx context.Context, userID string) (*campus.LeaderboardEntry, error) {
	entry, err := l.ranking.UserRank(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user rank: %w", err)
	}
	p, err := l.profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user rank profile: %w", err)
	}
	entry.Profile = p
	return entry, nil
}

// profile returns the cached profile of userID, or nil if the profiles
// service does not know the user.
func (l *LeaderboardService) profile(ctx context.Context, userID string) (*campus.Profile, error) {
	if p, ok := l.cache.Get(userID); ok {
		return p, nil
	}
	p, err := l.profiles.Profile(ctx, userID)
	switch {
	case errors.Is(err, campus.ErrNotFound):
		l.cache.Add(userID, nil)
		return nil, nil
	case err != nil:
		return nil, err
	}
	l.cache.Add(userID, p)
	return p, nil
}
