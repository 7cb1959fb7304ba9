package app

import (
	"context"
	"errors"
	"fmt"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/relcache"
)

// SubscriptionBackend is the community-service surface used for subscriptions.
type SubscriptionBackend interface {
	SubscriptionCount(ctx context.Context, communityID string) (campus.SubscriptionCount, error)
	UserSubscription(ctx context.Context, communityID, userID string) (*campus.Subscription, error)
	Subscribe(ctx context.Context, communityID, userID string) (*campus.Subscription, error)
	Unsubscribe(ctx context.Context, communityID, userID string) error
	DeleteCommunity(ctx context.Context, communityID string) error
}

// SubscriptionCache memoizes community subscriber counts and per-user subscriptions.
type SubscriptionCache = relcache.Cache[campus.SubscriptionCount, campus.Subscription]

// SubscriptionService serves community subscription state through a cache.
type SubscriptionService struct {
	backend SubscriptionBackend
	rc      relationController[campus.SubscriptionCount, campus.Subscription]
}

// NewSubscriptionService returns a SubscriptionService. activity may be nil.
func NewSubscriptionService(backend SubscriptionBackend, cache *SubscriptionCache, activity campus.ActivityRecorder) *SubscriptionService {
	return &SubscriptionService{
		backend: backend,
		rc:      relationController[campus.SubscriptionCount, campus.Subscription]{cache: cache, activity: activity},
	}
}

// SubscriberCount returns the number of subscribers of a community.
func (s *SubscriptionService) SubscriberCount(ctx context.Context, communityID string) (campus.SubscriptionCount, error) {
	count, err := s.rc.count(ctx, communityID, func(ctx context.Context) (campus.SubscriptionCount, error) {
		return s.backend.SubscriptionCount(ctx, communityID)
	})
	if err != nil {
		return campus.SubscriptionCount{}, fmt.Errorf("subscriber count: %w", err)
	}
	return count, nil
}

// UserSubscription returns the user's subscription to a community, or nil if
// the user is not subscribed.
func (s *SubscriptionService) UserSubscription(ctx context.Context, userID, communityID string) (*campus.Subscription, error) {
	sub, ok, err := s.rc.relationship(ctx, userID, communityID, func(ctx context.Context) (campus.Subscription, error) {
		sub, err := s.backend.UserSubscription(ctx, communityID, userID)
		if err != nil {
			return campus.Subscription{}, err
		}
		return *sub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("user subscription: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// Subscribe subscribes the user to a community. It is idempotent: an existing
// subscription is returned unchanged.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, communityID string) (*campus.Subscription, error) {
	existing, err := s.UserSubscription(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sub, err := s.backend.Subscribe(ctx, communityID, userID)
	if errors.Is(err, campus.ErrConflict) {
		// The cache said absent but the backend disagrees; re-read it.
		s.rc.cache.InvalidateUserRelationship(userID, communityID)
		existing, err := s.UserSubscription(ctx, userID, communityID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("subscribe: %w", campus.ErrConflict)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s.rc.cache.InvalidateUserRelationship(userID, communityID)
	s.rc.record(ctx, userID, campus.ActivitySubscribe, communityID, "")
	return sub, nil
}

// Unsubscribe removes the user's subscription. Unsubscribing when not
// subscribed is not an error.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, communityID string) error {
	err := s.backend.Unsubscribe(ctx, communityID, userID)
	switch {
	case errors.Is(err, campus.ErrNotFound):
		s.rc.cache.InvalidateUserRelationship(userID, communityID)
		return nil
	case err != nil:
		return fmt.Errorf("unsubscribe: %w", err)
	}
	s.rc.cache.InvalidateUserRelationship(userID, communityID)
	s.rc.record(ctx, userID, campus.ActivityUnsubscribe, communityID, "")
	return nil
}

// DeleteCommunity deletes a community and drops every cached value about it.
func (s *SubscriptionService) DeleteCommunity(ctx context.Context, communityID string) error {
	if err := s.backend.DeleteCommunity(ctx, communityID); err != nil {
		return fmt.Errorf("delete community: %w", err)
	}
	s.rc.cache.InvalidateEntity(communityID)
	s.rc.record(ctx, actorID(ctx), campus.ActivityDeleteCommunity, communityID, "")
	return nil
}
