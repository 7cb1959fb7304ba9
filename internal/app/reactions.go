package app

import (
	"context"
	"errors"
	"fmt"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/relcache"
)

// ReactionBackend is the community-service surface used for post reactions.
type ReactionBackend interface {
	ReactionCount(ctx context.Context, postID string) (campus.ReactionCount, error)
	UserReaction(ctx context.Context, postID, userID string) (*campus.Reaction, error)
	React(ctx context.Context, postID, userID, reactionType string) (*campus.Reaction, error)
	Unreact(ctx context.Context, postID, userID string) error
	DeletePost(ctx context.Context, postID string) error
}

// ReactionCache memoizes post reaction summaries and per-user reactions.
type ReactionCache = relcache.Cache[campus.ReactionCount, campus.Reaction]

const maxReactionTypeLen = 32

// ReactionService serves post reaction state through a cache.
type ReactionService struct {
	backend ReactionBackend
	rc      relationController[campus.ReactionCount, campus.Reaction]
}

// NewReactionService returns a ReactionService. activity may be nil.
func NewReactionService(backend ReactionBackend, cache *ReactionCache, activity campus.ActivityRecorder) *ReactionService {
	return &ReactionService{
		backend: backend,
		rc:      relationController[campus.ReactionCount, campus.Reaction]{cache: cache, activity: activity},
	}
}

// ReactionCount returns the reaction summary of a post.
func (s *ReactionService) ReactionCount(ctx context.Context, postID string) (campus.ReactionCount, error) {
	count, err := s.rc.count(ctx, postID, func(ctx context.Context) (campus.ReactionCount, error) {
		return s.backend.ReactionCount(ctx, postID)
	})
	if err != nil {
		return campus.ReactionCount{}, fmt.Errorf("reaction count: %w", err)
	}
	return count, nil
}

// UserReaction returns the user's reaction to a post, or nil if none.
func (s *ReactionService) UserReaction(ctx context.Context, userID, postID string) (*campus.Reaction, error) {
	r, ok, err := s.rc.relationship(ctx, userID, postID, func(ctx context.Context) (campus.Reaction, error) {
		r, err := s.backend.UserReaction(ctx, postID, userID)
		if err != nil {
			return campus.Reaction{}, err
		}
		return *r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("user reaction: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// React sets the user's reaction to a post. Reacting again with the same
// type is a no-op; a different type replaces the previous reaction.
func (s *ReactionService) React(ctx context.Context, userID, postID, reactionType string) (*campus.Reaction, error) {
	if err := validateReactionType(reactionType); err != nil {
		return nil, err
	}
	existing, err := s.UserReaction(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Type == reactionType {
		return existing, nil
	}

	r, err := s.backend.React(ctx, postID, userID, reactionType)
	if err != nil {
		return nil, fmt.Errorf("react: %w", err)
	}
	s.rc.cache.InvalidateUserRelationship(userID, postID)
	s.rc.record(ctx, userID, campus.ActivityReact, postID, reactionType)
	return r, nil
}

// Unreact removes the user's reaction. Removing a missing reaction is not an error.
func (s *ReactionService) Unreact(ctx context.Context, userID, postID string) error {
	err := s.backend.Unreact(ctx, postID, userID)
	switch {
	case errors.Is(err, campus.ErrNotFound):
		s.rc.cache.InvalidateUserRelationship(userID, postID)
		return nil
	case err != nil:
		return fmt.Errorf("unreact: %w", err)
	}
	s.rc.cache.InvalidateUserRelationship(userID, postID)
	s.rc.record(ctx, userID, campus.ActivityUnreact, postID, "")
	return nil
}

// DeletePost deletes a post and drops every cached value about it.
func (s *ReactionService) DeletePost(ctx context.Context, postID string) error {
	if err := s.backend.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.rc.cache.InvalidateEntity(postID)
	s.rc.record(ctx, actorID(ctx), campus.ActivityDeletePost, postID, "")
	return nil
}

// validateReactionType accepts short lowercase identifiers such as "like"
// or "thumbs_up".
func validateReactionType(t string) error {
	if t == "" || len(t) > maxReactionTypeLen {
		return fmt.Errorf("reaction type must be 1-%d characters: %w", maxReactionTypeLen, campus.ErrBadRequest)
	}
	for _, c := range t {
		if (c < 'a' || c > 'z') && c != '_' {
			return fmt.Errorf("reaction type %q: %w", t, campus.ErrBadRequest)
		}
	}
	return nil
}
