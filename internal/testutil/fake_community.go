// Package testutil provides configurable test fakes for campus interfaces.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	campus "github.com/campushq/campus/internal"
)

// Operation names accepted by FakeCommunity.Calls and FakeCommunity.SetError.
const (
	OpSubscriptionCount = "SubscriptionCount"
	OpUserSubscription  = "UserSubscription"
	OpSubscribe         = "Subscribe"
	OpUnsubscribe       = "Unsubscribe"
	OpDeleteCommunity   = "DeleteCommunity"
	OpReactionCount     = "ReactionCount"
	OpUserReaction      = "UserReaction"
	OpReact             = "React"
	OpUnreact           = "Unreact"
	OpDeletePost        = "DeletePost"
)

// FakeCommunity is an in-memory community service. It counts calls per
// operation and returns injected errors before touching state.
type FakeCommunity struct {
	// Hold, when non-nil, blocks count and relationship reads until closed.
	Hold chan struct{}

	waiting   atomic.Int32
	mu        sync.Mutex
	subs      map[string]map[string]campus.Subscription // community -> user
	reactions map[string]map[string]campus.Reaction     // post -> user
	calls     map[string]int
	errs      map[string]error
}

// NewFakeCommunity returns an empty FakeCommunity.
func NewFakeCommunity() *FakeCommunity {
	return &FakeCommunity{
		subs:      make(map[string]map[string]campus.Subscription),
		reactions: make(map[string]map[string]campus.Reaction),
		calls:     make(map[string]int),
		errs:      make(map[string]error),
	}
}

// Calls returns how many times op was invoked.
func (f *FakeCommunity) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Waiting returns how many reads are blocked on Hold.
func (f *FakeCommunity) Waiting() int { return int(f.waiting.Load()) }

// SetError makes op fail with err until cleared with a nil err.
func (f *FakeCommunity) SetError(op string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.errs, op)
	} else {
		f.errs[op] = err
	}
	f.mu.Unlock()
}

// AddSubscription seeds a subscription without counting a call.
func (f *FakeCommunity) AddSubscription(communityID, userID string) campus.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeLocked(communityID, userID)
}

// AddReaction seeds a reaction without counting a call.
func (f *FakeCommunity) AddReaction(postID, userID, reactionType string) campus.Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reactLocked(postID, userID, reactionType)
}

// begin records a call and returns its injected error, holding f.mu on success.
// The call is counted before waiting on Hold.
func (f *FakeCommunity) begin(op string, hold bool) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.errs[op]
	f.mu.Unlock()
	if hold && f.Hold != nil {
		f.waiting.Add(1)
		<-f.Hold
		f.waiting.Add(-1)
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	return nil
}

// --- Subscriptions ---

// SubscriptionCount returns the number of subscribers of a community.
func (f *FakeCommunity) SubscriptionCount(_ context.Context, communityID string) (campus.SubscriptionCount, error) {
	if err := f.begin(OpSubscriptionCount, true); err != nil {
		return campus.SubscriptionCount{}, err
	}
	defer f.mu.Unlock()
	return campus.SubscriptionCount{CommunityID: communityID, TotalCount: int64(len(f.subs[communityID]))}, nil
}

// UserSubscription returns the user's subscription or ErrNotFound.
func (f *FakeCommunity) UserSubscription(_ context.Context, communityID, userID string) (*campus.Subscription, error) {
	if err := f.begin(OpUserSubscription, true); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	sub, ok := f.subs[communityID][userID]
	if !ok {
		return nil, campus.ErrNotFound
	}
	return &sub, nil
}

// Subscribe creates a subscription. An existing one yields ErrConflict.
func (f *FakeCommunity) Subscribe(_ context.Context, communityID, userID string) (*campus.Subscription, error) {
	if err := f.begin(OpSubscribe, false); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	if _, ok := f.subs[communityID][userID]; ok {
		return nil, campus.ErrConflict
	}
	sub := f.subscribeLocked(communityID, userID)
	return &sub, nil
}

// Unsubscribe removes a subscription. A missing one yields ErrNotFound.
func (f *FakeCommunity) Unsubscribe(_ context.Context, communityID, userID string) error {
	if err := f.begin(OpUnsubscribe, false); err != nil {
		return err
	}
	defer f.mu.Unlock()
	if _, ok := f.subs[communityID][userID]; !ok {
		return campus.ErrNotFound
	}
	delete(f.subs[communityID], userID)
	return nil
}

// DeleteCommunity removes a community and all of its subscriptions.
func (f *FakeCommunity) DeleteCommunity(_ context.Context, communityID string) error {
	if err := f.begin(OpDeleteCommunity, false); err != nil {
		return err
	}
	defer f.mu.Unlock()
	delete(f.subs, communityID)
	return nil
}

func (f *FakeCommunity) subscribeLocked(communityID, userID string) campus.Subscription {
	m, ok := f.subs[communityID]
	if !ok {
		m = make(map[string]campus.Subscription)
		f.subs[communityID] = m
	}
	sub := campus.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		CommunityID: communityID,
		CreatedAt:   time.Now().UTC(),
	}
	m[userID] = sub
	return sub
}

// --- Reactions ---

// ReactionCount returns the reaction summary of a post.
func (f *FakeCommunity) ReactionCount(_ context.Context, postID string) (campus.ReactionCount, error) {
	if err := f.begin(OpReactionCount, true); err != nil {
		return campus.ReactionCount{}, err
	}
	defer f.mu.Unlock()
	rc := campus.ReactionCount{PostID: postID, ByType: make(map[string]int64)}
	for _, r := range f.reactions[postID] {
		rc.TotalCount++
		rc.ByType[r.Type]++
	}
	return rc, nil
}

// UserReaction returns the user's reaction or ErrNotFound.
func (f *FakeCommunity) UserReaction(_ context.Context, postID, userID string) (*campus.Reaction, error) {
	if err := f.begin(OpUserReaction, true); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	r, ok := f.reactions[postID][userID]
	if !ok {
		return nil, campus.ErrNotFound
	}
	return &r, nil
}

// React sets or replaces the user's reaction.
func (f *FakeCommunity) React(_ context.Context, postID, userID, reactionType string) (*campus.Reaction, error) {
	if err := f.begin(OpReact, false); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	r := f.reactLocked(postID, userID, reactionType)
	return &r, nil
}

// Unreact removes the user's reaction. A missing one yields ErrNotFound.
func (f *FakeCommunity) Unreact(_ context.Context, postID, userID string) error {
	if err := f.begin(OpUnreact, false); err != nil {
		return err
	}
	defer f.mu.Unlock()
	if _, ok := f.reactions[postID][userID]; !ok {
		return campus.ErrNotFound
	}
	delete(f.reactions[postID], userID)
	return nil
}

// DeletePost removes a post and all of its reactions.
func (f *FakeCommunity) DeletePost(_ context.Context, postID string) error {
	if err := f.begin(OpDeletePost, false); err != nil {
		return err
	}
	defer f.mu.Unlock()
	delete(f.reactions, postID)
	return nil
}

func (f *FakeCommunity) reactLocked(postID, userID, reactionType string) campus.Reaction {
	m, ok := f.reactions[postID]
	if !ok {
		m = make(map[string]campus.Reaction)
		f.reactions[postID] = m
	}
	r := campus.Reaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		PostID:    postID,
		Type:      reactionType,
		CreatedAt: time.Now().UTC(),
	}
	m[userID] = r
	return r
}
