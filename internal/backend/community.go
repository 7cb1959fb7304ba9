package backend

import (
	"context"
	"net/http"
	"net/url"

	campus "github.com/campushq/campus/internal"
)

// CommunityClient talks to the community service: subscriptions, post
// reactions, and moderation deletes.
type CommunityClient struct {
	c *Client
}

// NewCommunityClient wraps c, which must point at the community service.
func NewCommunityClient(c *Client) *CommunityClient {
	return &CommunityClient{c: c}
}

func communityPath(communityID string) string {
	return "/communities/" + url.PathEscape(communityID)
}

func postPath(postID string) string {
	return "/posts/" + url.PathEscape(postID)
}

type countResponse struct {
	TotalCount int64            `json:"totalCount"`
	ByType     map[string]int64 `json:"byType,omitempty"`
}

// --- Subscriptions ---

// SubscriptionCount returns the number of subscribers of a community.
func (cc *CommunityClient) SubscriptionCount(ctx context.Context, communityID string) (campus.SubscriptionCount, error) {
	var out countResponse
	if err := cc.c.do(ctx, "subscription_count", http.MethodGet, communityPath(communityID)+"/subscriptions/count", nil, &out); err != nil {
		return campus.SubscriptionCount{}, err
	}
	return campus.SubscriptionCount{CommunityID: communityID, TotalCount: out.TotalCount}, nil
}

// UserSubscription returns the user's subscription to a community.
// The error wraps campus.ErrNotFound when the user is not subscribed.
func (cc *CommunityClient) UserSubscription(ctx context.Context, communityID, userID string) (*campus.Subscription, error) {
	var out campus.Subscription
	path := communityPath(communityID) + "/subscriptions/" + url.PathEscape(userID)
	if err := cc.c.do(ctx, "user_subscription", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe creates a subscription. The error wraps campus.ErrConflict when
// one already exists.
func (cc *CommunityClient) Subscribe(ctx context.Context, communityID, userID string) (*campus.Subscription, error) {
	in := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	var out campus.Subscription
	if err := cc.c.do(ctx, "subscribe", http.MethodPost, communityPath(communityID)+"/subscriptions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unsubscribe deletes the user's subscription.
func (cc *CommunityClient) Unsubscribe(ctx context.Context, communityID, userID string) error {
	path := communityPath(communityID) + "/subscriptions/" + url.PathEscape(userID)
	return cc.c.do(ctx, "unsubscribe", http.MethodDelete, path, nil, nil)
}

// DeleteCommunity deletes a community and everything in it.
func (cc *CommunityClient) DeleteCommunity(ctx context.Context, communityID string) error {
	return cc.c.do(ctx, "delete_community", http.MethodDelete, communityPath(communityID), nil, nil)
}

// --- Reactions ---

// ReactionCount returns the reaction summary of a post.
func (cc *CommunityClient) ReactionCount(ctx context.Context, postID string) (campus.ReactionCount, error) {
	var out countResponse
	if err := cc.c.do(ctx, "reaction_count", http.MethodGet, postPath(postID)+"/reactions/count", nil, &out); err != nil {
		return campus.ReactionCount{}, err
	}
	return campus.ReactionCount{PostID: postID, TotalCount: out.TotalCount, ByType: out.ByType}, nil
}

// UserReaction returns the user's reaction to a post.
// The error wraps campus.ErrNotFound when the user has not reacted.
func (cc *CommunityClient) UserReaction(ctx context.Context, postID, userID string) (*campus.Reaction, error) {
	var out campus.Reaction
	path := postPath(postID) + "/reactions/" + url.PathEscape(userID)
	if err := cc.c.do(ctx, "user_reaction", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// React sets the user's reaction to a post, replacing any previous one.
func (cc *CommunityClient) React(ctx context.Context, postID, userID, reactionType string) (*campus.Reaction, error) {
	in := struct {
		Type string `json:"type"`
	}{Type: reactionType}
	var out campus.Reaction
	path := postPath(postID) + "/reactions/" + url.PathEscape(userID)
	if err := cc.c.do(ctx, "react", http.MethodPut, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unreact removes the user's reaction to a post.
func (cc *CommunityClient) Unreact(ctx context.Context, postID, userID string) error {
	path := postPath(postID) + "/reactions/" + url.PathEscape(userID)
	return cc.c.do(ctx, "unreact", http.MethodDelete, path, nil, nil)
}

// DeletePost deletes a post and its reactions.
func (cc *CommunityClient) DeletePost(ctx context.Context, postID string) error {
	return cc.c.do(ctx, "delete_post", http.MethodDelete, postPath(postID), nil, nil)
}
