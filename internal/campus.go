// Package campus defines domain types and interfaces for the Campus dashboard backend.
// This package has no project imports -- it is the dependency root.
package campus

import (
	"context"
	"net/http"
	"time"
)

// --- Community ---

// Subscription records that a user follows a community.
type Subscription struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CommunityID string    `json:"communityId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SubscriptionCount is the aggregate subscriber count of a community.
type SubscriptionCount struct {
	CommunityID string `json:"communityId"`
	TotalCount  int64  `json:"totalCount"`
}

// Reaction records a user's reaction to a community post.
type Reaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	Type      string    `json:"type"` // "like", "insightful", ...
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionCount is the aggregate reaction summary of a post.
type ReactionCount struct {
	PostID     string           `json:"postId"`
	TotalCount int64            `json:"totalCount"`
	ByType     map[string]int64 `json:"byType,omitempty"`
}

// --- Profiles and leaderboard ---

// Profile is the public profile of a platform user.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Country     string `json:"country,omitempty"`
}

// LeaderboardEntry is a single ranked row of the competitive leaderboard.
// Profile is nil when the profiles service has no record for the user.
type LeaderboardEntry struct {
	Rank        int      `json:"rank"`
	UserID      string   `json:"userId"`
	Points      int64    `json:"points"`
	SolvedCount int      `json:"solvedCount"`
	Profile     *Profile `json:"profile,omitempty"`
}

// LeaderboardPage is one page of the leaderboard.
type LeaderboardPage struct {
	Entries  []LeaderboardEntry `json:"entries"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	Total    int64              `json:"total"`
}

// --- Activity ---

// ActivityKind names a user-visible mutation recorded in the activity log.
type ActivityKind string

const (
	ActivitySubscribe       ActivityKind = "subscribe"
	ActivityUnsubscribe     ActivityKind = "unsubscribe"
	ActivityReact           ActivityKind = "react"
	ActivityUnreact         ActivityKind = "unreact"
	ActivityDeleteCommunity ActivityKind = "delete_community"
	ActivityDeletePost      ActivityKind = "delete_post"
)

// Activity is a single recorded mutation.
type Activity struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId,omitempty"`
	UserID    string       `json:"userId"`
	Kind      ActivityKind `json:"kind"`
	EntityID  string       `json:"entityId"`
	Detail    string       `json:"detail,omitempty"`
	RequestID string       `json:"requestId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ActivityRecorder accepts activity events without blocking the caller.
type ActivityRecorder interface {
	Record(Activity)
}

// --- Identity ---

// Identity is the caller asserted by the IAM edge and attached to request context.
type Identity struct {
	UserID   string     `json:"userId"`
	TenantID string     `json:"tenantId"`
	Role     string     `json:"role"` // "student", "teacher", "admin"
	Perms    Permission `json:"-"`
}

// Authenticator resolves the caller of an HTTP request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// Permission is a bitmask representing authorization capabilities.
type Permission uint32

const (
	PermRead        Permission = 1 << iota // view counts, leaderboard, own state
	PermEngage                             // subscribe, react
	PermModerate                           // delete communities and posts
	PermManageCache                        // inspect and purge caches
)

// Can reports whether the identity has the given permission.
func (id *Identity) Can(p Permission) bool { return id.Perms&p == p }

// RolePermissions maps role names to their permission bitmasks.
var RolePermissions = map[string]Permission{
	"admin":   PermRead | PermEngage | PermModerate | PermManageCache,
	"teacher": PermRead | PermEngage | PermModerate,
	"student": PermRead | PermEngage,
}

// DefaultRole is assumed when the edge does not assert a role.
const DefaultRole = "student"

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Identity is filled in later by the authenticate middleware via mutation.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if present,
// falling back to new metadata if none exists (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// TenantFromContext returns the tenant of the authenticated caller, or "".
func TenantFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.TenantID
	}
	return ""
}
