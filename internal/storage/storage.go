// Package storage defines persistence interfaces for the dashboard backend.
// The only local state is the activity log; everything else lives in the
// platform microservices.
package storage

import (
	"context"
	"time"

	campus "github.com/campushq/campus/internal"
)

// ActivityStore manages activity log persistence.
type ActivityStore interface {
	InsertActivities(ctx context.Context, events []campus.Activity) error
	ListActivities(ctx context.Context, f ActivityFilter) ([]campus.Activity, error)
	PruneActivities(ctx context.Context, before time.Time) (int64, error)
}

// ActivityFilter selects activity events, newest first.
type ActivityFilter struct {
	UserID   string
	TenantID string
	Kind     campus.ActivityKind
	Offset   int
	Limit    int // <= 0 means 50
}

// Store combines all storage interfaces.
type Store interface {
	ActivityStore
	Ping(ctx context.Context) error
	Close() error
}
