// Package app implements application-level services for the Campus dashboard:
// cached subscription and reaction lookups, and the leaderboard.
package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/relcache"
)

// relationController implements the read-through and invalidate-on-write
// flows shared by every cached relationship kind. C is the aggregate count
// type of an entity and R the relationship type between a user and an entity.
type relationController[C, R any] struct {
	cache    *relcache.Cache[C, R]
	activity campus.ActivityRecorder // nil = no activity log
	group    singleflight.Group
}

// relationResult is the shared singleflight result of a relationship fetch.
type relationResult[R any] struct {
	value R
	ok    bool
}

// count returns the cached count of entityID, fetching and caching it on a
// miss. Fetch errors are returned and nothing is cached.
func (rc *relationController[C, R]) count(ctx context.Context, entityID string, fetch func(context.Context) (C, error)) (C, error) {
	if v, ok := rc.cache.GetCount(entityID); ok {
		return v, nil
	}
	// The shared fetch outlives any single caller's cancellation; the HTTP
	// client timeout bounds it.
	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := rc.group.Do("count:"+entityID, func() (any, error) {
		c, err := fetch(sharedCtx)
		if err != nil {
			return nil, err
		}
		rc.cache.SetCount(entityID, c)
		return c, nil
	})
	if err != nil {
		var zero C
		return zero, err
	}
	return v.(C), nil
}

// relationship returns the relationship between subjectID and entityID.
// ok is false when none exists. A known-absent entry answers without I/O;
// a fetch that fails with campus.ErrNotFound is cached as absent.
func (rc *relationController[C, R]) relationship(ctx context.Context, subjectID, entityID string, fetch func(context.Context) (R, error)) (value R, ok bool, err error) {
	switch l := rc.cache.GetUserRelationship(subjectID, entityID); l.State {
	case relcache.Present:
		return l.Value, true, nil
	case relcache.Absent:
		return value, false, nil
	}

	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := rc.group.Do("rel:"+relcache.RelationshipKey(subjectID, entityID), func() (any, error) {
		r, err := fetch(sharedCtx)
		switch {
		case errors.Is(err, campus.ErrNotFound):
			rc.cache.SetUserRelationshipAbsent(subjectID, entityID)
			return relationResult[R]{}, nil
		case err != nil:
			return nil, err
		}
		rc.cache.SetUserRelationship(subjectID, entityID, r)
		return relationResult[R]{value: r, ok: true}, nil
	})
	if err != nil {
		return value, false, err
	}
	res := v.(relationResult[R])
	return res.value, res.ok, nil
}

// record logs a successful mutation to the activity log.
func (rc *relationController[C, R]) record(ctx context.Context, userID string, kind campus.ActivityKind, entityID, detail string) {
	if rc.activity == nil {
		return
	}
	rc.activity.Record(campus.Activity{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  campus.TenantFromContext(ctx),
		UserID:    userID,
		Kind:      kind,
		EntityID:  entityID,
		Detail:    detail,
		RequestID: campus.RequestIDFromContext(ctx),
		CreatedAt: rc.cache.Clock().Now().UTC(),
	})
}

// actorID returns the authenticated caller's user ID, or "".
func actorID(ctx context.Context) string {
	if id := campus.IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
