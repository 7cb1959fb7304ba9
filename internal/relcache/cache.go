// Package relcache provides a keyed TTL cache for memoizing two kinds of remote
// lookups: aggregate counts keyed by entity ID (e.g. a community's subscriber
// count) and relationship state keyed by (subject ID, entity ID) (e.g. whether
// a user subscribes to a community).
//
// Relationship lookups are three-state: Unknown (never cached, go ask),
// Absent (asked before, the answer was no) and Present. Every entry is fresh
// for exactly the configured TTL from the moment it was stored; expiry is
// checked lazily on read and actively by Sweep. The backing stores are
// size-bounded otter W-TinyLFU caches.
package relcache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/maypok86/otter/v2"
)

const (
	// DefaultTTL is the freshness window of a cached value.
	DefaultTTL = 5 * time.Minute

	defaultMaxEntries = 10_000 // per namespace

	// keySeparator joins subject and entity IDs. IDs are UUIDs and never
	// contain it, so composite keys cannot collide.
	keySeparator = ":"
)

// RelationshipKey returns the composite key of a (subject, entity) pair.
func RelationshipKey(subjectID, entityID string) string {
	return subjectID + keySeparator + entityID
}

// Options configures a Cache. Zero values select defaults.
type Options struct {
	Name       string        // instance name used in logs, metrics and bus messages
	TTL        time.Duration // defaults to DefaultTTL
	MaxEntries int           // per-namespace bound, defaults to 10,000
	Clock      clock.Clock   // defaults to clock.WallClock

	// OnInvalidate is called after every local invalidation (not after
	// Apply). It must not block.
	OnInvalidate func(Invalidation)
}

// entry wraps a cached value with the time it was stored.
// present is false for a known-absent relationship.
type entry[V any] struct {
	value    V
	present  bool
	storedAt time.Time
}

// Cache memoizes aggregate counts of type C and relationships of type R.
// It is safe for concurrent use. It never fails and never performs I/O.
type Cache[C, R any] struct {
	name         string
	ttl          time.Duration
	clock        clock.Clock
	onInvalidate func(Invalidation)

	counts *otter.Cache[string, entry[C]]
	rels   *otter.Cache[string, entry[R]]

	// mu serializes writes and guards the key index. Reads of fresh
	// entries go straight to otter.
	mu       sync.Mutex
	countIDs map[string]struct{}            // entity IDs with a count entry
	byEntity map[string]map[string]struct{} // entity ID -> subject IDs with a relationship entry

	hits          atomic.Uint64
	absentHits    atomic.Uint64
	misses        atomic.Uint64
	expirations   atomic.Uint64
	invalidations atomic.Uint64
}

// New creates a Cache with the given options.
func New[C, R any](opts Options) (*Cache[C, R], error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}

	counts, err := otter.New(&otter.Options[string, entry[C]]{
		MaximumSize: opts.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s count cache: %w", opts.Name, err)
	}
	rels, err := otter.New(&otter.Options[string, entry[R]]{
		MaximumSize: opts.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s relationship cache: %w", opts.Name, err)
	}

	return &Cache[C, R]{
		name:         opts.Name,
		ttl:          opts.TTL,
		clock:        opts.Clock,
		onInvalidate: opts.OnInvalidate,
		counts:       counts,
		rels:         rels,
		countIDs:     make(map[string]struct{}),
		byEntity:     make(map[string]map[string]struct{}),
	}, nil
}

// Clock returns the clock that stamps and ages entries.
func (c *Cache[C, R]) Clock() clock.Clock { return c.clock }

// Name returns the instance name.
func (c *Cache[C, R]) Name() string { return c.name }

// TTL returns the freshness window.
func (c *Cache[C, R]) TTL() time.Duration { return c.ttl }

func (c *Cache[C, R]) expired(storedAt time.Time) bool {
	return c.clock.Now().Sub(storedAt) > c.ttl
}

// --- Aggregate counts ---

// GetCount returns the cached count for entityID. The second result is false
// on a miss, including when the entry has expired (it is removed).
func (c *Cache[C, R]) GetCount(entityID string) (C, bool) {
	var zero C
	e, ok := c.counts.GetIfPresent(entityID)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if c.expired(e.storedAt) {
		c.mu.Lock()
		// Only drop the entry we looked at; a concurrent SetCount wins.
		if cur, ok := c.counts.GetIfPresent(entityID); ok && cur.storedAt.Equal(e.storedAt) {
			c.counts.Invalidate(entityID)
			delete(c.countIDs, entityID)
		}
		c.mu.Unlock()
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// SetCount stores count for entityID, overwriting any previous entry.
func (c *Cache[C, R]) SetCount(entityID string, count C) {
	c.mu.Lock()
	c.counts.Set(entityID, entry[C]{value: count, present: true, storedAt: c.clock.Now()})
	c.countIDs[entityID] = struct{}{}
	c.mu.Unlock()
}

// --- Relationships ---

// GetUserRelationship returns the cached relationship between subjectID and
// entityID. An expired entry is removed and reported as Unknown.
func (c *Cache[C, R]) GetUserRelationship(subjectID, entityID string) Lookup[R] {
	key := RelationshipKey(subjectID, entityID)
	e, ok := c.rels.GetIfPresent(key)
	if !ok {
		c.misses.Add(1)
		return Lookup[R]{}
	}
	if c.expired(e.storedAt) {
		c.mu.Lock()
		if cur, ok := c.rels.GetIfPresent(key); ok && cur.storedAt.Equal(e.storedAt) {
			c.rels.Invalidate(key)
			c.unindex(subjectID, entityID)
		}
		c.mu.Unlock()
		c.expirations.Add(1)
		c.misses.Add(1)
		return Lookup[R]{}
	}
	if !e.present {
		c.absentHits.Add(1)
		return Lookup[R]{State: Absent}
	}
	c.hits.Add(1)
	return Lookup[R]{State: Present, Value: e.value}
}

// SetUserRelationship caches rel as the known-present relationship.
func (c *Cache[C, R]) SetUserRelationship(subjectID, entityID string, rel R) {
	c.setRelationship(subjectID, entityID, entry[R]{value: rel, present: true})
}

// SetUserRelationshipAbsent caches the fact that no relationship exists.
func (c *Cache[C, R]) SetUserRelationshipAbsent(subjectID, entityID string) {
	c.setRelationship(subjectID, entityID, entry[R]{})
}

func (c *Cache[C, R]) setRelationship(subjectID, entityID string, e entry[R]) {
	c.mu.Lock()
	e.storedAt = c.clock.Now()
	c.rels.Set(RelationshipKey(subjectID, entityID), e)
	subjects, ok := c.byEntity[entityID]
	if !ok {
		subjects = make(map[string]struct{})
		c.byEntity[entityID] = subjects
	}
	subjects[subjectID] = struct{}{}
	c.mu.Unlock()
}

// unindex removes a (subject, entity) pair from the index. Callers hold c.mu.
func (c *Cache[C, R]) unindex(subjectID, entityID string) {
	subjects, ok := c.byEntity[entityID]
	if !ok {
		return
	}
	delete(subjects, subjectID)
	if len(subjects) == 0 {
		delete(c.byEntity, entityID)
	}
}

// --- Invalidation ---

// InvalidateEntity removes the count for entityID and every relationship
// that references it, regardless of subject.
func (c *Cache[C, R]) InvalidateEntity(entityID string) {
	c.apply(Invalidation{Op: OpEntity, EntityID: entityID})
	c.notify(Invalidation{Op: OpEntity, EntityID: entityID})
}

// InvalidateUserRelationship removes the relationship between subjectID and
// entityID together with the entity's count, which a relationship change
// always affects.
func (c *Cache[C, R]) InvalidateUserRelationship(subjectID, entityID string) {
	inv := Invalidation{Op: OpRelationship, SubjectID: subjectID, EntityID: entityID}
	c.apply(inv)
	c.notify(inv)
}

// Clear empties both namespaces.
func (c *Cache[C, R]) Clear() {
	c.apply(Invalidation{Op: OpClear})
	c.notify(Invalidation{Op: OpClear})
}

// Apply performs an invalidation received from elsewhere (e.g. another
// instance) without firing OnInvalidate. Unknown ops are ignored.
func (c *Cache[C, R]) Apply(inv Invalidation) {
	c.apply(inv)
}

func (c *Cache[C, R]) apply(inv Invalidation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch inv.Op {
	case OpEntity:
		c.counts.Invalidate(inv.EntityID)
		delete(c.countIDs, inv.EntityID)
		for subjectID := range c.byEntity[inv.EntityID] {
			c.rels.Invalidate(RelationshipKey(subjectID, inv.EntityID))
		}
		delete(c.byEntity, inv.EntityID)
	case OpRelationship:
		c.rels.Invalidate(RelationshipKey(inv.SubjectID, inv.EntityID))
		c.unindex(inv.SubjectID, inv.EntityID)
		c.counts.Invalidate(inv.EntityID)
		delete(c.countIDs, inv.EntityID)
	case OpClear:
		c.counts.InvalidateAll()
		c.rels.InvalidateAll()
		c.countIDs = make(map[string]struct{})
		c.byEntity = make(map[string]map[string]struct{})
	default:
		return
	}
	c.invalidations.Add(1)
}

func (c *Cache[C, R]) notify(inv Invalidation) {
	if c.onInvalidate != nil {
		c.onInvalidate(inv)
	}
}

// --- Maintenance ---

// Sweep removes every expired entry and drops index records of entries the
// size bound already evicted. It returns the number of expired entries removed.
func (c *Cache[C, R]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for entityID := range c.countIDs {
		e, ok := c.counts.GetIfPresent(entityID)
		if !ok {
			delete(c.countIDs, entityID)
			continue
		}
		if c.expired(e.storedAt) {
			c.counts.Invalidate(entityID)
			delete(c.countIDs, entityID)
			removed++
		}
	}
	for entityID, subjects := range c.byEntity {
		for subjectID := range subjects {
			key := RelationshipKey(subjectID, entityID)
			e, ok := c.rels.GetIfPresent(key)
			if !ok {
				delete(subjects, subjectID)
				continue
			}
			if c.expired(e.storedAt) {
				c.rels.Invalidate(key)
				delete(subjects, subjectID)
				removed++
			}
		}
		if len(subjects) == 0 {
			delete(c.byEntity, entityID)
		}
	}
	c.expirations.Add(uint64(removed))
	return removed
}

// Len returns the number of tracked count and relationship entries. Expired
// entries leave on read or Sweep; entries evicted by the size bound are counted
// until the next Sweep.
func (c *Cache[C, R]) Len() (counts, relationships int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, subjects := range c.byEntity {
		relationships += len(subjects)
	}
	return len(c.countIDs), relationships
}

// Stats returns cumulative lookup and invalidation counters.
func (c *Cache[C, R]) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		AbsentHits:    c.absentHits.Load(),
		Misses:        c.misses.Load(),
		Expirations:   c.expirations.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
