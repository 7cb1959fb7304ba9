package app

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/relcache"
	"github.com/campushq/campus/internal/testutil"
)

const (
	userA     = "0190a1b2-0000-7000-8000-00000000000a"
	userB     = "0190a1b2-0000-7000-8000-00000000000b"
	community = "0190a1b2-0000-7000-8000-0000000000c1"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newSubscriptions(t *testing.T) (*SubscriptionService, *testutil.FakeCommunity, *SubscriptionCache, *testclock.Clock, *testutil.FakeActivity) {
	t.Helper()
	clk := testclock.NewClock(epoch)
	cache, err := relcache.New[campus.SubscriptionCount, campus.Subscription](relcache.Options{
		Name:  "subscriptions",
		Clock: clk,
	})
	if err != nil {
		t.Fatal(err)
	}
	fc := testutil.NewFakeCommunity()
	act := &testutil.FakeActivity{}
	return NewSubscriptionService(fc, cache, act), fc, cache, clk, act
}

func TestSubscriberCountCached(t *testing.T) {
	t.Parallel()
	svc, fc, _, clk, _ := newSubscriptions(t)
	ctx := context.Background()
	fc.AddSubscription(community, userB)

	for range 3 {
		got, err := svc.SubscriberCount(ctx, community)
		if err != nil {
			t.Fatal(err)
		}
		if got.TotalCount != 1 {
			t.Fatalf("count = %d, want 1", got.TotalCount)
		}
	}
	if n := fc.Calls(testutil.OpSubscriptionCount); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}

	clk.Advance(relcache.DefaultTTL + time.Second)
	if _, err := svc.SubscriberCount(ctx, community); err != nil {
		t.Fatal(err)
	}
	if n := fc.Calls(testutil.OpSubscriptionCount); n != 2 {
		t.Errorf("backend calls after expiry = %d, want 2", n)
	}
}

func TestSubscriberCountErrorNotCached(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, _ := newSubscriptions(t)
	ctx := context.Background()

	fc.SetError(testutil.OpSubscriptionCount, campus.ErrBackendUnavailable)
	if _, err := svc.SubscriberCount(ctx, community); !errors.Is(err, campus.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if counts, _ := cache.Len(); counts != 0 {
		t.Errorf("cached counts = %d, want 0", counts)
	}

	fc.SetError(testutil.OpSubscriptionCount, nil)
	if _, err := svc.SubscriberCount(ctx, community); err != nil {
		t.Fatal(err)
	}
	if n := fc.Calls(testutil.OpSubscriptionCount); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestUserSubscriptionNegativeCache(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, _ := newSubscriptions(t)
	ctx := context.Background()

	for range 3 {
		sub, err := svc.UserSubscription(ctx, userA, community)
		if err != nil {
			t.Fatal(err)
		}
		if sub != nil {
			t.Fatalf("sub = %+v, want nil", sub)
		}
	}
	if n := fc.Calls(testutil.OpUserSubscription); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
	if l := cache.GetUserRelationship(userA, community); l.State != relcache.Absent {
		t.Errorf("state = %v, want absent", l.State)
	}
}

func TestUserSubscriptionErrorNotCached(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, _ := newSubscriptions(t)

	fc.SetError(testutil.OpUserSubscription, campus.ErrBackend)
	if _, err := svc.UserSubscription(context.Background(), userA, community); !errors.Is(err, campus.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if l := cache.GetUserRelationship(userA, community); l.State != relcache.Unknown {
		t.Errorf("state = %v, want unknown", l.State)
	}
}

// TestSubscribeFlow walks a user from unsubscribed to subscribed and back,
// checking that each mutation makes the next read go to the backend.
func TestSubscribeFlow(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, act := newSubscriptions(t)
	ctx := context.Background()

	// Prime both namespaces.
	if sub, _ := svc.UserSubscription(ctx, userA, community); sub != nil {
		t.Fatal("expected not subscribed")
	}
	if c, _ := svc.SubscriberCount(ctx, community); c.TotalCount != 0 {
		t.Fatalf("count = %d, want 0", c.TotalCount)
	}

	sub, err := svc.Subscribe(ctx, userA, community)
	if err != nil {
		t.Fatal("subscribe:", err)
	}
	if sub.UserID != userA || sub.CommunityID != community {
		t.Errorf("sub = %+v", sub)
	}
	if l := cache.GetUserRelationship(userA, community); l.Known() {
		t.Errorf("relationship still cached as %v after subscribe", l.State)
	}
	if _, ok := cache.GetCount(community); ok {
		t.Error("count still cached after subscribe")
	}

	got, err := svc.UserSubscription(ctx, userA, community)
	if err != nil || got == nil {
		t.Fatalf("after subscribe: sub=%v err=%v", got, err)
	}
	if c, _ := svc.SubscriberCount(ctx, community); c.TotalCount != 1 {
		t.Errorf("count = %d, want 1", c.TotalCount)
	}

	// Subscribing again is served from cache.
	again, err := svc.Subscribe(ctx, userA, community)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != sub.ID {
		t.Errorf("re-subscribe id = %q, want %q", again.ID, sub.ID)
	}
	if n := fc.Calls(testutil.OpSubscribe); n != 1 {
		t.Errorf("subscribe calls = %d, want 1", n)
	}

	if err := svc.Unsubscribe(ctx, userA, community); err != nil {
		t.Fatal("unsubscribe:", err)
	}
	if got, _ := svc.UserSubscription(ctx, userA, community); got != nil {
		t.Error("still subscribed after unsubscribe")
	}

	events := act.Events()
	if len(events) != 2 {
		t.Fatalf("activity = %d events, want 2", len(events))
	}
	if events[0].Kind != campus.ActivitySubscribe || events[1].Kind != campus.ActivityUnsubscribe {
		t.Errorf("kinds = %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[0].UserID != userA || events[0].EntityID != community || events[0].ID == "" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestSubscribeConflictRereads(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, act := newSubscriptions(t)
	ctx := context.Background()

	// Cache says absent, but another instance subscribed meanwhile.
	cache.SetUserRelationshipAbsent(userA, community)
	seeded := fc.AddSubscription(community, userA)

	sub, err := svc.Subscribe(ctx, userA, community)
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID != seeded.ID {
		t.Errorf("id = %q, want %q", sub.ID, seeded.ID)
	}
	if len(act.Events()) != 0 {
		t.Error("conflict should not record activity")
	}
}

func TestUnsubscribeNotSubscribed(t *testing.T) {
	t.Parallel()
	svc, _, cache, _, act := newSubscriptions(t)
	ctx := context.Background()

	cache.SetCount(community, campus.SubscriptionCount{CommunityID: community, TotalCount: 7})
	if err := svc.Unsubscribe(ctx, userA, community); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if _, ok := cache.GetCount(community); ok {
		t.Error("count should be invalidated")
	}
	if len(act.Events()) != 0 {
		t.Error("no-op unsubscribe should not record activity")
	}
}

func TestMutationFailureKeepsCache(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, act := newSubscriptions(t)
	ctx := context.Background()

	cache.SetCount(community, campus.SubscriptionCount{CommunityID: community, TotalCount: 3})
	cache.SetUserRelationshipAbsent(userA, community)
	fc.SetError(testutil.OpSubscribe, campus.ErrBackend)

	if _, err := svc.Subscribe(ctx, userA, community); !errors.Is(err, campus.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if _, ok := cache.GetCount(community); !ok {
		t.Error("count invalidated after failed mutation")
	}
	if l := cache.GetUserRelationship(userA, community); l.State != relcache.Absent {
		t.Errorf("state = %v, want absent", l.State)
	}
	if len(act.Events()) != 0 {
		t.Error("failed mutation recorded activity")
	}
}

func TestDeleteCommunityFanOut(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, act := newSubscriptions(t)
	id := &campus.Identity{UserID: userB, Role: "admin"}
	ctx := campus.ContextWithIdentity(context.Background(), id)

	fc.AddSubscription(community, userA)
	if _, err := svc.UserSubscription(ctx, userA, community); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UserSubscription(ctx, userB, community); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubscriberCount(ctx, community); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteCommunity(ctx, community); err != nil {
		t.Fatal(err)
	}
	if counts, rels := cache.Len(); counts != 0 || rels != 0 {
		t.Errorf("len = (%d, %d), want (0, 0)", counts, rels)
	}
	events := act.Events()
	if len(events) != 1 || events[0].Kind != campus.ActivityDeleteCommunity || events[0].UserID != userB {
		t.Errorf("events = %+v", events)
	}
}

// TestStaleRelationshipScenario: a relationship cached as present, then
// invalidated, must be re-read from the backend rather than served stale.
func TestStaleRelationshipScenario(t *testing.T) {
	t.Parallel()
	svc, fc, cache, clk, _ := newSubscriptions(t)
	ctx := context.Background()

	fc.AddSubscription(community, userA)
	if sub, _ := svc.UserSubscription(ctx, userA, community); sub == nil {
		t.Fatal("expected subscribed")
	}

	// Another client unsubscribes directly against the backend.
	if err := fc.Unsubscribe(ctx, community, userA); err != nil {
		t.Fatal(err)
	}
	// Within TTL the cache still answers present.
	clk.Advance(time.Minute)
	if sub, _ := svc.UserSubscription(ctx, userA, community); sub == nil {
		t.Fatal("expected cached subscription within TTL")
	}

	// Invalidation propagated from elsewhere.
	cache.Apply(relcache.Invalidation{Op: relcache.OpRelationship, SubjectID: userA, EntityID: community})
	if sub, _ := svc.UserSubscription(ctx, userA, community); sub != nil {
		t.Error("stale subscription served after invalidation")
	}
	if n := fc.Calls(testutil.OpUserSubscription); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestCoalescedMisses(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, _ := newSubscriptions(t)
	fc.Hold = make(chan struct{})
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Go(func() {
			if _, err := svc.SubscriberCount(ctx, community); err != nil {
				errs <- err
			}
		})
	}

	// Nothing is cached while the leader is held, so every caller misses
	// before the fetch can complete.
	for fc.Waiting() == 0 || cache.Stats().Misses < callers {
		runtime.Gosched()
	}
	if n := fc.Waiting(); n != 1 {
		t.Errorf("reads blocked on backend = %d, want 1", n)
	}
	close(fc.Hold)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := fc.Calls(testutil.OpSubscriptionCount); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestCanceledCallerDoesNotPoisonSharedFetch(t *testing.T) {
	t.Parallel()
	svc, fc, cache, _, _ := newSubscriptions(t)
	fc.AddSubscription(community, userB)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := svc.SubscriberCount(ctx, community)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalCount != 1 {
		t.Errorf("count = %d, want 1", got.TotalCount)
	}
	if _, ok := cache.GetCount(community); !ok {
		t.Error("count not cached")
	}
}

func TestActivityStampedByCacheClock(t *testing.T) {
	t.Parallel()
	svc, _, _, clk, act := newSubscriptions(t)
	ctx := context.Background()

	clk.Advance(90 * time.Minute)
	if _, err := svc.Subscribe(ctx, userA, community); err != nil {
		t.Fatal(err)
	}
	events := act.Events()
	if len(events) != 1 {
		t.Fatalf("activity = %d events, want 1", len(events))
	}
	if want := epoch.Add(90 * time.Minute); !events[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", events[0].CreatedAt, want)
	}
}
