package relcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

type count struct {
	Total int64
}

type sub struct {
	ID string
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, opts Options) (*Cache[count, sub], *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(epoch)
	opts.Clock = clk
	if opts.Name == "" {
		opts.Name = "test"
	}
	c, err := New[count, sub](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clk
}

func TestRelationshipKey(t *testing.T) {
	t.Parallel()
	if got := RelationshipKey("u1", "c1"); got != "u1:c1" {
		t.Errorf("RelationshipKey = %q, want u1:c1", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	c, err := New[count, sub](Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", c.TTL(), DefaultTTL)
	}
	c.SetCount("c1", count{Total: 1})
	if _, ok := c.GetCount("c1"); !ok {
		t.Error("expected hit with wall clock")
	}
}

func TestCount_FreshWithinTTL(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	c.SetCount("c1", count{Total: 42})
	clk.Advance(time.Minute) // exactly TTL is still fresh
	got, ok := c.GetCount("c1")
	if !ok {
		t.Fatal("expected hit at exactly TTL")
	}
	if got.Total != 42 {
		t.Errorf("Total = %d, want 42", got.Total)
	}
}

func TestCount_ExpiredIsRemoved(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	c.SetCount("c1", count{Total: 42})
	clk.Advance(time.Minute + time.Millisecond)
	if _, ok := c.GetCount("c1"); ok {
		t.Fatal("expected miss after TTL")
	}
	if counts, _ := c.Len(); counts != 0 {
		t.Errorf("counts = %d after expired read, want 0", counts)
	}
	if st := c.Stats(); st.Expirations != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v, want 1 expiration and 1 miss", st)
	}
}

func TestCount_OverwriteResetsAge(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	c.SetCount("c1", count{Total: 1})
	clk.Advance(50 * time.Second)
	c.SetCount("c1", count{Total: 2})
	clk.Advance(50 * time.Second)

	got, ok := c.GetCount("c1")
	if !ok || got.Total != 2 {
		t.Errorf("GetCount = %+v, %v; want {2}, true", got, ok)
	}
}

func TestRelationship_ThreeStates(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, Options{})

	if l := c.GetUserRelationship("u1", "c1"); l.State != Unknown || l.Known() {
		t.Errorf("fresh cache: state = %v, want unknown", l.State)
	}

	c.SetUserRelationshipAbsent("u1", "c1")
	l := c.GetUserRelationship("u1", "c1")
	if l.State != Absent || !l.Known() {
		t.Errorf("after absent set: state = %v, want absent", l.State)
	}
	if _, ok := l.Get(); ok {
		t.Error("absent lookup should not report a value")
	}

	c.SetUserRelationship("u1", "c1", sub{ID: "s1"})
	l = c.GetUserRelationship("u1", "c1")
	v, ok := l.Get()
	if l.State != Present || !ok || v.ID != "s1" {
		t.Errorf("after set: lookup = %+v, want present s1", l)
	}

	st := c.Stats()
	if st.Misses != 1 || st.AbsentHits != 1 || st.Hits != 1 {
		t.Errorf("stats = %+v, want 1 miss, 1 absent hit, 1 hit", st)
	}
}

func TestRelationship_ExpiredRevertsToUnknown(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	c.SetUserRelationshipAbsent("u1", "c1")
	c.SetUserRelationship("u2", "c1", sub{ID: "s2"})
	clk.Advance(2 * time.Minute)

	for _, subject := range []string{"u1", "u2"} {
		if l := c.GetUserRelationship(subject, "c1"); l.State != Unknown {
			t.Errorf("%s: state = %v after TTL, want unknown", subject, l.State)
		}
	}
	if _, rels := c.Len(); rels != 0 {
		t.Errorf("relationships = %d after expired reads, want 0", rels)
	}
}

func TestInvalidateEntity_FansOut(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, Options{})

	c.SetCount("c1", count{Total: 3})
	c.SetCount("c2", count{Total: 7})
	c.SetUserRelationship("u1", "c1", sub{ID: "a"})
	c.SetUserRelationshipAbsent("u2", "c1")
	c.SetUserRelationship("u3", "c1", sub{ID: "b"})
	c.SetUserRelationship("u1", "c2", sub{ID: "c"})

	c.InvalidateEntity("c1")

	if _, ok := c.GetCount("c1"); ok {
		t.Error("c1 count should be gone")
	}
	for _, subject := range []string{"u1", "u2", "u3"} {
		if l := c.GetUserRelationship(subject, "c1"); l.State != Unknown {
			t.Errorf("%s:c1 state = %v, want unknown", subject, l.State)
		}
	}
	if got, ok := c.GetCount("c2"); !ok || got.Total != 7 {
		t.Errorf("c2 count = %+v, %v; want untouched", got, ok)
	}
	if l := c.GetUserRelationship("u1", "c2"); l.State != Present {
		t.Errorf("u1:c2 state = %v, want present", l.State)
	}
	if counts, rels := c.Len(); counts != 1 || rels != 1 {
		t.Errorf("Len = %d, %d; want 1, 1", counts, rels)
	}
}

func TestInvalidateEntity_NoEntries(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, Options{})
	c.SetCount("c2", count{Total: 1})

	c.InvalidateEntity("missing")

	if _, ok := c.GetCount("c2"); !ok {
		t.Error("unrelated entry should survive")
	}
}

func TestInvalidateUserRelationship_DropsCount(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, Options{})

	c.SetCount("c1", count{Total: 3})
	c.SetUserRelationship("u1", "c1", sub{ID: "a"})
	c.SetUserRelationship("u2", "c1", sub{ID: "b"})

	c.InvalidateUserRelationship("u1", "c1")

	if l := c.GetUserRelationship("u1", "c1"); l.State != Unknown {
		t.Errorf("u1:c1 state = %v, want unknown", l.State)
	}
	if _, ok := c.GetCount("c1"); ok {
		t.Error("count should be invalidated with the relationship")
	}
	if l := c.GetUserRelationship("u2", "c1"); l.State != Present {
		t.Errorf("u2:c1 state = %v, want present", l.State)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, Options{})

	c.SetCount("c1", count{Total: 1})
	c.SetUserRelationship("u1", "c1", sub{})
	c.SetUserRelationshipAbsent("u2", "c2")

	c.Clear()

	if counts, rels := c.Len(); counts != 0 || rels != 0 {
		t.Errorf("Len = %d, %d after Clear; want 0, 0", counts, rels)
	}
	if _, ok := c.GetCount("c1"); ok {
		t.Error("count survived Clear")
	}
	if l := c.GetUserRelationship("u2", "c2"); l.State != Unknown {
		t.Errorf("state = %v after Clear, want unknown", l.State)
	}
}

func TestOnInvalidate(t *testing.T) {
	t.Parallel()

	var got []Invalidation
	c, _ := newTestCache(t, Options{OnInvalidate: func(inv Invalidation) {
		got = append(got, inv)
	}})

	c.InvalidateEntity("c1")
	c.InvalidateUserRelationship("u1", "c2")
	c.Clear()
	c.Apply(Invalidation{Op: OpEntity, EntityID: "c3"}) // replay does not echo

	want := []Invalidation{
		{Op: OpEntity, EntityID: "c1"},
		{Op: OpRelationship, SubjectID: "u1", EntityID: "c2"},
		{Op: OpClear},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if st := c.Stats(); st.Invalidations != 4 {
		t.Errorf("Invalidations = %d, want 4", st.Invalidations)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		inv       Invalidation
		wantCount bool // c1 count survives
		wantU1    State
		wantU2    State
	}{
		{name: "entity", inv: Invalidation{Op: OpEntity, EntityID: "c1"}, wantU1: Unknown, wantU2: Unknown},
		{name: "relationship", inv: Invalidation{Op: OpRelationship, SubjectID: "u1", EntityID: "c1"}, wantU1: Unknown, wantU2: Absent},
		{name: "clear", inv: Invalidation{Op: OpClear}, wantU1: Unknown, wantU2: Unknown},
		{name: "unknown op ignored", inv: Invalidation{Op: "bogus", EntityID: "c1"}, wantCount: true, wantU1: Present, wantU2: Absent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestCache(t, Options{})
			c.SetCount("c1", count{Total: 2})
			c.SetUserRelationship("u1", "c1", sub{ID: "a"})
			c.SetUserRelationshipAbsent("u2", "c1")

			c.Apply(tt.inv)

			if _, ok := c.GetCount("c1"); ok != tt.wantCount {
				t.Errorf("count present = %v, want %v", ok, tt.wantCount)
			}
			if s := c.GetUserRelationship("u1", "c1").State; s != tt.wantU1 {
				t.Errorf("u1 state = %v, want %v", s, tt.wantU1)
			}
			if s := c.GetUserRelationship("u2", "c1").State; s != tt.wantU2 {
				t.Errorf("u2 state = %v, want %v", s, tt.wantU2)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	c.SetCount("old", count{})
	c.SetUserRelationship("u1", "old", sub{})
	c.SetUserRelationshipAbsent("u2", "old")
	clk.Advance(40 * time.Second)
	c.SetCount("new", count{})
	c.SetUserRelationship("u1", "new", sub{})
	clk.Advance(40 * time.Second)

	if n := c.Sweep(); n != 3 {
		t.Errorf("Sweep removed %d, want 3", n)
	}
	if counts, rels := c.Len(); counts != 1 || rels != 1 {
		t.Errorf("Len = %d, %d after Sweep; want 1, 1", counts, rels)
	}
	if l := c.GetUserRelationship("u1", "new"); l.State != Present {
		t.Errorf("fresh entry state = %v, want present", l.State)
	}
	if n := c.Sweep(); n != 0 {
		t.Errorf("second Sweep removed %d, want 0", n)
	}
	if st := c.Stats(); st.Expirations != 3 {
		t.Errorf("Expirations = %d, want 3", st.Expirations)
	}
}

func TestWallClock_ExpiredReadIsCounted(t *testing.T) {
	t.Parallel()
	c, err := New[count, sub](Options{Name: "wall", TTL: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.SetCount("c1", count{Total: 1})
	c.SetUserRelationshipAbsent("u1", "c1")
	time.Sleep(120 * time.Millisecond)

	if _, ok := c.GetCount("c1"); ok {
		t.Error("expected count miss after TTL")
	}
	if l := c.GetUserRelationship("u1", "c1"); l.State != Unknown {
		t.Errorf("state = %v, want unknown", l.State)
	}
	if counts, rels := c.Len(); counts != 0 || rels != 0 {
		t.Errorf("Len = %d, %d after expired reads; want 0, 0", counts, rels)
	}
	if st := c.Stats(); st.Expirations != 2 || st.Misses != 2 {
		t.Errorf("stats = %+v, want 2 expirations and 2 misses", st)
	}
}

func TestWallClock_SweepRemovesExpired(t *testing.T) {
	t.Parallel()
	c, err := New[count, sub](Options{Name: "wall", TTL: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.SetCount("c1", count{Total: 1})
	c.SetUserRelationship("u1", "c1", sub{ID: "u1"})
	time.Sleep(120 * time.Millisecond)

	if n := c.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if counts, rels := c.Len(); counts != 0 || rels != 0 {
		t.Errorf("Len = %d, %d after Sweep; want 0, 0", counts, rels)
	}
	if st := c.Stats(); st.Expirations != 2 {
		t.Errorf("Expirations = %d, want 2", st.Expirations)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Unknown: "unknown", Absent: "absent", Present: "present", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, Options{TTL: time.Minute})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject := fmt.Sprintf("u%d", i)
			for j := range 200 {
				entity := fmt.Sprintf("c%d", j%10)
				c.SetCount(entity, count{Total: int64(j)})
				c.SetUserRelationship(subject, entity, sub{ID: subject})
				c.GetCount(entity)
				c.GetUserRelationship(subject, entity)
				if j%25 == 0 {
					c.InvalidateEntity(entity)
				}
				if j%50 == 0 {
					c.Sweep()
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			clk.Advance(5 * time.Second)
		}
	}()
	wg.Wait()

	c.Clear()
	if counts, rels := c.Len(); counts != 0 || rels != 0 {
		t.Errorf("Len = %d, %d after Clear; want 0, 0", counts, rels)
	}
}
