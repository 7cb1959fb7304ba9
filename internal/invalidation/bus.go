// Package invalidation broadcasts cache invalidations between dashboard
// instances over redis pub/sub so that a mutation on one instance does not
// leave the others serving stale entries until TTL.
package invalidation

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/campushq/campus/internal/relcache"
)

const (
	// DefaultChannel is the pub/sub channel used when none is configured.
	DefaultChannel = "campus:cache:invalidations"

	outboxSize = 1024
)

// Message is the JSON wire form of one invalidation.
type Message struct {
	Origin    string      `json:"origin"`
	Cache     string      `json:"cache"`
	Op        relcache.Op `json:"op"`
	SubjectID string      `json:"subjectId,omitempty"`
	EntityID  string      `json:"entityId,omitempty"`
}

// Invalidation returns the cache-level form of m.
func (m Message) Invalidation() relcache.Invalidation {
	return relcache.Invalidation{Op: m.Op, SubjectID: m.SubjectID, EntityID: m.EntityID}
}

// Applier is a cache that accepts invalidations from other instances.
type Applier interface {
	Name() string
	Apply(relcache.Invalidation)
}

// publisher is the subset of *redis.Client used to send messages.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisBus publishes local invalidations and applies remote ones.
type RedisBus struct {
	client  *redis.Client
	pub     publisher
	channel string
	origin  string
	caches  map[string]Applier
	outbox  chan Message
}

// NewRedisBus returns a bus on channel. An empty channel selects DefaultChannel.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:  client,
		pub:     client,
		channel: channel,
		origin:  uuid.NewString(),
		caches:  make(map[string]Applier),
		outbox:  make(chan Message, outboxSize),
	}
}

// Name returns the worker identifier.
func (b *RedisBus) Name() string { return "invalidation_bus" }

// Origin returns the id this instance stamps on its messages.
func (b *RedisBus) Origin() string { return b.origin }

// Register makes a cache reachable by remote invalidations. It must be called
// before Run.
func (b *RedisBus) Register(c Applier) { b.caches[c.Name()] = c }

// Hook returns an invalidation hook for the cache named cache, suitable for
// relcache.Options.OnInvalidate.
func (b *RedisBus) Hook(cache string) func(relcache.Invalidation) {
	return func(inv relcache.Invalidation) { b.Publish(cache, inv) }
}

// Publish queues inv for broadcast. It never blocks; the message is dropped
// when the outbox is full.
func (b *RedisBus) Publish(cache string, inv relcache.Invalidation) {
	msg := Message{
		Origin:    b.origin,
		Cache:     cache,
		Op:        inv.Op,
		SubjectID: inv.SubjectID,
		EntityID:  inv.EntityID,
	}
	select {
	case b.outbox <- msg:
	default:
		slog.Warn("invalidation dropped, outbox full",
			slog.String("cache", cache),
			slog.String("op", string(inv.Op)),
		)
	}
}

// Run subscribes to the channel and publishes queued invalidations until ctx
// is cancelled. Redis failures are logged; go-redis reconnects the
// subscription on its own.
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil && ctx.Err() == nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "invalidation subscribe failed, retrying in background",
			slog.String("channel", b.channel),
			slog.String("error", err.Error()),
		)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.publishLoop(ctx)
	}()
	defer func() { <-done }()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handle(ctx, []byte(m.Payload))
		}
	}
}

func (b *RedisBus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			b.send(ctx, msg)
		}
	}
}

func (b *RedisBus) send(ctx context.Context, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "invalidation encode failed", slog.String("error", err.Error()))
		return
	}
	if err := b.pub.Publish(ctx, b.channel, payload).Err(); err != nil && ctx.Err() == nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "invalidation publish failed",
			slog.String("cache", msg.Cache),
			slog.String("op", string(msg.Op)),
			slog.String("error", err.Error()),
		)
	}
}

// handle applies a received payload to the named local cache. Messages from
// this instance and for unknown caches are ignored.
func (b *RedisBus) handle(ctx context.Context, payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "invalidation decode failed", slog.String("error", err.Error()))
		return
	}
	if msg.Origin == b.origin {
		return
	}
	c, ok := b.caches[msg.Cache]
	if !ok {
		return
	}
	c.Apply(msg.Invalidation())
	slog.LogAttrs(ctx, slog.LevelDebug, "remote invalidation applied",
		slog.String("cache", msg.Cache),
		slog.String("op", string(msg.Op)),
		slog.String("origin", msg.Origin),
	)
}
