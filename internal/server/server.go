// Package server implements the HTTP transport layer of the dashboard backend.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/app"
	"github.com/campushq/campus/internal/circuitbreaker"
	"github.com/campushq/campus/internal/ratelimit"
	"github.com/campushq/campus/internal/relcache"
	"github.com/campushq/campus/internal/storage"
	"github.com/campushq/campus/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// CacheAdmin is the operator view of one relationship cache.
type CacheAdmin interface {
	Name() string
	Len() (counts, relationships int)
	Stats() relcache.Stats
	Clear()
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth           campus.Authenticator
	Subscriptions  *app.SubscriptionService
	Reactions      *app.ReactionService
	Leaderboard    *app.LeaderboardService
	Activity       storage.ActivityStore    // nil = empty activity log
	Caches         []CacheAdmin             // exposed under /v1/admin/cache
	Breakers       *circuitbreaker.Registry // nil = no breaker report
	RateLimiter    *ratelimit.Registry      // nil = no rate limiting
	Metrics        *telemetry.Metrics       // nil = no request metrics
	MetricsHandler http.Handler             // nil = no /metrics endpoint
	ReadyCheck     ReadyChecker             // nil = always ready (for tests)
	AllowedOrigins []string                 // empty = no CORS headers
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// Reads
		r.Group(func(r chi.Router) {
			r.Use(requirePerm(campus.PermRead))
			r.Get("/communities/{communityID}/subscriptions/count", s.handleSubscriberCount)
			r.Get("/communities/{communityID}/subscription", s.handleGetSubscription)
			r.Get("/posts/{postID}/reactions/count", s.handleReactionCount)
			r.Get("/posts/{postID}/reaction", s.handleGetReaction)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/leaderboard/me", s.handleLeaderboardMe)
			r.Get("/activity", s.handleListActivity)
		})

		// Engagement mutations
		r.Group(func(r chi.Router) {
			r.Use(requirePerm(campus.PermEngage))
			r.Use(s.rateLimit)
			r.Put("/communities/{communityID}/subscription", s.handleSubscribe)
			r.Delete("/communities/{communityID}/subscription", s.handleUnsubscribe)
			r.Put("/posts/{postID}/reaction", s.handleReact)
			r.Delete("/posts/{postID}/reaction", s.handleUnreact)
		})

		// Moderation
		r.Group(func(r chi.Router) {
			r.Use(requirePerm(campus.PermModerate))
			r.Use(s.rateLimit)
			r.Delete("/communities/{communityID}", s.handleDeleteCommunity)
			r.Delete("/posts/{postID}", s.handleDeletePost)
		})

		// Operators
		r.Route("/admin", func(r chi.Router) {
			r.Use(requirePerm(campus.PermManageCache))
			r.Get("/cache", s.handleCacheStats)
			r.Post("/cache/purge", s.handleCachePurge)
			r.Get("/backends", s.handleBackendStates)
		})
	})

	return r
}

type server struct {
	deps Deps
}
