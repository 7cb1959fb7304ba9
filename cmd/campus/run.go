package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/dnscache"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/app"
	"github.com/campushq/campus/internal/auth"
	"github.com/campushq/campus/internal/backend"
	"github.com/campushq/campus/internal/circuitbreaker"
	"github.com/campushq/campus/internal/config"
	"github.com/campushq/campus/internal/invalidation"
	"github.com/campushq/campus/internal/ratelimit"
	"github.com/campushq/campus/internal/relcache"
	"github.com/campushq/campus/internal/server"
	"github.com/campushq/campus/internal/storage/sqlite"
	"github.com/campushq/campus/internal/telemetry"
	"github.com/campushq/campus/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	slog.Info("starting campus", "version", version, "addr", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if t := cfg.Telemetry.Tracing; t.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, t.Endpoint, t.SampleRate, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Invalidation bus
	var bus *invalidation.RedisBus
	if r := cfg.Cache.Redis; r.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		defer client.Close()
		bus = invalidation.NewRedisBus(client, r.Channel)
	}

	// Caches
	subCache, err := newCache[campus.SubscriptionCount, campus.Subscription]("subscriptions", cfg.Cache, bus, metrics)
	if err != nil {
		return err
	}
	reacCache, err := newCache[campus.ReactionCount, campus.Reaction]("reactions", cfg.Cache, bus, metrics)
	if err != nil {
		return err
	}

	// Backends
	var resolver *dnscache.Resolver
	if cfg.Backends.DNSCacheRefresh > 0 {
		resolver = &dnscache.Resolver{}
	}
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	clients := newBackendFactory(ctx, cfg.Backends, backend.NewTransport(resolver),
		backend.Options{Breakers: breakers, Metrics: metrics})
	community := backend.NewCommunityClient(clients.client(backend.ServiceCommunity, cfg.Backends.Community))
	profiles := backend.NewProfilesClient(clients.client(backend.ServiceProfiles, cfg.Backends.Profiles))
	competitive := backend.NewCompetitiveClient(clients.client(backend.ServiceCompetitive, cfg.Backends.Competitive))

	// Wire services
	recorder := worker.NewActivityRecorder(store, metrics, nil)
	subscriptions := app.NewSubscriptionService(community, subCache, recorder)
	reactions := app.NewReactionService(community, reacCache, recorder)
	leaderboard := app.NewLeaderboardService(competitive, profiles, app.LeaderboardOptions{
		MaxPageSize:      cfg.Leaderboard.MaxPageSize,
		FanoutLimit:      cfg.Leaderboard.FanoutLimit,
		ProfileCacheSize: cfg.Leaderboard.ProfileCacheSize,
		ProfileCacheTTL:  cfg.Leaderboard.ProfileCacheTTL,
	})
	limiter := ratelimit.NewRegistry(cfg.RateLimits.MutationsPerMinute, nil)

	// Background workers
	runner := worker.NewRunner(
		recorder,
		worker.NewCacheSweeper(cfg.Cache.SweepInterval, nil, subCache, reacCache, limiter),
	)
	if cfg.Activity.Retention > 0 {
		runner.Add(worker.NewActivityRetention(store, cfg.Activity.Retention, 0, nil))
	}
	if resolver != nil {
		runner.Add(worker.NewDNSRefresher(resolver, cfg.Backends.DNSCacheRefresh, nil))
	}
	if bus != nil {
		runner.Add(bus)
	}
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(workerCtx) }()

	// Create HTTP server
	handler := server.New(server.Deps{
		Auth:           auth.NewEdgeAuth(cfg.Auth.EdgeSecret),
		Subscriptions:  subscriptions,
		Reactions:      reactions,
		Leaderboard:    leaderboard,
		Activity:       store,
		Caches:         []server.CacheAdmin{subCache, reacCache},
		Breakers:       breakers,
		RateLimiter:    limiter,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		ReadyCheck:     store.Ping,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("campus ready", "addr", cfg.Server.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		return fmt.Errorf("worker: %w", err)
	}

	// Shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Workers stop after the server so in-flight mutations are still recorded.
	stopWorkers()
	if err := <-workerErr; err != nil {
		slog.Warn("worker exited with error", "error", err)
	}

	slog.Info("campus stopped")
	return nil
}

// newCache builds a relationship cache, hooks it to the bus and exports its
// counters. bus and metrics may be nil.
func newCache[C, R any](name string, cfg config.CacheConfig, bus *invalidation.RedisBus, metrics *telemetry.Metrics) (*relcache.Cache[C, R], error) {
	opts := relcache.Options{Name: name, TTL: cfg.TTL, MaxEntries: cfg.MaxEntries}
	if bus != nil {
		opts.OnInvalidate = bus.Hook(name)
	}
	c, err := relcache.New[C, R](opts)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	if bus != nil {
		bus.Register(c)
	}
	if metrics != nil {
		metrics.RegisterCache(name, func() telemetry.CacheStats {
			s := c.Stats()
			return telemetry.CacheStats{
				Hits:          s.Hits,
				AbsentHits:    s.AbsentHits,
				Misses:        s.Misses,
				Expirations:   s.Expirations,
				Invalidations: s.Invalidations,
			}
		})
	}
	return c, nil
}

// backendFactory builds backend clients sharing one transport, breaker
// registry and IAM token source.
type backendFactory struct {
	transport *http.Transport
	oauth     http.RoundTripper // nil = per-service static tokens
	opts      backend.Options
}

func newBackendFactory(ctx context.Context, cfg config.BackendsConfig, transport *http.Transport, opts backend.Options) backendFactory {
	f := backendFactory{transport: transport, opts: opts}
	if o := cfg.OAuth; o != nil {
		f.oauth = backend.NewOAuthTransport(ctx, transport, backend.OAuthConfig{
			TokenURL:     o.TokenURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
		})
	}
	return f
}

func (f backendFactory) client(service string, e config.BackendEntry) *backend.Client {
	var rt http.RoundTripper = f.transport
	switch {
	case f.oauth != nil:
		rt = f.oauth
	case e.Token != "":
		rt = &backend.TokenTransport{Token: e.Token, Base: f.transport}
	}
	return backend.NewClient(service, e.BaseURL, &http.Client{Transport: rt, Timeout: e.Timeout}, f.opts)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}
