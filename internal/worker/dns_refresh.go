package worker

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// Refresher is a resolver cache with a refresh pass, such as *dnscache.Resolver.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefresher periodically re-resolves cached backend hostnames and drops
// entries not used since the previous pass.
type DNSRefresher struct {
	resolver Refresher
	interval time.Duration
	clock    clock.Clock
}

// NewDNSRefresher creates a refresher. A nil clk selects the wall clock.
func NewDNSRefresher(resolver Refresher, interval time.Duration, clk clock.Clock) *DNSRefresher {
	if clk == nil {
		clk = clock.WallClock
	}
	return &DNSRefresher{resolver: resolver, interval: interval, clock: clk}
}

// Name returns the worker identifier.
func (w *DNSRefresher) Name() string { return "dns_refresh" }

// Run refreshes every interval until ctx is cancelled.
func (w *DNSRefresher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.interval):
			w.resolver.Refresh(true)
		}
	}
}
