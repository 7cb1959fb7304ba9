// Package circuitbreaker implements a per-service circuit breaker with a
// sliding-window error rate detector. While a backend service is failing,
// calls to it short-circuit instead of waiting on timeouts.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all requests through.
	StateClosed State = iota
	// StateOpen rejects all requests.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.50)
	MinSamples     int           // minimum requests before breaker can open
	WindowSeconds  int           // sliding window duration in seconds, max 60
	OpenTimeout    time.Duration // time in OPEN before a probe is let through
	Clock          clock.Clock   // nil = wall clock
}

// DefaultConfig returns defaults for internal backend services.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.50,
		MinSamples:     20,
		WindowSeconds:  30,
		OpenTimeout:    10 * time.Second,
	}
}

// bucket holds error and request counts for a 1-second slot.
type bucket struct {
	errors float64 // weighted error sum
	total  int
}

// slidingWindow is a fixed-size ring of 1-second buckets.
type slidingWindow struct {
	buckets  [60]bucket
	size     int   // active buckets
	head     int   // index of current bucket
	headTime int64 // unix seconds of head bucket
}

func newSlidingWindow(seconds int) slidingWindow {
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return slidingWindow{size: seconds}
}

// advance moves the head to nowSec, clearing buckets that fell out of the window.
func (w *slidingWindow) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

func (w *slidingWindow) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

// errorRate returns the weighted error rate and sample count across the window.
func (w *slidingWindow) errorRate(now time.Time) (rate float64, samples int) {
	w.advance(now.Unix())
	var errs float64
	for i := range w.size {
		errs += w.buckets[i].errors
		samples += w.buckets[i].total
	}
	if samples == 0 {
		return 0, 0
	}
	return errs / float64(samples), samples
}

func (w *slidingWindow) reset() {
	*w = newSlidingWindow(w.size)
}

// Breaker is a per-service circuit breaker state machine.
type Breaker struct {
	clock clock.Clock
	cfg   Config

	mu       sync.Mutex
	state    State
	window   slidingWindow
	openedAt time.Time
	lastUsed time.Time
	probing  bool // a half-open probe is in flight
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg Config) *Breaker {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Breaker{
		clock:    clk,
		cfg:      cfg,
		state:    StateClosed,
		window:   newSlidingWindow(cfg.WindowSeconds),
		lastUsed: clk.Now(),
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. After OpenTimeout an open
// breaker lets exactly one probe through.
func (b *Breaker) Allow() bool {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record classifies err and records the outcome.
func (b *Breaker) Record(err error) {
	if w := ClassifyError(err); w > 0 {
		b.RecordError(w)
		return
	}
	b.RecordSuccess()
}

// RecordSuccess records a successful request outcome.
func (b *Breaker) RecordSuccess() {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now
	b.window.record(0, now)

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.window.reset()
	}
}

// RecordError records a failed request with the given error weight.
func (b *Breaker) RecordError(weight float64) {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now
	b.window.record(weight, now)

	switch b.state {
	case StateClosed:
		rate, samples := b.window.errorRate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
	}
}

// LastUsed returns the time of last activity.
func (b *Breaker) LastUsed() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}
