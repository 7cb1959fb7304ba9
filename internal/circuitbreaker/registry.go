package circuitbreaker

import (
	"maps"
	"sync"
	"time"
)

// Registry manages one Breaker per backend service.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates a registry whose breakers share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// Get returns the breaker for service, or nil if none exists.
func (r *Registry) Get(service string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[service]
}

// GetOrCreate returns the breaker for service, creating one if needed.
func (r *Registry) GetOrCreate(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b = NewBreaker(r.config)
	r.breakers[service] = b
	return b
}

// States returns the current state of every breaker keyed by service.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	snapshot := maps.Clone(r.breakers)
	r.mu.RUnlock()

	out := make(map[string]State, len(snapshot))
	for name, b := range snapshot {
		out[name] = b.State()
	}
	return out
}

// EvictStale removes breakers not used since cutoff.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for name, b := range r.breakers {
		if b.LastUsed().Before(cutoff) {
			delete(r.breakers, name)
			evicted++
		}
	}
	return evicted
}
