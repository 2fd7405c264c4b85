package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

type Registry struct {
	mutex     sync.RWMutex
	breakers  map[Key]*CircuitBreaker
	settings  Settings
	clock     clock.Clock
	listeners []func(Transition)
}

func NewRegistry(settings Settings, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Registry{
		breakers: make(map[Key]*CircuitBreaker),
		settings: settings,
		clock:    clk,
	}
}

// OnTransition registers fn to be called after every state change of any
// breaker. Register listeners before dispatching starts.
func (r *Registry) OnTransition(fn func(Transition)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Breaker returns the breaker for (provider, engine), creating it on first use.
func (r *Registry) Breaker(provider string, e engine.Engine) *CircuitBreaker {
	key := Key{Provider: provider, Engine: e}

	r.mutex.RLock()
	cb, exists := r.breakers[key]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[key]; exists {
		return cb
	}

	cb = NewCircuitBreaker(key, r.settings, r.clock)
	cb.notify = r.dispatch
	r.breakers[key] = cb
	return cb
}

// Snapshot copies every breaker record, sorted by provider then engine.
// Each breaker is read under its own lock only.
func (r *Registry) Snapshot() []Record {
	r.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mutex.RUnlock()

	records := make([]Record, 0, len(breakers))
	for _, cb := range breakers {
		records = append(records, cb.Snapshot())
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Provider != records[j].Provider {
			return records[i].Provider < records[j].Provider
		}
		return records[i].Engine < records[j].Engine
	})
	return records
}

// Stats maps every known key to its current state.
func (r *Registry) Stats() map[Key]State {
	stats := make(map[Key]State)
	for _, rec := range r.Snapshot() {
		stats[Key{Provider: rec.Provider, Engine: rec.Engine}] = rec.State
	}
	return stats
}

func (r *Registry) Settings() Settings {
	return r.settings
}

func (r *Registry) dispatch(t Transition) {
	r.mutex.RLock()
	listeners := r.listeners
	r.mutex.RUnlock()

	for _, fn := range listeners {
		fn(t)
	}
}
