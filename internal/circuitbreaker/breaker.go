package circuitbreaker

import (
	"sync"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Short-circuiting calls
	StateHalfOpen              // One probe in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "halfOpen"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Key identifies a breaker.
type Key struct {
	Provider string
	Engine   engine.Engine
}

func (k Key) String() string {
	return k.Provider + "/" + string(k.Engine)
}

// Settings are the tunables shared by every breaker in a registry.
type Settings struct {
	FailureThreshold int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		InitialBackoff:   30 * time.Second,
		MaxBackoff:       10 * time.Minute,
	}
}

// Record is a point-in-time copy of a breaker.
type Record struct {
	Provider            string        `json:"provider"`
	Engine              engine.Engine `json:"engine"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitzero"`
	NextProbeAt         time.Time     `json:"next_probe_at,omitzero"`
	Backoff             time.Duration `json:"backoff"`
}

// Transition describes a state change, reported to registry listeners.
type Transition struct {
	Key    Key
	From   State
	To     State
	Record Record
}

type CircuitBreaker struct {
	mutex       sync.Mutex
	key         Key
	settings    Settings
	clock       clock.Clock
	notify      func(Transition)
	state       State
	failures    int
	openedAt    time.Time
	nextProbeAt time.Time
	backoff     time.Duration
}

func NewCircuitBreaker(key Key, settings Settings, clk clock.Clock) *CircuitBreaker {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.InitialBackoff <= 0 {
		settings.InitialBackoff = DefaultSettings().InitialBackoff
	}
	if settings.MaxBackoff < settings.InitialBackoff {
		settings.MaxBackoff = settings.InitialBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CircuitBreaker{
		key:      key,
		settings: settings,
		clock:    clk,
		state:    StateClosed,
		backoff:  settings.InitialBackoff,
	}
}

// Allow reports whether a call may proceed. An open breaker whose probe time
// has passed moves to half-open and admits exactly one caller.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()

	switch cb.state {
	case StateClosed:
		cb.mutex.Unlock()
		return true
	case StateOpen:
		if cb.clock.Now().Before(cb.nextProbeAt) {
			cb.mutex.Unlock()
			return false
		}
		t := cb.transition(StateHalfOpen)
		cb.mutex.Unlock()
		cb.emit(t)
		return true
	default:
		cb.mutex.Unlock()
		return false
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()

	now := cb.clock.Now()
	cb.failures++

	var t *Transition
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.settings.FailureThreshold {
			cb.backoff = cb.settings.InitialBackoff
			cb.openedAt = now
			cb.nextProbeAt = now.Add(cb.backoff)
			t = cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.backoff = min(cb.backoff*2, cb.settings.MaxBackoff)
		cb.openedAt = now
		cb.nextProbeAt = now.Add(cb.backoff)
		t = cb.transition(StateOpen)
	}

	cb.mutex.Unlock()
	cb.emit(t)
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()

	cb.failures = 0
	var t *Transition
	if cb.state != StateClosed {
		cb.backoff = cb.settings.InitialBackoff
		cb.openedAt = time.Time{}
		cb.nextProbeAt = time.Time{}
		t = cb.transition(StateClosed)
	}

	cb.mutex.Unlock()
	cb.emit(t)
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Key() Key {
	return cb.key
}

func (cb *CircuitBreaker) Snapshot() Record {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.record()
}

// transition changes state and returns the event to emit once the lock is
// released. Callers hold the lock.
func (cb *CircuitBreaker) transition(to State) *Transition {
	from := cb.state
	cb.state = to
	return &Transition{Key: cb.key, From: from, To: to, Record: cb.record()}
}

func (cb *CircuitBreaker) record() Record {
	return Record{
		Provider:            cb.key.Provider,
		Engine:              cb.key.Engine,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		OpenedAt:            cb.openedAt,
		NextProbeAt:         cb.nextProbeAt,
		Backoff:             cb.backoff,
	}
}

func (cb *CircuitBreaker) emit(t *Transition) {
	if t == nil || cb.notify == nil {
		return
	}
	cb.notify(*t)
}
