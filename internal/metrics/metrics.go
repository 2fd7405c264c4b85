package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	fetches       map[engine.Engine]*EngineMetrics
	attempts      map[string]int64
	successes     map[string]int64
	shortCircuits map[string]int64
	bytes         map[string]int64
	failures      map[string]map[failure.Category]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	breakers      map[string]circuitbreaker.State
	startTime     time.Time
}

type Snapshot struct {
	TotalFetches  int64                           `json:"total_fetches"`
	TotalAttempts int64                           `json:"total_attempts"`
	DroppedEvents int64                           `json:"dropped_events"`
	Uptime        time.Duration                   `json:"uptime"`
	Engines       map[engine.Engine]EngineMetrics `json:"engines"`
	Providers     map[string]ProviderMetrics      `json:"providers"`
	Breakers      map[string]circuitbreaker.State `json:"breakers"`
	Strategy      string                          `json:"strategy"`
}

type EngineMetrics struct {
	Fetches   int64 `json:"fetches"`
	Failures  int64 `json:"failures"`
	Fallbacks int64 `json:"fallbacks"`
}

type ProviderMetrics struct {
	Attempts      int64                      `json:"attempts"`
	Successes     int64                      `json:"successes"`
	ShortCircuits int64                      `json:"short_circuits"`
	Bytes         int64                      `json:"bytes"`
	Failures      map[failure.Category]int64 `json:"failures"`
	AvgResponse   time.Duration              `json:"avg_response"`
	P50Response   time.Duration              `json:"p50_response"`
	P95Response   time.Duration              `json:"p95_response"`
	P99Response   time.Duration              `json:"p99_response"`
	StatusCodes   map[int]int64              `json:"status_codes"`
}

func (m *Metrics) RecordFetch(e engine.Engine, success, fallback bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	em := m.fetches[e]
	if em == nil {
		em = &EngineMetrics{}
		m.fetches[e] = em
	}
	em.Fetches++
	if !success {
		em.Failures++
	}
	if fallback {
		em.Fallbacks++
	}
}

// RecordAttempt folds one provider attempt into the counters. Short-circuits
// are counted separately and never touch latency or failure counts.
func (m *Metrics) RecordAttempt(event MetricEvent) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	p := event.Provider
	if event.Category == failure.CircuitOpen {
		m.shortCircuits[p]++
		return
	}

	m.attempts[p]++
	m.bytes[p] += int64(event.Bytes)

	if event.Success {
		m.successes[p]++
	} else {
		if m.failures[p] == nil {
			m.failures[p] = make(map[failure.Category]int64)
		}
		m.failures[p][event.Category]++
	}

	m.responseTimes[p] = append(m.responseTimes[p], event.Duration)
	if len(m.responseTimes[p]) > maxSamples {
		m.responseTimes[p] = m.responseTimes[p][1:]
	}

	if event.StatusCode != 0 {
		if m.statusCodes[p] == nil {
			m.statusCodes[p] = make(map[int]int64)
		}
		m.statusCodes[p][event.StatusCode]++
	}
}

func (m *Metrics) UpdateBreaker(key circuitbreaker.Key, state circuitbreaker.State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakers[key.String()] = state
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Engines:   make(map[engine.Engine]EngineMetrics, len(m.fetches)),
		Providers: make(map[string]ProviderMetrics),
		Breakers:  make(map[string]circuitbreaker.State, len(m.breakers)),
		Strategy:  strategy,
	}

	for e, em := range m.fetches {
		snap.TotalFetches += em.Fetches
		snap.Engines[e] = *em
	}

	for k, s := range m.breakers {
		snap.Breakers[k] = s
	}

	// Collect all providers seen by any counter
	all := make(map[string]bool)
	for p := range m.attempts {
		all[p] = true
	}
	for p := range m.shortCircuits {
		all[p] = true
	}

	for p := range all {
		snap.TotalAttempts += m.attempts[p]

		pm := ProviderMetrics{
			Attempts:      m.attempts[p],
			Successes:     m.successes[p],
			ShortCircuits: m.shortCircuits[p],
			Bytes:         m.bytes[p],
			Failures:      copyMap(m.failures[p]),
			StatusCodes:   copyMap(m.statusCodes[p]),
		}

		durations := m.responseTimes[p]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			pm.AvgResponse = average(sorted)
			pm.P50Response = percentile(sorted, 0.50)
			pm.P95Response = percentile(sorted, 0.95)
			pm.P99Response = percentile(sorted, 0.99)
		}

		snap.Providers[p] = pm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		fetches:       make(map[engine.Engine]*EngineMetrics),
		attempts:      make(map[string]int64),
		successes:     make(map[string]int64),
		shortCircuits: make(map[string]int64),
		bytes:         make(map[string]int64),
		failures:      make(map[string]map[failure.Category]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		breakers:      make(map[string]circuitbreaker.State),
		startTime:     time.Now(),
	}
}

func copyMap[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
