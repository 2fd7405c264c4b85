package provider

import (
	"context"
	"sync"
	"time"
)

const ewmaAlpha = 0.2

// Tracked wraps a Provider with in-flight request counting and an
// exponentially weighted moving average of successful response times.
type Tracked struct {
	Provider
	weight         int
	mutex          sync.Mutex
	activeRequests int
	ewmaResponse   time.Duration
	hasEWMA        bool
}

// Track wraps p. Weights below one are raised to one.
func Track(p Provider, weight int) *Tracked {
	if weight < 1 {
		weight = 1
	}
	return &Tracked{Provider: p, weight: weight}
}

// Weight is the configured share used by weighted ordering.
func (t *Tracked) Weight() int {
	return t.weight
}

func (t *Tracked) Fetch(ctx context.Context, req Request) (*Response, error) {
	t.increment()
	defer t.decrement()

	start := time.Now()
	res, err := t.Provider.Fetch(ctx, req)
	if err == nil {
		t.RecordResponse(time.Since(start))
	}
	return res, err
}

// ActiveRequests returns the number of calls currently in flight.
func (t *Tracked) ActiveRequests() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.activeRequests
}

// RecordResponse folds the latest duration into the EWMA.
func (t *Tracked) RecordResponse(d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.hasEWMA {
		t.ewmaResponse = d
		t.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	t.ewmaResponse = time.Duration((1-ewmaAlpha)*float64(t.ewmaResponse) + ewmaAlpha*float64(d))
}

// EWMATime returns the smoothed response time, or 0 before the first success.
func (t *Tracked) EWMATime() time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.ewmaResponse
}

func (t *Tracked) increment() {
	t.mutex.Lock()
	t.activeRequests++
	t.mutex.Unlock()
}

func (t *Tracked) decrement() {
	t.mutex.Lock()
	if t.activeRequests > 0 {
		t.activeRequests--
	}
	t.mutex.Unlock()
}
