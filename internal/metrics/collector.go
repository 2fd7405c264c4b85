package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

type EventType string

const (
	EventFetchCompleted   EventType = "fetch_completed"
	EventAttemptCompleted EventType = "attempt_completed"
	EventBreakerChanged   EventType = "breaker_changed"
)

type MetricEvent struct {
	Type         EventType
	Timestamp    time.Time
	Provider     string
	Engine       engine.Engine
	Duration     time.Duration
	StatusCode   int
	Bytes        int
	Success      bool
	Category     failure.Category
	Fallback     bool
	BreakerState circuitbreaker.State
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues an event without blocking. It reports false when the event was
// dropped because the buffer is full.
func (c *Collector) Emit(event MetricEvent) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case c.eventCh <- event:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// ObserveTrace emits an attempt event for a recorded trace.
func (c *Collector) ObserveTrace(t telemetry.Trace) {
	c.Emit(MetricEvent{
		Type:       EventAttemptCompleted,
		Timestamp:  t.StartedAt,
		Provider:   t.Provider,
		Engine:     t.Engine,
		Duration:   t.Duration,
		StatusCode: t.HTTPStatus,
		Bytes:      t.Bytes,
		Success:    t.Success,
		Category:   t.Category,
	})
}

// ObserveFetch emits the outcome of a whole dispatch.
func (c *Collector) ObserveFetch(e engine.Engine, t telemetry.Trace) {
	c.Emit(MetricEvent{
		Type:     EventFetchCompleted,
		Provider: t.Provider,
		Engine:   e,
		Success:  t.Success,
		Category: t.Category,
		Fallback: t.Fallback(),
	})
}

// ObserveTransition emits a breaker state change.
func (c *Collector) ObserveTransition(t circuitbreaker.Transition) {
	c.Emit(MetricEvent{
		Type:         EventBreakerChanged,
		Provider:     t.Key.Provider,
		Engine:       t.Key.Engine,
		BreakerState: t.To,
	})
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventFetchCompleted:
		c.metrics.RecordFetch(event.Engine, event.Success, event.Fallback)

	case EventAttemptCompleted:
		c.metrics.RecordAttempt(event)

	case EventBreakerChanged:
		c.metrics.UpdateBreaker(circuitbreaker.Key{Provider: event.Provider, Engine: event.Engine}, event.BreakerState)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	snap := c.metrics.Snapshot(strategy)
	snap.DroppedEvents = c.dropped.Load()
	return snap
}
