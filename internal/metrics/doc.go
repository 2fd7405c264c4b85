// Package metrics collects fetch orchestration metrics.
//
// It uses a channel-based event pipeline to asynchronously aggregate:
//   - Fetch counts, failures and fallbacks per engine
//   - Provider attempts, successes and failures by category
//   - Short-circuited attempts per provider
//   - Attempt latency with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution and payload bytes
//   - Circuit breaker states
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the fetch path. Events are sent with non-blocking semantics; when
// the buffer is full the event is dropped and counted.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.ObserveTrace(trace)
//
//	snapshot := collector.Snapshot("priority")
//
// Exporter mirrors the same signals as Prometheus series on its own registry.
package metrics
