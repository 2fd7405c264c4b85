// Package dispatch walks an ordered provider list for one fetch. Each
// provider is guarded by its circuit breaker, transient failures are retried
// on the same provider with jittered exponential backoff, and every attempt
// is written to the telemetry buffer as a trace.
package dispatch
