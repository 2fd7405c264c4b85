// Package circuitbreaker tracks failure state per (provider, engine) pair.
//
// A circuit breaker stops the dispatcher from hammering a failing provider.
// It has three states:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: provider failing, calls are short-circuited until the next probe time
//   - HALF-OPEN: exactly one probe call is in flight to test recovery
//
// Each failed probe doubles the open backoff, up to a configured maximum.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.DefaultSettings(), clock.Real{})
//	cb := registry.Breaker("polygon", engine.Quote)
//	if cb.Allow() {
//	    // call the provider...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
