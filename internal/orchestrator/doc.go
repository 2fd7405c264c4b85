// Package orchestrator is the entry point for market-data fetches. It resolves
// the asset class, orders its providers, hands the request to the dispatcher
// and exposes the read-only telemetry, breaker and health views.
package orchestrator
