// Package handler implements the HTTP surface of the fetch orchestrator:
// the fetch endpoint, the trace, breaker and health read views, and a
// websocket stream of live traces.
package handler
