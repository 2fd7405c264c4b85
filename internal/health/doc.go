// Package health derives a system status from recent fetch traces and the
// circuit breaker registry. The status is recomputed on every query; the
// monitor loop only reports changes.
package health
