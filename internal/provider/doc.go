// Package provider implements clients for external market-data vendors and
// classifies every call outcome into a failure.Category.
//
// HTTPProvider talks to a REST vendor; Tracked wraps any Provider with
// in-flight and response time tracking used by ordering strategies.
package provider
