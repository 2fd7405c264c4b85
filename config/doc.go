// Package config loads the orchestrator's configuration from YAML and the
// environment: server and logging settings, breaker and retry tuning, health
// thresholds, snapshot sinks, providers with their endpoints, and the asset
// classes that route symbols to providers.
package config
