// Package snapshot periodically dumps the most recent traces as NDJSON to
// one or more sinks: a local file, a Redis list or a Kafka topic.
package snapshot
