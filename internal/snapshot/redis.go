package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

// RedisSink stores the snapshot as a Redis list of JSON traces, replacing
// the previous list in one transaction.
type RedisSink struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisSink(client redis.UniversalClient, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl}
}

func (r *RedisSink) Name() string {
	return "redis:" + r.key
}

func (r *RedisSink) Write(ctx context.Context, traces []telemetry.Trace) error {
	values := make([]any, 0, len(traces))
	for i := range traces {
		b, err := json.Marshal(traces[i])
		if err != nil {
			return fmt.Errorf("marshal trace %s: %w", traces[i].ID, err)
		}
		values = append(values, b)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.RPush(ctx, r.key, values...)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis snapshot: %w", err)
	}
	return nil
}
