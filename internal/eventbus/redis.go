// Package eventbus publishes pipeline notifications over Redis so operator
// surfaces and downstream consumers can react without polling the database.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

const (
	SignalChannel = "channel:signals:new"
	SignalStream  = "signal_events"
)

type RedisEventBus struct {
	client *redis.Client
}

func NewRedisEventBus(client *redis.Client) (*RedisEventBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Connected to Redis")

	return &RedisEventBus{client: client}, nil
}

// PublishSignal notifies subscribers of a new signal on both the pubsub
// channel and the durable stream.
func (b *RedisEventBus) PublishSignal(ctx context.Context, signal *types.Signal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	if err := b.client.Publish(ctx, SignalChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: SignalStream,
		Values: map[string]interface{}{
			"id":        signal.ID,
			"agent_id":  signal.AgentID,
			"type":      "signal_generated",
			"timestamp": signal.CreatedAt.Format(time.RFC3339),
			"data":      string(data),
		},
	}).Err(); err != nil {
		return fmt.Errorf("failed to append signal event: %w", err)
	}

	log.Debug().
		Str("signal_id", signal.ID).
		Str("agent_id", signal.AgentID).
		Msg("Published signal")

	return nil
}
