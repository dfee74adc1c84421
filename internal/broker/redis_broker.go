package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel hero events travel on
const Channel = "heroes:events"

// RedisBroker implements HeroBroker over Redis pub/sub so every API node
// sees every change.
type RedisBroker struct {
	client *redis.Client
}

// OpenRedis parses redisURL and pings the server
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisBroker uses client without taking ownership of it
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (r *RedisBroker) Publish(ctx context.Context, event HeroEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, Channel, data).Err()
}

// Subscribe returns once the subscription is confirmed by the server
func (r *RedisBroker) Subscribe(ctx context.Context) (<-chan HeroEvent, error) {
	pubsub := r.client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	out := make(chan HeroEvent, subscriberBuffer)
	in := pubsub.Channel()

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case redisMsg, ok := <-in:
				if !ok {
					return
				}

				var event HeroEvent
				if err := json.Unmarshal([]byte(redisMsg.Payload), &event); err != nil {
					logger.Log.Warn("Dropping undecodable hero event", zap.Error(err))
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the owner of the client closes it
func (r *RedisBroker) Close() error {
	return nil
}
