package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDispatcher fans events out through a Redis pub/sub channel so every
// server process delivers them to its own subscribers. Local handlers run
// only from Start, once per received event, including events this process
// published itself.
type RedisDispatcher struct {
	client  *redis.Client
	channel string
	local   *inMemoryDispatcher
	logger  *zap.Logger
}

// NewRedisDispatcher builds a dispatcher bound to channel.
func NewRedisDispatcher(client *redis.Client, channel string, logger *zap.Logger) *RedisDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDispatcher{
		client:  client,
		channel: channel,
		local:   newLocalDispatcher(logger),
		logger:  logger,
	}
}

// Publish encodes the event onto the channel.
func (d *RedisDispatcher) Publish(ctx context.Context, event Event) error {
	stamp(&event)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local handler.
func (d *RedisDispatcher) Subscribe(name EventName, handler EventHandler) {
	d.local.Subscribe(name, handler)
}

// Start consumes the channel until ctx is cancelled.
func (d *RedisDispatcher) Start(ctx context.Context) error {
	sub := d.client.Subscribe(ctx, d.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.channel, err)
	}
	d.logger.Info("event backplane subscribed", zap.String("channel", d.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				d.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			_ = d.local.Publish(ctx, event)
		}
	}
}
