package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisTopic = "realtime:events"

type RedisBus struct {
	client *redis.Client
	topic  string
	logger *slog.Logger
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client, topic string, logger *slog.Logger) *RedisBus {
	if topic == "" {
		topic = DefaultRedisTopic
	}
	return &RedisBus{client: client, topic: topic, logger: logger.With("component", "fanout.redis")}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.topic, data).Err()
}

func (b *RedisBus) Run(ctx context.Context, d Deliverer) error {
	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()

	// wait for the subscription to be confirmed before reading
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.logger.Info("listening for events", "topic", b.topic)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed event", "error", err)
				continue
			}
			d.Deliver(ev.Channel, ev.Name, ev.Payload)
		}
	}
}
