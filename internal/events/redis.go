package events

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "reposcout:phase:"

func channelName(requestID string) string {
	return channelPrefix + requestID
}

// RedisBus publishes phase events over Redis pub/sub so every API instance
// can stream them.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to the Redis server at url (redis://...).
func NewRedisBus(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, e PhaseEvent) error {
	raw, err := e.Marshal()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelName(e.RequestID), raw).Err(); err != nil {
		return fmt.Errorf("publish phase event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, requestID string) (<-chan PhaseEvent, error) {
	sub := b.client.Subscribe(ctx, channelName(requestID))
	// Receive blocks until the subscription is confirmed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe phase events: %w", err)
	}

	out := make(chan PhaseEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				e, err := UnmarshalPhaseEvent([]byte(msg.Payload))
				if err != nil {
					log.Printf("events: dropping malformed message on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
