package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/realtime"
)

// realtimeChannel is the Redis pub/sub channel that fans envelopes out
// to every running node.
const realtimeChannel = "realtime:notifications"

var _ realtime.Broker = (*PubSubBroker)(nil)

// PubSubBroker bridges realtime envelopes between nodes over Redis
// pub/sub. Delivery is best effort: a message published while a
// subscriber is disconnected is lost, which is acceptable because the
// in-app feed remains the durable record.
type PubSubBroker struct {
	client *goredis.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs []*goredis.PubSub
}

func NewPubSubBroker(client *goredis.Client, logger *zap.Logger) (*PubSubBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PubSubBroker{
		client: client,
		logger: logger,
	}, nil
}

func (b *PubSubBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, realtimeChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish realtime envelope: %w", err)
	}
	return nil
}

func (b *PubSubBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := b.client.Subscribe(ctx, realtimeChannel)

	// Confirm the subscription before handing out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", realtimeChannel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Warn("dropping realtime envelope: subscriber backlog full")
				}
			}
		}
	}()

	return out, nil
}

func (b *PubSubBroker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
