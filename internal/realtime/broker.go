package realtime

import "context"

// Broker is the shared pub/sub mechanism used to fan realtime events
// out across processes. It holds no connection state, only a
// forwarding subscription.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe returns a channel of raw payloads published by any
	// process, including this one.
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}
