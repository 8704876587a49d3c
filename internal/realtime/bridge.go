package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Envelope is the wire format for cross-process realtime fanout.
type Envelope struct {
	NotificationID string          `json:"notificationId"`
	RecipientID    string          `json:"recipientId"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Link           *string         `json:"link,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	// Origin is the publishing node; the bridge skips its own
	// envelopes since local delivery already happened.
	Origin string `json:"origin"`
}

// Bridge republishes realtime messages to the shared broker and feeds
// broker traffic into the local registry. Broker unavailability is
// best effort by design: a failed publish degrades to local-only
// delivery and never fails the notification.
type Bridge struct {
	broker   Broker
	registry *Registry
	logger   *zap.Logger
}

func NewBridge(broker Broker, registry *Registry, logger *zap.Logger) (*Bridge, error) {
	if registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bridge{
		broker:   broker,
		registry: registry,
		logger:   logger,
	}, nil
}

// Publish forwards an envelope to the broker so other processes can
// deliver to their local handles. Returns an error only for callers
// that want to count broker failures; delivery status must not depend
// on it.
func (b *Bridge) Publish(ctx context.Context, env Envelope) error {
	if b.broker == nil {
		return fmt.Errorf("broker is not configured")
	}

	env.Origin = b.registry.Node()
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime envelope: %w", err)
	}

	if err := b.broker.Publish(ctx, payload); err != nil {
		return fmt.Errorf("broker publish failed: %w", err)
	}
	return nil
}

// Start consumes the broker subscription until context cancellation,
// delivering matching envelopes to local handles. Messages for
// recipients with no local handle are ignored. The dispatch loop is
// single-threaded per process; DeliverLocal snapshots handles before
// writing.
func (b *Bridge) Start(ctx context.Context) error {
	if b.broker == nil {
		b.logger.Warn("realtime bridge disabled: no broker configured")
		<-ctx.Done()
		return nil
	}

	messages, err := b.broker.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("broker subscribe failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("broker subscription closed")
			}
			b.handlePayload(payload)
		}
	}
}

func (b *Bridge) handlePayload(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("dropping malformed realtime envelope", zap.Error(err))
		return
	}
	if env.Origin == b.registry.Node() {
		return
	}
	if !b.registry.HasLocal(env.RecipientID) {
		return
	}

	delivered := b.registry.DeliverLocal(env.RecipientID, env)
	b.logger.Debug("bridged realtime delivery",
		zap.String("recipientId", env.RecipientID),
		zap.String("notificationId", env.NotificationID),
		zap.Int("delivered", delivered),
	)
}
