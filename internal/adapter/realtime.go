package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/realtime"
	"go.uber.org/zap"
)

// RealtimeAdapter delivers in-app notifications to live connections:
// locally through the registry, cross-process through the broker
// bridge. Realtime delivery is best effort: an unreachable recipient
// gets the persisted copy through the feed, so a missing connection or
// a dead broker is still a successful outcome.
type RealtimeAdapter struct {
	registry *realtime.Registry
	bridge   *realtime.Bridge
	logger   *zap.Logger

	onBrokerFailure func()
	onFanout        func()
}

func NewRealtimeAdapter(registry *realtime.Registry, bridge *realtime.Bridge, logger *zap.Logger) (*RealtimeAdapter, error) {
	if registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RealtimeAdapter{
		registry: registry,
		bridge:   bridge,
		logger:   logger,
	}, nil
}

// SetBrokerFailureHook installs a callback invoked when a broker
// publish fails, used for metrics.
func (a *RealtimeAdapter) SetBrokerFailureHook(fn func()) {
	a.onBrokerFailure = fn
}

// SetFanoutHook installs a callback invoked for every live connection
// a notification was written to, used for metrics.
func (a *RealtimeAdapter) SetFanoutHook(fn func()) {
	a.onFanout = fn
}

func (a *RealtimeAdapter) Channel() domain.Channel { return domain.ChannelInApp }

func (a *RealtimeAdapter) SupportsBatch() bool { return false }

func (a *RealtimeAdapter) SendBatch(ctx context.Context, notifications []domain.Notification) ([]Result, error) {
	return nil, fmt.Errorf("in-app channel does not support batching")
}

func (a *RealtimeAdapter) Send(ctx context.Context, n domain.Notification) Result {
	env := realtime.Envelope{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Category:       strings.ToLower(n.Category.String()),
		Title:          n.Title,
		Body:           n.Body,
		Link:           n.Link,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
	}

	delivered := a.registry.DeliverLocal(n.RecipientID, env)
	if a.onFanout != nil {
		for i := 0; i < delivered; i++ {
			a.onFanout()
		}
	}

	if a.bridge != nil {
		if err := a.bridge.Publish(ctx, env); err != nil {
			// Broker down degrades to local-only delivery; never
			// surfaces into the notification status.
			a.logger.Warn("realtime broker unavailable, delivered local-only",
				zap.String("notificationId", n.ID),
				zap.Int("localDelivered", delivered),
				zap.Error(err),
			)
			if a.onBrokerFailure != nil {
				a.onBrokerFailure()
			}
		}
	}

	return Success("")
}
