package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/queue"
	"github.com/voxhub/notify-engine/internal/realtime"
	"github.com/voxhub/notify-engine/internal/repository"
)

const (
	defaultSchedulerScanInterval = 5 * time.Second
	defaultSchedulerScanLimit    = 100
	defaultConnectionTTL         = 90 * time.Second
)

// Scheduler periodically enqueues due scheduled notifications and
// sweeps stale realtime connections on the same tick.
type Scheduler struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	registry      *realtime.Registry
	logger        *zap.Logger
	interval      time.Duration
	limit         int
	connTTL       time.Duration
	now           func() time.Time
}

func NewScheduler(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	registry *realtime.Registry,
	interval time.Duration,
	limit int,
	connTTL time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerScanLimit
	}
	if connTTL <= 0 {
		connTTL = defaultConnectionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		notifications: notifications,
		publisher:     publisher,
		registry:      registry,
		logger:        logger,
		interval:      interval,
		limit:         limit,
		connTTL:       connTTL,
		now:           time.Now,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
			if s.registry != nil {
				s.registry.SweepStale(s.connTTL)
			}
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) error {
	due, err := s.notifications.GetDueScheduled(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due scheduled notifications: %w", err)
	}

	for i := range due {
		notification := due[i]
		msg := queue.DispatchMessage{
			NotificationID: notification.ID,
			EventID:        notification.EventID,
			Category:       notification.Category,
		}

		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error("failed to enqueue scheduled notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.notifications.SetQueued(ctx, notification.ID, s.now().UTC()); err != nil {
			s.logger.Error("failed to mark scheduled notification as queued",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
