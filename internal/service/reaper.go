package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/policy"
	"github.com/voxhub/notify-engine/internal/repository"
)

const (
	defaultReaperInterval  = 30 * time.Second
	defaultReaperScanLimit = 100
	defaultStaleAfter      = 5 * time.Minute
)

// Reaper recovers notifications stuck in SENDING after a worker died
// mid-dispatch. Each stale row either gets a retry slot or fails when
// the budget is spent.
type Reaper struct {
	notifications repository.NotificationRepository
	retryPolicy   *policy.RetryPolicy
	logger        *zap.Logger
	interval      time.Duration
	staleAfter    time.Duration
	limit         int
	now           func() time.Time
}

func NewReaper(
	notifications repository.NotificationRepository,
	retryPolicy *policy.RetryPolicy,
	interval time.Duration,
	staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*Reaper, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if retryPolicy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if interval <= 0 {
		interval = defaultReaperInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if limit <= 0 {
		limit = defaultReaperScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reaper{
		notifications: notifications,
		retryPolicy:   retryPolicy,
		logger:        logger,
		interval:      interval,
		staleAfter:    staleAfter,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (r *Reaper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.reap(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("reaper scan failed", zap.Error(err))
			}
		}
	}
}

func (r *Reaper) reap(ctx context.Context) error {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.notifications.GetStaleSending(ctx, cutoff, r.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale sending notifications: %w", err)
	}

	for i := range stale {
		notification := stale[i]

		// The interrupted attempt counts as transient: the send may or
		// may not have reached the provider, and a duplicate beats a
		// silent drop.
		if notification.RetryCount >= r.retryPolicy.Budget(notification.MaxRetries) {
			if err := r.notifications.MarkFailed(ctx, notification.ID, "dispatch interrupted, retry budget exhausted"); err != nil {
				r.logger.Error("failed to fail interrupted notification",
					zap.String("notificationId", notification.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := r.notifications.ScheduleRetry(ctx, notification.ID, r.now().UTC(), "dispatch interrupted"); err != nil {
			r.logger.Error("failed to requeue interrupted notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}

		r.logger.Warn("requeued notification stuck in sending",
			zap.String("notificationId", notification.ID),
			zap.Int("retryCount", notification.RetryCount+1),
		)
	}

	return nil
}
