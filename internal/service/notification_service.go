package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/observability"
	"github.com/voxhub/notify-engine/internal/queue"
	"github.com/voxhub/notify-engine/internal/repository"
)

const defaultMaxRetries = 5

// NotificationService accepts producer events, expands them into
// per-recipient notifications, and hands them to the work queue.
type NotificationService struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

// EnqueueResult summarizes one event submission.
type EnqueueResult struct {
	EventID    string
	Created    []domain.Notification
	Duplicates int
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// EnqueueEvent fans an event out into one notification per recipient.
// Recipients whose dedupe key already exists count as duplicates and
// produce no new notification.
func (s *NotificationService) EnqueueEvent(ctx context.Context, event *domain.Event) (*EnqueueResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event is required", domain.ErrValidation)
	}

	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	result := &EnqueueResult{EventID: event.ID}

	for _, recipientID := range event.RecipientIDs {
		notification, duplicate, err := s.createForRecipient(ctx, event, strings.TrimSpace(recipientID))
		if err != nil {
			return nil, err
		}
		if duplicate {
			result.Duplicates++
			continue
		}
		result.Created = append(result.Created, *notification)
	}

	now := s.now().UTC()
	for i := range result.Created {
		n := &result.Created[i]
		if !shouldEnqueueImmediately(n.ScheduledAt, now) {
			continue
		}
		if err := s.publish(ctx, n); err != nil {
			return nil, err
		}
	}

	observability.WithContextLogger(s.logger, ctx).Info("event enqueued",
		zap.String("eventId", event.ID),
		zap.String("category", event.Category.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("duplicates", result.Duplicates),
	)

	return result, nil
}

func (s *NotificationService) createForRecipient(ctx context.Context, event *domain.Event, recipientID string) (*domain.Notification, bool, error) {
	notification := &domain.Notification{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		IdempotencyKey: event.RecipientIdempotencyKey(recipientID),
		RecipientID:    recipientID,
		Category:       event.Category,
		Title:          event.Title,
		Body:           event.Body,
		Link:           event.Link,
		Payload:        event.Payload,
		Status:         domain.StatusPending,
		MaxRetries:     event.MaxRetries,
		ScheduledAt:    event.ScheduledAt,
	}
	if notification.MaxRetries <= 0 {
		notification.MaxRetries = defaultMaxRetries
	}

	if err := notification.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		if notification.IdempotencyKey != nil && isUniqueViolationError(err) {
			existing, lookupErr := s.notifications.GetByIdempotencyKey(ctx, *notification.IdempotencyKey)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("failed to load existing notification after idempotency conflict: %w", lookupErr)
			}
			s.logger.Info("idempotency conflict resolved",
				zap.String("existingId", existing.ID),
				zap.String("idempotencyKey", *notification.IdempotencyKey),
			)
			return existing, true, nil
		}
		return nil, false, err
	}

	return notification, false, nil
}

// publish hands a notification to the work queue and records the
// queued timestamp. A row with queued_at set is never re-published by
// the scheduler scan.
func (s *NotificationService) publish(ctx context.Context, n *domain.Notification) error {
	msg := queue.DispatchMessage{
		NotificationID: n.ID,
		EventID:        n.EventID,
		Category:       n.Category,
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish dispatch message",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish dispatch message: %w", err)
	}

	queuedAt := s.now().UTC()
	if err := s.notifications.SetQueued(ctx, n.ID, queuedAt); err != nil {
		return fmt.Errorf("failed to record queued timestamp: %w", err)
	}
	n.QueuedAt = &queuedAt

	return nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

// Cancel withdraws a notification that has not started sending.
func (s *NotificationService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.Cancel(ctx, strings.TrimSpace(id))
}

func (s *NotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, params)
}

func shouldEnqueueImmediately(scheduledAt *time.Time, now time.Time) bool {
	if scheduledAt == nil {
		return true
	}
	return !scheduledAt.After(now)
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
