package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/repository"
)

// FeedService serves the recipient-facing in-app feed and preference
// management.
type FeedService struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewFeedService(
	notifications repository.NotificationRepository,
	preferences repository.PreferenceRepository,
	logger *zap.Logger,
) (*FeedService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FeedService{
		notifications: notifications,
		preferences:   preferences,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *FeedService) Feed(ctx context.Context, params repository.FeedParams) ([]domain.Notification, int64, error) {
	params.RecipientID = strings.TrimSpace(params.RecipientID)
	if params.RecipientID == "" {
		return nil, 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.Feed(ctx, params)
}

func (s *FeedService) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := requireIDs(recipientID, id); err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, strings.TrimSpace(recipientID), strings.TrimSpace(id))
}

func (s *FeedService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.MarkAllRead(ctx, recipientID)
}

func (s *FeedService) Archive(ctx context.Context, recipientID, id string) error {
	if err := requireIDs(recipientID, id); err != nil {
		return err
	}
	return s.notifications.Archive(ctx, strings.TrimSpace(recipientID), strings.TrimSpace(id))
}

func (s *FeedService) Delete(ctx context.Context, recipientID, id string) error {
	if err := requireIDs(recipientID, id); err != nil {
		return err
	}
	return s.notifications.Delete(ctx, strings.TrimSpace(recipientID), strings.TrimSpace(id))
}

func (s *FeedService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.CountUnread(ctx, recipientID)
}

func (s *FeedService) Preferences(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.preferences.ListForRecipient(ctx, recipientID)
}

func (s *FeedService) SetPreference(ctx context.Context, pref *domain.NotificationPreference) error {
	if pref == nil {
		return fmt.Errorf("%w: preference is required", domain.ErrValidation)
	}
	pref.RecipientID = strings.TrimSpace(pref.RecipientID)
	if err := pref.Validate(); err != nil {
		return err
	}
	pref.UpdatedAt = s.now().UTC()
	return s.preferences.Upsert(ctx, pref)
}

func requireIDs(recipientID, id string) error {
	if strings.TrimSpace(recipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return nil
}
