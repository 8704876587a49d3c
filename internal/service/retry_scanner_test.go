package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/queue"
)

func TestRetryScannerPublishesAndClearsNextRetry(t *testing.T) {
	t.Parallel()

	nextRetry := time.Unix(1_700_000_000, 0)
	due := []domain.Notification{
		{ID: "n1", EventID: "evt-1", Category: domain.CategoryMention, Status: domain.StatusRetrying, NextRetryAt: &nextRetry},
	}

	var published []queue.DispatchMessage
	var cleared []string

	repo := &fakeNotificationRepo{
		getDueRetriesFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return due, nil
		},
		clearNextRetryFn: func(ctx context.Context, id string) error {
			cleared = append(cleared, id)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.DispatchMessage) error {
			published = append(published, msg)
			return nil
		},
	}

	scanner, err := NewRetryScanner(repo, publisher, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	if len(published) != 1 || published[0].NotificationID != "n1" {
		t.Fatalf("published = %v, want one message for n1", published)
	}
	if len(cleared) != 1 || cleared[0] != "n1" {
		t.Fatalf("cleared = %v, want [n1]", cleared)
	}
}

func TestRetryScannerPublishFailureKeepsNextRetry(t *testing.T) {
	t.Parallel()

	due := []domain.Notification{
		{ID: "n1", Category: domain.CategoryMention, Status: domain.StatusRetrying},
	}

	repo := &fakeNotificationRepo{
		getDueRetriesFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return due, nil
		},
		clearNextRetryFn: func(ctx context.Context, id string) error {
			t.Errorf("next retry must stay set when publish fails")
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.DispatchMessage) error {
			return errors.New("broker unavailable")
		},
	}

	scanner, err := NewRetryScanner(repo, publisher, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
}
