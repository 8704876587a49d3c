package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/policy"
)

func TestReaperRequeuesStaleSending(t *testing.T) {
	t.Parallel()

	stale := []domain.Notification{
		{ID: "n1", Status: domain.StatusSending, RetryCount: 1, MaxRetries: 5},
	}

	var retried []string
	repo := &fakeNotificationRepo{
		getStaleSendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
			return stale, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, next time.Time, lastError string) error {
			retried = append(retried, id)
			return nil
		},
		markFailedFn: func(ctx context.Context, id string, lastError string) error {
			t.Errorf("notification with retry budget left must not be failed")
			return nil
		},
	}

	reaper, err := NewReaper(repo, policy.NewRetryPolicy(0, 0, 0, 0, 0), time.Second, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}

	if err := reaper.reap(context.Background()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}
	if len(retried) != 1 || retried[0] != "n1" {
		t.Fatalf("retried = %v, want [n1]", retried)
	}
}

func TestReaperFailsExhaustedStaleSending(t *testing.T) {
	t.Parallel()

	stale := []domain.Notification{
		{ID: "n1", Status: domain.StatusSending, RetryCount: 5, MaxRetries: 5},
	}

	var failed []string
	repo := &fakeNotificationRepo{
		getStaleSendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
			return stale, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, next time.Time, lastError string) error {
			t.Errorf("exhausted notification must not be requeued")
			return nil
		},
		markFailedFn: func(ctx context.Context, id string, lastError string) error {
			failed = append(failed, id)
			return nil
		},
	}

	reaper, err := NewReaper(repo, policy.NewRetryPolicy(0, 0, 0, 0, 0), time.Second, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}

	if err := reaper.reap(context.Background()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}
	if len(failed) != 1 || failed[0] != "n1" {
		t.Fatalf("failed = %v, want [n1]", failed)
	}
}

func TestReaperFailsWhenNotificationBudgetSpent(t *testing.T) {
	t.Parallel()

	stale := []domain.Notification{
		{ID: "n1", Status: domain.StatusSending, RetryCount: 1, MaxRetries: 1},
	}

	var failed []string
	repo := &fakeNotificationRepo{
		getStaleSendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
			return stale, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, next time.Time, lastError string) error {
			t.Errorf("notification past its own retry budget must not be requeued")
			return nil
		},
		markFailedFn: func(ctx context.Context, id string, lastError string) error {
			failed = append(failed, id)
			return nil
		},
	}

	reaper, err := NewReaper(repo, policy.NewRetryPolicy(0, 0, 0, 0, 0), time.Second, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}

	if err := reaper.reap(context.Background()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}
	if len(failed) != 1 || failed[0] != "n1" {
		t.Fatalf("failed = %v, want [n1]", failed)
	}
}

func TestReaperCutoffUsesStaleAfter(t *testing.T) {
	t.Parallel()

	var gotCutoff time.Time
	repo := &fakeNotificationRepo{
		getStaleSendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
			gotCutoff = olderThan
			return nil, nil
		},
	}

	reaper, err := NewReaper(repo, policy.NewRetryPolicy(0, 0, 0, 0, 0), time.Second, 5*time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	reaper.now = func() time.Time { return now }

	if err := reaper.reap(context.Background()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}
	if want := now.Add(-5 * time.Minute); !gotCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", gotCutoff, want)
	}
}
