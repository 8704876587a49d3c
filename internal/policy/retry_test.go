package policy

import (
	"testing"
	"time"

	"github.com/voxhub/notify-engine/internal/domain"
)

func newTestPolicy() *RetryPolicy {
	p := NewRetryPolicy(time.Second, 60*time.Second, 2, 5, 0)
	p.randIntn = func(n int) int { return 0 }
	return p
}

func TestNextAttemptExponentialBackoff(t *testing.T) {
	t.Parallel()

	p := newTestPolicy()

	testCases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}

	for _, tc := range testCases {
		d := p.NextAttempt(tc.retryCount, 0, domain.OutcomeTransientFailure)
		if d.GiveUp {
			t.Fatalf("retryCount=%d: unexpected give up", tc.retryCount)
		}
		if d.RetryAfter != tc.want {
			t.Errorf("retryCount=%d: RetryAfter = %v, want %v", tc.retryCount, d.RetryAfter, tc.want)
		}
	}
}

func TestNextAttemptCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(time.Second, 10*time.Second, 2, 20, 0)
	p.randIntn = func(n int) int { return 0 }

	d := p.NextAttempt(10, 0, domain.OutcomeTransientFailure)
	if d.GiveUp {
		t.Fatal("unexpected give up")
	}
	if d.RetryAfter != 10*time.Second {
		t.Fatalf("RetryAfter = %v, want capped 10s", d.RetryAfter)
	}
}

func TestNextAttemptGivesUpAtMaxRetries(t *testing.T) {
	t.Parallel()

	p := newTestPolicy()

	if d := p.NextAttempt(5, 0, domain.OutcomeTransientFailure); !d.GiveUp {
		t.Fatal("expected give up once retry budget is spent")
	}
	if d := p.NextAttempt(6, 0, domain.OutcomeTransientFailure); !d.GiveUp {
		t.Fatal("expected give up past retry budget")
	}
}

func TestNextAttemptHonorsNotificationBudget(t *testing.T) {
	t.Parallel()

	p := newTestPolicy()

	if d := p.NextAttempt(0, 1, domain.OutcomeTransientFailure); d.GiveUp {
		t.Fatal("first retry within the notification budget must be allowed")
	}
	if d := p.NextAttempt(1, 1, domain.OutcomeTransientFailure); !d.GiveUp {
		t.Fatal("expected give up once the notification budget is spent")
	}
	if d := p.NextAttempt(3, 1, domain.OutcomeTransientFailure); !d.GiveUp {
		t.Fatal("expected give up well past the notification budget")
	}
	// A notification cannot grant itself more retries than the policy cap.
	if d := p.NextAttempt(5, 10, domain.OutcomeTransientFailure); !d.GiveUp {
		t.Fatal("notification budget above the cap must clamp to the cap")
	}
}

func TestBudgetClampsToPolicyCap(t *testing.T) {
	t.Parallel()

	p := newTestPolicy()

	testCases := []struct {
		maxRetries int
		want       int
	}{
		{0, 5},
		{-1, 5},
		{1, 1},
		{5, 5},
		{10, 5},
	}
	for _, tc := range testCases {
		if got := p.Budget(tc.maxRetries); got != tc.want {
			t.Errorf("Budget(%d) = %d, want %d", tc.maxRetries, got, tc.want)
		}
	}
}

func TestNextAttemptPermanentFailureNeverRetries(t *testing.T) {
	t.Parallel()

	p := newTestPolicy()

	if d := p.NextAttempt(0, 0, domain.OutcomePermanentFailure); !d.GiveUp {
		t.Fatal("permanent failure must give up without consuming retries")
	}
}

func TestNextAttemptJitterIsBounded(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(time.Second, 60*time.Second, 2, 5, 250*time.Millisecond)

	for i := 0; i < 100; i++ {
		d := p.NextAttempt(0, 0, domain.OutcomeTransientFailure)
		if d.RetryAfter < time.Second || d.RetryAfter > time.Second+250*time.Millisecond {
			t.Fatalf("RetryAfter = %v, want within [1s, 1.25s]", d.RetryAfter)
		}
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(0, 0, 0, 0, -1)
	if p.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", p.BaseDelay, DefaultBaseDelay)
	}
	if p.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", p.MaxDelay, DefaultMaxDelay)
	}
	if p.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", p.MaxRetries, DefaultMaxRetries)
	}
	if p.MaxJitter != DefaultMaxJitter {
		t.Errorf("MaxJitter = %v, want %v", p.MaxJitter, DefaultMaxJitter)
	}
}
