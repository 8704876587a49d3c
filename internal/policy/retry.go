// Package policy holds the retry/backoff decision logic. It is pure:
// no clocks, no I/O, no state beyond the injected jitter source.
package policy

import (
	"math/rand"
	"time"

	"github.com/voxhub/notify-engine/internal/domain"
)

const (
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
	DefaultMultiplier = 2
	DefaultMaxRetries = 5
	DefaultMaxJitter  = 250 * time.Millisecond
)

// Decision is the outcome of consulting the retry policy.
type Decision struct {
	GiveUp     bool
	RetryAfter time.Duration
}

// RetryPolicy computes backoff for transient delivery failures.
// Parameters are tunable configuration, not fixed policy.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier int
	MaxRetries int
	MaxJitter  time.Duration

	// randIntn is swapped in tests for determinism.
	randIntn func(n int) int
}

func NewRetryPolicy(baseDelay, maxDelay time.Duration, multiplier, maxRetries int, maxJitter time.Duration) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if multiplier < 2 {
		multiplier = DefaultMultiplier
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxJitter < 0 {
		maxJitter = DefaultMaxJitter
	}

	return &RetryPolicy{
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Multiplier: multiplier,
		MaxRetries: maxRetries,
		MaxJitter:  maxJitter,
		randIntn:   rand.Intn,
	}
}

// NextAttempt decides what to do after a failed attempt. retryCount is
// the number of retries already consumed and maxRetries the
// notification's own allowance, clamped to the policy cap. Permanent
// failures never retry; transient failures back off exponentially until
// the budget is spent.
func (p *RetryPolicy) NextAttempt(retryCount, maxRetries int, kind domain.Outcome) Decision {
	if kind != domain.OutcomeTransientFailure {
		return Decision{GiveUp: true}
	}
	if retryCount >= p.Budget(maxRetries) {
		return Decision{GiveUp: true}
	}
	return Decision{RetryAfter: p.delay(retryCount)}
}

// Budget clamps a notification's retry allowance to the policy cap.
// Zero or negative means the notification carries no limit of its own.
func (p *RetryPolicy) Budget(maxRetries int) int {
	if maxRetries <= 0 || maxRetries > p.MaxRetries {
		return p.MaxRetries
	}
	return maxRetries
}

func (p *RetryPolicy) delay(retryCount int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= time.Duration(p.Multiplier)
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	// Bounded random jitter spreads retry storms after a shared outage.
	if p.MaxJitter > 0 && p.randIntn != nil {
		jitterMillis := p.randIntn(int(p.MaxJitter/time.Millisecond) + 1)
		delay += time.Duration(jitterMillis) * time.Millisecond
	}

	return delay
}
