package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/voxhub/notify-engine/internal/adapter"
	"github.com/voxhub/notify-engine/internal/batch"
	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/observability"
	"github.com/voxhub/notify-engine/internal/policy"
	"github.com/voxhub/notify-engine/internal/queue"
	"github.com/voxhub/notify-engine/internal/ratelimit"
	"github.com/voxhub/notify-engine/internal/repository"
)

const (
	minDispatchConcurrency = 1
	maxSendsPerChannel     = 16
)

// Orchestrator consumes dispatch messages and drives each notification
// through the delivery state machine: resolve channels, fan out to
// adapters, record attempts, and settle the final status.
type Orchestrator struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	preferences   repository.PreferenceRepository
	consumer      queue.Consumer
	adapters      map[domain.Channel]adapter.Adapter
	batchers      map[domain.Channel]*batch.Batcher
	retryPolicy   *policy.RetryPolicy
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	now           func() time.Time

	keys *keyedMutex

	// disabled holds channels shut off after a configuration error.
	// Cleared only by restart: a bad credential never fixes itself.
	disabled sync.Map

	// sends bounds concurrent adapter calls per channel.
	sends map[domain.Channel]*semaphore.Weighted
}

func NewOrchestrator(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	preferences repository.PreferenceRepository,
	consumer queue.Consumer,
	adapters []adapter.Adapter,
	batchers map[domain.Channel]*batch.Batcher,
	retryPolicy *policy.RetryPolicy,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one channel adapter is required")
	}
	if retryPolicy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minDispatchConcurrency {
		concurrency = minDispatchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byChannel := make(map[domain.Channel]adapter.Adapter, len(adapters))
	sends := make(map[domain.Channel]*semaphore.Weighted, len(adapters))
	for _, a := range adapters {
		if _, dup := byChannel[a.Channel()]; dup {
			return nil, fmt.Errorf("duplicate adapter for channel %s", a.Channel())
		}
		byChannel[a.Channel()] = a
		sends[a.Channel()] = semaphore.NewWeighted(maxSendsPerChannel)
	}

	if batchers == nil {
		batchers = make(map[domain.Channel]*batch.Batcher)
	}

	return &Orchestrator{
		notifications: notifications,
		attempts:      attempts,
		preferences:   preferences,
		consumer:      consumer,
		adapters:      byChannel,
		batchers:      batchers,
		retryPolicy:   retryPolicy,
		rateLimiter:   rateLimiter,
		logger:        logger,
		concurrency:   concurrency,
		now:           time.Now,
		keys:          newKeyedMutex(),
		sends:         sends,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Start consumes the dispatch queue until context cancellation.
func (o *Orchestrator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < o.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			o.logger.Info("dispatch worker started", zap.Int("workerId", workerID))

			err := o.consumer.Consume(groupCtx, o.processMessage)
			if err != nil {
				o.logger.Error("dispatch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			o.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// ChannelDisabled reports whether a channel was shut off after a
// configuration error.
func (o *Orchestrator) ChannelDisabled(ch domain.Channel) bool {
	_, off := o.disabled.Load(ch)
	return off
}

func (o *Orchestrator) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	unlock := o.keys.Lock(msg.NotificationID)
	defer unlock()

	notification, err := o.notifications.LockForDispatch(ctx, msg.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("notification not found during lock, skipping",
				zap.String("notificationId", msg.NotificationID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock notification for dispatch: %w", err)
	}

	// Nil means terminal, canceled, or already sending elsewhere; ack and skip.
	if notification == nil {
		return nil
	}

	if o.metrics != nil {
		o.metrics.IncDispatchInFlight()
		defer o.metrics.DecDispatchInFlight()
	}

	return o.dispatch(ctx, notification)
}

func (o *Orchestrator) dispatch(ctx context.Context, n *domain.Notification) error {
	prefs, err := o.preferences.GetForRecipient(ctx, n.RecipientID, n.Category)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	resolved := domain.ResolveChannels(prefs)
	if len(resolved) == 0 {
		// Every channel opted out: delivered with zero attempts.
		if err := o.notifications.MarkDelivered(ctx, n.ID, true); err != nil {
			return fmt.Errorf("failed to mark suppressed notification delivered: %w", err)
		}
		if o.metrics != nil {
			o.metrics.IncSuppressed()
		}
		o.logger.Info("notification suppressed by preferences",
			zap.String("notificationId", n.ID),
			zap.String("recipientId", n.RecipientID),
		)
		return nil
	}

	pending, permanentHit, err := o.pendingChannels(ctx, n, resolved)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		// A channel that failed permanently on an earlier attempt pins
		// the final status even when every other channel got through.
		if permanentHit {
			return o.fail(ctx, n, "", "permanent_error")
		}
		// Everything already succeeded or is administratively off.
		if err := o.notifications.MarkDelivered(ctx, n.ID, false); err != nil {
			return fmt.Errorf("failed to mark notification delivered: %w", err)
		}
		if o.metrics != nil {
			o.metrics.IncDelivered()
		}
		return nil
	}

	results, err := o.sendAll(ctx, n, pending)
	if err != nil {
		return err
	}

	return o.settle(ctx, n, results, permanentHit)
}

// pendingChannels narrows the resolved channel set to what still needs
// a send: channels that already settled on an earlier attempt, whether
// by success or permanent failure, are skipped, as are channels
// disabled after a configuration error or missing an adapter entirely.
// The second return reports whether any channel failed permanently.
func (o *Orchestrator) pendingChannels(ctx context.Context, n *domain.Notification, resolved []domain.Channel) ([]domain.Channel, bool, error) {
	settled, err := o.attempts.SettledChannels(ctx, n.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load settled channels: %w", err)
	}

	done := make(map[domain.Channel]struct{}, len(settled))
	var permanentHit bool
	for _, s := range settled {
		done[s.Channel] = struct{}{}
		if s.Outcome == domain.OutcomePermanentFailure {
			permanentHit = true
		}
	}

	var pending []domain.Channel
	for _, ch := range resolved {
		if _, ok := done[ch]; ok {
			continue
		}
		if o.ChannelDisabled(ch) {
			continue
		}
		if _, ok := o.adapters[ch]; !ok {
			o.logger.Warn("no adapter configured for channel, skipping",
				zap.String("channel", ch.String()),
				zap.String("notificationId", n.ID),
			)
			continue
		}
		pending = append(pending, ch)
	}

	return pending, permanentHit, nil
}

type channelResult struct {
	channel domain.Channel
	result  adapter.Result
}

func (o *Orchestrator) sendAll(ctx context.Context, n *domain.Notification, pending []domain.Channel) ([]channelResult, error) {
	results := make([]channelResult, len(pending))
	attemptNumber := n.RetryCount + 1

	g, sendCtx := errgroup.WithContext(ctx)
	for i, ch := range pending {
		g.Go(func() error {
			res, err := o.sendOne(sendCtx, n, ch)
			if err != nil {
				return err
			}
			results[i] = channelResult{channel: ch, result: res}
			return o.recordAttempt(ctx, n.ID, ch, attemptNumber, res)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (o *Orchestrator) sendOne(ctx context.Context, n *domain.Notification, ch domain.Channel) (adapter.Result, error) {
	channelName := strings.ToLower(ch.String())
	if err := o.rateLimiter.Wait(ctx, channelName); err != nil {
		return adapter.Result{}, fmt.Errorf("rate limiter wait failed for %s: %w", channelName, err)
	}

	sem := o.sends[ch]
	if err := sem.Acquire(ctx, 1); err != nil {
		return adapter.Result{}, fmt.Errorf("send slot wait canceled for %s: %w", channelName, err)
	}
	defer sem.Release(1)

	start := o.now()
	res := o.deliver(ctx, n, ch)
	if o.metrics != nil {
		o.metrics.ObserveSendDuration(channelName, o.now().Sub(start))
		o.metrics.IncAttemptOutcome(channelName, res.Outcome.String())
	}

	if res.ConfigError {
		if _, loaded := o.disabled.LoadOrStore(ch, struct{}{}); !loaded {
			o.logger.Error("disabling channel after configuration error",
				zap.String("channel", channelName),
				zap.String("detail", res.Detail),
			)
			if o.metrics != nil {
				o.metrics.IncChannelDisabled(channelName)
			}
		}
	}

	return res, nil
}

// deliver routes through the channel's micro-batcher when one exists,
// falling back to a direct send when the batcher is over its ceiling.
func (o *Orchestrator) deliver(ctx context.Context, n *domain.Notification, ch domain.Channel) adapter.Result {
	a := o.adapters[ch]

	if b, ok := o.batchers[ch]; ok {
		if res, batched := b.Submit(ctx, *n); batched {
			return res
		}
		o.logger.Warn("batch queue over ceiling, sending directly",
			zap.String("channel", ch.String()),
			zap.String("notificationId", n.ID),
		)
	}

	return a.Send(ctx, *n)
}

// settle aggregates per-channel outcomes into the next notification
// status. Any transient failure consults the retry policy; otherwise
// any permanent failure, in this round or an earlier one, fails the
// notification without burning a retry slot; otherwise everything
// succeeded.
func (o *Orchestrator) settle(ctx context.Context, n *domain.Notification, results []channelResult, earlierPermanent bool) error {
	var anyTransient, anyPermanent bool
	var lastDetail string
	for _, r := range results {
		switch r.result.Outcome {
		case domain.OutcomeTransientFailure:
			anyTransient = true
			lastDetail = failureDetail(r)
		case domain.OutcomePermanentFailure:
			anyPermanent = true
			if lastDetail == "" {
				lastDetail = failureDetail(r)
			}
		}
	}

	switch {
	case anyTransient:
		decision := o.retryPolicy.NextAttempt(n.RetryCount, n.MaxRetries, domain.OutcomeTransientFailure)
		if decision.GiveUp {
			return o.fail(ctx, n, lastDetail, "retry_exhausted")
		}

		nextRetryAt := o.now().Add(decision.RetryAfter)
		if err := o.notifications.ScheduleRetry(ctx, n.ID, nextRetryAt, lastDetail); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		if o.metrics != nil {
			o.metrics.IncRetryScheduled()
		}
		o.logger.Info("retry scheduled",
			zap.String("notificationId", n.ID),
			zap.Int("retryCount", n.RetryCount+1),
			zap.Time("nextRetryAt", nextRetryAt),
		)
		return nil

	case anyPermanent || earlierPermanent:
		return o.fail(ctx, n, lastDetail, "permanent_error")

	default:
		if err := o.notifications.MarkDelivered(ctx, n.ID, false); err != nil {
			return fmt.Errorf("failed to mark notification delivered: %w", err)
		}
		if o.metrics != nil {
			o.metrics.IncDelivered()
		}
		return nil
	}
}

// fail settles the terminal failure. Safe to run more than once for the
// same notification: marking an already-failed row is a no-op update.
func (o *Orchestrator) fail(ctx context.Context, n *domain.Notification, detail, reason string) error {
	if detail == "" {
		detail = reason
	}
	if err := o.notifications.MarkFailed(ctx, n.ID, detail); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if o.metrics != nil {
		o.metrics.IncFailed(reason)
	}
	o.logger.Warn("notification failed",
		zap.String("notificationId", n.ID),
		zap.String("reason", reason),
		zap.String("detail", detail),
	)
	return nil
}

func (o *Orchestrator) recordAttempt(ctx context.Context, notificationID string, ch domain.Channel, attemptNumber int, res adapter.Result) error {
	var detail *string
	if res.Outcome != domain.OutcomeSuccess && res.Detail != "" {
		value := res.Detail
		detail = &value
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Channel:        ch,
		AttemptNumber:  attemptNumber,
		Outcome:        res.Outcome,
		ErrorDetail:    detail,
		CreatedAt:      o.now().UTC(),
	}

	if err := o.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func failureDetail(r channelResult) string {
	if r.result.Detail == "" {
		return fmt.Sprintf("%s: %s", strings.ToLower(r.channel.String()), strings.ToLower(r.result.Outcome.String()))
	}
	return fmt.Sprintf("%s: %s", strings.ToLower(r.channel.String()), r.result.Detail)
}
