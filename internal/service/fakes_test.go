package service

import (
	"context"
	"time"

	"github.com/voxhub/notify-engine/internal/adapter"
	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/queue"
	"github.com/voxhub/notify-engine/internal/ratelimit"
	"github.com/voxhub/notify-engine/internal/repository"
)

type fakeNotificationRepo struct {
	createFn              func(ctx context.Context, n *domain.Notification) error
	createBatchFn         func(ctx context.Context, notifications []*domain.Notification) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Notification, error)
	getByIdempotencyKeyFn func(ctx context.Context, idempotencyKey string) (*domain.Notification, error)
	listFn                func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	feedFn                func(ctx context.Context, params repository.FeedParams) ([]domain.Notification, int64, error)
	lockForDispatchFn     func(ctx context.Context, id string) (*domain.Notification, error)
	markDeliveredFn       func(ctx context.Context, id string, suppressed bool) error
	markFailedFn          func(ctx context.Context, id string, lastError string) error
	scheduleRetryFn       func(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
	cancelFn              func(ctx context.Context, id string) error
	setQueuedFn           func(ctx context.Context, id string, at time.Time) error
	getDueScheduledFn     func(ctx context.Context, limit int) ([]domain.Notification, error)
	getDueRetriesFn       func(ctx context.Context, limit int) ([]domain.Notification, error)
	clearNextRetryFn      func(ctx context.Context, id string) error
	getStaleSendingFn     func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error)
	markReadFn            func(ctx context.Context, recipientID, id string) error
	markAllReadFn         func(ctx context.Context, recipientID string) (int64, error)
	archiveFn             func(ctx context.Context, recipientID, id string) error
	deleteFn              func(ctx context.Context, recipientID, id string) error
	countUnreadFn         func(ctx context.Context, recipientID string) (int64, error)
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, notifications)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	if f.getByIdempotencyKeyFn != nil {
		return f.getByIdempotencyKeyFn(ctx, idempotencyKey)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) Feed(ctx context.Context, params repository.FeedParams) ([]domain.Notification, int64, error) {
	if f.feedFn != nil {
		return f.feedFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) LockForDispatch(ctx context.Context, id string) (*domain.Notification, error) {
	if f.lockForDispatchFn != nil {
		return f.lockForDispatchFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkDelivered(ctx context.Context, id string, suppressed bool) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, suppressed)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, lastError)
	}
	return nil
}

func (f *fakeNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, nextRetryAt, lastError)
	}
	return nil
}

func (f *fakeNotificationRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) SetQueued(ctx context.Context, id string, at time.Time) error {
	if f.setQueuedFn != nil {
		return f.setQueuedFn(ctx, id, at)
	}
	return nil
}

func (f *fakeNotificationRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.getDueScheduledFn != nil {
		return f.getDueScheduledFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) GetDueRetries(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.getDueRetriesFn != nil {
		return f.getDueRetriesFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ClearNextRetry(ctx context.Context, id string) error {
	if f.clearNextRetryFn != nil {
		return f.clearNextRetryFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) GetStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
	if f.getStaleSendingFn != nil {
		return f.getStaleSendingFn(ctx, olderThan, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, recipientID, id)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}

func (f *fakeNotificationRepo) Archive(ctx context.Context, recipientID, id string) error {
	if f.archiveFn != nil {
		return f.archiveFn(ctx, recipientID, id)
	}
	return nil
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, recipientID, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, recipientID, id)
	}
	return nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if f.countUnreadFn != nil {
		return f.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}

type fakeAttemptRepo struct {
	createFn              func(ctx context.Context, a *domain.DeliveryAttempt) error
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
	settledChannelsFn     func(ctx context.Context, notificationID string) ([]repository.SettledChannel, error)
	statsFn               func(ctx context.Context, from, to time.Time) ([]repository.ChannelOutcomeCount, error)
	deleteOlderThanFn     func(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ repository.AttemptRepository = (*fakeAttemptRepo)(nil)

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) SettledChannels(ctx context.Context, notificationID string) ([]repository.SettledChannel, error) {
	if f.settledChannelsFn != nil {
		return f.settledChannelsFn(ctx, notificationID)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) Stats(ctx context.Context, from, to time.Time) ([]repository.ChannelOutcomeCount, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteOlderThanFn != nil {
		return f.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

type fakePreferenceRepo struct {
	getForRecipientFn  func(ctx context.Context, recipientID string, category domain.Category) ([]domain.NotificationPreference, error)
	listForRecipientFn func(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error)
	upsertFn           func(ctx context.Context, pref *domain.NotificationPreference) error
}

var _ repository.PreferenceRepository = (*fakePreferenceRepo)(nil)

func (f *fakePreferenceRepo) GetForRecipient(ctx context.Context, recipientID string, category domain.Category) ([]domain.NotificationPreference, error) {
	if f.getForRecipientFn != nil {
		return f.getForRecipientFn(ctx, recipientID, category)
	}
	return nil, nil
}

func (f *fakePreferenceRepo) ListForRecipient(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error) {
	if f.listForRecipientFn != nil {
		return f.listForRecipientFn(ctx, recipientID)
	}
	return nil, nil
}

func (f *fakePreferenceRepo) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, pref)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, msg queue.DispatchMessage) error
	closeFn   func() error
}

var _ queue.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(ctx context.Context, msg queue.DispatchMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, handler queue.MessageHandler) error
	closeFn   func() error
}

var _ queue.Consumer = (*fakeConsumer)(nil)

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

var _ ratelimit.RateLimiter = (*fakeRateLimiter)(nil)

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeAdapter struct {
	channel       domain.Channel
	supportsBatch bool
	sendFn        func(ctx context.Context, n domain.Notification) adapter.Result
	sendBatchFn   func(ctx context.Context, notifications []domain.Notification) ([]adapter.Result, error)
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Channel() domain.Channel { return f.channel }

func (f *fakeAdapter) SupportsBatch() bool { return f.supportsBatch }

func (f *fakeAdapter) Send(ctx context.Context, n domain.Notification) adapter.Result {
	if f.sendFn != nil {
		return f.sendFn(ctx, n)
	}
	return adapter.Success("")
}

func (f *fakeAdapter) SendBatch(ctx context.Context, notifications []domain.Notification) ([]adapter.Result, error) {
	if f.sendBatchFn != nil {
		return f.sendBatchFn(ctx, notifications)
	}
	results := make([]adapter.Result, len(notifications))
	for i := range results {
		results[i] = adapter.Success("")
	}
	return results, nil
}
