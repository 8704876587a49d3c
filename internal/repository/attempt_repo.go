package repository

import (
	"context"
	"time"

	"github.com/voxhub/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// ChannelOutcomeCount is one cell of the delivery stats aggregate.
type ChannelOutcomeCount struct {
	Channel domain.Channel `gorm:"column:channel"`
	Outcome domain.Outcome `gorm:"column:outcome"`
	Count   int64          `gorm:"column:count"`
}

// SettledChannel is a channel that needs no further sends for a
// notification: it either succeeded or failed permanently.
type SettledChannel struct {
	Channel domain.Channel `gorm:"column:channel"`
	Outcome domain.Outcome `gorm:"column:outcome"`
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.DeliveryAttempt) error
	GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
	SettledChannels(ctx context.Context, notificationID string) ([]SettledChannel, error)
	Stats(ctx context.Context, from, to time.Time) ([]ChannelOutcomeCount, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *GormAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	var attempts []domain.DeliveryAttempt
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// SettledChannels returns the channels that already succeeded or failed
// permanently for a notification. Re-dispatch skips these.
func (r *GormAttemptRepo) SettledChannels(ctx context.Context, notificationID string) ([]SettledChannel, error) {
	var settled []SettledChannel
	err := r.db.WithContext(ctx).
		Model(&domain.DeliveryAttempt{}).
		Distinct("channel, outcome").
		Where("notification_id = ? AND outcome IN ?", notificationID,
			[]domain.Outcome{domain.OutcomeSuccess, domain.OutcomePermanentFailure}).
		Scan(&settled).Error
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (r *GormAttemptRepo) Stats(ctx context.Context, from, to time.Time) ([]ChannelOutcomeCount, error) {
	var counts []ChannelOutcomeCount
	err := r.db.WithContext(ctx).
		Model(&domain.DeliveryAttempt{}).
		Select("channel, outcome, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Group("channel, outcome").
		Order("channel, outcome").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.DeliveryAttempt{})
	return result.RowsAffected, result.Error
}
