package repository

import (
	"context"

	"github.com/voxhub/notify-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository interface {
	GetForRecipient(ctx context.Context, recipientID string, category domain.Category) ([]domain.NotificationPreference, error)
	ListForRecipient(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error)
	Upsert(ctx context.Context, pref *domain.NotificationPreference) error
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) GetForRecipient(ctx context.Context, recipientID string, category domain.Category) ([]domain.NotificationPreference, error) {
	var prefs []domain.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND category = ?", recipientID, category).
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *GormPreferenceRepo) ListForRecipient(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error) {
	var prefs []domain.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("category, channel").
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}, {Name: "category"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(pref).Error
}
