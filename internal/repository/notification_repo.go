package repository

import (
	"context"
	"errors"
	"time"

	"github.com/voxhub/notify-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListParams filters the operator-facing notification listing.
type ListParams struct {
	Status   *domain.Status
	Category *domain.Category
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// FeedParams filters a recipient's in-app feed. Archived rows are
// excluded unless IncludeArchived is set.
type FeedParams struct {
	RecipientID     string
	Category        *domain.Category
	UnreadOnly      bool
	IncludeArchived bool
	Page            int
	PageSize        int
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	CreateBatch(ctx context.Context, notifications []*domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	Feed(ctx context.Context, params FeedParams) ([]domain.Notification, int64, error)
	LockForDispatch(ctx context.Context, id string) (*domain.Notification, error)
	MarkDelivered(ctx context.Context, id string, suppressed bool) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
	Cancel(ctx context.Context, id string) error
	SetQueued(ctx context.Context, id string, at time.Time) error
	GetDueScheduled(ctx context.Context, limit int) ([]domain.Notification, error)
	GetDueRetries(ctx context.Context, limit int) ([]domain.Notification, error)
	ClearNextRetry(ctx context.Context, id string) error
	GetStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Archive(ctx context.Context, recipientID, id string) error
	Delete(ctx context.Context, recipientID, id string) error
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *GormNotificationRepo) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(notifications, 100).Error
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *GormNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Notification{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	return paginate(query, params.Page, params.PageSize)
}

func (r *GormNotificationRepo) Feed(ctx context.Context, params FeedParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ?", params.RecipientID)

	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if !params.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}

	return paginate(query, params.Page, params.PageSize)
}

func paginate(query *gorm.DB, page, pageSize int) ([]domain.Notification, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var notifications []domain.Notification
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// LockForDispatch takes a row lock and claims the notification for
// sending. A nil notification with nil error means the row is already
// terminal, canceled, or being sent elsewhere, and the caller should
// treat the message as settled.
func (r *GormNotificationRepo) LockForDispatch(ctx context.Context, id string) (*domain.Notification, error) {
	var claimed *domain.Notification

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n domain.Notification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&n, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if n.Status.IsTerminal() || n.Status == domain.StatusSending {
			return nil
		}

		if err := tx.Model(&n).Update("status", domain.StatusSending).Error; err != nil {
			return err
		}

		n.Status = domain.StatusSending
		claimed = &n
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (r *GormNotificationRepo) MarkDelivered(ctx context.Context, id string, suppressed bool) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusDelivered,
			"suppressed":    suppressed,
			"delivered_at":  time.Now().UTC(),
			"next_retry_at": nil,
			"last_error":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"last_error":    lastError,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusRetrying,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Cancel moves a pending or retrying notification to CANCELED. A row
// already sending or terminal yields ErrConflict.
func (r *GormNotificationRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusRetrying}).
		Updates(map[string]any{
			"status":        domain.StatusCanceled,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) SetQueued(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("queued_at", at).Error
}

func (r *GormNotificationRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.WithContext(ctx).
		Where("status = ? AND queued_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= ?",
			domain.StatusPending, time.Now().UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *GormNotificationRepo) GetDueRetries(ctx context.Context, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			domain.StatusRetrying, time.Now().UTC()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *GormNotificationRepo) ClearNextRetry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

// GetStaleSending returns rows stuck in SENDING since before olderThan.
// These are workers that died mid-dispatch.
func (r *GormNotificationRepo) GetStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusSending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *GormNotificationRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", id, recipientID).
		Update("read_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureOwned(ctx, recipientID, id)
	}
	return nil
}

func (r *GormNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL AND archived_at IS NULL", recipientID).
		Update("read_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

func (r *GormNotificationRepo) Archive(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ? AND archived_at IS NULL", id, recipientID).
		Update("archived_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureOwned(ctx, recipientID, id)
	}
	return nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&domain.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL AND archived_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

// ensureOwned distinguishes "not found" from "already in that state"
// after a zero-row conditional update.
func (r *GormNotificationRepo) ensureOwned(ctx context.Context, recipientID, id string) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}
