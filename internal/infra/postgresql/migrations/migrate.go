package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/voxhub/notify-engine/internal/domain"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.Notification{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_idempotency_key ON notifications (idempotency_key) WHERE idempotency_key IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_feed ON notifications (recipient_id, created_at DESC) WHERE archived_at IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (recipient_id) WHERE read_at IS NULL AND archived_at IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_due_retry ON notifications (next_retry_at) WHERE status = 'RETRYING'`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_due_schedule ON notifications (scheduled_at) WHERE status = 'PENDING' AND queued_at IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_sending ON notifications (updated_at) WHERE status = 'SENDING'`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_event_id ON notifications (event_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.Notification{})
			},
		},
		{
			ID: "000002_create_delivery_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.DeliveryAttempt{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_attempts_notification_id ON delivery_attempts (notification_id)`,
					`CREATE INDEX IF NOT EXISTS idx_attempts_stats ON delivery_attempts (created_at, channel, outcome)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.DeliveryAttempt{})
			},
		},
		{
			ID: "000003_create_notification_preferences",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&domain.NotificationPreference{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.NotificationPreference{})
			},
		},
	})

	return m.Migrate()
}
