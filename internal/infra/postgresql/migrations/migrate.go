package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notification_logs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationLogModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_notification_logs_status_attempted ON notification_logs (status, attempted_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_notification_logs_email ON notification_logs (email)`,
					`CREATE INDEX IF NOT EXISTS idx_notification_logs_lead_id ON notification_logs (lead_id) WHERE lead_id IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notification_logs_retry ON notification_logs (next_retry_at) WHERE status = 'PENDING' AND next_retry_at IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notification_logs_error_code ON notification_logs (error_code) WHERE error_code IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationLogModel{})
			},
		},
	})

	return m.Migrate()
}
