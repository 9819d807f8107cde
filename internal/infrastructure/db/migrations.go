package db

import (
	"github.com/stackgate/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Task{},
		&domain.Action{},
		&domain.Token{},
		&domain.Notification{},
		&domain.Principal{},
		&domain.Project{},
		&domain.RoleAssignment{},
	)
	if err != nil {
		return err
	}

	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Actions are always read back in task order.
	if !db.Migrator().HasIndex(&domain.Action{}, "idx_actions_task_order") {
		if err := db.Exec(`CREATE UNIQUE INDEX idx_actions_task_order ON actions (task_id, action_order)`).Error; err != nil {
			return err
		}
	}

	// The status endpoint scans for unacknowledged error notifications.
	if !db.Migrator().HasIndex(&domain.Notification{}, "idx_notifications_open_errors") {
		if err := db.Exec(`CREATE INDEX idx_notifications_open_errors ON notifications (error, acknowledged)`).Error; err != nil {
			return err
		}
	}

	return nil
}
