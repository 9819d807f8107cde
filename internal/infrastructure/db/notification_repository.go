package db

import (
	"context"
	"errors"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepository(db *gorm.DB, log *logger.Logger) ports.NotificationRepository {
	return &notificationRepository{db: db, log: log}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		r.log.Errorw("notification_repo_create_failed", "task_id", n.TaskID, "error", err)
		return err
	}
	r.log.Infow("notification_repo_create_ok", "id", n.ID, "task_id", n.TaskID, "error_flag", n.Error)
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		r.log.Errorw("notification_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Notification, error) {
	out := []domain.Notification{}
	q := applyFilter(r.db.WithContext(ctx).Model(&domain.Notification{}), filter)
	if err := q.Order("created_on desc").Find(&out).Error; err != nil {
		r.log.Errorw("notification_repo_list_failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *notificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	if err := r.db.WithContext(ctx).Save(n).Error; err != nil {
		r.log.Errorw("notification_repo_update_failed", "id", n.ID, "error", err)
		return err
	}
	r.log.Infow("notification_repo_update_ok", "id", n.ID, "acknowledged", n.Acknowledged)
	return nil
}
