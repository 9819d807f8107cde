package db

import (
	"context"
	"errors"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func withActions(q *gorm.DB) *gorm.DB {
	return q.Preload("Actions", func(db *gorm.DB) *gorm.DB {
		return db.Order("action_order asc")
	})
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "task_type", task.TaskType, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID, "task_type", task.TaskType, "actions", len(task.Actions))
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := withActions(r.db.WithContext(ctx)).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Task, error) {
	tasks := []domain.Task{}
	q := applyFilter(withActions(r.db.WithContext(ctx)).Model(&domain.Task{}), filter)
	if err := q.Order("created_on desc").Order("id desc").Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, err
	}
	r.log.Infow("task_repo_list_ok", "count", len(tasks))
	return tasks, nil
}

// Update saves the task row and every action row, including caches.
func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	err := r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(task).Error
	if err != nil {
		r.log.Errorw("task_repo_update_failed", "id", task.ID, "error", err)
		return err
	}
	r.log.Infow("task_repo_update_ok", "id", task.ID, "approved", task.Approved, "completed", task.Completed, "cancelled", task.Cancelled)
	return nil
}

func (r *taskRepository) LastCreated(ctx context.Context) (*domain.Task, error) {
	return r.first(withActions(r.db.WithContext(ctx)).Order("created_on desc"))
}

func (r *taskRepository) LastCompleted(ctx context.Context) (*domain.Task, error) {
	return r.first(withActions(r.db.WithContext(ctx)).Where("completed = ?", true).Order("completed_on desc"))
}

func (r *taskRepository) first(q *gorm.DB) (*domain.Task, error) {
	var task domain.Task
	err := q.First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorw("task_repo_first_failed", "error", err)
		return nil, err
	}
	return &task, nil
}
