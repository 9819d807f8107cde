package db

import (
	"context"
	"errors"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type tokenRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTokenRepository(db *gorm.DB, log *logger.Logger) ports.TokenRepository {
	return &tokenRepository{db: db, log: log}
}

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		r.log.Errorw("token_repo_create_failed", "task_id", token.TaskID, "error", err)
		return err
	}
	r.log.Infow("token_repo_create_ok", "task_id", token.TaskID, "expires", token.Expires)
	return nil
}

func (r *tokenRepository) Get(ctx context.Context, value string) (*domain.Token, error) {
	var token domain.Token
	err := r.db.WithContext(ctx).Where("token = ?", value).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		r.log.Errorw("token_repo_get_failed", "error", err)
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Token, error) {
	tokens := []domain.Token{}
	q := applyFilter(r.db.WithContext(ctx).Model(&domain.Token{}), filter)
	if err := q.Order("created_on desc").Find(&tokens).Error; err != nil {
		r.log.Errorw("token_repo_list_failed", "error", err)
		return nil, err
	}
	return tokens, nil
}

func (r *tokenRepository) Delete(ctx context.Context, value string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", value).Delete(&domain.Token{}).Error; err != nil {
		r.log.Errorw("token_repo_delete_failed", "error", err)
		return err
	}
	return nil
}

func (r *tokenRepository) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&domain.Token{})
	if res.Error != nil {
		r.log.Errorw("token_repo_delete_by_task_failed", "task_id", taskID, "error", res.Error)
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Infow("token_repo_delete_by_task_ok", "task_id", taskID, "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires <= ?", now).Delete(&domain.Token{})
	if res.Error != nil {
		r.log.Errorw("token_repo_delete_expired_failed", "error", res.Error)
		return 0, res.Error
	}
	r.log.Infow("token_repo_delete_expired_ok", "count", res.RowsAffected)
	return res.RowsAffected, nil
}
