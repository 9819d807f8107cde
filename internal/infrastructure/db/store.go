package db

import (
	"context"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// Store is the gorm-backed ports.Store.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Tasks() ports.TaskRepository { return NewTaskRepository(s.db, s.log) }

func (s *Store) Tokens() ports.TokenRepository { return NewTokenRepository(s.db, s.log) }

func (s *Store) Notifications() ports.NotificationRepository {
	return NewNotificationRepository(s.db, s.log)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx ports.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}
