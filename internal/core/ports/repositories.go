package ports

import (
	"context"
	"errors"
	"time"

	"github.com/stackgate/backend/internal/domain"
)

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("repository: not found")

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter domain.Filter) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	// LastCreated and LastCompleted return nil, nil when there is no such task.
	LastCreated(ctx context.Context) (*domain.Task, error)
	LastCompleted(ctx context.Context) (*domain.Task, error)
}

type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	Get(ctx context.Context, value string) (*domain.Token, error)
	List(ctx context.Context, filter domain.Filter) ([]domain.Token, error)
	Delete(ctx context.Context, value string) error
	DeleteByTask(ctx context.Context, taskID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter domain.Filter) ([]domain.Notification, error)
	Update(ctx context.Context, n *domain.Notification) error
}

// Store groups the repositories and runs a unit of work atomically.
type Store interface {
	Tasks() TaskRepository
	Tokens() TokenRepository
	Notifications() NotificationRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
