package ports

import (
	"context"

	"github.com/stackgate/backend/internal/domain"
)

// TaskInput carries the submitted payload. Each action receives the fields it
// declares from Data, overlaid with ActionData[action_type] when present.
type TaskInput struct {
	Data       domain.JSONB
	ActionData map[string]domain.JSONB
}

type CreateTaskInput struct {
	TaskType string
	Input    TaskInput
	Request  domain.RequestContext
}

type ListQuery struct {
	Filters map[string]interface{}
	Page    int
	PerPage int
}

type TaskResult struct {
	Task  *domain.Task
	Notes []string
	// Token is set when this call issued one. It is delivered out of band and
	// must not be echoed to the requester.
	Token *domain.Token
}

type TokenDetail struct {
	TaskType       string   `json:"task_type"`
	Actions        []string `json:"actions"`
	RequiredFields []string `json:"required_fields"`
}

type Status struct {
	LastCreatedTask    *domain.Task          `json:"last_created_task"`
	LastCompletedTask  *domain.Task          `json:"last_completed_task"`
	ErrorNotifications []domain.Notification `json:"error_notifications"`
}

// TaskEngine drives tasks, tokens and notifications through their lifecycle.
type TaskEngine interface {
	CreateTask(ctx context.Context, in CreateTaskInput) (*TaskResult, error)
	GetTask(ctx context.Context, id string, rc domain.RequestContext) (*domain.Task, error)
	ListTasks(ctx context.Context, q ListQuery, rc domain.RequestContext) ([]domain.Task, error)
	ApproveTask(ctx context.Context, id string, rc domain.RequestContext) (*TaskResult, error)
	UpdateTask(ctx context.Context, id string, in TaskInput, rc domain.RequestContext) (*TaskResult, error)
	CancelTask(ctx context.Context, id string, rc domain.RequestContext) error

	GetToken(ctx context.Context, value string) (*TokenDetail, error)
	ListTokens(ctx context.Context, q ListQuery) ([]domain.Token, error)
	RedeemToken(ctx context.Context, value string, data domain.JSONB) (*TaskResult, error)
	ReissueToken(ctx context.Context, taskID string, rc domain.RequestContext) (*domain.Token, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, q ListQuery) ([]domain.Notification, error)
	// AcknowledgeNotification fails with a conflict when it was already acknowledged.
	AcknowledgeNotification(ctx context.Context, id string) error
	AcknowledgeNotifications(ctx context.Context, ids []string) error

	Status(ctx context.Context) (*Status, error)
}
