package ports

import (
	"context"

	"github.com/stackgate/backend/internal/domain"
)

type CreateUserInput struct {
	Name             string
	Email            string
	Password         string
	DomainID         string
	DefaultProjectID string
}

type CreateProjectInput struct {
	Name     string
	DomainID string
	ParentID string
}

// IdentityBackend is the user/project/role store that actions act upon.
// Find* and Get* return nil, nil when nothing matches.
type IdentityBackend interface {
	FindUser(ctx context.Context, name string) (*domain.Principal, error)
	GetUser(ctx context.Context, id string) (*domain.Principal, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*domain.Principal, error)
	EnableUser(ctx context.Context, id string) error
	DisableUser(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, password string) error

	FindProject(ctx context.Context, name string) (*domain.Project, error)
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	CreateProject(ctx context.Context, in CreateProjectInput) (*domain.Project, error)

	GetRoles(ctx context.Context, userID, projectID string) ([]string, error)
	GrantRole(ctx context.Context, userID, projectID, role string) error
	RevokeRole(ctx context.Context, userID, projectID, role string) error
}
