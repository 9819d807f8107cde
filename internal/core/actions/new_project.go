package actions

import (
	"context"
	"fmt"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/pkg/utils/keygen"
)

const generatedPasswordLength = 24

type newProjectInput struct {
	ProjectName string `json:"project_name"`
	Email       string `json:"email"`
	DomainID    string `json:"domain_id"`
	ParentID    string `json:"parent_id"`
}

type newProjectCache struct {
	ProjectID    string   `json:"project_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	UserState    string   `json:"user_state,omitempty"`
	UserReset    bool     `json:"user_reset,omitempty"`
	UserEnabled  bool     `json:"user_enabled,omitempty"`
	RolesGranted []string `json:"roles_granted,omitempty"`
	PasswordSet  bool     `json:"password_set,omitempty"`
}

// NewProjectWithUser signs up a new project and gives its owner the default roles.
// The project, the user and the role grants happen on approval; the password
// is chosen by the owner when they redeem the token.
func NewProjectWithUser() Spec {
	return Define[newProjectInput, newProjectCache]("new_project_with_user", Meta{
		Fields:         []string{"project_name", "email", "domain_id", "parent_id"},
		RequiredFields: []string{"project_name", "email", "domain_id"},
		TokenFields:    []string{"password"},
	}, newProjectWithUser{})
}

type newProjectWithUser struct{}

func (newProjectWithUser) Validate(ctx context.Context, env *Env, in *newProjectInput) (Verdict, error) {
	if in.DomainID != env.DefaultDomain {
		return invalid("domain must be " + env.DefaultDomain), nil
	}
	existing, err := env.Identity.FindProject(ctx, in.ProjectName)
	if err != nil {
		return Verdict{}, err
	}
	if existing != nil {
		return invalid("project already exists"), nil
	}
	return Verdict{Valid: true, NeedToken: true}, nil
}

func (newProjectWithUser) Execute(ctx context.Context, env *Env, in *newProjectInput, cache *newProjectCache) error {
	if cache.ProjectID == "" {
		project, err := env.Identity.CreateProject(ctx, ports.CreateProjectInput{
			Name:     in.ProjectName,
			DomainID: in.DomainID,
			ParentID: in.ParentID,
		})
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		cache.ProjectID = project.ID
	}

	if cache.UserID == "" {
		user, err := env.Identity.FindUser(ctx, in.Email)
		if err != nil {
			return err
		}
		switch {
		case user == nil:
			password, err := keygen.GeneratePassword(generatedPasswordLength)
			if err != nil {
				return err
			}
			user, err = env.Identity.CreateUser(ctx, ports.CreateUserInput{
				Name:             in.Email,
				Email:            in.Email,
				Password:         password,
				DomainID:         in.DomainID,
				DefaultProjectID: cache.ProjectID,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			cache.UserState = userStateDefault
		case !user.Enabled:
			cache.UserState = userStateDisabled
		default:
			cache.UserState = userStateExisting
		}
		cache.UserID = user.ID
	}

	if cache.UserState == userStateDisabled {
		if !cache.UserReset {
			password, err := keygen.GeneratePassword(generatedPasswordLength)
			if err != nil {
				return err
			}
			if err := env.Identity.UpdatePassword(ctx, cache.UserID, password); err != nil {
				return fmt.Errorf("reset disabled user password: %w", err)
			}
			cache.UserReset = true
		}
		if !cache.UserEnabled {
			if err := env.Identity.EnableUser(ctx, cache.UserID); err != nil {
				return fmt.Errorf("enable user: %w", err)
			}
			cache.UserEnabled = true
		}
	}

	for _, role := range env.Settings.DefaultRoles {
		if contains(cache.RolesGranted, role) {
			continue
		}
		if err := env.Identity.GrantRole(ctx, cache.UserID, cache.ProjectID, role); err != nil {
			return fmt.Errorf("grant role %s: %w", role, err)
		}
		cache.RolesGranted = append(cache.RolesGranted, role)
	}
	return nil
}

func (newProjectWithUser) Complete(ctx context.Context, env *Env, _ *newProjectInput, cache *newProjectCache, submitted domain.JSONB) error {
	if cache.UserID == "" {
		return fmt.Errorf("project owner was never resolved")
	}
	if cache.UserState == userStateExisting || cache.PasswordSet {
		return nil
	}
	password, _ := submitted["password"].(string)
	if password == "" {
		return errMissingPassword
	}
	if err := env.Identity.UpdatePassword(ctx, cache.UserID, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	cache.PasswordSet = true
	return nil
}
