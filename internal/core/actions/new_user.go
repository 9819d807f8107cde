package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

const (
	userStateDefault  = "default"
	userStateExisting = "existing"
	userStateDisabled = "disabled"
)

var errMissingPassword = errors.New("password was not supplied")

type newUserInput struct {
	Email     string   `json:"email"`
	ProjectID string   `json:"project_id"`
	Roles     []string `json:"roles"`
	DomainID  string   `json:"domain_id"`
}

type newUserCache struct {
	UserID       string   `json:"user_id,omitempty"`
	PasswordSet  bool     `json:"password_set,omitempty"`
	UserEnabled  bool     `json:"user_enabled,omitempty"`
	RolesGranted []string `json:"roles_granted,omitempty"`
}

// NewUser invites a user, new or existing, onto a project with a set of roles.
func NewUser() Spec {
	return Define[newUserInput, newUserCache]("new_user", Meta{
		Fields:         []string{"email", "project_id", "roles", "domain_id"},
		RequiredFields: []string{"email", "project_id", "roles", "domain_id"},
		TokenFields:    []string{"password"},
	}, newUser{})
}

type newUser struct{}

func (newUser) Validate(ctx context.Context, env *Env, in *newUserInput) (Verdict, error) {
	if in.DomainID != env.DefaultDomain {
		return invalid("domain must be " + env.DefaultDomain), nil
	}
	project, err := env.Identity.GetProject(ctx, in.ProjectID)
	if err != nil {
		return Verdict{}, err
	}
	if project == nil {
		return invalid("project does not exist"), nil
	}
	if !env.CallerIsAdmin() && env.Request.ProjectID != in.ProjectID {
		return invalid("cannot invite users to another project"), nil
	}

	user, err := env.Identity.FindUser(ctx, in.Email)
	if err != nil {
		return Verdict{}, err
	}
	if user == nil {
		return Verdict{Valid: true, NeedToken: true, Derived: domain.JSONB{"user_state": userStateDefault}}, nil
	}
	if !user.Enabled {
		return Verdict{Valid: true, NeedToken: true, Derived: domain.JSONB{"user_state": userStateDisabled, "user_id": user.ID}}, nil
	}
	roles, err := env.Identity.GetRoles(ctx, user.ID, project.ID)
	if err != nil {
		return Verdict{}, err
	}
	if containsAll(roles, in.Roles) {
		return Verdict{
			Valid:    true,
			Complete: true,
			Notes:    []string{"user already has the requested roles"},
			Derived:  domain.JSONB{"user_state": userStateExisting, "user_id": user.ID},
		}, nil
	}
	return Verdict{Valid: true, NeedToken: true, Derived: domain.JSONB{"user_state": userStateExisting, "user_id": user.ID}}, nil
}

func (newUser) Execute(context.Context, *Env, *newUserInput, *newUserCache) error {
	return nil
}

func (newUser) Complete(ctx context.Context, env *Env, in *newUserInput, cache *newUserCache, submitted domain.JSONB) error {
	password, _ := submitted["password"].(string)

	if cache.UserID == "" {
		user, err := env.Identity.FindUser(ctx, in.Email)
		if err != nil {
			return err
		}
		if user == nil {
			if password == "" {
				return errMissingPassword
			}
			user, err = env.Identity.CreateUser(ctx, ports.CreateUserInput{
				Name:             in.Email,
				Email:            in.Email,
				Password:         password,
				DomainID:         in.DomainID,
				DefaultProjectID: in.ProjectID,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			cache.PasswordSet = true
		}
		cache.UserID = user.ID
	}

	user, err := env.Identity.GetUser(ctx, cache.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s vanished", cache.UserID)
	}
	if !user.Enabled && !cache.UserEnabled {
		if !cache.PasswordSet {
			if password == "" {
				return errMissingPassword
			}
			if err := env.Identity.UpdatePassword(ctx, user.ID, password); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			cache.PasswordSet = true
		}
		if err := env.Identity.EnableUser(ctx, user.ID); err != nil {
			return fmt.Errorf("enable user: %w", err)
		}
		cache.UserEnabled = true
	}

	for _, role := range in.Roles {
		if contains(cache.RolesGranted, role) {
			continue
		}
		if err := env.Identity.GrantRole(ctx, user.ID, in.ProjectID, role); err != nil {
			return fmt.Errorf("grant role %s: %w", role, err)
		}
		cache.RolesGranted = append(cache.RolesGranted, role)
	}
	return nil
}
