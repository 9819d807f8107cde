package actions

import (
	"context"
	"fmt"

	"github.com/stackgate/backend/internal/domain"
)

type editRolesInput struct {
	UserID    string   `json:"user_id"`
	ProjectID string   `json:"project_id"`
	Roles     []string `json:"roles"`
	Remove    bool     `json:"remove"`
}

type editRolesCache struct {
	RolesChanged []string `json:"roles_changed,omitempty"`
}

// EditUserRoles adds or removes roles for an existing user on a project.
func EditUserRoles() Spec {
	return Define[editRolesInput, editRolesCache]("edit_user_roles", Meta{
		Fields:         []string{"user_id", "project_id", "roles", "remove"},
		RequiredFields: []string{"user_id", "project_id", "roles"},
	}, editUserRoles{})
}

type editUserRoles struct{}

func (editUserRoles) Validate(ctx context.Context, env *Env, in *editRolesInput) (Verdict, error) {
	user, err := env.Identity.GetUser(ctx, in.UserID)
	if err != nil {
		return Verdict{}, err
	}
	if user == nil {
		return invalid("user does not exist"), nil
	}
	project, err := env.Identity.GetProject(ctx, in.ProjectID)
	if err != nil {
		return Verdict{}, err
	}
	if project == nil {
		return invalid("project does not exist"), nil
	}
	if !env.CallerIsAdmin() && env.Request.ProjectID != in.ProjectID {
		return invalid("cannot edit roles on another project"), nil
	}

	held, err := env.Identity.GetRoles(ctx, user.ID, project.ID)
	if err != nil {
		return Verdict{}, err
	}
	if (in.Remove && !containsAny(held, in.Roles)) || (!in.Remove && containsAll(held, in.Roles)) {
		return Verdict{Valid: true, Complete: true, Notes: []string{"user roles already match the request"}}, nil
	}
	return Verdict{Valid: true}, nil
}

func (editUserRoles) Execute(ctx context.Context, env *Env, in *editRolesInput, cache *editRolesCache) error {
	held, err := env.Identity.GetRoles(ctx, in.UserID, in.ProjectID)
	if err != nil {
		return err
	}
	for _, role := range in.Roles {
		if contains(cache.RolesChanged, role) {
			continue
		}
		switch {
		case in.Remove && contains(held, role):
			if err := env.Identity.RevokeRole(ctx, in.UserID, in.ProjectID, role); err != nil {
				return fmt.Errorf("revoke role %s: %w", role, err)
			}
		case !in.Remove && !contains(held, role):
			if err := env.Identity.GrantRole(ctx, in.UserID, in.ProjectID, role); err != nil {
				return fmt.Errorf("grant role %s: %w", role, err)
			}
		}
		cache.RolesChanged = append(cache.RolesChanged, role)
	}
	return nil
}

func (editUserRoles) Complete(context.Context, *Env, *editRolesInput, *editRolesCache, domain.JSONB) error {
	return nil
}
