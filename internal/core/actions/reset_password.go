package actions

import (
	"context"
	"fmt"

	"github.com/stackgate/backend/internal/domain"
)

type resetPasswordInput struct {
	Email string `json:"email"`
}

type resetPasswordCache struct {
	PasswordReset bool `json:"password_reset,omitempty"`
}

func ResetUserPassword() Spec {
	return Define[resetPasswordInput, resetPasswordCache]("reset_user_password", Meta{
		Fields:         []string{"email"},
		RequiredFields: []string{"email"},
		TokenFields:    []string{"password"},
	}, resetUserPassword{})
}

type resetUserPassword struct{}

func (resetUserPassword) Validate(ctx context.Context, env *Env, in *resetPasswordInput) (Verdict, error) {
	user, err := env.Identity.FindUser(ctx, in.Email)
	if err != nil {
		return Verdict{}, err
	}
	if user == nil {
		return invalid("user does not exist"), nil
	}
	return Verdict{Valid: true, NeedToken: true, Derived: domain.JSONB{"user_id": user.ID}}, nil
}

func (resetUserPassword) Execute(context.Context, *Env, *resetPasswordInput, *resetPasswordCache) error {
	return nil
}

func (resetUserPassword) Complete(ctx context.Context, env *Env, in *resetPasswordInput, cache *resetPasswordCache, submitted domain.JSONB) error {
	if cache.PasswordReset {
		return nil
	}
	password, _ := submitted["password"].(string)
	if password == "" {
		return errMissingPassword
	}
	userID := env.derivedString("user_id")
	if userID == "" {
		user, err := env.Identity.FindUser(ctx, in.Email)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s no longer exists", in.Email)
		}
		userID = user.ID
	}
	if err := env.Identity.UpdatePassword(ctx, userID, password); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	cache.PasswordReset = true
	return nil
}
