package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type databaseBackend struct {
	db   *gorm.DB
	log  *logger.Logger
	cost int
}

// NewDatabase stores principals, projects and role assignments in SQL tables.
func NewDatabase(db *gorm.DB, log *logger.Logger, passwordCost int) ports.IdentityBackend {
	return &databaseBackend{db: db, log: log, cost: passwordCost}
}

func (b *databaseBackend) FindUser(ctx context.Context, name string) (*domain.Principal, error) {
	var p domain.Principal
	err := b.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		b.log.Errorw("identity_find_user_failed", "name", name, "error", err)
		return nil, err
	}
	return &p, nil
}

func (b *databaseBackend) GetUser(ctx context.Context, id string) (*domain.Principal, error) {
	var p domain.Principal
	err := b.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		b.log.Errorw("identity_get_user_failed", "id", id, "error", err)
		return nil, err
	}
	return &p, nil
}

func (b *databaseBackend) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.Principal, error) {
	hash, err := hashPassword(in.Password, b.cost)
	if err != nil {
		return nil, err
	}
	p := &domain.Principal{
		ID:               uuid.New().String(),
		Name:             in.Name,
		Email:            in.Email,
		DomainID:         in.DomainID,
		DefaultProjectID: in.DefaultProjectID,
		Enabled:          true,
		PasswordHash:     hash,
	}
	if err := b.db.WithContext(ctx).Create(p).Error; err != nil {
		b.log.Errorw("identity_create_user_failed", "name", in.Name, "error", err)
		return nil, err
	}
	b.log.Infow("identity_create_user_ok", "id", p.ID, "name", p.Name)
	return p, nil
}

func (b *databaseBackend) setEnabled(ctx context.Context, id string, enabled bool) error {
	res := b.db.WithContext(ctx).Model(&domain.Principal{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		b.log.Errorw("identity_set_enabled_failed", "id", id, "enabled", enabled, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("identity: user %s not found", id)
	}
	b.log.Infow("identity_set_enabled_ok", "id", id, "enabled", enabled)
	return nil
}

func (b *databaseBackend) EnableUser(ctx context.Context, id string) error {
	return b.setEnabled(ctx, id, true)
}

func (b *databaseBackend) DisableUser(ctx context.Context, id string) error {
	return b.setEnabled(ctx, id, false)
}

func (b *databaseBackend) UpdatePassword(ctx context.Context, id, password string) error {
	hash, err := hashPassword(password, b.cost)
	if err != nil {
		return err
	}
	res := b.db.WithContext(ctx).Model(&domain.Principal{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		b.log.Errorw("identity_update_password_failed", "id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("identity: user %s not found", id)
	}
	b.log.Infow("identity_update_password_ok", "id", id)
	return nil
}

func (b *databaseBackend) FindProject(ctx context.Context, name string) (*domain.Project, error) {
	var p domain.Project
	err := b.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		b.log.Errorw("identity_find_project_failed", "name", name, "error", err)
		return nil, err
	}
	return &p, nil
}

func (b *databaseBackend) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := b.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		b.log.Errorw("identity_get_project_failed", "id", id, "error", err)
		return nil, err
	}
	return &p, nil
}

func (b *databaseBackend) CreateProject(ctx context.Context, in ports.CreateProjectInput) (*domain.Project, error) {
	p := &domain.Project{
		ID:       uuid.New().String(),
		Name:     in.Name,
		DomainID: in.DomainID,
		ParentID: in.ParentID,
	}
	if err := b.db.WithContext(ctx).Create(p).Error; err != nil {
		b.log.Errorw("identity_create_project_failed", "name", in.Name, "error", err)
		return nil, err
	}
	b.log.Infow("identity_create_project_ok", "id", p.ID, "name", p.Name)
	return p, nil
}

func (b *databaseBackend) GetRoles(ctx context.Context, userID, projectID string) ([]string, error) {
	var roles []string
	err := b.db.WithContext(ctx).
		Model(&domain.RoleAssignment{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Order("role asc").
		Pluck("role", &roles).Error
	if err != nil {
		b.log.Errorw("identity_get_roles_failed", "user_id", userID, "project_id", projectID, "error", err)
		return nil, err
	}
	return roles, nil
}

func (b *databaseBackend) GrantRole(ctx context.Context, userID, projectID, role string) error {
	ra := &domain.RoleAssignment{UserID: userID, ProjectID: projectID, Role: role}
	if err := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ra).Error; err != nil {
		b.log.Errorw("identity_grant_role_failed", "user_id", userID, "project_id", projectID, "role", role, "error", err)
		return err
	}
	b.log.Infow("identity_grant_role_ok", "user_id", userID, "project_id", projectID, "role", role)
	return nil
}

func (b *databaseBackend) RevokeRole(ctx context.Context, userID, projectID, role string) error {
	err := b.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND role = ?", userID, projectID, role).
		Delete(&domain.RoleAssignment{}).Error
	if err != nil {
		b.log.Errorw("identity_revoke_role_failed", "user_id", userID, "project_id", projectID, "role", role, "error", err)
		return err
	}
	b.log.Infow("identity_revoke_role_ok", "user_id", userID, "project_id", projectID, "role", role)
	return nil
}
