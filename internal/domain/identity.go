package domain

import "time"

// Principal is a user account held by the identity backend.
type Principal struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	Name             string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Email            string    `gorm:"size:255;index" json:"email"`
	DomainID         string    `gorm:"size:64;not null" json:"domain_id"`
	DefaultProjectID string    `gorm:"size:64" json:"default_project_id,omitempty"`
	Enabled          bool      `gorm:"not null;default:true" json:"enabled"`
	PasswordHash     string    `gorm:"size:255" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Principal) TableName() string { return "identity_users" }

// Project is a resource that roles are granted on.
type Project struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	DomainID  string    `gorm:"size:64;not null" json:"domain_id"`
	ParentID  string    `gorm:"size:64" json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Project) TableName() string { return "identity_projects" }

type RoleAssignment struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	ProjectID string    `gorm:"primaryKey;size:64" json:"project_id"`
	Role      string    `gorm:"primaryKey;size:64" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (RoleAssignment) TableName() string { return "identity_role_assignments" }
