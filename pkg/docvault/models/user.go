package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a user's capability tier within their tenant
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a recognized role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Profile holds user-editable profile fields. The avatar is only ever set by
// uploading through the API; its blob reference is never exposed.
type Profile struct {
	FullName   string `json:"full_name"`
	Bio        string `json:"bio"`
	AvatarRef  string `json:"-"`
	AvatarType string `json:"-"`
}

// User represents a user in the system
type User struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID     string         `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         Role           `gorm:"type:varchar(20);default:'user'" json:"role"`
	Profile      Profile        `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`

	// Relationships
	Tenant Tenant `gorm:"foreignKey:TenantID" json:"-"`
}

// BeforeCreate assigns a random identifier
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
