package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Visibility controls who inside a tenant can read a document
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityShared, VisibilityPublic:
		return true
	}
	return false
}

// Permission is the level granted by a per-user share
type Permission string

const (
	PermissionView  Permission = "view"
	PermissionEdit  Permission = "edit"
	PermissionAdmin Permission = "admin"
)

func (p Permission) rank() int {
	switch p {
	case PermissionView:
		return 1
	case PermissionEdit:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

// Valid reports whether p is a known permission
func (p Permission) Valid() bool {
	return p.rank() > 0
}

// Covers reports whether p grants at least the required level
func (p Permission) Covers(required Permission) bool {
	return p.rank() > 0 && p.rank() >= required.rank()
}

// Document is an uploaded file owned by a user inside a tenant.
// TenantID always equals the owner's tenant and never changes.
type Document struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
	TenantID     string            `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	OwnerUserID  string            `gorm:"type:varchar(36);not null;index" json:"owner_user_id"`
	Title        string            `gorm:"not null" json:"title"`
	Description  string            `json:"description"`
	FileRef      string            `gorm:"not null" json:"-"` // opaque blobstore reference
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Visibility   Visibility        `gorm:"type:varchar(20);default:'private'" json:"visibility"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`

	// Relationships
	SharedWith []DocumentShare `gorm:"foreignKey:DocumentID" json:"shared_with,omitempty"`
}

// BeforeCreate assigns a random identifier
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DocumentShare grants a same-tenant user access to a document
type DocumentShare struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DocumentID string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_document_user" json:"document_id"`
	UserID     string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_document_user" json:"user_id"`
	Permission Permission `gorm:"type:varchar(20);not null" json:"permission"`
}

// DocumentComment is a note left on a document by a user who can read it
type DocumentComment struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	DocumentID string    `gorm:"type:varchar(36);not null;index" json:"document_id"`
	UserID     string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
}
