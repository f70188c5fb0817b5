package models

import "time"

// LinkPermissions are the capabilities a share link grants on its document
type LinkPermissions struct {
	View     bool `json:"can_view"`
	Download bool `json:"can_download"`
	Edit     bool `json:"can_edit"`
}

// ShareLink is a capability token scoped to a single document.
// Only a hash of the token is stored; the raw token is shown once at issue.
// Links are never deleted, only deactivated, so they remain available for audit.
type ShareLink struct {
	ID             string          `gorm:"type:varchar(26);primaryKey" json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	TokenHash      string          `gorm:"uniqueIndex;not null" json:"-"`
	TokenPrefix    string          `gorm:"not null" json:"token_prefix"`
	DocumentID     string          `gorm:"type:varchar(36);not null;index" json:"document_id"`
	TenantID       string          `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	IssuedByUserID string          `gorm:"type:varchar(36);not null;index" json:"issued_by_user_id"`
	Permissions    LinkPermissions `gorm:"embedded;embeddedPrefix:can_" json:"permissions"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	MaxUses        *int            `json:"max_uses"`
	UseCount       int             `gorm:"not null;default:0" json:"use_count"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	RevokedAt      *time.Time      `json:"revoked_at,omitempty"`
}
