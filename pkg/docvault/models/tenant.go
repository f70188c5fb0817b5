package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Plan is a tenant's billing tier
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// TenantSettings holds per-tenant limits
type TenantSettings struct {
	MaxUsers     int `gorm:"default:10" json:"max_users"`
	MaxStorageMB int `gorm:"default:1024" json:"max_storage_mb"`
}

// Tenant is an isolated organization. Every user and document belongs to
// exactly one tenant and is never moved to another.
type Tenant struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Name      string         `gorm:"not null" json:"name"`
	Subdomain string         `gorm:"uniqueIndex;not null" json:"subdomain"`
	Plan      Plan           `gorm:"type:varchar(20);default:'free'" json:"plan"`
	Settings  TenantSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
}

// BeforeCreate assigns a random identifier
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
