// Package store is the storage contract the authorization core depends on:
// record lookup, patch updates and the atomic conditional increment that
// backs share link use limits.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/docvault/pkg/docvault/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means no live record has the given id
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps any other storage failure
	ErrUnavailable = errors.New("store: unavailable")
	// ErrLastAdmin means the write would leave a tenant without an admin
	ErrLastAdmin = errors.New("store: last admin")
)

// Gorm implements the storage contract on a gorm database
type Gorm struct {
	db *gorm.DB
}

// New creates a gorm-backed store
func New(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// FindTenant loads a tenant by id
func (s *Gorm) FindTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, wrap(err)
	}
	return &tenant, nil
}

// FindUser loads a live (not deleted) user by id
func (s *Gorm) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

// FindDocument loads a live document with its per-user shares
func (s *Gorm) FindDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Preload("SharedWith").Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, wrap(err)
	}
	return &doc, nil
}

// FindShareLink loads a share link by its public id
func (s *Gorm) FindShareLink(ctx context.Context, id string) (*models.ShareLink, error) {
	var link models.ShareLink
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, wrap(err)
	}
	return &link, nil
}

// FindShareLinkByTokenHash loads a share link by the hash of its token
func (s *Gorm) FindShareLinkByTokenHash(ctx context.Context, hash string) (*models.ShareLink, error) {
	var link models.ShareLink
	if err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&link).Error; err != nil {
		return nil, wrap(err)
	}
	return &link, nil
}

// ListShareLinks returns all links issued for a document, newest first
func (s *Gorm) ListShareLinks(ctx context.Context, documentID string) ([]models.ShareLink, error) {
	var links []models.ShareLink
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, wrap(err)
	}
	return links, nil
}

// CountAdmins counts live admin users in a tenant
func (s *Gorm) CountAdmins(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("tenant_id = ? AND role = ?", tenantID, models.RoleAdmin).
		Count(&count).Error
	return count, wrap(err)
}

// CreateShareLink persists a new share link
func (s *Gorm) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	return wrap(s.db.WithContext(ctx).Create(link).Error)
}

// UpdateUser applies a column patch to a live user and returns the result
func (s *Gorm) UpdateUser(ctx context.Context, id string, patch map[string]interface{}) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindUser(ctx, id)
}

// KeepsAdmin restricts a write on users to rows that are not admins, or
// whose tenant has another live admin. The count is evaluated inside the
// UPDATE itself, so two concurrent demotions cannot both pass it.
func KeepsAdmin(db *gorm.DB) *gorm.DB {
	return db.Where("(users.role <> ? OR (SELECT COUNT(*) FROM users AS admins"+
		" WHERE admins.tenant_id = users.tenant_id AND admins.role = ? AND admins.deleted_at IS NULL) > 1)",
		models.RoleAdmin, models.RoleAdmin)
}

// SetRole changes a user's role. Moving the tenant's only admin to another
// role fails with ErrLastAdmin.
func (s *Gorm) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	if role != models.RoleAdmin {
		q = q.Scopes(KeepsAdmin)
	}
	res := q.Update("role", role)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindUser(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrLastAdmin
	}
	return s.FindUser(ctx, id)
}

// UpdateDocument applies a column patch to a live document and returns the result
func (s *Gorm) UpdateDocument(ctx context.Context, id string, patch map[string]interface{}) (*models.Document, error) {
	res := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindDocument(ctx, id)
}

// DeactivateShareLink marks a link inactive. Already inactive links are left
// untouched so the original revocation time is kept.
func (s *Gorm) DeactivateShareLink(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": at}).Error
	return wrap(err)
}

// IncrementUseIfBelow consumes one use of a link in a single conditional
// UPDATE. It reports false when the link is inactive, expired at now, or
// already at its use limit. Two callers racing for the last use cannot both
// see true.
func (s *Gorm) IncrementUseIfBelow(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ? AND is_active = ?", id, true).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		Where("max_uses IS NULL OR use_count < max_uses").
		UpdateColumn("use_count", gorm.Expr("use_count + 1"))
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected == 1, nil
}
