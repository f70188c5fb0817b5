// Package locator loads the ownership metadata the policy engine needs for a
// resource reference.
package locator

import (
	"context"
	"errors"

	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
)

// ErrNotFound means the reference does not resolve to a live record
var ErrNotFound = errors.New("locator: not found")

// Store is the subset of the storage contract the locator reads from
type Store interface {
	FindTenant(ctx context.Context, id string) (*models.Tenant, error)
	FindUser(ctx context.Context, id string) (*models.User, error)
	FindDocument(ctx context.Context, id string) (*models.Document, error)
	CountAdmins(ctx context.Context, tenantID string) (int64, error)
}

// Locator resolves resource references to policy.ResourceMeta
type Locator struct {
	store Store
}

// New creates a locator backed by s
func New(s Store) *Locator {
	return &Locator{store: s}
}

// Locate returns the metadata for the resource. Missing records and unknown
// types both yield ErrNotFound; other storage failures are returned as is.
func (l *Locator) Locate(ctx context.Context, typ policy.ResourceType, id string) (policy.ResourceMeta, error) {
	if id == "" {
		return policy.ResourceMeta{}, ErrNotFound
	}
	switch typ {
	case policy.ResourceDocument:
		doc, err := l.store.FindDocument(ctx, id)
		if err != nil {
			return policy.ResourceMeta{}, notFound(err)
		}
		return DocumentMeta(doc), nil
	case policy.ResourceUser:
		user, err := l.store.FindUser(ctx, id)
		if err != nil {
			return policy.ResourceMeta{}, notFound(err)
		}
		admins, err := l.store.CountAdmins(ctx, user.TenantID)
		if err != nil {
			return policy.ResourceMeta{}, err
		}
		return UserMeta(user, admins), nil
	case policy.ResourceTenant:
		tenant, err := l.store.FindTenant(ctx, id)
		if err != nil {
			return policy.ResourceMeta{}, notFound(err)
		}
		return TenantMeta(tenant), nil
	}
	return policy.ResourceMeta{}, ErrNotFound
}

// DocumentMeta builds the metadata of an already loaded document
func DocumentMeta(doc *models.Document) policy.ResourceMeta {
	shares := make([]policy.Share, 0, len(doc.SharedWith))
	for _, s := range doc.SharedWith {
		shares = append(shares, policy.Share{UserID: s.UserID, Permission: s.Permission})
	}
	return policy.ResourceMeta{
		Type:        policy.ResourceDocument,
		ID:          doc.ID,
		TenantID:    doc.TenantID,
		OwnerUserID: doc.OwnerUserID,
		Visibility:  doc.Visibility,
		SharedWith:  shares,
	}
}

// UserMeta builds the metadata of an already loaded user
func UserMeta(user *models.User, tenantAdmins int64) policy.ResourceMeta {
	return policy.ResourceMeta{
		Type:             policy.ResourceUser,
		ID:               user.ID,
		TenantID:         user.TenantID,
		OwnerUserID:      user.ID,
		CurrentRole:      user.Role,
		TenantAdminCount: tenantAdmins,
	}
}

// TenantMeta builds the metadata of a tenant
func TenantMeta(tenant *models.Tenant) policy.ResourceMeta {
	return policy.ResourceMeta{
		Type:     policy.ResourceTenant,
		ID:       tenant.ID,
		TenantID: tenant.ID,
	}
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
