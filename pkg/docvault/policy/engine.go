// Package policy decides whether a principal may perform an action on a
// resource. The engine holds no mutable state and performs no I/O; it is
// safe for concurrent use.
package policy

import (
	"time"

	"github.com/mikepea/docvault/pkg/docvault/models"
)

// Engine evaluates authorization rules
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine. now is consulted only for capability expiry;
// nil means time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Authorize returns the decision for p attempting a on the resource described
// by meta. Rules are evaluated in order and the first match wins:
//
//  1. capability principals are limited to the link's document and permissions
//  2. no action crosses a tenant boundary, whatever the role
//  3. write and delete by a non-owner need the admin role or a covering share
//  4. role changes need the admin role and must leave the tenant an admin
//  5. public documents are readable by everyone in the tenant
//  6. anything else needs ownership, a share or the admin role
func (e *Engine) Authorize(p Principal, a Action, meta ResourceMeta) Decision {
	if p.IsCapability() {
		return e.authorizeCapability(p.Capability, a, meta)
	}

	if p.TenantID == "" || p.TenantID != meta.TenantID {
		return deny(ReasonCrossTenant)
	}

	switch a.Kind {
	case KindWrite, KindDelete:
		return authorizeMutation(p, a, meta)
	case KindRoleChange:
		return authorizeRoleChange(p, a, meta)
	}

	if a.Kind == KindRead && meta.Type == ResourceDocument && meta.Visibility == models.VisibilityPublic {
		return allow()
	}

	switch a.Kind {
	case KindRead, KindDownload:
		if canRead(p, meta) {
			return allow()
		}
	case KindShareCreate:
		if meta.Type == ResourceDocument && (isOwner(p, meta) || isAdmin(p) || sharePermission(p, meta).Covers(models.PermissionAdmin)) {
			return allow()
		}
	case KindAdminListAll:
		if isAdmin(p) {
			return allow()
		}
	}
	return deny(ReasonInsufficientPermission)
}

func (e *Engine) authorizeCapability(c *Capability, a Action, meta ResourceMeta) Decision {
	if meta.Type != ResourceDocument || meta.ID != c.DocumentID || meta.TenantID != c.TenantID {
		return deny(ReasonScopeExceeded)
	}
	if c.ExpiresAt != nil && !e.now().Before(*c.ExpiresAt) {
		return deny(ReasonScopeExceeded)
	}

	var granted bool
	switch a.Kind {
	case KindRead:
		granted = c.Permissions.View
	case KindDownload:
		granted = c.Permissions.Download
	case KindWrite:
		granted = c.Permissions.Edit
	}
	if !granted {
		return deny(ReasonScopeExceeded)
	}
	return allow()
}

func authorizeMutation(p Principal, a Action, meta ResourceMeta) Decision {
	required := models.PermissionEdit
	if a.Kind == KindDelete {
		required = models.PermissionAdmin
	}

	permitted := isOwner(p, meta) || isAdmin(p) ||
		(meta.Type == ResourceDocument && sharePermission(p, meta).Covers(required))
	if !permitted {
		return deny(ReasonNotOwner)
	}

	if a.Kind == KindDelete && removesLastAdmin(meta) {
		return deny(ReasonLastAdmin)
	}
	return allow()
}

func authorizeRoleChange(p Principal, a Action, meta ResourceMeta) Decision {
	if meta.Type != ResourceUser {
		return deny(ReasonInsufficientPermission)
	}
	// Checked first so the last admin cannot demote themself either.
	if a.TargetRole != models.RoleAdmin && removesLastAdmin(meta) {
		return deny(ReasonLastAdmin)
	}
	if !isAdmin(p) || !a.TargetRole.Valid() {
		return deny(ReasonInsufficientPermission)
	}
	return allow()
}

func removesLastAdmin(meta ResourceMeta) bool {
	return meta.Type == ResourceUser && meta.CurrentRole == models.RoleAdmin && meta.TenantAdminCount <= 1
}

func canRead(p Principal, meta ResourceMeta) bool {
	switch meta.Type {
	case ResourceUser, ResourceTenant:
		return true
	case ResourceDocument:
		return isOwner(p, meta) || isAdmin(p) || sharePermission(p, meta).Valid()
	}
	return false
}

func isOwner(p Principal, meta ResourceMeta) bool {
	return meta.OwnerUserID != "" && meta.OwnerUserID == p.UserID
}

func isAdmin(p Principal) bool {
	return p.Role == models.RoleAdmin
}

// sharePermission returns the permission p holds through the document's share
// list, or the zero Permission when p has none.
func sharePermission(p Principal, meta ResourceMeta) models.Permission {
	for _, s := range meta.SharedWith {
		if s.UserID == p.UserID {
			return s.Permission
		}
	}
	return ""
}
