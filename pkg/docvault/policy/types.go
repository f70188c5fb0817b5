package policy

import (
	"time"

	"github.com/mikepea/docvault/pkg/docvault/models"
)

// Effect is the verdict of an authorization check
type Effect int

const (
	// Deny means the action is not permitted
	Deny Effect = iota
	// Allow means the action is permitted
	Allow
)

// String returns "allow" or "deny"
func (e Effect) String() string {
	if e == Allow {
		return "allow"
	}
	return "deny"
}

// Reason explains a denial. Reasons are for server-side logs and metrics only
// and must never be returned to a client.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonCrossTenant            Reason = "cross_tenant"
	ReasonNotOwner               Reason = "not_owner"
	ReasonScopeExceeded          Reason = "scope_exceeded"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonLastAdmin              Reason = "last_admin"
)

// Decision is the outcome of Engine.Authorize
type Decision struct {
	Effect Effect
	Reason Reason
}

// Allowed reports whether the decision permits the action
func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

func (d Decision) String() string {
	if d.Effect == Allow {
		return "allow"
	}
	return "deny(" + string(d.Reason) + ")"
}

func allow() Decision {
	return Decision{Effect: Allow}
}

func deny(reason Reason) Decision {
	return Decision{Effect: Deny, Reason: reason}
}

// ActionKind names an operation on a resource
type ActionKind string

const (
	KindRead         ActionKind = "read"
	KindDownload     ActionKind = "download"
	KindWrite        ActionKind = "write"
	KindDelete       ActionKind = "delete"
	KindShareCreate  ActionKind = "shareCreate"
	KindRoleChange   ActionKind = "roleChange"
	KindAdminListAll ActionKind = "adminListAll"
)

// Action is the operation being attempted. TargetRole is only meaningful for
// KindRoleChange.
type Action struct {
	Kind       ActionKind
	TargetRole models.Role
}

var (
	Read         = Action{Kind: KindRead}
	Download     = Action{Kind: KindDownload}
	Write        = Action{Kind: KindWrite}
	Delete       = Action{Kind: KindDelete}
	ShareCreate  = Action{Kind: KindShareCreate}
	AdminListAll = Action{Kind: KindAdminListAll}
)

// RoleChange builds the action of assigning target to a user
func RoleChange(target models.Role) Action {
	return Action{Kind: KindRoleChange, TargetRole: target}
}

func (a Action) String() string {
	if a.Kind == KindRoleChange {
		return string(a.Kind) + "(" + string(a.TargetRole) + ")"
	}
	return string(a.Kind)
}

// ResourceType is the kind of record being accessed
type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceUser     ResourceType = "user"
	ResourceTenant   ResourceType = "tenant"
)

// Share is one per-user grant on a document
type Share struct {
	UserID     string
	Permission models.Permission
}

// ResourceMeta is the minimal ownership and visibility data needed to decide
// access. For users OwnerUserID is the user's own id; tenants have no owner.
type ResourceMeta struct {
	Type        ResourceType
	ID          string
	TenantID    string
	OwnerUserID string
	Visibility  models.Visibility
	SharedWith  []Share

	// Set for users only
	CurrentRole      models.Role
	TenantAdminCount int64
}

// Capability is the scoped grant carried by a share-link principal
type Capability struct {
	LinkID      string
	DocumentID  string
	TenantID    string
	Permissions models.LinkPermissions
	ExpiresAt   *time.Time
}

// Principal is the identity making a request. A principal either has a user
// (UserID, TenantID, Role) or is capability-only, produced by validating a
// share link, in which case Capability is set and the user fields are empty.
type Principal struct {
	UserID   string
	TenantID string
	Role     models.Role

	Capability *Capability
}

// IsCapability reports whether p is a capability-only principal
func (p Principal) IsCapability() bool {
	return p.Capability != nil
}
