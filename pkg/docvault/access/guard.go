// Package access gates route handlers on policy decisions. It turns a denied
// decision into an opaque response and records the real reason in logs and
// metrics only.
package access

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Locator resolves resource references
type Locator interface {
	Locate(ctx context.Context, typ policy.ResourceType, id string) (policy.ResourceMeta, error)
}

// Guard runs locate and authorize for route handlers
type Guard struct {
	locator Locator
	engine  *policy.Engine
	metrics *obs.Metrics
	log     zerolog.Logger
}

// NewGuard creates a guard. metrics may be nil.
func NewGuard(loc Locator, engine *policy.Engine, metrics *obs.Metrics, log zerolog.Logger) *Guard {
	return &Guard{locator: loc, engine: engine, metrics: metrics, log: log}
}

// Require locates the resource and authorizes the principal in context to
// perform action on it. On success it returns the resource metadata. On
// failure the response has already been written and the caller must return.
func (g *Guard) Require(c *gin.Context, action policy.Action, typ policy.ResourceType, id string) (policy.ResourceMeta, bool) {
	principal, ok := auth.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return policy.ResourceMeta{}, false
	}

	meta, err := g.locator.Locate(c.Request.Context(), typ, id)
	if err != nil {
		g.Fail(c, err)
		return policy.ResourceMeta{}, false
	}

	if !g.Check(c, principal, action, meta) {
		return policy.ResourceMeta{}, false
	}
	return meta, true
}

// Check authorizes principal against already located metadata. A denial is
// answered with 404 when it crosses tenants, so ids in another tenant are
// indistinguishable from missing ones, and 403 otherwise.
func (g *Guard) Check(c *gin.Context, principal policy.Principal, action policy.Action, meta policy.ResourceMeta) bool {
	decision := g.engine.Authorize(principal, action, meta)
	g.record(c, principal, action, meta, decision)

	if decision.Allowed() {
		return true
	}
	if decision.Reason == policy.ReasonCrossTenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	} else {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	}
	return false
}

// Verdict is the outcome of Evaluate. Cross-tenant denials are reported as
// VerdictNotFound so a caller listing per-item results leaks nothing.
type Verdict string

const (
	VerdictAllowed   Verdict = "ok"
	VerdictNotFound  Verdict = "not_found"
	VerdictForbidden Verdict = "forbidden"
)

// Evaluate locates and authorizes one resource without writing a response,
// for handlers that act on many resources per request. The decision is
// logged and counted like any other. Only storage failures return an error.
func (g *Guard) Evaluate(c *gin.Context, principal policy.Principal, action policy.Action, typ policy.ResourceType, id string) (policy.ResourceMeta, Verdict, error) {
	meta, err := g.locator.Locate(c.Request.Context(), typ, id)
	if err != nil {
		if isNotFound(err) {
			return policy.ResourceMeta{}, VerdictNotFound, nil
		}
		return policy.ResourceMeta{}, "", err
	}

	decision := g.engine.Authorize(principal, action, meta)
	g.record(c, principal, action, meta, decision)
	switch {
	case decision.Allowed():
		return meta, VerdictAllowed, nil
	case decision.Reason == policy.ReasonCrossTenant:
		return policy.ResourceMeta{}, VerdictNotFound, nil
	default:
		return policy.ResourceMeta{}, VerdictForbidden, nil
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, locator.ErrNotFound) || errors.Is(err, store.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// Fail writes the response for a lookup or storage error. A write refused
// at the storage layer for removing a tenant's last admin is a denial.
func (g *Guard) Fail(c *gin.Context, err error) {
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if errors.Is(err, store.ErrLastAdmin) {
		g.log.Info().Str("request_id", obs.RequestID(c)).Str("reason", string(policy.ReasonLastAdmin)).Msg("write refused by storage")
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	g.log.Error().Err(err).Str("request_id", obs.RequestID(c)).Msg("storage unavailable")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
}

func (g *Guard) record(c *gin.Context, p policy.Principal, action policy.Action, meta policy.ResourceMeta, d policy.Decision) {
	g.metrics.ObserveDecision(string(action.Kind), d.Effect.String(), string(d.Reason))

	event := g.log.Debug()
	if !d.Allowed() {
		event = g.log.Info()
	}
	event = event.
		Str("request_id", obs.RequestID(c)).
		Str("action", action.String()).
		Str("resource_type", string(meta.Type)).
		Str("resource_id", meta.ID).
		Str("resource_tenant_id", meta.TenantID).
		Str("effect", d.Effect.String())
	if p.IsCapability() {
		event = event.Str("link_id", p.Capability.LinkID)
	} else {
		event = event.Str("user_id", p.UserID).Str("tenant_id", p.TenantID)
	}
	if d.Reason != policy.ReasonNone {
		event = event.Str("reason", string(d.Reason))
	}
	event.Msg("authorization decision")
}
