// Package sharelinks issues, validates and revokes share links: bearer
// capabilities that grant scoped access to a single document without an
// account.
package sharelinks

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/docvault/pkg/docvault/ids"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/rs/zerolog"
)

const (
	// TokenLength is the number of random bytes in a token (256 bits)
	TokenLength = 32
	// TokenPrefixLength is the number of token characters kept for identification
	TokenPrefixLength = 8
)

var (
	ErrLinkNotFound   = errors.New("sharelinks: link not found")
	ErrLinkExpired    = errors.New("sharelinks: link expired")
	ErrLinkExhausted  = errors.New("sharelinks: link exhausted")
	ErrLinkRevoked    = errors.New("sharelinks: link revoked")
	ErrNotAuthorized  = errors.New("sharelinks: not authorized")
	ErrInvalidRequest = errors.New("sharelinks: invalid request")
)

// Store is the storage the authority needs
type Store interface {
	FindDocument(ctx context.Context, id string) (*models.Document, error)
	FindShareLink(ctx context.Context, id string) (*models.ShareLink, error)
	FindShareLinkByTokenHash(ctx context.Context, hash string) (*models.ShareLink, error)
	ListShareLinks(ctx context.Context, documentID string) ([]models.ShareLink, error)
	CreateShareLink(ctx context.Context, link *models.ShareLink) error
	DeactivateShareLink(ctx context.Context, id string, at time.Time) error
	IncrementUseIfBelow(ctx context.Context, id string, now time.Time) (bool, error)
}

// Options configures an Authority
type Options struct {
	// DefaultTTL applies when a request names no lifetime
	DefaultTTL time.Duration
	// MaxTTL caps requested lifetimes
	MaxTTL time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Authority owns the share link lifecycle
type Authority struct {
	store   Store
	engine  *policy.Engine
	opts    Options
	metrics *obs.Metrics
	log     zerolog.Logger
}

// NewAuthority creates an authority. metrics may be nil.
func NewAuthority(s Store, engine *policy.Engine, opts Options, metrics *obs.Metrics, log zerolog.Logger) *Authority {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	if opts.MaxTTL < opts.DefaultTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	return &Authority{store: s, engine: engine, opts: opts, metrics: metrics, log: log}
}

// IssueRequest describes a link to create. A zero TTL means the default
// lifetime; longer lifetimes are capped. MaxUses, when set, must be positive.
type IssueRequest struct {
	DocumentID  string
	Permissions models.LinkPermissions
	TTL         time.Duration
	MaxUses     *int
}

// Issued is a newly created link together with its raw token. The token is
// not stored and cannot be recovered later.
type Issued struct {
	Link  *models.ShareLink
	Token string
}

func generateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func wellFormed(token string) bool {
	if len(token) != TokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// Issue creates a link for a document the principal may share
func (a *Authority) Issue(ctx context.Context, p policy.Principal, req IssueRequest) (*Issued, error) {
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return nil, fmt.Errorf("%w: max uses must be at least 1", ErrInvalidRequest)
	}
	if req.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidRequest)
	}
	perms := req.Permissions
	if !perms.View && !perms.Download && !perms.Edit {
		return nil, fmt.Errorf("%w: at least one permission is required", ErrInvalidRequest)
	}

	doc, err := a.store.FindDocument(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if d := a.engine.Authorize(p, policy.ShareCreate, locator.DocumentMeta(doc)); !d.Allowed() {
		a.log.Info().Str("document_id", doc.ID).Str("user_id", p.UserID).Str("reason", string(d.Reason)).Msg("share link issue denied")
		return nil, ErrNotAuthorized
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = a.opts.DefaultTTL
	}
	if ttl > a.opts.MaxTTL {
		ttl = a.opts.MaxTTL
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	expiresAt := a.opts.Now().UTC().Add(ttl)
	link := &models.ShareLink{
		ID:             ids.New(),
		TokenHash:      hashToken(token),
		TokenPrefix:    token[:TokenPrefixLength],
		DocumentID:     doc.ID,
		TenantID:       doc.TenantID,
		IssuedByUserID: p.UserID,
		Permissions:    perms,
		ExpiresAt:      &expiresAt,
		MaxUses:        req.MaxUses,
		IsActive:       true,
	}
	if err := a.store.CreateShareLink(ctx, link); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("link_id", link.ID).
		Str("document_id", doc.ID).
		Str("user_id", p.UserID).
		Time("expires_at", expiresAt).
		Msg("share link issued")
	return &Issued{Link: link, Token: token}, nil
}

// classify returns why a link cannot be used at now, or nil if it can
func classify(link *models.ShareLink, now time.Time) error {
	switch {
	case link.ExpiresAt != nil && !now.Before(*link.ExpiresAt):
		return ErrLinkExpired
	case !link.IsActive:
		return ErrLinkRevoked
	case link.MaxUses != nil && link.UseCount >= *link.MaxUses:
		return ErrLinkExhausted
	}
	return nil
}

// Validate consumes one use of the link named by token and returns a
// capability principal scoped to its document. Concurrent callers racing for
// the last use get exactly one success.
func (a *Authority) Validate(ctx context.Context, token string) (policy.Principal, *models.ShareLink, error) {
	link, err := a.validate(ctx, token)
	a.metrics.ObserveLinkValidation(outcome(err))
	if err != nil {
		return policy.Principal{}, nil, err
	}

	return policy.Principal{
		Capability: &policy.Capability{
			LinkID:      link.ID,
			DocumentID:  link.DocumentID,
			TenantID:    link.TenantID,
			Permissions: link.Permissions,
			ExpiresAt:   link.ExpiresAt,
		},
	}, link, nil
}

func (a *Authority) validate(ctx context.Context, token string) (*models.ShareLink, error) {
	if !wellFormed(token) {
		return nil, ErrLinkNotFound
	}
	link, err := a.store.FindShareLinkByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	now := a.opts.Now()
	if err := classify(link, now); err != nil {
		return nil, err
	}

	ok, err := a.store.IncrementUseIfBelow(ctx, link.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race, or the link changed since it was read
		latest, err := a.store.FindShareLink(ctx, link.ID)
		if err != nil {
			return nil, err
		}
		if err := classify(latest, now); err != nil {
			return nil, err
		}
		return nil, ErrLinkExhausted
	}
	link.UseCount++
	return link, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLinkNotFound):
		return "not_found"
	case errors.Is(err, ErrLinkExpired):
		return "expired"
	case errors.Is(err, ErrLinkRevoked):
		return "revoked"
	case errors.Is(err, ErrLinkExhausted):
		return "exhausted"
	}
	return "error"
}

// Revoke deactivates a link. Only its issuer or an admin of its tenant may
// revoke it; links of other tenants are reported as not found. Revoking an
// inactive link is a no-op.
func (a *Authority) Revoke(ctx context.Context, p policy.Principal, linkID string) error {
	if p.IsCapability() {
		return ErrNotAuthorized
	}
	link, err := a.store.FindShareLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	if link.TenantID != p.TenantID {
		return ErrLinkNotFound
	}
	if link.IssuedByUserID != p.UserID && p.Role != models.RoleAdmin {
		return ErrNotAuthorized
	}
	if !link.IsActive {
		return nil
	}

	if err := a.store.DeactivateShareLink(ctx, link.ID, a.opts.Now().UTC()); err != nil {
		return err
	}
	a.log.Info().Str("link_id", link.ID).Str("user_id", p.UserID).Msg("share link revoked")
	return nil
}

// List returns the links of a document the principal may share
func (a *Authority) List(ctx context.Context, p policy.Principal, documentID string) ([]models.ShareLink, error) {
	doc, err := a.store.FindDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if d := a.engine.Authorize(p, policy.ShareCreate, locator.DocumentMeta(doc)); !d.Allowed() {
		return nil, ErrNotAuthorized
	}
	return a.store.ListShareLinks(ctx, doc.ID)
}
