package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
)

// ErrPrincipalNotFound means the credential names a user that no longer exists
var ErrPrincipalNotFound = errors.New("auth: principal not found")

// UserFinder loads users by id
type UserFinder interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

// Resolver turns bearer credentials into principals
type Resolver struct {
	signer *Signer
	users  UserFinder
}

// NewResolver creates a resolver
func NewResolver(signer *Signer, users UserFinder) *Resolver {
	return &Resolver{signer: signer, users: users}
}

// Resolve verifies credential and returns the principal of its user, with
// role and tenant taken from the stored user record.
func (r *Resolver) Resolve(ctx context.Context, credential string) (policy.Principal, error) {
	claims, err := r.signer.Validate(credential)
	if err != nil {
		return policy.Principal{}, err
	}

	user, err := r.users.FindUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return policy.Principal{}, ErrPrincipalNotFound
		}
		return policy.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}

	return policy.Principal{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
	}, nil
}
