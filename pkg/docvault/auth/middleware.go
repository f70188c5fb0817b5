package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/rs/zerolog"
)

// ContextKeyPrincipal is the key for the resolved principal in gin context
const ContextKeyPrincipal = "principal"

// AuthMiddleware resolves the bearer credential and sets the principal in
// context. Every failure gets the same response; the cause is only logged.
func AuthMiddleware(resolver *Resolver, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, log, errors.New("missing bearer credential"))
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), credential)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrExpiredCredential), errors.Is(err, ErrPrincipalNotFound):
				unauthorized(c, log, err)
			default:
				log.Error().Err(err).Str("request_id", obs.RequestID(c)).Msg("principal resolution failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
			}
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(c *gin.Context, log zerolog.Logger, cause error) {
	log.Info().Err(cause).Str("request_id", obs.RequestID(c)).Msg("authentication failed")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

// GetPrincipal returns the principal set by AuthMiddleware
func GetPrincipal(c *gin.Context) (policy.Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return policy.Principal{}, false
	}
	p, ok := v.(policy.Principal)
	return p, ok
}
