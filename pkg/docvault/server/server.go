// Package server assembles the docvault HTTP API.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/admin"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/config"
	"github.com/mikepea/docvault/pkg/docvault/documents"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/sharelinks"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/mikepea/docvault/pkg/docvault/tenants"
	"github.com/mikepea/docvault/pkg/docvault/users"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps are the collaborators the API is built from
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Blobs   blobstore.Store
	Log     zerolog.Logger
	Metrics *obs.Metrics
}

// New builds the router. Every authenticated route goes through the same
// resolve, locate and authorize sequence via access.Guard.
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if d.Metrics == nil {
		d.Metrics = obs.NewMetrics()
	}

	s := store.New(d.DB)
	engine := policy.NewEngine(nil)
	guard := access.NewGuard(locator.New(s), engine, d.Metrics, d.Log)
	signer := auth.NewSigner([]byte(cfg.JWTSecret), cfg.TokenTTL)
	requireAuth := auth.AuthMiddleware(auth.NewResolver(signer, s), d.Log)

	authority := sharelinks.NewAuthority(s, engine, sharelinks.Options{
		DefaultTTL: cfg.ShareLinkTTL,
		MaxTTL:     cfg.ShareLinkMaxTTL,
	}, d.Metrics, d.Log)

	r := gin.New()
	r.Use(gin.Recovery(), obs.RequestLogger(d.Log), d.Metrics.Instrument())
	r.MaxMultipartMemory = 8 << 20

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Share link consumption (capability token in the path, rate limited)
	linksHandler := sharelinks.NewHandler(authority, guard, s, d.Blobs, cfg.BaseURL, d.Log)
	linksHandler.RegisterPublicRoutes(&r.RouterGroup, sharelinks.NewLimiter(cfg.ShareRatePerSec, cfg.ShareRateBurst))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "docvault",
			})
		})

		// Auth routes (public, /me and /change-password authenticated)
		auth.NewHandler(d.DB, signer, d.Log).RegisterRoutes(api.Group("/auth"), requireAuth)

		protected := api.Group("", requireAuth)
		documents.NewHandler(d.DB, guard, d.Blobs, cfg.MaxUploadBytes, d.Log).RegisterRoutes(protected)
		linksHandler.RegisterRoutes(protected)
		users.NewHandler(d.DB, s, d.Blobs, guard, d.Log).RegisterRoutes(protected)
		tenants.NewHandler(d.DB, guard, d.Log).RegisterRoutes(protected)
		admin.NewHandler(d.DB, guard).RegisterRoutes(protected.Group("/admin"))
	}

	return r
}
