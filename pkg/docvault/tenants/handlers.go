package tenants

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler handles tenant requests
type Handler struct {
	db    *gorm.DB
	guard *access.Guard
	log   zerolog.Logger
}

// NewHandler creates a new tenants handler
func NewHandler(db *gorm.DB, guard *access.Guard, log zerolog.Logger) *Handler {
	return &Handler{db: db, guard: guard, log: log}
}

// UpdateSettingsRequest represents a change to tenant limits
type UpdateSettingsRequest struct {
	MaxUsers     *int `json:"max_users" binding:"omitempty,min=1"`
	MaxStorageMB *int `json:"max_storage_mb" binding:"omitempty,min=1"`
}

// UpgradeRequest selects a new plan
type UpgradeRequest struct {
	Plan models.Plan `json:"plan" binding:"required"`
}

// TenantResponse is a tenant with its current usage
type TenantResponse struct {
	models.Tenant
	UserCount   int64 `json:"user_count"`
	StorageUsed int64 `json:"storage_used_bytes"`
}

// Current returns the caller's own tenant
// @Summary Get the current tenant
// @Tags tenants
// @Produce json
// @Success 200 {object} TenantResponse
// @Security BearerAuth
// @Router /tenant [get]
func (h *Handler) Current(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)
	h.respond(c, principal.TenantID)
}

// Get returns a tenant by ID
// @Summary Get a tenant
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} TenantResponse
// @Failure 404 {object} map[string]string "Not found"
// @Security BearerAuth
// @Router /tenants/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceTenant, c.Param("id"))
	if !ok {
		return
	}
	h.respond(c, meta.ID)
}

// UpdateSettings changes tenant limits (admin only)
// @Summary Update tenant settings
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body UpdateSettingsRequest true "Settings"
// @Success 200 {object} TenantResponse
// @Security BearerAuth
// @Router /tenants/{id}/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Write, policy.ResourceTenant, c.Param("id"))
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.MaxUsers != nil {
		updates["settings_max_users"] = *req.MaxUsers
	}
	if req.MaxStorageMB != nil {
		updates["settings_max_storage_mb"] = *req.MaxStorageMB
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := h.db.Model(&models.Tenant{}).Where("id = ?", meta.ID).Updates(updates).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	principal, _ := auth.GetPrincipal(c)
	h.log.Info().Str("tenant_id", meta.ID).Str("changed_by", principal.UserID).Interface("settings", updates).Msg("tenant settings updated")
	h.respond(c, meta.ID)
}

// Upgrade moves the tenant to another plan (admin only). Billing happens
// elsewhere; no payment data is accepted or stored here.
// @Summary Change the tenant plan
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body UpgradeRequest true "Plan"
// @Success 200 {object} TenantResponse
// @Security BearerAuth
// @Router /tenants/{id}/upgrade [post]
func (h *Handler) Upgrade(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Write, policy.ResourceTenant, c.Param("id"))
	if !ok {
		return
	}

	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Plan.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan"})
		return
	}

	if err := h.db.Model(&models.Tenant{}).Where("id = ?", meta.ID).Update("plan", req.Plan).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	principal, _ := auth.GetPrincipal(c)
	h.log.Info().Str("tenant_id", meta.ID).Str("plan", string(req.Plan)).Str("changed_by", principal.UserID).Msg("tenant plan changed")
	h.respond(c, meta.ID)
}

func (h *Handler) respond(c *gin.Context, tenantID string) {
	var resp TenantResponse
	if err := h.db.Where("id = ?", tenantID).First(&resp.Tenant).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	if err := h.db.Model(&models.User{}).Where("tenant_id = ?", tenantID).Count(&resp.UserCount).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	if err := h.db.Model(&models.Document{}).Where("tenant_id = ?", tenantID).
		Select("COALESCE(SUM(size), 0)").Scan(&resp.StorageUsed).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers tenant routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tenant", h.Current)
	rg.GET("/tenants/:id", h.Get)
	rg.PUT("/tenants/:id/settings", h.UpdateSettings)
	rg.POST("/tenants/:id/upgrade", h.Upgrade)
}
