package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"gorm.io/gorm"
)

// Handler handles the tenant admin console. Every endpoint is limited to
// the caller's own tenant.
type Handler struct {
	db    *gorm.DB
	guard *access.Guard
	now   func() time.Time
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, guard *access.Guard) *Handler {
	return &Handler{db: db, guard: guard, now: time.Now}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	FullName      string      `json:"full_name"`
	Role          models.Role `json:"role"`
	CreatedAt     string      `json:"created_at"`
	LastLoginAt   *time.Time  `json:"last_login_at,omitempty"`
	DocumentCount int64       `json:"document_count"`
	StorageUsed   int64       `json:"storage_used_bytes"`
}

// DocumentResponse represents document data in admin responses
type DocumentResponse struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	OwnerEmail string            `json:"owner_email"`
	Visibility models.Visibility `json:"visibility"`
	Size       int64             `json:"size"`
	CreatedAt  string            `json:"created_at"`
	ShareCount int64             `json:"share_count"`
}

// StatsResponse represents tenant statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	AdminUsers       int64 `json:"admin_users"`
	TotalDocuments   int64 `json:"total_documents"`
	PublicDocuments  int64 `json:"public_documents"`
	PrivateDocuments int64 `json:"private_documents"`
	SharedDocuments  int64 `json:"shared_documents"`
	StorageUsed      int64 `json:"storage_used_bytes"`
	ActiveShareLinks int64 `json:"active_share_links"`
	ShareLinkUses    int64 `json:"share_link_uses"`
}

// tenantScope authorizes the caller for the console and returns their tenant
func (h *Handler) tenantScope(c *gin.Context) (string, bool) {
	principal, _ := auth.GetPrincipal(c)
	meta, ok := h.guard.Require(c, policy.AdminListAll, policy.ResourceTenant, principal.TenantID)
	if !ok {
		return "", false
	}
	return meta.ID, true
}

// GetStats returns statistics for the caller's tenant (admin only)
// @Summary Tenant statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	var stats StatsResponse
	users := func() *gorm.DB { return h.db.Model(&models.User{}).Where("tenant_id = ?", tenantID) }
	docs := func() *gorm.DB { return h.db.Model(&models.Document{}).Where("tenant_id = ?", tenantID) }

	queries := []*gorm.DB{
		users().Count(&stats.TotalUsers),
		users().Where("role = ?", models.RoleAdmin).Count(&stats.AdminUsers),
		docs().Count(&stats.TotalDocuments),
		docs().Where("visibility = ?", models.VisibilityPublic).Count(&stats.PublicDocuments),
		docs().Where("visibility = ?", models.VisibilityPrivate).Count(&stats.PrivateDocuments),
		docs().Where("visibility = ?", models.VisibilityShared).Count(&stats.SharedDocuments),
		docs().Select("COALESCE(SUM(size), 0)").Scan(&stats.StorageUsed),
		h.db.Model(&models.ShareLink{}).Where("tenant_id = ? AND is_active = ?", tenantID, true).
			Where("expires_at IS NULL OR expires_at > ?", h.now().UTC()).
			Count(&stats.ActiveShareLinks),
		h.db.Model(&models.ShareLink{}).Where("tenant_id = ?", tenantID).
			Select("COALESCE(SUM(use_count), 0)").Scan(&stats.ShareLinkUses),
	}
	for _, q := range queries {
		if q.Error != nil {
			h.guard.Fail(c, q.Error)
			return
		}
	}

	c.JSON(http.StatusOK, stats)
}

// ListUsers returns every user of the caller's tenant (admin only)
// @Summary List tenant users with usage
// @Tags admin
// @Produce json
// @Param q query string false "Search email or name"
// @Param role query string false "Filter by role"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	query := h.db.Where("tenant_id = ?", tenantID).Order("created_at DESC")
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR profile_full_name LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		var docCount, used int64
		if err := h.db.Model(&models.Document{}).Where("owner_user_id = ?", user.ID).Count(&docCount).Error; err != nil {
			h.guard.Fail(c, err)
			return
		}
		if err := h.db.Model(&models.Document{}).Where("owner_user_id = ?", user.ID).
			Select("COALESCE(SUM(size), 0)").Scan(&used).Error; err != nil {
			h.guard.Fail(c, err)
			return
		}

		responses[i] = UserResponse{
			ID:            user.ID,
			Email:         user.Email,
			FullName:      user.Profile.FullName,
			Role:          user.Role,
			CreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339),
			LastLoginAt:   user.LastLoginAt,
			DocumentCount: docCount,
			StorageUsed:   used,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// ListDocuments returns every document of the caller's tenant regardless
// of visibility (admin only)
// @Summary List tenant documents
// @Tags admin
// @Produce json
// @Param owner query string false "Filter by owner user ID"
// @Param visibility query string false "Filter by visibility"
// @Success 200 {array} DocumentResponse
// @Security BearerAuth
// @Router /admin/documents [get]
func (h *Handler) ListDocuments(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	query := h.db.Table("documents").
		Select("documents.id, documents.title, documents.visibility, documents.size, documents.created_at, users.email AS owner_email").
		Joins("LEFT JOIN users ON users.id = documents.owner_user_id").
		Where("documents.tenant_id = ? AND documents.deleted_at IS NULL", tenantID).
		Order("documents.created_at DESC")
	if owner := c.Query("owner"); owner != "" {
		query = query.Where("documents.owner_user_id = ?", owner)
	}
	if visibility := c.Query("visibility"); visibility != "" {
		query = query.Where("documents.visibility = ?", visibility)
	}

	var rows []struct {
		ID         string
		Title      string
		Visibility models.Visibility
		Size       int64
		CreatedAt  time.Time
		OwnerEmail string
	}
	if err := query.Scan(&rows).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	responses := make([]DocumentResponse, len(rows))
	for i, row := range rows {
		var shares int64
		if err := h.db.Model(&models.DocumentShare{}).Where("document_id = ?", row.ID).Count(&shares).Error; err != nil {
			h.guard.Fail(c, err)
			return
		}
		responses[i] = DocumentResponse{
			ID:         row.ID,
			Title:      row.Title,
			OwnerEmail: row.OwnerEmail,
			Visibility: row.Visibility,
			Size:       row.Size,
			CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
			ShareCount: shares,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/documents", h.ListDocuments)
}
