package users

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/documents"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MaxAvatarBytes caps avatar uploads
const MaxAvatarBytes = 2 << 20

var avatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// UserStore patches users through the storage contract
type UserStore interface {
	UpdateUser(ctx context.Context, id string, patch map[string]interface{}) (*models.User, error)
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

// Handler handles tenant user directory requests
type Handler struct {
	db    *gorm.DB
	users UserStore
	blobs blobstore.Store
	guard *access.Guard
	log   zerolog.Logger
}

// NewHandler creates a new users handler
func NewHandler(db *gorm.DB, users UserStore, blobs blobstore.Store, guard *access.Guard, log zerolog.Logger) *Handler {
	return &Handler{db: db, users: users, blobs: blobs, guard: guard, log: log}
}

// CreateUserRequest represents an admin adding a user to their tenant
type CreateUserRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=8"`
	FullName string      `json:"full_name" binding:"required"`
	Role     models.Role `json:"role"`
}

// UpdateProfileRequest represents a profile update. The avatar has its own
// upload endpoint.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	Bio      *string `json:"bio"`
}

// UpdateRoleRequest represents a role change
type UpdateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// List returns the users of the caller's tenant
// @Summary List tenant users
// @Tags users
// @Produce json
// @Param q query string false "Search email or name"
// @Param limit query int false "Max results (default 50, max 100)"
// @Param offset query int false "Offset for pagination"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users [get]
func (h *Handler) List(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)

	query := h.db.Where("tenant_id = ?", principal.TenantID).Order("email")
	if q := c.Query("q"); q != "" {
		searchTerm := "%" + q + "%"
		query = query.Where("email LIKE ? OR profile_full_name LIKE ?", searchTerm, searchTerm)
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var users []models.User
	if err := query.Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Create adds a user to the caller's tenant (admin only)
// @Summary Add a user to the tenant
// @Tags users
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "New user"
// @Success 201 {object} models.User
// @Failure 403 {object} map[string]string "Not an admin or user limit reached"
// @Failure 409 {object} map[string]string "Email already registered"
// @Security BearerAuth
// @Router /users [post]
func (h *Handler) Create(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)
	if _, ok := h.guard.Require(c, policy.Write, policy.ResourceTenant, principal.TenantID); !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing int64
	if err := h.db.Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	var tenant models.Tenant
	if err := h.db.Where("id = ?", principal.TenantID).First(&tenant).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	var members int64
	if err := h.db.Model(&models.User{}).Where("tenant_id = ?", tenant.ID).Count(&members).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	if members >= int64(tenant.Settings.MaxUsers) {
		c.JSON(http.StatusForbidden, gin.H{"error": "User limit reached for current plan"})
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		Profile:      models.Profile{FullName: req.FullName},
	}
	if err := h.db.Create(&user).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	h.log.Info().Str("user_id", user.ID).Str("tenant_id", tenant.ID).Str("created_by", principal.UserID).Msg("user created")
	c.JSON(http.StatusCreated, user)
}

// Get returns a user of the caller's tenant
// @Summary Get a user
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", meta.ID).First(&user).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Update changes a user's profile (self or tenant admin)
// @Summary Update a user profile
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Write, policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := map[string]interface{}{}
	if req.FullName != nil {
		if strings.TrimSpace(*req.FullName) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
			return
		}
		patch["profile_full_name"] = *req.FullName
	}
	if req.Bio != nil {
		patch["profile_bio"] = *req.Bio
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), meta.ID, patch)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateRole changes a user's role (tenant admin only). The tenant's last
// admin cannot be demoted.
// @Summary Change a user's role
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/{id}/role [put]
func (h *Handler) UpdateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta, ok := h.guard.Require(c, policy.RoleChange(req.Role), policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}
	principal, _ := auth.GetPrincipal(c)

	user, err := h.users.SetRole(c.Request.Context(), meta.ID, req.Role)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}

	h.log.Info().
		Str("user_id", user.ID).
		Str("from", string(meta.CurrentRole)).
		Str("to", string(user.Role)).
		Str("changed_by", principal.UserID).
		Msg("role changed")
	c.JSON(http.StatusOK, user)
}

// Delete soft-deletes a user together with their documents, drops their
// shares and deactivates the share links they issued
// @Summary Delete a user
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Delete, policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}

	now := time.Now()
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := documents.DeleteDocuments(tx, tx.Where("owner_user_id = ?", meta.ID), now); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", meta.ID).Delete(&models.DocumentShare{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ShareLink{}).
			Where("issued_by_user_id = ? AND is_active = ?", meta.ID, true).
			Updates(map[string]interface{}{"is_active": false, "revoked_at": now.UTC()}).Error; err != nil {
			return err
		}
		res := tx.Scopes(store.KeepsAdmin).Where("id = ?", meta.ID).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrLastAdmin
		}
		return nil
	})
	if err != nil {
		h.guard.Fail(c, err)
		return
	}

	h.log.Info().Str("user_id", meta.ID).Msg("user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// UploadAvatar replaces a user's avatar image (self or tenant admin)
// @Summary Upload an avatar
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "User ID"
// @Param avatar formData file true "PNG, JPEG, GIF or WebP image, at most 2 MB"
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/{id}/avatar [post]
func (h *Handler) UploadAvatar(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Write, policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar file is required"})
		return
	}
	if fileHeader.Size > MaxAvatarBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Avatar too large"})
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer src.Close()

	// The type is sniffed from the content, never taken from the client
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !avatarTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar must be a PNG, JPEG, GIF or WebP image"})
		return
	}

	ctx := c.Request.Context()
	ref, _, err := h.blobs.Put(ctx, io.MultiReader(bytes.NewReader(head), src), MaxAvatarBytes)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Avatar too large"})
			return
		}
		h.log.Error().Err(err).Msg("blob write failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}

	var previous models.User
	if err := h.db.Where("id = ?", meta.ID).First(&previous).Error; err != nil {
		h.blobs.Delete(ctx, ref)
		h.guard.Fail(c, err)
		return
	}
	user, err := h.users.UpdateUser(ctx, meta.ID, map[string]interface{}{
		"profile_avatar_ref":  ref,
		"profile_avatar_type": contentType,
	})
	if err != nil {
		h.blobs.Delete(ctx, ref)
		h.guard.Fail(c, err)
		return
	}
	if old := previous.Profile.AvatarRef; old != "" {
		if err := h.blobs.Delete(ctx, old); err != nil {
			h.log.Warn().Err(err).Str("user_id", meta.ID).Msg("failed to remove previous avatar")
		}
	}
	c.JSON(http.StatusOK, user)
}

// Avatar streams a user's avatar image
// @Summary Get an avatar
// @Tags users
// @Produce image/png
// @Param id path string true "User ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string "No avatar"
// @Security BearerAuth
// @Router /users/{id}/avatar [get]
func (h *Handler) Avatar(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceUser, c.Param("id"))
	if !ok {
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", meta.ID).First(&user).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	if user.Profile.AvatarRef == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	err := blobstore.Serve(c, h.blobs, blobstore.Attachment{
		Ref:         user.Profile.AvatarRef,
		Name:        "avatar",
		ContentType: user.Profile.AvatarType,
		Size:        -1,
	})
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", meta.ID).Msg("blob unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
	}
}

// RegisterRoutes registers user routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users", h.List)
	rg.POST("/users", h.Create)
	rg.GET("/users/:id", h.Get)
	rg.PUT("/users/:id", h.Update)
	rg.DELETE("/users/:id", h.Delete)
	rg.PUT("/users/:id/role", h.UpdateRole)
	rg.POST("/users/:id/avatar", h.UploadAvatar)
	rg.GET("/users/:id/avatar", h.Avatar)
}
