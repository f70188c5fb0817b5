package documents

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const bytesPerMB = 1 << 20

var errQuotaExceeded = errors.New("documents: storage quota exceeded")

// Handler handles document requests
type Handler struct {
	db             *gorm.DB
	guard          *access.Guard
	blobs          blobstore.Store
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewHandler creates a new documents handler
func NewHandler(db *gorm.DB, guard *access.Guard, blobs blobstore.Store, maxUploadBytes int64, log zerolog.Logger) *Handler {
	return &Handler{db: db, guard: guard, blobs: blobs, maxUploadBytes: maxUploadBytes, log: log}
}

// UpdateDocumentRequest represents the request to update a document
type UpdateDocumentRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Visibility  *models.Visibility     `json:"visibility"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ShareRequest grants a user of the same tenant access to a document
type ShareRequest struct {
	Email      string            `json:"email" binding:"required,email"`
	Permission models.Permission `json:"permission" binding:"required"`
}

// ShareResponse represents a per-user share in responses
type ShareResponse struct {
	UserID     string            `json:"user_id"`
	Email      string            `json:"email"`
	FullName   string            `json:"full_name"`
	Permission models.Permission `json:"permission"`
}

// List returns the documents visible to the caller
// @Summary List documents
// @Description Documents the caller owns, has been shared, or that are public in the tenant. With all=true, tenant admins get every document in the tenant.
// @Tags documents
// @Produce json
// @Param q query string false "Search title and description"
// @Param all query bool false "List every document in the tenant (admin)"
// @Param limit query int false "Max results (default 50, max 100)"
// @Param offset query int false "Offset for pagination"
// @Success 200 {array} models.Document
// @Security BearerAuth
// @Router /documents [get]
func (h *Handler) List(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)

	query := h.db.Where("tenant_id = ?", principal.TenantID).Order("created_at DESC")

	if c.Query("all") == "true" {
		if _, ok := h.guard.Require(c, policy.AdminListAll, policy.ResourceTenant, principal.TenantID); !ok {
			return
		}
	} else {
		query = query.Where(
			"owner_user_id = ? OR visibility = ? OR id IN (?)",
			principal.UserID,
			models.VisibilityPublic,
			h.db.Model(&models.DocumentShare{}).Select("document_id").Where("user_id = ?", principal.UserID),
		)
	}

	if q := c.Query("q"); q != "" {
		searchTerm := "%" + q + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", searchTerm, searchTerm)
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

	var docs []models.Document
	if err := query.Limit(limit).Offset(offset).Find(&docs).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// usedStorage returns the bytes held by live documents of a tenant
func (h *Handler) usedStorage(tenantID string) (int64, error) {
	var used int64
	err := h.db.Model(&models.Document{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&used).Error
	return used, err
}

// Upload stores a new document owned by the caller
// @Summary Upload a document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File contents"
// @Param title formData string false "Title (defaults to the file name)"
// @Param description formData string false "Description"
// @Param visibility formData string false "private, shared or public"
// @Param metadata formData string false "JSON object of custom metadata"
// @Success 201 {object} models.Document
// @Failure 413 {object} map[string]string "File too large or storage quota exceeded"
// @Security BearerAuth
// @Router /documents [post]
func (h *Handler) Upload(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}

	visibility := models.Visibility(c.DefaultPostForm("visibility", string(models.VisibilityPrivate)))
	if !visibility.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid visibility"})
		return
	}

	var metadata datatypes.JSONMap
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Metadata must be a JSON object"})
			return
		}
	}

	originalName := filepath.Base(fileHeader.Filename)
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = originalName
	}

	tenant, err := h.findTenant(principal.TenantID)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	used, err := h.usedStorage(tenant.ID)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	limit := int64(tenant.Settings.MaxStorageMB)*bytesPerMB - used
	if h.maxUploadBytes > 0 && h.maxUploadBytes < limit {
		limit = h.maxUploadBytes
	}
	if limit <= 0 || fileHeader.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large or storage quota exceeded"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer src.Close()

	ref, size, err := h.blobs.Put(c.Request.Context(), src, limit)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large or storage quota exceeded"})
			return
		}
		h.log.Error().Err(err).Msg("blob write failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc := models.Document{
		TenantID:     principal.TenantID,
		OwnerUserID:  principal.UserID,
		Title:        title,
		Description:  c.PostForm("description"),
		FileRef:      ref,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         size,
		Visibility:   visibility,
		Metadata:     metadata,
	}
	// The insert takes the write lock, so the sum seen here includes every
	// upload committed before it.
	quota := int64(tenant.Settings.MaxStorageMB) * bytesPerMB
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		var total int64
		if err := tx.Model(&models.Document{}).Where("tenant_id = ?", doc.TenantID).
			Select("COALESCE(SUM(size), 0)").Scan(&total).Error; err != nil {
			return err
		}
		if total > quota {
			return errQuotaExceeded
		}
		return nil
	})
	if err != nil {
		h.blobs.Delete(c.Request.Context(), ref)
		if errors.Is(err, errQuotaExceeded) {
			h.log.Info().Str("tenant_id", doc.TenantID).Int64("size", size).Msg("upload refused over quota")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large or storage quota exceeded"})
			return
		}
		h.guard.Fail(c, err)
		return
	}

	h.log.Info().Str("document_id", doc.ID).Str("user_id", principal.UserID).Int64("size", size).Msg("document uploaded")
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) findTenant(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := h.db.Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (h *Handler) findDocument(id string) (*models.Document, error) {
	var doc models.Document
	if err := h.db.Preload("SharedWith").Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get returns a document
// @Summary Get a document
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} models.Document
// @Failure 404 {object} map[string]string "Not found"
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	doc, err := h.findDocument(meta.ID)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Update changes a document's details. Changing visibility needs the same
// right as sharing the document.
// @Summary Update a document
// @Tags documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param request body UpdateDocumentRequest true "Fields to change"
// @Success 200 {object} models.Document
// @Security BearerAuth
// @Router /documents/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Write, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}
	principal, _ := auth.GetPrincipal(c)

	var req UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
			return
		}
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(req.Metadata)
	}
	if req.Visibility != nil && *req.Visibility != meta.Visibility {
		if !req.Visibility.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid visibility"})
			return
		}
		if !h.guard.Check(c, principal, policy.ShareCreate, meta) {
			return
		}
		updates["visibility"] = *req.Visibility
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.Document{}).Where("id = ?", meta.ID).Updates(updates).Error; err != nil {
			h.guard.Fail(c, err)
			return
		}
	}

	doc, err := h.findDocument(meta.ID)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete soft-deletes a document, removes its shares and deactivates its
// share links
// @Summary Delete a document
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /documents/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Delete, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		return DeleteDocuments(tx, tx.Where("id = ?", meta.ID), time.Now())
	})
	if err != nil {
		h.guard.Fail(c, err)
		return
	}

	h.log.Info().Str("document_id", meta.ID).Msg("document deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

// DeleteDocuments soft-deletes the documents matched by scope inside tx.
// Their per-user shares and comments are dropped and their share links
// deactivated.
func DeleteDocuments(tx *gorm.DB, scope *gorm.DB, at time.Time) error {
	var ids []string
	if err := scope.Model(&models.Document{}).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&models.DocumentShare{}).Error; err != nil {
		return err
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&models.DocumentComment{}).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.ShareLink{}).
		Where("document_id IN ? AND is_active = ?", ids, true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": at.UTC()}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Document{}).Error
}

// Download streams a document's file
// @Summary Download a document
// @Tags documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /documents/{id}/download [get]
func (h *Handler) Download(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Download, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	doc, err := h.findDocument(meta.ID)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	err = blobstore.Serve(c, h.blobs, blobstore.Attachment{
		Ref:         doc.FileRef,
		Name:        doc.OriginalName,
		ContentType: doc.ContentType,
		Size:        doc.Size,
	})
	if err != nil {
		h.log.Error().Err(err).Str("document_id", doc.ID).Msg("blob unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
	}
}

// ListShares returns the per-user shares of a document
// @Summary List document shares
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {array} ShareResponse
// @Security BearerAuth
// @Router /documents/{id}/shares [get]
func (h *Handler) ListShares(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	var shares []ShareResponse
	err := h.db.Table("document_shares").
		Select("document_shares.user_id, users.email, users.profile_full_name AS full_name, document_shares.permission").
		Joins("JOIN users ON users.id = document_shares.user_id AND users.deleted_at IS NULL").
		Where("document_shares.document_id = ?", meta.ID).
		Order("users.email").
		Scan(&shares).Error
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	if shares == nil {
		shares = []ShareResponse{}
	}
	c.JSON(http.StatusOK, shares)
}

// Share grants or changes a user's access to a document. The target is looked
// up by email within the document's tenant only.
// @Summary Share a document with a user
// @Tags documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param request body ShareRequest true "User and permission"
// @Success 200 {object} ShareResponse
// @Security BearerAuth
// @Router /documents/{id}/shares [post]
func (h *Handler) Share(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.ShareCreate, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Permission.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid permission"})
		return
	}

	var target models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.db.Where("tenant_id = ? AND email = ?", meta.TenantID, email).First(&target).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if target.ID == meta.OwnerUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot share a document with its owner"})
		return
	}

	share := models.DocumentShare{DocumentID: meta.ID, UserID: target.ID}
	err := h.db.Where(share).Assign(models.DocumentShare{Permission: req.Permission}).FirstOrCreate(&share).Error
	if err != nil {
		h.guard.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ShareResponse{
		UserID:     target.ID,
		Email:      target.Email,
		FullName:   target.Profile.FullName,
		Permission: share.Permission,
	})
}

// Unshare removes a user's access to a document
// @Summary Remove a document share
// @Tags documents
// @Param id path string true "Document ID"
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /documents/{id}/shares/{userId} [delete]
func (h *Handler) Unshare(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.ShareCreate, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	res := h.db.Where("document_id = ? AND user_id = ?", meta.ID, c.Param("userId")).Delete(&models.DocumentShare{})
	if res.Error != nil {
		h.guard.Fail(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Share not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Share removed"})
}

// RegisterRoutes registers document routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents", h.List)
	rg.POST("/documents", h.Upload)
	rg.POST("/documents/bulk", h.Bulk)
	rg.GET("/documents/:id", h.Get)
	rg.PUT("/documents/:id", h.Update)
	rg.DELETE("/documents/:id", h.Delete)
	rg.GET("/documents/:id/download", h.Download)
	rg.GET("/documents/:id/shares", h.ListShares)
	rg.POST("/documents/:id/shares", h.Share)
	rg.DELETE("/documents/:id/shares/:userId", h.Unshare)
	rg.GET("/documents/:id/comments", h.ListComments)
	rg.POST("/documents/:id/comments", h.AddComment)
}
