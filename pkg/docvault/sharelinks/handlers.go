package sharelinks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/rs/zerolog"
)

// DocumentStore loads and patches documents
type DocumentStore interface {
	FindDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, id string, patch map[string]interface{}) (*models.Document, error)
}

// Handler serves share link management and the public /shared routes
type Handler struct {
	authority *Authority
	guard     *access.Guard
	docs      DocumentStore
	blobs     blobstore.Opener
	baseURL   string
	log       zerolog.Logger
}

// NewHandler creates a new share links handler
func NewHandler(authority *Authority, guard *access.Guard, docs DocumentStore, blobs blobstore.Opener, baseURL string, log zerolog.Logger) *Handler {
	return &Handler{
		authority: authority,
		guard:     guard,
		docs:      docs,
		blobs:     blobs,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		log:       log,
	}
}

// CreateLinkRequest represents a request to create a share link
type CreateLinkRequest struct {
	Permissions models.LinkPermissions `json:"permissions"`
	TTLSeconds  *int64                 `json:"ttl_seconds" binding:"omitempty,min=1,max=315360000"`
	MaxUses     *int                   `json:"max_uses" binding:"omitempty,min=1"`
}

// CreateLinkResponse includes the raw token (only shown once)
type CreateLinkResponse struct {
	Link  *models.ShareLink `json:"link"`
	Token string            `json:"token"`
	URL   string            `json:"url"`
}

// UpdateSharedRequest represents an edit made through a share link
type UpdateSharedRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// SharedDocument is the view of a document exposed through a share link
type SharedDocument struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

func sharedView(doc *models.Document) SharedDocument {
	return SharedDocument{
		ID:           doc.ID,
		Title:        doc.Title,
		Description:  doc.Description,
		OriginalName: doc.OriginalName,
		ContentType:  doc.ContentType,
		Size:         doc.Size,
		CreatedAt:    doc.CreatedAt,
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		h.guard.Fail(c, err)
	}
}

// Create issues a share link for a document
// @Summary Create share link
// @Tags share-links
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param request body CreateLinkRequest true "Link options"
// @Success 201 {object} CreateLinkResponse
// @Security BearerAuth
// @Router /documents/{id}/links [post]
func (h *Handler) Create(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.ShareCreate, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}
	principal, _ := auth.GetPrincipal(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue := IssueRequest{
		DocumentID:  meta.ID,
		Permissions: req.Permissions,
		MaxUses:     req.MaxUses,
	}
	if req.TTLSeconds != nil {
		issue.TTL = time.Duration(*req.TTLSeconds) * time.Second
	}

	issued, err := h.authority.Issue(c.Request.Context(), principal, issue)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateLinkResponse{
		Link:  issued.Link,
		Token: issued.Token,
		URL:   h.baseURL + "/shared/" + issued.Token,
	})
}

// List returns the share links of a document
// @Summary List share links
// @Tags share-links
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {array} models.ShareLink
// @Security BearerAuth
// @Router /documents/{id}/links [get]
func (h *Handler) List(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.ShareCreate, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}
	principal, _ := auth.GetPrincipal(c)

	links, err := h.authority.List(c.Request.Context(), principal, meta.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// Revoke deactivates a share link
// @Summary Revoke share link
// @Tags share-links
// @Param id path string true "Link ID"
// @Success 204
// @Security BearerAuth
// @Router /links/{id} [delete]
func (h *Handler) Revoke(c *gin.Context) {
	principal, _ := auth.GetPrincipal(c)
	if err := h.authority.Revoke(c.Request.Context(), principal, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// open validates the token in the path, loads the linked document and checks
// the capability allows action on it. On failure the response is written.
func (h *Handler) open(c *gin.Context, action policy.Action) (*models.Document, *models.ShareLink, bool) {
	principal, link, err := h.authority.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.linkUnavailable(c, err)
		return nil, nil, false
	}

	doc, err := h.docs.FindDocument(c.Request.Context(), link.DocumentID)
	if err != nil {
		h.linkUnavailable(c, err)
		return nil, nil, false
	}

	if !h.guard.Check(c, principal, action, locator.DocumentMeta(doc)) {
		return nil, nil, false
	}
	return doc, link, true
}

func (h *Handler) linkUnavailable(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLinkNotFound), errors.Is(err, ErrLinkExpired),
		errors.Is(err, ErrLinkRevoked), errors.Is(err, ErrLinkExhausted),
		errors.Is(err, store.ErrNotFound):
		h.log.Info().Err(err).Str("request_id", obs.RequestID(c)).Msg("share link rejected")
		c.JSON(http.StatusNotFound, gin.H{"error": "Share link not available"})
	default:
		h.guard.Fail(c, err)
	}
}

// View returns the shared document's details
// @Summary View shared document
// @Tags shared
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Share link not available"
// @Router /shared/{token} [get]
func (h *Handler) View(c *gin.Context) {
	doc, link, ok := h.open(c, policy.Read)
	if !ok {
		return
	}

	resp := gin.H{
		"document":    sharedView(doc),
		"permissions": link.Permissions,
		"expires_at":  link.ExpiresAt,
	}
	if link.MaxUses != nil {
		resp["remaining_uses"] = *link.MaxUses - link.UseCount
	}
	c.JSON(http.StatusOK, resp)
}

// Download streams the shared document's file
// @Summary Download shared document
// @Tags shared
// @Produce octet-stream
// @Param token path string true "Share token"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string "Share link not available"
// @Router /shared/{token}/download [get]
func (h *Handler) Download(c *gin.Context) {
	doc, _, ok := h.open(c, policy.Download)
	if !ok {
		return
	}
	err := blobstore.Serve(c, h.blobs, blobstore.Attachment{
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

// Update edits the shared document's title or description
// @Summary Edit shared document
// @Tags shared
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param request body UpdateSharedRequest true "Fields to change"
// @Success 200 {object} SharedDocument
// @Router /shared/{token} [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdateSharedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch := map[string]interface{}{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
			return
		}
		patch["title"] = *req.Title
	}
	if req.Description != nil {
		patch["description"] = *req.Description
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	doc, _, ok := h.open(c, policy.Write)
	if !ok {
		return
	}

	updated, err := h.docs.UpdateDocument(c.Request.Context(), doc.ID, patch)
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sharedView(updated))
}

// RegisterRoutes registers the authenticated link management routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/links", h.Create)
	rg.GET("/documents/:id/links", h.List)
	rg.DELETE("/links/:id", h.Revoke)
}

// RegisterPublicRoutes registers the token-authenticated /shared routes
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup, limiter *Limiter) {
	shared := rg.Group("/shared", limiter.Middleware())
	shared.GET("/:token", h.View)
	shared.GET("/:token/download", h.Download)
	shared.PUT("/:token", h.Update)
}
