package documents

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
)

// CommentRequest adds a comment to a document
type CommentRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// CommentResponse represents a comment together with its author
type CommentResponse struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ListComments returns a document's comments, oldest first
// @Summary List document comments
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {array} CommentResponse
// @Security BearerAuth
// @Router /documents/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}

	var comments []CommentResponse
	err := h.db.Table("document_comments").
		Select("document_comments.id, document_comments.user_id, users.email, users.profile_full_name AS full_name, document_comments.text, document_comments.created_at").
		Joins("LEFT JOIN users ON users.id = document_comments.user_id").
		Where("document_comments.document_id = ?", meta.ID).
		Order("document_comments.created_at, document_comments.id").
		Scan(&comments).Error
	if err != nil {
		h.guard.Fail(c, err)
		return
	}
	if comments == nil {
		comments = []CommentResponse{}
	}
	c.JSON(http.StatusOK, comments)
}

// AddComment comments on a document. Anyone who can read the document may
// comment on it.
// @Summary Comment on a document
// @Tags documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param request body CommentRequest true "Comment text"
// @Success 201 {object} CommentResponse
// @Security BearerAuth
// @Router /documents/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	meta, ok := h.guard.Require(c, policy.Read, policy.ResourceDocument, c.Param("id"))
	if !ok {
		return
	}
	principal, _ := auth.GetPrincipal(c)

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment cannot be empty"})
		return
	}

	var author models.User
	if err := h.db.Where("id = ?", principal.UserID).First(&author).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}
	comment := models.DocumentComment{DocumentID: meta.ID, UserID: author.ID, Text: text}
	if err := h.db.Create(&comment).Error; err != nil {
		h.guard.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, CommentResponse{
		ID:        comment.ID,
		UserID:    author.ID,
		Email:     author.Email,
		FullName:  author.Profile.FullName,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
	})
}
