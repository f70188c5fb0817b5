package documents

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BulkAction names what a bulk request does to each document
type BulkAction string

const (
	BulkDelete BulkAction = "delete"
	BulkUpdate BulkAction = "update"
	BulkShare  BulkAction = "share"
)

// BulkRequest applies one action to many documents
type BulkRequest struct {
	Action      BulkAction `json:"action" binding:"required"`
	DocumentIDs []string   `json:"document_ids" binding:"required,min=1,max=100"`
	// Data holds the fields to change for update
	Data UpdateDocumentRequest `json:"data"`
}

// BulkResult is the outcome for one requested document
type BulkResult struct {
	ID     string         `json:"id"`
	Status access.Verdict `json:"status"`
}

// BulkResponse lists a result per requested id in request order
type BulkResponse struct {
	Results  []BulkResult `json:"results"`
	Affected int          `json:"affected"`
}

// Bulk applies an action to several documents. Every id is authorized on
// its own and only the allowed ones are changed. Ids in other tenants are
// reported as not_found.
// @Summary Bulk document operation
// @Description delete removes documents, update changes title, description, metadata or visibility, share makes documents visible to shared users
// @Tags documents
// @Accept json
// @Produce json
// @Param request body BulkRequest true "Action and documents"
// @Success 200 {object} BulkResponse
// @Security BearerAuth
// @Router /documents/bulk [post]
func (h *Handler) Bulk(c *gin.Context) {
	principal, ok := auth.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var actions []policy.Action
	updates := map[string]interface{}{}
	switch req.Action {
	case BulkDelete:
		actions = []policy.Action{policy.Delete}
	case BulkShare:
		actions = []policy.Action{policy.ShareCreate}
		updates["visibility"] = models.VisibilityShared
	case BulkUpdate:
		actions = []policy.Action{policy.Write}
		d := req.Data
		if d.Title != nil {
			if strings.TrimSpace(*d.Title) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
				return
			}
			updates["title"] = *d.Title
		}
		if d.Description != nil {
			updates["description"] = *d.Description
		}
		if d.Metadata != nil {
			updates["metadata"] = datatypes.JSONMap(d.Metadata)
		}
		if d.Visibility != nil {
			if !d.Visibility.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid visibility"})
				return
			}
			actions = append(actions, policy.ShareCreate)
			updates["visibility"] = *d.Visibility
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}

	resp := BulkResponse{Results: make([]BulkResult, 0, len(req.DocumentIDs))}
	var allowed []string
	seen := map[string]bool{}
	for _, id := range req.DocumentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		verdict, err := h.evaluateAll(c, principal, actions, id)
		if err != nil {
			h.guard.Fail(c, err)
			return
		}
		resp.Results = append(resp.Results, BulkResult{ID: id, Status: verdict})
		if verdict == access.VerdictAllowed {
			allowed = append(allowed, id)
		}
	}

	if len(allowed) > 0 {
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if req.Action == BulkDelete {
				return DeleteDocuments(tx, tx.Where("id IN ?", allowed), time.Now())
			}
			return tx.Model(&models.Document{}).Where("id IN ?", allowed).Updates(updates).Error
		})
		if err != nil {
			h.guard.Fail(c, err)
			return
		}
	}
	resp.Affected = len(allowed)

	h.log.Info().Str("user_id", principal.UserID).Str("action", string(req.Action)).
		Int("requested", len(resp.Results)).Int("affected", resp.Affected).Msg("bulk document operation")
	c.JSON(http.StatusOK, resp)
}

// evaluateAll authorizes every action on one document and returns the first
// refusal.
func (h *Handler) evaluateAll(c *gin.Context, principal policy.Principal, actions []policy.Action, id string) (access.Verdict, error) {
	for _, action := range actions {
		_, verdict, err := h.guard.Evaluate(c, principal, action, policy.ResourceDocument, id)
		if err != nil || verdict != access.VerdictAllowed {
			return verdict, err
		}
	}
	return access.VerdictAllowed, nil
}
