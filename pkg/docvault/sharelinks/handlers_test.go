package sharelinks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/rs/zerolog"
)

func setupRouter(t *testing.T, f *fixture, as models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	blobs, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ref, size, _ := blobs.Put(context.Background(), strings.NewReader("file contents"), 0)
	f.db.Model(&f.doc).Updates(map[string]interface{}{"file_ref": ref, "size": size, "original_name": "plan.txt", "content_type": "text/plain"})

	engine := policy.NewEngine(f.clock.Now)
	guard := access.NewGuard(locator.New(f.store), engine, nil, zerolog.Nop())
	handler := NewHandler(f.authority, guard, f.store, blobs, "https://docs.example.com/", zerolog.Nop())

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(auth.ContextKeyPrincipal, f.principal(as))
	})
	handler.RegisterRoutes(api)
	handler.RegisterPublicRoutes(&r.RouterGroup, NewLimiter(100, 100))
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reader = bytes.NewBuffer(jsonBody)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateAndUseLink(t *testing.T) {
	f := setupFixture(t)
	r := setupRouter(t, f, f.owner)

	resp := doJSON(r, "POST", "/api/documents/"+f.doc.ID+"/links", CreateLinkRequest{
		Permissions: models.LinkPermissions{View: true, Download: true},
		MaxUses:     intPtr(2),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created CreateLinkResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.URL != "https://docs.example.com/shared/"+created.Token {
		t.Errorf("Unexpected URL %s", created.URL)
	}
	if strings.Contains(resp.Body.String(), "token_hash") {
		t.Error("Token hash must not be exposed")
	}

	resp = doJSON(r, "GET", "/shared/"+created.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var view struct {
		Document      SharedDocument `json:"document"`
		RemainingUses int            `json:"remaining_uses"`
	}
	json.Unmarshal(resp.Body.Bytes(), &view)
	if view.Document.Title != "Plan" || view.RemainingUses != 1 {
		t.Errorf("Unexpected view: %s", resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "file_ref") {
		t.Error("File reference must not be exposed")
	}

	resp = doJSON(r, "GET", "/shared/"+created.Token+"/download", nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "file contents" {
		t.Fatalf("Expected file download, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "plan.txt") {
		t.Errorf("Unexpected Content-Disposition %q", resp.Header().Get("Content-Disposition"))
	}

	resp = doJSON(r, "GET", "/shared/"+created.Token, nil)
	if resp.Code != http.StatusNotFound || resp.Body.String() != `{"error":"Share link not available"}` {
		t.Errorf("Expected exhausted link to be unavailable, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSharedScope(t *testing.T) {
	f := setupFixture(t)
	r := setupRouter(t, f, f.owner)

	viewOnly := f.issue(t, IssueRequest{Permissions: models.LinkPermissions{View: true}})
	resp := doJSON(r, "GET", "/shared/"+viewOnly.Token+"/download", nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected view-only download to be forbidden, got %d", resp.Code)
	}
	resp = doJSON(r, "PUT", "/shared/"+viewOnly.Token, UpdateSharedRequest{Title: strPtr("Hacked")})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected view-only edit to be forbidden, got %d", resp.Code)
	}

	editor := f.issue(t, IssueRequest{Permissions: models.LinkPermissions{View: true, Edit: true}})
	resp = doJSON(r, "PUT", "/shared/"+editor.Token, UpdateSharedRequest{Title: strPtr("Renamed")})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected edit to succeed, got %d: %s", resp.Code, resp.Body.String())
	}
	doc, _ := f.store.FindDocument(context.Background(), f.doc.ID)
	if doc.Title != "Renamed" {
		t.Errorf("Expected title Renamed, got %s", doc.Title)
	}

	resp = doJSON(r, "PUT", "/shared/"+editor.Token, UpdateSharedRequest{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected empty edit to be rejected, got %d", resp.Code)
	}

	resp = doJSON(r, "GET", "/shared/not-a-token", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected unknown token to be 404, got %d", resp.Code)
	}
}

func TestLinkManagementAuthorization(t *testing.T) {
	f := setupFixture(t)
	issued := f.issue(t, IssueRequest{Permissions: models.LinkPermissions{View: true}})

	member := setupRouter(t, f, f.member)
	resp := doJSON(member, "POST", "/api/documents/"+f.doc.ID+"/links", CreateLinkRequest{Permissions: models.LinkPermissions{View: true}})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member create to be forbidden, got %d", resp.Code)
	}
	resp = doJSON(member, "GET", "/api/documents/"+f.doc.ID+"/links", nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member list to be forbidden, got %d", resp.Code)
	}
	resp = doJSON(member, "DELETE", "/api/links/"+issued.Link.ID, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member revoke to be forbidden, got %d", resp.Code)
	}

	owner := setupRouter(t, f, f.owner)
	resp = doJSON(owner, "POST", "/api/documents/"+f.doc.ID+"/links", CreateLinkRequest{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected link without permissions to be rejected, got %d", resp.Code)
	}
	resp = doJSON(owner, "GET", "/api/documents/"+f.doc.ID+"/links", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected owner list to succeed, got %d", resp.Code)
	}
	resp = doJSON(owner, "DELETE", "/api/links/"+issued.Link.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected owner revoke to succeed, got %d", resp.Code)
	}
	resp = doJSON(owner, "GET", "/shared/"+issued.Token, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected revoked link to be unavailable, got %d", resp.Code)
	}
}

func TestCreateLinkTTLBounds(t *testing.T) {
	f := setupFixture(t)
	r := setupRouter(t, f, f.owner)
	path := "/api/documents/" + f.doc.ID + "/links"

	// Large enough to overflow a duration once converted to nanoseconds
	resp := doJSON(r, "POST", path, map[string]interface{}{
		"permissions": map[string]bool{"view": true},
		"ttl_seconds": int64(18446744074),
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected oversized TTL to be rejected, got %d: %s", resp.Code, resp.Body.String())
	}

	now := f.clock.Now()
	resp = doJSON(r, "POST", path, map[string]interface{}{
		"permissions": map[string]bool{"view": true},
		"ttl_seconds": int64(315360000),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created CreateLinkResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Link.ExpiresAt == nil || !created.Link.ExpiresAt.After(now) {
		t.Fatalf("Expected a future expiry, got %v", created.Link.ExpiresAt)
	}
	if !created.Link.ExpiresAt.Equal(now.Add(72 * time.Hour)) {
		t.Errorf("Expected expiry capped at the maximum lifetime, got %v", created.Link.ExpiresAt)
	}
}

func strPtr(s string) *string { return &s }
