package documents

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/access"
	"github.com/mikepea/docvault/pkg/docvault/auth"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/locator"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/policy"
	"github.com/mikepea/docvault/pkg/docvault/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	signer *auth.Signer
	tenant models.Tenant
	owner  models.User
	member models.User
	admin  models.User
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func createUser(t *testing.T, db *gorm.DB, tenantID, email string, role models.Role) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{TenantID: tenantID, Email: email, PasswordHash: hash, Role: role, Profile: models.Profile{FullName: email}}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func setupEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	env := &testEnv{db: db, signer: auth.NewSigner([]byte("test-secret-that-is-long-enough-for-hs256"), time.Hour)}

	env.tenant = models.Tenant{Name: "Acme", Subdomain: "acme"}
	db.Create(&env.tenant)
	env.admin = createUser(t, db, env.tenant.ID, "admin@acme.test", models.RoleAdmin)
	env.owner = createUser(t, db, env.tenant.ID, "owner@acme.test", models.RoleUser)
	env.member = createUser(t, db, env.tenant.ID, "member@acme.test", models.RoleUser)

	blobs, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	s := store.New(db)
	guard := access.NewGuard(locator.New(s), policy.NewEngine(nil), nil, zerolog.Nop())
	handler := NewHandler(db, guard, blobs, 1<<20, zerolog.Nop())

	r := gin.New()
	api := r.Group("/api", auth.AuthMiddleware(auth.NewResolver(env.signer, s), zerolog.Nop()))
	handler.RegisterRoutes(api)
	env.router = r
	return env
}

func (e *testEnv) token(u models.User) string {
	token, _ := e.signer.Generate(u.ID)
	return token
}

func (e *testEnv) do(as models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reader = bytes.NewBuffer(jsonBody)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(as))
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) upload(t *testing.T, as models.User, fields map[string]string, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "report.txt")
	part.Write([]byte(content))
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req, _ := http.NewRequest("POST", "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token(as))
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) uploadDoc(t *testing.T, as models.User, fields map[string]string) models.Document {
	resp := e.upload(t, as, fields, "hello")
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var doc models.Document
	json.Unmarshal(resp.Body.Bytes(), &doc)
	return doc
}

func TestUploadAndGet(t *testing.T) {
	env := setupEnv(t)

	doc := env.uploadDoc(t, env.owner, map[string]string{"description": "Q3", "metadata": `{"year":2026}`})
	if doc.Title != "report.txt" || doc.Visibility != models.VisibilityPrivate || doc.Size != 5 {
		t.Errorf("Unexpected document: %+v", doc)
	}
	if doc.OwnerUserID != env.owner.ID || doc.TenantID != env.tenant.ID {
		t.Errorf("Unexpected ownership: %+v", doc)
	}

	resp := env.do(env.owner, "GET", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte("file_ref")) {
		t.Error("File reference must not be exposed")
	}
	var loaded models.Document
	json.Unmarshal(resp.Body.Bytes(), &loaded)
	if loaded.Metadata["year"] != float64(2026) {
		t.Errorf("Expected metadata year 2026, got %v", loaded.Metadata)
	}

	resp = env.do(env.owner, "GET", "/api/documents/"+doc.ID+"/download", nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "hello" {
		t.Errorf("Expected download of hello, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(env.member, "GET", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member read of private document to be forbidden, got %d", resp.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	env := setupEnv(t)

	resp := env.upload(t, env.owner, map[string]string{"visibility": "everyone"}, "x")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected invalid visibility to be rejected, got %d", resp.Code)
	}
	resp = env.upload(t, env.owner, map[string]string{"metadata": "[1,2]"}, "x")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected non-object metadata to be rejected, got %d", resp.Code)
	}
	resp = env.upload(t, env.owner, nil, string(make([]byte, 2<<20)))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected oversized upload to be rejected, got %d", resp.Code)
	}

	env.db.Model(&env.tenant).Update("settings_max_storage_mb", 0)
	resp = env.upload(t, env.owner, nil, "x")
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected upload over quota to be rejected, got %d", resp.Code)
	}
}

func TestListVisibility(t *testing.T) {
	env := setupEnv(t)
	private := env.uploadDoc(t, env.owner, map[string]string{"title": "private"})
	public := env.uploadDoc(t, env.owner, map[string]string{"title": "public", "visibility": "public"})
	shared := env.uploadDoc(t, env.owner, map[string]string{"title": "shared", "visibility": "shared"})
	env.db.Create(&models.DocumentShare{DocumentID: shared.ID, UserID: env.member.ID, Permission: models.PermissionView})

	list := func(as models.User, query string) map[string]bool {
		resp := env.do(as, "GET", "/api/documents"+query, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
		}
		var docs []models.Document
		json.Unmarshal(resp.Body.Bytes(), &docs)
		ids := map[string]bool{}
		for _, d := range docs {
			ids[d.ID] = true
		}
		return ids
	}

	seen := list(env.member, "")
	if len(seen) != 2 || !seen[public.ID] || !seen[shared.ID] || seen[private.ID] {
		t.Errorf("Member should see public and shared only, got %v", seen)
	}

	if seen := list(env.owner, ""); len(seen) != 3 {
		t.Errorf("Owner should see all three, got %d", len(seen))
	}

	if seen := list(env.admin, "?all=true"); len(seen) != 3 {
		t.Errorf("Admin listing all should see all three, got %d", len(seen))
	}

	if seen := list(env.owner, "?q=pub"); len(seen) != 1 || !seen[public.ID] {
		t.Errorf("Search should find public only, got %v", seen)
	}

	if seen := list(env.owner, "?limit=2"); len(seen) != 2 {
		t.Errorf("Expected limit of 2, got %d", len(seen))
	}

	resp := env.do(env.member, "GET", "/api/documents?all=true", nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member listing all to be forbidden, got %d", resp.Code)
	}
}

func TestUpdate(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, nil)

	title := "Renamed"
	resp := env.do(env.member, "PUT", "/api/documents/"+doc.ID, UpdateDocumentRequest{Title: &title})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected non-owner update to be forbidden, got %d", resp.Code)
	}

	env.db.Create(&models.DocumentShare{DocumentID: doc.ID, UserID: env.member.ID, Permission: models.PermissionEdit})
	resp = env.do(env.member, "PUT", "/api/documents/"+doc.ID, UpdateDocumentRequest{Title: &title})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected editor update to succeed, got %d: %s", resp.Code, resp.Body.String())
	}

	public := models.VisibilityPublic
	resp = env.do(env.member, "PUT", "/api/documents/"+doc.ID, UpdateDocumentRequest{Visibility: &public})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected editor visibility change to be forbidden, got %d", resp.Code)
	}

	resp = env.do(env.owner, "PUT", "/api/documents/"+doc.ID, UpdateDocumentRequest{Visibility: &public, Metadata: map[string]interface{}{"k": "v"}})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected owner visibility change to succeed, got %d", resp.Code)
	}
	var updated models.Document
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if updated.Title != "Renamed" || updated.Visibility != models.VisibilityPublic || updated.Metadata["k"] != "v" {
		t.Errorf("Unexpected document after update: %+v", updated)
	}
}

func TestDelete(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, nil)
	env.db.Create(&models.DocumentShare{DocumentID: doc.ID, UserID: env.member.ID, Permission: models.PermissionEdit})
	link := models.ShareLink{ID: "01TESTLINK", TokenHash: "h", TokenPrefix: "p", DocumentID: doc.ID, TenantID: env.tenant.ID, IssuedByUserID: env.owner.ID, IsActive: true}
	env.db.Create(&link)

	resp := env.do(env.member, "DELETE", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected editor delete to be forbidden, got %d", resp.Code)
	}

	resp = env.do(env.owner, "DELETE", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected owner delete to succeed, got %d", resp.Code)
	}

	resp = env.do(env.owner, "GET", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected deleted document to be 404, got %d", resp.Code)
	}

	var loaded models.ShareLink
	env.db.First(&loaded, "id = ?", link.ID)
	if loaded.IsActive || loaded.RevokedAt == nil {
		t.Errorf("Expected share link to be deactivated, got %+v", loaded)
	}
	var shares int64
	env.db.Model(&models.DocumentShare{}).Where("document_id = ?", doc.ID).Count(&shares)
	if shares != 0 {
		t.Errorf("Expected shares to be removed, got %d", shares)
	}
}

func TestCrossTenantLooksLikeNotFound(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, map[string]string{"visibility": "public"})

	other := models.Tenant{Name: "Other", Subdomain: "other"}
	env.db.Create(&other)
	outsider := createUser(t, env.db, other.ID, "admin@other.test", models.RoleAdmin)

	for _, req := range []struct{ method, path string }{
		{"GET", "/api/documents/" + doc.ID},
		{"GET", "/api/documents/" + doc.ID + "/download"},
		{"PUT", "/api/documents/" + doc.ID},
		{"DELETE", "/api/documents/" + doc.ID},
		{"GET", "/api/documents/missing"},
	} {
		resp := env.do(outsider, req.method, req.path, map[string]string{})
		if resp.Code != http.StatusNotFound || resp.Body.String() != `{"error":"Not found"}` {
			t.Errorf("%s %s: expected opaque 404, got %d: %s", req.method, req.path, resp.Code, resp.Body.String())
		}
	}

	resp := env.do(outsider, "GET", "/api/documents", nil)
	var docs []models.Document
	json.Unmarshal(resp.Body.Bytes(), &docs)
	if len(docs) != 0 {
		t.Errorf("Expected no documents from another tenant, got %d", len(docs))
	}
}

func TestShares(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, nil)

	other := models.Tenant{Name: "Other", Subdomain: "other"}
	env.db.Create(&other)
	createUser(t, env.db, other.ID, "outsider@other.test", models.RoleUser)

	resp := env.do(env.owner, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "outsider@other.test", Permission: models.PermissionView})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected sharing across tenants to fail as not found, got %d", resp.Code)
	}
	resp = env.do(env.owner, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "member@acme.test", Permission: "owner"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected invalid permission to be rejected, got %d", resp.Code)
	}
	resp = env.do(env.owner, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "owner@acme.test", Permission: models.PermissionView})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected sharing with owner to be rejected, got %d", resp.Code)
	}
	resp = env.do(env.member, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "member@acme.test", Permission: models.PermissionAdmin})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected member self-share to be forbidden, got %d", resp.Code)
	}

	resp = env.do(env.owner, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "member@acme.test", Permission: models.PermissionView})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected share to succeed, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = env.do(env.owner, "POST", "/api/documents/"+doc.ID+"/shares", ShareRequest{Email: "member@acme.test", Permission: models.PermissionEdit})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected share update to succeed, got %d", resp.Code)
	}

	resp = env.do(env.member, "GET", "/api/documents/"+doc.ID+"/shares", nil)
	var shares []ShareResponse
	json.Unmarshal(resp.Body.Bytes(), &shares)
	if len(shares) != 1 || shares[0].Permission != models.PermissionEdit || shares[0].Email != "member@acme.test" {
		t.Errorf("Unexpected shares: %s", resp.Body.String())
	}

	resp = env.do(env.owner, "DELETE", "/api/documents/"+doc.ID+"/shares/"+env.member.ID, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected unshare to succeed, got %d", resp.Code)
	}
	resp = env.do(env.owner, "DELETE", "/api/documents/"+doc.ID+"/shares/"+env.member.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected second unshare to be 404, got %d", resp.Code)
	}
	resp = env.do(env.member, "GET", "/api/documents/"+doc.ID, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected access to be gone after unshare, got %d", resp.Code)
	}
}

func TestUploadQuotaRecheckedOnInsert(t *testing.T) {
	env := setupEnv(t)
	env.db.Model(&env.tenant).Update("settings_max_storage_mb", 1)

	// Another upload lands after this one passed its quota check. The sqlite
	// test database has one connection, so it is written on the same one.
	var once sync.Once
	env.db.Callback().Create().Before("gorm:create").Register("concurrent_upload", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*models.Document); !ok {
			return
		}
		once.Do(func() {
			now := time.Now()
			tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
				"INSERT INTO documents (id, created_at, updated_at, tenant_id, owner_user_id, title, file_ref, size, visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
				"concurrent", now, now, env.tenant.ID, env.member.ID, "concurrent", "ref", 1<<20-2, models.VisibilityPrivate)
		})
	})

	resp := env.upload(t, env.owner, nil, "hello")
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected upload to be refused over quota, got %d: %s", resp.Code, resp.Body.String())
	}
	var count int64
	env.db.Model(&models.Document{}).Where("owner_user_id = ?", env.owner.ID).Count(&count)
	if count != 0 {
		t.Errorf("Expected the refused upload not to be stored, got %d", count)
	}
}

func TestComments(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, nil)
	path := "/api/documents/" + doc.ID + "/comments"

	other := models.Tenant{Name: "Other", Subdomain: "other"}
	env.db.Create(&other)
	outsider := createUser(t, env.db, other.ID, "admin@other.test", models.RoleAdmin)

	for _, method := range []string{"GET", "POST"} {
		resp := env.do(outsider, method, path, CommentRequest{Text: "hi"})
		if resp.Code != http.StatusNotFound || resp.Body.String() != `{"error":"Not found"}` {
			t.Errorf("%s cross-tenant: expected opaque 404, got %d: %s", method, resp.Code, resp.Body.String())
		}
		resp = env.do(env.member, method, path, CommentRequest{Text: "hi"})
		if resp.Code != http.StatusForbidden {
			t.Errorf("%s unshared: expected 403, got %d", method, resp.Code)
		}
	}

	resp := env.do(env.owner, "POST", path, CommentRequest{Text: "  "})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected blank comment to be rejected, got %d", resp.Code)
	}
	resp = env.do(env.owner, "POST", path, CommentRequest{Text: "First draft"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	env.db.Create(&models.DocumentShare{DocumentID: doc.ID, UserID: env.member.ID, Permission: models.PermissionView})
	resp = env.do(env.member, "POST", path, CommentRequest{Text: "Looks good"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected viewer comment to succeed, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(env.member, "GET", path, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var comments []CommentResponse
	json.Unmarshal(resp.Body.Bytes(), &comments)
	if len(comments) != 2 || comments[0].Text != "First draft" || comments[1].Email != "member@acme.test" {
		t.Errorf("Unexpected comments: %s", resp.Body.String())
	}

	env.do(env.owner, "DELETE", "/api/documents/"+doc.ID, nil)
	var remaining int64
	env.db.Model(&models.DocumentComment{}).Where("document_id = ?", doc.ID).Count(&remaining)
	if remaining != 0 {
		t.Errorf("Expected comments to be removed with the document, got %d", remaining)
	}
}

func TestBulkDeleteMixedBatch(t *testing.T) {
	env := setupEnv(t)
	mine := env.uploadDoc(t, env.owner, nil)
	unshared := env.uploadDoc(t, env.member, nil)

	other := models.Tenant{Name: "Other", Subdomain: "other"}
	env.db.Create(&other)
	outsider := createUser(t, env.db, other.ID, "admin@other.test", models.RoleAdmin)
	foreign := models.Document{TenantID: other.ID, OwnerUserID: outsider.ID, Title: "foreign", FileRef: "ref", Visibility: models.VisibilityPublic}
	env.db.Create(&foreign)

	resp := env.do(env.owner, "POST", "/api/documents/bulk", BulkRequest{
		Action:      BulkDelete,
		DocumentIDs: []string{mine.ID, unshared.ID, foreign.ID, "missing", mine.ID},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result BulkResponse
	json.Unmarshal(resp.Body.Bytes(), &result)

	want := []BulkResult{
		{ID: mine.ID, Status: access.VerdictAllowed},
		{ID: unshared.ID, Status: access.VerdictForbidden},
		{ID: foreign.ID, Status: access.VerdictNotFound},
		{ID: "missing", Status: access.VerdictNotFound},
	}
	if len(result.Results) != len(want) {
		t.Fatalf("Expected %d results, got %s", len(want), resp.Body.String())
	}
	for i, w := range want {
		if result.Results[i] != w {
			t.Errorf("Result %d: expected %+v, got %+v", i, w, result.Results[i])
		}
	}
	if result.Affected != 1 {
		t.Errorf("Expected 1 affected, got %d", result.Affected)
	}

	var live []string
	env.db.Model(&models.Document{}).Pluck("id", &live)
	if len(live) != 2 {
		t.Errorf("Expected the denied documents to survive, got %v", live)
	}
	for _, id := range live {
		if id == mine.ID {
			t.Error("Expected own document to be deleted")
		}
	}
}

func TestBulkUpdateAndShare(t *testing.T) {
	env := setupEnv(t)
	doc := env.uploadDoc(t, env.owner, nil)
	env.db.Create(&models.DocumentShare{DocumentID: doc.ID, UserID: env.member.ID, Permission: models.PermissionEdit})

	title := "Renamed"
	public := models.VisibilityPublic
	resp := env.do(env.member, "POST", "/api/documents/bulk", BulkRequest{
		Action: BulkUpdate, DocumentIDs: []string{doc.ID},
		Data: UpdateDocumentRequest{Title: &title, Visibility: &public},
	})
	var result BulkResponse
	json.Unmarshal(resp.Body.Bytes(), &result)
	if resp.Code != http.StatusOK || result.Affected != 0 || result.Results[0].Status != access.VerdictForbidden {
		t.Errorf("Expected editor visibility change to be refused, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(env.member, "POST", "/api/documents/bulk", BulkRequest{
		Action: BulkUpdate, DocumentIDs: []string{doc.ID},
		Data: UpdateDocumentRequest{Title: &title},
	})
	json.Unmarshal(resp.Body.Bytes(), &result)
	if resp.Code != http.StatusOK || result.Affected != 1 {
		t.Errorf("Expected editor title change to succeed, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(env.member, "POST", "/api/documents/bulk", BulkRequest{Action: BulkShare, DocumentIDs: []string{doc.ID}})
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result.Affected != 0 {
		t.Errorf("Expected editor share to be refused, got %s", resp.Body.String())
	}
	resp = env.do(env.owner, "POST", "/api/documents/bulk", BulkRequest{Action: BulkShare, DocumentIDs: []string{doc.ID}})
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result.Affected != 1 {
		t.Errorf("Expected owner share to succeed, got %s", resp.Body.String())
	}

	var loaded models.Document
	env.db.First(&loaded, "id = ?", doc.ID)
	if loaded.Title != "Renamed" || loaded.Visibility != models.VisibilityShared {
		t.Errorf("Unexpected document after bulk changes: %+v", loaded)
	}

	for _, req := range []BulkRequest{
		{Action: "archive", DocumentIDs: []string{doc.ID}},
		{Action: BulkDelete},
		{Action: BulkUpdate, DocumentIDs: []string{doc.ID}},
	} {
		if resp := env.do(env.owner, "POST", "/api/documents/bulk", req); resp.Code != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %d", req, resp.Code)
		}
	}
}
