package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler handles authentication requests
type Handler struct {
	db     *gorm.DB
	signer *Signer
	log    zerolog.Logger
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, signer *Signer, log zerolog.Logger) *Handler {
	return &Handler{db: db, signer: signer, log: log}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	FullName     string `json:"full_name" binding:"required"`
	Organization string `json:"organization" binding:"required"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest represents the change password request body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token  string        `json:"token"`
	User   models.User   `json:"user"`
	Tenant models.Tenant `json:"tenant"`
}

// ErrInvalidSubdomain is returned by Slugify for names with no usable characters
var ErrInvalidSubdomain = errors.New("auth: organization name has no usable characters")

// Slugify derives a subdomain from an organization name
func Slugify(name string) (string, error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 63 {
		slug = strings.TrimSuffix(slug[:63], "-")
	}
	if slug == "" {
		return "", ErrInvalidSubdomain
	}
	return slug, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new tenant with the caller as its first admin
// @Summary Register a new organization
// @Description Create a tenant and its first admin user, and receive a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Email or organization already registered"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := normalizeEmail(req.Email)

	subdomain, err := Slugify(req.Organization)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization name"})
		return
	}

	// Soft-deleted users keep their email reserved
	var count int64
	if err := h.db.Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		h.log.Error().Err(err).Msg("registration lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	// Joining an existing tenant is done by its admin, never by registration
	err = h.db.Model(&models.Tenant{}).
		Where("subdomain = ? OR LOWER(name) = ?", subdomain, strings.ToLower(strings.TrimSpace(req.Organization))).
		Count(&count).Error
	if err != nil {
		h.log.Error().Err(err).Msg("registration lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Organization already exists"})
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	tenant := models.Tenant{
		Name:      strings.TrimSpace(req.Organization),
		Subdomain: subdomain,
		Plan:      models.PlanFree,
	}
	user := models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		Profile:      models.Profile{FullName: req.FullName},
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		user.TenantID = tenant.ID
		return tx.Create(&user).Error
	})
	if err != nil {
		h.log.Error().Err(err).Msg("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	token, err := h.signer.Generate(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.log.Info().Str("tenant_id", tenant.ID).Str("user_id", user.ID).Msg("tenant registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: user, Tenant: tenant})
}

// Login handles user login
// @Summary Login
// @Description Authenticate with email and password to receive a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Preload("Tenant").Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		burnPasswordCheck(req.Password)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	now := time.Now()
	h.db.Model(&user).UpdateColumn("last_login_at", now)
	user.LastLoginAt = &now

	token, err := h.signer.Generate(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: user, Tenant: user.Tenant})
}

// Me returns the current authenticated user and their tenant
// @Summary Get current user
// @Description Get the authenticated user's profile and tenant
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	principal, ok := GetPrincipal(c)
	if !ok || principal.IsCapability() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var user models.User
	if err := h.db.Preload("Tenant").Where("id = ?", principal.UserID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "tenant": user.Tenant})
}

// ChangePassword replaces the caller's password after checking the current one
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Validation error or wrong current password"
// @Security BearerAuth
// @Router /auth/change-password [post]
func (h *Handler) ChangePassword(c *gin.Context) {
	principal, _ := GetPrincipal(c)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", principal.UserID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if !CheckPassword(req.CurrentPassword, user.PasswordHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}

	hashedPassword, err := HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	if err := h.db.Model(&user).Update("password_hash", hashedPassword).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("password changed")
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// Logout handles user logout (client-side token invalidation)
// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", authMiddleware, h.Me)
	rg.POST("/change-password", authMiddleware, h.ChangePassword)
}
