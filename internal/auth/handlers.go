package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/idgen"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Handler provides login and user management endpoints.
type Handler struct {
	store  Store
	issuer *TokenIssuer
	log    *slog.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(store Store, issuer *TokenIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, issuer: issuer, log: logger}
}

// RegisterPublicRoutes sets up the unauthenticated auth routes.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.POST("/login", h.Login)
}

// RegisterRoutes sets up the authenticated auth routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
	r.POST("/users", RequireCan(ActionManageSchool), h.CreateUser)
	r.GET("/users", RequireCan(ActionManageSchool), h.ListUsers)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Email and password are required",
		})
		return
	}

	// One generic rejection for every failure mode so a probe cannot
	// tell a wrong password from an unknown email.
	reject := func() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Invalid email or password",
		})
	}

	u, err := h.store.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		reject()
		return
	}
	if !u.Active || !u.CheckPassword(req.Password) {
		h.log.Warn("login rejected", "user_id", u.ID, "active", u.Active)
		reject()
		return
	}

	token, err := h.issuer.Issue(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

// Me handles GET /v1/me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)
	u, err := h.store.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Password string `json:"password" binding:"required"`
	SchoolID string `json:"school_id"` // operators only
}

// CreateUser handles POST /v1/users. School admins create users in
// their own school; operators must name one.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "email, name, role, and password are required",
		})
		return
	}

	role := Role(req.Role)
	if !role.Valid() || role == RoleOperator {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "role must be one of school_admin, teacher, guardian",
		})
		return
	}

	schoolID, ok := h.targetSchool(c, req.SchoolID)
	if !ok {
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	now := time.Now()
	u := &User{
		ID:           idgen.WithPrefix("usr_"),
		SchoolID:     schoolID,
		Email:        NormalizeEmail(req.Email),
		Name:         req.Name,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.Create(c.Request.Context(), u); err != nil {
		if err == ErrEmailTaken {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "email_taken",
				"message": "This email is already registered",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	h.log.Info("user created", "user_id", u.ID, "school_id", schoolID, "role", role)
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// ListUsers handles GET /v1/users.
func (h *Handler) ListUsers(c *gin.Context) {
	schoolID, ok := h.targetSchool(c, c.Query("school_id"))
	if !ok {
		return
	}

	users, err := h.store.ListBySchool(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// targetSchool resolves which school a management request operates on.
// Non-operators are pinned to their own school regardless of input.
func (h *Handler) targetSchool(c *gin.Context, requested string) (string, bool) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	if scope.Operator {
		if requested == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "school_id is required for operator requests",
			})
			return "", false
		}
		return requested, true
	}
	schoolID, ok := scope.School()
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "no_school"})
		return "", false
	}
	return schoolID, true
}
