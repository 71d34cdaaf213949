package school

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/settings"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Handler provides HTTP endpoints for school management.
type Handler struct {
	store    Store
	resolver *settings.Resolver
}

// NewHandler creates a new school handler.
func NewHandler(store Store, resolver *settings.Resolver) *Handler {
	if resolver == nil {
		resolver = settings.NewResolver(nil)
	}
	return &Handler{store: store, resolver: resolver}
}

// RegisterRoutes sets up the school-admin routes (own school only).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/school", h.GetOwnSchool)
	r.PUT("/school/settings", h.UpdateSettings)
}

// RegisterOperatorRoutes sets up cross-school management routes.
func (h *Handler) RegisterOperatorRoutes(r *gin.RouterGroup) {
	r.GET("/schools", h.ListSchools)
	r.GET("/schools/:id", h.GetSchool)
	r.POST("/schools/:id/deactivate", h.DeactivateSchool)
}

// GetOwnSchool handles GET /v1/school. The response includes every
// setting fully resolved, not just the stored overrides.
func (h *Handler) GetOwnSchool(c *gin.Context) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	schoolID, ok := scope.School()
	if !ok || schoolID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "no_school"})
		return
	}

	s, err := h.store.Get(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	resolved := make(map[string]string)
	for _, key := range settings.Keys() {
		resolved[key] = h.resolver.Resolve(key, s.Settings)
	}
	c.JSON(http.StatusOK, gin.H{"school": s, "settings": resolved})
}

// UpdateSettings handles PUT /v1/school/settings. Only known setting
// keys are accepted; an empty value removes the override.
func (h *Handler) UpdateSettings(c *gin.Context) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	schoolID, ok := scope.School()
	if !ok || schoolID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "no_school"})
		return
	}

	var overrides map[string]string
	if err := c.ShouldBindJSON(&overrides); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Body must be an object of setting key/value pairs",
		})
		return
	}
	for key := range overrides {
		if !settings.Known(key) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Unknown setting: " + key,
			})
			return
		}
	}

	s, err := h.store.Get(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if s.Settings == nil {
		s.Settings = make(map[string]string)
	}
	for key, value := range overrides {
		if value == "" {
			delete(s.Settings, key)
		} else {
			s.Settings[key] = value
		}
	}
	if err := h.store.Update(c.Request.Context(), s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"school": s})
}

// ListSchools handles GET /v1/admin/schools
func (h *Handler) ListSchools(c *gin.Context) {
	schools, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schools": schools, "count": len(schools)})
}

// GetSchool handles GET /v1/admin/schools/:id
func (h *Handler) GetSchool(c *gin.Context) {
	s, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrSchoolNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No such school"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"school": s})
}

// DeactivateSchool handles POST /v1/admin/schools/:id/deactivate.
// Blocks every login for the school; data is kept.
func (h *Handler) DeactivateSchool(c *gin.Context) {
	if err := h.store.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		if err == ErrSchoolNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No such school"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "school deactivated"})
}
