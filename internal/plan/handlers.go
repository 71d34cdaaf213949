package plan

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/idgen"
	"github.com/edutrack/edutrack/internal/money"
)

// Handler provides HTTP endpoints for the plan catalogue.
type Handler struct {
	store Store
}

// NewHandler creates a new plan handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the public plan routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/plans", h.ListPlans)
	r.GET("/plans/:id", h.GetPlan)
}

// RegisterOperatorRoutes sets up catalogue management routes.
func (h *Handler) RegisterOperatorRoutes(r *gin.RouterGroup) {
	r.POST("/plans", h.CreatePlan)
	r.POST("/plans/:id/deactivate", h.DeactivatePlan)
}

// ListPlans handles GET /v1/plans. Only purchasable plans are shown;
// ?all=true lets operators see retired ones too.
func (h *Handler) ListPlans(c *gin.Context) {
	var (
		plans []*Plan
		err   error
	)
	if c.Query("all") == "true" {
		plans, err = h.store.List(c.Request.Context())
	} else {
		plans, err = h.store.ListActive(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

// GetPlan handles GET /v1/plans/:id
func (h *Handler) GetPlan(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrPlanNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such plan",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": p})
}

type createPlanRequest struct {
	Name         string   `json:"name" binding:"required"`
	Price        string   `json:"price" binding:"required"`
	DurationDays *int     `json:"duration_days"`
	Features     []string `json:"features"`
}

// CreatePlan handles POST /v1/admin/plans. Pricing changes are made by
// creating a new plan and retiring the old one, never by editing.
func (h *Handler) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and price are required",
		})
		return
	}
	if !money.Valid(req.Price) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "price must be a decimal amount like 10000.00",
		})
		return
	}
	if req.DurationDays != nil && *req.DurationDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "duration_days must be positive; omit it for a lifetime plan",
		})
		return
	}

	p := &Plan{
		ID:           idgen.WithPrefix("pln_"),
		Name:         req.Name,
		Price:        req.Price,
		Currency:     money.NGN,
		DurationDays: req.DurationDays,
		Active:       true,
		Features:     req.Features,
		CreatedAt:    time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": p})
}

// DeactivatePlan handles POST /v1/admin/plans/:id/deactivate
func (h *Handler) DeactivatePlan(c *gin.Context) {
	if err := h.store.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		if err == ErrPlanNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No such plan"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "plan retired"})
}
