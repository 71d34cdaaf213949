package payment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/pagination"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Handler provides read access to the payment ledger.
type Handler struct {
	store Store
}

// NewHandler creates a new payment handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the authenticated payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/payments", h.ListPayments)
	r.GET("/payments/:reference", h.GetPayment)
}

// ListPayments handles GET /v1/payments: the school's payment history,
// newest first, cursor-paged via ?cursor= and ?limit=. Operators pass
// ?school_id=.
func (h *Handler) ListPayments(c *gin.Context) {
	schoolID, ok := resolveSchool(c)
	if !ok {
		return
	}

	limit := 20
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}
	before, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid cursor"})
		return
	}

	fetched, err := h.store.ListBySchoolPage(c.Request.Context(), schoolID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	payments, next, more := pagination.Page(fetched, limit, func(p *Payment) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	c.JSON(http.StatusOK, gin.H{
		"payments":    payments,
		"count":       len(payments),
		"next_cursor": next,
		"has_more":    more,
	})
}

// GetPayment handles GET /v1/payments/:reference. A payment belonging
// to another school is indistinguishable from one that does not exist.
func (h *Handler) GetPayment(c *gin.Context) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	p, err := h.store.GetByReference(c.Request.Context(), c.Param("reference"))
	if err == nil {
		err = scope.Check(p.SchoolID)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No such payment",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

func resolveSchool(c *gin.Context) (string, bool) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	if scope.Operator {
		schoolID := c.Query("school_id")
		if schoolID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "school_id is required for operator requests",
			})
			return "", false
		}
		return schoolID, true
	}
	schoolID, ok := scope.School()
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "no_school"})
		return "", false
	}
	return schoolID, true
}
