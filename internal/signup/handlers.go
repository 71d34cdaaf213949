package signup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/auth"
	"github.com/edutrack/edutrack/internal/paystack"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/school"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Handler provides the signup and payment-initialization endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new signup handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes sets up the unauthenticated signup route.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.POST("/signup", h.Signup)
}

// RegisterRoutes sets up the authenticated payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/initialize", auth.RequireCan(auth.ActionManageBilling), h.Initialize)
}

type signupRequest struct {
	SchoolName string `json:"school_name" binding:"required"`
	SchoolCode string `json:"school_code" binding:"required"`
	AdminName  string `json:"admin_name" binding:"required"`
	AdminEmail string `json:"admin_email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	PlanID     string `json:"plan_id" binding:"required"`
}

// Signup handles POST /v1/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "school_name, school_code, admin_name, admin_email, password, and plan_id are required",
		})
		return
	}

	res, err := h.service.RegisterAndPay(c.Request.Context(), RegisterParams{
		SchoolName: req.SchoolName,
		SchoolCode: req.SchoolCode,
		AdminName:  req.AdminName,
		AdminEmail: req.AdminEmail,
		Password:   req.Password,
		PlanID:     req.PlanID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type initializeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Email  string `json:"email" binding:"required"`
}

// Initialize handles POST /v1/payments/initialize for an existing
// school (renewal or plan change).
func (h *Handler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "plan_id and email are required",
		})
		return
	}

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

	res, err := h.service.Initialize(c.Request.Context(), schoolID, req.PlanID, req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var gerr *paystack.GatewayError
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, plan.ErrPlanNotFound), errors.Is(err, plan.ErrPlanInactive):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "plan_unavailable", "message": err.Error()})
	case errors.Is(err, school.ErrCodeTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "code_taken",
			"message": "A school with this code already exists",
		})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "email_taken",
			"message": "This email is already registered",
		})
	case errors.Is(err, ErrPaymentInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "payment_in_progress",
			"message": "A payment attempt for this plan was just started; please wait a moment",
		})
	case errors.As(err, &gerr) && gerr.Rejected:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment_rejected", "message": gerr.Message})
	case errors.As(err, &gerr):
		// Gateway unreachable; the attempt is retryable as-is.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "gateway_unavailable",
			"message": "The payment gateway could not be reached; please try again",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
