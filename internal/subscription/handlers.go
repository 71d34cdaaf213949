package subscription

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/metrics"
	"github.com/edutrack/edutrack/internal/paystack"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Gateway is the slice of the payment gateway client the ingress
// handlers need. Every inbound notification is re-verified against the
// gateway of record before it touches subscription state.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*paystack.TransactionData, error)
	VerifySignature(body []byte, signature string) bool
}

// HandlerConfig holds the redirect targets for the browser callback.
type HandlerConfig struct {
	DashboardPath string
	PricingPath   string
}

// Handler provides the payment ingress and subscription status endpoints.
type Handler struct {
	service *Service
	gateway Gateway
	log     *slog.Logger
	cfg     HandlerConfig
}

// NewHandler creates a new subscription handler.
func NewHandler(service *Service, gateway Gateway, logger *slog.Logger, cfg HandlerConfig) *Handler {
	if cfg.DashboardPath == "" {
		cfg.DashboardPath = "/admin/dashboard"
	}
	if cfg.PricingPath == "" {
		cfg.PricingPath = "/pricing"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, gateway: gateway, log: logger, cfg: cfg}
}

// RegisterPublicRoutes sets up the unauthenticated ingress routes.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.POST("/webhooks/paystack", h.Webhook)
	r.GET("/payment/callback", h.Callback)
}

// RegisterRoutes sets up the authenticated subscription routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/subscription/status", h.Status)
	r.POST("/subscription/cancel", h.Cancel)
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// Webhook handles POST /webhooks/paystack.
//
// The response code tells the gateway whether to retry: 2xx never, 5xx
// yes. A duplicate delivery is a 200 so retries stop; a transient
// verification failure is a 500 so the gateway redelivers later.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.gateway.VerifySignature(body, c.GetHeader(paystack.SignatureHeader)) {
		// Deliberately generic: a forger learns nothing about why.
		metrics.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		h.log.Warn("webhook rejected: bad signature", "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if event.Event != "charge.success" {
		// Acknowledged so the gateway stops redelivering event types we
		// do not act on.
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if event.Data.Reference == "" {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, status := h.process(c.Request.Context(), event.Data.Reference)
	metrics.WebhookEventsTotal.WithLabelValues(outcome).Inc()
	c.JSON(status, gin.H{"status": outcome})
}

// process verifies a reference with the gateway and feeds the result to
// the state machine, mapping every outcome to a webhook response code.
func (h *Handler) process(ctx context.Context, reference string) (outcome string, status int) {
	data, err := h.gateway.Verify(ctx, reference)
	if err != nil {
		if gerr, ok := err.(*paystack.GatewayError); ok && gerr.Rejected {
			// The gateway of record does not know this reference.
			h.log.Warn("webhook for unknown gateway transaction", "reference", reference)
			return "unknown_reference", http.StatusBadRequest
		}
		h.log.Error("webhook verify failed", "reference", reference, "error", err)
		return "verify_failed", http.StatusInternalServerError
	}
	if !data.Succeeded() {
		// Signed notification for a transaction the gateway itself does
		// not consider paid. Acknowledge; nothing to activate.
		h.log.Warn("webhook for unpaid transaction",
			"reference", reference, "gateway_status", data.Status)
		return "not_successful", http.StatusOK
	}

	_, err = h.service.ProcessVerified(ctx, VerifiedPayment{
		Reference:     reference,
		TransactionID: data.ID,
		Channel:       data.Channel,
	})
	switch err {
	case nil:
		return "processed", http.StatusOK
	case ErrAlreadyProcessed:
		return "duplicate", http.StatusOK
	case ErrUnknownReference:
		// Verified by the gateway but absent from our ledger. Loud: this
		// is a payment we cannot attribute.
		h.log.Error("verified payment with no ledger entry", "reference", reference)
		return "unknown_reference", http.StatusBadRequest
	default:
		h.log.Error("webhook processing failed", "reference", reference, "error", err)
		return "error", http.StatusInternalServerError
	}
}

// Callback handles GET /payment/callback, the browser's return from the
// gateway's checkout page. It runs the same verify-then-process path as
// the webhook, then redirects: webhook and callback race freely and the
// loser sees ErrAlreadyProcessed, which is a success here.
func (h *Handler) Callback(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		h.redirectPricing(c, "missing_reference")
		return
	}

	data, err := h.gateway.Verify(c.Request.Context(), reference)
	if err != nil {
		h.log.Error("callback verify failed", "reference", reference, "error", err)
		h.redirectPricing(c, "verification_failed")
		return
	}
	if !data.Succeeded() {
		h.redirectPricing(c, "payment_not_successful")
		return
	}

	_, err = h.service.ProcessVerified(c.Request.Context(), VerifiedPayment{
		Reference:     reference,
		TransactionID: data.ID,
		Channel:       data.Channel,
	})
	if err != nil && err != ErrAlreadyProcessed {
		h.log.Error("callback processing failed", "reference", reference, "error", err)
		h.redirectPricing(c, "processing_failed")
		return
	}

	c.Redirect(http.StatusFound, h.cfg.DashboardPath+"?payment=success")
}

func (h *Handler) redirectPricing(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.cfg.PricingPath+"?error="+url.QueryEscape(reason))
}

// Status handles GET /v1/subscription/status. Operators may inspect any
// school via ?school_id=; everyone else gets their own.
func (h *Handler) Status(c *gin.Context) {
	schoolID, ok := h.resolveSchool(c)
	if !ok {
		return
	}

	info, err := h.service.Status(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Cancel handles POST /v1/subscription/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	schoolID, ok := h.resolveSchool(c)
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), schoolID); err != nil {
		if err == ErrNoSubscription {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No subscription found for this school",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscription cancelled"})
}

func (h *Handler) resolveSchool(c *gin.Context) (string, bool) {
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
