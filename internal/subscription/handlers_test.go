package subscription

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack/internal/paystack"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// stubGateway fakes the verify side of the payment gateway.
type stubGateway struct {
	secret       string
	transactions map[string]*paystack.TransactionData
	verifyErr    error
}

func (g *stubGateway) Verify(_ context.Context, reference string) (*paystack.TransactionData, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	data, ok := g.transactions[reference]
	if !ok {
		return nil, &paystack.GatewayError{Op: "verify", StatusCode: http.StatusOK, Message: "Transaction reference not found", Rejected: true}
	}
	return data, nil
}

func (g *stubGateway) VerifySignature(body []byte, signature string) bool {
	return signature == paystack.Sign(g.secret, body)
}

func newHandlerFixture(t *testing.T) (*fixture, *stubGateway, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := newFixture(t)
	gw := &stubGateway{
		secret:       "whsec_test",
		transactions: map[string]*paystack.TransactionData{},
	}
	h := NewHandler(fx.svc, gw, slog.New(slog.NewTextHandler(io.Discard, nil)), HandlerConfig{
		DashboardPath: "/admin/dashboard",
		PricingPath:   "/pricing",
	})

	r := gin.New()
	h.RegisterPublicRoutes(r)
	authed := r.Group("/v1")
	authed.Use(func(c *gin.Context) {
		// Test stand-in for the auth middleware.
		if scope := c.GetHeader("X-Test-School"); scope != "" {
			ctx := tenancy.WithScope(c.Request.Context(), tenancy.ForSchool(scope))
			c.Request = c.Request.WithContext(ctx)
		} else if c.GetHeader("X-Test-Operator") != "" {
			ctx := tenancy.WithScope(c.Request.Context(), tenancy.OperatorScope())
			c.Request = c.Request.WithContext(ctx)
		}
	})
	h.RegisterRoutes(authed)
	return fx, gw, r
}

func postWebhook(r *gin.Engine, secret string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(paystack.SignatureHeader, paystack.Sign(secret, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fx, _, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`)

	w := postWebhook(r, "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postWebhook(r, "wrong_secret", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid_request"}`, w.Body.String())

	// The subscription must be untouched.
	_, err := fx.store.GetBySchool(context.Background(), "sch_1")
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestWebhookChargeSuccessActivates(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}

	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	require.Equal(t, http.StatusOK, w.Code)

	sub, err := fx.store.GetBySchool(context.Background(), "sch_1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
}

func TestWebhookDuplicateDeliveryReturns200(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}
	body := []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`)

	w := postWebhook(r, gw.secret, body)
	require.Equal(t, http.StatusOK, w.Code)

	w = postWebhook(r, gw.secret, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Len(t, fx.notifier.ofKind("activated"), 1)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	_, gw, r := newHandlerFixture(t)

	w := postWebhook(r, gw.secret, []byte(`{"event":"transfer.success","data":{"reference":"x"}}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookUnverifiedTransactionDoesNotActivate(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "abandoned", Reference: "ref_1",
	}

	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := fx.store.GetBySchool(context.Background(), "sch_1")
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestWebhookGatewayOutageAsksForRetry(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.verifyErr = &paystack.GatewayError{Op: "verify", Message: "gateway unreachable"}

	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookUnknownLedgerReference(t *testing.T) {
	_, gw, r := newHandlerFixture(t)
	// Known to the gateway, absent from the ledger.
	gw.transactions["ghost"] = &paystack.TransactionData{
		ID: 9, Status: "success", Reference: "ghost",
	}

	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ghost"}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_reference")
}

func TestCallbackRedirectsToDashboardOnSuccess(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}

	req := httptest.NewRequest(http.MethodGet, "/payment/callback?reference=ref_1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard?payment=success", w.Header().Get("Location"))

	sub, err := fx.store.GetBySchool(context.Background(), "sch_1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
}

func TestCallbackAfterWebhookStillSucceeds(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}

	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	require.Equal(t, http.StatusOK, w.Code)

	// The browser lands after the webhook already settled the payment.
	req := httptest.NewRequest(http.MethodGet, "/payment/callback?trxref=ref_1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin/dashboard?payment=success", rec.Header().Get("Location"))
}

func TestCallbackFailureRedirectsToPricing(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "failed", Reference: "ref_1",
	}

	req := httptest.NewRequest(http.MethodGet, "/payment/callback?reference=ref_1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/pricing?error=payment_not_successful", w.Header().Get("Location"))
}

func TestCallbackMissingReference(t *testing.T) {
	_, _, r := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/payment/callback", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/pricing?error=missing_reference", w.Header().Get("Location"))
}

func TestStatusEndpointScoping(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}
	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	require.Equal(t, http.StatusOK, w.Code)

	// No scope attached: unauthorized.
	req := httptest.NewRequest(http.MethodGet, "/v1/subscription/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// School principal sees its own subscription.
	req = httptest.NewRequest(http.MethodGet, "/v1/subscription/status", nil)
	req.Header.Set("X-Test-School", "sch_1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_active":true`)

	// Operator must name a school.
	req = httptest.NewRequest(http.MethodGet, "/v1/subscription/status", nil)
	req.Header.Set("X-Test-Operator", "1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/subscription/status?school_id=sch_1", nil)
	req.Header.Set("X-Test-Operator", "1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"plan_name":"Monthly"`)
}

func TestCancelEndpoint(t *testing.T) {
	fx, gw, r := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/subscription/cancel", nil)
	req.Header.Set("X-Test-School", "sch_1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	gw.transactions["ref_1"] = &paystack.TransactionData{
		ID: 42, Status: "success", Reference: "ref_1", Channel: "card",
	}
	w := postWebhook(r, gw.secret, []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`))
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/subscription/cancel", nil)
	req.Header.Set("X-Test-School", "sch_1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := fx.store.GetBySchool(context.Background(), "sch_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sub.Status)
}
