// Package paystack is the outbound client for the Paystack payment gateway.
//
// Amounts cross this boundary in kobo (the gateway's minor unit); the
// rest of the system works in whole Naira. The gateway enforces a
// minimum chargeable amount, so sub-minimum plan prices (e.g. a free
// trial) are floored to MinChargeKobo and the caller is told via
// Authorization.MinimumApplied.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edutrack/edutrack/internal/metrics"
)

const (
	// DefaultBaseURL is the production Paystack API endpoint.
	DefaultBaseURL = "https://api.paystack.co"

	// MinChargeKobo is the smallest amount the gateway will process
	// (NGN 100.00). Charges below this are floored to it; the excess is
	// a one-time card-verification charge and is never refunded.
	MinChargeKobo int64 = 100_00

	// SignatureHeader carries the HMAC-SHA-512 webhook signature.
	SignatureHeader = "X-Paystack-Signature"
)

// GatewayError is returned for any failure talking to the gateway:
// timeouts, non-2xx responses, malformed bodies, and explicit
// rejections. Rejected distinguishes "the gateway said no" from "the
// gateway could not be reached": only the former justifies marking a
// payment failed.
type GatewayError struct {
	Op         string // "initialize" or "verify"
	StatusCode int    // 0 when no response was received
	Message    string
	Rejected   bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paystack %s: %s (HTTP %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("paystack %s: %s", e.Op, e.Message)
}

// Config holds client settings.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Client talks to the Paystack API.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	http          *http.Client
	logger        *slog.Logger
}

// New creates a gateway client.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		http:          &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Metadata travels with the transaction and comes back on verification.
type Metadata struct {
	SchoolID   string `json:"school_id"`
	PlanID     string `json:"plan_id"`
	SchoolName string `json:"school_name,omitempty"`
}

// InitializeRequest describes one transaction-initialize call.
type InitializeRequest struct {
	Email       string
	AmountKobo  int64
	Reference   string
	CallbackURL string
	Metadata    Metadata
}

// Authorization is the successful result of Initialize.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	ChargedKobo      int64 // actual amount sent to the gateway
	MinimumApplied   bool  // true when the amount was floored to MinChargeKobo
}

// TransactionData is the gateway-of-record view of one transaction.
type TransactionData struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	Reference  string `json:"reference"`
	Channel    string `json:"channel"`
	AmountKobo int64  `json:"amount"`
	PaidAt     string `json:"paid_at"`
}

// Succeeded reports whether the gateway considers the transaction paid.
// Only data.status == "success" counts.
func (d *TransactionData) Succeeded() bool {
	return d != nil && d.Status == "success"
}

type initializePayload struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url"`
	Metadata    Metadata `json:"metadata"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize starts a transaction with the gateway. The Payment row for
// req.Reference must already exist as pending before this call.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	charged := req.AmountKobo
	minApplied := false
	if charged < MinChargeKobo {
		charged = MinChargeKobo
		minApplied = true
	}

	payload, err := json.Marshal(initializePayload{
		Email:       req.Email,
		Amount:      charged,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, &GatewayError{Op: "initialize", Message: err.Error()}
	}

	env, gerr := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload)
	if gerr != nil {
		return nil, gerr
	}
	if !env.Status {
		// Well-formed rejection: the gateway refused the request.
		metrics.GatewayRequestsTotal.WithLabelValues("initialize", "rejected").Inc()
		return nil, &GatewayError{Op: "initialize", StatusCode: http.StatusOK, Message: env.Message, Rejected: true}
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &GatewayError{Op: "initialize", Message: "malformed response body"}
	}

	return &Authorization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
		ChargedKobo:      charged,
		MinimumApplied:   minApplied,
	}, nil
}

// Verify re-queries the gateway of record for a transaction. Callers
// must check Succeeded() on the result; webhook and callback payloads
// are never trusted without this.
func (c *Client) Verify(ctx context.Context, reference string) (*TransactionData, error) {
	env, gerr := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+reference, nil)
	if gerr != nil {
		return nil, gerr
	}
	if !env.Status {
		return nil, &GatewayError{Op: "verify", StatusCode: http.StatusOK, Message: env.Message, Rejected: true}
	}

	var data TransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &GatewayError{Op: "verify", Message: "malformed response body"}
	}
	return &data, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*envelope, *GatewayError) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures land here. The payment stays
		// pending; the caller surfaces a retryable error.
		metrics.GatewayRequestsTotal.WithLabelValues(op, "unreachable").Inc()
		c.logger.Warn("gateway request failed", "op", op, "error", err)
		return nil, &GatewayError{Op: op, Message: "gateway unreachable: " + err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "reading response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.GatewayRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response body"}
	}

	metrics.GatewayRequestsTotal.WithLabelValues(op, "ok").Inc()
	return &env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
