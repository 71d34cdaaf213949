// Package notify delivers subscription lifecycle events to an external
// notification endpoint (mail relay, messaging bridge, or an internal
// hook consumer). Deliveries are signed the same way inbound gateway
// webhooks are verified: HMAC-SHA-512 over the raw body.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/edutrack/edutrack/internal/metrics"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/retry"
	"github.com/edutrack/edutrack/internal/school"
	"github.com/edutrack/edutrack/internal/subscription"
)

// SignatureHeader carries the HMAC of the delivery body.
const SignatureHeader = "X-EduTrack-Signature"

// Event types.
const (
	TypeWelcome  = "subscription.welcome"
	TypeRenewed  = "subscription.renewed"
	TypeExpiring = "subscription.expiring"
	TypeExpired  = "subscription.expired"
)

// Event is one delivery payload.
type Event struct {
	Type       string     `json:"type"`
	SchoolID   string     `json:"school_id"`
	SchoolName string     `json:"school_name"`
	SchoolCode string     `json:"school_code"`
	PlanName   string     `json:"plan_name,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	DaysLeft   int        `json:"days_left,omitempty"`
	SentAt     time.Time  `json:"sent_at"`
}

// Client posts events to a single notification endpoint.
type Client struct {
	url    string
	secret string
	http   *http.Client
	log    *slog.Logger
	now    func() time.Time
}

// NewClient creates a notification client. An empty url disables
// delivery; use Nop instead where that is the intent.
func NewClient(url, secret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    logger,
		now:    time.Now,
	}
}

func (c *Client) SubscriptionActivated(ctx context.Context, sc *school.School, pl *plan.Plan, sub *subscription.Subscription, renewed bool) error {
	typ := TypeWelcome
	if renewed {
		typ = TypeRenewed
	}
	return c.send(ctx, Event{
		Type:       typ,
		SchoolID:   sc.ID,
		SchoolName: sc.Name,
		SchoolCode: sc.Code,
		PlanName:   pl.Name,
		ExpiresAt:  sub.EndDate,
	})
}

func (c *Client) SubscriptionExpiring(ctx context.Context, sc *school.School, sub *subscription.Subscription, daysLeft int) error {
	return c.send(ctx, Event{
		Type:       TypeExpiring,
		SchoolID:   sc.ID,
		SchoolName: sc.Name,
		SchoolCode: sc.Code,
		ExpiresAt:  sub.EndDate,
		DaysLeft:   daysLeft,
	})
}

func (c *Client) SubscriptionExpired(ctx context.Context, sc *school.School, sub *subscription.Subscription) error {
	return c.send(ctx, Event{
		Type:       TypeExpired,
		SchoolID:   sc.ID,
		SchoolName: sc.Name,
		SchoolCode: sc.Code,
		ExpiresAt:  sub.EndDate,
	})
}

func (c *Client) send(ctx context.Context, event Event) error {
	event.SentAt = c.now()
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", event.Type, err)
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		return c.post(ctx, event.Type, body)
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event.Type, "failed").Inc()
		return fmt.Errorf("notify: deliver %s: %w", event.Type, err)
	}
	metrics.NotificationsTotal.WithLabelValues(event.Type, "delivered").Inc()
	c.log.Info("notification delivered", "type", event.Type, "school_id", event.SchoolID)
	return nil
}

func (c *Client) post(ctx context.Context, typ string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sign(c.secret, body))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		// The endpoint rejected the payload; retrying will not help.
		return retry.Permanent(fmt.Errorf("endpoint rejected %s: HTTP %d", typ, resp.StatusCode))
	default:
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets a receiving service check a delivery.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(sign(secret, body)), []byte(signature))
}

// Nop discards every event. Used when no notification endpoint is
// configured.
type Nop struct{}

func (Nop) SubscriptionActivated(context.Context, *school.School, *plan.Plan, *subscription.Subscription, bool) error {
	return nil
}
func (Nop) SubscriptionExpiring(context.Context, *school.School, *subscription.Subscription, int) error {
	return nil
}
func (Nop) SubscriptionExpired(context.Context, *school.School, *subscription.Subscription) error {
	return nil
}

var (
	_ subscription.Notifier = (*Client)(nil)
	_ subscription.Notifier = Nop{}
)
