package subscription

import (
	"context"
	"time"
)

// ActivateParams carries one verified-payment activation.
type ActivateParams struct {
	SubscriptionID string // used only when a new row is created
	SchoolID       string
	PlanID         string

	// Payment mutation committed in the same transaction.
	PaymentReference string
	TransactionID    string
	Channel          string

	Start time.Time
	End   *time.Time // nil = perpetual
	Now   time.Time
}

// Store persists subscriptions.
type Store interface {
	GetBySchool(ctx context.Context, schoolID string) (*Subscription, error)

	// Activate atomically (a) moves the referenced payment from
	// pending to success and (b) creates or updates-in-place the
	// school's subscription row. If the payment already reached
	// success it returns ErrAlreadyProcessed and writes nothing; the
	// webhook/callback race resolves here. Returns created=true when a
	// new subscription row was inserted.
	Activate(ctx context.Context, p ActivateParams) (*Subscription, bool, error)

	// ListExpired returns active subscriptions whose end date has
	// passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	// ListExpiringWithin returns active subscriptions ending in
	// (now, until].
	ListExpiringWithin(ctx context.Context, now, until time.Time) ([]*Subscription, error)

	// MarkExpired transitions active→expired only while the row is
	// still active with an elapsed end date. Returns false when a
	// concurrent renewal moved the end date, so a stale sweep read
	// cannot clobber a committed renewal.
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)

	// MarkWarned records an expiry warning, at most once per 24h.
	// Returns false when the subscription was already warned today.
	MarkWarned(ctx context.Context, id string, now time.Time) (bool, error)

	// Cancel transitions a school's subscription to cancelled.
	Cancel(ctx context.Context, schoolID string, now time.Time) error
}
