// Package subscription holds the subscription state machine.
//
// Each school has at most one subscription row, updated in place on
// renewal so that exactly one row drives access while the payment
// ledger keeps the full history. States: active → {expired, cancelled};
// expired and cancelled both re-enter active on a new verified payment.
// The Service is the only writer of subscription status: ingress
// activation is the only path into active, the sweep (and the lazy
// read-time check) the only path from active to expired.
package subscription

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNoSubscription = errors.New("subscription: none for school")
	// ErrUnknownReference means a verified transaction arrived for a
	// reference this system never initialized.
	ErrUnknownReference = errors.New("subscription: unknown payment reference")
	// ErrAlreadyProcessed marks the idempotent-duplicate case: the
	// payment already reached success and the subscription is settled.
	ErrAlreadyProcessed = errors.New("subscription: payment already processed")
)

// Status represents a subscription's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Subscription is a school's single access-driving subscription row.
type Subscription struct {
	ID           string     `json:"id"`
	SchoolID     string     `json:"schoolId"`
	PlanID       string     `json:"planId"`
	Status       Status     `json:"status"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      *time.Time `json:"endDate"` // nil = perpetual
	LastWarnedAt *time.Time `json:"lastWarnedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ExpiredAt reports whether the subscription's end date has passed.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// DaysRemaining returns whole days until expiry, 0 when past due or
// perpetual-is-irrelevant (-1 is never returned).
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s.EndDate == nil {
		return 0
	}
	d := int(s.EndDate.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
