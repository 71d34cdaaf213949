// Package plan provides the subscription plan catalogue.
//
// Plans are append-only: once a plan has been referenced by a payment it
// is never edited or deleted. Retiring a plan sets active=false so that
// historical payments and subscriptions keep resolving it. Pricing
// changes mean a new plan.
package plan

import (
	"errors"
	"time"
)

// Errors
var (
	ErrPlanNotFound = errors.New("plan: not found")
	ErrPlanInactive = errors.New("plan: not available for purchase")
)

// Plan is one purchasable subscription tier.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Price        string    `json:"price"` // decimal string in the human currency unit
	Currency     string    `json:"currency"`
	DurationDays *int      `json:"durationDays"` // nil = lifetime
	Active       bool      `json:"active"`
	Features     []string  `json:"features"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Lifetime reports whether the plan never expires.
func (p *Plan) Lifetime() bool {
	return p.DurationDays == nil
}

// Duration returns the plan's validity period. Zero for lifetime plans.
func (p *Plan) Duration() time.Duration {
	if p.DurationDays == nil {
		return 0
	}
	return time.Duration(*p.DurationDays) * 24 * time.Hour
}
