// Package payment provides the payment ledger.
//
// One Payment row is written per transaction attempt and keeps the full
// audit trail. The gateway reference is assigned exactly once, before
// the gateway is called, and is the idempotency key for the whole
// lifecycle. Status moves pending → {success, failed, cancelled} and
// never backward; success is terminal.
package payment

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrPaymentNotFound = errors.New("payment: not found")
	ErrReferenceTaken  = errors.New("payment: reference already exists")
	ErrStatusFinal     = errors.New("payment: status is final")
)

// Status represents a payment attempt's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Payment records one transaction attempt against the gateway.
type Payment struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"schoolId"`
	PlanID        string    `json:"planId"`
	Amount        string    `json:"amount"` // human currency unit
	Currency      string    `json:"currency"`
	Reference     string    `json:"reference"` // unique, system-generated before the gateway call
	TransactionID string    `json:"transactionId,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewReference builds a payment reference that is unique with
// overwhelming probability and traceable back to (school, plan, time)
// without a lookup.
func NewReference(schoolID, planID string, now time.Time) string {
	return fmt.Sprintf("EDU_%s_%s_%d", schoolID, planID, now.Unix())
}
