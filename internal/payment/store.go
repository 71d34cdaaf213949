package payment

import (
	"context"
	"time"

	"github.com/edutrack/edutrack/internal/pagination"
)

// Store persists payment attempts.
//
// There is deliberately no MarkSuccess here: the pending→success
// transition is owned by the subscription store's Activate, which
// commits it atomically with the subscription change.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	ListBySchool(ctx context.Context, schoolID string) ([]*Payment, error)
	// ListBySchoolPage returns up to limit+1 payments older than the
	// cursor, newest first. The extra row lets the caller detect
	// whether more pages remain.
	ListBySchoolPage(ctx context.Context, schoolID string, before *pagination.Cursor, limit int) ([]*Payment, error)
	// MarkFailed and MarkCancelled transition a pending payment.
	// Payments in any final status return ErrStatusFinal.
	MarkFailed(ctx context.Context, reference string, now time.Time) error
	MarkCancelled(ctx context.Context, reference string, now time.Time) error
}
