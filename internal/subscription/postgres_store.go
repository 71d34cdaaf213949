package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists subscriptions in PostgreSQL.
//
// Activate runs payment completion and the subscription upsert in one
// transaction; the SELECT ... FOR UPDATE on the subscription row gives
// per-school serialization at the database level, on top of the
// in-process per-school lock the Service holds.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, school_id, plan_id, status, start_date, end_date,
	last_warned_at, created_at, updated_at`

func (p *PostgresStore) GetBySchool(ctx context.Context, schoolID string) (*Subscription, error) {
	return p.scanSub(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM school_subscriptions
		WHERE school_id = $1`, schoolID))
}

func (p *PostgresStore) Activate(ctx context.Context, params ActivateParams) (*Subscription, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Flip the payment first. The status guard makes duplicates
	// detectable inside the transaction.
	result, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'success', transaction_id = $1, channel = $2, updated_at = $3
		WHERE reference = $4 AND status = 'pending'`,
		params.TransactionID, params.Channel, params.Now, params.PaymentReference,
	)
	if err != nil {
		return nil, false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM payments WHERE reference = $1`, params.PaymentReference,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, false, ErrUnknownReference
		}
		if err != nil {
			return nil, false, err
		}
		if status == "success" {
			return nil, false, ErrAlreadyProcessed
		}
		return nil, false, fmt.Errorf("subscription: payment %s is %s, cannot activate",
			params.PaymentReference, status)
	}

	// Lock the school's subscription row for the upsert decision.
	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM school_subscriptions WHERE school_id = $1 FOR UPDATE`,
		params.SchoolID,
	).Scan(&existingID)

	created := false
	switch {
	case err == sql.ErrNoRows:
		created = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO school_subscriptions
				(id, school_id, plan_id, status, start_date, end_date, created_at, updated_at)
			VALUES ($1, $2, $3, 'active', $4, $5, $6, $6)`,
			params.SubscriptionID, params.SchoolID, params.PlanID,
			params.Start, params.End, params.Now,
		)
	case err != nil:
		return nil, false, err
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE school_subscriptions
			SET plan_id = $1, status = 'active', start_date = $2, end_date = $3,
				last_warned_at = NULL, updated_at = $4
			WHERE id = $5`,
			params.PlanID, params.Start, params.End, params.Now, existingID,
		)
	}
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	sub, err := p.GetBySchool(ctx, params.SchoolID)
	if err != nil {
		return nil, false, err
	}
	return sub, created, nil
}

func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	return p.querySubs(ctx, `
		SELECT `+subscriptionColumns+` FROM school_subscriptions
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1
		ORDER BY end_date LIMIT $2`, now, limit)
}

func (p *PostgresStore) ListExpiringWithin(ctx context.Context, now, until time.Time) ([]*Subscription, error) {
	return p.querySubs(ctx, `
		SELECT `+subscriptionColumns+` FROM school_subscriptions
		WHERE status = 'active' AND end_date IS NOT NULL
			AND end_date > $1 AND end_date <= $2
		ORDER BY end_date`, now, until)
}

func (p *PostgresStore) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE school_subscriptions SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status = 'active' AND end_date IS NOT NULL AND end_date < $1`,
		now, id,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) MarkWarned(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE school_subscriptions SET last_warned_at = $1, updated_at = $1
		WHERE id = $2 AND (last_warned_at IS NULL OR last_warned_at <= $1 - INTERVAL '24 hours')`,
		now, id,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) Cancel(ctx context.Context, schoolID string, now time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE school_subscriptions SET status = 'cancelled', updated_at = $1
		WHERE school_id = $2`, now, schoolID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNoSubscription
	}
	return nil
}

func (p *PostgresStore) querySubs(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Subscription
	for rows.Next() {
		s, err := scanSubRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanSub(row *sql.Row) (*Subscription, error) {
	s, err := scanSubRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoSubscription
	}
	return s, err
}

func scanSubRow(row rowScanner) (*Subscription, error) {
	s := &Subscription{}
	var (
		status     string
		endDate    sql.NullTime
		lastWarned sql.NullTime
	)
	err := row.Scan(&s.ID, &s.SchoolID, &s.PlanID, &status, &s.StartDate, &endDate,
		&lastWarned, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)
	if endDate.Valid {
		s.EndDate = &endDate.Time
	}
	if lastWarned.Valid {
		s.LastWarnedAt = &lastWarned.Time
	}
	return s, nil
}

// Migrate creates the school_subscriptions table (used in dev/test;
// prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS school_subscriptions (
			id             TEXT PRIMARY KEY,
			school_id      TEXT NOT NULL UNIQUE,
			plan_id        TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'active',
			start_date     TIMESTAMPTZ NOT NULL,
			end_date       TIMESTAMPTZ,
			last_warned_at TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry
			ON school_subscriptions(status, end_date);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
