package payment

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/edutrack/edutrack/internal/pagination"
)

// PostgresStore persists payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, school_id, plan_id, amount, currency, reference,
	transaction_id, channel, status, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, school_id, plan_id, amount, currency, reference,
			transaction_id, channel, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pay.ID, pay.SchoolID, pay.PlanID, pay.Amount, pay.Currency, pay.Reference,
		nullable(pay.TransactionID), nullable(pay.Channel), string(pay.Status),
		pay.CreatedAt, pay.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrReferenceTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	return p.scanPayment(p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (p *PostgresStore) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	return p.scanPayment(p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

func (p *PostgresStore) ListBySchool(ctx context.Context, schoolID string) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE school_id = $1 ORDER BY created_at DESC`, schoolID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Payment
	for rows.Next() {
		pay, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pay)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListBySchoolPage(ctx context.Context, schoolID string, before *pagination.Cursor, limit int) ([]*Payment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE school_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`
	args := []any{schoolID, limit + 1}
	if before != nil {
		query = `
			SELECT ` + paymentColumns + ` FROM payments
			WHERE school_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`
		args = []any{schoolID, before.CreatedAt, before.ID, limit + 1}
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Payment
	for rows.Next() {
		pay, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pay)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkFailed(ctx context.Context, reference string, now time.Time) error {
	return p.transition(ctx, reference, StatusFailed, now)
}

func (p *PostgresStore) MarkCancelled(ctx context.Context, reference string, now time.Time) error {
	return p.transition(ctx, reference, StatusCancelled, now)
}

// transition only ever moves a payment out of pending; the guard in the
// WHERE clause keeps every other status final.
func (p *PostgresStore) transition(ctx context.Context, reference string, to Status, now time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2
		WHERE reference = $3 AND status = 'pending'`,
		string(to), now, reference,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := p.GetByReference(ctx, reference); err != nil {
			return err
		}
		return ErrStatusFinal
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanPayment(row *sql.Row) (*Payment, error) {
	pay, err := scanPaymentRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return pay, err
}

func scanPaymentRow(row rowScanner) (*Payment, error) {
	pay := &Payment{}
	var (
		status        string
		transactionID sql.NullString
		channel       sql.NullString
	)
	err := row.Scan(&pay.ID, &pay.SchoolID, &pay.PlanID, &pay.Amount, &pay.Currency,
		&pay.Reference, &transactionID, &channel, &status, &pay.CreatedAt, &pay.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pay.Status = Status(status)
	if transactionID.Valid {
		pay.TransactionID = transactionID.String
	}
	if channel.Valid {
		pay.Channel = channel.String
	}
	return pay, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Migrate creates the payments table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id             TEXT PRIMARY KEY,
			school_id      TEXT NOT NULL,
			plan_id        TEXT NOT NULL,
			amount         NUMERIC(12,2) NOT NULL,
			currency       TEXT NOT NULL DEFAULT 'NGN',
			reference      TEXT NOT NULL UNIQUE,
			transaction_id TEXT,
			channel        TEXT,
			status         TEXT NOT NULL DEFAULT 'pending',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payments_school ON payments(school_id);
		CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments(reference);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
