package plan

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresStore persists plans in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed plan store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, pl *Plan) error {
	featuresJSON, err := json.Marshal(pl.Features)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, price, currency, duration_days, active, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pl.ID, pl.Name, pl.Price, pl.Currency, pl.DurationDays, pl.Active, featuresJSON, pl.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Plan, error) {
	return p.scanPlan(p.db.QueryRowContext(ctx, `
		SELECT id, name, price, currency, duration_days, active, features, created_at
		FROM plans WHERE id = $1`, id))
}

func (p *PostgresStore) List(ctx context.Context) ([]*Plan, error) {
	return p.queryPlans(ctx, `
		SELECT id, name, price, currency, duration_days, active, features, created_at
		FROM plans ORDER BY created_at`)
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]*Plan, error) {
	return p.queryPlans(ctx, `
		SELECT id, name, price, currency, duration_days, active, features, created_at
		FROM plans WHERE active = TRUE ORDER BY created_at`)
}

func (p *PostgresStore) Deactivate(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `UPDATE plans SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (p *PostgresStore) queryPlans(ctx context.Context, query string) ([]*Plan, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Plan
	for rows.Next() {
		pl, err := scanPlanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanPlan(row *sql.Row) (*Plan, error) {
	pl, err := scanPlanRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	return pl, err
}

func scanPlanRow(row rowScanner) (*Plan, error) {
	pl := &Plan{}
	var (
		duration     sql.NullInt64
		featuresJSON []byte
	)
	err := row.Scan(&pl.ID, &pl.Name, &pl.Price, &pl.Currency, &duration, &pl.Active,
		&featuresJSON, &pl.CreatedAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		pl.DurationDays = &d
	}
	if len(featuresJSON) > 0 {
		_ = json.Unmarshal(featuresJSON, &pl.Features)
	}
	return pl, nil
}

// Migrate creates the plans table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS plans (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			price         NUMERIC(12,2) NOT NULL,
			currency      TEXT NOT NULL DEFAULT 'NGN',
			duration_days INTEGER,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			features      JSONB NOT NULL DEFAULT '[]',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
