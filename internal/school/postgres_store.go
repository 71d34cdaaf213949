package school

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
)

// PostgresStore persists schools in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed school store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s *School) error {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO schools (id, name, code, active, demo, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.Code, s.Active, s.Demo, settingsJSON, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*School, error) {
	return p.scanSchool(p.db.QueryRowContext(ctx, `
		SELECT id, name, code, active, demo, settings, created_at, updated_at
		FROM schools WHERE id = $1`, id))
}

func (p *PostgresStore) GetByCode(ctx context.Context, code string) (*School, error) {
	return p.scanSchool(p.db.QueryRowContext(ctx, `
		SELECT id, name, code, active, demo, settings, created_at, updated_at
		FROM schools WHERE code = $1`, code))
}

func (p *PostgresStore) Update(ctx context.Context, s *School) error {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE schools SET name = $1, active = $2, demo = $3, settings = $4, updated_at = $5
		WHERE id = $6`,
		s.Name, s.Active, s.Demo, settingsJSON, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSchoolNotFound
	}
	return nil
}

func (p *PostgresStore) Deactivate(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE schools SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSchoolNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*School, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, code, active, demo, settings, created_at, updated_at
		FROM schools ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*School
	for rows.Next() {
		s, err := scanSchoolRow(rows)
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

func (p *PostgresStore) scanSchool(row *sql.Row) (*School, error) {
	s, err := scanSchoolRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrSchoolNotFound
	}
	return s, err
}

func scanSchoolRow(row rowScanner) (*School, error) {
	s := &School{}
	var settingsJSON []byte
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Active, &s.Demo, &settingsJSON,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		_ = json.Unmarshal(settingsJSON, &s.Settings)
	}
	return s, nil
}

// Migrate creates the schools table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schools (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			code       TEXT NOT NULL UNIQUE,
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			demo       BOOLEAN NOT NULL DEFAULT FALSE,
			settings   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_schools_code ON schools(code);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
