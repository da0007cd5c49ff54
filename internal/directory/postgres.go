package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aruizmd/medassist/internal/phone"
)

// PostgresStore reads the clinician roster from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clinicians (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			phone TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init clinician schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ClinicianByPhone(ctx context.Context, normalized string) (Clinician, error) {
	var c Clinician
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, phone FROM clinicians WHERE phone = $1`,
		normalized,
	).Scan(&c.ID, &c.DisplayName, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Clinician{}, ErrNotRegistered
	}
	if err != nil {
		return Clinician{}, fmt.Errorf("query clinician: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Close() error { return nil }

// InMemoryStore is a fixed roster for local/dev use, seeded at build time.
type InMemoryStore struct {
	byPhone map[string]Clinician
}

func NewInMemoryStore(clinicians ...Clinician) *InMemoryStore {
	s := &InMemoryStore{byPhone: make(map[string]Clinician)}
	for _, c := range clinicians {
		s.byPhone[phone.Normalize(c.Phone)] = c
	}
	return s
}

func (s *InMemoryStore) ClinicianByPhone(_ context.Context, normalized string) (Clinician, error) {
	c, ok := s.byPhone[normalized]
	if !ok {
		return Clinician{}, ErrNotRegistered
	}
	return c, nil
}

func (s *InMemoryStore) Close() error { return nil }
