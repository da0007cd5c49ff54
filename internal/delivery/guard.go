// Package delivery deduplicates inbound gateway callbacks. Providers retry
// webhooks until acknowledged, so the same message id can arrive more than
// once; recording it with an atomic insert-if-absent is the single
// concurrency gate in the inbound pipeline.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store records provider message ids. Record must be atomic: it returns
// false, without error, when the id was already present.
type Store interface {
	Record(ctx context.Context, providerMessageID string) (bool, error)
	Close() error
}

// Guard answers whether an inbound callback is the first delivery of its
// message.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// FirstDelivery returns true exactly once per provider message id. A
// duplicate is not an error; callers treat it as already processed and
// still acknowledge the provider.
func (g *Guard) FirstDelivery(ctx context.Context, providerMessageID string) (bool, error) {
	return g.store.Record(ctx, providerMessageID)
}

// NewStore returns a postgres-backed store when a pool is supplied,
// otherwise an in-memory store.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, pool)
}

// PostgresStore relies on the primary key for the insert-if-absent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmt := `CREATE TABLE IF NOT EXISTS inbound_deliveries (
		provider_message_id TEXT PRIMARY KEY,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("init delivery schema failed on %q: %w", stmt, err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, providerMessageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO inbound_deliveries (provider_message_id, received_at)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		providerMessageID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Close() error { return nil }

// InMemoryStore tracks seen ids in-process for local/dev use.
type InMemoryStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]bool)}
}

func (s *InMemoryStore) Record(_ context.Context, providerMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[providerMessageID] {
		return false, nil
	}
	s.seen[providerMessageID] = true
	return true, nil
}

func (s *InMemoryStore) Close() error { return nil }
