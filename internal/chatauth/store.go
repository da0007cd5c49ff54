package chatauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore returns a postgres-backed store when a pool is supplied,
// otherwise an in-memory store.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, pool)
}

// PostgresStore keys chat sessions by address with a single-row upsert.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			address TEXT PRIMARY KEY,
			clinician_id TEXT NOT NULL,
			token TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			last_message_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_token ON chat_sessions (token);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init chat session schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SessionByAddress(ctx context.Context, address string) (Session, error) {
	return s.scanOne(ctx,
		`SELECT address, clinician_id, token, expires_at, last_message_at
		 FROM chat_sessions WHERE address = $1`, address)
}

func (s *PostgresStore) SessionByToken(ctx context.Context, token string) (Session, error) {
	return s.scanOne(ctx,
		`SELECT address, clinician_id, token, expires_at, last_message_at
		 FROM chat_sessions WHERE token = $1`, token)
}

func (s *PostgresStore) scanOne(ctx context.Context, query, arg string) (Session, error) {
	var out Session
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&out.Address, &out.ClinicianID, &out.Token, &out.ExpiresAt, &out.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrTokenNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query chat session: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (address, clinician_id, token, expires_at, last_message_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (address) DO UPDATE SET
			clinician_id = EXCLUDED.clinician_id,
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at,
			last_message_at = EXCLUDED.last_message_at`,
		sess.Address, sess.ClinicianID, sess.Token, sess.ExpiresAt, sess.LastMessageAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chat session: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchLastMessage(ctx context.Context, address string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET last_message_at = $2 WHERE address = $1`,
		address, at,
	)
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }

// InMemoryStore keeps chat sessions in-process for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	byAddress map[string]Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byAddress: make(map[string]Session)}
}

func (s *InMemoryStore) SessionByAddress(_ context.Context, address string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byAddress[address]
	if !ok {
		return Session{}, ErrTokenNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) SessionByToken(_ context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.byAddress {
		if sess.Token == token {
			return sess, nil
		}
	}
	return Session{}, ErrTokenNotFound
}

func (s *InMemoryStore) Upsert(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddress[sess.Address] = sess
	return nil
}

func (s *InMemoryStore) TouchLastMessage(_ context.Context, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byAddress[address]
	if !ok {
		return ErrTokenNotFound
	}
	sess.LastMessageAt = at
	s.byAddress[address] = sess
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// StartJanitor periodically purges expired sessions so the in-memory map
// does not grow without bound on long-lived processes.
func (s *InMemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeExpired(time.Now().UTC())
			}
		}
	}()
}

func (s *InMemoryStore) purgeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, sess := range s.byAddress {
		if !sess.ExpiresAt.After(now) {
			delete(s.byAddress, addr)
		}
	}
}
