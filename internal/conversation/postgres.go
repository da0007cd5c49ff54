package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations and turns in PostgreSQL. The partial
// unique index on (clinician_id) WHERE active makes the single-active
// invariant hold even when two callbacks race on Create.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initConversationSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initConversationSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			clinician_id TEXT NOT NULL,
			model TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			summary TEXT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			context_limit INTEGER NOT NULL DEFAULT 10
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_active
			ON conversations (clinician_id) WHERE active;`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			token_estimate INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			read_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation_created ON turns (conversation_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init conversation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ActiveForClinician(ctx context.Context, clinicianID string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, clinician_id, model, system_prompt, summary, last_activity_at, active, context_limit
		 FROM conversations WHERE clinician_id = $1 AND active`,
		clinicianID,
	).Scan(&c.ID, &c.ClinicianID, &c.Model, &c.SystemPrompt, &c.Summary, &c.LastActivityAt, &c.Active, &c.ContextLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNoActiveConversation
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query active conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, conv Conversation) (Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.Active = true
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, clinician_id, model, system_prompt, summary, last_activity_at, active, context_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		 ON CONFLICT DO NOTHING`,
		conv.ID, conv.ClinicianID, conv.Model, conv.SystemPrompt, conv.Summary, conv.LastActivityAt, conv.ContextLimit,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent request won the race; hand back its conversation.
		return s.ActiveForClinician(ctx, conv.ClinicianID)
	}
	return conv, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET active = FALSE WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("deactivate conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, conversationID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET last_activity_at = $2 WHERE id = $1 AND active`,
		conversationID, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if turn.TokenEstimate == 0 {
		turn.TokenEstimate = EstimateTokens(turn.Content)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, conversation_id, role, content, token_estimate, created_at, read_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.ID, turn.ConversationID, turn.Role, turn.Content, turn.TokenEstimate, turn.CreatedAt, turn.ReadAt,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, token_estimate, created_at, read_at
		 FROM turns WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &t.TokenEstimate, &t.CreatedAt, &t.ReadAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetSummaryAndDelete(ctx context.Context, conversationID, summary string, turnIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin compaction tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET summary = $2 WHERE id = $1`,
		conversationID, summary,
	); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM turns WHERE conversation_id = $1 AND id = ANY($2)`,
		conversationID, turnIDs,
	); err != nil {
		return fmt.Errorf("delete folded turns: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit compaction tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }
