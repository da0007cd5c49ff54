package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSessionTimeout is the inactivity window after which the active
// conversation is considered expired.
const DefaultSessionTimeout = 30 * time.Minute

// NewStore returns a postgres-backed store when a pool is supplied,
// otherwise an in-memory store.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, pool)
}

// Manager enforces the conversation lifecycle: NoActiveSession → Active →
// Expired(terminal). Expiry is lazy, checked on every lookup, so no
// background timer is involved and staleness never exceeds one round trip.
type Manager struct {
	store        Store
	timeout      time.Duration
	model        string
	contextLimit int
	nowFunc      func() time.Time
}

func NewManager(store Store, timeout time.Duration, model string, contextLimit int) *Manager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	return &Manager{
		store:        store,
		timeout:      timeout,
		model:        model,
		contextLimit: contextLimit,
		nowFunc:      time.Now,
	}
}

// isExpired is the single lazy-expiry rule applied on every lookup path.
func isExpired(lastActivityAt, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastActivityAt) > timeout
}

// GetOrCreateActive returns the clinician's active conversation and its
// stored turns, creating a fresh conversation when none exists or the
// existing one has gone stale. Expiry is terminal: a deactivated
// conversation is never reactivated.
func (m *Manager) GetOrCreateActive(ctx context.Context, clinicianID, systemPrompt string) (Conversation, []Turn, error) {
	now := m.nowFunc().UTC()

	conv, err := m.store.ActiveForClinician(ctx, clinicianID)
	switch {
	case err == ErrNoActiveConversation:
		return m.createFresh(ctx, clinicianID, systemPrompt, now)
	case err != nil:
		return Conversation{}, nil, fmt.Errorf("lookup active conversation: %w", err)
	}

	if isExpired(conv.LastActivityAt, now, m.timeout) {
		if err := m.store.Deactivate(ctx, conv.ID); err != nil {
			return Conversation{}, nil, fmt.Errorf("expire conversation: %w", err)
		}
		return m.createFresh(ctx, clinicianID, systemPrompt, now)
	}

	if err := m.store.Touch(ctx, conv.ID, now); err != nil {
		return Conversation{}, nil, fmt.Errorf("refresh conversation: %w", err)
	}
	conv.LastActivityAt = now

	turns, err := m.store.Turns(ctx, conv.ID)
	if err != nil {
		return Conversation{}, nil, fmt.Errorf("load turns: %w", err)
	}
	return conv, turns, nil
}

func (m *Manager) createFresh(ctx context.Context, clinicianID, systemPrompt string, now time.Time) (Conversation, []Turn, error) {
	conv, err := m.store.Create(ctx, Conversation{
		ClinicianID:    clinicianID,
		Model:          m.model,
		SystemPrompt:   systemPrompt,
		LastActivityAt: now,
		ContextLimit:   m.contextLimit,
	})
	if err != nil {
		return Conversation{}, nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil, nil
}
