// Package chatauth issues short-lived opaque tokens bound to a transport
// address. The token lets a companion web view act on behalf of the same
// chat without re-authenticating; it is reused verbatim while unexpired and
// regenerated, never extended, once it lapses.
package chatauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aruizmd/medassist/internal/phone"
)

const (
	// DefaultTTL matches the conversation inactivity window so a chat and
	// its companion-view token expire together.
	DefaultTTL = 30 * time.Minute

	tokenBytes = 32
)

var ErrTokenNotFound = errors.New("chat token not found")

// Session is one issued token bound to a transport address and clinician.
type Session struct {
	Address       string    `json:"address"`
	ClinicianID   string    `json:"clinician_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Store persists at most one token per address. Upsert must be a single
// atomic write: concurrent renewals resolve as last write wins.
type Store interface {
	SessionByAddress(ctx context.Context, address string) (Session, error)
	SessionByToken(ctx context.Context, token string) (Session, error)
	Upsert(ctx context.Context, s Session) error
	TouchLastMessage(ctx context.Context, address string, at time.Time) error
	Close() error
}

// Issuer hands out and renews chat session tokens.
type Issuer struct {
	store   Store
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewIssuer(store Store, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{store: store, ttl: ttl, nowFunc: time.Now}
}

// GetOrCreateSession returns the unexpired token for the address, touching
// its last-message timestamp, or mints a fresh one when absent or expired.
func (i *Issuer) GetOrCreateSession(ctx context.Context, address, clinicianID string) (Session, error) {
	normalized := phone.Normalize(address)
	now := i.nowFunc().UTC()

	existing, err := i.store.SessionByAddress(ctx, normalized)
	if err == nil && existing.ExpiresAt.After(now) {
		if err := i.store.TouchLastMessage(ctx, normalized, now); err != nil {
			return Session{}, fmt.Errorf("touch chat session: %w", err)
		}
		existing.LastMessageAt = now
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return Session{}, fmt.Errorf("lookup chat session: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	s := Session{
		Address:       normalized,
		ClinicianID:   clinicianID,
		Token:         token,
		ExpiresAt:     now.Add(i.ttl),
		LastMessageAt: now,
	}
	if err := i.store.Upsert(ctx, s); err != nil {
		return Session{}, fmt.Errorf("upsert chat session: %w", err)
	}
	return s, nil
}

// Validate resolves a token presented by the companion view. Expired tokens
// are rejected even if still stored.
func (i *Issuer) Validate(ctx context.Context, token string) (Session, error) {
	s, err := i.store.SessionByToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if !s.ExpiresAt.After(i.nowFunc().UTC()) {
		return Session{}, ErrTokenNotFound
	}
	return s, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate chat token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
