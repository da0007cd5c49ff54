package chatauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestIssuer(ttl time.Duration) (*Issuer, *time.Time) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := NewIssuer(NewInMemoryStore(), ttl)
	i.nowFunc = func() time.Time { return now }
	return i, &now
}

func TestTokenReusedWithinTTL(t *testing.T) {
	issuer, now := newTestIssuer(30 * time.Minute)
	ctx := context.Background()

	first, err := issuer.GetOrCreateSession(ctx, "whatsapp:+5491155551234", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	if len(first.Token) != tokenBytes*2 {
		t.Fatalf("token length = %d, want %d hex chars", len(first.Token), tokenBytes*2)
	}

	*now = now.Add(10 * time.Minute)
	second, err := issuer.GetOrCreateSession(ctx, "+5491155551234", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	if second.Token != first.Token {
		t.Fatalf("token rotated within TTL: %q != %q", second.Token, first.Token)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("expiry changed on reuse: %v != %v", second.ExpiresAt, first.ExpiresAt)
	}
	if !second.LastMessageAt.Equal(*now) {
		t.Fatalf("LastMessageAt not touched: %v", second.LastMessageAt)
	}
}

func TestTokenRegeneratedAfterExpiry(t *testing.T) {
	issuer, now := newTestIssuer(30 * time.Minute)
	ctx := context.Background()

	first, err := issuer.GetOrCreateSession(ctx, "+5491155551234", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}

	*now = now.Add(31 * time.Minute)
	second, err := issuer.GetOrCreateSession(ctx, "+5491155551234", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	if second.Token == first.Token {
		t.Fatalf("token should rotate after expiry")
	}
	if want := now.Add(30 * time.Minute); !second.ExpiresAt.Equal(want) {
		t.Fatalf("new expiry = %v, want %v", second.ExpiresAt, want)
	}
}

func TestValidate(t *testing.T) {
	issuer, now := newTestIssuer(30 * time.Minute)
	ctx := context.Background()

	sess, err := issuer.GetOrCreateSession(ctx, "+5491155551234", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}

	got, err := issuer.Validate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.ClinicianID != "c1" {
		t.Fatalf("ClinicianID = %q, want c1", got.ClinicianID)
	}

	*now = now.Add(time.Hour)
	if _, err := issuer.Validate(ctx, sess.Token); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("Validate(expired) error = %v, want ErrTokenNotFound", err)
	}

	if _, err := issuer.Validate(ctx, "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("Validate(unknown) error = %v, want ErrTokenNotFound", err)
	}
}

func TestJanitorPurgesExpired(t *testing.T) {
	store := NewInMemoryStore()
	sess := Session{Address: "+1", Token: "t", ExpiresAt: time.Now().UTC().Add(-time.Minute)}
	if err := store.Upsert(context.Background(), sess); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	store.purgeExpired(time.Now().UTC())
	if _, err := store.SessionByAddress(context.Background(), "+1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected expired session purged, got err = %v", err)
	}
}
