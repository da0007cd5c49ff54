package directory

import (
	"context"
	"errors"
	"testing"
)

func TestResolveNormalizesAddress(t *testing.T) {
	store := NewInMemoryStore(Clinician{ID: "c1", DisplayName: "Dr. Rivas", Phone: "+5491155551234"})
	r := NewResolver(store)

	for _, addr := range []string{"+5491155551234", "whatsapp:+5491155551234", " whatsapp:+54 911 5555 1234 "} {
		got, err := r.Resolve(context.Background(), addr)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", addr, err)
		}
		if got.ID != "c1" {
			t.Fatalf("Resolve(%q) id = %q, want c1", addr, got.ID)
		}
	}
}

func TestResolveUnknownAddress(t *testing.T) {
	r := NewResolver(NewInMemoryStore())
	_, err := r.Resolve(context.Background(), "whatsapp:+10000000000")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Resolve() error = %v, want ErrNotRegistered", err)
	}
}

func TestResolveEmptyAddress(t *testing.T) {
	r := NewResolver(NewInMemoryStore(Clinician{ID: "c1", Phone: ""}))
	if _, err := r.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Resolve(blank) error = %v, want ErrNotRegistered", err)
	}
}
