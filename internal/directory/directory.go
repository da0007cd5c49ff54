// Package directory resolves inbound transport addresses to registered
// clinicians. It is a pure lookup over the clinician roster: nothing in the
// messaging pipeline ever mutates a clinician record.
package directory

import (
	"context"
	"errors"

	"github.com/aruizmd/medassist/internal/phone"
)

var ErrNotRegistered = errors.New("clinician not registered")

// Clinician is the identity an inbound message resolves to.
type Clinician struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// Store looks up clinicians by their normalized contact phone.
type Store interface {
	ClinicianByPhone(ctx context.Context, normalized string) (Clinician, error)
	Close() error
}

// Resolver maps a raw transport address to a clinician identity.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve normalizes the address and looks up the owning clinician.
// Returns ErrNotRegistered when no clinician has the address on file.
func (r *Resolver) Resolve(ctx context.Context, addr string) (Clinician, error) {
	normalized := phone.Normalize(addr)
	if normalized == "" {
		return Clinician{}, ErrNotRegistered
	}
	return r.store.ClinicianByPhone(ctx, normalized)
}
