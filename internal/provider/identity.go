package provider

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Authentication outcome kinds. Callers outside the session layer never see
// which one occurred.
var (
	// ErrInvalidCredentials means the identity provider rejected the pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable wraps transport, storage or upstream failures.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// IdentityProvider verifies a username/password pair and returns the user id.
// Errors wrap ErrInvalidCredentials or ErrUnavailable.
type IdentityProvider interface {
	Authenticate(ctx context.Context, username, password string) (uuid.UUID, error)
}

type unavailableError struct{ cause error }

func (e *unavailableError) Error() string { return ErrUnavailable.Error() + ": " + e.cause.Error() }
func (e *unavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.cause}
}

func unavailable(cause error) error { return &unavailableError{cause: cause} }
