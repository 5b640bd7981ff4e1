// Package auth verifies the bearer tokens that clients present over the
// realtime connection. The REST tier issues the tokens; this package
// only needs to check them.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that does not resolve to a
// user identity: malformed, expired, bad signature, or revoked.
var ErrInvalidToken = errors.New("invalid access token")

// Verifier resolves a bearer token to a user identity.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (uuid.UUID, error)
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (uuid.UUID, error)

func (f VerifierFunc) VerifyToken(ctx context.Context, token string) (uuid.UUID, error) {
	return f(ctx, token)
}
