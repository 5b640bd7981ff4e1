// Package membership resolves a conversation identity to its member
// user identities. The hub uses it to compute event fan-out recipients.
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Resolver looks up conversation membership. When excluding is non-nil
// that user is omitted from the result; event handlers use it to leave
// out the acting user.
type Resolver interface {
	ConversationMembers(ctx context.Context, conversationID uuid.UUID, excluding *uuid.UUID) ([]uuid.UUID, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, conversationID uuid.UUID, excluding *uuid.UUID) ([]uuid.UUID, error)

func (f ResolverFunc) ConversationMembers(ctx context.Context, conversationID uuid.UUID, excluding *uuid.UUID) ([]uuid.UUID, error) {
	return f(ctx, conversationID, excluding)
}
