package membership

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RedisResolver reads conversation membership from Redis sets that the
// REST tier maintains alongside its own storage.
type RedisResolver struct {
	client *redis.Client
}

// NewRedisResolver creates a new RedisResolver.
func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

func membersKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s:members", conversationID)
}

// ConversationMembers returns the member user ids of a conversation,
// omitting the excluded user when set. Entries that do not parse as
// UUIDs are logged and skipped rather than failing the whole lookup.
func (r *RedisResolver) ConversationMembers(ctx context.Context, conversationID uuid.UUID, excluding *uuid.UUID) ([]uuid.UUID, error) {
	raw, err := r.client.SMembers(ctx, membersKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read members of conversation %s: %w", conversationID, err)
	}

	members := lo.FilterMap(raw, func(entry string, _ int) (uuid.UUID, bool) {
		id, err := uuid.Parse(entry)
		if err != nil {
			log.Printf("Skipping malformed member entry %q in conversation %s: %v", entry, conversationID, err)
			return uuid.Nil, false
		}
		if excluding != nil && id == *excluding {
			return uuid.Nil, false
		}
		return id, true
	})
	return members, nil
}

// AddMember inserts a user into a conversation's member set. The REST
// tier owns membership; this exists for tooling and tests.
func (r *RedisResolver) AddMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	return r.client.SAdd(ctx, membersKey(conversationID), userID.String()).Err()
}
