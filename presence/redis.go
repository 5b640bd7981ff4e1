package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisRepository implements Repository on top of Redis. Records are
// stored as JSON blobs without a TTL: last-seen timestamps must survive
// long offline periods.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new RedisRepository.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetOnline marks the user online.
func (r *RedisRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	return r.write(ctx, Status{UserID: userID, IsOnline: true})
}

// SetOffline marks the user offline with a last-seen timestamp.
func (r *RedisRepository) SetOffline(ctx context.Context, userID uuid.UUID, lastSeenAt time.Time) error {
	return r.write(ctx, Status{UserID: userID, IsOnline: false, LastOnlineAt: &lastSeenAt})
}

// Get retrieves the persisted status for a user.
func (r *RedisRepository) Get(ctx context.Context, userID uuid.UUID) (*Status, error) {
	data, err := r.client.Get(ctx, presenceKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var status Status
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence status: %w", err)
	}
	return &status, nil
}

func (r *RedisRepository) write(ctx context.Context, status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal presence status: %w", err)
	}
	return r.client.Set(ctx, presenceKey(status.UserID), data, 0).Err()
}
