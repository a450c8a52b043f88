package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tenantguard:revoked:"

// Redis shares revocations across instances. Entries expire with the key TTL.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *Redis) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session %s: %w", sessionID, err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation for %s: %w", sessionID, err)
	}
	return n > 0, nil
}
