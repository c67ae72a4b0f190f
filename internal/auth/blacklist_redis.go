package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist stores revoked access tokens in Redis with a per-entry
// TTL, so the revocation set is visible to every process instance and
// survives restarts. Tokens are keyed by their SHA-256 to keep raw JWT
// strings out of the store.
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:blacklist:" + hex.EncodeToString(sum[:])
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blacklistKey(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist check: %w", err)
	}
	return n > 0, nil
}
