package auth

import (
	"context"
	"time"

	"h2grid/internal/cache"
)

const blacklistKeyPrefix = "blacklist:access_token:"

// TokenBlacklist revokes access tokens before their natural expiry.
type TokenBlacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) bool
}

// RedisBlacklist keeps revoked token ids in redis until they would have
// expired anyway.
type RedisBlacklist struct {
	cache *cache.Client
}

var _ TokenBlacklist = (*RedisBlacklist)(nil)

// NewRedisBlacklist creates a blacklist backed by the fail-safe cache.
func NewRedisBlacklist(cache *cache.Client) *RedisBlacklist {
	return &RedisBlacklist{cache: cache}
}

// Revoke marks tokenID as revoked for ttl.
func (b *RedisBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return b.cache.Set(ctx, blacklistKeyPrefix+tokenID, []byte("1"), ttl)
}

// IsRevoked reports whether tokenID was revoked. Redis outages read as
// not revoked.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	data, _ := b.cache.Get(ctx, blacklistKeyPrefix+tokenID)
	return data != nil
}
