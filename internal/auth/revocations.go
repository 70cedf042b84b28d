package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "collab:revoked:"

// Revocations records token ids that must no longer authenticate.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocations keeps one expiring key per revoked token.
type RedisRevocations struct {
	rdb *redis.Client
}

func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

// Revoke marks jti revoked for ttl, normally the token's remaining lifetime.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("empty token id")
	}
	if ttl <= 0 {
		// already expired, nothing can use it
		return nil
	}
	return r.rdb.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NoRevocations is used when Redis is disabled. Logout becomes client-side only.
type NoRevocations struct{}

func (NoRevocations) Revoke(context.Context, string, time.Duration) error { return nil }
func (NoRevocations) IsRevoked(context.Context, string) (bool, error)    { return false, nil }
