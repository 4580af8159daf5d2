package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
)

const (
	// verifyCachePrefix is the Redis key prefix for positive verify results.
	verifyCachePrefix = "keygate:verify:"
	// MaxVerifyCacheTTL caps how long a positive result is cached.
	MaxVerifyCacheTTL = 5 * time.Minute
)

// cachedKey is what a positive verify result stores. No key material.
type cachedKey struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// verifyCacheKey never embeds the key value itself.
func verifyCacheKey(keyValue string) string {
	return verifyCachePrefix + auth.QuickHash(keyValue)
}

// GetVerifiedKey returns the cached owner and expiry for keyValue.
// Returns nil on a cache miss or a corrupted entry.
func (c *Cache) GetVerifiedKey(ctx context.Context, keyValue string) (*model.AccessKey, error) {
	data, err := c.client.Get(ctx, verifyCacheKey(keyValue)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verify cache: %w", err)
	}

	var cached cachedKey
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.AccessKey{
		UserID:    cached.UserID,
		KeyValue:  keyValue,
		ExpiresAt: cached.ExpiresAt,
	}, nil
}

// SetVerifiedKey caches a positive verification result. The entry lives
// until the key expires or MaxVerifyCacheTTL, whichever comes first, and
// nothing is written for a key that is no longer live at now.
func (c *Cache) SetVerifiedKey(ctx context.Context, key *model.AccessKey, now time.Time) error {
	ttl := key.Remaining(now)
	if ttl <= 0 {
		return nil
	}
	if ttl > MaxVerifyCacheTTL {
		ttl = MaxVerifyCacheTTL
	}

	data, err := json.Marshal(cachedKey{UserID: key.UserID, ExpiresAt: key.ExpiresAt})
	if err != nil {
		return fmt.Errorf("marshal verify cache entry: %w", err)
	}

	return c.client.Set(ctx, verifyCacheKey(key.KeyValue), data, ttl).Err()
}

// DeleteVerifiedKey drops the cached result for keyValue.
func (c *Cache) DeleteVerifiedKey(ctx context.Context, keyValue string) error {
	return c.client.Del(ctx, verifyCacheKey(keyValue)).Err()
}
