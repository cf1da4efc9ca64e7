package payment

import (
	"context"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
)

const cooldownKeyPrefix = "cooldown:"

// CooldownCache is the fast path in front of the cooldowns table. A nil cache
// is valid; the gate then always reads the table.
type CooldownCache interface {
	// Active reports whether the user's cooldown key is still live and how
	// long it has left.
	Active(userID string) (bool, time.Duration, error)
	// Mark sets the user's cooldown key with the window as TTL.
	Mark(userID string, window time.Duration) error
}

// redisCooldownCache keeps cooldown marks in Redis with a natural TTL.
type redisCooldownCache struct{}

// NewRedisCooldownCache returns the Redis-backed cooldown fast path.
func NewRedisCooldownCache() CooldownCache {
	return redisCooldownCache{}
}

func (redisCooldownCache) Active(userID string) (bool, time.Duration, error) {
	ctx := context.Background()
	ttl, err := cache.GetClient().TTL(ctx, cooldownKeyPrefix+userID).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 {
		// -1 (no TTL) and -2 (missing key) both mean no live cooldown.
		return false, 0, nil
	}
	return true, ttl, nil
}

func (redisCooldownCache) Mark(userID string, window time.Duration) error {
	return cache.Set(cooldownKeyPrefix+userID, "1", window)
}
