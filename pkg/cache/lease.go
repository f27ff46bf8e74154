package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "lease"

// releaseScript deletes the lease only while it still holds our token, so a
// holder whose lease already expired cannot drop its successor's.
//
// KEYS[1]: lease key, ARGV[1]: holder token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLeaseLost is returned by a release func when the lease expired or was
// taken over before it was released.
var ErrLeaseLost = errors.New("lease no longer held")

// TryLock takes the lease named key for ttl if nobody holds it.
// Key format: "lease:{key}". ok is false when another holder has it.
// The returned release func gives the lease back early.
func (r *RedisClient) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lease %s: ttl must be positive, got %s", key, ttl)
	}

	k := leaseKey(key)
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.client, []string{k}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("release lease %s: %w", key, ErrLeaseLost)
		}
		return nil
	}
	return release, true, nil
}

func leaseKey(key string) string {
	return fmt.Sprintf("%s:%s", leaseKeyPrefix, key)
}
