package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keyhive/pkg/retry"
)

// releaseScript deletes the lock key only if this holder still owns it, so
// an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, keys []string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET failed: %w", err)
	}

	out := make([]*string, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out, nil
}

func (r *RedisRegistry) ListPush(ctx context.Context, listKey, value string) error {
	if err := r.client.RPush(ctx, listKey, value).Err(); err != nil {
		return fmt.Errorf("redis RPUSH failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error) {
	values, err := r.client.LRange(ctx, listKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE failed: %w", err)
	}
	return values, nil
}

func (r *RedisRegistry) ListRemove(ctx context.Context, listKey string, count int64, value string) error {
	if err := r.client.LRem(ctx, listKey, count, value).Err(); err != nil {
		return fmt.Errorf("redis LREM failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) AcquireLock(ctx context.Context, key string, waitTimeout, holdTimeout time.Duration) (Lock, error) {
	token := uuid.New().String()

	err := retry.Do(ctx, retry.LockPolicy(waitTimeout), func() error {
		ok, err := r.client.SetNX(ctx, key, token, holdTimeout).Result()
		if err != nil {
			return fmt.Errorf("redis SETNX failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("lock %s is held", key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return &redisLock{client: r.client, key: key, token: token}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
