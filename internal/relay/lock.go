package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"personrelay/internal/constants"
	"personrelay/pkg/errors"
)

// Locker serialises drain cycles across replicas.
type Locker interface {
	// Acquire returns a release func, or ErrConflict when another drain holds
	// the lock.
	Acquire(ctx context.Context) (func(ctx context.Context) error, error)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another drain is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = constants.DefaultLockTTL
	}
	return &RedisLocker{client: client, key: constants.DrainLockKey, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(ctx context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.ErrUnavailable.WithCause(err).WithMessage("failed to acquire drain lock")
	}
	if !ok {
		return nil, errors.ErrConflict.WithMessage("a drain is already in progress")
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release drain lock: %w", err)
		}
		return nil
	}, nil
}
