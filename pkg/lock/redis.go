package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ только если значение совпадает с токеном владельца.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker — блокировка на SET NX PX.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisLocker создаёт блокировку поверх Redis. Ключи хранятся как {prefix}{key}.
func NewRedisLocker(rdb redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// TryAcquire выполняет SET key token NX PX ttl.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	fullKey := l.prefix + key
	token := newToken()

	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("ошибка захвата блокировки %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &redisLease{rdb: l.rdb, key: fullKey, token: token}, true, nil
}

type redisLease struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// Release удаляет ключ через compare-and-delete.
// Если TTL истёк и блокировку захватил другой экземпляр, его ключ не трогаем.
func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("ошибка освобождения блокировки %s: %w", l.key, err)
	}
	return nil
}
