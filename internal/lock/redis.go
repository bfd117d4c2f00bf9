package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a Locker shared between processes. Locks expire after TTL so
// a crashed holder cannot wedge a trip forever.
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

// NewRedis creates a RedisLocker. ttl bounds how long a lock is held;
// wait bounds how long Lock retries before returning ErrNotAcquired.
func NewRedis(rdb redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, keyPrefix: "itinerary:lock:", ttl: ttl, wait: wait}
}

// NewRedisFromURL parses a redis:// URL and creates a RedisLocker.
func NewRedisFromURL(url string, ttl, wait time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "lock: parse redis url")
	}
	return NewRedis(redis.NewClient(opts), ttl, wait), nil
}

// Lock retries SET NX with exponential backoff until it wins, the wait
// expires, or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			zap.L().Debug("lock: acquired", zap.String("key", key))
			return func() { l.release(lockKey, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, eris.Wrapf(ErrNotAcquired, "lock: %s held elsewhere", key)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "lock: wait for %s", key)
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

func (l *RedisLocker) release(lockKey, token string) {
	// Release must not be skipped because the caller's context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.rdb, []string{lockKey}, token).Int64()
	if err != nil {
		zap.L().Warn("lock: release failed", zap.String("key", lockKey), zap.Error(err))
		return
	}
	if n == 0 {
		zap.L().Warn("lock: released after expiry", zap.String("key", lockKey))
	}
}

// Close closes the underlying client.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
