package keylock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const (
	DefaultRedisTTL   = 30 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
	redisKeyPrefix    = "lock:progression:"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a best-effort distributed lock (SET NX PX with a token-checked release)
// so replicas sharing a database serialize the same keys.
type Redis struct {
	rdb        goredis.Cmdable
	log        *logger.Logger
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedis(log *logger.Logger, rdb goredis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{rdb: rdb, log: log.With("service", "RedisKeyLock"), ttl: ttl, retryDelay: defaultRetryDelay}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r == nil || r.rdb == nil {
		return func() {}, nil
	}
	rkey := redisKeyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := r.rdb.SetNX(ctx, rkey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("keylock: redis setnx: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(r.retryDelay):
		}
	}
	return func() {
		// Release on a fresh context so a canceled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{rkey}, token).Err(); err != nil && err != goredis.Nil {
			r.log.Warn("redis lock release failed", "key", key, "error", err)
		}
	}, nil
}
