package locking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Deletes the key only when it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewRedis(ctx context.Context, log *logger.Logger, addr, password string, db int) (*RedisLocker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLocker{log: log.With("component", "RedisLocker"), rdb: rdb, prefix: "mensa:lock:"}, nil
}

// Client exposes the underlying connection for health collectors.
func (l *RedisLocker) Client() *goredis.Client { return l.rdb }

func (l *RedisLocker) Backend() string { return BackendRedis }

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, heldError(key)
	}
	return &redisLease{l: l, key: key, token: token}, nil
}

func (l *RedisLocker) Close() error { return l.rdb.Close() }

type redisLease struct {
	l     *RedisLocker
	key   string
	token string
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.l.rdb, []string{r.l.prefix + r.key}, r.token).Int()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis unlock %s: %w", r.key, err)
	}
	if n == 0 {
		r.l.log.Warn("Lock expired before release", "key", r.key)
	}
	return nil
}
