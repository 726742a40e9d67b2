package locking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// ErrHeld is returned by TryAcquire when another holder owns the key.
var ErrHeld = errors.New("lock held")

// Locker hands out single-flight leases keyed by name. TryAcquire never
// blocks waiting for the current holder.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	Backend() string
	Close() error
}

type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

type Config struct {
	Backend       string // empty picks redis when RedisAddr is set, else postgres when PostgresDSN is set, else local
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
}

func (c Config) resolve() string {
	switch b := strings.ToLower(strings.TrimSpace(c.Backend)); b {
	case BackendRedis, BackendPostgres, BackendLocal:
		return b
	}
	if strings.TrimSpace(c.RedisAddr) != "" {
		return BackendRedis
	}
	if strings.TrimSpace(c.PostgresDSN) != "" {
		return BackendPostgres
	}
	return BackendLocal
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Locker, error) {
	switch cfg.resolve() {
	case BackendRedis:
		return NewRedis(ctx, log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case BackendPostgres:
		return NewPostgres(ctx, log, cfg.PostgresDSN)
	default:
		if log != nil {
			log.Warn("Using in-process lock; concurrent replicas are not coordinated")
		}
		return NewLocal(), nil
	}
}

func heldError(key string) error {
	return fmt.Errorf("%w: %s", ErrHeld, key)
}
