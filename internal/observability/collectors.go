package observability

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const scrapeInterval = 15 * time.Second

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go tick(ctx, scrapeInterval, func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		s := sqlDB.Stats()
		m.pgStats.Set(float64(s.OpenConnections), "open_connections")
		m.pgStats.Set(float64(s.InUse), "in_use")
		m.pgStats.Set(float64(s.Idle), "idle")
		m.pgStats.Set(float64(s.WaitCount), "wait_count")
		m.pgStats.Set(s.WaitDuration.Seconds(), "wait_duration_seconds")
		m.pgStats.Set(float64(s.MaxOpenConnections), "max_open_connections")
	})
}

// StartRedisCollector pings the lock backend. It reuses the caller's client
// and never closes it.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go tick(ctx, scrapeInterval, func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		start := time.Now()
		if err := rdb.Ping(pctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil && !strings.Contains(err.Error(), "context canceled") {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
