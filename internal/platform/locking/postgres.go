package locking

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// PostgresLocker uses session-level advisory locks. A lease pins one pool
// connection until release, so the lock dies with the session if the
// process does. The ttl argument is ignored.
type PostgresLocker struct {
	log  *logger.Logger
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, log *logger.Logger, dsn string) (*PostgresLocker, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("missing postgres dsn")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse lock dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("lock pool: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresLocker{log: log.With("component", "PostgresLocker"), pool: pool}, nil
}

func (l *PostgresLocker) Backend() string { return BackendPostgres }

func (l *PostgresLocker) TryAcquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock conn: %w", err)
	}
	id := advisoryKey(key)
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pg_try_advisory_lock %s: %w", key, err)
	}
	if !ok {
		conn.Release()
		return nil, heldError(key)
	}
	return &pgLease{log: l.log, conn: conn, key: key, id: id}, nil
}

func (l *PostgresLocker) Close() error {
	l.pool.Close()
	return nil
}

type pgLease struct {
	log  *logger.Logger
	conn *pgxpool.Conn
	key  string
	id   int64
}

func (p *pgLease) Key() string { return p.key }

func (p *pgLease) Release(ctx context.Context) error {
	defer p.conn.Release()
	var ok bool
	if err := p.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", p.id).Scan(&ok); err != nil {
		// Drop the session so the lock cannot outlive us on a pooled conn.
		_ = p.conn.Conn().Close(context.Background())
		return fmt.Errorf("pg_advisory_unlock %s: %w", p.key, err)
	}
	if !ok {
		p.log.Warn("Advisory lock was not held at release", "key", p.key)
	}
	return nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("mensa:"))
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
