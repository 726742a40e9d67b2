package locking

import (
	"context"
	"sync"
	"time"
)

// LocalLocker coordinates goroutines of one process only.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	seq   uint64
	clock func() time.Time
}

type localEntry struct {
	id      uint64
	expires time.Time
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: map[string]localEntry{}, clock: time.Now}
}

func (l *LocalLocker) Backend() string { return BackendLocal }

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return nil, heldError(key)
	}
	l.seq++
	e := localEntry{id: l.seq}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	l.held[key] = e
	return &localLease{l: l, key: key, id: e.id}, nil
}

func (l *LocalLocker) Close() error { return nil }

type localLease struct {
	l   *LocalLocker
	key string
	id  uint64
}

func (x *localLease) Key() string { return x.key }

func (x *localLease) Release(context.Context) error {
	x.l.mu.Lock()
	defer x.l.mu.Unlock()
	if e, ok := x.l.held[x.key]; ok && e.id == x.id {
		delete(x.l.held, x.key)
	}
	return nil
}
