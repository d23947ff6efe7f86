package admission

import (
	"context"
	"sync"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// LeaseStore tracks TTL-bounded claim leases. A processing job whose lease
// has expired is presumed abandoned by its worker and may be returned to
// the queue by the reaper. Leases are an expiry mechanism only; the row
// status guard in the queue store remains the source of truth for who owns
// a job.
type LeaseStore interface {
	Acquire(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID, owner string) error

	// ForceRelease drops the lease regardless of owner; used on terminal
	// transitions where the job row is already gone.
	ForceRelease(ctx context.Context, jobID string) error
	Held(ctx context.Context, jobID string) (bool, error)
}

const leaseKeyPrefix = "dialer:lease:job:"

// RedisLeases implements LeaseStore on Redis. TTL expiry is what recovers
// leases from crashed workers without any coordination.
type RedisLeases struct {
	rdb *redis.Client
}

func NewRedisLeases(rdb *redis.Client) *RedisLeases { return &RedisLeases{rdb: rdb} }

func (l *RedisLeases) Acquire(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	return utils.AcquireLease(ctx, l.rdb, leaseKeyPrefix+jobID, owner, ttl)
}

func (l *RedisLeases) Extend(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	return utils.ExtendLease(ctx, l.rdb, leaseKeyPrefix+jobID, owner, ttl)
}

func (l *RedisLeases) Release(ctx context.Context, jobID, owner string) error {
	return utils.ReleaseLease(ctx, l.rdb, leaseKeyPrefix+jobID, owner)
}

func (l *RedisLeases) ForceRelease(ctx context.Context, jobID string) error {
	return l.rdb.Del(ctx, leaseKeyPrefix+jobID).Err()
}

func (l *RedisLeases) Held(ctx context.Context, jobID string) (bool, error) {
	return utils.LeaseHeld(ctx, l.rdb, leaseKeyPrefix+jobID)
}

// MemoryLeases is an in-memory LeaseStore for tests. Expiry is evaluated
// lazily against the injected clock.
type MemoryLeases struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	Clock  func() time.Time
}

type memoryLease struct {
	owner   string
	expires time.Time
}

func NewMemoryLeases() *MemoryLeases {
	return &MemoryLeases{leases: map[string]memoryLease{}, Clock: time.Now}
}

func (l *MemoryLeases) Acquire(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Clock()
	if cur, ok := l.leases[jobID]; ok && cur.expires.After(now) {
		return false, nil
	}
	l.leases[jobID] = memoryLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLeases) Extend(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Clock()
	cur, ok := l.leases[jobID]
	if !ok || cur.owner != owner || !cur.expires.After(now) {
		return false, nil
	}
	cur.expires = now.Add(ttl)
	l.leases[jobID] = cur
	return true, nil
}

func (l *MemoryLeases) Release(ctx context.Context, jobID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[jobID]; ok && cur.owner == owner {
		delete(l.leases, jobID)
	}
	return nil
}

func (l *MemoryLeases) ForceRelease(ctx context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, jobID)
	return nil
}

func (l *MemoryLeases) Held(ctx context.Context, jobID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[jobID]
	return ok && cur.expires.After(l.Clock()), nil
}
