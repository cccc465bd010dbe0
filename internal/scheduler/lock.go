package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards a source against concurrent harvests across scheduler
// replicas. TryLock is best effort: a false return means another replica
// holds the source.
type Locker interface {
	TryLock(ctx context.Context, sourceID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, sourceID string) error
}

// RedisLocker implements Locker with SET NX PX. The TTL bounds how long a
// crashed replica can hold a source.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "harvester:lock:"}
}

// TryLock acquires the per-source lock if free.
func (l *RedisLocker) TryLock(ctx context.Context, sourceID string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+sourceID, "1", ttl).Result()
}

// Unlock releases the per-source lock.
func (l *RedisLocker) Unlock(ctx context.Context, sourceID string) error {
	return l.client.Del(ctx, l.prefix+sourceID).Err()
}

// MemoryLocker is an in-process Locker for tests and single-node runs.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewMemoryLocker creates a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

// TryLock acquires the lock if free or expired.
func (l *MemoryLocker) TryLock(_ context.Context, sourceID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.held[sourceID]; ok && until.After(l.now()) {
		return false, nil
	}
	l.held[sourceID] = l.now().Add(ttl)
	return true, nil
}

// Unlock releases the lock.
func (l *MemoryLocker) Unlock(_ context.Context, sourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sourceID)
	return nil
}
