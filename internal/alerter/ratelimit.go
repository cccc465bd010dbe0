package alerter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more notification may be sent to a user.
// Allow must check and increment atomically; concurrent evaluations for
// the same user must never both pass on the last remaining slot.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Two rolling windows checked and incremented in one round trip. Counters
// are created with the window as TTL, so a key expiring is the window
// rolling over.
var rateLimitScript = redis.NewScript(`
local short = tonumber(redis.call('GET', KEYS[1]) or '0')
if short >= tonumber(ARGV[1]) then return 0 end
local long = tonumber(redis.call('GET', KEYS[2]) or '0')
if long >= tonumber(ARGV[2]) then return 0 end
if redis.call('INCR', KEYS[1]) == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
if redis.call('INCR', KEYS[2]) == 1 then
	redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
return 1
`)

// RedisLimiter enforces the per-user notification caps against Redis.
type RedisLimiter struct {
	client    redis.Scripter
	capShort  int
	capLong   int
	winShort  time.Duration
	winLong   time.Duration
	keyPrefix string
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client redis.Scripter, capShort int, winShort time.Duration, capLong int, winLong time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		capShort:  capShort,
		capLong:   capLong,
		winShort:  winShort,
		winLong:   winLong,
		keyPrefix: "harvester:notify",
	}
}

// Allow atomically consumes one notification slot for the user. Any Redis
// failure is returned to the caller, which must treat it as a denial.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	keys := []string{
		fmt.Sprintf("%s:%s:short", l.keyPrefix, userID),
		fmt.Sprintf("%s:%s:long", l.keyPrefix, userID),
	}
	res, err := rateLimitScript.Run(ctx, l.client, keys,
		l.capShort, l.capLong, l.winShort.Milliseconds(), l.winLong.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return res == 1, nil
}

// MemoryLimiter is an in-process Limiter for tests and single-node runs.
type MemoryLimiter struct {
	mu       sync.Mutex
	sends    map[string][]time.Time
	capShort int
	capLong  int
	winShort time.Duration
	winLong  time.Duration
	now      func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter.
func NewMemoryLimiter(capShort int, winShort time.Duration, capLong int, winLong time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		sends:    make(map[string][]time.Time),
		capShort: capShort,
		capLong:  capLong,
		winShort: winShort,
		winLong:  winLong,
		now:      time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow consumes one slot if both windows have room.
func (l *MemoryLimiter) Allow(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var kept []time.Time
	var short, long int
	for _, t := range l.sends[userID] {
		if now.Sub(t) >= l.winLong {
			continue
		}
		kept = append(kept, t)
		long++
		if now.Sub(t) < l.winShort {
			short++
		}
	}
	l.sends[userID] = kept

	if short >= l.capShort || long >= l.capLong {
		return false, nil
	}
	l.sends[userID] = append(kept, now)
	return true, nil
}
