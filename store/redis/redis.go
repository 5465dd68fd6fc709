/*
Package redis shares locks and cached leaderboards between engine instances.

PURPOSE:
  Locker extends the in-process generic.KeyedMutex across processes so two
  servers never recompute the same period or mutate the same account at
  once. Cache keeps ranked summaries between recomputes.

NIL CLIENT:
  Both types accept a nil client and then do nothing: Lock succeeds at
  once and the cache always misses. A single instance runs without Redis.

USAGE:
  client := goredis.NewClient(opts)
  locks := generic.Chain{generic.NewKeyedMutex(), redis.NewLocker(client, 0)}
  cache := redis.NewCache(client, 10*time.Minute)

SEE ALSO:
  - generic/locks.go: Locker and Chain
  - leaderboard/board.go: Cache
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/leaderboard"
)

var (
	_ generic.Locker    = (*Locker)(nil)
	_ leaderboard.Cache = (*Cache)(nil)
)

// NewClient parses a redis:// URL. An empty URL returns a nil client.
func NewClient(url string) (*goredis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// =============================================================================
// LOCKER
// =============================================================================

const (
	DefaultLockTTL = 30 * time.Second
	lockRetry      = 25 * time.Millisecond
)

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a generic.Locker over SET NX with a TTL. A held lock is renewed
// every third of the TTL until released, so a long recompute keeps it.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewLocker(client *goredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locker{client: client, ttl: ttl}
}

func lockKey(key string) string { return "perf:lock:" + key }

// Lock retries until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	k := lockKey(key)
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be cancelled.
			unlockScript.Run(context.Background(), l.client, []string{k}, token)
		})
	}, nil
}

func (l *Locker) renew(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := renewScript.Run(context.Background(), l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
			if err == nil && n == 0 {
				// Expired and taken over; the key is no longer ours.
				return
			}
		}
	}
}

// =============================================================================
// LEADERBOARD CACHE
// =============================================================================

// Cache is a leaderboard.Cache storing summaries as JSON.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCache(client *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// CacheKey is the Redis key of a period's leaderboard.
func CacheKey(tenantID generic.TenantID, period generic.Period) string {
	return fmt.Sprintf("perf:leaderboard:%s:%s", tenantID, period.Key())
}

func (c *Cache) Get(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]leaderboard.Summary, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, CacheKey(tenantID, period)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read leaderboard cache: %w", err)
	}
	var rows []leaderboard.Summary
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, fmt.Errorf("decode leaderboard cache: %w", err)
	}
	return rows, true, nil
}

func (c *Cache) Set(ctx context.Context, tenantID generic.TenantID, period generic.Period, summaries []leaderboard.Summary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("encode leaderboard cache: %w", err)
	}
	return c.client.Set(ctx, CacheKey(tenantID, period), raw, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, tenantID generic.TenantID, period generic.Period) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, CacheKey(tenantID, period)).Err()
}
