// Package alert turns detections into rate-limited notifications:
// dedup suppression, an unbounded monitored queue, and a Telegram sink.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// DedupTTL is how long an opportunity key suppresses repeats.
const DedupTTL = 30 * time.Second

// Deduper answers whether a detection key was seen within the TTL,
// recording it as seen either way.
type Deduper interface {
	// Seen returns true when key fired within the TTL window.
	Seen(ctx context.Context, key string) bool
}

// MemoryDeduper is the in-process TTL map used when Redis is not
// configured. Expired entries are pruned lazily on access.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper builds an in-memory deduper with the given TTL.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DedupTTL
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen implements Deduper.
func (d *MemoryDeduper) Seen(_ context.Context, key string) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[key] = now

	if len(d.seen) > 4096 {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return false
}

// RedisDeduper shares the suppression window across processes via
// SET NX PX. Redis errors fail open to the local fallback so a broken
// cache never silences alerts.
type RedisDeduper struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryDeduper
}

// NewRedisDeduper builds a Redis-backed deduper with a local fallback.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DedupTTL
	}
	return &RedisDeduper{
		client:   client,
		ttl:      ttl,
		fallback: NewMemoryDeduper(ttl),
	}
}

// Seen implements Deduper.
func (d *RedisDeduper) Seen(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, "arbwatch:dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Msg("redis dedup unavailable, using local window")
		return d.fallback.Seen(ctx, key)
	}
	return !ok
}
