// Package cache implements the TTL-keyed cache layer (C4). It mirrors the
// shape of the teacher project's in-process cache.go — get/set/invalidate
// plus a prefix sweep — but backs it with Redis so price quotes, news
// lookups, and sessions (internal/auth) stay consistent across every
// orchestrator process rather than one in-memory map per instance.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/metrics"
)

// Config controls the default TTL applied when callers pass ttl <= 0.
type Config struct {
	RedisURL   string
	DefaultTTL time.Duration
	KeyPrefix  string
}

// DefaultConfig returns spec.md section 4.4's default: a five minute TTL.
func DefaultConfig() Config {
	return Config{DefaultTTL: 5 * time.Minute, KeyPrefix: "orc:"}
}

// Cache is a thin, deliberately narrow client over Redis. Every method
// degrades to a cache miss (or a silently dropped write) on a Redis error
// rather than propagating it — per spec.md section 7, the cache is an
// optimization and must never be a new point of failure for a request
// that would otherwise succeed by going to the source of truth.
type Cache struct {
	rdb     *redis.Client
	cfg     Config
	log     *logging.Logger
	prefix  string
	metrics *metrics.Metrics
}

// WithMetrics attaches a Metrics recorder so every Get records a
// cache_hits_total/cache_misses_total sample, keyed by the key's
// namespace (the portion before the first colon, e.g. "quote" for
// "quote:AAPL:1d"). Returns c for chaining at construction time.
func (c *Cache) WithMetrics(m *metrics.Metrics) *Cache {
	c.metrics = m
	return c
}

func cacheNamespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// New dials Redis lazily (go-redis connects on first command) and
// returns a ready Cache.
func New(cfg Config, log *logging.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "orc:"
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil || cfg.RedisURL == "" {
		opts = &redis.Options{Addr: "localhost:6379"}
	}
	return &Cache{
		rdb:    redis.NewClient(opts),
		cfg:    cfg,
		log:    log,
		prefix: cfg.KeyPrefix,
	}
}

// NewWithClient wraps an already-constructed redis.Client, for tests that
// point at miniredis or a shared test instance.
func NewWithClient(rdb *redis.Client, cfg Config, log *logging.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "orc:"
	}
	return &Cache{rdb: rdb, cfg: cfg, log: log, prefix: cfg.KeyPrefix}
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Get fetches and JSON-decodes the value stored at key into dest. It
// reports (found, error) where error is always nil — Redis failures are
// logged and treated as a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil && c.log != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache get degraded to miss")
		}
		c.metrics.RecordCacheMiss(cacheNamespace(key))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		if c.log != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache value undecodable, treating as miss")
		}
		c.metrics.RecordCacheMiss(cacheNamespace(key))
		return false
	}
	c.metrics.RecordCacheHit(cacheNamespace(key))
	return true
}

// Set stores value at key with the given ttl (or the configured default
// when ttl <= 0). Write failures are logged, not returned, for the same
// degrade-to-miss reason as Get.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache value not serializable, skipping set")
		}
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), raw, ttl).Err(); err != nil && c.log != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil && c.log != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache invalidate failed")
	}
}

// InvalidatePrefix removes every key sharing the given prefix, e.g. all
// cached quotes for a symbol across timeframes. Uses SCAN rather than
// KEYS so a large keyspace never blocks Redis.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	pattern := c.key(prefix) + "*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		if c.log != nil {
			c.log.WithError(err).WithField("prefix", prefix).Warn("cache invalidate-prefix scan failed")
		}
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil && c.log != nil {
		c.log.WithError(err).WithField("prefix", prefix).Warn("cache invalidate-prefix delete failed")
	}
}

// BatchGet fetches every key in keys in a single round trip via MGET,
// returning only the keys that were present and decodable. Callers
// should request the remainder from the source of truth.
func (c *Cache) BatchGet(ctx context.Context, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("cache batch get degraded to all-miss")
		}
		return out
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = json.RawMessage(s)
	}
	return out
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// NormalizeHeadline lowercases and collapses whitespace in a news
// headline so near-duplicate items from different feeds dedup cleanly.
func NormalizeHeadline(headline string) string {
	fields := strings.Fields(strings.ToLower(headline))
	return strings.Join(fields, " ")
}

// HeadlineDigest returns a stable, short identifier for a normalized
// headline, suitable for use as a dedup-set member or cache key suffix.
func HeadlineDigest(headline string) string {
	sum := sha256.Sum256([]byte(NormalizeHeadline(headline)))
	return hex.EncodeToString(sum[:])[:16]
}

// DedupHeadlines filters items down to the first occurrence of each
// normalized headline, preserving order. It implements spec.md section
// 4.4's news-aggregation dedup requirement without needing a round trip
// to Redis — callers that need cross-process dedup should additionally
// consult a SeenHeadlines set (see SeenHeadlines below).
func DedupHeadlines[T any](items []T, headlineOf func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		digest := HeadlineDigest(headlineOf(item))
		if _, ok := seen[digest]; ok {
			continue
		}
		seen[digest] = struct{}{}
		out = append(out, item)
	}
	return out
}

// SeenHeadlines tracks headline digests already surfaced to a given
// session/user across requests, backed by a Redis set with its own TTL
// so the dedup window doesn't grow unbounded.
type SeenHeadlines struct {
	cache *Cache
	ttl   time.Duration
}

// NewSeenHeadlines returns a headline-dedup tracker scoped by key prefix.
func NewSeenHeadlines(cache *Cache, ttl time.Duration) *SeenHeadlines {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SeenHeadlines{cache: cache, ttl: ttl}
}

// MarkAndCheck records digest as seen for scope and reports whether it
// had already been seen before this call.
func (s *SeenHeadlines) MarkAndCheck(ctx context.Context, scope, headline string) bool {
	setKey := s.cache.key("news-seen:" + scope)
	digest := HeadlineDigest(headline)
	added, err := s.cache.rdb.SAdd(ctx, setKey, digest).Result()
	if err != nil {
		if s.cache.log != nil {
			s.cache.log.WithError(err).Warn("seen-headlines check degraded to not-seen")
		}
		return false
	}
	s.cache.rdb.Expire(ctx, setKey, s.ttl)
	return added == 0
}
