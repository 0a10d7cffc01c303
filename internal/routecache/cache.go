// Package routecache memoizes provider route lookups in Redis for a short TTL.
// The cache is best-effort: any Redis failure falls through to the provider.
package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"traffic-predictor/internal/traffic"
)

// ErrMiss is returned by a Store when the key is absent.
var ErrMiss = errors.New("cache miss")

// Source is the provider being cached.
type Source interface {
	Route(ctx context.Context, origin, destination string) (traffic.RouteData, error)
}

// Store is the key/value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Metrics counts cache outcomes. Optional.
type Metrics interface {
	CacheHitInc()
	CacheMissInc()
}

type Cache struct {
	src     Source
	store   Store
	ttl     time.Duration
	log     *slog.Logger
	metrics Metrics
}

func New(src Source, store Store, ttl time.Duration, log *slog.Logger, m Metrics) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{src: src, store: store, ttl: ttl, log: log, metrics: m}
}

// Route serves from the cache when possible. Errors are never cached.
func (c *Cache) Route(ctx context.Context, origin, destination string) (traffic.RouteData, error) {
	key := Key(origin, destination)
	if b, err := c.store.Get(ctx, key); err == nil {
		var rd traffic.RouteData
		if err := json.Unmarshal(b, &rd); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHitInc()
			}
			return rd, nil
		}
		c.log.Warn("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, ErrMiss) {
		c.log.Warn("route cache read failed", "key", key, "error", err)
	}
	if c.metrics != nil {
		c.metrics.CacheMissInc()
	}

	rd, err := c.src.Route(ctx, origin, destination)
	if err != nil {
		return traffic.RouteData{}, err
	}
	b, err := json.Marshal(rd)
	if err != nil {
		return rd, nil
	}
	if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
		c.log.Warn("route cache write failed", "key", key, "error", err)
	}
	return rd, nil
}

// Key normalizes the pair so trivially different spellings share an entry.
// Each part is query-escaped, so a "|" inside a place name stays distinct.
func Key(origin, destination string) string {
	norm := func(s string) string {
		return url.QueryEscape(strings.ToLower(strings.Join(strings.Fields(s), " ")))
	}
	return fmt.Sprintf("route:%s|%s", norm(origin), norm(destination))
}

// RedisStore adapts a go-redis client to Store.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings, so a bad address fails at startup.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
