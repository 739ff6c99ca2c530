package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CandidateStore keeps search results keyed by query, anchor and radius.
type CandidateStore interface {
	Get(ctx context.Context, key string) ([]Candidate, bool)
	Set(ctx context.Context, key string, candidates []Candidate)
}

// CachedSearcher serves repeated searches from a CandidateStore.
type CachedSearcher struct {
	next   Searcher
	store  CandidateStore
	logger *slog.Logger
}

func NewCachedSearcher(next Searcher, store CandidateStore, logger *slog.Logger) *CachedSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSearcher{next: next, store: store, logger: logger}
}

func cacheKey(query string, anchor LatLng, radiusMeters int) string {
	return fmt.Sprintf("places:%s|%.4f,%.4f|%d", query, anchor.Lat, anchor.Lng, radiusMeters)
}

func (c *CachedSearcher) Search(ctx context.Context, query string, anchor LatLng, radiusMeters int) ([]Candidate, error) {
	key := cacheKey(query, anchor, radiusMeters)
	if cached, ok := c.store.Get(ctx, key); ok {
		c.logger.DebugContext(ctx, "Cache hit for place search", "cache_key", key)
		return cached, nil
	}

	results, err := c.next.Search(ctx, query, anchor, radiusMeters)
	if err != nil {
		return nil, err
	}
	c.store.Set(ctx, key, results)
	return results, nil
}

// MemoryStore is an in-process CandidateStore.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl, cleanup time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, cleanup)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]Candidate, bool) {
	cached, found := m.cache.Get(key)
	if !found {
		return nil, false
	}
	candidates, ok := cached.([]Candidate)
	return candidates, ok
}

func (m *MemoryStore) Set(_ context.Context, key string, candidates []Candidate) {
	m.cache.Set(key, candidates, cache.DefaultExpiration)
}

// RedisStore shares cached results between planner processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(url string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl, logger: logger}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]Candidate, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.WarnContext(ctx, "Redis get failed", "key", key, "error", err)
		return nil, false
	}

	var candidates []Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		r.logger.WarnContext(ctx, "Discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	return candidates, true
}

func (r *RedisStore) Set(ctx context.Context, key string, candidates []Candidate) {
	data, err := json.Marshal(candidates)
	if err != nil {
		r.logger.WarnContext(ctx, "Unable to encode cache entry", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "Redis set failed", "key", key, "error", err)
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
