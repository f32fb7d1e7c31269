package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/predict"
)

// ResultCache caches prediction results keyed by the normalized symptom set.
// An in-process LRU tier always runs; a Redis tier is added when a Redis URL
// is configured, so repeated queries survive process restarts.
type ResultCache struct {
	memory     *lru.Cache[string, cachedResult]
	redis      *redis.Client
	defaultTTL time.Duration
}

type cachedResult struct {
	Result    *predict.Result `json:"result"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewResultCache creates a result cache from configuration. When config.RedisURL
// is empty only the memory tier is used.
func NewResultCache(config domain.CacheConfig) (*ResultCache, error) {
	size := config.MemorySize
	if size <= 0 {
		size = 1024
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 15 * time.Minute
	}

	memory, err := lru.New[string, cachedResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	cache := &ResultCache{
		memory:     memory,
		defaultTTL: config.DefaultTTL,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}

		opts.PoolSize = config.PoolSize
		opts.PoolTimeout = config.PoolTimeout
		opts.MaxRetries = config.MaxRetries

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		cache.redis = client
	}

	return cache, nil
}

// Get retrieves a cached prediction for the given symptoms and limit.
func (c *ResultCache) Get(ctx context.Context, symptoms []string, limit int) (*predict.Result, bool, error) {
	key := PredictionKey(symptoms, limit)

	if cached, ok := c.memory.Get(key); ok {
		if time.Now().Before(cached.ExpiresAt) {
			return cached.Result, true, nil
		}
		c.memory.Remove(key)
	}

	if c.redis == nil {
		return nil, false, nil
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get prediction cache: %w", err)
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	// Promote to the memory tier
	c.memory.Add(key, cached)

	return cached.Result, true, nil
}

// Set caches a prediction result. A zero ttl uses the configured default.
func (c *ResultCache) Set(ctx context.Context, symptoms []string, limit int, result *predict.Result, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := PredictionKey(symptoms, limit)
	cached := cachedResult{
		Result:    result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	c.memory.Add(key, cached)

	if c.redis == nil {
		return nil
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Purge clears both cache tiers.
func (c *ResultCache) Purge(ctx context.Context) error {
	c.memory.Purge()

	if c.redis == nil {
		return nil
	}

	keys, err := c.redis.Keys(ctx, "prediction:*").Result()
	if err != nil {
		return fmt.Errorf("failed to list prediction cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...).Err()
}

// Len returns the number of entries in the memory tier.
func (c *ResultCache) Len() int {
	return c.memory.Len()
}

// Ping checks the Redis tier connection. It is a no-op without Redis.
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection if one is configured.
func (c *ResultCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// PredictionKey creates a cache key from the sorted, deduplicated symptom set
// and result limit. Names are taken verbatim, matching the encoder's
// vocabulary lookup; only order and duplicates are ignored.
func PredictionKey(symptoms []string, limit int) string {
	normalized := make([]string, 0, len(symptoms))
	seen := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		if seen[s] {
			continue
		}
		seen[s] = true
		normalized = append(normalized, s)
	}
	sort.Strings(normalized)

	data := fmt.Sprintf("%s|%d", strings.Join(normalized, ","), limit)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("prediction:%x", hash[:16])
}
