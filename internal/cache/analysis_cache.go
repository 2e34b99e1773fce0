package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"call-insights/internal/domain"
)

const (
	keyPrefix  = "call-insights:analysis:"
	defaultTTL = 24 * time.Hour
)

// redisAPI is the subset of *redis.Client the cache uses.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// AnalysisCache memoizes normalized analyses by transcript fingerprint.
type AnalysisCache struct {
	client redisAPI
	ttl    time.Duration
}

func NewAnalysisCache(client redisAPI, ttl time.Duration) (*AnalysisCache, error) {
	if client == nil {
		return nil, errors.New("cache: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AnalysisCache{client: client, ttl: ttl}, nil
}

func (c *AnalysisCache) key(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Get reports a miss as found=false with no error.
func (c *AnalysisCache) Get(ctx context.Context, fingerprint string) (domain.ConversationAnalysis, bool, error) {
	data, err := c.client.Get(ctx, c.key(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ConversationAnalysis{}, false, nil
	}
	if err != nil {
		return domain.ConversationAnalysis{}, false, fmt.Errorf("cache: get: %w", err)
	}
	var a domain.ConversationAnalysis
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return domain.ConversationAnalysis{}, false, fmt.Errorf("cache: decode: %w", err)
	}
	return a, true, nil
}

func (c *AnalysisCache) Set(ctx context.Context, fingerprint string, a domain.ConversationAnalysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}
